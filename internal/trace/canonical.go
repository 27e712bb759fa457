package trace

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical serializes the snapshot deterministically: map-based JSON
// (keys sorted by the encoder), strings NFC-normalized, two-space indent.
// Two snapshots of identical runs produce byte-identical output.
func (s *Snapshot) MarshalCanonical() ([]byte, error) {
	events := make([]any, len(s.Events))
	for i, e := range s.Events {
		m := map[string]any{
			"cycle":  e.Cycle,
			"class":  norm.NFC.String(e.Class),
			"status": e.Status,
		}
		if e.RequestLen > 0 {
			m["request_len"] = e.RequestLen
		}
		events[i] = m
	}

	root := map[string]any{
		"policy": norm.NFC.String(s.Policy),
		"events": events,
	}
	if s.Seed != 0 {
		root["seed"] = s.Seed
	}

	buf, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return buf, nil
}

// Hash returns the hex SHA-256 of the canonical serialization.
func (s *Snapshot) Hash() (string, error) {
	buf, err := s.MarshalCanonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf)
	return fmt.Sprintf("%x", sum), nil
}
