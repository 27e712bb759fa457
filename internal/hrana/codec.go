package hrana

import (
	"encoding/json"
	"fmt"
)

// EncodeMsg serializes a protocol message body. Encoding is deterministic:
// the same message yields byte-identical output on every call, which the
// simulator relies on for reproducible request buffers.
func EncodeMsg(v any) ([]byte, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return buf, nil
}

// DecodeMsg deserializes a protocol message body.
func DecodeMsg(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
