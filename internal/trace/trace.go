// Package trace records one event per simulation cycle and serializes runs
// to a canonical form for golden comparison and replay diffing.
package trace

// Event is the per-cycle record: which fault class was drawn, how many bytes
// went out, and which status came back.
type Event struct {
	Cycle      int    `json:"cycle"`
	Class      string `json:"class"`
	RequestLen int    `json:"request_len"`
	Status     int    `json:"status"`
}

// Recorder accumulates events for one run. It is only touched from the
// simulation's single thread of control.
type Recorder struct {
	policy string
	seed   uint64
	events []Event
}

// NewRecorder creates a recorder for a run under the named policy.
// A zero seed means the run was driven by scripted draws rather than a
// seeded generator.
func NewRecorder(policy string, seed uint64) *Recorder {
	return &Recorder{policy: policy, seed: seed}
}

// Append records one cycle.
func (r *Recorder) Append(e Event) {
	r.events = append(r.events, e)
}

// Len returns the number of recorded cycles.
func (r *Recorder) Len() int {
	return len(r.events)
}

// Events returns the recorded events in cycle order.
func (r *Recorder) Events() []Event {
	return r.events
}

// Snapshot captures the run for serialization.
func (r *Recorder) Snapshot() Snapshot {
	events := make([]Event, len(r.events))
	copy(events, r.events)
	return Snapshot{Policy: r.policy, Seed: r.seed, Events: events}
}

// Snapshot is a complete run trace.
type Snapshot struct {
	Policy string  `json:"policy"`
	Seed   uint64  `json:"seed,omitempty"`
	Events []Event `json:"events"`
}

// CountByClass tallies events per fault class.
func (s *Snapshot) CountByClass() map[string]int {
	counts := make(map[string]int)
	for _, e := range s.Events {
		counts[e.Class]++
	}
	return counts
}
