package harness

import "github.com/louhi-db/louhi/internal/trace"

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if the run completed and all assertions hold.
	Pass bool `json:"pass"`

	// Snapshot is the recorded trace, used for assertions and golden
	// comparison.
	Snapshot trace.Snapshot `json:"snapshot"`

	// Errors contains run and assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
