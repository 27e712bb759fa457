// Package workload compiles CUE workload specs: the statement a run
// executes and the fault policies it may inject.
package workload

import "fmt"

// Policy is one fault-injection variant. Exactly one policy is active per
// run; the probability governs how often its fault replaces the well-formed
// request a cycle would otherwise send.
type Policy struct {
	// Class names the fault the policy injects ("empty" or "fuzzed").
	Class string

	// Probability is the per-cycle chance of injecting the fault, in [0, 1].
	Probability float64

	// Noise is the literal byte sequence a "fuzzed" fault transmits.
	Noise string

	// RejectStatus is the response status the oracle expects for an
	// injected fault.
	RejectStatus int
}

// Spec is a compiled workload: what to execute, where, and which faults may
// replace it.
type Spec struct {
	// Database is the name the manager creates at startup.
	Database string

	// Host is the virtual host requests are addressed to.
	Host string

	// Statement is the SQL every conformant cycle executes.
	Statement string

	// OKStatus is the response status the oracle expects for a conformant
	// request.
	OKStatus int

	// Policies are the available fault variants, keyed by policy name.
	Policies map[string]Policy
}

// Policy returns the named fault policy.
func (s *Spec) Policy(name string) (Policy, error) {
	p, ok := s.Policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("workload has no policy %q", name)
	}
	return p, nil
}
