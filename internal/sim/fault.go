package sim

import (
	"fmt"
	"math/rand/v2"

	"github.com/louhi-db/louhi/internal/hrana"
	"github.com/louhi-db/louhi/internal/workload"
)

// FaultClass tags the outcome of one fault decision.
type FaultClass string

const (
	// ClassNormal sends the well-formed request and expects success.
	ClassNormal FaultClass = "normal"
	// ClassEmpty sends a zero-length message and expects rejection.
	ClassEmpty FaultClass = "empty"
	// ClassFuzzed sends literal noise bytes and expects rejection.
	ClassFuzzed FaultClass = "fuzzed"
)

// FaultSource yields one uniform draw in [0, 1) per request cycle.
//
// Implemented by RandSource (production) and ScriptedSource (tests), the
// seam that keeps test traces predictable without knowing generator output.
type FaultSource interface {
	Draw() float64
}

// RandSource draws from the run's seeded generator.
type RandSource struct {
	r *rand.Rand
}

// NewRandSource wraps the context's generator.
func NewRandSource(r *rand.Rand) *RandSource {
	return &RandSource{r: r}
}

// Draw returns the next uniform value.
func (s *RandSource) Draw() float64 {
	return s.r.Float64()
}

// ScriptedSource replays a fixed sequence of draws, repeating it when
// exhausted. Used by tests and harness scenarios.
type ScriptedSource struct {
	draws []float64
	next  int
}

// NewScriptedSource creates a source from explicit draws.
func NewScriptedSource(draws ...float64) *ScriptedSource {
	if len(draws) == 0 {
		draws = []float64{1} // never below any probability
	}
	return &ScriptedSource{draws: draws}
}

// Draw returns the next scripted value.
func (s *ScriptedSource) Draw() float64 {
	v := s.draws[s.next%len(s.draws)]
	s.next++
	return v
}

// Decision couples a fault class with the payload to transmit and the
// response status the oracle must observe. The expectation and the payload
// come from one draw; they are never independent.
type Decision struct {
	Class      FaultClass
	Payload    []byte
	WantStatus int
}

// Injector decides, once per cycle, whether to emit the conformant request
// or the active policy's fault.
type Injector struct {
	source    FaultSource
	policy    workload.Policy
	host      string
	statement string
	okStatus  int
}

// NewInjector builds an injector for the named policy of the workload.
func NewInjector(spec *workload.Spec, policyName string, source FaultSource) (*Injector, error) {
	policy, err := spec.Policy(policyName)
	if err != nil {
		return nil, err
	}
	return &Injector{
		source:    source,
		policy:    policy,
		host:      spec.Host,
		statement: spec.Statement,
		okStatus:  spec.OKStatus,
	}, nil
}

// Decide draws exactly once and returns the cycle's decision.
func (in *Injector) Decide() (Decision, error) {
	draw := in.source.Draw()
	if draw < in.policy.Probability {
		switch in.policy.Class {
		case workload.ClassEmpty:
			return Decision{Class: ClassEmpty, WantStatus: in.policy.RejectStatus}, nil
		case workload.ClassFuzzed:
			return Decision{
				Class:      ClassFuzzed,
				Payload:    []byte(in.policy.Noise),
				WantStatus: in.policy.RejectStatus,
			}, nil
		default:
			return Decision{}, fmt.Errorf("policy has unknown fault class %q", in.policy.Class)
		}
	}

	payload, err := in.buildRequest()
	if err != nil {
		return Decision{}, err
	}
	return Decision{Class: ClassNormal, Payload: payload, WantStatus: in.okStatus}, nil
}

// buildRequest serializes the conformant pipelined execute. Built fresh
// every cycle; the framing recomputes Content-Length from the actual body.
func (in *Injector) buildRequest() ([]byte, error) {
	body, err := hrana.EncodeMsg(hrana.NewExecutePipeline(in.statement, true))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return hrana.BuildRequest(in.host, body), nil
}
