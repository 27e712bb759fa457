package workload

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed default.cue
var defaultCUE string

// Fault classes a policy may name.
const (
	ClassEmpty  = "empty"
	ClassFuzzed = "fuzzed"
)

// CompileError is a workload spec error with source position when known.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Pos != token.NoPos {
		return fmt.Sprintf("%s: %s: %s", e.Pos, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default compiles the embedded default workload.
func Default() (*Spec, error) {
	return CompileSource(defaultCUE)
}

// CompileFile compiles a workload spec from a CUE file.
func CompileFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workload: %w", err)
	}
	return CompileSource(string(data))
}

// CompileSource compiles CUE source text containing a top-level workload
// struct.
func CompileSource(src string) (*Spec, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(v.LookupPath(cue.ParsePath("workload")))
}

// Compile parses a CUE value into a Spec.
func Compile(v cue.Value) (*Spec, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: "workload", Message: "workload struct is required"}
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &Spec{OKStatus: 200, Policies: make(map[string]Policy)}

	var err error
	if spec.Database, err = requiredString(v, "database"); err != nil {
		return nil, err
	}
	if spec.Host, err = requiredString(v, "host"); err != nil {
		return nil, err
	}
	if spec.Statement, err = requiredString(v, "statement"); err != nil {
		return nil, err
	}

	if sv := v.LookupPath(cue.ParsePath("ok_status")); sv.Exists() {
		n, err := sv.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.OKStatus = int(n)
	}

	pv := v.LookupPath(cue.ParsePath("policies"))
	if !pv.Exists() {
		return nil, &CompileError{Field: "policies", Message: "at least one policy is required", Pos: v.Pos()}
	}
	iter, err := pv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		policy, err := compilePolicy(name, iter.Value())
		if err != nil {
			return nil, err
		}
		spec.Policies[name] = policy
	}
	if len(spec.Policies) == 0 {
		return nil, &CompileError{Field: "policies", Message: "at least one policy is required", Pos: pv.Pos()}
	}

	return spec, nil
}

func compilePolicy(name string, v cue.Value) (Policy, error) {
	var p Policy
	var err error

	if p.Class, err = requiredString(v, "class"); err != nil {
		return p, err
	}
	if p.Class != ClassEmpty && p.Class != ClassFuzzed {
		return p, &CompileError{
			Field:   name + ".class",
			Message: fmt.Sprintf("unknown fault class %q", p.Class),
			Pos:     v.Pos(),
		}
	}

	prob := v.LookupPath(cue.ParsePath("probability"))
	if !prob.Exists() {
		return p, &CompileError{Field: name + ".probability", Message: "probability is required", Pos: v.Pos()}
	}
	if p.Probability, err = prob.Float64(); err != nil {
		return p, formatCUEError(err)
	}
	if p.Probability < 0 || p.Probability > 1 {
		return p, &CompileError{
			Field:   name + ".probability",
			Message: fmt.Sprintf("probability %v out of [0, 1]", p.Probability),
			Pos:     prob.Pos(),
		}
	}

	p.RejectStatus = 400
	if rs := v.LookupPath(cue.ParsePath("reject_status")); rs.Exists() {
		n, err := rs.Int64()
		if err != nil {
			return p, formatCUEError(err)
		}
		p.RejectStatus = int(n)
	}

	if nv := v.LookupPath(cue.ParsePath("noise")); nv.Exists() {
		if p.Noise, err = nv.String(); err != nil {
			return p, formatCUEError(err)
		}
	}
	if p.Class == ClassFuzzed && p.Noise == "" {
		return p, &CompileError{Field: name + ".noise", Message: "fuzzed policy requires noise bytes", Pos: v.Pos()}
	}

	return p, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if s == "" {
		return "", &CompileError{Field: field, Message: field + " must not be empty", Pos: fv.Pos()}
	}
	return s, nil
}

// formatCUEError extracts the first positioned error from a CUE error list.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return fmt.Errorf("%s: %s", positions[0], firstErr.Error())
	}
	return firstErr
}
