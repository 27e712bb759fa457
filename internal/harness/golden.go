package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario and compares the trace against a golden
// file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Golden files hold the canonical trace serialization and serve as the
// source of truth for expected run behavior.
//
// Returns an error if scenario execution or an assertion fails.
// Test failure (via goldie) occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return err
	}

	if !result.Pass {
		return &AssertionError{
			Type:     "scenario",
			Expected: "all assertions pass",
			Actual:   result.Errors[0],
			Events:   result.Snapshot.Events,
		}
	}
	return nil
}

// AssertGolden compares the given result's trace against a golden file.
// Useful when a scenario has already run and only the comparison is needed.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := result.Snapshot.MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
