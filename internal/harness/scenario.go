package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// Scenarios replay a scripted sequence of fault draws through a full
// client/server round trip and assert on the resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policy names the fault policy to exercise (e.g. "presence").
	Policy string `yaml:"policy"`

	// Workload is an optional path to a workload CUE file.
	// Relative paths resolve against the scenario file location.
	// Empty means the built-in default workload.
	Workload string `yaml:"workload,omitempty"`

	// Cycles is the number of request/response cycles to run.
	Cycles int `yaml:"cycles"`

	// Draws is the scripted fault-draw sequence. The injector consumes
	// one draw per cycle and repeats the list when exhausted.
	Draws []float64 `yaml:"draws"`

	// Assertions validate the recorded trace.
	// Supported types: cycle_count, class_count, class_order, status
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates the recorded trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "cycle_count": Check the trace holds exactly Count events
	// - "class_count": Check Class appears exactly Count times
	// - "class_order": Check classes appear in order (non-consecutive allowed)
	// - "status": Check every event of Class carries Status
	Type string `yaml:"type"`

	// Class is the fault class (used by class_count, status).
	Class string `yaml:"class,omitempty"`

	// Count is the expected number of occurrences (used by cycle_count, class_count).
	Count int `yaml:"count,omitempty"`

	// Status is the expected HTTP status (used by status).
	Status int `yaml:"status,omitempty"`

	// Classes is the expected class order (used by class_order).
	Classes []string `yaml:"classes,omitempty"`
}

// Assertion type constants.
const (
	AssertCycleCount = "cycle_count"
	AssertClassCount = "class_count"
	AssertClassOrder = "class_order"
	AssertStatus     = "status"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the workload path relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve the workload path BEFORE validation so the existence check
	// sees the resolved location.
	if scenario.Workload != "" && !filepath.IsAbs(scenario.Workload) && basePath != "" {
		scenario.Workload = filepath.Join(basePath, scenario.Workload)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Policy == "" {
		return fmt.Errorf("policy is required")
	}

	if s.Cycles <= 0 {
		return fmt.Errorf("cycles must be positive")
	}

	if len(s.Draws) == 0 {
		return fmt.Errorf("draws list is required and must be non-empty")
	}
	for i, d := range s.Draws {
		if d < 0 || d >= 1 {
			return fmt.Errorf("draws[%d]: must be in [0, 1), got %v", i, d)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Workload != "" {
		if _, err := os.Stat(s.Workload); os.IsNotExist(err) {
			return fmt.Errorf("workload file not found: %s", s.Workload)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCycleCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for cycle_count", index)
		}
	case AssertClassCount:
		if a.Class == "" {
			return fmt.Errorf("assertions[%d]: class is required for class_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for class_count", index)
		}
	case AssertClassOrder:
		if len(a.Classes) == 0 {
			return fmt.Errorf("assertions[%d]: classes list is required for class_order", index)
		}
	case AssertStatus:
		if a.Class == "" {
			return fmt.Errorf("assertions[%d]: class is required for status", index)
		}
		if a.Status == 0 {
			return fmt.Errorf("assertions[%d]: status is required for status", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
