package harness

import (
	"fmt"
	"strings"

	"github.com/louhi-db/louhi/internal/trace"
)

// AssertionError is returned when an assertion fails.
// It includes the full trace to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Events   []trace.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Events {
		fmt.Fprintf(&buf, "  [%d] %s status=%d len=%d\n",
			event.Cycle, event.Class, event.Status, event.RequestLen)
	}

	return buf.String()
}

// EvaluateAssertions checks all assertions against the recorded trace and
// returns the failure messages. An empty slice means everything held.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		var err error
		switch a.Type {
		case AssertCycleCount:
			err = assertCycleCount(result.Snapshot.Events, a)
		case AssertClassCount:
			err = assertClassCount(result.Snapshot.Events, a)
		case AssertClassOrder:
			err = assertClassOrder(result.Snapshot.Events, a)
		case AssertStatus:
			err = assertStatus(result.Snapshot.Events, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// assertCycleCount checks the trace holds exactly the expected number of
// events.
func assertCycleCount(events []trace.Event, assertion Assertion) error {
	if len(events) == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertCycleCount,
		Expected: fmt.Sprintf("%d cycles", assertion.Count),
		Actual:   fmt.Sprintf("%d cycles", len(events)),
		Events:   events,
	}
}

// assertClassCount checks the class appears exactly the specified number
// of times.
func assertClassCount(events []trace.Event, assertion Assertion) error {
	count := 0
	for _, event := range events {
		if event.Class == assertion.Class {
			count++
		}
	}
	if count == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertClassCount,
		Expected: fmt.Sprintf("class %s appears %d times", assertion.Class, assertion.Count),
		Actual:   fmt.Sprintf("appears %d times", count),
		Events:   events,
	}
}

// assertClassOrder checks the classes appear in the specified order.
// Classes don't need to be consecutive (intervening cycles are allowed).
func assertClassOrder(events []trace.Event, assertion Assertion) error {
	next := 0
	for _, event := range events {
		if next < len(assertion.Classes) && event.Class == assertion.Classes[next] {
			next++
		}
	}
	if next == len(assertion.Classes) {
		return nil
	}
	return &AssertionError{
		Type:     AssertClassOrder,
		Expected: fmt.Sprintf("classes in order: %v", assertion.Classes),
		Actual:   fmt.Sprintf("order broke at %q", assertion.Classes[next]),
		Events:   events,
	}
}

// assertStatus checks every event of the class carries the expected
// status. The class must appear at least once, otherwise the assertion
// would pass vacuously on an empty trace.
func assertStatus(events []trace.Event, assertion Assertion) error {
	seen := 0
	for _, event := range events {
		if event.Class != assertion.Class {
			continue
		}
		seen++
		if event.Status != assertion.Status {
			return &AssertionError{
				Type:     AssertStatus,
				Expected: fmt.Sprintf("class %s always gets status %d", assertion.Class, assertion.Status),
				Actual:   fmt.Sprintf("cycle %d got status %d", event.Cycle, event.Status),
				Events:   events,
			}
		}
	}
	if seen == 0 {
		return &AssertionError{
			Type:     AssertStatus,
			Expected: fmt.Sprintf("at least one %s cycle", assertion.Class),
			Actual:   "class never appeared in trace",
			Events:   events,
		}
	}
	return nil
}
