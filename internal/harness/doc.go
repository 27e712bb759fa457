// Package harness provides conformance testing for the fault-injection
// simulator.
//
// The harness boots a fresh database manager, server, and driver on an
// in-process event loop, replays a scripted sequence of fault draws, and
// validates the recorded trace against assertions and golden files.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	policy: presence
//	cycles: 4
//	draws: [0.5, 0.05]
//	assertions:
//	  - type: cycle_count
//	    count: 4
//	  - type: class_count
//	    class: empty
//	    count: 2
//	  - type: class_order
//	    classes: [normal, empty]
//	  - type: status
//	    class: empty
//	    status: 400
//
// The draws list repeats for as many cycles as the scenario runs, so a
// single-element list yields a uniform run. Because draws are scripted
// rather than seeded, a scenario's trace is fully determined by its file
// and golden comparison needs no RNG state.
package harness
