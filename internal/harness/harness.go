package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/louhi-db/louhi/internal/ioloop"
	"github.com/louhi-db/louhi/internal/manager"
	"github.com/louhi-db/louhi/internal/server"
	"github.com/louhi-db/louhi/internal/sim"
	"github.com/louhi-db/louhi/internal/trace"
	"github.com/louhi-db/louhi/internal/workload"
)

// runTimeout bounds a scenario run. Scenarios exchange a handful of
// messages over loopback, so hitting this means the loop wedged.
const runTimeout = 30 * time.Second

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh database directory and its own event
// loop for isolation. Scripted draws make the run reproducible.
//
// Execution flow:
// 1. Compile the workload (scenario file or built-in default)
// 2. Create a throwaway data directory and the named database
// 3. Boot the server and driver on one event loop over loopback
// 4. Run the scripted cycles
// 5. Evaluate assertions against the recorded trace
func Run(scenario *Scenario) (*Result, error) {
	spec, err := loadWorkload(scenario)
	if err != nil {
		return nil, err
	}
	if _, err := spec.Policy(scenario.Policy); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", scenario.Name, err)
	}

	dataDir, err := os.MkdirTemp("", "louhi-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	defer os.RemoveAll(dataDir)

	mgr, err := manager.New(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create manager: %w", err)
	}
	defer mgr.Close()
	if err := mgr.CreateDatabase(spec.Database); err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	loop := ioloop.New(ioloop.WithPollTimeout(200 * time.Millisecond))
	ls, err := loop.Socket()
	if err != nil {
		return nil, fmt.Errorf("failed to open listener socket: %w", err)
	}
	if err := server.New(mgr).Serve(loop, ls, "127.0.0.1:0"); err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}
	addr, err := loop.LocalAddr(ls)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve listener address: %w", err)
	}

	// Seed 0 marks the trace as scripted rather than seeded.
	recorder := trace.NewRecorder(scenario.Policy, 0)
	sctx := sim.NewContext(0, mgr, recorder)

	injector, err := sim.NewInjector(spec, scenario.Policy, sim.NewScriptedSource(scenario.Draws...))
	if err != nil {
		return nil, fmt.Errorf("failed to build injector: %w", err)
	}

	// Capture oracle diagnostics so a mismatch surfaces in the result
	// instead of spilling to stderr mid-test.
	var diag bytes.Buffer
	driver := sim.NewDriver(loop, sctx, injector, sim.NewOracle(&diag), addr.String(),
		sim.WithMaxCycles(scenario.Cycles))
	if err := driver.Start(); err != nil {
		return nil, fmt.Errorf("failed to start driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	result := NewResult()
	if err := driver.Run(ctx); err != nil {
		msg := fmt.Sprintf("run failed: %v", err)
		if diag.Len() > 0 {
			msg += "\n" + diag.String()
		}
		result.AddError(msg)
	}
	result.Snapshot = recorder.Snapshot()

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

// loadWorkload compiles the scenario's workload file, or the built-in
// default when none is named.
func loadWorkload(scenario *Scenario) (*workload.Spec, error) {
	if scenario.Workload == "" {
		return workload.Default()
	}
	spec, err := workload.CompileFile(scenario.Workload)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", scenario.Name, err)
	}
	return spec, nil
}
