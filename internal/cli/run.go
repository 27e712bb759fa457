package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/louhi-db/louhi/internal/ioloop"
	"github.com/louhi-db/louhi/internal/manager"
	"github.com/louhi-db/louhi/internal/server"
	"github.com/louhi-db/louhi/internal/sim"
	"github.com/louhi-db/louhi/internal/trace"
	"github.com/louhi-db/louhi/internal/workload"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Policy      string
	Workload    string
	DataDir     string
	Listen      string
	Cycles      int
	MetricsAddr string

	// Source allows overriding the fault-draw source (for testing).
	// If nil, defaults to the run's seeded generator.
	Source sim.FaultSource
}

// RunSummary is printed after a bounded run completes.
type RunSummary struct {
	Seed      uint64         `json:"seed"`
	Policy    string         `json:"policy"`
	Cycles    int            `json:"cycles"`
	ByClass   map[string]int `json:"by_class"`
	TraceHash string         `json:"trace_hash"`
}

func (s RunSummary) String() string {
	return fmt.Sprintf("Completed %d cycles (policy %s, seed %d): %v\nTrace hash: %s",
		s.Cycles, s.Policy, s.Seed, s.ByClass, s.TraceHash)
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the fault-injection simulation",
		Long: `Run the client/server simulation loop.

The simulator boots the pipeline server and a driver on one event loop,
then repeatedly builds a request, consults the fault policy, sends the
(possibly faulted) bytes, and validates the response status.

The seed is taken from the SEED environment variable when set, otherwise
drawn at random. Either way it is logged, so a failing run can always be
replayed with the identical fault sequence.

Exit codes:
  0 - Run completed (or stopped by signal)
  1 - Oracle mismatch or transport failure
  2 - Command error (bad workload, unknown policy, etc.)

Examples:
  louhi-sim run --policy presence --cycles 1000
  SEED=42 louhi-sim run --policy corruption --workload ./workload.cue
  louhi-sim run --policy presence --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Policy, "policy", "presence", "fault policy to exercise")
	cmd.Flags().StringVar(&opts.Workload, "workload", "", "path to a workload CUE file (default: built-in)")
	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "", "database directory (default: throwaway temp dir)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "127.0.0.1:0", "server listen address")
	cmd.Flags().IntVar(&opts.Cycles, "cycles", 0, "number of cycles to run (0 = until interrupted)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runSimulation(opts *RunOptions, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	seed, err := sim.ResolveSeed()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve seed", err)
	}

	spec, err := loadWorkloadSpec(opts.Workload)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile workload", err)
	}
	if _, err := spec.Policy(opts.Policy); err != nil {
		return WrapExitError(ExitCommandError, "unknown policy", err)
	}

	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir, err = os.MkdirTemp("", "louhi-sim-*")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create data dir", err)
		}
		defer os.RemoveAll(dataDir)
	}

	slog.Info("opening database", "data_dir", dataDir, "database", spec.Database)
	mgr, err := manager.New(dataDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create manager", err)
	}
	defer func() {
		if closeErr := mgr.Close(); closeErr != nil {
			slog.Error("error closing databases", "error", closeErr)
		}
	}()
	if err := mgr.CreateDatabase(spec.Database); err != nil {
		return WrapExitError(ExitCommandError, "failed to create database", err)
	}

	loop := ioloop.New()
	ls, err := loop.Socket()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open listener socket", err)
	}
	if err := server.New(mgr).Serve(loop, ls, opts.Listen); err != nil {
		return WrapExitError(ExitCommandError, "failed to start server", err)
	}
	addr, err := loop.LocalAddr(ls)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve listener address", err)
	}

	recorder := trace.NewRecorder(opts.Policy, seed)
	sctx := sim.NewContext(seed, mgr, recorder)

	source := opts.Source
	if source == nil {
		source = sim.NewRandSource(sctx.Rand)
	}
	injector, err := sim.NewInjector(spec, opts.Policy, source)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build injector", err)
	}

	driverOpts := []sim.DriverOption{sim.WithMaxCycles(opts.Cycles)}
	if opts.MetricsAddr != "" {
		collector, err := sim.NewCollector(prometheus.DefaultRegisterer)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to register metrics", err)
		}
		driverOpts = append(driverOpts, sim.WithMetrics(collector))
		go serveMetrics(opts.MetricsAddr)
	}

	oracle := sim.NewOracle(cmd.ErrOrStderr())
	driver := sim.NewDriver(loop, sctx, injector, oracle, addr.String(), driverOpts...)
	if err := driver.Start(); err != nil {
		return WrapExitError(ExitCommandError, "failed to start driver", err)
	}

	// Setup signal handling for graceful shutdown.
	// Use command's context if available (for testing), otherwise create one.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("simulation starting",
		"seed", seed,
		"run_id", sctx.RunID,
		"policy", opts.Policy,
		"addr", addr,
		"cycles", opts.Cycles,
	)

	if err := driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		var mismatch *sim.MismatchError
		if errors.As(err, &mismatch) {
			return WrapExitError(ExitFailure, "oracle mismatch", err)
		}
		return WrapExitError(ExitFailure, "simulation error", err)
	}

	snapshot := recorder.Snapshot()
	hash, err := snapshot.Hash()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to hash trace", err)
	}

	summary := RunSummary{
		Seed:      seed,
		Policy:    opts.Policy,
		Cycles:    driver.Cycle(),
		ByClass:   snapshot.CountByClass(),
		TraceHash: hash,
	}
	slog.Info("simulation finished", "cycles", summary.Cycles, "trace_hash", hash)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	return formatter.Success(summary)
}

// loadWorkloadSpec compiles the named workload file, or the built-in
// default when path is empty.
func loadWorkloadSpec(path string) (*workload.Spec, error) {
	if path == "" {
		return workload.Default()
	}
	return workload.CompileFile(path)
}

// serveMetrics exposes the default registry for scraping. Errors are
// logged rather than fatal: metrics are diagnostics, not the simulation.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server failed", "addr", addr, "error", err)
	}
}
