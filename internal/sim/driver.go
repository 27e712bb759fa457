package sim

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/louhi-db/louhi/internal/ioloop"
	"github.com/louhi-db/louhi/internal/trace"
)

// Driver wires injector, oracle, and scheduler into the request cycle:
// connect, build and decide, send, receive, validate, repeat. The cycle is
// unbounded unless WithMaxCycles bounds it.
type Driver struct {
	loop     *ioloop.Loop
	ctx      *Context
	injector *Injector
	oracle   *Oracle
	addr     string

	metrics   *Collector
	maxCycles int

	client  ioloop.Handle
	cycle   int
	pending Decision
	done    bool
	failure error
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithMaxCycles bounds the run to n cycles. Zero means unbounded.
func WithMaxCycles(n int) DriverOption {
	return func(d *Driver) {
		d.maxCycles = n
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *Collector) DriverOption {
	return func(d *Driver) {
		d.metrics = c
	}
}

// NewDriver creates a driver targeting the pipeline server at addr.
func NewDriver(loop *ioloop.Loop, ctx *Context, injector *Injector, oracle *Oracle, addr string, opts ...DriverOption) *Driver {
	d := &Driver{
		loop:     loop,
		ctx:      ctx,
		injector: injector,
		oracle:   oracle,
		addr:     addr,
		client:   ioloop.InvalidHandle,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start opens the client connection; the first cycle begins when it
// establishes.
func (d *Driver) Start() error {
	h, err := d.loop.Socket()
	if err != nil {
		return err
	}
	d.client = h
	return d.loop.Connect(h, d.addr, d.onConnected)
}

// Run advances the loop one tick at a time until the run completes, fails,
// or ctx is cancelled. Transport errors surface from the loop; oracle
// failures surface as the driver's own terminal error.
func (d *Driver) Run(ctx context.Context) error {
	for !d.done {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := d.loop.Tick(); err != nil {
			return err
		}
	}
	return d.failure
}

// Cycle returns the number of completed cycles.
func (d *Driver) Cycle() int {
	return d.cycle
}

func (d *Driver) onConnected(l *ioloop.Loop, h ioloop.Handle, peer netip.AddrPort) {
	slog.Debug("client connected", "run_id", d.ctx.RunID, "peer", peer.String())
	d.performRequest(l, h)
}

// performRequest runs the FaultDecided and Sending states for one cycle.
func (d *Driver) performRequest(l *ioloop.Loop, h ioloop.Handle) {
	decision, err := d.injector.Decide()
	if err != nil {
		d.fail(err)
		return
	}
	d.pending = decision
	if d.metrics != nil {
		d.metrics.Faults.WithLabelValues(string(decision.Class)).Inc()
	}
	slog.Debug("cycle start", "cycle", d.cycle, "class", decision.Class, "len", len(decision.Payload))
	if err := l.Send(h, decision.Payload, len(decision.Payload), d.onSent); err != nil {
		d.fail(err)
	}
}

func (d *Driver) onSent(l *ioloop.Loop, h ioloop.Handle, n int) {
	if err := l.Recv(h, d.onResponse); err != nil {
		d.fail(err)
	}
}

// onResponse validates the cycle and immediately chains into the next one.
func (d *Driver) onResponse(l *ioloop.Loop, h ioloop.Handle, buf []byte, n int, eof bool) {
	if eof {
		d.fail(fmt.Errorf("server closed connection on cycle %d", d.cycle))
		return
	}
	status, err := d.oracle.Check(buf[:n], d.pending)
	d.ctx.Recorder.Append(trace.Event{
		Cycle:      d.cycle,
		Class:      string(d.pending.Class),
		RequestLen: len(d.pending.Payload),
		Status:     status,
	})
	if d.metrics != nil {
		d.metrics.Cycles.Inc()
		verdict := "match"
		if err != nil {
			verdict = "mismatch"
		}
		d.metrics.OracleVerdicts.WithLabelValues(verdict).Inc()
	}
	if err != nil {
		d.fail(err)
		return
	}
	slog.Debug("cycle ok", "cycle", d.cycle, "class", d.pending.Class, "status", status)

	d.cycle++
	if d.maxCycles > 0 && d.cycle >= d.maxCycles {
		d.done = true
		return
	}
	d.performRequest(l, h)
}

// fail records the terminal failure; the loop itself may still be healthy
// (an oracle mismatch is a finding, not a transport fault), so Run unwinds
// through done rather than aborting the loop.
func (d *Driver) fail(err error) {
	if d.failure == nil {
		d.failure = err
	}
	d.done = true
}
