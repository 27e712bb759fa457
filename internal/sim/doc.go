// Package sim drives the fault-injection simulation: a seeded fault source,
// an injector that swaps well-formed pipeline requests for malformed ones, a
// response oracle, and the driver that chains them into unbounded cycles on
// the event loop.
//
// Determinism model: the fault source is the only consumer of randomness in
// the core, and the injector draws from it exactly once per cycle, so a
// fixed seed reproduces the same fault sequence and byte-identical request
// buffers at every cycle index regardless of I/O timing jitter. Response
// arrival timing still depends on the kernel; it affects wall-clock pacing,
// never decisions.
//
// Failure model: the simulator is an oracle, not a server. A transport
// error, an unparsable response, or a status that contradicts the injected
// fault class all terminate the run; there is no retry path anywhere.
package sim
