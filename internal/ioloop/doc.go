// Package ioloop implements the simulator's single-threaded continuation
// scheduler over non-blocking sockets.
//
// ARCHITECTURE:
//
// Socket Arena:
// Every socket lives in a central registry indexed by an integer Handle.
// Continuations capture handles, never file descriptors or pointers, so the
// lifetime of a socket is explicit: created by Socket or an accept, retired
// by Close, and its slot recycled only after retirement.
//
// Tick Dispatch:
// Tick performs exactly one readiness poll and invokes the continuation of
// each completed operation synchronously, in registration order. A
// continuation runs with full access to the loop and may register new
// operations; those are dispatched on a later tick, never the current one.
// This chains request/response cycles into an unbounded logical sequence
// without growing the call stack.
//
// Pending Operations:
// At most one pending operation of a given kind may exist per socket.
// Registering a second one is a protocol violation and fails immediately.
// Partial writes are retried inside the loop across ticks; the send
// continuation fires once the requested length has been written. A recv
// completes with eof set when the peer has shut down; a zero-length
// in-process delivery completes with eof clear.
//
// Determinism:
// Ready operations dispatch in registration order within a tick, which
// removes kernel fd-ordering as a source of jitter. Readiness arrival
// *across* ticks still depends on kernel scheduling, so bit-for-bit
// reproducibility across machines is not guaranteed.
//
// Failure semantics are fail-fast: any socket-level OS error is recorded as
// the loop's terminal error and surfaces from Tick. The loop is an oracle
// harness, not a production server; silent retry would mask bugs under test.
package ioloop
