package ioloop

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// Handle is a stable identifier for a socket in the loop's arena.
// Continuations capture handles; the loop resolves them on each tick.
type Handle int32

// InvalidHandle is never a live socket.
const InvalidHandle Handle = -1

// opKind distinguishes the pending-operation kinds.
type opKind int

const (
	opAccept opKind = iota
	opConnect
	opSend
	opRecv
	opKindCount
)

func (k opKind) String() string {
	switch k {
	case opAccept:
		return "accept"
	case opConnect:
		return "connect"
	case opSend:
		return "send"
	case opRecv:
		return "recv"
	}
	return fmt.Sprintf("opKind(%d)", int(k))
}

// Continuation signatures. Every continuation receives the loop so it can
// register follow-on operations, and the handle it was registered on.
type (
	// AcceptFunc fires once per accepted connection with the new handle.
	AcceptFunc func(l *Loop, conn Handle, peer netip.AddrPort)

	// ConnectFunc fires once when the connection is established.
	ConnectFunc func(l *Loop, h Handle, peer netip.AddrPort)

	// SendFunc fires once the requested length has been written.
	SendFunc func(l *Loop, h Handle, n int)

	// RecvFunc fires once with the delivered bytes; no reassembly is
	// performed. n == 0 with eof false is a zero-length delivery from an
	// in-process peer; eof true reports peer shutdown.
	RecvFunc func(l *Loop, h Handle, buf []byte, n int, eof bool)
)

// pendingOp associates a socket with an operation kind and its continuation.
type pendingOp struct {
	kind opKind
	seq  int64 // registration order; tick dispatch follows this

	accept  AcceptFunc
	connect ConnectFunc
	send    SendFunc
	recv    RecvFunc

	// send state
	buf     []byte
	want    int
	written int
}

// socketEntry is one arena slot.
type socketEntry struct {
	fd        int
	listening bool
	retired   bool

	local  netip.AddrPort
	remote netip.AddrPort

	// peer is the in-process other end of an established connection, when
	// both ends live in the same loop. Used for zero-length delivery.
	peer Handle

	// zeroQueued marks a zero-length transmission awaiting delivery to
	// this socket's pending recv.
	zeroQueued bool

	pending [opKindCount]*pendingOp
}

// alloc places fd in the arena, reusing a retired slot when one exists.
func (l *Loop) alloc(fd int) Handle {
	e := socketEntry{fd: fd, peer: InvalidHandle}
	if n := len(l.free); n > 0 {
		h := l.free[n-1]
		l.free = l.free[:n-1]
		l.entries[h] = e
		return h
	}
	l.entries = append(l.entries, e)
	return Handle(len(l.entries) - 1)
}

// entry resolves a handle, rejecting retired or out-of-range ones.
func (l *Loop) entry(op string, h Handle) (*socketEntry, error) {
	if h < 0 || int(h) >= len(l.entries) {
		return nil, badHandleError(op, h)
	}
	e := &l.entries[h]
	if e.retired {
		return nil, badHandleError(op, h)
	}
	return e, nil
}

// register installs a pending op, enforcing at most one per (socket, kind).
func (l *Loop) register(e *socketEntry, h Handle, op *pendingOp) error {
	if e.pending[op.kind] != nil {
		return fmt.Errorf("register %s on handle %d: %w", op.kind, h, ErrOperationPending)
	}
	l.seq++
	op.seq = l.seq
	e.pending[op.kind] = op
	return nil
}

// sockaddr converts an address to the raw form x/sys wants.
func sockaddr(addr netip.AddrPort) (unix.Sockaddr, error) {
	if !addr.Addr().Is4() {
		return nil, fmt.Errorf("address %s: only IPv4 is supported", addr)
	}
	sa := &unix.SockaddrInet4{Port: int(addr.Port())}
	sa.Addr = addr.Addr().As4()
	return sa, nil
}

// addrPort converts a raw sockaddr back to netip form.
func addrPort(sa unix.Sockaddr) netip.AddrPort {
	if sa4, ok := sa.(*unix.SockaddrInet4); ok {
		return netip.AddrPortFrom(netip.AddrFrom4(sa4.Addr), uint16(sa4.Port))
	}
	return netip.AddrPort{}
}
