package ioloop

import (
	"fmt"
	"net/netip"
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

const (
	defaultPollTimeout = time.Second
	listenBacklog      = 64
	recvBufSize        = 64 << 10
)

// Loop multiplexes non-blocking socket operations without threads.
//
// All methods must be called from the single thread of control that calls
// Tick; continuations run synchronously inside Tick with full access to the
// loop. See the package documentation for the dispatch and failure model.
type Loop struct {
	entries []socketEntry
	free    []Handle
	seq     int64

	// byLocal maps a connecting socket's bound local address to its handle
	// so the accepting side can pair the two arena entries.
	byLocal map[netip.AddrPort]Handle

	pollMillis int
	fatal      error
}

// Option configures a Loop.
type Option func(*Loop)

// WithPollTimeout bounds how long a tick blocks waiting for readiness.
// An idle tick (nothing became ready) returns nil. Default is one second.
func WithPollTimeout(d time.Duration) Option {
	return func(l *Loop) {
		l.pollMillis = int(d.Milliseconds())
	}
}

// New creates an empty loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		byLocal:    make(map[netip.AddrPort]Handle),
		pollMillis: int(defaultPollTimeout.Milliseconds()),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Socket creates a non-blocking IPv4 stream socket and returns its handle.
func (l *Loop) Socket() (Handle, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return InvalidHandle, socketError("socket", InvalidHandle, err)
	}
	return l.alloc(fd), nil
}

// Listen binds the socket to addr and begins accepting. Newly accepted
// connections carry no implicit continuation; register interest with Accept.
func (l *Loop) Listen(h Handle, addr string) error {
	e, err := l.entry("listen", h)
	if err != nil {
		return err
	}
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return &LoopError{Code: ErrCodeAddress, Op: "listen", Handle: h, Err: err}
	}
	sa, err := sockaddr(ap)
	if err != nil {
		return &LoopError{Code: ErrCodeAddress, Op: "listen", Handle: h, Err: err}
	}
	if err := unix.SetsockoptInt(e.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return socketError("listen", h, err)
	}
	if err := unix.Bind(e.fd, sa); err != nil {
		return socketError("listen", h, err)
	}
	if err := unix.Listen(e.fd, listenBacklog); err != nil {
		return socketError("listen", h, err)
	}
	e.listening = true
	// Resolve the bound address; addr may have requested port 0.
	lsa, err := unix.Getsockname(e.fd)
	if err != nil {
		return socketError("listen", h, err)
	}
	e.local = addrPort(lsa)
	return nil
}

// LocalAddr returns the socket's bound local address.
func (l *Loop) LocalAddr(h Handle) (netip.AddrPort, error) {
	e, err := l.entry("localaddr", h)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return e.local, nil
}

// Accept registers one-shot interest in the next inbound connection on a
// listening socket. The continuation typically re-registers.
func (l *Loop) Accept(h Handle, fn AcceptFunc) error {
	e, err := l.entry("accept", h)
	if err != nil {
		return err
	}
	if !e.listening {
		return socketError("accept", h, unix.EINVAL)
	}
	return l.register(e, h, &pendingOp{kind: opAccept, accept: fn})
}

// Connect initiates a non-blocking connection attempt and registers fn to
// fire exactly once when the connection is established.
func (l *Loop) Connect(h Handle, addr string, fn ConnectFunc) error {
	e, err := l.entry("connect", h)
	if err != nil {
		return err
	}
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return &LoopError{Code: ErrCodeAddress, Op: "connect", Handle: h, Err: err}
	}
	sa, err := sockaddr(ap)
	if err != nil {
		return &LoopError{Code: ErrCodeAddress, Op: "connect", Handle: h, Err: err}
	}
	if err := unix.Connect(e.fd, sa); err != nil && err != unix.EINPROGRESS {
		return socketError("connect", h, err)
	}
	// The kernel binds an ephemeral local address on connect; record it so
	// the accepting side can pair the two ends.
	lsa, err := unix.Getsockname(e.fd)
	if err != nil {
		return socketError("connect", h, err)
	}
	e.local = addrPort(lsa)
	l.byLocal[e.local] = h
	return l.register(e, h, &pendingOp{kind: opConnect, connect: fn})
}

// Send submits buf for transmission. fn fires once want bytes have been
// written; partial writes are retried by the loop without caller involvement.
// A send with want == 0 performs no kernel I/O and is delivered to the
// in-process peer as a zero-length message.
func (l *Loop) Send(h Handle, buf []byte, want int, fn SendFunc) error {
	e, err := l.entry("send", h)
	if err != nil {
		return err
	}
	if want < 0 || want > len(buf) {
		return &LoopError{
			Code:   ErrCodeShortBuffer,
			Op:     "send",
			Handle: h,
			Err:    fmt.Errorf("want %d bytes, buffer holds %d", want, len(buf)),
		}
	}
	return l.register(e, h, &pendingOp{kind: opSend, send: fn, buf: buf, want: want})
}

// Recv registers one-shot interest in inbound data. fn fires once with a
// byte slice and its length, or with eof set when the peer has shut down;
// no reassembly across deliveries is performed.
func (l *Loop) Recv(h Handle, fn RecvFunc) error {
	e, err := l.entry("recv", h)
	if err != nil {
		return err
	}
	return l.register(e, h, &pendingOp{kind: opRecv, recv: fn})
}

// Close retires the socket, dropping any pending operations. The handle's
// slot may be recycled by a later Socket or accept.
func (l *Loop) Close(h Handle) error {
	e, err := l.entry("close", h)
	if err != nil {
		return err
	}
	for k := range e.pending {
		e.pending[k] = nil
	}
	delete(l.byLocal, e.local)
	if e.peer != InvalidHandle && int(e.peer) < len(l.entries) {
		l.entries[e.peer].peer = InvalidHandle
	}
	if err := unix.Close(e.fd); err != nil {
		return socketError("close", h, err)
	}
	e.retired = true
	l.free = append(l.free, h)
	return nil
}

// Abort records a terminal error on the loop. The next Tick returns it.
// Continuations use this to fail the run from inside a dispatch.
func (l *Loop) Abort(err error) {
	if l.fatal == nil {
		l.fatal = err
	}
}

// Err returns the loop's terminal error, if any.
func (l *Loop) Err() error {
	return l.fatal
}

// opRef pairs a handle with one of its pending operations for dispatch.
type opRef struct {
	h  Handle
	op *pendingOp
}

// Tick performs exactly one readiness pass: poll all registered interests,
// then invoke the continuation of each ready operation in registration
// order, removing the registration before the continuation runs.
// Operations registered during this tick dispatch on a later tick.
func (l *Loop) Tick() error {
	if l.fatal != nil {
		return l.fatal
	}
	tickSeq := l.seq

	// Snapshot registered operations. Zero-length sends and queued
	// zero-length deliveries are ready without kernel I/O.
	var ops []opRef
	immediate := false
	for i := range l.entries {
		e := &l.entries[i]
		if e.retired {
			continue
		}
		for k := range e.pending {
			op := e.pending[k]
			if op == nil || op.seq > tickSeq {
				continue
			}
			ops = append(ops, opRef{Handle(i), op})
			if op.kind == opSend && op.want == 0 {
				immediate = true
			}
			if op.kind == opRecv && e.zeroQueued {
				immediate = true
			}
		}
	}
	if len(ops) == 0 {
		return nil
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].op.seq < ops[j].op.seq })

	// Union of kernel readiness interests per fd.
	events := make(map[int]int16)
	for _, r := range ops {
		e := &l.entries[r.h]
		switch r.op.kind {
		case opAccept:
			events[e.fd] |= unix.POLLIN
		case opConnect:
			events[e.fd] |= unix.POLLOUT
		case opSend:
			if r.op.want > 0 {
				events[e.fd] |= unix.POLLOUT
			}
		case opRecv:
			if !e.zeroQueued {
				events[e.fd] |= unix.POLLIN
			}
		}
	}
	var fds []unix.PollFd
	for fd, ev := range events {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: ev})
	}
	if len(fds) > 0 {
		timeout := l.pollMillis
		if immediate {
			timeout = 0
		}
		if _, err := unix.Poll(fds, timeout); err != nil {
			if err == unix.EINTR {
				return nil // interrupted pass counts as an idle tick
			}
			l.fatal = socketError("poll", InvalidHandle, err)
			return l.fatal
		}
	}
	revents := make(map[int]int16, len(fds))
	for _, p := range fds {
		revents[int(p.Fd)] = p.Revents
	}

	for _, r := range ops {
		if l.fatal != nil {
			break
		}
		e := &l.entries[r.h]
		// An earlier continuation may have closed the socket this tick.
		if e.retired || e.pending[r.op.kind] != r.op {
			continue
		}
		l.dispatch(r.h, r.op, revents[e.fd])
	}
	return l.fatal
}

// dispatch completes one operation if it is ready. The entry is re-resolved
// from the arena as needed: continuations and accepts may grow the arena and
// invalidate pointers taken before them.
func (l *Loop) dispatch(h Handle, op *pendingOp, rev int16) {
	const readable = unix.POLLIN | unix.POLLERR | unix.POLLHUP
	const writable = unix.POLLOUT | unix.POLLERR | unix.POLLHUP

	e := &l.entries[h]
	switch op.kind {
	case opAccept:
		if rev&readable == 0 {
			return
		}
		nfd, rsa, err := unix.Accept4(e.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return // spurious readiness; keep the registration
		}
		if err != nil {
			l.fatal = socketError("accept", h, err)
			return
		}
		e.pending[opAccept] = nil
		conn := l.alloc(nfd) // may grow the arena; e is dead past this point
		peer := addrPort(rsa)
		ce := &l.entries[conn]
		ce.remote = peer
		if lsa, err := unix.Getsockname(nfd); err == nil {
			ce.local = addrPort(lsa)
		}
		// Pair with the in-process connecting end, if it lives here.
		if ch, ok := l.byLocal[peer]; ok {
			ce.peer = ch
			l.entries[ch].peer = conn
		}
		op.accept(l, conn, peer)

	case opConnect:
		if rev&writable == 0 {
			return
		}
		soerr, err := unix.GetsockoptInt(e.fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			l.fatal = socketError("connect", h, err)
			return
		}
		if soerr != 0 {
			l.fatal = socketError("connect", h, unix.Errno(soerr))
			return
		}
		rsa, err := unix.Getpeername(e.fd)
		if err != nil {
			l.fatal = socketError("connect", h, err)
			return
		}
		e.remote = addrPort(rsa)
		e.pending[opConnect] = nil
		op.connect(l, h, e.remote)

	case opSend:
		if op.want == 0 {
			e.pending[opSend] = nil
			if e.peer != InvalidHandle {
				if pe := &l.entries[e.peer]; !pe.retired {
					pe.zeroQueued = true
				}
			}
			op.send(l, h, 0)
			return
		}
		if rev&writable == 0 {
			return
		}
		for op.written < op.want {
			n, err := unix.Write(e.fd, op.buf[op.written:op.want])
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return // partial write; retry on a later tick
			}
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				l.fatal = socketError("send", h, err)
				return
			}
			op.written += n
		}
		e.pending[opSend] = nil
		op.send(l, h, op.written)

	case opRecv:
		if e.zeroQueued {
			e.zeroQueued = false
			e.pending[opRecv] = nil
			op.recv(l, h, nil, 0, false)
			return
		}
		if rev&readable == 0 {
			return
		}
		buf := make([]byte, recvBufSize)
		n, err := unix.Read(e.fd, buf)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return
		}
		if err != nil {
			l.fatal = socketError("recv", h, err)
			return
		}
		e.pending[opRecv] = nil
		if n == 0 {
			// A kernel read of zero bytes on a stream socket is always
			// peer shutdown; zero-length deliveries never reach read(2).
			op.recv(l, h, nil, 0, true)
			return
		}
		op.recv(l, h, buf[:n], n, false)
	}
}
