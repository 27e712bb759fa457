// Package server bootstraps the pipeline endpoint on the simulator's event
// loop: accept connections, parse one HTTP request per delivery, execute the
// pipeline against the resource manager, respond, repeat.
package server

import (
	"log/slog"
	"net/http"
	"net/netip"
	"strings"

	"github.com/louhi-db/louhi/internal/hrana"
	"github.com/louhi-db/louhi/internal/ioloop"
	"github.com/louhi-db/louhi/internal/manager"
)

// Server wires inbound connections into pipeline handling. The simulator
// never inspects its internals, only its responses.
type Server struct {
	mgr *manager.Manager
}

// New creates a server backed by the given resource manager.
func New(mgr *manager.Manager) *Server {
	return &Server{mgr: mgr}
}

// Serve binds addr on the given socket and starts the accept chain.
// Each accepted connection gets a receive continuation that parses,
// executes, responds, and re-arms itself (keep-alive).
func (s *Server) Serve(l *ioloop.Loop, h ioloop.Handle, addr string) error {
	if err := l.Listen(h, addr); err != nil {
		return err
	}
	var onAccept ioloop.AcceptFunc
	onAccept = func(l *ioloop.Loop, conn ioloop.Handle, peer netip.AddrPort) {
		slog.Debug("accepted connection", "conn", conn, "peer", peer.String())
		if err := l.Recv(conn, s.onRequest); err != nil {
			l.Abort(err)
			return
		}
		if err := l.Accept(h, onAccept); err != nil {
			l.Abort(err)
		}
	}
	return l.Accept(h, onAccept)
}

// onRequest handles one delivered request buffer and queues the response.
// Peer shutdown retires the connection; empty requests are still answered.
func (s *Server) onRequest(l *ioloop.Loop, conn ioloop.Handle, buf []byte, n int, eof bool) {
	if eof {
		slog.Debug("peer closed connection", "conn", conn)
		if err := l.Close(conn); err != nil {
			l.Abort(err)
		}
		return
	}
	resp := s.handle(buf[:n])
	err := l.Send(conn, resp, len(resp), func(l *ioloop.Loop, conn ioloop.Handle, _ int) {
		if err := l.Recv(conn, s.onRequest); err != nil {
			l.Abort(err)
		}
	})
	if err != nil {
		l.Abort(err)
	}
}

// handle maps one raw request to raw response bytes. Anything that fails
// before statement execution is a client error; statement failures ride
// inside a 200 as per-step errors.
func (s *Server) handle(buf []byte) []byte {
	req, body, err := hrana.ParseRequest(buf)
	if err != nil {
		return reject(err.Error())
	}
	if req.Method != http.MethodPost || req.URL.Path != hrana.PipelinePath {
		return reject("unsupported request: " + req.Method + " " + req.URL.Path)
	}

	var pipeline hrana.PipelineReq
	if err := hrana.DecodeMsg(body, &pipeline); err != nil {
		return reject(err.Error())
	}

	db, err := s.mgr.Database(databaseName(req.Host))
	if err != nil {
		return reject(err.Error())
	}

	results := make([]hrana.StreamResult, 0, len(pipeline.Requests))
	for _, r := range pipeline.Requests {
		if r.Type != "execute" {
			results = append(results, hrana.ErrResult("unsupported stream request: "+r.Type))
			continue
		}
		results = append(results, db.Execute(r.Stmt))
	}

	out, err := hrana.EncodeMsg(hrana.PipelineResp{Results: results})
	if err != nil {
		// Results are built from our own types; this cannot fail in
		// practice, but a broken response must not masquerade as a 200.
		return reject(err.Error())
	}
	return hrana.FormatResponse(http.StatusOK, "application/json", out)
}

// databaseName maps a virtual host to a database name: strip any port, then
// the .localhost suffix ("test.localhost" -> "test").
func databaseName(host string) string {
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return strings.TrimSuffix(host, ".localhost")
}

func reject(reason string) []byte {
	return hrana.FormatResponse(http.StatusBadRequest, "text/plain", []byte(reason))
}
