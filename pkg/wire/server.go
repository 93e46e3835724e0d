package wire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/pgraph/pgraph/pkg/log"
)

// Handler processes one decoded Request and produces a Response. The
// concrete implementation (in cmd/pgraphd) dispatches on req.Kind to the
// query runtime, a transaction-backed batch write, or an admin operation.
type Handler interface {
	// Handle serves one request. session is whatever Authenticate returned
	// for this connection (nil if AuthRequired is false), opaque to wire
	// itself — the Handler implementation is the only side that knows its
	// concrete type and uses it to authorize the request.
	Handle(ctx context.Context, session interface{}, req Request) Response
	// Authenticate validates the first request on a connection and returns
	// a session value threaded into every later Handle call on the same
	// connection. Returning ok=false rejects the connection with 401.
	Authenticate(req Request) (session interface{}, ok bool)
	// AuthRequired reports whether a connection must open with an auth
	// request before any other kind is accepted.
	AuthRequired() bool
}

// Server accepts TCP connections and frames requests/responses per this
// package's wire format: a listener with an accept loop that spawns one
// goroutine per connection, each looping on frame decode/dispatch/encode
// until the connection closes.
type Server struct {
	addr    string
	handler Handler
	timeout time.Duration

	listener net.Listener
	closed   atomic.Bool
}

// NewServer creates a Server bound to addr, dispatching decoded requests to
// handler. Each request gets a per-request timeout (default 30s).
func NewServer(addr string, handler Handler, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{addr: addr, handler: handler, timeout: timeout}
}

// ListenAndServe binds addr and accepts connections until Close is called.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("wire: listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	logger := log.WithComponent("wire")
	logger.Info().Str("addr", s.addr).Msg("wire server listening")

	for {
		if s.closed.Load() {
			return nil
		}
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			continue
		}
		go s.handleConnection(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	s.closed.Store(true)
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	logger := log.WithComponent("wire")
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("recovered from panic in connection handler")
		}
	}()

	authed := !s.handler.AuthRequired()
	var session interface{}
	var totalRead uint64

	for {
		if s.closed.Load() {
			return
		}

		conn.SetDeadline(time.Now().Add(s.timeout))

		var req Request
		if err := ReadFrame(conn, &req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			if errors.Is(err, ErrTooLarge) {
				// An oversize frame is a 4xx the connection
				// survives — ReadFrame has already drained the declared
				// body so the stream stays in sync for the next request.
				if werr := WriteFrame(conn, ErrorResponse("", CodeTooLarge, err.Error())); werr != nil {
					return
				}
				continue
			}
			// A malformed length prefix or decode failure is also a 4xx
			// the connection survives; only a transport-level
			// failure draining the frame would leave the stream
			// desynchronized, and ReadFrame reports that as a distinct,
			// non-EOF, non-ErrTooLarge error that we still try to answer.
			if werr := WriteFrame(conn, ErrorResponse("", CodeMalformed, err.Error())); werr != nil {
				return
			}
			continue
		}

		totalRead += uint64(len(req.Payload))
		if totalRead > MaxTotalSize {
			WriteFrame(conn, ErrorResponse(req.RequestID, CodeTooLarge, "connection exceeded total request size cap"))
			return
		}

		if !authed {
			if req.Kind != KindAuth {
				WriteFrame(conn, ErrorResponse(req.RequestID, CodeUnauthorized, "first request must authenticate"))
				return
			}
			sess, ok := s.handler.Authenticate(req)
			if !ok {
				WriteFrame(conn, ErrorResponse(req.RequestID, CodeUnauthorized, "authentication failed"))
				return
			}
			session = sess
			authed = true
			WriteFrame(conn, Response{Code: CodeOK, RequestID: req.RequestID, Message: "authenticated"})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		resp := s.handler.Handle(ctx, session, req)
		cancel()

		if err := WriteFrame(conn, resp); err != nil {
			logger.Error().Err(err).Msg("write response frame")
			return
		}
	}
}
