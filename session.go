package gemini

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/knowfox/gemwire/internal/log"
)

// SessionState is the stage of a single transaction.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionConnecting
	SessionSending
	SessionAwaitingHeader
	SessionStreamingBody
	SessionClosed
	SessionErrored
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionConnecting:
		return "connecting"
	case SessionSending:
		return "sending"
	case SessionAwaitingHeader:
		return "awaiting header"
	case SessionStreamingBody:
		return "streaming body"
	case SessionClosed:
		return "closed"
	case SessionErrored:
		return "errored"
	default:
		return "session(" + strconv.Itoa(int(s)) + ")"
	}
}

func (s SessionState) terminal() bool {
	return s == SessionClosed || s == SessionErrored
}

const readBufferSize = 4096

// Session runs one request/response transaction over one connection.
// Do may be called once. Cancel and Close may be called from any
// goroutine, any number of times.
type Session struct {
	id        uuid.UUID
	req       *Request
	transport Transport
	maxMeta   int

	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span

	mu    sync.Mutex
	state SessionState
	err   error
	conn  Conn
	stop  func() bool

	closeOnce sync.Once
	endOnce   sync.Once
	started   bool
}

// ID returns the transaction id used in logs and traces.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session to SessionErrored, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel aborts the transaction. A blocked dial, write or read returns
// an error wrapping ErrCancelled and the connection is closed.
func (s *Session) Cancel() {
	s.cancel()
}

// Do connects, sends the request and reads the response header. The
// returned Response's Body streams the rest of the connection; closing
// it closes the session. On error the connection is already closed.
func (s *Session) Do() (*Response, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, errors.New("gemini: session already used")
	}
	s.started = true
	s.mu.Unlock()

	line, err := s.req.Encode()
	if err != nil {
		s.fail(err)
		s.Close()
		return nil, err
	}

	conn, err := s.connect()
	if err != nil {
		return nil, s.abort(err)
	}

	if !s.transition(SessionSending) {
		return nil, s.abort(s.ctxError("write", nil))
	}
	if _, err := conn.Write(line); err != nil {
		return nil, s.abort(s.ioError("write", err))
	}

	if !s.transition(SessionAwaitingHeader) {
		return nil, s.abort(s.ctxError("read", nil))
	}
	out, err := s.readHeader(conn)
	if err != nil {
		return nil, s.abort(err)
	}

	s.span.SetAttributes(
		attribute.Int("gemini.status", int(out.Header.Status)),
		attribute.String("gemini.meta", out.Header.Meta),
	)
	log.Debug(log.CatClient, "header received", "id", s.id, "status", out.Header.Status, "meta", out.Header.Meta)

	if !s.transition(SessionStreamingBody) {
		return nil, s.abort(s.ctxError("read", nil))
	}
	res := &Response{
		Header:  out.Header,
		Request: s.req,
		Body:    &body{s: s, conn: conn, pending: out.Leftover},
		session: s,
	}
	if cs, ok := conn.(interface {
		ConnectionState() (tls.ConnectionState, bool)
	}); ok {
		if st, ok := cs.ConnectionState(); ok {
			res.TLS = &st
		}
	}
	return res, nil
}

func (s *Session) connect() (Conn, error) {
	if !s.transition(SessionConnecting) {
		return nil, s.ctxError("dial", nil)
	}
	conn, err := s.transport.Dial(s.ctx, s.req.Host(), s.req.Port())
	if err != nil {
		if s.ctx.Err() != nil {
			return nil, s.ctxError("dial", err)
		}
		if errors.Is(err, ErrConnection) {
			return nil, err
		}
		return nil, newError(ErrConnection, "dial", "", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	// a cancelled or expired context closes the connection, which unblocks
	// any read or write in progress
	stop := context.AfterFunc(s.ctx, s.closeConn)
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()
	if s.ctx.Err() != nil {
		return nil, s.ctxError("dial", nil)
	}
	return conn, nil
}

func (s *Session) readHeader(conn Conn) (ParseOutcome, error) {
	parser := HeaderParser{MaxMetaLength: s.maxMeta}
	buf := make([]byte, readBufferSize)
	for {
		n, rerr := conn.Read(buf)
		if n > 0 {
			out, err := parser.Feed(buf[:n])
			if err != nil {
				log.Debug(log.CatParser, "malformed header", "id", s.id, "reason", ReasonOf(err))
				return out, err
			}
			if out.Complete() {
				return out, nil
			}
			log.Debug(log.CatParser, "need more", "id", s.id, "state", out.State, "need", out.Need, "buffered", parser.Buffered())
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				if s.ctx.Err() != nil {
					return ParseOutcome{}, s.ctxError("read", nil)
				}
				return ParseOutcome{}, newError(ErrMalformedResponse, "read", ReasonTruncatedHeader, nil)
			}
			return ParseOutcome{}, s.ioError("read", rerr)
		}
	}
}

// ioError maps an I/O failure to the cancellation or timeout that caused
// it, or to a connection error.
func (s *Session) ioError(op string, err error) error {
	if s.ctx.Err() != nil {
		return s.ctxError(op, err)
	}
	return newError(ErrConnection, op, "", err)
}

func (s *Session) ctxError(op string, err error) error {
	if errors.Is(s.ctx.Err(), context.DeadlineExceeded) {
		return newError(ErrTimeout, op, "", context.DeadlineExceeded)
	}
	if err == nil {
		err = context.Canceled
	}
	return newError(ErrCancelled, op, "", err)
}

// transition moves to next unless the session is terminal or its context
// is done.
func (s *Session) transition(next SessionState) bool {
	s.mu.Lock()
	prev := s.state
	if prev.terminal() || s.ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	s.state = next
	s.mu.Unlock()

	s.span.AddEvent(next.String())
	log.Debug(log.CatClient, "state change", "id", s.id, "from", prev, "to", next)
	return true
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.state.terminal() {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = SessionErrored
	s.err = err
	s.mu.Unlock()

	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
	log.Debug(log.CatClient, "state change", "id", s.id, "from", prev, "to", SessionErrored, "error", err)
}

// abort records err, closes the session and returns err.
func (s *Session) abort(err error) error {
	s.fail(err)
	s.Close()
	return err
}

// finish is called when the body reaches end-of-stream.
func (s *Session) finish() {
	s.mu.Lock()
	if !s.state.terminal() {
		s.state = SessionClosed
	}
	s.mu.Unlock()
	s.Close()
}

func (s *Session) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	s.closeOnce.Do(func() {
		if err := conn.Close(); err != nil {
			log.Debug(log.CatClient, "close failed", "id", s.id, "error", err)
		}
	})
}

// Close releases the connection. It is safe to call after an error,
// after Cancel and after the body was read, and more than once. A
// session closed before its body reached end-of-stream ends in
// SessionClosed as well.
func (s *Session) Close() error {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	s.closeConn()

	s.mu.Lock()
	if !s.state.terminal() {
		s.state = SessionClosed
	}
	state := s.state
	s.mu.Unlock()

	s.cancel()
	s.endOnce.Do(func() {
		s.span.SetAttributes(attribute.String("gemini.session.state", state.String()))
		s.span.End()
	})
	return nil
}
