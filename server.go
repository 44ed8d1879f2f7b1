package gemini

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/knowfox/gemwire/internal/log"
)

// Server accepts TLS connections and answers one request per connection.
type Server struct {
	// Addr is the listen address, "127.0.0.1:1965" if empty.
	Addr string

	Handler Handler

	// TLSConfig must carry at least one certificate.
	TLSConfig *tls.Config

	// SlowDown, if set, answers 44 to hosts over their request budget.
	SlowDown *SlowDown

	// ReadTimeout bounds reading the request line. Zero means no limit.
	ReadTimeout time.Duration

	wg sync.WaitGroup
}

// ListenAndServe create a TCP server on the specified address and pass
// new connections to the given handler.
// Each request is handled in a separate goroutine.
func ListenAndServe(addr, certFile, keyFile string, handler Handler) error {
	config, err := ServerTLSConfig(certFile, keyFile)
	if err != nil {
		return err
	}
	srv := &Server{Addr: addr, Handler: handler, TLSConfig: config}
	return srv.ListenAndServe()
}

// ServerTLSConfig loads a key pair and requests (but does not require)
// client certificates.
func ServerTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cer, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificates: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cer},
		MinVersion:   tls.VersionTLS12,
		ClientAuth:   tls.RequestClientCert,
	}, nil
}

// ListenAndServe listens on s.Addr and serves until the listener fails.
func (s *Server) ListenAndServe() error {
	addr := s.Addr
	if addr == "" {
		addr = "127.0.0.1:" + strconv.Itoa(DefaultPort)
	}
	ln, err := tls.Listen("tcp", addr, s.TLSConfig)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	defer ln.Close()
	return s.Serve(ln)
}

// Serve accepts connections from ln until it is closed. Closing the
// listener makes Serve return nil after in-flight requests finish.
// Connections must be *tls.Conn unless they arrive on a plain listener
// used for testing.
func (s *Server) Serve(ln net.Listener) error {
	log.Info(log.CatServer, "serving", "addr", ln.Addr())
	defer s.wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Warn(log.CatServer, "accept timeout", "error", err)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	if s.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
	}

	w := &response{conn: conn}
	request, err := ReadRequest(conn)
	if err != nil {
		log.Warn(log.CatServer, "bad request", "remote", conn.RemoteAddr(), "error", err)
		_ = w.WriteStatusMsg(StatusBadRequest, "Bad Request")
		return
	}
	log.Info(log.CatServer, "raw request", "remote", conn.RemoteAddr(), "url", request.URL)

	if s.SlowDown != nil {
		if ok, wait := s.SlowDown.Allow(remoteHost(conn.RemoteAddr())); !ok {
			_ = w.WriteStatusMsg(StatusSlowDown, strconv.Itoa(int(wait.Round(time.Second)/time.Second)))
			return
		}
	}

	if tc, ok := conn.(*tls.Conn); ok {
		request.conn = tc
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	request.ctx = ctx

	handler := s.Handler
	if handler == nil {
		handler = HandlerFunc(NotFound)
	}
	handler.ServeGemini(w, request)
	if !w.headerWritten && w.err == nil {
		log.Warn(log.CatServer, "handler wrote no status", "url", request.URL)
		_ = w.WriteStatusMsg(StatusUnspecified, "No Response")
	}
}

func remoteHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

type response struct {
	headerWritten bool
	bodyAllowed   bool
	conn          net.Conn
	err           error
}

var _ ResponseWriter = (*response)(nil)

func (w *response) WriteStatusMsg(status StatusCode, msg string) error {
	if w.headerWritten {
		return ErrHeaderWritten
	}
	line, err := ResponseHeader{Status: status, Meta: msg}.Encode()
	if err != nil {
		return err
	}
	if _, w.err = w.conn.Write(line); w.err != nil {
		w.err = fmt.Errorf("failed to write response status message: %w", w.err)
		return w.err
	}
	w.headerWritten = true
	w.bodyAllowed = status.IsSuccess()
	return nil
}

func (w *response) WriteBody(body []byte) (int, error) {
	if !w.headerWritten {
		return 0, ErrHeaderNotWritten
	}
	if !w.bodyAllowed {
		return 0, ErrBodyNotAllowed
	}
	if w.err != nil {
		return 0, w.err
	}
	var written int
	written, w.err = w.conn.Write(body)
	if w.err != nil {
		w.err = fmt.Errorf("failed to write response body: %w", w.err)
	}
	return written, w.err
}

// Write provides raw write and is for internal use only.
// It provides io.Copy compatible interface.
func (w *response) Write(body []byte) (int, error) {
	return w.WriteBody(body)
}
