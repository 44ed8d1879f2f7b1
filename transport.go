package gemini

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"syscall"

	"golang.org/x/net/idna"

	"github.com/knowfox/gemwire/internal/log"
)

// Conn is an established, already secured byte stream to a server.
// Read returns io.EOF at end-of-stream. Close may be called more than
// once.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Transport opens connections for a Session.
type Transport interface {
	// Dial connects to host:port. Cancelling ctx aborts the attempt.
	Dial(ctx context.Context, host string, port uint16) (Conn, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, host string, port uint16) (Conn, error)

// Dial calls f(ctx, host, port).
func (f TransportFunc) Dial(ctx context.Context, host string, port uint16) (Conn, error) {
	return f(ctx, host, port)
}

// TLSTransport dials TCP and wraps the connection in TLS.
type TLSTransport struct {
	// InsecureSkipVerify controls whether a client verifies the server's
	// certificate chain and host name. If InsecureSkipVerify is true, crypto/tls
	// accepts any certificate presented by the server and any host name in that
	// certificate. In this mode, TLS is susceptible to machine-in-the-middle
	// attacks unless custom verification is used. This should be used only for
	// testing or in combination with VerifyConnection or VerifyPeerCertificate.
	InsecureSkipVerify bool

	// Config, if set, is cloned and used instead of the default config.
	Config *tls.Config

	// Certificates are presented when a server asks for a client certificate.
	Certificates []tls.Certificate
}

var _ Transport = (*TLSTransport)(nil)

func (t *TLSTransport) config(host string) *tls.Config {
	var conf *tls.Config
	if t.Config != nil {
		conf = t.Config.Clone()
	} else {
		conf = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: t.InsecureSkipVerify,
			Certificates:       t.Certificates,
		}
	}
	if conf.ServerName == "" {
		conf.ServerName = host
	}
	return conf
}

// Dial connects to host:port over TLS. Internationalized host names are
// converted to their ASCII form first.
func (t *TLSTransport) Dial(ctx context.Context, host string, port uint16) (Conn, error) {
	asciiHost := host
	if net.ParseIP(host) == nil {
		var err error
		asciiHost, err = idna.Lookup.ToASCII(host)
		if err != nil {
			return nil, newError(ErrConnection, "dial", "invalid host name", err)
		}
	}
	addr := net.JoinHostPort(asciiHost, strconv.Itoa(int(port)))
	d := &tls.Dialer{Config: t.config(asciiHost)}
	log.Debug(log.CatTransport, "dialing", "addr", addr)
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifyDialError(err)
	}
	return &closeOnceConn{Conn: conn}, nil
}

// classifyDialError sorts a dial failure into DNS, refused, TLS or generic.
func classifyDialError(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return newError(ErrConnection, "dial", "DNS lookup failed", err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return newError(ErrConnection, "dial", "connection refused", err)
	}
	var recErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	var alertErr tls.AlertError
	if errors.As(err, &recErr) || errors.As(err, &certErr) || errors.As(err, &alertErr) {
		return newError(ErrConnection, "handshake", "TLS handshake failed", err)
	}
	return newError(ErrConnection, "dial", "", err)
}

// closeOnceConn makes Close idempotent; only the first call reaches the
// underlying connection.
type closeOnceConn struct {
	net.Conn
	once sync.Once
	err  error
}

func (c *closeOnceConn) Close() error {
	c.once.Do(func() {
		c.err = c.Conn.Close()
	})
	return c.err
}

// ConnectionState returns the TLS state of the wrapped connection.
func (c *closeOnceConn) ConnectionState() (tls.ConnectionState, bool) {
	if tc, ok := c.Conn.(*tls.Conn); ok {
		return tc.ConnectionState(), true
	}
	return tls.ConnectionState{}, false
}
