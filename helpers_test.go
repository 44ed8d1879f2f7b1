package gemini_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	gemini "github.com/knowfox/gemwire"
)

// fakeConn replays chunks one Read at a time. When the chunks run out it
// either reports end-of-stream or, if hang is set, blocks until closed.
type fakeConn struct {
	mu       sync.Mutex
	chunks   [][]byte
	hang     bool
	written  []byte
	writeErr error

	reading   chan struct{}
	readOnce  sync.Once
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
}

func newFakeConn(chunks ...string) *fakeConn {
	c := &fakeConn{
		reading: make(chan struct{}),
		closed:  make(chan struct{}),
	}
	for _, ch := range chunks {
		c.chunks = append(c.chunks, []byte(ch))
	}
	return c
}

func (c *fakeConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	if len(c.chunks) > 0 {
		n := copy(p, c.chunks[0])
		if n < len(c.chunks[0]) {
			c.chunks[0] = c.chunks[0][n:]
		} else {
			c.chunks = c.chunks[1:]
		}
		c.mu.Unlock()
		return n, nil
	}
	hang := c.hang
	c.mu.Unlock()

	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}
	if !hang {
		return 0, io.EOF
	}
	c.readOnce.Do(func() { close(c.reading) })
	<-c.closed
	return 0, net.ErrClosed
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.written = append(c.written, p...)
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.written)
}

// fakeTransport hands out a single prepared connection.
type fakeTransport struct {
	conn  gemini.Conn
	err   error
	dials atomic.Int32
	host  string
	port  uint16
}

func (t *fakeTransport) Dial(ctx context.Context, host string, port uint16) (gemini.Conn, error) {
	t.dials.Add(1)
	t.host, t.port = host, port
	if t.err != nil {
		return nil, t.err
	}
	return t.conn, nil
}

func newRequest(t *testing.T, rawurl string) *gemini.Request {
	t.Helper()
	req, err := gemini.NewRequest(rawurl)
	require.NoError(t, err)
	return req
}

// selfSignedCert returns a certificate for localhost and 127.0.0.1.
func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1965),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func serverTLSConfig(t *testing.T) *tls.Config {
	t.Helper()
	return &tls.Config{
		Certificates: []tls.Certificate{selfSignedCert(t)},
		MinVersion:   tls.VersionTLS12,
		ClientAuth:   tls.RequestClientCert,
	}
}

// redirectTransport dials addr whatever host and port the request names,
// so requests can carry the canonical gemini://localhost:1965 URL.
func redirectTransport(addr string) gemini.Transport {
	tr := &gemini.TLSTransport{InsecureSkipVerify: true}
	return gemini.TransportFunc(func(ctx context.Context, _ string, _ uint16) (gemini.Conn, error) {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		port, err := net.LookupPort("tcp", portStr)
		if err != nil {
			return nil, err
		}
		return tr.Dial(ctx, host, uint16(port))
	})
}
