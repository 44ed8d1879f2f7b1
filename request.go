package gemini

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Lists Gemini related URI schemas.
const (
	SchemaGemini = "gemini"
)

// DefaultPort is used when a gemini URL has no port.
const DefaultPort = 1965

// MaxRequestLength bounds the URL of a request line, excluding the CRLF.
const MaxRequestLength = 1024

// Request contains the data of the client request
type Request struct {
	URL *url.URL

	ctx  context.Context
	conn *tls.Conn
}

// NewRequest returns a new Request for the given absolute gemini URL.
func NewRequest(rawurl string) (*Request, error) {
	return NewRequestWithContext(context.Background(), rawurl)
}

// NewRequestWithContext returns a new Request given a context and a URL.
//
// The context controls the entire lifetime of the request and its
// response: obtaining a connection, sending the request, and reading the
// response header and body.
//
// The URL must be absolute, use the gemini scheme and name a host. It is
// rejected with ErrInvalidRequest otherwise, before any I/O happens.
func NewRequestWithContext(ctx context.Context, rawurl string) (*Request, error) {
	if ctx == nil {
		return nil, errors.New("gemini: nil Context")
	}
	if strings.ContainsAny(rawurl, "\r\n") {
		return nil, newError(ErrInvalidRequest, "parse", "url contains CR or LF", nil)
	}
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, newError(ErrInvalidRequest, "parse", "", err)
	}
	req := &Request{
		ctx: ctx,
		URL: u,
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *Request) validate() error {
	if r.URL == nil {
		return newError(ErrInvalidRequest, "validate", "missing url", nil)
	}
	if !strings.EqualFold(r.URL.Scheme, SchemaGemini) {
		return newError(ErrInvalidRequest, "validate", fmt.Sprintf("unsupported scheme %q", r.URL.Scheme), nil)
	}
	if r.URL.Hostname() == "" {
		return newError(ErrInvalidRequest, "validate", "missing host", nil)
	}
	if r.URL.User != nil {
		return newError(ErrInvalidRequest, "validate", "userinfo is not allowed", nil)
	}
	if _, err := r.port(); err != nil {
		return newError(ErrInvalidRequest, "validate", "invalid port", err)
	}
	return nil
}

// Host returns the host name without port.
func (r *Request) Host() string {
	return r.URL.Hostname()
}

// Port returns the URL port, or DefaultPort when none is given.
func (r *Request) Port() uint16 {
	p, _ := r.port()
	return p
}

func (r *Request) port() (uint16, error) {
	s := r.URL.Port()
	if s == "" {
		return DefaultPort, nil
	}
	p, err := strconv.ParseUint(s, 10, 16)
	if err != nil || p == 0 {
		return 0, fmt.Errorf("port %q out of range", s)
	}
	return uint16(p), nil
}

// Encode serializes the request line: the absolute URL followed by CRLF.
func (r *Request) Encode() ([]byte, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	s := r.URL.String()
	if strings.ContainsAny(s, "\r\n") {
		return nil, newError(ErrInvalidRequest, "encode", "url contains CR or LF", nil)
	}
	if len(s) > MaxRequestLength {
		return nil, newError(ErrInvalidRequest, "encode", fmt.Sprintf("request exceeds %d length", MaxRequestLength), nil)
	}
	line := make([]byte, 0, len(s)+len(crlf))
	line = append(line, s...)
	return append(line, crlf...), nil
}

// Context returns the request's context. To change the context, use
// WithContext.
//
// The returned context is always non-nil; it defaults to the
// background context.
//
// For incoming server requests, the context is canceled when the
// handler returns.
func (r *Request) Context() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

// WithContext returns a shallow copy of r with its context changed
// to ctx. The provided ctx must be non-nil.
func (r *Request) WithContext(ctx context.Context) *Request {
	if ctx == nil {
		panic("nil context")
	}
	r2 := new(Request)
	*r2 = *r
	r2.ctx = ctx
	return r2
}

// Certificate returns the first client certificate presented on the
// connection a server request arrived on, or nil.
func (r *Request) Certificate() *x509.Certificate {
	if r.conn == nil {
		return nil
	}
	if certs := r.conn.ConnectionState().PeerCertificates; len(certs) > 0 {
		return certs[0]
	}
	return nil
}

func dateToStr(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 36)
}

// UserName identifies the client certificate holder by common name,
// serial number and validity window.
func (r *Request) UserName() []string {
	cert := r.Certificate()
	if cert == nil {
		return []string{""}
	}
	return []string{cert.Subject.CommonName, cert.SerialNumber.String(), dateToStr(cert.NotBefore), dateToStr(cert.NotAfter)}
}

// RemoteAddr returns the network address of the client for server requests.
func (r *Request) RemoteAddr() net.Addr {
	if r.conn == nil {
		return nil
	}
	return r.conn.RemoteAddr()
}

var errorRequestTooLong = fmt.Errorf("request exceeds %d length", MaxRequestLength)

// ReadRequest reads and parses one request line from rd.
func ReadRequest(rd io.Reader) (*Request, error) {
	line, err := readLine(rd, MaxRequestLength)
	if err != nil {
		return nil, err
	}
	return parseRequestLine(line)
}

func parseRequestLine(rawurl string) (*Request, error) {
	u, err := url.ParseRequestURI(rawurl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %v, error: %v", rawurl, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("request is missing scheme: %v", rawurl)
	}
	if strings.EqualFold(u.Scheme, SchemaGemini) && u.Path == "" {
		u.Path = "/"
	}
	return &Request{URL: u}, nil
}

// readLine reads up to and including CRLF and returns the line without
// it. A bare CR or LF is an error.
func readLine(rd io.Reader, limit int) (string, error) {
	br, ok := rd.(io.ByteReader)
	if !ok {
		// one byte at a time so nothing past the line is consumed
		br = &byteReader{r: rd}
	}
	var line strings.Builder
	for {
		c, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && line.Len() > 0 {
				err = io.ErrUnexpectedEOF
			}
			return "", fmt.Errorf("failed to read request: %w", err)
		}
		switch c {
		case '\r':
			c, err = br.ReadByte()
			if err != nil {
				return "", fmt.Errorf("failed to read request: %w", err)
			}
			if c != '\n' {
				return "", errors.New("bare CR in request line")
			}
			return line.String(), nil
		case '\n':
			return "", errors.New("bare LF in request line")
		}
		line.WriteByte(c)
		if line.Len() > limit {
			return "", errorRequestTooLong
		}
	}
}

type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.buf[:]); err != nil {
		return 0, err
	}
	return b.buf[0], nil
}
