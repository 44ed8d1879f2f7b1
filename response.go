package gemini

import (
	"crypto/tls"
	"errors"
	"io"

	"github.com/knowfox/gemwire/internal/log"
)

// Response represents the response from a Gemini request.
//
// The Client returns Responses from servers once the response header
// has been received. The response body is streamed on demand as the
// Body field is read.
type Response struct {
	Header ResponseHeader

	// Body represents the response body.
	//
	// The response body is streamed on demand as the Body field
	// is read. If the network connection fails or the request is
	// cancelled, Body.Read calls return an error.
	//
	// Body is always non-nil, even on responses without a body. Bodies
	// of non-success responses are delivered verbatim. It is the
	// caller's responsibility to close Body, which closes the
	// connection.
	Body io.ReadCloser

	// Request is the request that was sent to obtain this Response.
	Request *Request

	// TLS contains information about the TLS connection on which the
	// response was received. It is nil when the transport is not TLS.
	TLS *tls.ConnectionState

	session *Session
}

// StatusCode returns the response status, e.g. 20.
func (r *Response) StatusCode() StatusCode {
	return r.Header.Status
}

// Meta returns the meta field of the response header.
func (r *Response) Meta() string {
	return r.Header.Meta
}

// MIMEType returns the meta field for success responses and the empty
// string otherwise.
func (r *Response) MIMEType() string {
	if r.Header.Status.IsSuccess() {
		return r.Header.Meta
	}
	return ""
}

// Session returns the session that produced the response.
func (r *Response) Session() *Session {
	return r.session
}

// body relays the bytes that followed the header, then the connection,
// until end-of-stream.
type body struct {
	s       *Session
	conn    Conn
	pending []byte
	err     error
}

func (b *body) Read(p []byte) (int, error) {
	if len(b.pending) > 0 {
		n := copy(p, b.pending)
		b.pending = b.pending[n:]
		return n, nil
	}
	if b.err != nil {
		return 0, b.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := b.conn.Read(p)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		if b.s.ctx.Err() != nil {
			b.err = b.s.abort(b.s.ctxError("read", nil))
			break
		}
		log.Debug(log.CatClient, "end of body", "id", b.s.id)
		b.s.finish()
		b.err = io.EOF
	default:
		b.err = b.s.abort(b.s.ioError("read", err))
	}
	if n > 0 {
		return n, nil
	}
	return 0, b.err
}

func (b *body) Close() error {
	b.pending = nil
	if b.err == nil {
		b.err = errors.New("gemini: read on closed response body")
	}
	return b.s.Close()
}
