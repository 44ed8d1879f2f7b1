package gemini

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/knowfox/gemwire"

// Client performs Gemini transactions. The zero value dials with
// TLSTransport, verifies certificates and has no timeout.
type Client struct {
	// InsecureSkipVerify is passed to the default TLSTransport. It has
	// no effect when Transport is set.
	InsecureSkipVerify bool

	// Transport opens connections. If nil, a TLSTransport is used.
	Transport Transport

	// Timeout limits the whole transaction, body included. Zero means
	// no timeout.
	Timeout time.Duration

	// MaxMetaLength bounds the response meta field. Zero means
	// MaxMetaLength.
	MaxMetaLength int

	// Tracer records one span per transaction. If nil, the global
	// OpenTelemetry tracer provider is used.
	Tracer trace.Tracer
}

func (c *Client) transport() Transport {
	if c.Transport != nil {
		return c.Transport
	}
	return &TLSTransport{InsecureSkipVerify: c.InsecureSkipVerify}
}

func (c *Client) tracer() trace.Tracer {
	if c.Tracer != nil {
		return c.Tracer
	}
	return otel.Tracer(tracerName)
}

// Fetch a resource from a Gemini server with the given URL
func (c *Client) Fetch(url string) (*Response, error) {
	req, err := NewRequestWithContext(context.Background(), url)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Do sends req and returns the response once its header has arrived.
// The caller must close the response Body.
func (c *Client) Do(req *Request) (*Response, error) {
	return c.NewSession(req).Do()
}

// NewSession prepares a transaction for req without starting it. The
// session's Cancel method can be handed to another goroutine before Do
// is called.
func (c *Client) NewSession(req *Request) *Session {
	ctx := req.Context()
	var cancel context.CancelFunc
	if c.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	id := uuid.New()
	ctx, span := c.tracer().Start(ctx, "gemini.session",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gemini.session.id", id.String()),
			attribute.String("gemini.url", req.URL.String()),
		),
	)

	return &Session{
		id:        id,
		req:       req,
		transport: c.transport(),
		maxMeta:   c.MaxMetaLength,
		ctx:       ctx,
		cancel:    cancel,
		span:      span,
	}
}

// PerformRequest sends req with the given timeout and returns the
// response header and body. Zero timeout means none.
func PerformRequest(req *Request, timeout time.Duration) (ResponseHeader, io.ReadCloser, error) {
	c := &Client{Timeout: timeout}
	res, err := c.Do(req)
	if err != nil {
		return ResponseHeader{}, nil, err
	}
	return res.Header, res.Body, nil
}
