package gemini

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

var crlf = []byte("\r\n")

// MaxMetaLength is the default upper bound on the meta field, in bytes.
const MaxMetaLength = 1024

// ResponseHeader is the status line of a Gemini response.
type ResponseHeader struct {
	Status StatusCode
	// Meta is the MIME type for success, a prompt for input, the target
	// URL for redirects and a message otherwise.
	Meta string
}

// String returns the header as it appears on the wire, without the CRLF.
func (h ResponseHeader) String() string {
	return strconv.Itoa(int(h.Status)) + " " + h.Meta
}

// Encode returns the header line including the trailing CRLF.
func (h ResponseHeader) Encode() ([]byte, error) {
	if !h.Status.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, h.Status)
	}
	if strings.ContainsAny(h.Meta, "\r\n") {
		return nil, fmt.Errorf("%w: meta contains CR or LF", ErrInvalidHeader)
	}
	if len(h.Meta) > MaxMetaLength {
		return nil, fmt.Errorf("%w: meta exceeds %d bytes", ErrInvalidHeader, MaxMetaLength)
	}
	if !utf8.ValidString(h.Meta) {
		return nil, fmt.Errorf("%w: meta is not valid UTF-8", ErrInvalidHeader)
	}
	line := make([]byte, 0, len(h.Meta)+5)
	line = strconv.AppendInt(line, int64(h.Status), 10)
	line = append(line, ' ')
	line = append(line, h.Meta...)
	return append(line, crlf...), nil
}

// ParserState is the stage a HeaderParser is in.
type ParserState int8

const (
	StateAwaitingStatus ParserState = iota
	StateAwaitingSpace
	StateAwaitingMeta
	StateComplete
	StateFailed
)

func (s ParserState) String() string {
	switch s {
	case StateAwaitingStatus:
		return "awaiting status"
	case StateAwaitingSpace:
		return "awaiting space"
	case StateAwaitingMeta:
		return "awaiting meta"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// ParseOutcome is the result of one HeaderParser.Feed call.
type ParseOutcome struct {
	State ParserState
	// Need is the minimum number of further bytes required before the
	// parser can make progress. Zero once the parser is terminal.
	Need int
	// Header is set when State is StateComplete.
	Header ResponseHeader
	// Leftover holds the bytes after the header terminator in the chunk
	// that completed the header. They are the start of the body.
	Leftover []byte
}

// Complete reports whether the header has been fully parsed.
func (o ParseOutcome) Complete() bool {
	return o.State == StateComplete
}

// HeaderParser incrementally parses a response header from chunks of
// arbitrary size. The zero value is ready to use and enforces
// MaxMetaLength. A HeaderParser must not be used concurrently.
type HeaderParser struct {
	// MaxMetaLength bounds the meta field. Zero means MaxMetaLength.
	MaxMetaLength int

	state  ParserState
	status StatusCode
	// buf holds bytes of the current stage only; consumed stages are dropped.
	buf []byte
	// scan is where the CRLF search resumes inside the meta bytes.
	scan int
	err  error
}

// State returns the current parser state.
func (p *HeaderParser) State() ParserState {
	return p.state
}

// Buffered returns the number of bytes held for the current stage.
func (p *HeaderParser) Buffered() int {
	return len(p.buf)
}

// Feed consumes chunk. A chunk may complete several stages at once. When
// the header is complete, the returned outcome carries it along with any
// bytes that followed the terminator. A malformed header returns an error
// wrapping ErrMalformedResponse; the parser stays failed afterwards.
func (p *HeaderParser) Feed(chunk []byte) (ParseOutcome, error) {
	switch p.state {
	case StateFailed:
		return ParseOutcome{State: StateFailed}, p.err
	case StateComplete:
		return ParseOutcome{State: StateComplete}, ErrParserDone
	}

	data := chunk
	if len(p.buf) > 0 {
		p.buf = append(p.buf, chunk...)
		data = p.buf
	}

	for {
		switch p.state {
		case StateAwaitingStatus:
			if len(data) < 2 {
				return p.needMore(data, 2-len(data)), nil
			}
			if !isDigit(data[0]) || !isDigit(data[1]) {
				return p.fail(ReasonInvalidStatus)
			}
			status, err := ParseStatus(int(data[0]-'0')*10 + int(data[1]-'0'))
			if err != nil {
				return p.fail(ReasonInvalidStatus)
			}
			p.status = status
			data = data[2:]
			p.state = StateAwaitingSpace

		case StateAwaitingSpace:
			if len(data) < 1 {
				return p.needMore(data, 1), nil
			}
			if data[0] != ' ' {
				return p.fail(ReasonMissingSpace)
			}
			data = data[1:]
			p.state = StateAwaitingMeta
			p.scan = 0

		case StateAwaitingMeta:
			i := bytes.Index(data[p.scan:], crlf)
			if i < 0 {
				// one byte over the limit may still be the CR of the terminator
				if len(data) > p.maxMeta()+1 {
					return p.fail(ReasonMetaTooLong)
				}
				need := 2
				if len(data) > 0 && data[len(data)-1] == '\r' {
					need = 1
				}
				out := p.needMore(data, need)
				if len(data) > 0 {
					p.scan = len(data) - 1
				}
				return out, nil
			}
			end := p.scan + i
			if end > p.maxMeta() {
				return p.fail(ReasonMetaTooLong)
			}
			meta := data[:end]
			if !utf8.Valid(meta) {
				return p.fail(ReasonInvalidMeta)
			}
			out := ParseOutcome{
				State:  StateComplete,
				Header: ResponseHeader{Status: p.status, Meta: string(meta)},
			}
			// leftover may alias the caller's read buffer
			if rest := data[end+len(crlf):]; len(rest) > 0 {
				out.Leftover = append([]byte(nil), rest...)
			}
			p.state = StateComplete
			p.buf = nil
			return out, nil

		default:
			return ParseOutcome{State: p.state}, ErrParserDone
		}
	}
}

func (p *HeaderParser) maxMeta() int {
	if p.MaxMetaLength > 0 {
		return p.MaxMetaLength
	}
	return MaxMetaLength
}

// needMore keeps the unconsumed bytes of the current stage.
func (p *HeaderParser) needMore(data []byte, need int) ParseOutcome {
	if len(p.buf) > 0 {
		// data is a suffix of p.buf
		n := copy(p.buf, data)
		p.buf = p.buf[:n]
	} else {
		p.buf = append(p.buf[:0], data...)
	}
	return ParseOutcome{State: p.state, Need: need}
}

func (p *HeaderParser) fail(reason string) (ParseOutcome, error) {
	p.state = StateFailed
	p.buf = nil
	p.err = malformed(reason)
	return ParseOutcome{State: StateFailed}, p.err
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// ParseHeader parses a complete header line. The line may or may not
// include the CRLF terminator.
func ParseHeader(line []byte) (ResponseHeader, error) {
	if !bytes.HasSuffix(line, crlf) {
		line = append(line[:len(line):len(line)], crlf...)
	}
	var p HeaderParser
	out, err := p.Feed(line)
	if err != nil {
		return ResponseHeader{}, err
	}
	if !out.Complete() {
		return ResponseHeader{}, malformed(ReasonTruncatedHeader)
	}
	if len(out.Leftover) > 0 {
		return ResponseHeader{}, fmt.Errorf("%w: trailing bytes after header", ErrInvalidHeader)
	}
	return out.Header, nil
}
