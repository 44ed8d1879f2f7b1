package gemini

import (
	"errors"
	"strings"
)

// Error kinds. Every error returned by a Session unwraps to exactly one of
// these, so callers can branch with errors.Is.
var (
	ErrConnection        = errors.New("gemini: connection error")
	ErrMalformedResponse = errors.New("gemini: malformed response")
	ErrInvalidRequest    = errors.New("gemini: invalid request")
	ErrCancelled         = errors.New("gemini: cancelled")
	ErrTimeout           = errors.New("gemini: timeout")
)

// Other sentinel errors.
var (
	ErrInvalidStatus    = errors.New("gemini: invalid status code")
	ErrInvalidHeader    = errors.New("gemini: invalid response header")
	ErrHeaderWritten    = errors.New("gemini: status has been sent already")
	ErrHeaderNotWritten = errors.New("gemini: status message is not written")
	ErrBodyNotAllowed   = errors.New("gemini: response status code does not allow for body")
	ErrParserDone       = errors.New("gemini: header parser already finished")
)

// Reasons attached to ErrMalformedResponse errors.
const (
	ReasonInvalidStatus   = "invalid status code"
	ReasonMissingSpace    = "missing separator"
	ReasonInvalidMeta     = "invalid meta encoding"
	ReasonMetaTooLong     = "meta too long"
	ReasonTruncatedHeader = "truncated header"
)

// Error describes a failed transaction step.
type Error struct {
	// Kind is one of the Err* kind sentinels above.
	Kind error
	// Op is the step that failed, e.g. "dial", "read", "parse".
	Op string
	// Reason is a short description, e.g. ReasonTruncatedHeader.
	Reason string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Op != "" {
		b.WriteString(" (")
		b.WriteString(e.Op)
		b.WriteString(")")
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op, reason string, err error) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason, Err: err}
}

func malformed(reason string) *Error {
	return newError(ErrMalformedResponse, "parse", reason, nil)
}

// ReasonOf returns the Reason of the first *Error in err's chain.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
