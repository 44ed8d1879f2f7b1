package gemini

import (
	"fmt"
	"strconv"
)

// StatusCode is a Gemini response status code.
//
// Any two-digit value whose first digit names a category is a valid
// status code, even if it has no named constant below.
type StatusCode int

// Provides status codes.
const (
	StatusPlainInput        StatusCode = 10
	StatusSensitiveInput    StatusCode = 11
	StatusSuccess           StatusCode = 20
	StatusTemporaryRedirect StatusCode = 30
	StatusPermanentRedirect StatusCode = 31
	StatusUnspecified       StatusCode = 40
	StatusServerUnavailable StatusCode = 41
	StatusCGIError          StatusCode = 42
	StatusProxyError        StatusCode = 43
	StatusSlowDown          StatusCode = 44
	StatusGeneralPermFail   StatusCode = 50
	StatusNotFound          StatusCode = 51
	StatusGone              StatusCode = 52
	StatusProxyRefused      StatusCode = 53
	StatusBadRequest        StatusCode = 59
	StatusCertRequired      StatusCode = 60
	StatusCertNotAuthorized StatusCode = 61
	StatusCertNotValid      StatusCode = 62
)

var statusText = map[StatusCode]string{
	StatusPlainInput:        "Input",
	StatusSensitiveInput:    "Sensitive Input",
	StatusSuccess:           "Success",
	StatusTemporaryRedirect: "Temporary Redirect",
	StatusPermanentRedirect: "Permanent Redirect",
	StatusUnspecified:       "Temporary Failure",
	StatusServerUnavailable: "Server Unavailable",
	StatusCGIError:          "CGI Error",
	StatusProxyError:        "Proxy Error",
	StatusSlowDown:          "Slow Down",
	StatusGeneralPermFail:   "Permanent Failure",
	StatusNotFound:          "Not Found",
	StatusGone:              "Gone",
	StatusProxyRefused:      "Proxy Request Refused",
	StatusBadRequest:        "Bad Request",
	StatusCertRequired:      "Client Certificate Required",
	StatusCertNotAuthorized: "Certificate Not Authorized",
	StatusCertNotValid:      "Certificate Not Valid",
}

// Category is the class of a status code, derived from its first digit.
type Category int

// Status categories. CategoryUnknown is never produced for a valid StatusCode.
const (
	CategoryUnknown Category = iota
	CategoryInput
	CategorySuccess
	CategoryRedirect
	CategoryTemporaryFailure
	CategoryPermanentFailure
	CategoryCertificateRequired
)

var categoryNames = [...]string{
	CategoryUnknown:             "unknown",
	CategoryInput:               "input",
	CategorySuccess:             "success",
	CategoryRedirect:            "redirect",
	CategoryTemporaryFailure:    "temporary failure",
	CategoryPermanentFailure:    "permanent failure",
	CategoryCertificateRequired: "client certificate required",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "category(" + strconv.Itoa(int(c)) + ")"
	}
	return categoryNames[c]
}

// Classify returns the category of a numeric status code. Codes outside
// 10-69 return CategoryUnknown and ErrInvalidStatus.
func Classify(code int) (Category, error) {
	if code < 10 || code > 69 {
		return CategoryUnknown, fmt.Errorf("%w: %d", ErrInvalidStatus, code)
	}
	// first digit 1..6 maps onto CategoryInput..CategoryCertificateRequired
	return Category(code / 10), nil
}

// ParseStatus validates code and returns it as a StatusCode.
func ParseStatus(code int) (StatusCode, error) {
	if _, err := Classify(code); err != nil {
		return 0, err
	}
	return StatusCode(code), nil
}

// Category of the status code.
func (s StatusCode) Category() Category {
	c, _ := Classify(int(s))
	return c
}

// Valid reports whether s is inside the range of sanctioned codes.
func (s StatusCode) Valid() bool {
	return s.Category() != CategoryUnknown
}

// Known reports whether s has a named constant.
func (s StatusCode) Known() bool {
	_, ok := statusText[s]
	return ok
}

// IsSuccess reports whether the first digit of s is 2.
func (s StatusCode) IsSuccess() bool {
	return s.Category() == CategorySuccess
}

// Text returns a short description of the status code, or the category
// name for codes without a named constant.
func (s StatusCode) Text() string {
	if t, ok := statusText[s]; ok {
		return t
	}
	return s.Category().String()
}

func (s StatusCode) String() string {
	return strconv.Itoa(int(s))
}

// SimplifyStatus simplify the response status by omiting the detailed second digit of the status code.
func SimplifyStatus(status StatusCode) StatusCode {
	return (status / 10) * 10
}
