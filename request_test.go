package gemini_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	gemini "github.com/knowfox/gemwire"
)

func TestRequest_Encode(t *testing.T) {
	req := newRequest(t, "gemini://localhost:1965")
	line, err := req.Encode()
	require.NoError(t, err)
	require.Equal(t, "gemini://localhost:1965\r\n", string(line))
	require.Equal(t, "localhost", req.Host())
	require.Equal(t, uint16(1965), req.Port())
}

func TestRequest_EncodeKeepsQuery(t *testing.T) {
	req := newRequest(t, "gemini://example.org/search?gemini%20protocol")
	line, err := req.Encode()
	require.NoError(t, err)
	require.Equal(t, "gemini://example.org/search?gemini%20protocol\r\n", string(line))
}

func TestRequest_DefaultPort(t *testing.T) {
	req := newRequest(t, "gemini://example.org/")
	require.Equal(t, uint16(gemini.DefaultPort), req.Port())

	req = newRequest(t, "gemini://example.org:1966/")
	require.Equal(t, uint16(1966), req.Port())
}

func TestNewRequest_Rejects(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"http scheme", "http://example.org/"},
		{"no scheme", "example.org/"},
		{"no host", "gemini:///path"},
		{"embedded CRLF", "gemini://example.org/\r\nfoo"},
		{"embedded LF", "gemini://example.org/\nfoo"},
		{"userinfo", "gemini://user@example.org/"},
		{"port out of range", "gemini://example.org:70000/"},
		{"zero port", "gemini://example.org:0/"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := gemini.NewRequest(tc.url)
			require.ErrorIs(t, err, gemini.ErrInvalidRequest)
		})
	}
}

func TestRequest_EncodeTooLong(t *testing.T) {
	req := newRequest(t, "gemini://example.org/"+strings.Repeat("a", gemini.MaxRequestLength))
	_, err := req.Encode()
	require.ErrorIs(t, err, gemini.ErrInvalidRequest)
}

func TestRequest_EncodeRejectsModifiedURL(t *testing.T) {
	req := newRequest(t, "gemini://example.org/")
	req.URL.Scheme = "https"
	_, err := req.Encode()
	require.ErrorIs(t, err, gemini.ErrInvalidRequest)
}

func TestRequest_Context(t *testing.T) {
	req := newRequest(t, "gemini://example.org/")
	require.Equal(t, context.Background(), req.Context())

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	r2 := req.WithContext(ctx)
	require.Equal(t, "v", r2.Context().Value(key{}))
	require.Equal(t, context.Background(), req.Context())

	require.Panics(t, func() { req.WithContext(nil) }) //nolint:staticcheck // checking the nil guard
}

func TestReadRequest(t *testing.T) {
	r, err := gemini.ReadRequest(strings.NewReader("gemini://some-hostname.com:1965\r\nleftover"))
	require.NoError(t, err)
	require.Equal(t, "/", r.URL.Path)
	require.Equal(t, "some-hostname.com:1965", r.URL.Host)
	require.Nil(t, r.Certificate())
	require.Equal(t, []string{""}, r.UserName())
}

func TestReadRequest_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no terminator", "gemini://example.org/"},
		{"bare LF", "gemini://example.org/\n"},
		{"bare CR", "gemini://example.org/\rx"},
		{"relative", "/just/a/path\r\n"},
		{"too long", "gemini://example.org/" + strings.Repeat("a", 1100) + "\r\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := gemini.ReadRequest(strings.NewReader(tc.input))
			require.Error(t, err)
		})
	}
}
