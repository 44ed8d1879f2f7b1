package main

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	gemini "github.com/knowfox/gemwire"
)

func runCmd(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var out, errOut bytes.Buffer
	root := newRootCmd("test")
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func startCapsule(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	config := &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		MinVersion:   tls.VersionTLS12,
		ClientAuth:   tls.RequestClientCert,
	}
	ln, err := tls.Listen("tcp", "127.0.0.1:0", config)
	require.NoError(t, err)

	srv := &gemini.Server{Handler: gemini.TrapPanic(capsule{root: "."}.ServeGemini), TLSConfig: config}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = ln.Close()
		require.NoError(t, <-done)
	})
	return "gemini://" + ln.Addr().String()
}

func TestFetch_Success(t *testing.T) {
	base := startCapsule(t)

	stdout, stderr, err := runCmd(t, "fetch", "-k", base+"/")
	require.NoError(t, err)
	require.Equal(t, "20 text/gemini\n", stderr)
	require.Contains(t, stdout, "# Hello, world!")
}

func TestFetch_File(t *testing.T) {
	base := startCapsule(t)
	want, err := os.ReadFile("hello.gmi")
	require.NoError(t, err)

	stdout, _, err := runCmd(t, "fetch", "-k", base+"/file")
	require.NoError(t, err)
	require.Equal(t, string(want), stdout)
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	base := startCapsule(t)

	tests := []struct {
		path   string
		status gemini.StatusCode
	}{
		{"/nope", gemini.StatusNotFound},
		{"/search", gemini.StatusPlainInput},
		{"/user", gemini.StatusCertRequired},
		{"/old", gemini.StatusPermanentRedirect},
		{"/die", gemini.StatusUnspecified},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			_, _, err := runCmd(t, "fetch", "-k", base+tc.path)
			var es errStatus
			require.ErrorAs(t, err, &es)
			require.Equal(t, tc.status, es.header.Status)
		})
	}
}

func TestFetch_Search(t *testing.T) {
	base := startCapsule(t)

	stdout, _, err := runCmd(t, "fetch", "-k", base+"/search?gemini")
	require.NoError(t, err)
	require.Equal(t, "You searched for: gemini=", stdout)
}

func TestFetch_UntrustedWithoutInsecure(t *testing.T) {
	base := startCapsule(t)

	_, _, err := runCmd(t, "fetch", base+"/")
	require.ErrorIs(t, err, gemini.ErrConnection)
}

func TestFetch_InvalidURL(t *testing.T) {
	_, _, err := runCmd(t, "fetch", "http://example.org/")
	require.ErrorIs(t, err, gemini.ErrInvalidRequest)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gemini", "config.yaml")

	stdout, _, err := runCmd(t, "config", "init", path)
	require.NoError(t, err)
	require.Contains(t, stdout, path)
	require.FileExists(t, path)

	_, _, err = runCmd(t, "config", "init", path)
	require.Error(t, err)

	// the written file loads back through --config
	_, _, err = runCmd(t, "--config", path, "fetch", "gemini://example.org:0/")
	require.ErrorIs(t, err, gemini.ErrInvalidRequest)
}
