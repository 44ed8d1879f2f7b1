// Package gemini implements the client side of the Gemini protocol: an
// incremental response header parser, status classification and a
// cancellable per-request session. A small server with handler
// middleware is included for capsules and tests.
package gemini

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/knowfox/gemwire/internal/log"
)

// ResponseWriter is used by a Handler to answer a request. The status
// line must be written before the body, and only success responses
// carry a body.
type ResponseWriter interface {
	WriteStatusMsg(status StatusCode, msg string) error
	WriteBody([]byte) (int, error)
}

// Handler is the interface a struct needs to implement to handle Gemini requests.
type Handler interface {
	ServeGemini(ResponseWriter, *Request)
}

// HandlerFunc adapts an ordinary function to a Handler.
type HandlerFunc func(ResponseWriter, *Request)

// ServeGemini calls f(w, r).
func (f HandlerFunc) ServeGemini(w ResponseWriter, r *Request) {
	f(w, r)
}

// NotFound answers 51.
func NotFound(w ResponseWriter, req *Request) {
	_ = w.WriteStatusMsg(StatusNotFound, "Resource Not Found")
}

// TrapPanic recovers a panicking handler and answers 40 if no status was
// sent yet.
func TrapPanic(next HandlerFunc) HandlerFunc {
	return func(w ResponseWriter, req *Request) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(log.CatServer, "trapped panic", "panic", fmt.Sprint(r), "url", req.URL, "stack", string(debug.Stack()))
				_ = w.WriteStatusMsg(StatusUnspecified, "Internal Server Error")
			}
		}()
		next(w, req)
	}
}

// ServeFile answers with the contents of file and closes it.
func ServeFile(file *os.File, mimeType string) HandlerFunc {
	return func(w ResponseWriter, r *Request) {
		defer file.Close()
		if err := w.WriteStatusMsg(StatusSuccess, mimeType); err != nil {
			return
		}
		if _, err := io.Copy(writerFunc(w.WriteBody), file); err != nil {
			log.ErrorErr(log.CatServer, "serve file", err, "name", file.Name())
		}
	}
}

// ServeFileName serves the named file, or answers 51 if it cannot be opened.
func ServeFileName(name string, mimeType string) HandlerFunc {
	return func(w ResponseWriter, r *Request) {
		f, err := os.Open(name)
		if err != nil {
			log.ErrorErr(log.CatServer, "open file", err, "name", name)
			NotFound(w, r)
			return
		}
		ServeFile(f, mimeType)(w, r)
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
