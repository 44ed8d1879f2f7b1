package main

import (
	"errors"
	"path/filepath"
	"strings"

	gemini "github.com/knowfox/gemwire"
	"github.com/knowfox/gemwire/internal/log"
)

// capsule is the example site served by "gemini serve".
type capsule struct {
	root string
}

func (h capsule) ServeGemini(w gemini.ResponseWriter, req *gemini.Request) {
	log.Info(log.CatServer, "request", "path", req.URL.Path, "user", strings.Join(req.UserName(), " "))
	switch req.URL.Path {
	case "/":
		err := w.WriteStatusMsg(gemini.StatusSuccess, "text/gemini")
		requireNoError(err)
		_, err = w.WriteBody([]byte("# Hello, world!\n\n=> /user Who am I?\n=> /file A file\n"))
		requireNoError(err)
	case "/user":
		if req.Certificate() == nil {
			_ = w.WriteStatusMsg(gemini.StatusCertRequired, "Authentication Required")
			return
		}
		_ = w.WriteStatusMsg(gemini.StatusSuccess, "text/gemini")
		_, _ = w.WriteBody([]byte(req.Certificate().Subject.CommonName))
	case "/search":
		if req.URL.RawQuery == "" {
			_ = w.WriteStatusMsg(gemini.StatusPlainInput, "Search for")
			return
		}
		_ = w.WriteStatusMsg(gemini.StatusSuccess, "text/plain")
		_, _ = w.WriteBody([]byte("You searched for: " + req.URL.Query().Encode()))
	case "/old":
		_ = w.WriteStatusMsg(gemini.StatusPermanentRedirect, "/")
	case "/die":
		requireNoError(errors.New("must die"))
	case "/file":
		gemini.ServeFileName(filepath.Join(h.root, "hello.gmi"), "text/gemini")(w, req)
	default:
		_ = w.WriteStatusMsg(gemini.StatusNotFound, req.URL.Path)
	}
}

func requireNoError(err error) {
	if err != nil {
		panic(err)
	}
}
