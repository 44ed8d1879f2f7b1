package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	gemini "github.com/knowfox/gemwire"
	"github.com/knowfox/gemwire/internal/log"
)

// errStatus is returned for a response that is not a success so the
// process exits non-zero; the header was already printed.
type errStatus struct {
	header gemini.ResponseHeader
}

func (e errStatus) Error() string {
	return fmt.Sprintf("%s (%s)", e.header, e.header.Status.Text())
}

func newFetchCmd(a *app) *cobra.Command {
	var insecure bool
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch a gemini:// URL",
		Long:  `Fetch a gemini:// URL, print the response header to stderr and the body to stdout.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &gemini.Client{
				InsecureSkipVerify: insecure || a.cfg.Client.InsecureSkipVerify,
				Timeout:            a.cfg.Client.Timeout,
				MaxMetaLength:      a.cfg.Client.MaxMetaLength,
				Tracer:             a.tracer.Tracer(),
			}
			return fetch(cmd, client, args[0])
		},
	}
	cmd.Flags().BoolVarP(&insecure, "insecure", "k", false, "skip server certificate verification")
	return cmd
}

func fetch(cmd *cobra.Command, client *gemini.Client, rawurl string) error {
	req, err := gemini.NewRequestWithContext(cmd.Context(), rawurl)
	if err != nil {
		return err
	}

	session := client.NewSession(req)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer func() {
		signal.Stop(sig)
		close(sig)
	}()
	go func() {
		if _, ok := <-sig; ok {
			session.Cancel()
		}
	}()

	res, err := session.Do()
	if err != nil {
		return err
	}
	defer res.Body.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), res.Header.String())
	n, err := io.Copy(cmd.OutOrStdout(), res.Body)
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	log.Debug(log.CatClient, "fetched", "id", session.ID(), "url", rawurl, "bytes", n)

	if !res.Header.Status.IsSuccess() {
		return errStatus{header: res.Header}
	}
	return nil
}
