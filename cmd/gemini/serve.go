package main

import (
	"context"
	"crypto/tls"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	gemini "github.com/knowfox/gemwire"
	"github.com/knowfox/gemwire/internal/log"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the example capsule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), a)
		},
	}
	cmd.Flags().String("host", "", "listen on host and port.  Example: hostname:1965")
	cmd.Flags().String("cert", "", "certificate file")
	cmd.Flags().String("key", "", "private key associated with certificate file")
	_ = a.v.BindPFlag("server.addr", cmd.Flags().Lookup("host"))
	_ = a.v.BindPFlag("server.cert_file", cmd.Flags().Lookup("cert"))
	_ = a.v.BindPFlag("server.key_file", cmd.Flags().Lookup("key"))
	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg.Server
	tlsConfig, err := gemini.ServerTLSConfig(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return err
	}

	srv := &gemini.Server{
		Addr:        cfg.Addr,
		Handler:     gemini.TrapPanic(capsule{root: cfg.Root}.ServeGemini),
		TLSConfig:   tlsConfig,
		ReadTimeout: cfg.ReadTimeout,
	}
	if cfg.SlowDown.Burst > 0 {
		srv.SlowDown = gemini.NewSlowDown(cfg.SlowDown.Window, cfg.SlowDown.Burst)
	}

	ln, err := tls.Listen("tcp", cfg.Addr, tlsConfig)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info(log.CatServer, "shutting down")
		_ = ln.Close()
	}()
	return srv.Serve(ln)
}
