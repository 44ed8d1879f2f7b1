package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/knowfox/gemwire/internal/config"
	"github.com/knowfox/gemwire/internal/log"
	"github.com/knowfox/gemwire/internal/tracing"
)

// app carries state shared by the subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	debug   bool
	cfg     config.Config

	tracer  *tracing.Provider
	cleanup []func()
}

func newRootCmd(version string) *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:           "gemini",
		Short:         "Gemini protocol client and example server",
		Long:          `Fetch gemini:// resources or serve a small example capsule over TLS.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "",
		"config file (default: ~/.config/gemini/config.yaml)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", os.Getenv("GEMINI_DEBUG") != "",
		"write debug log (to log.path or stderr)")

	root.AddCommand(newFetchCmd(a), newServeCmd(a), newConfigCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if a.debug || cfg.Log.Enabled {
		if cfg.Log.Path != "" {
			closeLog, err := log.Init(cfg.Log.Path)
			if err != nil {
				return fmt.Errorf("opening log file: %w", err)
			}
			a.cleanup = append(a.cleanup, closeLog)
		} else {
			log.SetOutput(os.Stderr)
		}
		level, _ := log.ParseLevel(cfg.Log.Level)
		log.SetMinLevel(level)
	}

	p, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	a.tracer = p
	return nil
}

func (a *app) close() error {
	var err error
	if a.tracer != nil {
		err = a.tracer.Shutdown(context.Background())
		a.tracer = nil
	}
	for _, fn := range a.cleanup {
		fn()
	}
	a.cleanup = nil
	return err
}
