package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahtavarasmus/TextAndDrive/internal/server"
)

var (
	serveAddr string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve sessions, turns and recordings over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer a.Close()

	ag, err := a.buildAgent(ctx)
	if err != nil {
		return err
	}
	sessions, err := a.sessionManager()
	if err != nil {
		return err
	}

	deps := server.Deps{
		Agent:     ag,
		Sessions:  sessions,
		Gatherer:  a.registry,
		Logger:    a.logger.With("component", "server"),
		UploadDir: a.cfg.TTS.CacheDir,
	}
	p, err := a.pipeline(ctx, false)
	if err != nil {
		a.logger.Warn("speech unavailable, recordings endpoint disabled", "error", err)
	} else {
		deps.Recordings = p
	}

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	return server.New(deps).Run(ctx, addr)
}
