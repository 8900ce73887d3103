package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/layerdeck/internal/config"
	"github.com/kingrea/layerdeck/internal/eventbridge"
	"github.com/kingrea/layerdeck/internal/tui"
)

const shutdownTimeout = 5 * time.Second

// NewUICommand creates the ui command.
func NewUICommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the layer list in the terminal",
		Long: `Open the interactive layer list. Drag rows with the mouse or use
shift+up/down to restack; the document is saved after every move.

The HTTP bridge is started alongside the UI when it is enabled so producers
can add records while you work.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUI(cmd.Context(), rootOpts)
		},
	}
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the workspace headless behind the HTTP bridge",
		Long: `Run the workspace without a UI. Producers POST record events to
/events, observers follow /events/stream, and /order, /health and /metrics
report state. Stops on SIGINT or SIGTERM.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts, cmd)
		},
	}
}

func runUI(ctx context.Context, opts *RootOptions) error {
	if err := config.InitProjectDir(opts.Dir); err != nil {
		return err
	}
	s, err := openSession(opts, sessionConfig{watch: true, autosave: true, journal: true, bridge: true})
	if err != nil {
		return err
	}
	defer s.Close()
	s.log.Info("session opened · document %s", s.cfg.DocumentPath())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.ws.Run(gctx) })

	settings := eventbridge.SettingsFromConfig(s.cfg)
	if settings.Enabled {
		server := s.newServer(gctx, settings)
		if err := server.Start(gctx); err != nil {
			s.log.Warn("bridge unavailable: %v", err)
		} else {
			g.Go(func() error { return shutdownOnDone(gctx, server) })
		}
	}

	g.Go(func() error {
		defer cancel()
		return tui.Run(gctx, s.ws,
			tui.WithLogTail(s.log),
			tui.WithTitle(filepath.Base(s.cfg.DocumentPath())),
		)
	})
	err = g.Wait()
	s.log.Info("session closed")
	return err
}

func runServe(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(opts, sessionConfig{watch: true, autosave: true, journal: true, bridge: true})
	if err != nil {
		return err
	}
	defer s.Close()
	settings := eventbridge.SettingsFromConfig(s.cfg)
	if !settings.Enabled {
		return errors.New("bridge is disabled (bridge.enabled in config.yaml or LAYERDECK_BRIDGE_ENABLED)")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.ws.Run(gctx) })
	server := s.newServer(gctx, settings)
	if err := server.Start(gctx); err != nil {
		stop()
		_ = g.Wait()
		return err
	}
	g.Go(func() error { return shutdownOnDone(gctx, server) })
	s.log.Info("serving %s on %s", s.cfg.DocumentPath(), server.BaseURL())
	fmt.Fprintf(cmd.OutOrStdout(), "layerdeck serving %s on %s\n", s.cfg.DocumentPath(), server.BaseURL())
	return g.Wait()
}

func shutdownOnDone(ctx context.Context, server *eventbridge.Server) error {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
