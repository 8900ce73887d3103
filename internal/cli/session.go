package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kingrea/layerdeck/internal/config"
	"github.com/kingrea/layerdeck/internal/deck"
	"github.com/kingrea/layerdeck/internal/eventbridge"
	"github.com/kingrea/layerdeck/internal/journal"
	"github.com/kingrea/layerdeck/internal/logbook"
	"github.com/kingrea/layerdeck/internal/metrics"
)

// sessionConfig selects which collaborators a command wires to the workspace.
type sessionConfig struct {
	watch    bool
	autosave bool
	journal  bool
	bridge   bool
}

// session is one opened workspace and everything hanging off it.
type session struct {
	cfg      *config.Config
	log      *logbook.Logbook
	recorder *metrics.PrometheusRecorder
	journal  *journal.Journal
	router   *eventbridge.Router
	ws       *deck.Workspace
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.NewConfig(opts.Dir)
	if err != nil {
		return nil, err
	}
	if doc := strings.TrimSpace(opts.Document); doc != "" {
		abs, err := filepath.Abs(doc)
		if err != nil {
			return nil, fmt.Errorf("resolve document: %w", err)
		}
		cfg.Project.Document = abs
	}
	return cfg, nil
}

func openSession(opts *RootOptions, sc sessionConfig) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	lb, err := logbook.New(cfg.LogPath(), logbook.WithDebug(opts.Debug))
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, log: lb, recorder: metrics.NewPrometheusRecorder()}

	wsOpts := deck.OptionsFromConfig(cfg)
	wsOpts.Logger = lb
	wsOpts.Recorder = s.recorder
	wsOpts.Autosave = sc.autosave
	wsOpts.Watch = wsOpts.Watch && sc.watch
	if sc.journal && cfg.JournalEnabled() {
		j, err := journal.Open(cfg.JournalPath())
		if err != nil {
			return nil, err
		}
		s.journal = j
		wsOpts.Journal = j
	}
	if sc.bridge {
		s.router = eventbridge.NewRouter(eventbridge.SettingsFromConfig(cfg).RouterOptions(lb)...)
		wsOpts.Publisher = s.router
	}
	ws, err := deck.Open(wsOpts)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.ws = ws
	return s, nil
}

// newServer builds the bridge over the session's workspace. Producer events
// are applied to the workspace and then routed to stream subscribers.
func (s *session) newServer(ctx context.Context, settings eventbridge.Settings) *eventbridge.Server {
	return eventbridge.NewServer(settings,
		eventbridge.WithProcessor(eventbridge.NewDispatcher(ctx, s.ws, s.router)),
		eventbridge.WithOrderSource(s.ws),
		eventbridge.WithRouter(s.router),
		eventbridge.WithMetricsHandler(s.recorder.Handler()),
		eventbridge.WithLogger(s.log),
	)
}

// oneShot runs the workspace loop just long enough for fn.
func (s *session) oneShot(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.ws.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})
	return g.Wait()
}

// Close releases the journal. The workspace must have stopped.
func (s *session) Close() {
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.log.Warn("close journal: %v", err)
		}
	}
}
