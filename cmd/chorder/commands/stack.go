package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"chorder/internal/chord"
	"chorder/internal/config"
	"chorder/internal/engine"
	"chorder/internal/health"
	"chorder/internal/journal"
	"chorder/internal/keys"
	"chorder/internal/logging"
	"chorder/internal/metrics"
	"chorder/internal/publish"
)

// stackOptions selects the optional parts of a stack.
type stackOptions struct {
	sourceName string
	journal    bool
	dbus       bool
	watch      bool
	serve      bool
	engineOpts []engine.Option
}

// stack is an engine with everything wired around it.
type stack struct {
	cfg     *config.Config
	logger  *logging.Logger
	reg     *keys.Registry
	table   *chord.Table
	metrics *metrics.ChordMetrics
	engine  *engine.Engine
	session *journal.Session
	health  *health.Checker

	// The chord table file in use and its watcher, replaced when a
	// reloaded config points elsewhere.
	mu          sync.Mutex
	tablePath   string
	tableWatch  *chord.Watcher
	watchTables bool

	closers []func() error
}

func loadTable(cfg *config.Config, reg *keys.Registry) (*chord.Table, error) {
	if cfg.Keyboard.TablePath == "" {
		return chord.Default(reg)
	}
	return chord.Load(cfg.Keyboard.TablePath, reg)
}

func newStack(cfg *config.Config, logger *logging.Logger, opts stackOptions) (*stack, error) {
	s := &stack{cfg: cfg, logger: logger, health: health.NewChecker()}
	built := false
	defer func() {
		if !built {
			s.Close()
		}
	}()

	var err error
	if s.reg, err = cfg.Registry(); err != nil {
		return nil, fmt.Errorf("key registry: %w", err)
	}
	if s.table, err = loadTable(cfg, s.reg); err != nil {
		return nil, err
	}
	s.metrics = metrics.NewChordMetrics(nil)

	engineOpts := []engine.Option{
		engine.WithLogger(logger.WithComponent("engine").Logger),
		engine.WithMetrics(s.metrics),
		engine.WithRegistry(s.reg),
		engine.WithPollInterval(cfg.Engine.PollInterval()),
		engine.WithInitialMode(chord.Mode(cfg.Keyboard.InitialMode)),
	}

	if opts.journal && cfg.Journal.Enabled {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, store.Close)
		s.health.Register("journal", true, store.Ping)
		if s.session, err = store.Begin(opts.sourceName); err != nil {
			return nil, err
		}
		s.closers = append(s.closers, s.session.End)
		engineOpts = append(engineOpts, engine.WithRecorder(s.session))
	}
	engineOpts = append(engineOpts, opts.engineOpts...)

	if s.engine, err = engine.New(s.table, engineOpts...); err != nil {
		return nil, err
	}

	if opts.dbus && cfg.DBus.Enabled {
		pub, err := publish.Connect(cfg.DBus.BusName, dbus.ObjectPath(cfg.DBus.ObjectPath), s.engine,
			logger.WithComponent("dbus").Logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pub.Close)
		s.health.Register("dbus", false, emitCheck(pub))
		if _, err := s.engine.Subscribe(pub); err != nil {
			return nil, err
		}
	}

	s.tablePath = cfg.Keyboard.TablePath
	s.watchTables = opts.watch && cfg.Keyboard.WatchTable
	s.closers = append(s.closers, func() error { return s.followTable("") })
	if err := s.followTable(s.tablePath); err != nil {
		return nil, err
	}

	if opts.serve && cfg.Metrics.Enabled {
		s.serveMetrics(cfg.Metrics.ListenAddr)
	}
	built = true
	return s, nil
}

func (s *stack) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Registry().HTTPHandler())
	mux.Handle("/healthz", s.health.LiveHandler())
	mux.Handle("/readyz", s.health.ReadyHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server", "addr", addr, "error", err)
		}
	}()
	s.logger.Info("serving metrics and health", "addr", addr, "checks", s.health.Names())

	s.closers = append(s.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// followTable moves the table watcher to path. An empty path, or a stack
// built without watching, only stops the current watcher.
func (s *stack) followTable(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tableWatch != nil {
		s.tableWatch.Close()
		s.tableWatch = nil
	}
	if !s.watchTables || path == "" {
		return nil
	}
	w, err := chord.Watch(path, s.reg, func(t *chord.Table) {
		_ = s.engine.SetTable(t)
	}, s.logger.WithComponent("table").Logger)
	if err != nil {
		return err
	}
	s.tableWatch = w
	return nil
}

// Close releases everything in reverse order of acquisition.
func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// run drives the engine from src until it ends or ctx is cancelled.
// Cancellation is a normal exit.
func (s *stack) run(ctx context.Context, src engine.Source) error {
	s.health.SetReady(true)
	err := s.engine.Run(ctx, src)
	s.health.SetReady(false)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// emitCheck fails when signals were lost since the previous check.
func emitCheck(pub *publish.Publisher) health.Check {
	var mu sync.Mutex
	var seen uint64
	return func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		failed := pub.Failed()
		lost := failed - seen
		seen = failed
		if lost > 0 {
			return fmt.Errorf("%d signals not delivered", lost)
		}
		return nil
	}
}
