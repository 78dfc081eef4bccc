package commands

import (
	"chorder/internal/config"
	"chorder/internal/logging"
)

// reloadPins lists settings fixed by command-line flags, which a reloaded
// config file must not override.
type reloadPins struct {
	table bool
	level bool
}

// watchConfig reloads path whenever it changes and applies the settings
// that can change at runtime: the log level and the chord table file.
// Everything else needs a restart.
func (s *stack) watchConfig(path string, pins reloadPins) error {
	l := config.NewLoader(path)
	if _, err := l.Load(); err != nil {
		return err
	}
	l.OnChange(func(cfg *config.Config) { s.reconfigure(cfg, pins) })
	if err := l.Watch(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case err := <-l.Errors():
				s.logger.Warn("config reload failed, keeping the running config", "path", path, "error", err)
			case <-done:
				return
			}
		}
	}()
	s.closers = append(s.closers, func() error {
		close(done)
		return l.Close()
	})
	s.logger.Info("watching config", "path", path)
	return nil
}

// reconfigure applies cfg to the running stack.
func (s *stack) reconfigure(cfg *config.Config, pins reloadPins) {
	if !pins.level {
		level, err := logging.ParseLevel(cfg.Logging.Level)
		if err == nil && level != s.logger.Level() {
			s.logger.SetLevel(level)
			s.logger.Info("log level changed", "level", logging.LevelString(level))
		}
	}
	if pins.table {
		return
	}

	s.mu.Lock()
	current := s.tablePath
	s.mu.Unlock()
	path := cfg.Keyboard.TablePath
	if path == current {
		return
	}

	table, err := loadTable(cfg, s.reg)
	if err != nil {
		s.logger.Warn("chord table from reloaded config rejected", "path", tableName(path), "error", err)
		return
	}
	_ = s.engine.SetTable(table)

	s.mu.Lock()
	s.tablePath = path
	s.mu.Unlock()
	if err := s.followTable(path); err != nil {
		s.logger.Warn("cannot watch chord table", "path", path, "error", err)
	}
	s.logger.Info("chord table switched", "path", tableName(path), "chords", table.Len())
}
