package commands

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"chorder/internal/config"
	"chorder/internal/display"
	"chorder/internal/nav"
	"chorder/internal/practice"
	"chorder/internal/source"
)

func newSimCmd(g *globals) *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Simulate the keyboard in the terminal",
		Long: `Simulate the chorded keyboard with the terminal.

Type a key's abbreviation (or its index) to press it and again to release
it. Space releases every held key, which resolves the chord. F1, F2 and F3
are the navigation buttons D0, D1 and D2. Esc or Ctrl-C quits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Source.Kind = config.SourceTerminal
			if table != "" {
				cfg.Keyboard.TablePath = table
			}
			return runTerminal(cmd, cfg)
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "chord table file")
	return cmd
}

// pages builds the start and practice pages. D0 toggles between them,
// D1 resets the current activity.
func pages(resetEngine, resetGame func()) (start, pract *nav.Page) {
	start = nav.NewPage("Start", "Chord status")
	pract = nav.NewPage("Pract", "A practice game to up the WPM")

	_ = start.Bind(nav.D0, nav.ToPage(pract))
	_ = start.Bind(nav.D1, nav.Do("Reset", resetEngine))
	_ = pract.Bind(nav.D0, nav.ToPage(start))
	_ = pract.Bind(nav.D1, nav.Do("Restart", resetGame))
	return start, pract
}

func runTerminal(cmd *cobra.Command, cfg *config.Config) error {
	p := out(cmd)
	if err := cfg.EnsureDirectories(); err != nil {
		return p.Error("Cannot create data directories", err.Error(), nil)
	}
	// The screen belongs to the display, so only file logging survives.
	logger, err := newLogger(cfg.Logging, true, nil)
	if err != nil {
		return p.Error("Cannot set up logging", err.Error(), nil)
	}
	defer logger.Close()

	game, err := practice.New(cfg.Practice.Words)
	if err != nil {
		return p.Error("No practice words", err.Error(), []string{"Set practice.words in the config file"})
	}

	s, err := newStack(cfg, logger, stackOptions{
		sourceName: config.SourceTerminal,
		journal:    true,
		dbus:       true,
		watch:      true,
		serve:      true,
	})
	if err != nil {
		return p.Error("Cannot start the engine", err.Error(), nil)
	}
	defer s.Close()

	if _, err := s.engine.Subscribe(game); err != nil {
		return err
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return p.Error("No terminal", err.Error(), []string{"Run chorder replay with an event script instead"})
	}
	if err := screen.Init(); err != nil {
		return p.Error("Cannot initialise the terminal", err.Error(), nil)
	}
	fini := sync.OnceFunc(screen.Fini)
	defer fini()

	term := source.NewTerminal(screen, s.reg)
	defer term.Close()

	start, pract := pages(func() {
		s.engine.Reset()
		term.Reset()
	}, game.Reset)
	navigator := nav.NewNavigator(start)
	navigator.OnEnter(func(pg *nav.Page) {
		logger.Info("page", "name", pg.Name)
	})
	term.OnNav(func(slot int) { navigator.Press(nav.Slot(slot)) })

	status := display.New(screen, s.engine, s.reg,
		display.WithLogTail(logger.Last),
		display.WithPractice(game, pract),
		display.WithNavigator(navigator),
	)

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	drawn := make(chan struct{})
	go func() {
		defer close(drawn)
		_ = status.Run(ctx, display.DefaultRefresh)
	}()

	logger.Info("simulator started", "mode", s.engine.Mode())
	err = s.run(ctx, term)
	cancel()
	<-drawn
	fini()
	if err != nil {
		return p.Error("Terminal source failed", err.Error(), nil)
	}
	return nil
}
