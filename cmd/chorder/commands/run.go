package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chorder/internal/chord"
	"chorder/internal/config"
	"chorder/internal/engine"
	"chorder/internal/keys"
	"chorder/internal/source"
)

type runFlags struct {
	source string
	device string
	script string
	table  string
	grab   bool
	echo   bool
}

func newRunCmd(g *globals) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve chords from the configured event source",
		Long: `Run the chord engine against the configured source until it ends or
chorder receives SIGINT or SIGTERM.

Resolutions are journaled, counted in metrics and published on D-Bus when
those are enabled in the configuration. The terminal source opens the
status display, like chorder sim.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			f.apply(cfg)
			if err := cfg.Validate(); err != nil {
				return out(cmd).Error("Invalid flags", err.Error(), nil)
			}
			if cfg.Source.Kind == config.SourceTerminal {
				return runTerminal(cmd, cfg)
			}
			pins := reloadPins{table: f.table != "", level: g.logLevel != ""}
			return runHeadless(cmd, cfg, f.echo, g.loadedPath, pins)
		},
	}
	cmd.Flags().StringVar(&f.source, "source", "", "event source: evdev, terminal or script")
	cmd.Flags().StringVar(&f.device, "device", "", "evdev device path")
	cmd.Flags().StringVar(&f.script, "script", "", "event script for the script source")
	cmd.Flags().StringVar(&f.table, "table", "", "chord table file")
	cmd.Flags().BoolVar(&f.grab, "grab", false, "grab the evdev device exclusively")
	cmd.Flags().BoolVar(&f.echo, "echo", false, "print resolved tokens to stdout")
	return cmd
}

func (f *runFlags) apply(cfg *config.Config) {
	if f.source != "" {
		cfg.Source.Kind = f.source
	}
	if f.device != "" {
		cfg.Source.Device = f.device
	}
	if f.script != "" {
		cfg.Source.ScriptPath = f.script
		if f.source == "" {
			cfg.Source.Kind = config.SourceScript
		}
	}
	if f.table != "" {
		cfg.Keyboard.TablePath = f.table
	}
	if f.grab {
		cfg.Source.Grab = true
	}
}

func openSource(cfg *config.Config, reg *keys.Registry) (source.Source, string, error) {
	switch cfg.Source.Kind {
	case config.SourceEvdev:
		src, err := source.OpenEvdev(cfg.Source.Device, reg, cfg.Source.Grab)
		return src, cfg.Source.Device, err
	case config.SourceScript:
		src, err := source.OpenScript(cfg.Source.ScriptPath, reg)
		return src, cfg.Source.ScriptPath, err
	default:
		return nil, "", fmt.Errorf("source %q needs a terminal", cfg.Source.Kind)
	}
}

func runHeadless(cmd *cobra.Command, cfg *config.Config, echo bool, configPath string, pins reloadPins) error {
	p := out(cmd)
	if err := cfg.EnsureDirectories(); err != nil {
		return p.Error("Cannot create data directories", err.Error(), nil)
	}
	logger, err := newLogger(cfg.Logging, false, cmd.ErrOrStderr())
	if err != nil {
		return p.Error("Cannot set up logging", err.Error(), nil)
	}
	defer logger.Close()

	reg, err := cfg.Registry()
	if err != nil {
		return p.Error("Invalid key registry", err.Error(), nil)
	}
	src, name, err := openSource(cfg, reg)
	if err != nil {
		return p.ErrorWithContext("Cannot open event source", err.Error(),
			map[string]string{"Source": cfg.Source.Kind, "Path": name},
			[]string{"Check the device permissions (the input group)", "Use --source terminal to simulate the keyboard"})
	}
	defer src.Close()

	s, err := newStack(cfg, logger, stackOptions{
		sourceName: cfg.Source.Kind + ":" + name,
		journal:    true,
		dbus:       true,
		watch:      true,
		serve:      true,
	})
	if err != nil {
		return p.Error("Cannot start the engine", err.Error(), nil)
	}
	defer s.Close()

	if configPath != "" {
		if err := s.watchConfig(configPath, pins); err != nil {
			logger.Warn("config changes will need a restart", "path", configPath, "error", err)
		}
	}

	if echo {
		w := cmd.OutOrStdout()
		if _, err := s.engine.Subscribe(engine.SubscriberFunc(func(t chord.Token) {
			fmt.Fprintln(w, t)
		})); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("engine started", "source", cfg.Source.Kind, "mode", s.engine.Mode(), "chords", s.table.Len())
	if err := s.run(ctx, src); err != nil {
		return p.Error("Event source failed", err.Error(), nil)
	}
	logger.Info("engine stopped", "last", s.engine.LastResolved().String())
	return nil
}

// contextOrBackground returns ctx, or a background context when cobra ran
// without one.
func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
