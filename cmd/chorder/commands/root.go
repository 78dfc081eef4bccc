// Package commands implements the chorder CLI.
package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"chorder/internal/config"
	"chorder/internal/logging"
	"chorder/internal/printer"
)

var versionString = "dev"

// SetVersionInfo sets the version reported by --version.
func SetVersionInfo(v, c, d string) {
	versionString = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

// globals holds the persistent flags.
type globals struct {
	configPath string
	logLevel   string

	// loadedPath is the file loadConfig read, empty when none was found.
	loadedPath string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "chorder",
		Short: "Chord resolution engine for chorded keyboards",
		Long: `chorder turns key presses on a chorded keyboard into tokens.

A chord is sampled when its first key is released and looked up in a
modal chord table. Resolved tokens are delivered to subscribers: the
terminal display, the practice game, the journal and the D-Bus publisher.`,
		Version: versionString,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (default: search standard locations)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newRunCmd(g),
		newSimCmd(g),
		newReplayCmd(g),
		newCheckCmd(g),
		newKeysCmd(g),
		newTableCmd(g),
		newStatsCmd(g),
		newInitCmd(g),
	)
	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

func out(cmd *cobra.Command) *printer.Printer {
	return printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// loadConfig resolves the config file and applies the persistent flags.
func (g *globals) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := g.configPath
	if path == "" {
		path = config.FindConfigFile()
	}
	g.loadedPath = path
	cfg, err := config.Load(path)
	if err != nil {
		return nil, out(cmd).ErrorWithContext("Invalid configuration", err.Error(),
			map[string]string{"File": displayPath(path)},
			[]string{"Fix the listed fields", "Run chorder check to validate a config file"})
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, out(cmd).Error("Invalid log level", err.Error(), nil)
		}
	}
	return cfg, nil
}

func displayPath(path string) string {
	if path == "" {
		return config.ConfigPath() + " (not found, using defaults)"
	}
	return path
}

// newLogger builds the logger described by cfg. quiet replaces terminal
// outputs with discard, for commands that own the screen.
func newLogger(cfg config.LoggingConfig, quiet bool, stderr io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	lc := &logging.Config{
		Level:      level,
		Format:     format,
		Output:     strings.ToLower(cfg.Output),
		FilePath:   cfg.FilePath,
		MaxSize:    int64(cfg.MaxSizeMB),
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
		Component:  "chorder",
	}
	switch {
	case quiet && lc.Output == "both":
		lc.Output = "file"
	case quiet && lc.Output != "file":
		lc.Output = "discard"
	case lc.Output == "stderr" && stderr != nil:
		lc.Writer = stderr
	}
	return logging.New(lc)
}
