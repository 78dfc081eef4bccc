package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"chorder/internal/chord"
	"chorder/internal/logging"
)

func newCheckCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [table]",
		Short: "Validate the configuration and chord table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			p := out(cmd)
			p.Success("configuration valid (%s)", displayPath(g.configPath))

			reg, err := cfg.Registry()
			if err != nil {
				return p.Error("Invalid key registry", err.Error(), nil)
			}
			p.Success("%d keys registered", reg.Len())

			if len(args) == 1 {
				cfg.Keyboard.TablePath = args[0]
			}
			table, err := loadTable(cfg, reg)
			if err != nil {
				return p.ErrorWithContext("Invalid chord table", err.Error(),
					map[string]string{"Table": tableName(cfg.Keyboard.TablePath)},
					[]string{"Every chord needs keys from chorder keys and a unique combination per mode"})
			}

			start := table.Initial()
			if cfg.Keyboard.InitialMode != "" {
				if !table.HasMode(chord.Mode(cfg.Keyboard.InitialMode)) {
					p.Warning("initial mode %s is not in the table, starting in %s", cfg.Keyboard.InitialMode, start)
				} else {
					start = chord.Mode(cfg.Keyboard.InitialMode)
				}
			}
			p.Success("chord table %s: %d chords in %d modes, starting in %s",
				tableName(cfg.Keyboard.TablePath), table.Len(), len(table.Modes()), start)

			switch strings.ToLower(cfg.Logging.Output) {
			case "file", "both":
				files, err := logging.LogFiles(cfg.Logging.FilePath)
				if err != nil {
					p.Warning("cannot list log files: %v", err)
					break
				}
				if len(files) == 0 {
					p.Info("no log files yet at %s", cfg.Logging.FilePath)
					break
				}
				p.Info("log files:")
				for _, f := range files {
					p.Info("  %s", f)
				}
			}
			return nil
		},
	}
	return cmd
}

func tableName(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}
