package commands

import (
	"github.com/spf13/cobra"

	"chorder/internal/config"
)

func newInitCmd(g *globals) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write the default configuration to the --config path, or to the
platform config directory. The file format follows the extension: .toml,
.yaml, .yml or .json.

An existing file is validated and left alone unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := out(cmd)
			path := g.configPath
			if path == "" {
				path = config.ConfigPath()
			}

			if force {
				p.Step("writing defaults to %s", path)
				if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
					return p.Error("Cannot write configuration", err.Error(), nil)
				}
				p.Success("configuration written")
				return nil
			}

			cfg, created, err := config.LoadOrCreate(path)
			if err != nil {
				return p.ErrorWithContext("Existing configuration is invalid", err.Error(),
					map[string]string{"File": path},
					[]string{"Fix the listed fields", "Run chorder init --force to start over"})
			}
			if created {
				p.Success("configuration written to %s", path)
			} else {
				p.Info("configuration already exists at %s", path)
			}
			p.Info("journal: %s", cfg.Journal.Path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
