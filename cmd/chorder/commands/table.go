package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chorder/internal/chord"
)

func newTableCmd(g *globals) *cobra.Command {
	var (
		format string
		file   string
	)
	cmd := &cobra.Command{
		Use:   "table [mode]",
		Short: "List the chords of a mode, or export the whole table",
		Long: `List chords as text, one mode at a time, or export the whole table.

With --format toml, yaml or json the table is written in that file format,
which chorder accepts as table_path.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			if file != "" {
				cfg.Keyboard.TablePath = file
			}
			p := out(cmd)
			reg, err := cfg.Registry()
			if err != nil {
				return p.Error("Invalid key registry", err.Error(), nil)
			}
			table, err := loadTable(cfg, reg)
			if err != nil {
				return p.Error("Invalid chord table", err.Error(), nil)
			}

			w := cmd.OutOrStdout()
			switch format {
			case "toml":
				return chord.Encode(w, table, chord.FormatTOML, reg)
			case "yaml":
				return chord.Encode(w, table, chord.FormatYAML, reg)
			case "json":
				return chord.Encode(w, table, chord.FormatJSON, reg)
			case "text":
			default:
				return p.Error("Unknown format", fmt.Sprintf("format %q is not supported", format),
					[]string{"Use text, toml, yaml or json"})
			}

			modes := table.Modes()
			if len(args) == 1 {
				mode := chord.Mode(args[0])
				if !table.HasMode(mode) {
					return p.Error("Unknown mode", fmt.Sprintf("mode %s is not in the table", mode),
						[]string{fmt.Sprintf("Pick one of %v", modes)})
				}
				modes = []chord.Mode{mode}
			}

			for i, mode := range modes {
				if i > 0 {
					fmt.Fprintln(w)
				}
				header := string(mode)
				if mode == table.Initial() {
					header += " (initial)"
				}
				fmt.Fprintln(w, header)

				tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
				fmt.Fprintln(tw, "  CHORD\tTOKEN\tNEXT")
				for _, c := range table.Chords(mode) {
					next := ""
					if c.Next != mode {
						next = string(c.Next)
					}
					fmt.Fprintf(tw, "  %s\t%s\t%s\n", c.Combo.Label(reg), c.Token, next)
				}
				tw.Flush()
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, toml, yaml or json")
	cmd.Flags().StringVar(&file, "table", "", "chord table file")
	return cmd
}
