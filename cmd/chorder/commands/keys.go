package commands

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chorder/internal/keys"
	"chorder/internal/source"
)

func newKeysCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the chord keys and navigation buttons",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			reg, err := cfg.Registry()
			if err != nil {
				return out(cmd).Error("Invalid key registry", err.Error(), nil)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Chord keys:")
			writeKeys(w, reg)
			fmt.Fprintln(w, "\nNavigation buttons:")
			writeKeys(w, keys.DefaultNav())
			return nil
		},
	}
}

func writeKeys(w io.Writer, reg *keys.Registry) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "  INDEX\tABBREV\tPIN\tEVDEV\tDESCRIPTION")
	for _, d := range reg.Keys() {
		code := "-"
		if c, err := source.ParseKeyCode(d.Pin); err == nil {
			code = strconv.Itoa(int(c))
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", d.Index, d.Abbrev, d.Pin, code, d.Description)
	}
	tw.Flush()
}
