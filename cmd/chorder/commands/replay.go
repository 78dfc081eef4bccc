package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chorder/internal/engine"
	"chorder/internal/keys"
	"chorder/internal/source"
)

func newReplayCmd(g *globals) *cobra.Command {
	var (
		table       string
		record      bool
		showMetrics bool
	)
	cmd := &cobra.Command{
		Use:   "replay <script>",
		Short: "Replay an event script and print each resolution",
		Long: `Replay an event script through the engine.

A script is a sequence of +K (press) and -K (release) tokens where K is a
key abbreviation or index. @N advances the clock by N milliseconds from
the start of the replay and # starts a comment:

    # "e" then shift-E
    +I @80 -I
    +C +F @200 -F -C
    +I -I`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			if table != "" {
				cfg.Keyboard.TablePath = table
			}
			p := out(cmd)

			logger, err := newLogger(cfg.Logging, false, cmd.ErrOrStderr())
			if err != nil {
				return p.Error("Cannot set up logging", err.Error(), nil)
			}
			defer logger.Close()

			reg, err := cfg.Registry()
			if err != nil {
				return p.Error("Invalid key registry", err.Error(), nil)
			}
			script, err := source.OpenScript(args[0], reg)
			if err != nil {
				return p.Error("Cannot read script", err.Error(),
					[]string{"Use +K and -K tokens with abbreviations from chorder keys"})
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			printer := &resolutionPrinter{w: tw, reg: reg}

			if record {
				if err := cfg.EnsureDirectories(); err != nil {
					return p.Error("Cannot create data directories", err.Error(), nil)
				}
			}
			s, err := newStack(cfg, logger, stackOptions{
				sourceName: "replay:" + args[0],
				journal:    record,
				engineOpts: []engine.Option{engine.WithRecorder(printer)},
			})
			if err != nil {
				return p.Error("Cannot start the engine", err.Error(), nil)
			}
			defer s.Close()

			fmt.Fprintln(tw, "MODE\tCHORD\tTOKEN\tNEXT\tHELD")
			if err := s.run(contextOrBackground(cmd.Context()), script); err != nil {
				return p.Error("Replay failed", err.Error(), nil)
			}
			tw.Flush()

			fmt.Fprintf(cmd.OutOrStdout(), "\n%d chords, %d misses, mode %s, last %q\n",
				printer.hits+printer.misses, printer.misses, s.engine.Mode(), s.engine.LastResolved().String())
			if showMetrics {
				fmt.Fprintln(cmd.OutOrStdout())
				return s.metrics.Registry().WritePrometheus(cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "chord table file")
	cmd.Flags().BoolVar(&record, "journal", false, "record the replay in the journal")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print engine metrics after the replay")
	return cmd
}

// resolutionPrinter writes one row per resolution attempt.
type resolutionPrinter struct {
	w      io.Writer
	reg    *keys.Registry
	hits   int
	misses int
}

func (r *resolutionPrinter) Record(res engine.Resolution) error {
	next := ""
	if !res.Miss && res.Next != res.Mode {
		next = string(res.Next)
	}
	if res.Miss {
		r.misses++
	} else {
		r.hits++
	}
	_, err := fmt.Fprintf(r.w, "%s\t%s\t%s\t%s\t%s\n",
		res.Mode, res.Combo.Label(r.reg), res.Outcome(), next, res.Held)
	return err
}
