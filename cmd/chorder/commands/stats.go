package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"chorder/internal/journal"
)

func newStatsCmd(g *globals) *cobra.Command {
	var (
		session string
		recent  int
		top     int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show resolution statistics from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			p := out(cmd)

			id := uuid.Nil
			if session != "" {
				if id, err = uuid.Parse(session); err != nil {
					return p.Error("Invalid session id", err.Error(), nil)
				}
			}
			if _, err := os.Stat(cfg.Journal.Path); err != nil {
				return p.ErrorWithContext("No journal", err.Error(),
					map[string]string{"Journal": cfg.Journal.Path},
					[]string{"Run chorder run or chorder sim with journal.enabled = true"})
			}

			store, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return p.Error("Cannot open journal", err.Error(), nil)
			}
			defer store.Close()

			st, err := store.Stats(id)
			if err != nil {
				return p.Error("Cannot read journal", err.Error(), nil)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Sessions:   %d\n", st.Sessions)
			fmt.Fprintf(w, "Attempts:   %d\n", st.Attempts)
			fmt.Fprintf(w, "Hits:       %d\n", st.Hits)
			fmt.Fprintf(w, "Misses:     %d (%.1f%%)\n", st.Misses, 100*st.MissRatio())
			if st.Attempts > 0 {
				fmt.Fprintf(w, "Mean hold:  %s\n", st.MeanHeld.Round(time.Millisecond))
				fmt.Fprintf(w, "Period:     %s to %s\n",
					st.FirstSeen.Format(time.DateTime), st.LastSeen.Format(time.DateTime))
			}

			if len(st.PerToken) > 0 {
				fmt.Fprintln(w, "\nTop tokens:")
				tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
				for i, tc := range st.PerToken {
					if top > 0 && i >= top {
						break
					}
					fmt.Fprintf(tw, "  %s\t%d\n", tc.Token, tc.Count)
				}
				tw.Flush()
			}

			if recent > 0 {
				entries, err := store.Recent(recent)
				if err != nil {
					return p.Error("Cannot read journal", err.Error(), nil)
				}
				reg, _ := cfg.Registry()
				fmt.Fprintln(w, "\nRecent:")
				tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
				for _, e := range entries {
					fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n",
						e.At.Format(time.TimeOnly), e.Mode, e.Combo.Label(reg), e.Outcome())
				}
				tw.Flush()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "limit to one session id")
	cmd.Flags().IntVarP(&recent, "recent", "n", 0, "also list the n most recent resolutions")
	cmd.Flags().IntVar(&top, "top", 10, "number of tokens listed (0 for all)")
	return cmd
}
