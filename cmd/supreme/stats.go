package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"supreme-bot/internal/analytics"
	"supreme-bot/internal/audit"
	"supreme-bot/internal/storage"
)

func newStatsCmd() *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show corpus, ticket and flow statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *storage.Store) error {
				report, err := analytics.New(store).Report(cmd.Context(), time.Now().Add(-since))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				t := report.Totals
				fmt.Fprintf(out, "Training entries: %d (used %d times)\n", t.Trainings, t.TotalUsage)
				fmt.Fprintf(out, "Open tickets: %d | AI resolved: %d | Messages: %d\n", t.OpenTickets, t.AIResolved, t.Conversations)
				fmt.Fprintf(out, "Events since %s: %d (INFO %d, WARN %d, CRIT %d)\n",
					report.Since.Format(time.RFC3339), report.Events,
					report.ByLevel[audit.LevelInfo], report.ByLevel[audit.LevelWarn], report.ByLevel[audit.LevelCrit])
				for _, name := range []string{applicationFlow, tradeFlow} {
					fmt.Fprintf(out, "%s: %d started, %d completed\n", name, report.Started(name), report.Completed(name))
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "report window")
	return cmd
}
