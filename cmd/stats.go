package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/lastplayed-crawler/internal/metrics"
)

// newStatsCmd creates the 'stats' subcommand, which summarizes the state file without crawling.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the stored song database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			store := a.GetStore()
			db, err := store.Load(cmd.Context())
			if err != nil {
				a.GetLogger().Error("Could not load song database", zap.String("path", store.Path()), zap.Error(err))
				return err
			}

			earliest, _ := db.Earliest()
			metrics.Init()
			metrics.SetDatabaseState(db.Len(), db.BrokenLen(), db.Latest().Time)
			a.GetLogger().Info("Song database",
				zap.String("path", store.Path()),
				zap.Int("songs", db.Len()),
				zap.Int("conflicts", db.BrokenLen()),
				zap.String("earliest", earliest.String()),
				zap.String("latest", db.Latest().String()),
			)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "songs:     %d\n", db.Len())
			fmt.Fprintf(out, "conflicts: %d\n", db.BrokenLen())
			fmt.Fprintf(out, "earliest:  %s\n", earliest)
			fmt.Fprintf(out, "latest:    %s\n", db.Latest())
			return nil
		},
	}
}
