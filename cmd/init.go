package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/lastplayed-crawler/internal/crawler"
	"github.com/JakeFAU/lastplayed-crawler/internal/songdb"
)

// newInitCmd creates the 'init' subcommand, which backfills an empty database.
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Backfill the whole listing into a new song database",
		Long: `Reads page 1 to learn the newest play and the number of pages, then walks
from the last page back to page 1. Refuses to run if the state file exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runCrawl(cmd.Context(), a, func(ctx context.Context, a App) (crawler.Plan, *songdb.Database, error) {
				return crawler.PlanInit(ctx, a.GetStore(), a.GetFetcher())
			})
		},
	}
}
