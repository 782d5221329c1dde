package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/lastplayed-crawler/internal/crawler"
	"github.com/JakeFAU/lastplayed-crawler/internal/songdb"
)

// newUpdateCmd creates the 'update' subcommand.
func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Add everything played since the last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runCrawl(cmd.Context(), a, func(ctx context.Context, a App) (crawler.Plan, *songdb.Database, error) {
				return crawler.PlanUpdate(ctx, a.GetStore())
			})
		},
	}
}
