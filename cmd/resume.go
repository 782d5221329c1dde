package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/lastplayed-crawler/internal/crawler"
	"github.com/JakeFAU/lastplayed-crawler/internal/songdb"
)

// newResumeCmd creates the 'resume' subcommand.
func newResumeCmd() *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue an interrupted update from a given page",
		Long: `Walks forward from one page before --page until the stored resume point is
reached. Use the page reported by the failed run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runCrawl(cmd.Context(), a, func(ctx context.Context, a App) (crawler.Plan, *songdb.Database, error) {
				return crawler.PlanResume(ctx, a.GetStore(), page)
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "page to resume from (required, >= 1)")
	_ = cmd.MarkFlagRequired("page")
	return cmd
}
