package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newExportCmd creates the 'export' subcommand, which mirrors the song database into Postgres.
func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Copy the song database into Postgres (export.dsn)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := resolveApp(ctx)
			if err != nil {
				return err
			}
			logger := a.GetLogger()

			db, err := a.GetStore().Load(ctx)
			if err != nil {
				logger.Error("Could not load song database", zap.Error(err))
				return err
			}
			exporter, err := a.OpenExporter(ctx)
			if err != nil {
				return err
			}
			defer exporter.Close()

			if err := exporter.EnsureSchema(ctx); err != nil {
				return err
			}
			res, err := exporter.Export(ctx, db)
			if err != nil {
				logger.Error("Export failed", zap.Error(err))
				return fmt.Errorf("export: %w", err)
			}
			logger.Info("Export finished",
				zap.Int("songs", db.Len()),
				zap.Int("conflicts", db.BrokenLen()),
				zap.Int64("songs_written", res.Songs),
				zap.Int64("conflicts_written", res.Conflicts),
			)
			return nil
		},
	}
}
