// Package cmd defines and implements the CLI commands for the lastplayed executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/lastplayed-crawler/internal/app"
	"github.com/JakeFAU/lastplayed-crawler/internal/config"
	"github.com/JakeFAU/lastplayed-crawler/internal/crawler"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const (
	appKey  appKeyType = "app"
	slotKey appKeyType = "app_slot"
)

// appSlot records the app built for a command so it can be closed after
// the command returns, whether it succeeded or not.
type appSlot struct {
	app App
}

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Close()
	GetConfig() config.Config
	GetLogger() *zap.Logger
	GetStore() crawler.StateStore
	GetFetcher() crawler.PageFetcher
	GetEngine() *crawler.Engine
	OpenExporter(ctx context.Context) (app.Exporter, error)
}

// rootOptions holds the persistent flag values.
type rootOptions struct {
	configPath string
	statePath  string
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp = func(ctx context.Context, opts rootOptions) (App, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.statePath != "" {
		cfg.State.Path = opts.statePath
	}
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := rootOptions{}
	cmd := &cobra.Command{
		Use:   "lastplayed",
		Short: "Incremental crawler for a radio station's last-played listing.",
		Long: `lastplayed rebuilds the complete history of played songs from the
paginated last-played listing and keeps it in a JSON state file.

Run "init" once to backfill the whole listing, then "update" periodically
to add what was played since. If a run stops early, "resume --page N"
continues from the page it reached.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Build and inject the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			if slot, ok := cmd.Context().Value(slotKey).(*appSlot); ok {
				slot.app = appInstance
			}

			// Store the app instance in the context for subcommands to use.
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML); environment variables use the LASTPLAYED_ prefix")
	cmd.PersistentFlags().StringVar(&opts.statePath, "state", "", "song database file (overrides state.path)")

	cmd.AddCommand(
		newInitCmd(),
		newUpdateCmd(),
		newResumeCmd(),
		newStatsCmd(),
		newExportCmd(),
	)
	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// command, which still saves the song database before returning.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, newRootCmd())
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// run executes root and closes the app it built. Cobra skips post-run hooks
// when RunE fails, so the close happens here.
func run(ctx context.Context, root *cobra.Command) error {
	slot := &appSlot{}
	err := root.ExecuteContext(context.WithValue(ctx, slotKey, slot))
	if slot.app != nil {
		slot.app.Close()
	}
	return err
}

// exitCode separates an incomplete crawl (2) from other failures (1).
func exitCode(err error) int {
	if errors.Is(err, crawler.ErrBoundsExceeded) {
		return 2
	}
	return 1
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
