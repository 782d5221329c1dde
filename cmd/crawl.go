package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/lastplayed-crawler/internal/crawler"
	"github.com/JakeFAU/lastplayed-crawler/internal/songdb"
)

// planFunc produces the plan and database for one crawl mode.
type planFunc func(ctx context.Context, a App) (crawler.Plan, *songdb.Database, error)

// runCrawl warms the fetcher, plans the run and hands it to the engine. The
// engine has already persisted the database when it returns an error.
func runCrawl(ctx context.Context, a App, plan planFunc) error {
	logger := a.GetLogger()
	warm(ctx, a)

	p, db, err := plan(ctx, a)
	if err != nil {
		return reportPlanError(logger, err)
	}

	res, err := a.GetEngine().Run(ctx, p, db)
	if err == nil {
		return nil
	}

	var bounds *crawler.BoundsError
	var pageErr *crawler.PageError
	switch {
	case errors.As(err, &bounds):
		logger.Warn("Crawl incomplete; the page limits were reached before the known history",
			zap.Int("page", bounds.Page),
			zap.Int("pages_fetched", res.PagesFetched),
		)
	case errors.As(err, &pageErr):
		logger.Error("Crawl aborted",
			zap.Int("page", pageErr.Page),
			zap.String("timestamp", pageErr.Timestamp),
			zap.String("resume_with", "resume --page "+strconv.Itoa(pageErr.Page)),
			zap.Error(err),
		)
	default:
		logger.Error("Crawl failed", zap.Error(err))
	}
	return fmt.Errorf("%s run: %w", p.Mode, err)
}

func warm(ctx context.Context, a App) {
	if !a.GetConfig().Source.Warmup {
		return
	}
	warmer, ok := a.GetFetcher().(crawler.Warmer)
	if !ok {
		return
	}
	if err := warmer.Warm(ctx); err != nil {
		a.GetLogger().Warn("Warm-up request failed; continuing", zap.Error(err))
	}
}

func reportPlanError(logger *zap.Logger, err error) error {
	var already *crawler.AlreadyInitializedError
	var corrupt *songdb.CorruptStateError
	switch {
	case errors.As(err, &already):
		logger.Error("Database file already exists; use update or resume, or remove it to start over",
			zap.String("path", already.Path))
	case errors.As(err, &corrupt):
		logger.Error("Song database is corrupt", zap.Error(err))
	default:
		logger.Error("Could not prepare the crawl", zap.Error(err))
	}
	return err
}
