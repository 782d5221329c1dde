package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lastplayed-crawler/internal/metrics"
	"github.com/JakeFAU/lastplayed-crawler/internal/songdb"
	"github.com/JakeFAU/lastplayed-crawler/internal/timestamp"
)

// Engine walks the listing one page at a time and folds rows into a song database.
type Engine struct {
	cfg     Config
	fetcher PageFetcher
	store   StateStore
	pacer   Pacer
	retry   RetryPolicy
	pause   pauseController
	clock   Clock
	logger  *zap.Logger
}

// NewEngine wires an engine. pacer, retry and clock may be nil; a zero
// CheckpointEvery falls back to DefaultCheckpointEvery.
func NewEngine(
	cfg Config,
	fetcher PageFetcher,
	store StateStore,
	pacer Pacer,
	retry RetryPolicy,
	clock Clock,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = wallClock{}
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = DefaultCheckpointEvery
	}
	metrics.Init()
	return &Engine{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		pacer:   pacer,
		retry:   retry,
		pause:   &timerPauseController{},
		clock:   clock,
		logger:  logger,
	}
}

// runState is the bookkeeping of a single Run call.
type runState struct {
	plan Plan
	db   *songdb.Database
	// frontier is the newest instant merged by a forward run. It is held here
	// rather than advanced on the database per row, and committed as latest
	// only when the run reaches its boundary.
	frontier timestamp.Instant
	result   Result
}

// Run executes plan against db. The database is persisted exactly once at the
// end of every run, plus every CheckpointEvery pages. A forward run commits its
// newest merged timestamp as the resume point only when it reaches the
// boundary; interrupted runs leave the old resume point so a later resume can
// close the gap.
func (e *Engine) Run(ctx context.Context, plan Plan, db *songdb.Database) (Result, error) {
	start := e.clock.Now()
	st := &runState{
		plan: plan,
		db:   db,
		result: Result{
			Mode:       plan.Mode,
			Direction:  plan.Direction,
			StartPage:  plan.StartPage,
			SizeBefore: db.Size(),
		},
	}
	logger := e.logger.With(zap.String("mode", string(plan.Mode)), zap.Stringer("direction", plan.Direction))
	logger.Info("Starting crawl",
		zap.Int("start_page", plan.StartPage),
		zap.String("boundary", plan.Boundary.String()),
		zap.Int("songs", db.Len()),
		zap.Int("broken", db.BrokenLen()),
		zap.String("latest", db.Latest().String()),
	)

	reason, runErr := e.walk(ctx, st, logger)
	st.result.Reason = reason

	if reason == StopNormal && plan.Direction == Forward {
		db.AdvanceLatest(st.frontier)
	}
	db.DedupeBroken()
	if err := e.store.Persist(context.WithoutCancel(ctx), db); err != nil {
		logger.Error("Final save failed", zap.Error(err))
		runErr = errors.Join(runErr, fmt.Errorf("persist song database: %w", err))
	}

	st.result.SizeAfter = db.Size()
	st.result.Latest = db.Latest()
	st.result.Duration = e.clock.Now().Sub(start)
	metrics.ObserveRun(string(plan.Mode), reason.String())
	metrics.SetDatabaseState(db.Len(), db.BrokenLen(), db.Latest().Time)

	logger.Info("Crawl finished",
		zap.Stringer("reason", reason),
		zap.Int("last_page", st.result.LastPage),
		zap.Int("pages", st.result.PagesFetched),
		zap.Int("size_before", st.result.SizeBefore),
		zap.Int("size_after", st.result.SizeAfter),
		zap.Int("increase", st.result.SizeAfter-st.result.SizeBefore),
		zap.String("latest", st.result.Latest.String()),
		zap.Duration("duration", st.result.Duration),
	)
	return st.result, runErr
}

func (e *Engine) walk(ctx context.Context, st *runState, logger *zap.Logger) (StopDecision, error) {
	page := st.plan.StartPage
	for e.cfg.Window.Contains(page) {
		if err := e.wait(ctx); err != nil {
			return StopError, &PageError{Page: page, Err: err}
		}

		logger.Debug("Getting results from page", zap.Int("page", page))
		rows, err := e.fetch(ctx, page, logger)
		if err != nil {
			logger.Error("Fetch failed", zap.Int("page", page), zap.Error(err))
			return StopError, &PageError{Page: page, Err: err}
		}
		st.result.PagesFetched++
		st.result.LastPage = page
		metrics.ObservePage(st.plan.Direction.String())
		logger.Debug("Results obtained", zap.Int("page", page), zap.Int("rows", len(rows)))

		decision, err := e.foldPage(page, rows, st, logger)
		if err != nil {
			logger.Error("Page processing failed", zap.Int("page", page), zap.Error(err))
			return StopError, err
		}
		if decision == StopNormal {
			return StopNormal, nil
		}

		if st.result.PagesFetched%e.cfg.CheckpointEvery == 0 {
			if err := e.checkpoint(ctx, page, st, logger); err != nil {
				return StopError, &PageError{Page: page, Err: err}
			}
		}
		page += st.plan.Direction.Step()
	}

	if st.plan.Direction == Backward && page <= e.cfg.Window.Lower && st.result.PagesFetched > 0 {
		logger.Info("Reached the first page", zap.Int("last_page", st.result.LastPage))
		return StopExhausted, nil
	}

	bounds := &BoundsError{Page: page, Window: e.cfg.Window}
	logger.Warn("Page outside of limits; crawl is incomplete",
		zap.Int("page", page),
		zap.Int("lower_bound", e.cfg.Window.Lower),
		zap.Int("upper_bound", e.cfg.Window.Upper),
	)
	return StopBounds, bounds
}

// foldPage merges rows until StopCondition fires. Pages list newest first;
// backward walks read them oldest first so instants arrive in ascending order.
func (e *Engine) foldPage(page int, rows []Row, st *runState, logger *zap.Logger) (StopDecision, error) {
	if st.plan.Direction == Backward {
		rows = reversed(rows)
	}
	for _, row := range rows {
		in, err := timestamp.Parse(row.Timestamp)
		if err != nil {
			return StopError, &PageError{Page: page, Timestamp: row.Timestamp, Err: err}
		}
		if StopCondition(st.plan.Direction, st.plan.Boundary, in) == StopNormal {
			logger.Info("Reached boundary",
				zap.Int("page", page),
				zap.String("timestamp", in.Raw),
				zap.String("boundary", st.plan.Boundary.String()),
			)
			return StopNormal, nil
		}

		outcome := st.db.Merge(in, row.Title)
		metrics.ObserveRow(outcome.String())
		switch outcome {
		case songdb.Inserted:
			st.result.Inserted++
		case songdb.DuplicateIgnored:
			st.result.Duplicates++
			logger.Debug("Duplicate row, skipping", zap.String("timestamp", in.Raw))
		case songdb.ConflictRecorded:
			st.result.Conflicts++
			logger.Debug("Conflicting title recorded",
				zap.String("timestamp", in.Raw),
				zap.String("title", row.Title),
			)
		}
		if st.plan.Direction == Forward && (st.frontier.IsZero() || in.After(st.frontier)) {
			st.frontier = in
		}
	}
	return Continue, nil
}

func (e *Engine) checkpoint(ctx context.Context, page int, st *runState, logger *zap.Logger) error {
	latest := st.frontier
	if latest.IsZero() {
		latest = st.db.Latest()
	}
	logger.Info("Checkpoint",
		zap.Int("page", page),
		zap.String("latest", latest.String()),
		zap.Int("songs", st.db.Len()),
	)
	st.db.DedupeBroken()
	if err := e.store.Persist(ctx, st.db); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	metrics.ObserveCheckpoint()
	return nil
}

func (e *Engine) wait(ctx context.Context) error {
	if e.pacer == nil {
		return ctx.Err()
	}
	if err := e.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("pacing: %w", err)
	}
	return nil
}

func (e *Engine) fetch(ctx context.Context, page int, logger *zap.Logger) ([]Row, error) {
	for attempt := 1; ; attempt++ {
		started := e.clock.Now()
		rows, err := e.fetcher.FetchPage(ctx, page)
		metrics.ObserveFetchDuration(e.clock.Now().Sub(started))
		if err == nil {
			return rows, nil
		}
		if e.retry == nil || !e.retry.ShouldRetry(err, attempt) {
			return nil, err
		}
		delay := e.retry.Backoff(attempt - 1)
		logger.Warn("Retrying page fetch",
			zap.Int("page", page),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		metrics.ObserveFetchRetry()
		e.pause.Pause(ctx, delay)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("retry aborted: %w", ctxErr)
		}
	}
}

func reversed(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = row
	}
	return out
}

type wallClock struct{}

func (wallClock) Now() time.Time {
	return time.Now()
}
