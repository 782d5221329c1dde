package crawler

import (
	"context"
	"fmt"

	"github.com/JakeFAU/lastplayed-crawler/internal/songdb"
	"github.com/JakeFAU/lastplayed-crawler/internal/timestamp"
)

// PlanInit prepares a full backfill. It reads page 1 to learn the newest
// timestamp (the boundary, also seeded as the resume point) and the last page
// number (where the backward walk starts). No state is written here.
func PlanInit(ctx context.Context, store StateStore, fetcher PageFetcher) (Plan, *songdb.Database, error) {
	exists, err := store.Exists()
	if err != nil {
		return Plan{}, nil, fmt.Errorf("check state file: %w", err)
	}
	if exists {
		return Plan{}, nil, &AlreadyInitializedError{Path: store.Path()}
	}

	listing, err := fetcher.FetchFirstPage(ctx)
	if err != nil {
		return Plan{}, nil, &PageError{Page: 1, Err: err}
	}
	newest, err := timestamp.Parse(listing.Newest)
	if err != nil {
		return Plan{}, nil, &PageError{Page: 1, Timestamp: listing.Newest, Err: err}
	}
	if listing.LastPage < 1 {
		return Plan{}, nil, &PageError{Page: 1, Err: fmt.Errorf("pagination reports last page %d", listing.LastPage)}
	}

	db := songdb.New()
	db.AdvanceLatest(newest)
	return Plan{
		Mode:      ModeInit,
		StartPage: listing.LastPage,
		Boundary:  newest,
		Direction: Backward,
	}, db, nil
}

// PlanUpdate extends a stored database forward from its resume point, starting at page 1.
func PlanUpdate(ctx context.Context, store StateStore) (Plan, *songdb.Database, error) {
	db, err := loadWithResumePoint(ctx, store)
	if err != nil {
		return Plan{}, nil, err
	}
	return Plan{
		Mode:      ModeUpdate,
		StartPage: 1,
		Boundary:  db.Latest(),
		Direction: Forward,
	}, db, nil
}

// PlanResume continues an interrupted update. The walk restarts one page
// before page so rows that shifted while the listing grew are not skipped.
func PlanResume(ctx context.Context, store StateStore, page int) (Plan, *songdb.Database, error) {
	if page < 1 {
		return Plan{}, nil, fmt.Errorf("%w: got %d", ErrInvalidResumePage, page)
	}
	db, err := loadWithResumePoint(ctx, store)
	if err != nil {
		return Plan{}, nil, err
	}
	start := page - 1
	if start < 1 {
		start = 1
	}
	return Plan{
		Mode:      ModeResume,
		StartPage: start,
		Boundary:  db.Latest(),
		Direction: Forward,
	}, db, nil
}

func loadWithResumePoint(ctx context.Context, store StateStore) (*songdb.Database, error) {
	db, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load song database: %w", err)
	}
	if db.Latest().IsZero() {
		return nil, &songdb.CorruptStateError{Reason: "latest_ts is empty"}
	}
	return db, nil
}
