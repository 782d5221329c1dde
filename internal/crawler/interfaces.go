package crawler

import (
	"context"
	"time"

	"github.com/JakeFAU/lastplayed-crawler/internal/songdb"
)

// PageFetcher retrieves and parses listing pages.
type PageFetcher interface {
	FetchPage(ctx context.Context, page int) ([]Row, error)
	FetchFirstPage(ctx context.Context) (Listing, error)
}

// Warmer is implemented by fetchers that need a one-time priming request.
type Warmer interface {
	Warm(ctx context.Context) error
}

// StateStore persists the song database as a whole document.
type StateStore interface {
	Path() string
	Exists() (bool, error)
	Load(ctx context.Context) (*songdb.Database, error)
	Persist(ctx context.Context, db *songdb.Database) error
}

// Pacer spaces consecutive page fetches.
type Pacer interface {
	Wait(ctx context.Context) error
}

// RetryPolicy decides whether and when a failed fetch is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
