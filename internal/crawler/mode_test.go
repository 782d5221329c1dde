package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lastplayed-crawler/internal/songdb"
	"github.com/JakeFAU/lastplayed-crawler/internal/timestamp"
)

func TestPlanInit(t *testing.T) {
	t.Parallel()

	t.Run("FreshState", func(t *testing.T) {
		t.Parallel()
		fetcher := &stubFetcher{first: Listing{Newest: ts("12:00"), LastPage: 42}}
		plan, db, err := PlanInit(context.Background(), &memStore{path: "songs_db.json"}, fetcher)
		require.NoError(t, err)
		assert.Equal(t, Plan{Mode: ModeInit, StartPage: 42, Boundary: timestamp.MustParse(ts("12:00")), Direction: Backward}, plan)
		assert.Equal(t, ts("12:00"), db.Latest().Raw)
		assert.Zero(t, db.Len())
	})

	t.Run("AlreadyInitialized", func(t *testing.T) {
		t.Parallel()
		fetcher := &stubFetcher{first: Listing{Newest: ts("12:00"), LastPage: 42}}
		_, _, err := PlanInit(context.Background(), &memStore{path: "songs_db.json", exists: true}, fetcher)
		var already *AlreadyInitializedError
		require.True(t, errors.As(err, &already))
		assert.Equal(t, "songs_db.json", already.Path)
	})

	t.Run("BadNewest", func(t *testing.T) {
		t.Parallel()
		fetcher := &stubFetcher{first: Listing{Newest: "yesterday", LastPage: 42}}
		_, _, err := PlanInit(context.Background(), &memStore{}, fetcher)
		var pageErr *PageError
		require.True(t, errors.As(err, &pageErr))
		assert.Equal(t, 1, pageErr.Page)
		assert.Equal(t, "yesterday", pageErr.Timestamp)
	})

	t.Run("NoPagination", func(t *testing.T) {
		t.Parallel()
		fetcher := &stubFetcher{first: Listing{Newest: ts("12:00")}}
		_, _, err := PlanInit(context.Background(), &memStore{}, fetcher)
		assert.Error(t, err)
	})
}

func TestPlanUpdate(t *testing.T) {
	t.Parallel()

	stored := songdb.New()
	stored.AdvanceLatest(timestamp.MustParse(ts("09:00")))
	plan, db, err := PlanUpdate(context.Background(), &memStore{db: stored})
	require.NoError(t, err)
	assert.Same(t, stored, db)
	assert.Equal(t, Plan{Mode: ModeUpdate, StartPage: 1, Boundary: stored.Latest(), Direction: Forward}, plan)

	_, _, err = PlanUpdate(context.Background(), &memStore{db: songdb.New()})
	var corrupt *songdb.CorruptStateError
	assert.True(t, errors.As(err, &corrupt), "empty resume point is unusable")

	missing := errors.New("state file missing")
	_, _, err = PlanUpdate(context.Background(), &memStore{loadErr: missing})
	assert.ErrorIs(t, err, missing)
}

func TestPlanResume(t *testing.T) {
	t.Parallel()

	stored := songdb.New()
	stored.AdvanceLatest(timestamp.MustParse(ts("09:00")))

	cases := []struct {
		page  int
		start int
	}{
		{page: 1, start: 1},
		{page: 2, start: 1},
		{page: 500, start: 499},
	}
	for _, tc := range cases {
		plan, _, err := PlanResume(context.Background(), &memStore{db: stored}, tc.page)
		require.NoError(t, err)
		assert.Equal(t, tc.start, plan.StartPage, "page %d", tc.page)
		assert.Equal(t, Forward, plan.Direction)
		assert.Equal(t, ModeResume, plan.Mode)
		assert.Equal(t, stored.Latest(), plan.Boundary)
	}

	_, _, err := PlanResume(context.Background(), &memStore{db: stored}, 0)
	assert.ErrorIs(t, err, ErrInvalidResumePage)
}
