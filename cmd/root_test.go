package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/lastplayed-crawler/internal/app"
	"github.com/JakeFAU/lastplayed-crawler/internal/config"
	"github.com/JakeFAU/lastplayed-crawler/internal/crawler"
	"github.com/JakeFAU/lastplayed-crawler/internal/songdb"
	"github.com/JakeFAU/lastplayed-crawler/internal/storage/postgres"
	"github.com/JakeFAU/lastplayed-crawler/internal/timestamp"
)

type fakeFetcher struct {
	pages map[int][]crawler.Row
	first crawler.Listing
	warms int
}

func (f *fakeFetcher) FetchPage(_ context.Context, page int) ([]crawler.Row, error) {
	return f.pages[page], nil
}

func (f *fakeFetcher) FetchFirstPage(_ context.Context) (crawler.Listing, error) {
	return f.first, nil
}

func (f *fakeFetcher) Warm(context.Context) error {
	f.warms++
	return nil
}

// memoryStore keeps the state document as JSON bytes, like the real file.
type memoryStore struct {
	doc []byte
}

func (s *memoryStore) Path() string { return "memory://songs_db.json" }

func (s *memoryStore) Exists() (bool, error) { return s.doc != nil, nil }

func (s *memoryStore) Load(context.Context) (*songdb.Database, error) {
	if s.doc == nil {
		return nil, errors.New("state file not found")
	}
	db := songdb.New()
	if err := json.Unmarshal(s.doc, db); err != nil {
		return nil, err
	}
	return db, nil
}

func (s *memoryStore) Persist(_ context.Context, db *songdb.Database) error {
	doc, err := json.Marshal(db)
	if err != nil {
		return err
	}
	s.doc = doc
	return nil
}

// MockExporter mocks app.Exporter.
type MockExporter struct {
	mock.Mock
}

func (m *MockExporter) EnsureSchema(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockExporter) Export(ctx context.Context, db *songdb.Database) (postgres.ExportResult, error) {
	args := m.Called(ctx, db)
	return args.Get(0).(postgres.ExportResult), args.Error(1)
}

func (m *MockExporter) Close() {
	m.Called()
}

type mockApp struct {
	cfg      config.Config
	fetcher  *fakeFetcher
	store    *memoryStore
	engine   *crawler.Engine
	exporter app.Exporter
	closed   int
}

func (m *mockApp) Close()                          { m.closed++ }
func (m *mockApp) GetConfig() config.Config        { return m.cfg }
func (m *mockApp) GetLogger() *zap.Logger          { return zap.NewNop() }
func (m *mockApp) GetStore() crawler.StateStore    { return m.store }
func (m *mockApp) GetFetcher() crawler.PageFetcher { return m.fetcher }
func (m *mockApp) GetEngine() *crawler.Engine      { return m.engine }

func (m *mockApp) OpenExporter(context.Context) (app.Exporter, error) {
	if m.exporter == nil {
		return nil, errors.New("export.dsn is required")
	}
	return m.exporter, nil
}

func newMockApp(t *testing.T, fetcher *fakeFetcher, store *memoryStore) *mockApp {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	engine := crawler.NewEngine(crawler.DefaultConfig(), fetcher, store, nil, nil, nil, zap.NewNop())
	return &mockApp{cfg: cfg, fetcher: fetcher, store: store, engine: engine}
}

func seededStore(t *testing.T, latest string, songs map[string]string) *memoryStore {
	t.Helper()
	db := songdb.New()
	for ts, title := range songs {
		db.Merge(timestamp.MustParse(ts), title)
	}
	db.AdvanceLatest(timestamp.MustParse(latest))
	store := &memoryStore{}
	require.NoError(t, store.Persist(context.Background(), db))
	return store
}

// execute runs the root command with the mock app injected.
func execute(t *testing.T, a *mockApp, args ...string) (string, error) {
	t.Helper()
	original := newApp
	newApp = func(context.Context, rootOptions) (App, error) { return a, nil }
	t.Cleanup(func() { newApp = original })

	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := run(context.Background(), root)
	return out.String(), err
}

func rowAt(hour int, title string) crawler.Row {
	return crawler.Row{Timestamp: fmt.Sprintf("2024-01-01T%02d:00:00+0000", hour), Title: title}
}

func TestInitCommandBackfills(t *testing.T) {
	fetcher := &fakeFetcher{
		first: crawler.Listing{Newest: "2024-01-01T12:00:00+0000", LastPage: 2},
		pages: map[int][]crawler.Row{
			2: {rowAt(9, "c"), rowAt(8, "b")},
			1: {rowAt(12, "f"), rowAt(11, "e"), rowAt(10, "d")},
		},
	}
	store := &memoryStore{}
	a := newMockApp(t, fetcher, store)

	_, err := execute(t, a, "init")
	require.NoError(t, err)

	db, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, db.Len())
	assert.Equal(t, "2024-01-01T12:00:00+0000", db.Latest().Raw)
	assert.Equal(t, 1, fetcher.warms)
	assert.Equal(t, 1, a.closed)
}

func TestInitCommandRefusesExistingState(t *testing.T) {
	store := seededStore(t, "2024-01-01T10:00:00+0000", nil)
	before := append([]byte(nil), store.doc...)
	a := newMockApp(t, &fakeFetcher{}, store)

	_, err := execute(t, a, "init")
	var already *crawler.AlreadyInitializedError
	require.True(t, errors.As(err, &already))
	assert.Equal(t, before, store.doc, "state must not be touched")
}

func TestUpdateCommandAdvancesResumePoint(t *testing.T) {
	store := seededStore(t, "2024-01-01T10:00:00+0000", map[string]string{"2024-01-01T10:00:00+0000": "ten"})
	fetcher := &fakeFetcher{pages: map[int][]crawler.Row{
		1: {rowAt(12, "noon"), rowAt(11, "eleven"), rowAt(10, "ten")},
	}}
	a := newMockApp(t, fetcher, store)
	a.cfg.Source.Warmup = false

	_, err := execute(t, a, "update")
	require.NoError(t, err)

	db, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, db.Len())
	assert.Equal(t, "2024-01-01T12:00:00+0000", db.Latest().Raw)
	assert.Zero(t, fetcher.warms)
}

func TestResumeCommandRequiresPage(t *testing.T) {
	a := newMockApp(t, &fakeFetcher{}, &memoryStore{})

	_, err := execute(t, a, "resume")
	assert.Error(t, err)

	store := seededStore(t, "2024-01-01T10:00:00+0000", nil)
	a = newMockApp(t, &fakeFetcher{}, store)
	_, err = execute(t, a, "resume", "--page", "0")
	assert.ErrorIs(t, err, crawler.ErrInvalidResumePage)
}

func TestResumeCommandStartsOnePageEarlier(t *testing.T) {
	store := seededStore(t, "2024-01-01T10:00:00+0000", nil)
	fetcher := &fakeFetcher{pages: map[int][]crawler.Row{
		4: {rowAt(12, "shifted")},
		5: {rowAt(11, "eleven"), rowAt(10, "ten")},
	}}
	a := newMockApp(t, fetcher, store)

	_, err := execute(t, a, "resume", "--page", "5")
	require.NoError(t, err)

	db, err := store.Load(context.Background())
	require.NoError(t, err)
	_, ok := db.Title("2024-01-01T12:00:00+0000")
	assert.True(t, ok, "the page before --page is crawled too")
	assert.Equal(t, 2, db.Len())
}

func TestStatsCommand(t *testing.T) {
	store := seededStore(t, "2024-01-01T11:00:00+0000", map[string]string{
		"2024-01-01T09:00:00+0000": "a",
		"2024-01-01T11:00:00+0000": "b",
	})
	a := newMockApp(t, &fakeFetcher{}, store)

	out, err := execute(t, a, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "songs:     2")
	assert.Contains(t, out, "earliest:  2024-01-01T09:00:00+0000")
	assert.Contains(t, out, "latest:    2024-01-01T11:00:00+0000")
}

func TestExportCommand(t *testing.T) {
	store := seededStore(t, "2024-01-01T11:00:00+0000", map[string]string{"2024-01-01T11:00:00+0000": "b"})
	a := newMockApp(t, &fakeFetcher{}, store)

	exporter := &MockExporter{}
	exporter.On("EnsureSchema", mock.Anything).Return(nil)
	exporter.On("Export", mock.Anything, mock.AnythingOfType("*songdb.Database")).Return(postgres.ExportResult{Songs: 1}, nil)
	exporter.On("Close").Return()
	a.exporter = exporter

	_, err := execute(t, a, "export")
	require.NoError(t, err)
	exporter.AssertExpectations(t)
}

func TestExportCommandWithoutDSN(t *testing.T) {
	store := seededStore(t, "2024-01-01T11:00:00+0000", nil)
	a := newMockApp(t, &fakeFetcher{}, store)

	_, err := execute(t, a, "export")
	assert.Error(t, err)
}

func TestAppFactoryFailure(t *testing.T) {
	original := newApp
	newApp = func(context.Context, rootOptions) (App, error) { return nil, errors.New("bad config") }
	t.Cleanup(func() { newApp = original })

	root := newRootCmd()
	root.SetArgs([]string{"update"})
	err := run(context.Background(), root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize application services")
}

func TestFailedUpdateStillClosesApp(t *testing.T) {
	store := seededStore(t, "2024-01-01T10:00:00+0000", map[string]string{"2024-01-01T10:00:00+0000": "ten"})
	fetcher := &fakeFetcher{pages: map[int][]crawler.Row{
		1: {rowAt(15, "fifteen"), rowAt(14, "fourteen")},
		2: {rowAt(13, "thirteen"), rowAt(12, "noon")},
	}}
	a := newMockApp(t, fetcher, store)
	a.cfg.Source.Warmup = false
	a.engine = crawler.NewEngine(
		crawler.Config{Window: crawler.PageWindow{Lower: 0, Upper: 3}, CheckpointEvery: 100},
		fetcher, store, nil, nil, nil, zap.NewNop(),
	)

	_, err := execute(t, a, "update")
	require.ErrorIs(t, err, crawler.ErrBoundsExceeded)
	assert.Equal(t, 1, a.closed)

	db, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, db.Len())
	assert.Equal(t, "2024-01-01T10:00:00+0000", db.Latest().Raw)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(fmt.Errorf("update run: %w", &crawler.BoundsError{Page: 75000})))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}
