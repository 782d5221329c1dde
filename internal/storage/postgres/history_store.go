// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/lastplayed-crawler/internal/songdb"
	"github.com/JakeFAU/lastplayed-crawler/internal/timestamp"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	defaultSongsTable     = "played_songs"
	defaultConflictsTable = "played_song_conflicts"
	stagingTable          = "played_songs_staging"
)

// HistoryStoreConfig controls the Postgres connection pool used for the export.
type HistoryStoreConfig struct {
	DSN             string
	SongsTable      string
	ConflictsTable  string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type txBeginCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// ExportResult counts the rows written by one Export call. Rows already
// present in Postgres are not counted.
type ExportResult struct {
	Songs     int64
	Conflicts int64
}

// HistoryStore mirrors the song database into two Postgres tables.
type HistoryStore struct {
	pool      txBeginCloser
	songs     string
	conflicts string
}

// NewHistoryStore creates a Postgres-backed HistoryStore using the provided config.
func NewHistoryStore(ctx context.Context, cfg HistoryStoreConfig) (*HistoryStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("export.dsn is required")
	}
	songs, conflicts, err := tableNames(cfg.SongsTable, cfg.ConflictsTable)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &HistoryStore{pool: pool, songs: songs, conflicts: conflicts}, nil
}

// NewHistoryStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewHistoryStoreWithPool(pool txBeginCloser, songsTable, conflictsTable string) (*HistoryStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	songs, conflicts, err := tableNames(songsTable, conflictsTable)
	if err != nil {
		return nil, err
	}
	return &HistoryStore{pool: pool, songs: songs, conflicts: conflicts}, nil
}

func tableNames(songs, conflicts string) (string, string, error) {
	if songs == "" {
		songs = defaultSongsTable
	}
	if conflicts == "" {
		conflicts = defaultConflictsTable
	}
	for _, table := range []string{songs, conflicts} {
		if !validTableName.MatchString(table) {
			return "", "", fmt.Errorf("invalid table name %q", table)
		}
	}
	if songs == conflicts {
		return "", "", fmt.Errorf("songs and conflicts tables must differ, both are %q", songs)
	}
	return songs, conflicts, nil
}

// Close releases the underlying pool resources.
func (s *HistoryStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the export tables when they do not exist yet.
func (s *HistoryStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("history store is not configured")
	}
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	raw_timestamp TEXT PRIMARY KEY,
	played_at TIMESTAMPTZ NOT NULL,
	title TEXT NOT NULL
)`, s.songs),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	raw_timestamp TEXT NOT NULL,
	played_at TIMESTAMPTZ NOT NULL,
	title TEXT NOT NULL,
	PRIMARY KEY (raw_timestamp, title)
)`, s.conflicts),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Export copies every song and conflict entry of db into Postgres in a
// single transaction. Rows whose key already exists are left untouched.
func (s *HistoryStore) Export(ctx context.Context, db *songdb.Database) (result ExportResult, err error) {
	if s == nil || s.pool == nil {
		return ExportResult{}, fmt.Errorf("history store is not configured")
	}
	songRows, err := rowsOf(db.Entries())
	if err != nil {
		return ExportResult{}, err
	}
	conflictRows, err := rowsOf(db.Conflicts())
	if err != nil {
		return ExportResult{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ExportResult{}, fmt.Errorf("begin export: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback export: %w", rbErr))
			}
		}
	}()

	if result.Songs, err = s.copyInto(ctx, tx, s.songs, "(raw_timestamp)", songRows); err != nil {
		return ExportResult{}, err
	}
	if result.Conflicts, err = s.copyInto(ctx, tx, s.conflicts, "(raw_timestamp, title)", conflictRows); err != nil {
		return ExportResult{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return ExportResult{}, fmt.Errorf("commit export: %w", err)
	}
	return result, nil
}

// copyInto stages rows with COPY and moves them into table, skipping rows that
// collide with conflictTarget.
func (s *HistoryStore) copyInto(ctx context.Context, tx pgx.Tx, table, conflictTarget string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		`CREATE TEMP TABLE IF NOT EXISTS %s (raw_timestamp TEXT, played_at TIMESTAMPTZ, title TEXT) ON COMMIT DROP`,
		stagingTable,
	)); err != nil {
		return 0, fmt.Errorf("create staging table: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`TRUNCATE %s`, stagingTable)); err != nil {
		return 0, fmt.Errorf("truncate staging table: %w", err)
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{stagingTable},
		[]string{"raw_timestamp", "played_at", "title"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return 0, fmt.Errorf("copy into staging for %s: %w", table, err)
	}
	tag, err := tx.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (raw_timestamp, played_at, title)
SELECT raw_timestamp, played_at, title FROM %s
ON CONFLICT %s DO NOTHING`,
		table, stagingTable, conflictTarget,
	))
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func rowsOf(entries []songdb.Entry) ([][]any, error) {
	rows := make([][]any, 0, len(entries))
	for _, entry := range entries {
		in, err := timestamp.Parse(entry.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("export entry %q: %w", entry.Title, err)
		}
		rows = append(rows, []any{entry.Timestamp, in.Time, entry.Title})
	}
	return rows, nil
}
