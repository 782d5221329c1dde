// Package local persists the song database as a JSON document on the local filesystem.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/lastplayed-crawler/internal/hash/sha256"
	"github.com/JakeFAU/lastplayed-crawler/internal/songdb"
)

// ErrStateNotFound is returned by Load when no state file exists yet.
var ErrStateNotFound = errors.New("state file not found")

// Config captures the parameters for the state file.
type Config struct {
	// Path is the JSON document holding the song database.
	Path string `mapstructure:"path" yaml:"path"`
}

// StateStore reads and overwrites a single JSON state file.
type StateStore struct {
	path   string
	hasher *sha256.Hasher
	logger *zap.Logger
}

// New validates the state file location and returns a store for it. The parent
// directory is created when missing and must be writable.
func New(cfg Config, logger *zap.Logger) (*StateStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("state path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Dir(cfg.Path)

	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat state directory: %w", err)
		}
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("state directory %s is not a directory", dir)
	}

	probe, err := os.CreateTemp(dir, ".writable_test")
	if err != nil {
		return nil, fmt.Errorf("state directory is not writable: %w", err)
	}
	name := probe.Name()
	if err := probe.Close(); err != nil {
		return nil, fmt.Errorf("failed to close probe file: %w", err)
	}
	if err := os.Remove(name); err != nil {
		return nil, fmt.Errorf("failed to clean up probe file: %w", err)
	}

	return &StateStore{path: cfg.Path, hasher: sha256.New(), logger: logger}, nil
}

// Path returns the state file location.
func (s *StateStore) Path() string {
	return s.path
}

// Exists reports whether a state file is already present.
func (s *StateStore) Exists() (bool, error) {
	info, err := os.Stat(s.path)
	switch {
	case err == nil:
		if info.IsDir() {
			return false, fmt.Errorf("state path %s is a directory", s.path)
		}
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("stat state file: %w", err)
	}
}

// Load reads the whole database. A malformed document yields *songdb.CorruptStateError.
func (s *StateStore) Load(ctx context.Context) (*songdb.Database, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	// #nosec G304 -- the state path comes from operator configuration.
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrStateNotFound, s.path)
		}
		return nil, fmt.Errorf("read state file %s: %w", s.path, err)
	}
	db := songdb.New()
	if err := json.Unmarshal(data, db); err != nil {
		var corrupt *songdb.CorruptStateError
		if errors.As(err, &corrupt) {
			return nil, corrupt
		}
		return nil, &songdb.CorruptStateError{Reason: "decode " + s.path, Err: err}
	}
	return db, nil
}

// Persist overwrites the state file with db. The document is written to a
// sibling temp file first and renamed into place. Callers that must save after
// cancellation pass context.WithoutCancel.
func (s *StateStore) Persist(ctx context.Context, db *songdb.Database) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	payload, err := json.Marshal(db)
	if err != nil {
		return fmt.Errorf("marshal song database: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if rmErr := os.Remove(tmpName); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Warn("Failed to remove temp state file", zap.String("path", tmpName), zap.Error(rmErr))
		}
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace state file %s: %w", s.path, err)
	}

	s.logger.Info("Saved song database",
		zap.String("path", s.path),
		zap.Int("songs", db.Len()),
		zap.Int("broken", db.BrokenLen()),
		zap.String("latest", db.Latest().String()),
		zap.String("sha256", s.hasher.Hash(payload)),
	)
	return nil
}
