// Package store persists engine results in SQLite so repeated analysis of
// the same positions survives restarts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/dmmcquay/chess-analysis-mcp/internal/cache"
	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
	"github.com/dmmcquay/chess-analysis-mcp/internal/metrics"
	"github.com/dmmcquay/chess-analysis-mcp/internal/uci"
)

const schema = `
CREATE TABLE IF NOT EXISTS results (
	key        INTEGER PRIMARY KEY,
	position   TEXT    NOT NULL,
	search     TEXT    NOT NULL,
	result     TEXT    NOT NULL,
	created_at INTEGER NOT NULL
)`

// Store is a SQLite-backed table of engine results keyed by cache.Key.
// A nil *Store is valid and behaves as an empty, read-only store.
type Store struct {
	db      *sql.DB
	logger  logging.ContextLogger
	metrics *metrics.PrometheusCollector
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(ctx context.Context, path string, logger logging.ContextLogger, m *metrics.PrometheusCollector) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			logger.Warn("Could not enable WAL journal", "error", err)
		}
	}

	logger.Info("Result store opened", "path", path)
	return &Store{db: db, logger: logger, metrics: m}, nil
}

// Get returns the stored result for key.
func (s *Store) Get(ctx context.Context, key cache.Key) (uci.Result, bool, error) {
	if s == nil {
		return uci.Result{}, false, nil
	}

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT result FROM results WHERE key = ?", int64(key)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return uci.Result{}, false, nil
	}
	if err != nil {
		return uci.Result{}, false, fmt.Errorf("failed to read result: %w", err)
	}

	var res uci.Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return uci.Result{}, false, fmt.Errorf("failed to decode result: %w", err)
	}
	s.metrics.RecordCacheHit("store")
	return res, true, nil
}

// Put records a complete result. Incomplete results are not stored.
func (s *Store) Put(ctx context.Context, key cache.Key, position, search string, res uci.Result) error {
	if s == nil || !res.Complete() {
		return nil
	}

	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (key, position, search, result, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET result = excluded.result, created_at = excluded.created_at`,
		int64(key), position, search, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	s.logger.Debug("Stored engine result", "key", uint64(key), "search", search)
	return nil
}

// Count returns the number of stored results.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s == nil {
		return 0, nil
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM results").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return n, nil
}

// Prune deletes results older than maxAge and returns how many went.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-maxAge).Unix()
	res, err := s.db.ExecContext(ctx, "DELETE FROM results WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune results: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
