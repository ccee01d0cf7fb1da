package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcquay/chess-analysis-mcp/internal/cache"
	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
	"github.com/dmmcquay/chess-analysis-mcp/internal/uci"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", logging.NewNopLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	fen := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b - - 0 1"
	key := cache.KeyFor(fen, "depth 13")
	score := -0.3

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	want := uci.Result{Score: &score, BestMove: "c7c5", PV: []string{"c7c5", "g1f3"}, Depth: 13}
	require.NoError(t, s.Put(ctx, key, fen, "depth 13", want))

	got, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	// Overwrite keeps a single row.
	want.BestMove = "e7e5"
	require.NoError(t, s.Put(ctx, key, fen, "depth 13", want))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "e7e5", got.BestMove)
}

func TestStoreSkipsIncompleteResults(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	score := 1.0
	require.NoError(t, s.Put(ctx, cache.Key(7), "fen", "depth 1", uci.Result{Score: &score}))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStoreHighBitKey(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	key := cache.Key(^uint64(0) - 5)
	require.NoError(t, s.Put(ctx, key, "fen", "depth 1", uci.Result{BestMove: "e2e4"}))
	got, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "e2e4", got.BestMove)
}

func TestStorePrune(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Put(ctx, cache.Key(1), "fen", "depth 1", uci.Result{BestMove: "e2e4"}))
	_, err := s.db.ExecContext(ctx, "UPDATE results SET created_at = ?", time.Now().Add(-48*time.Hour).Unix())
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, cache.Key(2), "fen2", "depth 1", uci.Result{BestMove: "d2d4"}))

	removed, err := s.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStoreFileReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")

	s, err := Open(ctx, path, logging.NewNopLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, cache.Key(42), "fen", "depth 2", uci.Result{BestMove: "g1f3"}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, logging.NewNopLogger(), nil)
	require.NoError(t, err)
	defer s.Close()

	got, ok, err := s.Get(ctx, cache.Key(42))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "g1f3", got.BestMove)
	assert.NoError(t, s.Ping(ctx))
}

func TestNilStore(t *testing.T) {
	var s *Store
	ctx := context.Background()

	_, ok, err := s.Get(ctx, cache.Key(1))
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, s.Put(ctx, cache.Key(1), "", "", uci.Result{BestMove: "e2e4"}))
	assert.NoError(t, s.Ping(ctx))
	assert.NoError(t, s.Close())
}
