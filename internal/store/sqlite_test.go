package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_SetAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "uhi:run-1", []byte(`{"lst":[[300]]}`), 900*time.Second))
	data, err := st.Get(ctx, "uhi:run-1")
	require.NoError(t, err)
	assert.Equal(t, `{"lst":[[300]]}`, string(data))
}

func TestSQLite_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.Get(context.Background(), "uhi:nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_Overwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k", []byte("v1"), time.Minute))
	require.NoError(t, st.Set(ctx, "k", []byte("v2"), time.Minute))
	data, err := st.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestSQLite_Delete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "uhi:run-1", []byte("{}"), 900*time.Second))
	require.NoError(t, st.Delete(ctx, "uhi:run-1"))
	_, err := st.Get(ctx, "uhi:run-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, st.Delete(ctx, "uhi:run-1"))
}

func TestSQLite_Expiry(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }

	require.NoError(t, st.Set(ctx, "short", []byte("s"), time.Minute))
	require.NoError(t, st.Set(ctx, "long", []byte("l"), time.Hour))

	now = now.Add(2 * time.Minute)
	_, err := st.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := st.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := st.Get(ctx, "long")
	require.NoError(t, err)
	assert.Equal(t, "l", string(data))
}

func TestSQLite_PingAndMigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.Ping(ctx))
	require.NoError(t, st.Migrate(ctx))
}
