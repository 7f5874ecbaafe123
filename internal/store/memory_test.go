package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	value := []byte(`{"run":1}`)
	require.NoError(t, s.Set(ctx, "uhi:a", value, time.Minute))
	value[0] = 'X'

	got, err := s.Get(ctx, "uhi:a")
	require.NoError(t, err)
	assert.Equal(t, `{"run":1}`, string(got))

	_, err = s.Get(ctx, "uhi:missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Expiry(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemory()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "uhi:a", []byte("a"), 900*time.Second))
	require.NoError(t, s.Set(ctx, "uhi:b", []byte("b"), time.Hour))

	now = now.Add(899 * time.Second)
	_, err := s.Get(ctx, "uhi:a")
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = s.Get(ctx, "uhi:a")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = s.Get(ctx, "uhi:b")
	assert.NoError(t, err)
}

func TestMemoryStore_Delete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, m.Delete(ctx, "k"))
	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, m.Delete(ctx, "missing"))
}

func TestMemoryStore_RejectsBadArgs(t *testing.T) {
	s := NewMemory()
	assert.Error(t, s.Set(context.Background(), "", []byte("x"), time.Minute))
	assert.Error(t, s.Set(context.Background(), "k", []byte("x"), 0))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, DriverMemory, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, DriverSQLite, t.TempDir()+"/results.db", nil)
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck
	require.NoError(t, s.Set(ctx, "uhi:x", []byte("1"), time.Minute))

	_, err = Open(ctx, "redis", "", nil)
	assert.Error(t, err)
}
