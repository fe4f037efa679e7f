package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/swcache/internal/cache"
)

func TestNewRegistry(t *testing.T) {
	_, err := NewRegistry("", "d1")
	assert.ErrorIs(t, err, cache.ErrInvalidGeneration)
	_, err = NewRegistry("x", "x")
	assert.ErrorIs(t, err, ErrSameName)

	r, err := NewRegistry("s2", "d2")
	require.NoError(t, err)
	assert.Equal(t, "s2", r.Name(Static))
	assert.Equal(t, "d2", r.Name(Dynamic))
	assert.True(t, r.IsCurrent("d2"))
	assert.False(t, r.IsCurrent("d1"))
}

func TestCutoverKeepsOnlyCurrent(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	for _, g := range []string{"S1", "D1", "S2", "D2"} {
		require.NoError(t, store.Open(ctx, g))
	}
	r, err := NewRegistry("S2", "D2")
	require.NoError(t, err)

	deleted, err := r.Cutover(ctx, store, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"S1", "D1"}, deleted)

	names, err := store.ListGenerations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"D2", "S2"}, names)
}

func TestCutoverWithNothingStale(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	r, err := NewRegistry("S2", "D2")
	require.NoError(t, err)

	deleted, err := r.Cutover(ctx, store, nil)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

type failingStore struct {
	*cache.MemoryStore
	listErr error
	delErr  error
}

func (f failingStore) ListGenerations(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.MemoryStore.ListGenerations(ctx)
}

func (f failingStore) DeleteGeneration(ctx context.Context, name string) error {
	if f.delErr != nil {
		return f.delErr
	}
	return f.MemoryStore.DeleteGeneration(ctx, name)
}

func TestCutoverPropagatesStoreErrors(t *testing.T) {
	ctx := context.Background()
	r, err := NewRegistry("S2", "D2")
	require.NoError(t, err)

	boom := errors.New("disk gone")
	_, err = r.Cutover(ctx, failingStore{MemoryStore: cache.NewMemoryStore(), listErr: boom}, nil)
	assert.ErrorIs(t, err, boom)

	mem := cache.NewMemoryStore()
	require.NoError(t, mem.Open(ctx, "S1"))
	_, err = r.Cutover(ctx, failingStore{MemoryStore: mem, delErr: boom}, nil)
	assert.ErrorIs(t, err, boom)
}
