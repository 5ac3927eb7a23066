package entity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollection_New(t *testing.T) {
	ctx := context.Background()
	a, b := &struct{ n int }{1}, &struct{ n int }{2}

	c := NewCollection(a, b)
	assert.True(t, c.IsInitialized())
	assert.True(t, c.IsDirty())

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	items, err := c.Slice(ctx)
	require.NoError(t, err)
	items[0] = nil
	again, _ := c.Slice(ctx)
	assert.Same(t, a, again[0])
}

func TestCollection_Lazy(t *testing.T) {
	ctx := context.Background()
	loads, counts := 0, 0
	item := &struct{}{}

	c := NewLazyCollection(
		func(ctx context.Context) ([]any, error) {
			loads++
			return []any{item}, nil
		},
		func(ctx context.Context) (int, error) {
			counts++
			return 1, nil
		},
	)
	assert.False(t, c.IsInitialized())

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, loads, "counting must not load members")
	assert.Equal(t, 1, counts)

	items, err := c.Slice(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	_, _ = c.Slice(ctx)
	assert.Equal(t, 1, loads)
	assert.True(t, c.IsInitialized())
	assert.False(t, c.IsDirty())

	n, err = c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, counts, "initialized collections count in memory")
}

func TestCollection_LazyWithoutCounter(t *testing.T) {
	c := NewLazyCollection(func(ctx context.Context) ([]any, error) {
		return []any{1, 2, 3}, nil
	}, nil)

	n, err := c.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, c.IsInitialized())
}

func TestCollection_LoadError(t *testing.T) {
	boom := errors.New("boom")
	c := NewLazyCollection(func(ctx context.Context) ([]any, error) {
		return nil, boom
	}, nil)

	_, err := c.Slice(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, c.IsInitialized())
}

func TestCollection_AddRemoveSet(t *testing.T) {
	ctx := context.Background()
	a, b := &struct{ n int }{1}, &struct{ n int }{2}

	c := NewLazyCollection(func(ctx context.Context) ([]any, error) {
		return []any{a}, nil
	}, nil)

	require.NoError(t, c.Add(ctx, b))
	require.NoError(t, c.Add(ctx, b))
	items, _ := c.Slice(ctx)
	assert.Equal(t, []any{a, b}, items)
	assert.True(t, c.IsDirty())

	require.NoError(t, c.Remove(ctx, a))
	require.NoError(t, c.Remove(ctx, a))
	items, _ = c.Slice(ctx)
	assert.Equal(t, []any{b}, items)

	lazy := NewLazyCollection(func(ctx context.Context) ([]any, error) {
		t.Fatal("Set must not load")
		return nil, nil
	}, nil)
	lazy.Set(a)
	items, _ = lazy.Slice(ctx)
	assert.Equal(t, []any{a}, items)
}
