package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetOrder(t *testing.T) {
	q := New[int]("test", 4, PolicyBlock)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Put(ctx, i))
	}
	assert.Equal(t, 3, q.Len())
	for i := 1; i <= 3; i++ {
		got, ok := q.Get(ctx, time.Second)
		require.True(t, ok)
		assert.Equal(t, i, got)
	}
}

func TestGetTimesOutEmpty(t *testing.T) {
	q := New[string]("test", 1, PolicyBlock)
	start := time.Now()
	_, ok := q.Get(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestBlockPolicyWaitsForSpace(t *testing.T) {
	q := New[int]("test", 1, PolicyBlock)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, 1))

	done := make(chan error, 1)
	go func() { done <- q.Put(ctx, 2) }()

	select {
	case <-done:
		t.Fatal("put returned before space was available")
	case <-time.After(30 * time.Millisecond):
	}

	got, ok := q.TryGet()
	require.True(t, ok)
	assert.Equal(t, 1, got)
	require.NoError(t, <-done)

	got, ok = q.TryGet()
	require.True(t, ok)
	assert.Equal(t, 2, got)
}

func TestBlockPolicyHonorsContext(t *testing.T) {
	q := New[int]("test", 1, PolicyBlock)
	require.NoError(t, q.Put(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Put(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDropOldestEvicts(t *testing.T) {
	q := New[int]("test", 2, PolicyDropOldest)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, 1))
	require.NoError(t, q.Put(ctx, 2))
	require.NoError(t, q.Put(ctx, 3))

	assert.Equal(t, int64(1), q.Dropped())
	assert.Equal(t, []int{2, 3}, q.Drain())
}

func TestDrainEmpty(t *testing.T) {
	q := New[int]("test", 2, PolicyBlock)
	assert.Empty(t, q.Drain())
}
