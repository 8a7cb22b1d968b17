package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelsec/sentinel-core/pkg/domain"
	"github.com/sentinelsec/sentinel-core/pkg/queue"
)

func TestQueue_PushPop_PreservesOrder(t *testing.T) {
	q := queue.New[int](4, queue.Block)

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Push(i))
	}

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		item, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, item)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DropOldest_EvictsHeadWhenFull(t *testing.T) {
	q := queue.New[int](2, queue.DropOldest)

	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))
	require.NoError(t, q.Push(3))

	assert.Equal(t, uint64(1), q.Dropped())

	ctx := context.Background()
	first, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first)

	second, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, second)
}

func TestQueue_Block_WaitsForConsumer(t *testing.T) {
	q := queue.New[int](1, queue.Block)
	require.NoError(t, q.Push(1))

	pushed := make(chan struct{})
	go func() {
		_ = q.Push(2)
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("push should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	item, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, item)

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("push should complete once a slot frees up")
	}
}

func TestQueue_Close_DrainsRemainingItems(t *testing.T) {
	q := queue.New[string](4, queue.Block)
	require.NoError(t, q.Push("a"))
	require.NoError(t, q.Push("b"))

	q.Close()

	ctx := context.Background()
	item, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", item)

	item, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", item)

	_, err = q.Pop(ctx)
	assert.ErrorIs(t, err, domain.ErrQueueClosed)
}

func TestQueue_Push_AfterCloseReturnsClosed(t *testing.T) {
	q := queue.New[int](1, queue.DropOldest)
	q.Close()
	q.Close()

	err := q.Push(1)
	assert.ErrorIs(t, err, domain.ErrQueueClosed)
}

func TestQueue_Pop_ContextCanceled(t *testing.T) {
	q := queue.New[int](1, queue.Block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
