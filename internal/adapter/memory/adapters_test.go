package memory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyang/job-dispatch/internal/adapter/memory"
	"github.com/alanyang/job-dispatch/internal/apperr"
	"github.com/alanyang/job-dispatch/internal/domain/event"
)

func TestCache_SetGetExpire(t *testing.T) {
	c := memory.NewCache()
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Set(ctx, "short", []byte("v"), -time.Second))
	_, err = c.Get(ctx, "short")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	require.NoError(t, c.Invalidate(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestQueue_FIFOAndDedupe(t *testing.T) {
	q := memory.NewQueue()
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, q.Enqueue(ctx, a))
	require.NoError(t, q.Enqueue(ctx, b))
	require.NoError(t, q.Enqueue(ctx, a))
	require.NoError(t, q.Enqueue(ctx, c))
	assert.Equal(t, 3, q.Len())

	select {
	case <-q.Ready():
	default:
		t.Fatal("expected ready signal")
	}

	got, err := q.Claim(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, got)

	got, err = q.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{c}, got)

	got, err = q.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLocker_SerialisesSameKey(t *testing.T) {
	l := memory.NewLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithLock(context.Background(), 42, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestLocker_ContextCancelledWhileWaiting(t *testing.T) {
	l := memory.NewLocker()
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), 1, func(ctx context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.WithLock(ctx, 1, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(hold)
}

func TestEventBus_DeliversByChannel(t *testing.T) {
	bus := memory.NewEventBus()
	ctx := context.Background()

	got := make(chan event.Event, 4)
	sub, err := bus.Subscribe(ctx, event.ChannelDistribution, func(_ context.Context, e event.Event) { got <- e })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	id := uuid.New()
	require.NoError(t, bus.Publish(ctx, event.New(event.TypeJobSubmitted, uuid.New())))
	require.NoError(t, bus.Publish(ctx, event.New(event.TypeDistributionResolved, id)))

	select {
	case e := <-got:
		assert.Equal(t, event.TypeDistributionResolved, e.Type)
		assert.Equal(t, id, e.EntityID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case e := <-got:
		t.Fatalf("unexpected event %v", e.Type)
	case <-time.After(20 * time.Millisecond):
	}
}
