package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFetchesOnceAndCaches(t *testing.T) {
	store := NewStore()
	var calls int32

	fetch := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "value", nil
	}

	first := store.Read(context.Background(), "k", fetch)
	require.Equal(t, StatusResolved, first.Status)
	require.Equal(t, "value", first.Value)

	second := store.Read(context.Background(), "k", fetch)
	require.Equal(t, "value", second.Value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestConcurrentReadsShareOneFlight(t *testing.T) {
	store := NewStore()
	var calls int32
	release := make(chan struct{})

	fetch := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]Entry, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.Read(context.Background(), "k", fetch)
		}(i)
	}

	// Let every goroutine either start the flight or attach to it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, entry := range results {
		assert.Equal(t, StatusResolved, entry.Status)
		assert.Equal(t, 42, entry.Value)
	}
}

func TestReadContextDoneWhileAttached(t *testing.T) {
	store := NewStore()
	release := make(chan struct{})

	go store.Read(context.Background(), "k", func(ctx context.Context) (any, error) {
		<-release
		return "late", nil
	})
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	entry := store.Read(ctx, "k", func(ctx context.Context) (any, error) {
		t.Fatal("attached reader must not fetch")
		return nil, nil
	})
	require.Equal(t, StatusErrored, entry.Status)
	require.ErrorIs(t, entry.Err, context.Canceled)

	// The original flight still settles into the store.
	close(release)
	time.Sleep(20 * time.Millisecond)
	settled, ok := store.Peek("k")
	require.True(t, ok)
	assert.Equal(t, "late", settled.Value)
}

func TestReadErrorIsCachedUntilInvalidate(t *testing.T) {
	store := NewStore()
	bad := errors.New("backend down")
	var calls int32

	fetch := func(ctx context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, bad
		}
		return "recovered", nil
	}

	first := store.Read(context.Background(), "k", fetch)
	require.Equal(t, StatusErrored, first.Status)
	require.ErrorIs(t, first.Err, bad)

	// The settled error is served as-is until invalidated.
	again := store.Read(context.Background(), "k", fetch)
	require.ErrorIs(t, again.Err, bad)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	store.Invalidate("k")
	third := store.Read(context.Background(), "k", fetch)
	require.Equal(t, StatusResolved, third.Status)
	assert.Equal(t, "recovered", third.Value)
}

func TestCanceledFetchIsNotCached(t *testing.T) {
	store := NewStore()
	var calls int32

	fetch := func(ctx context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return "loaded", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	first := store.Read(ctx, "k", fetch)
	require.Equal(t, StatusErrored, first.Status)
	require.ErrorIs(t, first.Err, context.Canceled)

	// The abandoned fetch must not pin the error; a later read with a
	// live context fetches again.
	second := store.Read(context.Background(), "k", fetch)
	require.Equal(t, StatusResolved, second.Status)
	assert.Equal(t, "loaded", second.Value)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestInvalidateDuringFlightSurvivesSettle(t *testing.T) {
	store := NewStore()
	var calls int32
	release := make(chan struct{})

	fetch := func(ctx context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-release
			return "v1", nil
		}
		return "v2", nil
	}

	done := make(chan Entry, 1)
	go func() { done <- store.Read(context.Background(), "k", fetch) }()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("flight never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	store.Invalidate("k")
	close(release)
	first := <-done
	assert.Equal(t, "v1", first.Value)

	// The invalidation issued mid-flight holds: the next read refetches.
	second := store.Read(context.Background(), "k", fetch)
	assert.Equal(t, "v2", second.Value)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWriteNotifiesSubscribersSynchronously(t *testing.T) {
	store := NewStore()
	var got []Entry
	cancel := store.Subscribe("k", func(e Entry) {
		got = append(got, e)
	})
	defer cancel()

	store.Write("k", []string(nil), func(current any) any {
		list, _ := current.([]string)
		return append(list, "hello")
	})

	require.Len(t, got, 1)
	require.Equal(t, StatusResolved, got[0].Status)
	assert.Equal(t, []string{"hello"}, got[0].Value)

	store.Write("k", []string(nil), func(current any) any {
		list, _ := current.([]string)
		return append(list, "world")
	})
	require.Len(t, got, 2)
	assert.Equal(t, []string{"hello", "world"}, got[1].Value)
}

func TestWriteSeedsDefaultWhenUnresolved(t *testing.T) {
	store := NewStore()

	store.Write("k", 10, func(current any) any {
		return current.(int) + 1
	})

	entry, ok := store.Peek("k")
	require.True(t, ok)
	assert.Equal(t, 11, entry.Value)
}

func TestSubscribeCancelStopsNotifications(t *testing.T) {
	store := NewStore()
	var count int
	cancel := store.Subscribe("k", func(Entry) { count++ })

	store.Write("k", 0, func(current any) any { return current })
	cancel()
	store.Write("k", 0, func(current any) any { return current })

	assert.Equal(t, 1, count)
}

func TestPeekMissingKey(t *testing.T) {
	store := NewStore()
	_, ok := store.Peek("missing")
	assert.False(t, ok)
}
