package msgworker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPoolProcessesJobs(t *testing.T) {
	pool := NewIngestWorkerPool(4, 16)
	pool.Start(context.Background())
	defer pool.Stop()

	var mu sync.Mutex
	processed := 0

	for i := 0; i < 20; i++ {
		ok := pool.TryDispatch(IngestJob{
			SessionID: "sess-1",
			ChatID:    string(rune('a' + i)),
			Handler: func(ctx context.Context) error {
				mu.Lock()
				processed++
				mu.Unlock()
				return nil
			},
		})
		require.True(t, ok)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return processed == 20
	})

	stats := pool.GetStats()
	assert.Equal(t, int64(20), stats.TotalDispatched)
	assert.Equal(t, int64(20), stats.TotalProcessed)
	assert.Equal(t, int64(0), stats.TotalErrors)
}

func TestPoolPreservesPerChatOrder(t *testing.T) {
	pool := NewIngestWorkerPool(8, 64)
	pool.Start(context.Background())
	defer pool.Stop()

	var mu sync.Mutex
	var order []int

	for i := 0; i < 50; i++ {
		seq := i
		require.True(t, pool.TryDispatch(IngestJob{
			SessionID: "sess-1",
			ChatID:    "same-chat",
			Handler: func(ctx context.Context) error {
				mu.Lock()
				order = append(order, seq)
				mu.Unlock()
				return nil
			},
		}))
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 50
	})

	for i, seq := range order {
		assert.Equal(t, i, seq, "jobs for one chat must run in dispatch order")
	}
}

func TestPoolCountsHandlerErrors(t *testing.T) {
	pool := NewIngestWorkerPool(2, 8)
	pool.Start(context.Background())
	defer pool.Stop()

	require.True(t, pool.TryDispatch(IngestJob{
		SessionID: "sess-1",
		ChatID:    "chat",
		Handler: func(ctx context.Context) error {
			return errors.New("boom")
		},
	}))

	waitFor(t, func() bool {
		return pool.GetStats().TotalProcessed == 1
	})
	assert.Equal(t, int64(1), pool.GetStats().TotalErrors)
}

func TestPoolRecoversFromHandlerPanic(t *testing.T) {
	pool := NewIngestWorkerPool(1, 8)
	pool.Start(context.Background())
	defer pool.Stop()

	require.True(t, pool.TryDispatch(IngestJob{
		SessionID: "sess-1",
		ChatID:    "chat",
		Handler: func(ctx context.Context) error {
			panic("handler bug")
		},
	}))
	require.True(t, pool.TryDispatch(IngestJob{
		SessionID: "sess-1",
		ChatID:    "chat",
		Handler: func(ctx context.Context) error {
			return nil
		},
	}))

	waitFor(t, func() bool {
		return pool.GetStats().TotalProcessed == 2
	})
	assert.Equal(t, int64(1), pool.GetStats().TotalErrors)
}

func TestTryDispatchBackpressure(t *testing.T) {
	pool := NewIngestWorkerPool(1, 1)
	pool.Start(context.Background())
	defer pool.Stop()

	block := make(chan struct{})
	blocker := IngestJob{
		SessionID: "sess-1",
		ChatID:    "chat",
		Handler: func(ctx context.Context) error {
			<-block
			return nil
		},
	}

	// First job occupies the worker, second fills the queue of size 1.
	require.True(t, pool.TryDispatch(blocker))
	waitFor(t, func() bool { return pool.GetStats().ActiveWorkers == 1 })
	require.True(t, pool.TryDispatch(blocker))

	assert.False(t, pool.TryDispatch(blocker), "full shard queue must refuse, not block")
	assert.Equal(t, int64(1), pool.GetStats().TotalDropped)

	close(block)
}

func TestDispatchAfterStopIsRefused(t *testing.T) {
	pool := NewIngestWorkerPool(2, 8)
	pool.Start(context.Background())
	pool.Stop()

	ok := pool.TryDispatch(IngestJob{
		SessionID: "sess-1",
		ChatID:    "chat",
		Handler:   func(ctx context.Context) error { return nil },
	})
	assert.False(t, ok)
}

func TestStopDrainsQueuedJobs(t *testing.T) {
	pool := NewIngestWorkerPool(1, 32)
	pool.Start(context.Background())

	var mu sync.Mutex
	processed := 0
	for i := 0; i < 10; i++ {
		require.True(t, pool.TryDispatch(IngestJob{
			SessionID: "sess-1",
			ChatID:    "chat",
			Handler: func(ctx context.Context) error {
				mu.Lock()
				processed++
				mu.Unlock()
				return nil
			},
		}))
	}

	pool.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, processed, "accepted jobs survive shutdown")
}
