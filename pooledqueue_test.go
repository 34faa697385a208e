package hostexec

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnqueueRunsTask(t *testing.T) {
	h := newTestContext(t)

	done := make(chan struct{})
	h.Enqueue(func() { close(done) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("enqueued task never ran")
	}
}

func TestParallelismLevelPositive(t *testing.T) {
	h := newTestContext(t)
	require.Equal(t, 4, h.ParallelismLevel())

	h1 := newTestContext(t, WithParallelism(1))
	require.Equal(t, 1, h1.ParallelismLevel())
}

func TestBlockingPoolRejection(t *testing.T) {
	h := newTestContext(t, WithBlockingLimit(1))

	release := make(chan struct{})
	started := make(chan struct{})
	ok := h.EnqueueBlocking(func() {
		close(started)
		<-release
	})
	require.True(t, ok)
	<-started

	// pool saturated: the non-queuing variant returns ownership
	var ran atomic.Bool
	task := Task(func() { ran.Store(true) })
	returned, accepted := h.TryEnqueueBlocking(task)
	require.False(t, accepted)
	require.NotNil(t, returned)
	returned() // caller may run it inline
	require.True(t, ran.Load())

	// the queuing variant is always accepted, waiting off-thread
	var queuedRan atomic.Bool
	require.True(t, h.EnqueueBlocking(func() { queuedRan.Store(true) }))

	close(release)
	h.Quiesce()
	require.True(t, queuedRan.Load())

	m := h.Metrics().Snapshot()
	require.Equal(t, int64(1), m.BlockingRejected)
	require.Equal(t, int64(2), m.BlockingAccepted)
}

func TestAwaitBlocksUntilResolved(t *testing.T) {
	h := newTestContext(t)

	x := h.NewUnresolvedFuture()
	defer x.Unref()
	y := h.NewUnresolvedFuture()
	defer y.Unref()

	h.Enqueue(func() { x.SetConcrete(1) })
	h.Enqueue(func() { y.SetConcrete(2) })

	h.Await([]*AsyncValue{x, y, nil})
	require.True(t, x.IsConcrete())
	require.True(t, y.IsConcrete())
}

func TestTaskPanicIsIsolated(t *testing.T) {
	h := newTestContext(t)

	done := make(chan struct{})
	h.Enqueue(func() { panic("task exploded") })
	h.Enqueue(func() { close(done) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker died with the panicking task")
	}
	h.Quiesce()
	require.Equal(t, int64(1), h.Metrics().Snapshot().WaiterPanics)
}

// Tasks transitively enqueue children; Quiesce must not return until
// the whole tree has completed and the in-flight gauge reads zero.
func TestQuiesceWaitsForTransitiveTasks(t *testing.T) {
	h := newTestContext(t)

	const roots = 10000
	const maxDepth = 5

	var executed atomic.Int64
	var spawn func(seed, depth int)
	spawn = func(seed, depth int) {
		executed.Add(1)
		// deterministic 50% fan-out up to the depth limit
		if depth < maxDepth && seed%2 == 0 {
			child := seed/2 + depth
			h.Enqueue(func() { spawn(child, depth+1) })
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < roots; i++ {
			i := i
			h.Enqueue(func() { spawn(i, 1) })
		}
	}()
	wg.Wait()

	h.Quiesce()

	m := h.Metrics().Snapshot()
	require.Zero(t, m.Inflight, "in-flight gauge must read 0 after Quiesce")
	require.Equal(t, executed.Load(), m.Completed)
	require.GreaterOrEqual(t, executed.Load(), int64(roots))
}

func TestQuiesceOnIdleQueueReturnsImmediately(t *testing.T) {
	h := newTestContext(t)
	h.Quiesce()
}

func TestExternalWorkQueueIsNotStopped(t *testing.T) {
	inner := newPooledQueue(2, 0, nil, nil)
	defer inner.stop()

	h, err := New(WithWorkQueue(inner))
	require.NoError(t, err)
	h.Close()

	// the externally owned queue must still accept work after Close
	done := make(chan struct{})
	inner.Enqueue(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("externally owned queue was stopped by context close")
	}
	inner.Quiesce()
}
