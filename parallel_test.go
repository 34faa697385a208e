package hostexec

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/require"
)

type indexRange struct {
	lo, hi int
}

// collectRanges runs ParallelFor and returns the recorded compute
// ranges once onDone has fired.
func collectRanges(t *testing.T, h *HostContext, n, minBlock int) mapset.Set[indexRange] {
	t.Helper()

	ranges := mapset.NewSet[indexRange]()
	done := make(chan struct{})
	var doneCalls atomic.Int64

	h.ParallelFor(n, func(lo, hi int) {
		if !ranges.Add(indexRange{lo, hi}) {
			t.Errorf("range [%d, %d) dispatched twice", lo, hi)
		}
	}, func() {
		if doneCalls.Add(1) == 1 {
			close(done)
		}
	}, minBlock)

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("ParallelFor completion callback never fired")
	}
	require.Equal(t, int64(1), doneCalls.Load(), "onDone must run exactly once")
	return ranges
}

// requirePartition asserts the ranges tile [0, n) exactly.
func requirePartition(t *testing.T, ranges mapset.Set[indexRange], n int) {
	t.Helper()
	covered := make([]int, n)
	for r := range ranges.Iter() {
		require.Less(t, r.lo, r.hi, "empty range [%d, %d)", r.lo, r.hi)
		require.GreaterOrEqual(t, r.lo, 0)
		require.LessOrEqual(t, r.hi, n)
		for i := r.lo; i < r.hi; i++ {
			covered[i]++
		}
	}
	for i, c := range covered {
		require.Equalf(t, 1, c, "index %d covered %d times", i, c)
	}
}

func TestParallelForCoverage(t *testing.T) {
	h := newTestContext(t) // parallelism 4

	ranges := collectRanges(t, h, 1000, 1)
	requirePartition(t, ranges, 1000)
	// B = max(1, 1000/(4*4)) = 62 -> genuinely parallel dispatch
	require.Greater(t, ranges.Cardinality(), 1)
	h.Quiesce()
}

func TestParallelForSmallRunsSynchronously(t *testing.T) {
	h := newTestContext(t)

	var computeCalls, doneCalls int
	h.ParallelFor(10, func(lo, hi int) {
		computeCalls++
		if lo != 0 || hi != 10 {
			t.Errorf("synchronous path got [%d, %d), want [0, 10)", lo, hi)
		}
	}, func() { doneCalls++ }, 100)

	// n <= block: everything ran on the caller, before return
	require.Equal(t, 1, computeCalls)
	require.Equal(t, 1, doneCalls)
}

func TestParallelForZeroLength(t *testing.T) {
	h := newTestContext(t)

	done := false
	h.ParallelFor(0, func(lo, hi int) {
		t.Error("compute must not run for n = 0")
	}, func() { done = true }, 1)
	require.True(t, done)
}

func TestParallelForSingleIndex(t *testing.T) {
	h := newTestContext(t)
	ranges := collectRanges(t, h, 1, 1)
	requirePartition(t, ranges, 1)
	require.Equal(t, 1, ranges.Cardinality())
}

func TestParallelForMinBlockRespected(t *testing.T) {
	h := newTestContext(t)

	ranges := collectRanges(t, h, 1000, 128)
	requirePartition(t, ranges, 1000)
	for r := range ranges.Iter() {
		if r.hi != 1000 { // the tail block may be short
			require.GreaterOrEqual(t, r.hi-r.lo, 128)
		}
	}
	h.Quiesce()
}

func TestParallelForOddSizes(t *testing.T) {
	h := newTestContext(t)

	for _, n := range []int{2, 3, 17, 63, 64, 65, 997} {
		ranges := collectRanges(t, h, n, 1)
		requirePartition(t, ranges, n)
	}
	h.Quiesce()
}

func TestParallelForCallerParticipates(t *testing.T) {
	h := newTestContext(t, WithParallelism(1))

	// with a single worker, progress still requires the caller to
	// execute its own block; verify total work adds up
	var total atomic.Int64
	done := make(chan struct{})
	h.ParallelFor(256, func(lo, hi int) {
		total.Add(int64(hi - lo))
	}, func() { close(done) }, 1)

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("ParallelFor stalled")
	}
	require.Equal(t, int64(256), total.Load())
	h.Quiesce()
}

func TestParallelForConcurrentCalls(t *testing.T) {
	h := newTestContext(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var total atomic.Int64
			inner := make(chan struct{})
			h.ParallelFor(500, func(lo, hi int) {
				total.Add(int64(hi - lo))
			}, func() { close(inner) }, 1)
			<-inner
			if total.Load() != 500 {
				t.Errorf("covered %d indices, want 500", total.Load())
			}
		}()
	}
	wg.Wait()
	h.Quiesce()
}
