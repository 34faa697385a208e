package hostexec

import "sync/atomic"

// overshardFactor is the block-count multiplier over the parallelism
// level. Oversharding keeps the pool busy when block runtimes are
// uneven, at bounded scheduling overhead.
const overshardFactor = 4

// parallelForState is the heap-resident execution context shared by
// every dispatched block of one ParallelFor call.
type parallelForState struct {
	host    *HostContext
	compute func(lo, hi int)
	onDone  func()
	n       int
	block   int
	pending atomic.Int64
}

// ParallelFor partitions [0, n) into blocks and runs compute(lo, hi)
// for each across the work queue, with the calling goroutine
// participating. onDone runs exactly once, after every block has
// completed; for small n the whole call, including onDone, executes
// synchronously on the caller.
//
// The block size is max(minBlock, n/(4*P)) where P is the queue's
// parallelism level. Dispatch uses recursive bisection: the caller
// repeatedly splits the block range, enqueuing the upper half and
// descending into the lower, so submission cost is logarithmic in the
// number of blocks and blocks fan out through the pool in tree order.
//
// Every index in [0, n) is covered by exactly one compute call. compute
// and onDone must not panic. A panic in a block run on the caller
// escapes to the caller; a panic in an enqueued block is handled as the
// work queue handles task panics (the default queue recovers and logs
// it). A panicking block is never counted as done, so onDone does not
// run.
func (h *HostContext) ParallelFor(n int, compute func(lo, hi int), onDone func(), minBlock int) {
	if minBlock < 1 {
		minBlock = 1
	}
	if n <= 0 {
		onDone()
		return
	}

	block := n / (overshardFactor * h.ParallelismLevel())
	if block < minBlock {
		block = minBlock
	}
	if n <= block {
		compute(0, n)
		onDone()
		return
	}

	blocks := (n + block - 1) / block
	s := &parallelForState{
		host:    h,
		compute: compute,
		onDone:  onDone,
		n:       n,
		block:   block,
	}
	s.pending.Store(int64(blocks))
	s.eval(0, blocks)
}

// eval dispatches the block index range [lo, hi): the upper half of
// each split is enqueued, the lower half is descended into, and the
// single remaining block executes here.
func (s *parallelForState) eval(lo, hi int) {
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		s.host.Enqueue(func() { s.eval(mid, hi) })
		hi = mid
	}

	start := lo * s.block
	end := start + s.block
	if end > s.n {
		end = s.n
	}
	s.compute(start, end)

	if s.pending.Add(-1) == 0 {
		s.onDone()
	}
}
