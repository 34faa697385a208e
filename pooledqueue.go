package hostexec

import (
	"context"
	"sync"

	"github.com/joeycumines/logiface"
	"golang.org/x/sync/semaphore"
)

// pooledQueue is the default WorkQueue: a fixed set of worker
// goroutines draining an unbounded FIFO for non-blocking tasks, and a
// semaphore-bounded side pool for tasks that may block. Quiescence
// tracks every submission (both pools) with a single in-flight count,
// so child tasks enqueued by a running task extend the quiesce window
// before the parent's own completion is recorded.
type pooledQueue struct {
	logger   *logiface.Logger[logiface.Event]
	metrics  *Metrics
	sem      *semaphore.Weighted
	workCond *sync.Cond
	idleCond *sync.Cond
	queue    []Task
	wg       sync.WaitGroup
	mu       sync.Mutex
	inflight int
	workers  int
	stopping bool
}

var _ WorkQueue = (*pooledQueue)(nil)

func newPooledQueue(workers, blockingLimit int, logger *logiface.Logger[logiface.Event], metrics *Metrics) *pooledQueue {
	if workers < 1 {
		workers = 1
	}
	if blockingLimit < 1 {
		blockingLimit = workers * 8
	}
	q := &pooledQueue{
		logger:  logger,
		metrics: metrics,
		sem:     semaphore.NewWeighted(int64(blockingLimit)),
		workers: workers,
	}
	q.workCond = sync.NewCond(&q.mu)
	q.idleCond = sync.NewCond(&q.mu)
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

func (q *pooledQueue) worker() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for len(q.queue) == 0 && !q.stopping {
			q.workCond.Wait()
		}
		if len(q.queue) == 0 {
			// stopping, drained
			q.mu.Unlock()
			return
		}
		task := q.queue[0]
		q.queue = q.queue[1:]
		q.mu.Unlock()

		q.run(task)
	}
}

// run executes a task with panic isolation and records its completion.
func (q *pooledQueue) run(task Task) {
	defer func() {
		r := recover()
		if r != nil {
			q.metrics.noteWaiterPanic()
			q.logger.Err().
				Any(`panic`, r).
				Log(`hostexec: isolated panic in task`)
		}
		q.metrics.noteCompleted()
		q.mu.Lock()
		q.inflight--
		if q.inflight == 0 {
			q.idleCond.Broadcast()
		}
		q.mu.Unlock()
	}()
	task()
}

func (q *pooledQueue) Enqueue(task Task) {
	if task == nil {
		panic(`hostexec: enqueue of nil task`)
	}
	q.metrics.noteSubmitted()
	q.mu.Lock()
	if q.stopping {
		q.mu.Unlock()
		panic(`hostexec: enqueue on stopped queue`)
	}
	q.inflight++
	q.queue = append(q.queue, task)
	q.workCond.Signal()
	q.mu.Unlock()
}

func (q *pooledQueue) TryEnqueueBlocking(task Task, allowQueuing bool) (Task, bool) {
	if task == nil {
		panic(`hostexec: enqueue of nil task`)
	}

	if !allowQueuing && !q.sem.TryAcquire(1) {
		q.metrics.noteBlocking(false)
		return task, false
	}

	q.mu.Lock()
	if q.stopping {
		q.mu.Unlock()
		if !allowQueuing {
			q.sem.Release(1)
		}
		q.metrics.noteBlocking(false)
		return task, false
	}
	q.inflight++
	q.mu.Unlock()

	q.metrics.noteSubmitted()
	q.metrics.noteBlocking(true)

	if allowQueuing {
		go func() {
			// cannot fail: the context is never canceled
			_ = q.sem.Acquire(context.Background(), 1)
			defer q.sem.Release(1)
			q.run(task)
		}()
	} else {
		go func() {
			defer q.sem.Release(1)
			q.run(task)
		}()
	}
	return nil, true
}

func (q *pooledQueue) AwaitAll(values []*AsyncValue) {
	awaitAll(values)
}

func (q *pooledQueue) Quiesce() {
	q.mu.Lock()
	for q.inflight > 0 {
		q.idleCond.Wait()
	}
	q.mu.Unlock()
}

func (q *pooledQueue) ParallelismLevel() int {
	return q.workers
}

// stop drains the non-blocking queue and joins the workers. Callers
// quiesce first; stop exists so context teardown does not leak worker
// goroutines.
func (q *pooledQueue) stop() {
	q.mu.Lock()
	q.stopping = true
	q.workCond.Broadcast()
	q.mu.Unlock()
	q.wg.Wait()
}
