package hostexec

// Task is a unit of work submitted to a [WorkQueue]. Tasks run to
// completion; there is no cancellation of an individual running task.
// Cancellation is cooperative, via [HostContext.CancelValue].
type Task func()

// WorkQueue is the scheduling capability a [HostContext] submits work
// through. Implementations own their worker threads and must be safe
// for concurrent use. Only AwaitAll and Quiesce may block the caller.
type WorkQueue interface {
	// Enqueue submits a non-blocking task and returns immediately.
	Enqueue(task Task)

	// TryEnqueueBlocking attempts to run a task that may block (e.g. on
	// I/O) on a separate pool. When allowQueuing is true the task is
	// always accepted, waiting for pool capacity off the caller's
	// thread. When false and the pool is saturated, ownership of the
	// task is returned to the caller: the result is (task, false).
	// On acceptance the result is (nil, true).
	TryEnqueueBlocking(task Task, allowQueuing bool) (Task, bool)

	// AwaitAll blocks the caller until every non-nil value has
	// resolved. Implementations are permitted to steal queued work
	// while waiting.
	AwaitAll(values []*AsyncValue)

	// Quiesce blocks until all submitted tasks, including continuations
	// they transitively enqueued, have completed.
	Quiesce()

	// ParallelismLevel reports the queue's degree of parallelism,
	// always >= 1. It is a sizing heuristic, not a guarantee.
	ParallelismLevel() int
}
