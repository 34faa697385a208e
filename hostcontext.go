package hostexec

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

// MaxContexts is the capacity of the process-global context table.
// Instance indices are assigned monotonically and never reused, so
// MaxContexts bounds the number of HostContext values constructed over
// the life of the process, not merely the number alive at once. The
// limit is sized so an index fits in a byte, for the benefit of
// small-pointer encodings layered above.
const MaxContexts = 256

// Process-global state. Zero values are valid; no init hook is needed
// beyond Go's package initialization, which precedes any New call.
var (
	nextInstanceIndex atomic.Int32
	allContexts       [MaxContexts]atomic.Pointer[HostContext]
)

// contextAt returns the live context registered at index i, or nil.
func contextAt(i int32) *HostContext {
	if i < 0 || i >= MaxContexts {
		return nil
	}
	return allContexts[i].Load()
}

// HostContext is the per-process substrate a dataflow runtime executes
// on: it binds an [Allocator], a [WorkQueue], a shared-context
// registry, and a diagnostic sink, and owns context-wide cooperative
// cancellation. Kernels receive it as an ambient collaborator.
//
// Construct with [New]; release with [HostContext.Close]. All methods
// are safe for concurrent use.
type HostContext struct {
	allocator Allocator
	queue     WorkQueue
	ownQueue  *pooledQueue // non-nil when the queue is internally owned
	logger    *logiface.Logger[logiface.Event]
	sink      DiagnosticSink
	metrics   *Metrics

	// readyChain is the always-available sentinel future, handed to
	// kernels that need "already done" without allocating.
	readyChain *AsyncValue

	cancelValue atomic.Pointer[AsyncValue]

	shared sharedRegistry

	closeOnce     sync.Once
	instanceIndex int32
}

// New constructs a HostContext, claiming a slot in the process-global
// context table. Returns a [*CapacityError] once [MaxContexts] indices
// have been handed out (indices are never reused).
func New(opts ...Option) (*HostContext, error) {
	cfg, err := resolveContextOptions(opts)
	if err != nil {
		return nil, err
	}

	idx := nextInstanceIndex.Add(1) - 1
	if idx >= MaxContexts {
		return nil, &CapacityError{Resource: "host contexts", Limit: MaxContexts}
	}

	h := &HostContext{
		allocator:     cfg.allocator,
		logger:        cfg.logger,
		sink:          cfg.sink,
		instanceIndex: idx,
	}
	if cfg.metricsEnabled {
		h.metrics = new(Metrics)
	}
	if h.sink == nil {
		h.sink = newLoggerSink(cfg.logger)
	}
	if cfg.queue != nil {
		h.queue = cfg.queue
	} else {
		h.ownQueue = newPooledQueue(cfg.parallelism, cfg.blockingLimit, cfg.logger, h.metrics)
		h.queue = h.ownQueue
	}

	allContexts[idx].Store(h)

	// The sentinel takes a slot in the live-future accounting like any
	// other context-owned value; Close drops it first so its release
	// still finds the context registered.
	h.readyChain = h.adoptFuture(NewAvailable(nil))

	h.logger.Debug().
		Int(`instance`, int(idx)).
		Int(`parallelism`, h.queue.ParallelismLevel()).
		Log(`hostexec: context created`)

	return h, nil
}

// InstanceIndex returns the context's slot in the process-global table,
// stable and unique for the life of the process.
func (h *HostContext) InstanceIndex() int {
	return int(h.instanceIndex)
}

// Logger returns the configured logger (possibly nil; logiface loggers
// are nil-safe).
func (h *HostContext) Logger() *logiface.Logger[logiface.Event] {
	return h.logger
}

// Metrics returns the context's metrics, or nil when not enabled.
func (h *HostContext) Metrics() *Metrics {
	return h.metrics
}

// ReadyChain returns the context's always-available sentinel future.
// Callers must not Unref it; it is owned by the context.
func (h *HostContext) ReadyChain() *AsyncValue {
	return h.readyChain
}

// Close tears the context down: the ready sentinel is dropped first
// (so its release still finds the context's accounting alive), then the
// global slot is cleared, then the cancel value is dropped and the
// registry and the owned queue are torn down in that order; finally the
// allocator is checked for live bytes, which are logged as a leak.
// Idempotent.
func (h *HostContext) Close() {
	h.closeOnce.Do(func() {
		if h.readyChain != nil {
			h.readyChain.Unref()
			h.readyChain = nil
		}

		allContexts[h.instanceIndex].Store(nil)

		h.Restart() // drop any installed cancel value
		h.shared.teardown()

		if h.ownQueue != nil {
			h.ownQueue.Quiesce()
			h.ownQueue.stop()
		}

		if live := h.allocator.AllocatedBytes(); live != 0 {
			h.logger.Warning().
				Int(`instance`, int(h.instanceIndex)).
				Int64(`bytes`, live).
				Log(`hostexec: allocator has live bytes at context close`)
		}

		h.logger.Debug().
			Int(`instance`, int(h.instanceIndex)).
			Log(`hostexec: context closed`)
	})
}

// --- allocation ---

// AllocateBytes returns size bytes aligned to align, via the context's
// allocator. Panics on invalid arguments; allocation failure aborts.
func (h *HostContext) AllocateBytes(size, align int) []byte {
	return h.allocator.Allocate(size, align)
}

// DeallocateBytes returns a buffer obtained from AllocateBytes.
func (h *HostContext) DeallocateBytes(buf []byte) {
	h.allocator.Deallocate(buf)
}

// --- work submission ---

// Enqueue submits a non-blocking task; returns immediately.
func (h *HostContext) Enqueue(task Task) {
	h.queue.Enqueue(task)
}

// EnqueueBlocking submits a task that may block, queuing for pool
// capacity if necessary. Reports whether the task was accepted; on
// rejection the caller retains ownership and may run it inline.
func (h *HostContext) EnqueueBlocking(task Task) bool {
	_, ok := h.queue.TryEnqueueBlocking(task, true)
	return ok
}

// TryEnqueueBlocking is the non-queuing variant: when the blocking pool
// is saturated, ownership of the task is returned with accepted=false.
func (h *HostContext) TryEnqueueBlocking(task Task) (Task, bool) {
	return h.queue.TryEnqueueBlocking(task, false)
}

// ParallelismLevel reports the work queue's degree of parallelism.
func (h *HostContext) ParallelismLevel() int {
	return h.queue.ParallelismLevel()
}

// Await blocks until every non-nil value has resolved.
func (h *HostContext) Await(values []*AsyncValue) {
	h.queue.AwaitAll(values)
}

// Quiesce blocks until all submitted tasks and their transitively
// enqueued continuations have completed.
func (h *HostContext) Quiesce() {
	h.queue.Quiesce()
}

// --- futures ---

// adoptFuture stamps v as owned by this context for release accounting.
func (h *HostContext) adoptFuture(v *AsyncValue) *AsyncValue {
	v.ownerIndex = h.instanceIndex
	h.metrics.noteFuture(1)
	return v
}

func (h *HostContext) noteFutureReleased() {
	h.metrics.noteFuture(-1)
}

func (h *HostContext) noteWaiterPanic() {
	h.metrics.noteWaiterPanic()
}

// NewUnresolvedFuture returns a context-owned unresolved async value.
func (h *HostContext) NewUnresolvedFuture() *AsyncValue {
	return h.adoptFuture(NewUnresolved())
}

// NewAvailableFuture returns a context-owned async value resolved to
// val.
func (h *HostContext) NewAvailableFuture(val Value) *AsyncValue {
	return h.adoptFuture(NewAvailable(val))
}

// NewErrorFuture returns a context-owned async value in error state.
func (h *HostContext) NewErrorFuture(d *Diagnostic) *AsyncValue {
	return h.adoptFuture(NewError(d))
}

// NewIndirectFuture returns a context-owned indirect async value.
func (h *HostContext) NewIndirectFuture() *AsyncValue {
	return h.adoptFuture(NewIndirect())
}

// EmitError delivers a diagnostic to the context's sink.
func (h *HostContext) EmitError(d *Diagnostic) {
	h.sink(d)
}

// --- cancellation ---

// Cancel installs a context-wide error future carrying msg. The first
// caller wins; later calls release their future and are otherwise
// no-ops until [HostContext.Restart]. Running tasks are not aborted:
// kernels poll [HostContext.CancelValue] at safe points.
func (h *HostContext) Cancel(msg string) {
	errv := h.NewErrorFuture(&Diagnostic{Message: msg})
	if !h.cancelValue.CompareAndSwap(nil, errv) {
		errv.Unref()
		return
	}
	h.logger.Info().
		Int(`instance`, int(h.instanceIndex)).
		Str(`message`, msg).
		Log(`hostexec: cancel installed`)
}

// Restart clears the cancellation state, releasing the installed error
// future if any. After Restart the cancel cycle may repeat.
func (h *HostContext) Restart() {
	if old := h.cancelValue.Swap(nil); old != nil {
		old.Unref()
	}
}

// CancelValue returns the installed cancellation error future, or nil
// when the context is not cancelled. The context retains ownership of
// the returned reference.
func (h *HostContext) CancelValue() *AsyncValue {
	return h.cancelValue.Load()
}

// --- joins ---

// joinRecord counts down resolutions for a multi-input RunWhenReady.
type joinRecord struct {
	callback func()
	pending  atomic.Int64
}

// RunWhenReady invokes callback once every value in values has
// resolved. If all are already resolved the callback runs synchronously
// on the caller; with exactly one pending input it runs as that value's
// continuation; otherwise a join record counts resolutions down and the
// final resolver runs it. The callback observes all writes made by each
// producer prior to its resolution.
//
// Error inputs do not short-circuit the join: the callback runs after
// every input settles and inspects states itself.
func (h *HostContext) RunWhenReady(values []*AsyncValue, callback func()) {
	var pending []*AsyncValue
	for _, v := range values {
		if v != nil && !v.available() {
			pending = append(pending, v)
		}
	}

	switch len(pending) {
	case 0:
		callback()
	case 1:
		pending[0].AndThen(callback)
	default:
		rec := &joinRecord{callback: callback}
		rec.pending.Store(int64(len(pending)))
		for _, v := range pending {
			v.AndThen(func() {
				if rec.pending.Add(-1) == 0 {
					rec.callback()
				}
			})
		}
	}
}

// GetOrCreateShared returns the shared singleton for the given id,
// invoking factory at most once per (context, id). See
// [NewSharedContextID] for id assignment. Panics if id is out of
// range.
func (h *HostContext) GetOrCreateShared(id int, factory SharedContextFactory) any {
	return h.shared.getOrCreate(h, id, factory)
}
