package hostexec

import (
	"sync"
	"sync/atomic"
)

// Value is the payload type carried by a concrete [AsyncValue]. It can
// be any type; consumers that know the concrete type assert on it.
type Value = any

// State represents the resolution state of an [AsyncValue]. A value
// starts [StateUnresolved] and transitions exactly once to either
// [StateConcrete] or [StateError]; transitions are irreversible. An
// indirect value reports [StateUnresolved] until the value it forwards
// to resolves, at which point it adopts that value's final state.
type State int32

const (
	// StateUnresolved indicates the producing computation has not
	// completed (or, for an indirect value, has not been decided).
	StateUnresolved State = iota

	// StateConcrete indicates the value resolved successfully and
	// [AsyncValue.Value] is defined.
	StateConcrete

	// StateError indicates the value resolved to a [Diagnostic] and
	// [AsyncValue.Err] is defined.
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "Unresolved"
	case StateConcrete:
		return "Concrete"
	case StateError:
		return "Error"
	default:
		return "Invalid"
	}
}

// waiterNode is a continuation pushed onto a value's intrusive LIFO
// stack while the value is unresolved.
type waiterNode struct {
	next *waiterNode
	fn   func()
}

// sealedWaiters is the sentinel stack head installed by resolution.
// Once the head equals this sentinel the payload and state words are
// published, and continuations run synchronously on the caller.
var sealedWaiters = new(waiterNode)

// AsyncValue is a reference-counted, set-once cell holding either a
// concrete value, an error diagnostic, or neither. Continuations may be
// attached at any time via [AsyncValue.AndThen]: while unresolved they
// are stacked and run (LIFO) when the value resolves; once resolved they
// run synchronously on the attaching goroutine.
//
// Resolution is set-once: a second Set call panics with a
// [*DoubleResolveError]. All methods are safe for concurrent use.
//
// Values are created with a reference count of 1. Holders share the
// value by calling [AsyncValue.Ref] and release with
// [AsyncValue.Unref]; the final release tears the payload down and,
// for context-owned values, routes the accounting back through the
// producing [HostContext].
type AsyncValue struct {
	refCount

	// payload holds the concrete value or *Diagnostic; written only by
	// the resolution winner, published by sealing the waiter stack.
	payload any

	// fwd is the forwarding target of an indirect value, kept for chain
	// collapse during traversal; nil otherwise.
	fwd atomic.Pointer[AsyncValue]

	waiters atomic.Pointer[waiterNode]
	state   atomic.Int32

	// ownerIndex identifies the HostContext that produced this value,
	// or -1 for unowned values from the package-level constructors.
	ownerIndex int32

	indirect  bool
	forwarded atomic.Bool
}

// NewUnresolved returns a new unresolved async value with reference
// count 1.
func NewUnresolved() *AsyncValue {
	v := &AsyncValue{ownerIndex: -1}
	v.refCount.init()
	return v
}

// NewAvailable returns a new async value already resolved to val, with
// reference count 1.
func NewAvailable(val Value) *AsyncValue {
	v := NewUnresolved()
	v.payload = val
	v.state.Store(int32(StateConcrete))
	v.waiters.Store(sealedWaiters)
	return v
}

// NewError returns a new async value already resolved to the given
// diagnostic, with reference count 1.
func NewError(d *Diagnostic) *AsyncValue {
	v := NewUnresolved()
	v.payload = d
	v.state.Store(int32(StateError))
	v.waiters.Store(sealedWaiters)
	return v
}

// Ref increments the reference count and returns v for chaining.
func (v *AsyncValue) Ref() *AsyncValue {
	v.refCount.ref()
	return v
}

// Unref releases one reference. The final release drops the payload and
// notifies the owning context, if any.
func (v *AsyncValue) Unref() {
	if v.refCount.unref() {
		v.destroy()
	}
}

func (v *AsyncValue) destroy() {
	v.payload = nil
	if h := contextAt(v.ownerIndex); h != nil {
		h.noteFutureReleased()
	}
}

// available reports whether resolution has been published. The waiter
// stack head doubles as the publication point: payload and state are
// written before the sentinel is installed.
func (v *AsyncValue) available() bool {
	return v.waiters.Load() == sealedWaiters
}

// State returns the current resolution state.
func (v *AsyncValue) State() State {
	if !v.available() {
		return StateUnresolved
	}
	return State(v.state.Load())
}

// IsAvailable reports whether the value has resolved (to either a
// concrete value or an error).
func (v *AsyncValue) IsAvailable() bool { return v.available() }

// IsConcrete reports whether the value resolved to a concrete payload.
func (v *AsyncValue) IsConcrete() bool { return v.State() == StateConcrete }

// IsError reports whether the value resolved to a diagnostic.
func (v *AsyncValue) IsError() bool { return v.State() == StateError }

// IsIndirect reports whether this is a forwarding value created by
// [NewIndirect].
func (v *AsyncValue) IsIndirect() bool { return v.indirect }

// Value returns the concrete payload. It is defined only once the value
// has resolved concrete; any other state panics with a
// [*UnresolvedAccessError], as reading an unresolved future is a
// programming error.
func (v *AsyncValue) Value() Value {
	if s := v.State(); s != StateConcrete {
		panic(&UnresolvedAccessError{State: s, Op: "Value"})
	}
	return v.payload
}

// Err returns the diagnostic. It is defined only once the value has
// resolved to an error; any other state panics with a
// [*UnresolvedAccessError].
func (v *AsyncValue) Err() *Diagnostic {
	if s := v.State(); s != StateError {
		panic(&UnresolvedAccessError{State: s, Op: "Err"})
	}
	return v.payload.(*Diagnostic)
}

// SetConcrete resolves the value to val and flushes the attached
// continuations in LIFO order. A second resolution panics with a
// [*DoubleResolveError].
func (v *AsyncValue) SetConcrete(val Value) {
	v.resolve(StateConcrete, val, "SetConcrete")
}

// Emplace resolves the value to val, constructing the payload in place.
// It is equivalent to [AsyncValue.SetConcrete]; the distinction matters
// only for allocators that separate storage from initialization.
func (v *AsyncValue) Emplace(val Value) {
	v.resolve(StateConcrete, val, "Emplace")
}

// SetError resolves the value to the given diagnostic and flushes the
// attached continuations in LIFO order.
func (v *AsyncValue) SetError(d *Diagnostic) {
	v.resolve(StateError, d, "SetError")
}

// resolve performs the single state transition. The CAS on the state
// word both elects the winner and detects double resolution; the waiter
// stack swap afterwards is the publication point for the payload.
func (v *AsyncValue) resolve(st State, payload any, op string) {
	if !v.state.CompareAndSwap(int32(StateUnresolved), int32(st)) {
		panic(&DoubleResolveError{Op: op})
	}
	v.payload = payload
	head := v.waiters.Swap(sealedWaiters)
	v.runWaiters(head)
}

// runWaiters invokes a detached stack in LIFO order. A panicking
// continuation is isolated: it is reported through the owner's
// diagnostic sink (or the package fallback) and the remaining
// continuations still run. A continuation that re-enters Set on the
// same value observes the resolved state word and panics with a
// [*DoubleResolveError], which is likewise isolated here.
func (v *AsyncValue) runWaiters(head *waiterNode) {
	for w := head; w != nil && w != sealedWaiters; w = w.next {
		v.runWaiter(w.fn)
	}
}

func (v *AsyncValue) runWaiter(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			v.reportPanic(r)
		}
	}()
	fn()
}

func (v *AsyncValue) reportPanic(r any) {
	perr := PanicError{Value: r}
	if h := contextAt(v.ownerIndex); h != nil {
		h.noteWaiterPanic()
		h.EmitError(&Diagnostic{Message: perr.Error(), Location: perr})
		return
	}
	reportUnownedPanic(r)
}

// AndThen attaches a zero-argument continuation. If the value is
// already resolved, fn runs synchronously on the calling goroutine
// before AndThen returns; otherwise it is pushed onto the waiter stack
// and runs exactly once when the value resolves. Continuations observe
// all writes made by the producer prior to resolution.
func (v *AsyncValue) AndThen(fn func()) {
	n := &waiterNode{fn: fn}
	for {
		head := v.waiters.Load()
		if head == sealedWaiters {
			v.runWaiter(fn)
			return
		}
		n.next = head
		if v.waiters.CompareAndSwap(head, n) {
			return
		}
	}
}

// awaitAll blocks until every non-nil value in the slice has resolved.
func awaitAll(values []*AsyncValue) {
	var wg sync.WaitGroup
	for _, v := range values {
		if v == nil {
			continue
		}
		wg.Add(1)
		v.AndThen(wg.Done)
	}
	wg.Wait()
}
