package hostexec

// Indirect async values provide forward references: a caller can hand
// out a future before the computation producing it has been decided,
// then later bind it to the producing value with
// [AsyncValue.ForwardTo]. Forwarding is transparent: every observer of
// the indirect value sees the final resolution of the target, including
// error states, across arbitrarily long chains of indirects.

// maxForwardDepth bounds target-chain traversal. Cycles among indirect
// values are a caller bug this package does not detect in general; the
// bound turns a pathological or cyclic chain into a prompt panic
// instead of an unbounded walk.
const maxForwardDepth = 1000

// NewIndirect returns a new indirect async value with reference count 1.
// It stays unresolved until bound via [AsyncValue.ForwardTo] and the
// bound target resolves, at which point it adopts the target's state.
func NewIndirect() *AsyncValue {
	v := NewUnresolved()
	v.indirect = true
	return v
}

// ForwardTo binds an indirect value to target: when target resolves,
// v adopts its state (concrete payload or error diagnostic) and flushes
// v's own continuations. Panics if v is not indirect, and with a
// [*DoubleResolveError] if v has already been forwarded. ForwardTo
// retains its own reference on target until adoption completes; the
// caller keeps (and remains responsible for) its reference.
func (v *AsyncValue) ForwardTo(target *AsyncValue) {
	if !v.indirect {
		panic(`hostexec: ForwardTo on non-indirect async value`)
	}
	if target == nil {
		panic(`hostexec: ForwardTo with nil target`)
	}
	if !v.forwarded.CompareAndSwap(false, true) {
		panic(&DoubleResolveError{Op: "ForwardTo"})
	}

	t := collapseTarget(target)
	v.fwd.Store(t)
	t.Ref()
	t.AndThen(func() {
		v.adopt(t)
		v.fwd.Store(nil)
		t.Unref()
	})
}

// adopt copies the resolved state of t into v. It runs as a
// continuation of t, so t is resolved and its payload published.
func (v *AsyncValue) adopt(t *AsyncValue) {
	switch t.State() {
	case StateConcrete:
		v.resolve(StateConcrete, t.payload, "ForwardTo")
	case StateError:
		v.resolve(StateError, t.payload, "ForwardTo")
	default:
		panic(`hostexec: adopt of unresolved target`)
	}
}

// collapseTarget walks a chain of forwarded indirects to the deepest
// value the chain currently reaches, so the adoption continuation
// registers once, on the real producer, keeping AndThen O(1) amortized
// over chained indirects.
func collapseTarget(t *AsyncValue) *AsyncValue {
	for depth := 0; ; depth++ {
		if depth >= maxForwardDepth {
			panic(`hostexec: forward chain too deep (cycle?)`)
		}
		if t.available() || !t.indirect {
			return t
		}
		next := t.fwd.Load()
		if next == nil {
			return t
		}
		t = next
	}
}
