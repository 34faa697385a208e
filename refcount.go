package hostexec

import "sync/atomic"

// refCount is an intrusive atomic reference count. The embedding type
// supplies a destructor which runs exactly once, on the final release.
// Go's sync/atomic operations are sequentially consistent, which
// subsumes the acquire/release pairing the count would otherwise need to
// order prior releases before the destructor.
type refCount struct {
	n atomic.Int64
}

// init must be called once before the first ref/unref; the count starts
// at 1 on behalf of the creator.
func (c *refCount) init() {
	c.n.Store(1)
}

// ref increments the count. The caller must already hold a reference.
func (c *refCount) ref() {
	if c.n.Add(1) <= 1 {
		panic(`hostexec: ref on released value`)
	}
}

// unref decrements the count and reports whether this was the final
// release, in which case the caller runs the destructor. Going negative
// is a corruption of the counting discipline and panics.
func (c *refCount) unref() bool {
	n := c.n.Add(-1)
	if n < 0 {
		panic(`hostexec: unref below zero`)
	}
	return n == 0
}

// refs observes the current count. Only meaningful for diagnostics and
// tests; the value may be stale by the time it is read.
func (c *refCount) refs() int64 {
	return c.n.Load()
}
