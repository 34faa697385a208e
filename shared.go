package hostexec

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MaxSharedContexts is the capacity of each context's shared-context
// slot array, and the ceiling on process-wide shared-context type ids.
const MaxSharedContexts = 256

// nextSharedContextID assigns dense shared-context type ids, one per
// type, at first registration.
var nextSharedContextID atomic.Int32

// NewSharedContextID allocates the next dense shared-context type id.
// Call it once per shared-context type (typically from a package-level
// var) and pass the result to [HostContext.GetOrCreateShared]. Panics
// with a [*CapacityError] once [MaxSharedContexts] ids are assigned.
func NewSharedContextID() int {
	id := nextSharedContextID.Add(1) - 1
	if id >= MaxSharedContexts {
		panic(&CapacityError{Resource: "shared context types", Limit: MaxSharedContexts})
	}
	return int(id)
}

// SharedContextFactory constructs a shared singleton for a context.
// It is invoked at most once per (HostContext, id), under the slot's
// one-shot guard; concurrent callers of GetOrCreateShared block only
// until the factory returns.
type SharedContextFactory func(*HostContext) any

type sharedSlot struct {
	instance any
	once     sync.Once
}

// sharedRegistry is a fixed array of lazily initialized singleton
// slots, indexed by shared-context type id. First caller through a
// slot's guard wins; the instance is then stable for the life of the
// owning context.
type sharedRegistry struct {
	slots [MaxSharedContexts]sharedSlot
}

func (r *sharedRegistry) getOrCreate(h *HostContext, id int, factory SharedContextFactory) any {
	if id < 0 || id >= MaxSharedContexts {
		panic(fmt.Sprintf("hostexec: shared context id %d out of range [0, %d)", id, MaxSharedContexts))
	}
	if factory == nil {
		panic(`hostexec: nil shared context factory`)
	}
	s := &r.slots[id]
	s.once.Do(func() {
		s.instance = factory(h)
	})
	return s.instance
}

// teardown drops instance references at context close. Initialization
// guards are left tripped; the registry dies with its context.
func (r *sharedRegistry) teardown() {
	for i := range r.slots {
		s := &r.slots[i]
		s.once.Do(func() {}) // seal uninitialized slots
		s.instance = nil
	}
}
