package hostexec

import (
	"errors"
	"fmt"
)

// UnresolvedAccessError is the panic value raised when the payload of an
// [AsyncValue] is read before the value has resolved, or with the wrong
// accessor for its resolved state (e.g. [AsyncValue.Err] on a concrete
// value). It indicates a programming error in the caller, not a runtime
// condition to recover from.
type UnresolvedAccessError struct {
	// State is the observed state at the time of the access.
	State State
	// Op names the accessor that was misused.
	Op string
}

// Error implements the error interface.
func (e *UnresolvedAccessError) Error() string {
	return fmt.Sprintf("hostexec: %s on async value in state %s", e.Op, e.State)
}

// Is matches any *UnresolvedAccessError regardless of contents.
func (e *UnresolvedAccessError) Is(target error) bool {
	var t *UnresolvedAccessError
	return errors.As(target, &t)
}

// DoubleResolveError is the panic value raised by a second resolution
// attempt on an [AsyncValue]: a second Set call on a non-indirect value,
// or a second ForwardTo on an indirect one. Resolution is set-once.
type DoubleResolveError struct {
	// Op names the operation that lost the race.
	Op string
}

// Error implements the error interface.
func (e *DoubleResolveError) Error() string {
	if e.Op == "" {
		return "hostexec: async value already resolved"
	}
	return fmt.Sprintf("hostexec: %s on already-resolved async value", e.Op)
}

// Is matches any *DoubleResolveError regardless of contents.
func (e *DoubleResolveError) Is(target error) bool {
	var t *DoubleResolveError
	return errors.As(target, &t)
}

// CapacityError reports exhaustion of one of the process-global tables:
// too many live host contexts, or too many shared-context types. It is
// returned by [New] and panicked by [NewSharedContextID]; either way the
// condition is fatal for the caller, as indices are never reused.
type CapacityError struct {
	// Resource names the exhausted table.
	Resource string
	// Limit is the table's fixed capacity.
	Limit int
}

// Error implements the error interface.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("hostexec: too many %s (limit %d)", e.Resource, e.Limit)
}

// Is matches any *CapacityError regardless of contents.
func (e *CapacityError) Is(target error) bool {
	var t *CapacityError
	return errors.As(target, &t)
}

// PanicError wraps a value recovered from a panicking continuation. The
// panic is isolated (remaining continuations still run) and reported
// through the owning context's diagnostic sink with a PanicError as the
// diagnostic's location payload.
type PanicError struct {
	// Value is the recovered panic value.
	Value any
}

// Error implements the error interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("hostexec: panic in continuation: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error
// type, enabling [errors.Is] and [errors.As] through the cause chain.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
