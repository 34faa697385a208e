// Package hostexec provides the per-process substrate an asynchronous
// dataflow runtime schedules work on: a set-once async value primitive
// with continuation chaining and an indirect/forwarding variant, a work
// queue facade with non-blocking and blocking submission plus
// quiescence, a recursive-bisection parallel-for, and a registry of
// lazily constructed, type-indexed shared singletons.
//
// The central type is [HostContext], created via [New]. Kernels and
// operators receive it as an ambient collaborator: allocations route
// through its [Allocator], submitted work enters its [WorkQueue],
// futures ([AsyncValue]) are produced, awaited, and completed against
// it, and context-wide cooperative cancellation is exposed through
// [HostContext.Cancel] and [HostContext.CancelValue].
//
// Continuations attached to an already-resolved value run synchronously
// on the calling thread; everything else is non-blocking except
// [HostContext.Await] and [HostContext.Quiesce]. The package owns no
// goroutines beyond the work queue's.
package hostexec
