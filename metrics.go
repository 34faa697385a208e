package hostexec

import "sync/atomic"

// Metrics collects counters for a host context and its work queue.
// All methods are nil-safe: a disabled context passes a nil *Metrics
// around and every recording call is a no-op, keeping hot paths free
// of branches on a config struct.
type Metrics struct {
	submitted        atomic.Int64
	completed        atomic.Int64
	blockingAccepted atomic.Int64
	blockingRejected atomic.Int64
	waiterPanics     atomic.Int64
	futuresLive      atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	// Submitted counts tasks accepted by the queue (both pools).
	Submitted int64
	// Completed counts tasks that finished running.
	Completed int64
	// Inflight is Submitted - Completed: queued plus running tasks.
	Inflight int64
	// BlockingAccepted counts accepted blocking submissions.
	BlockingAccepted int64
	// BlockingRejected counts rejected blocking submissions.
	BlockingRejected int64
	// WaiterPanics counts isolated panics: continuation panics on
	// context-owned values and task panics on the internally owned
	// queue.
	WaiterPanics int64
	// FuturesLive is the number of context-owned async values not yet
	// fully released.
	FuturesLive int64
}

// Snapshot returns a consistent-enough point-in-time copy. Counters are
// read individually; cross-counter skew is bounded by in-flight
// activity.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	sub := m.submitted.Load()
	done := m.completed.Load()
	return MetricsSnapshot{
		Submitted:        sub,
		Completed:        done,
		Inflight:         sub - done,
		BlockingAccepted: m.blockingAccepted.Load(),
		BlockingRejected: m.blockingRejected.Load(),
		WaiterPanics:     m.waiterPanics.Load(),
		FuturesLive:      m.futuresLive.Load(),
	}
}

func (m *Metrics) noteSubmitted() {
	if m != nil {
		m.submitted.Add(1)
	}
}

func (m *Metrics) noteCompleted() {
	if m != nil {
		m.completed.Add(1)
	}
}

func (m *Metrics) noteBlocking(accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.blockingAccepted.Add(1)
	} else {
		m.blockingRejected.Add(1)
	}
}

func (m *Metrics) noteWaiterPanic() {
	if m != nil {
		m.waiterPanics.Add(1)
	}
}

func (m *Metrics) noteFuture(delta int64) {
	if m != nil {
		m.futuresLive.Add(delta)
	}
}
