package hostexec

import "testing"

// newTestContext creates a context with a small deterministic worker
// pool and metrics enabled, closed when the test ends. Extra options
// are applied after (and may override) the defaults.
func newTestContext(t *testing.T, opts ...Option) *HostContext {
	t.Helper()
	h, err := New(append([]Option{WithParallelism(4), WithMetrics(true)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(h.Close)
	return h
}
