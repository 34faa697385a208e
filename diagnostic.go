package hostexec

import (
	"log"

	"github.com/joeycumines/logiface"
)

// Diagnostic is the error payload carried by Error-state async values
// and delivered to the diagnostic sink. It carries at minimum a message;
// Location is opaque to this package and is passed through untouched for
// the benefit of symbolic location decoding layers above.
type Diagnostic struct {
	// Location is opaque decoder state; may be nil.
	Location any
	// Message is the human-readable description.
	Message string
}

// Error implements the error interface, so a Diagnostic can flow through
// error-typed plumbing (logging, errors.Is chains) unchanged.
func (d *Diagnostic) Error() string {
	return d.Message
}

// DiagnosticSink receives diagnostics emitted through
// [HostContext.EmitError] and internal failure reports (e.g. isolated
// continuation panics). Sinks must be safe for concurrent use.
type DiagnosticSink func(*Diagnostic)

// newLoggerSink adapts a logiface logger into the default diagnostic
// sink. A nil logger still yields a usable sink (logiface loggers are
// nil-safe and simply discard).
func newLoggerSink(logger *logiface.Logger[logiface.Event]) DiagnosticSink {
	return func(d *Diagnostic) {
		if d == nil {
			return
		}
		logger.Err().
			Err(d).
			Str(`message`, d.Message).
			Log(`diagnostic emitted`)
	}
}

// reportUnownedPanic is the fallback report path for continuation panics
// on values that have no owning context (package-level constructors).
func reportUnownedPanic(r any) {
	log.Printf("WARNING: hostexec: isolated panic in continuation: %v", r)
}
