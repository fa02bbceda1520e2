package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError carries a value recovered from a panic in a scheduled job
type PanicError struct {
	Value      interface{}
	Stacktrace string
}

// NewPanicError captures the current goroutine's stack. Call it from the
// deferred function that called recover().
func NewPanicError(value interface{}) *PanicError {
	return &PanicError{
		Value:      value,
		Stacktrace: string(debug.Stack()),
	}
}

// Error implements the error interface
func (p *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", p.Value)
}

// Report formats the panic with its stack for a single log field
func (p *PanicError) Report() string {
	return fmt.Sprintf("PANIC: %v\n\nStack Trace:\n%s", p.Value, p.Stacktrace)
}
