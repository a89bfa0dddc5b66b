// Package unwinder defines the boundary to the external stack-walking
// engine. The report builder consumes this contract; the walking
// algorithm itself lives behind it.
package unwinder

import (
	"fmt"

	"github.com/crashkit/tombstone/pkg/registers"
	"github.com/crashkit/tombstone/pkg/tombstone"
)

// Unwinder walks one thread's call stack from a register snapshot,
// producing ordered frames, outermost last. An Unwinder is bound to
// one address space via the Memory it was constructed over; the
// engine hands every instance the same cached snapshot so that all
// per-thread unwinds within a report reflect one instant.
type Unwinder interface {
	// Init prepares the unwinder. Failure here is the engine's one
	// hard-fail condition: the whole report is aborted before any
	// output is produced.
	Init() error

	// Unwind walks the stack rooted at regs. A failed walk returns an
	// error for that thread only; a partially walked stack returns
	// the frames recovered before the first unreadable page.
	Unwind(regs registers.Registers) ([]tombstone.Frame, error)
}

// InitError is an unwinder initialization failure, carrying a
// diagnostic code fit for the allocation-free crash log.
type InitError struct {
	Code int
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("unwinder init failed (code %d): %v", e.Code, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// SymbolResolver maps a program counter to a symbol name, empty when
// unresolved. Resolution quality is the external engine's concern.
type SymbolResolver interface {
	Resolve(pc uint64) string
}
