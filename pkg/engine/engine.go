// Package engine drives one tombstone generation end to end: build
// the report from captured state, write the optional binary form,
// then render the text form through the caller's line consumer. The
// engine runs synchronously inside whichever host invoked it (the
// crashing process's own signal handler, or a helper process that
// stopped the target externally) and assumes nothing about which.
package engine

import (
	"errors"
	"io"
	"time"

	"go.uber.org/multierr"

	"github.com/crashkit/tombstone/pkg/procmemory"
	"github.com/crashkit/tombstone/pkg/registers"
	"github.com/crashkit/tombstone/pkg/renderer"
	"github.com/crashkit/tombstone/pkg/reportbuilder"
	"github.com/crashkit/tombstone/pkg/safelog"
	"github.com/crashkit/tombstone/pkg/serializer"
	"github.com/crashkit/tombstone/pkg/tombstone"
	"github.com/crashkit/tombstone/pkg/unwinder"
)

// timestamp is swappable so tests can pin report time.
var timestamp = func() time.Time { return time.Now().UTC() }

// Diagnostic codes for the allocation-free crash log.
const (
	CodeUnwinderInit      = 1
	CodeThreadEnumeration = 2
	CodeBinaryWrite       = 3
	CodeBadInput          = 4
)

// Params carries one engraving's inputs. Threads and the memory
// snapshot are owned exclusively by the call for its duration.
type Params struct {
	// Threads maps tid to captured state; exactly one entry (the
	// crashing thread's) carries signal detail.
	Threads     map[int]tombstone.ThreadInfo
	CrashingTid int
	ProcessInfo tombstone.ProcessInfo

	// Memory must be one cached snapshot (procmemory.NewCached),
	// reused across every per-thread unwind so all backtraces reflect
	// the same instant.
	Memory procmemory.Memory

	// Unwinder is the external unwind engine bound to Memory.
	Unwinder unwinder.Unwinder

	// Build options passed through to the report builder.
	Arch          registers.Arch
	OpenFiles     tombstone.OpenFilesList
	GuestArch     registers.Arch
	GuestUnwinder unwinder.Unwinder

	// BinarySink receives the encoded report; nil skips binary output
	// entirely.
	BinarySink io.Writer

	// Emit consumes rendered text lines and decides their routing.
	Emit renderer.EmitFunc

	// Log is the crash-safe diagnostic logger. Required.
	Log *safelog.Logger
}

// Engrave builds, serializes and renders one tombstone. The returned
// error is non-nil only for the hard-fail conditions (bad input,
// unwinder initialization), in which case no output of either kind
// was produced. warnings aggregates the soft failures the call
// degraded through; the report is complete despite them.
func Engrave(p Params) (t *tombstone.Tombstone, warnings error, err error) {
	if p.Emit == nil || p.Log == nil {
		return nil, nil, errors.New("engine: Emit and Log are required")
	}

	t, err = reportbuilder.Build(p.Threads, p.CrashingTid, p.ProcessInfo, p.Memory, p.Unwinder, reportbuilder.Options{
		Arch:          p.Arch,
		Timestamp:     timestamp(),
		OpenFiles:     p.OpenFiles,
		GuestArch:     p.GuestArch,
		GuestUnwinder: p.GuestUnwinder,
	})
	if err != nil {
		var initErr *unwinder.InitError
		if errors.As(err, &initErr) {
			p.Log.ErrorInt(CodeUnwinderInit, "failed to init unwinder", int64(initErr.Code))
		} else {
			p.Log.ErrorStr(CodeBadInput, "cannot build tombstone", err.Error())
		}
		return nil, nil, err
	}

	if serr := serializer.Serialize(t, p.BinarySink); serr != nil {
		p.Log.ErrorStr(CodeBinaryWrite, "failed to write binary tombstone", serr.Error())
		warnings = multierr.Append(warnings, serr)
	}

	renderer.Render(t, p.Emit)
	return t, warnings, nil
}
