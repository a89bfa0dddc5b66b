// Package renderer turns a finished tombstone into its text form.
// Rendering is a pure function of the report: deterministic, no I/O,
// and by construction unable to fail, since it only formats data the
// builder already validated. Absent optional fields render as an
// explicit marker so their absence is auditable in the output.
package renderer

import (
	"fmt"
	"strings"
	"time"

	"github.com/crashkit/tombstone/pkg/registers"
	"github.com/crashkit/tombstone/pkg/signalinfo"
	"github.com/crashkit/tombstone/pkg/tombstone"
)

// Unavailable is the marker rendered for any optional field that was
// not captured.
const Unavailable = "unavailable"

const (
	headerSeparator = "*** *** *** *** *** *** *** *** *** *** *** *** *** *** *** ***"
	threadSeparator = "--- --- --- --- --- --- --- --- --- --- --- --- --- --- --- ---"
)

// EmitFunc consumes one rendered line. header is true for lines of
// the always-persisted structured header section; the persistence
// policy for body lines is the caller's decision.
type EmitFunc func(line string, header bool)

// Render walks the report once, emitting each line exactly once in a
// fixed order. The sequence is finite and not restartable; call
// Render again for a second pass.
func Render(t *tombstone.Tombstone, emit EmitFunc) {
	renderHeader(t, emit)

	for i := range t.Threads {
		rec := &t.Threads[i]
		if rec.Tid == t.CrashedTid {
			continue
		}
		emit(threadSeparator, false)
		renderThread(rec, t.GuestArch, func(line string) { emit(line, false) })
	}

	renderOpenFiles(t.OpenFiles, emit)
}

func renderHeader(t *tombstone.Tombstone, emit EmitFunc) {
	emit(headerSeparator, true)
	emit("Timestamp: "+formatTimestamp(t.Timestamp), true)

	name := t.ProcessName
	if name == "" {
		name = Unavailable
	}
	cmdline := Unavailable
	if len(t.CommandLine) > 0 {
		cmdline = strings.Join(t.CommandLine, " ")
	}
	emit(fmt.Sprintf("pid: %d, tid: %d, name: %s  >>> %s <<<", t.Pid, t.CrashedTid, name, cmdline), true)
	emit(fmt.Sprintf("uid: %d", t.Uid), true)

	label := t.SELinuxLabel
	if label == "" {
		label = Unavailable
	}
	emit("selinux label: "+label, true)

	arch := string(t.Arch)
	if arch == "" {
		arch = Unavailable
	}
	emit("architecture: "+arch, true)
	if t.GuestArch != "" {
		emit("guest architecture: "+string(t.GuestArch), true)
	}

	si := t.Signal
	emit(fmt.Sprintf("signal %d (%s), code %d (%s), %s",
		si.Signo, si.SignalName(), si.Code, si.CodeName(), formatCause(&si)), true)

	emit("Abort message: "+formatAbortMessage(t.AbortMessage), true)

	if crashed := t.CrashedThread(); crashed != nil {
		renderThread(crashed, t.GuestArch, func(line string) { emit(line, true) })
	}
}

func renderThread(rec *tombstone.ThreadRecord, guestArch registers.Arch, emit func(string)) {
	name := rec.Name
	if name == "" {
		name = Unavailable
	}
	emit(fmt.Sprintf("tid: %d, name: %s", rec.Tid, name))

	emit("tagged_addr_ctrl: " + formatFeature(rec.TaggedAddrCtrl))
	emit("pac_enabled_keys: " + formatFeature(rec.PacEnabledKeys))

	renderRegisters(rec.Registers, emit)

	if rec.BacktraceNote != "" {
		emit(rec.BacktraceNote)
	} else {
		emit("backtrace:")
		renderFrames(rec.Frames, emit)
	}

	if len(rec.GuestFrames) > 0 {
		emit(fmt.Sprintf("guest backtrace (%s):", guestArch))
		renderFrames(rec.GuestFrames, emit)
	}
}

func renderRegisters(regs []tombstone.RegisterValue, emit func(string)) {
	if len(regs) == 0 {
		emit("registers: " + Unavailable)
		return
	}
	var b strings.Builder
	for i, r := range regs {
		fmt.Fprintf(&b, "  %-3s %016x", r.Name, r.Value)
		if (i+1)%4 == 0 {
			emit(b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		emit(b.String())
	}
}

func renderFrames(frames []tombstone.Frame, emit func(string)) {
	for _, f := range frames {
		symbol := f.Symbol
		if symbol == "" {
			symbol = "<unknown>"
		}
		emit(fmt.Sprintf("      #%02d pc %016x  %s", f.Num, f.PC, symbol))
	}
}

func renderOpenFiles(files tombstone.OpenFilesList, emit EmitFunc) {
	if files == nil {
		emit("open files: not collected", false)
		return
	}
	emit("open files:", false)
	for _, f := range files {
		path := f.Path
		if path == "" {
			path = Unavailable
		}
		emit(fmt.Sprintf("  fd %d: %s", f.Fd, path), false)
	}
}

func formatFeature(f tombstone.HardwareFeature) string {
	if !f.Supported {
		return Unavailable
	}
	return fmt.Sprintf("%016x", f.Value)
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return Unavailable
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func formatCause(si *signalinfo.Siginfo) string {
	if si.IsFaultSignal() {
		return fmt.Sprintf("fault addr 0x%x", si.FaultAddr)
	}
	if si.Code <= 0 {
		return fmt.Sprintf("from pid %d, uid %d", si.SenderPid, si.SenderUid)
	}
	return "fault addr --------"
}

func formatAbortMessage(msg tombstone.AbortMessage) string {
	switch msg.Status {
	case tombstone.AbortMessageResolved:
		return fmt.Sprintf("%q", msg.Text)
	case tombstone.AbortMessageUnreadable:
		return string(tombstone.AbortMessageUnreadable)
	default:
		return string(tombstone.AbortMessageAbsent)
	}
}
