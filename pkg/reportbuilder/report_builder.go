// Package reportbuilder aggregates captured thread state, process
// metadata and per-thread unwind results into one immutable
// tombstone. Aside from the unwinder boundary it touches no live
// process state.
package reportbuilder

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/crashkit/tombstone/pkg/procmemory"
	"github.com/crashkit/tombstone/pkg/registers"
	"github.com/crashkit/tombstone/pkg/tombstone"
	"github.com/crashkit/tombstone/pkg/unwinder"
)

// Notes recorded on threads whose backtrace could not be produced.
const (
	NoteUnwindFailed    = "backtrace unavailable"
	NoteNoRegisterState = "no backtrace available (no register snapshot)"
)

// maxAbortMessage bounds the abort-message read out of a possibly
// corrupted address space.
const maxAbortMessage = 1024

// Options carries the optional inputs of one build.
type Options struct {
	// Arch is the primary instruction-set tag, used when the crashing
	// thread carries no register snapshot to name it from.
	Arch registers.Arch

	// Timestamp is recorded verbatim; the builder never reads a clock
	// so identical inputs build identical reports.
	Timestamp time.Time

	// OpenFiles is the fd snapshot, nil when not collected.
	OpenFiles tombstone.OpenFilesList

	// GuestArch and GuestUnwinder enable dual-architecture reports
	// for processes running translated code. Frames produced by the
	// guest unwinder are kept separate from the primary ones.
	GuestArch     registers.Arch
	GuestUnwinder unwinder.Unwinder
}

// Build produces the tombstone for one crash. threads maps tid to
// captured state and must contain crashingTid; the builder owns the
// mapping for the duration of the call and only reads it. The one
// hard failure is unwinder initialization; everything else degrades
// per field or per thread.
func Build(threads map[int]tombstone.ThreadInfo, crashingTid int, procInfo tombstone.ProcessInfo, mem procmemory.Memory, unw unwinder.Unwinder, opts Options) (*tombstone.Tombstone, error) {
	crashing, ok := threads[crashingTid]
	if !ok {
		return nil, fmt.Errorf("reportbuilder: crashing tid %d not in thread map", crashingTid)
	}
	if crashing.Siginfo == nil {
		return nil, fmt.Errorf("reportbuilder: crashing tid %d has no signal detail", crashingTid)
	}

	if err := unw.Init(); err != nil {
		return nil, err
	}
	if opts.GuestUnwinder != nil {
		if err := opts.GuestUnwinder.Init(); err != nil {
			return nil, err
		}
	}

	t := &tombstone.Tombstone{
		Timestamp:    opts.Timestamp,
		Pid:          crashing.Pid,
		Uid:          crashing.Uid,
		CrashedTid:   crashingTid,
		ProcessName:  crashing.Name,
		CommandLine:  crashing.CommandLine,
		SELinuxLabel: crashing.SELinuxLabel,
		Arch:         opts.Arch,
		GuestArch:    opts.GuestArch,
		Signal:       *crashing.Siginfo,
		AbortMessage: readAbortMessage(mem, procInfo.AbortMsgAddress),
		OpenFiles:    opts.OpenFiles,
	}
	if crashing.Registers != nil {
		t.Arch = crashing.Registers.Arch()
	}

	tids := make([]int, 0, len(threads))
	for tid := range threads {
		tids = append(tids, tid)
	}
	sort.Ints(tids)

	t.Threads = make([]tombstone.ThreadRecord, 0, len(tids))
	for _, tid := range tids {
		t.Threads = append(t.Threads, buildThread(threads[tid], unw, opts.GuestUnwinder))
	}
	return t, nil
}

// buildThread flattens one thread's state and attempts its unwind. A
// failed unwind empties that thread's backtrace and annotates it; it
// never fails the report.
func buildThread(info tombstone.ThreadInfo, unw, guest unwinder.Unwinder) tombstone.ThreadRecord {
	rec := tombstone.ThreadRecord{
		Tid:            info.Tid,
		Pid:            info.Pid,
		Uid:            info.Uid,
		Name:           info.Name,
		CommandLine:    info.CommandLine,
		SELinuxLabel:   info.SELinuxLabel,
		Siginfo:        info.Siginfo,
		TaggedAddrCtrl: info.TaggedAddrCtrl,
		PacEnabledKeys: info.PacEnabledKeys,
	}

	if info.Registers == nil {
		rec.BacktraceNote = NoteNoRegisterState
		return rec
	}

	info.Registers.Each(func(name string, value uint64) {
		rec.Registers = append(rec.Registers, tombstone.RegisterValue{Name: name, Value: value})
	})

	frames, err := unw.Unwind(info.Registers)
	if err != nil || len(frames) == 0 {
		rec.BacktraceNote = NoteUnwindFailed
	} else {
		rec.Frames = frames
	}

	if guest != nil {
		if guestFrames, err := guest.Unwind(info.Registers); err == nil && len(guestFrames) > 0 {
			rec.GuestFrames = guestFrames
		}
	}
	return rec
}

// readAbortMessage recovers the abort message by address. The in-band
// layout is a 64-bit byte length followed by the message text. A zero
// address is the documented "no message" sentinel; a failed or
// implausible read is reported as unreadable, never dropped.
func readAbortMessage(mem procmemory.Memory, addr uint64) tombstone.AbortMessage {
	if addr == 0 {
		return tombstone.AbortMessage{Status: tombstone.AbortMessageAbsent}
	}
	if mem == nil {
		return tombstone.AbortMessage{Status: tombstone.AbortMessageUnreadable}
	}

	var hdr [8]byte
	if n, _ := mem.ReadAt(addr, hdr[:]); n < len(hdr) {
		return tombstone.AbortMessage{Status: tombstone.AbortMessageUnreadable}
	}
	size := binary.LittleEndian.Uint64(hdr[:])
	if size == 0 || size > maxAbortMessage {
		return tombstone.AbortMessage{Status: tombstone.AbortMessageUnreadable}
	}

	buf := make([]byte, size)
	if n, _ := mem.ReadAt(addr+8, buf); n < len(buf) {
		return tombstone.AbortMessage{Status: tombstone.AbortMessageUnreadable}
	}
	for len(buf) > 0 && buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return tombstone.AbortMessage{Status: tombstone.AbortMessageResolved, Text: string(buf)}
}
