package tombstone

import (
	"time"

	"github.com/crashkit/tombstone/pkg/registers"
	"github.com/crashkit/tombstone/pkg/signalinfo"
)

// HardwareFeature is an architecture-specific per-thread security
// attribute (e.g. tagged address control or PAC enabled keys on
// arm64). The zero value means the feature is unsupported on the
// running kernel/architecture, which is a normal state, not an error.
type HardwareFeature struct {
	Supported bool   `cbor:"supported"`
	Value     uint64 `cbor:"value"`
}

// ThreadInfo is the captured state of one thread of the crashing
// process. Entries are created once during capture/enumeration and
// never mutated afterwards; the builder only reads them.
type ThreadInfo struct {
	Tid          int
	Pid          int
	Uid          int
	Name         string
	CommandLine  []string
	SELinuxLabel string

	// Registers is nil for threads whose register state could not be
	// captured live (only the crashing thread's registers are readable
	// from inside a signal handler).
	Registers registers.Registers

	// Siginfo is non-nil only for the crashing thread.
	Siginfo *signalinfo.Siginfo

	TaggedAddrCtrl HardwareFeature
	PacEnabledKeys HardwareFeature
}

// ProcessInfo carries process-level metadata that is not derivable
// from any single thread.
type ProcessInfo struct {
	// AbortMsgAddress is the address of the abort message inside the
	// crashed process. Zero means no abort message; this is the one
	// zero-sentinel in the wire format, kept for compatibility with
	// existing tombstone consumers.
	AbortMsgAddress uint64 `cbor:"abort_msg_address"`
}

// OpenFile is one (descriptor, description) pair from the crashed
// process's fd table.
type OpenFile struct {
	Fd   int    `cbor:"fd"`
	Path string `cbor:"path"`
}

// OpenFilesList is the ordered fd snapshot of the crashed process.
// A nil list means the snapshot was not collected, which is distinct
// from an empty list (no files open).
type OpenFilesList []OpenFile

// Frame is one entry of a resolved backtrace, outermost frame last.
type Frame struct {
	Num    int    `cbor:"num"`
	PC     uint64 `cbor:"pc"`
	Symbol string `cbor:"symbol,omitempty"`
}

// RegisterValue is one named register flattened out of a live
// register snapshot for serialization and rendering.
type RegisterValue struct {
	Name  string `cbor:"name"`
	Value uint64 `cbor:"value"`
}

// AbortMessageStatus tells a consumer whether the abort message was
// present and, if present, whether the memory read succeeded.
type AbortMessageStatus string

const (
	AbortMessageAbsent     AbortMessageStatus = "absent"
	AbortMessageResolved   AbortMessageStatus = "resolved"
	AbortMessageUnreadable AbortMessageStatus = "unreadable"
)

// AbortMessage is the abort message recovered (by address, not
// content) from the crashed process's memory.
type AbortMessage struct {
	Status AbortMessageStatus `cbor:"status"`
	Text   string             `cbor:"text,omitempty"`
}

// ThreadRecord is one thread of the finished report: the captured
// thread state flattened to plain data, plus its unwind result.
type ThreadRecord struct {
	Tid          int      `cbor:"tid"`
	Pid          int      `cbor:"pid"`
	Uid          int      `cbor:"uid"`
	Name         string   `cbor:"name"`
	CommandLine  []string `cbor:"command_line,omitempty"`
	SELinuxLabel string   `cbor:"selinux_label,omitempty"`

	Siginfo *signalinfo.Siginfo `cbor:"siginfo,omitempty"`

	TaggedAddrCtrl HardwareFeature `cbor:"tagged_addr_ctrl"`
	PacEnabledKeys HardwareFeature `cbor:"pac_enabled_keys"`

	// Registers holds the flattened register snapshot, nil when the
	// thread's registers were not captured live.
	Registers []RegisterValue `cbor:"registers,omitempty"`

	// Frames is the thread's backtrace, empty when the unwind failed.
	Frames []Frame `cbor:"frames,omitempty"`

	// GuestFrames is populated only in dual-architecture reports.
	GuestFrames []Frame `cbor:"guest_frames,omitempty"`

	// BacktraceNote is non-empty when Frames is empty because the
	// unwind failed or was not attempted for this thread.
	BacktraceNote string `cbor:"backtrace_note,omitempty"`
}

// Tombstone is the finished crash report. It is immutable once built
// and owns all of its sub-entities; neither output stage retains a
// reference into it past its call.
type Tombstone struct {
	Timestamp time.Time `cbor:"timestamp"`

	Pid          int      `cbor:"pid"`
	Uid          int      `cbor:"uid"`
	CrashedTid   int      `cbor:"crashed_tid"`
	ProcessName  string   `cbor:"process_name"`
	CommandLine  []string `cbor:"command_line,omitempty"`
	SELinuxLabel string   `cbor:"selinux_label,omitempty"`

	Arch      registers.Arch `cbor:"arch"`
	GuestArch registers.Arch `cbor:"guest_arch,omitempty"`

	Signal       signalinfo.Siginfo `cbor:"signal"`
	AbortMessage AbortMessage       `cbor:"abort_message"`

	// Threads is ordered by ascending tid so identical inputs always
	// serialize and render identically.
	Threads []ThreadRecord `cbor:"threads"`

	OpenFiles OpenFilesList `cbor:"open_files,omitempty"`
}

// CrashedThread returns the record of the thread that took the fatal
// signal, or nil if the report is malformed.
func (t *Tombstone) CrashedThread() *ThreadRecord {
	for i := range t.Threads {
		if t.Threads[i].Tid == t.CrashedTid {
			return &t.Threads[i]
		}
	}
	return nil
}
