// Package signalinfo decodes the kernel-delivered signal detail
// record and gives signal and cause codes human-readable names for
// the tombstone text output.
package signalinfo

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// Siginfo is the typed view of the raw siginfo_t delivered with a
// fatal signal. FaultAddr is meaningful only for fault signals
// (SIGSEGV, SIGBUS, SIGILL, SIGFPE, SIGTRAP); SenderPid/SenderUid
// only for user-sent signals (Code <= 0).
type Siginfo struct {
	Signo     int    `cbor:"signo"`
	Code      int    `cbor:"code"`
	Errno     int    `cbor:"errno"`
	FaultAddr uint64 `cbor:"fault_addr,omitempty"`
	SenderPid int    `cbor:"sender_pid,omitempty"`
	SenderUid int    `cbor:"sender_uid,omitempty"`
}

// rawSize is the size of the kernel's siginfo_t.
const rawSize = 128

// Decode reconstructs a Siginfo from the raw siginfo_t bytes handed
// to a signal handler. The layout is the 64-bit Linux one: three
// int32 header fields, four bytes of padding, then the per-cause
// union.
func Decode(raw []byte) (*Siginfo, error) {
	if len(raw) < rawSize {
		return nil, fmt.Errorf("siginfo: raw record too short: %d bytes", len(raw))
	}
	si := &Siginfo{
		Signo: int(int32(binary.LittleEndian.Uint32(raw[0:]))),
		Errno: int(int32(binary.LittleEndian.Uint32(raw[4:]))),
		Code:  int(int32(binary.LittleEndian.Uint32(raw[8:]))),
	}
	if si.IsFaultSignal() {
		si.FaultAddr = binary.LittleEndian.Uint64(raw[16:])
	} else if si.Code <= 0 {
		si.SenderPid = int(int32(binary.LittleEndian.Uint32(raw[16:])))
		si.SenderUid = int(int32(binary.LittleEndian.Uint32(raw[20:])))
	}
	return si, nil
}

// IsFaultSignal reports whether the signal carries a faulting address
// rather than sender credentials.
func (si *Siginfo) IsFaultSignal() bool {
	if si.Code <= 0 {
		// Kernel-internal fault codes are positive; zero and below
		// mean the signal was sent by a process.
		return false
	}
	switch unix.Signal(si.Signo) {
	case unix.SIGSEGV, unix.SIGBUS, unix.SIGILL, unix.SIGFPE, unix.SIGTRAP:
		return true
	}
	return false
}

// SignalName returns the conventional name of the signal, or a
// numeric fallback for signals outside the named set.
func (si *Siginfo) SignalName() string {
	if name, ok := signalNames[si.Signo]; ok {
		return name
	}
	return fmt.Sprintf("SIG#%d", si.Signo)
}

// CodeName returns the conventional name of the si_code value for
// this signal, or a numeric fallback.
func (si *Siginfo) CodeName() string {
	if name, ok := genericCodeNames[si.Code]; ok && si.Code <= 0 {
		return name
	}
	if codes, ok := codeNames[si.Signo]; ok {
		if name, ok := codes[si.Code]; ok {
			return name
		}
	}
	return fmt.Sprintf("CODE#%d", si.Code)
}

var signalNames = map[int]string{
	int(unix.SIGHUP):    "SIGHUP",
	int(unix.SIGINT):    "SIGINT",
	int(unix.SIGQUIT):   "SIGQUIT",
	int(unix.SIGILL):    "SIGILL",
	int(unix.SIGTRAP):   "SIGTRAP",
	int(unix.SIGABRT):   "SIGABRT",
	int(unix.SIGBUS):    "SIGBUS",
	int(unix.SIGFPE):    "SIGFPE",
	int(unix.SIGKILL):   "SIGKILL",
	int(unix.SIGSEGV):   "SIGSEGV",
	int(unix.SIGPIPE):   "SIGPIPE",
	int(unix.SIGALRM):   "SIGALRM",
	int(unix.SIGTERM):   "SIGTERM",
	int(unix.SIGSTKFLT): "SIGSTKFLT",
	int(unix.SIGSYS):    "SIGSYS",
}

// Negative and zero si_code values shared by every signal.
var genericCodeNames = map[int]string{
	0:  "SI_USER",
	-1: "SI_QUEUE",
	-2: "SI_TIMER",
	-3: "SI_MESGQ",
	-4: "SI_ASYNCIO",
	-5: "SI_SIGIO",
	-6: "SI_TKILL",
}

var codeNames = map[int]map[int]string{
	int(unix.SIGSEGV): {
		1: "SEGV_MAPERR",
		2: "SEGV_ACCERR",
		3: "SEGV_BNDERR",
		4: "SEGV_PKUERR",
		8: "SEGV_MTEAERR",
		9: "SEGV_MTESERR",
	},
	int(unix.SIGBUS): {
		1: "BUS_ADRALN",
		2: "BUS_ADRERR",
		3: "BUS_OBJERR",
		4: "BUS_MCEERR_AR",
		5: "BUS_MCEERR_AO",
	},
	int(unix.SIGILL): {
		1: "ILL_ILLOPC",
		2: "ILL_ILLOPN",
		3: "ILL_ILLADR",
		4: "ILL_ILLTRP",
		5: "ILL_PRVOPC",
		6: "ILL_PRVREG",
		7: "ILL_COPROC",
		8: "ILL_BADSTK",
	},
	int(unix.SIGFPE): {
		1: "FPE_INTDIV",
		2: "FPE_INTOVF",
		3: "FPE_FLTDIV",
		4: "FPE_FLTOVF",
		5: "FPE_FLTUND",
		6: "FPE_FLTRES",
		7: "FPE_FLTINV",
		8: "FPE_FLTSUB",
	},
	int(unix.SIGTRAP): {
		1: "TRAP_BRKPT",
		2: "TRAP_TRACE",
		3: "TRAP_BRANCH",
		4: "TRAP_HWBKPT",
	},
	int(unix.SIGSYS): {
		1: "SYS_SECCOMP",
	},
}
