package engine

import (
	"io"
	"os"

	"github.com/prometheus/procfs"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/crashkit/tombstone/pkg/crashcontext"
	"github.com/crashkit/tombstone/pkg/procmemory"
	"github.com/crashkit/tombstone/pkg/registers"
	"github.com/crashkit/tombstone/pkg/renderer"
	"github.com/crashkit/tombstone/pkg/safelog"
	"github.com/crashkit/tombstone/pkg/signalinfo"
	"github.com/crashkit/tombstone/pkg/threadenumerator"
	"github.com/crashkit/tombstone/pkg/tombstone"
	"github.com/crashkit/tombstone/pkg/unwinder"
)

// LocalHost captures and engraves from inside the crashing process
// itself. Sibling threads may still be schedulable while it reads
// their names; the snapshot is best-effort by design, the accepted
// tradeoff at crash time.
type LocalHost struct {
	procRoot string
	fs       procfs.FS
	capturer *crashcontext.Capturer
	enum     *threadenumerator.Enumerator
	log      *safelog.Logger

	// newUnwinder builds the unwind engine over the cached snapshot.
	// Swappable so hosts with a full unwind stack can plug theirs in.
	newUnwinder func(mem procmemory.Memory) unwinder.Unwinder
}

// NewLocalHost prepares a LocalHost. The returned host performs no
// reads until EngraveLocal; construction happens before any crash so
// the crash path itself opens as little as possible.
func NewLocalHost(procRoot string, log *safelog.Logger) (*LocalHost, error) {
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, err
	}
	files := afero.NewOsFs()
	return &LocalHost{
		procRoot: procRoot,
		fs:       fs,
		capturer: crashcontext.NewCapturer(fs, files, procRoot),
		enum:     threadenumerator.NewEnumerator(fs),
		log:      log,
		newUnwinder: func(mem procmemory.Memory) unwinder.Unwinder {
			return unwinder.NewFramePointer(mem, nil)
		},
	}, nil
}

// EngraveLocal generates the tombstone for this process: capture the
// crashing thread from the raw signal context, enumerate and
// synthesize the siblings, take one cached memory snapshot, then
// engrave. A thread-enumeration failure downgrades to a single-thread
// report and is surfaced in warnings, not as a failure.
func (h *LocalHost) EngraveLocal(tid int, rawSiginfo, rawContext []byte, abortMsgAddress uint64, binarySink io.Writer, emit renderer.EmitFunc) (*tombstone.Tombstone, error, error) {
	pid := os.Getpid()
	arch := registers.CurrentArch()

	si, err := signalinfo.Decode(rawSiginfo)
	if err != nil {
		h.log.ErrorStr(CodeBadInput, "cannot decode siginfo", err.Error())
		return nil, nil, err
	}

	crashing := h.capturer.Capture(pid, tid, si, arch, rawContext)

	var warnings error
	tids, err := h.enum.Enumerate(pid, tid)
	if err != nil {
		h.log.ErrorInt(CodeThreadEnumeration, "failed to read threads of pid", int64(pid))
		warnings = err
	}
	threads := h.enum.Synthesize(crashing, tids)

	mem := procmemory.NewCached(procmemory.NewProcess(pid))

	t, engraveWarnings, err := Engrave(Params{
		Threads:     threads,
		CrashingTid: tid,
		ProcessInfo: tombstone.ProcessInfo{AbortMsgAddress: abortMsgAddress},
		Memory:      mem,
		Unwinder:    h.newUnwinder(mem),
		Arch:        arch,
		BinarySink:  binarySink,
		Emit:        emit,
		Log:         h.log,
	})
	if engraveWarnings != nil {
		warnings = multierr.Append(warnings, engraveWarnings)
	}
	return t, warnings, err
}
