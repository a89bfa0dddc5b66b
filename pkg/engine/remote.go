package engine

import (
	"io"

	"github.com/prometheus/procfs"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/crashkit/tombstone/pkg/crashcontext"
	"github.com/crashkit/tombstone/pkg/openfileslist"
	"github.com/crashkit/tombstone/pkg/procmemory"
	"github.com/crashkit/tombstone/pkg/registers"
	"github.com/crashkit/tombstone/pkg/renderer"
	"github.com/crashkit/tombstone/pkg/safelog"
	"github.com/crashkit/tombstone/pkg/signalinfo"
	"github.com/crashkit/tombstone/pkg/threadenumerator"
	"github.com/crashkit/tombstone/pkg/tombstone"
	"github.com/crashkit/tombstone/pkg/unwinder"
)

// RemoteHost engraves on behalf of a different process whose threads
// an external collaborator (the attach mechanism is out of this
// engine's hands) has already stopped. Hardware security attributes
// are not probeable across processes and stay unsupported.
type RemoteHost struct {
	// CollectOpenFiles snapshots the target's fd table into the
	// report. On by default; a failed collection always degrades to
	// "not collected".
	CollectOpenFiles bool

	fs       procfs.FS
	capturer *crashcontext.Capturer
	enum     *threadenumerator.Enumerator
	log      *safelog.Logger

	newUnwinder func(mem procmemory.Memory) unwinder.Unwinder
}

// NewRemoteHost prepares a RemoteHost over the given procfs mount.
func NewRemoteHost(procRoot string, log *safelog.Logger) (*RemoteHost, error) {
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, err
	}
	capturer := crashcontext.NewCapturer(fs, afero.NewOsFs(), procRoot).WithHardwareProbe(nil)
	return &RemoteHost{
		CollectOpenFiles: true,
		fs:               fs,
		capturer:         capturer,
		enum:             threadenumerator.NewEnumerator(fs),
		log:              log,
		newUnwinder: func(mem procmemory.Memory) unwinder.Unwinder {
			return unwinder.NewFramePointer(mem, nil)
		},
	}, nil
}

// Engrave generates the target's tombstone from an already-decoded
// signal record and its raw machine context. Open files are collected
// here since the target is stopped and its fd table stable; a failed
// collection degrades to "not collected".
func (h *RemoteHost) Engrave(pid, tid int, si *signalinfo.Siginfo, arch registers.Arch, rawContext []byte, abortMsgAddress uint64, binarySink io.Writer, emit renderer.EmitFunc) (*tombstone.Tombstone, error, error) {
	crashing := h.capturer.Capture(pid, tid, si, arch, rawContext)

	var warnings error
	tids, err := h.enum.Enumerate(pid, tid)
	if err != nil {
		h.log.ErrorInt(CodeThreadEnumeration, "failed to read threads of pid", int64(pid))
		warnings = err
	}
	threads := h.enum.Synthesize(crashing, tids)

	var openFiles tombstone.OpenFilesList
	if h.CollectOpenFiles {
		openFiles, err = openfileslist.Collect(h.fs, pid)
		if err != nil {
			warnings = multierr.Append(warnings, err)
			openFiles = nil
		}
	}

	mem := procmemory.NewCached(procmemory.NewProcess(pid))

	t, engraveWarnings, err := Engrave(Params{
		Threads:     threads,
		CrashingTid: tid,
		ProcessInfo: tombstone.ProcessInfo{AbortMsgAddress: abortMsgAddress},
		Memory:      mem,
		Unwinder:    h.newUnwinder(mem),
		Arch:        arch,
		OpenFiles:   openFiles,
		BinarySink:  binarySink,
		Emit:        emit,
		Log:         h.log,
	})
	if engraveWarnings != nil {
		warnings = multierr.Append(warnings, engraveWarnings)
	}
	return t, warnings, err
}
