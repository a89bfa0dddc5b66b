package procmemory

import (
	"golang.org/x/sys/unix"
)

// processMemory reads a live process's address space with
// process_vm_readv. The syscall fails per iovec, which gives the
// per-page failure semantics the engine relies on.
type processMemory struct {
	pid int
}

// NewProcess returns a Memory over the address space of pid. The
// caller must have stopped the process or accept best-effort reads;
// crash-time use wraps this in NewCached so every thread's unwind
// sees one snapshot.
func NewProcess(pid int) Memory {
	return &processMemory{pid: pid}
}

func (m *processMemory) ReadAt(addr uint64, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	local := []unix.Iovec{{Base: &p[0], Len: uint64(len(p))}}
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(p)}}
	return unix.ProcessVMReadv(m.pid, local, remote, 0)
}
