// Package threadenumerator discovers the sibling threads of a
// crashing process from procfs and synthesizes their captured state
// from the crashing thread's.
package threadenumerator

import (
	"fmt"
	"sort"

	"github.com/prometheus/procfs"

	"github.com/crashkit/tombstone/pkg/tombstone"
)

// Enumerator lists the live threads of a process.
type Enumerator struct {
	fs procfs.FS
}

// NewEnumerator returns an Enumerator over the given procfs mount.
func NewEnumerator(fs procfs.FS) *Enumerator {
	return &Enumerator{fs: fs}
}

// Enumerate returns the tids of pid's threads, ascending, with
// crashingTid excluded since its state is already captured. A failure
// to read the task listing returns an empty result and the error; the
// caller downgrades to a single-thread report, it does not abort.
func (e *Enumerator) Enumerate(pid, crashingTid int) ([]int, error) {
	procs, err := e.fs.AllThreads(pid)
	if err != nil {
		return nil, fmt.Errorf("threadenumerator: reading tasks of pid %d: %w", pid, err)
	}
	tids := make([]int, 0, len(procs))
	for _, p := range procs {
		if p.PID == crashingTid {
			continue
		}
		tids = append(tids, p.PID)
	}
	sort.Ints(tids)
	return tids, nil
}

// Synthesize builds the tid -> ThreadInfo mapping for one report:
// the already-captured crashing thread plus one synthesized entry per
// sibling. Siblings inherit the process-level fields (pid, uid,
// command line, hardware attributes) from the crashing thread and get
// a freshly queried name; their registers stay nil because only an
// external attach could read them. Map keys are unique by
// construction, one entry per tid.
func (e *Enumerator) Synthesize(crashing tombstone.ThreadInfo, tids []int) map[int]tombstone.ThreadInfo {
	threads := make(map[int]tombstone.ThreadInfo, len(tids)+1)
	threads[crashing.Tid] = crashing

	for _, tid := range tids {
		if tid == crashing.Tid {
			continue
		}
		threads[tid] = tombstone.ThreadInfo{
			Tid:            tid,
			Pid:            crashing.Pid,
			Uid:            crashing.Uid,
			Name:           e.threadName(tid),
			CommandLine:    crashing.CommandLine,
			TaggedAddrCtrl: crashing.TaggedAddrCtrl,
			PacEnabledKeys: crashing.PacEnabledKeys,
		}
	}
	return threads
}

// threadName reads a thread's comm, empty on failure.
func (e *Enumerator) threadName(tid int) string {
	proc, err := e.fs.Proc(tid)
	if err != nil {
		return ""
	}
	comm, err := proc.Comm()
	if err != nil {
		return ""
	}
	return comm
}
