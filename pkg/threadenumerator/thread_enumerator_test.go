package threadenumerator

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashkit/tombstone/pkg/signalinfo"
	"github.com/crashkit/tombstone/pkg/tombstone"
)

// fakeProc builds a /proc-shaped tree with one process and its task
// listing.
func fakeProc(t *testing.T, pid int, tids map[int]string) procfs.FS {
	t.Helper()
	root := t.TempDir()

	taskDir := filepath.Join(root, strconv.Itoa(pid), "task")
	require.NoError(t, os.MkdirAll(taskDir, 0o755))

	for tid, name := range tids {
		require.NoError(t, os.MkdirAll(filepath.Join(taskDir, strconv.Itoa(tid)), 0o755))
		tidDir := filepath.Join(root, strconv.Itoa(tid))
		require.NoError(t, os.MkdirAll(tidDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(tidDir, "comm"), []byte(name+"\n"), 0o644))
	}

	fs, err := procfs.NewFS(root)
	require.NoError(t, err)
	return fs
}

func crashingThread(pid, tid int) tombstone.ThreadInfo {
	return tombstone.ThreadInfo{
		Tid:            tid,
		Pid:            pid,
		Uid:            1000,
		Name:           "crasher",
		CommandLine:    []string{"/bin/crasher", "--fast"},
		Siginfo:        &signalinfo.Siginfo{Signo: 11, Code: 1},
		TaggedAddrCtrl: tombstone.HardwareFeature{Supported: true, Value: 1},
	}
}

func TestEnumerateExcludesCrashingTid(t *testing.T) {
	fs := fakeProc(t, 100, map[int]string{100: "crasher", 101: "worker", 102: "logger"})
	e := NewEnumerator(fs)

	tids, err := e.Enumerate(100, 100)
	require.NoError(t, err)
	assert.Equal(t, []int{101, 102}, tids)
}

func TestEnumerateFailureIsNonFatal(t *testing.T) {
	root := t.TempDir()
	fs, err := procfs.NewFS(root)
	require.NoError(t, err)
	e := NewEnumerator(fs)

	tids, err := e.Enumerate(100, 100)
	require.Error(t, err)
	assert.Empty(t, tids)
}

func TestSynthesizeInheritsProcessFields(t *testing.T) {
	fs := fakeProc(t, 100, map[int]string{100: "crasher", 101: "worker"})
	e := NewEnumerator(fs)
	crashing := crashingThread(100, 100)

	threads := e.Synthesize(crashing, []int{101})
	require.Len(t, threads, 2)

	worker := threads[101]
	assert.Equal(t, 101, worker.Tid)
	assert.Equal(t, 100, worker.Pid)
	assert.Equal(t, 1000, worker.Uid)
	assert.Equal(t, "worker", worker.Name)
	assert.Equal(t, crashing.CommandLine, worker.CommandLine)
	assert.Equal(t, crashing.TaggedAddrCtrl, worker.TaggedAddrCtrl)

	// Only the crashing thread carries registers and signal detail.
	assert.Nil(t, worker.Registers)
	assert.Nil(t, worker.Siginfo)
	require.NotNil(t, threads[100].Siginfo)
}

func TestSynthesizeWithNoSiblings(t *testing.T) {
	fs := fakeProc(t, 100, map[int]string{100: "crasher"})
	e := NewEnumerator(fs)

	threads := e.Synthesize(crashingThread(100, 100), nil)
	require.Len(t, threads, 1)
	assert.Contains(t, threads, 100)
}

func TestSynthesizeDeduplicatesCrashingTid(t *testing.T) {
	fs := fakeProc(t, 100, map[int]string{100: "crasher", 101: "worker"})
	e := NewEnumerator(fs)

	// A tid listing that races and re-reports the crashing thread
	// must not produce a duplicate entry.
	threads := e.Synthesize(crashingThread(100, 100), []int{100, 101})
	require.Len(t, threads, 2)
	assert.Equal(t, "crasher", threads[100].Name)
}
