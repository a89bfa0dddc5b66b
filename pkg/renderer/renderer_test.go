package renderer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashkit/tombstone/pkg/registers"
	"github.com/crashkit/tombstone/pkg/signalinfo"
	"github.com/crashkit/tombstone/pkg/tombstone"
)

func segvTombstone() *tombstone.Tombstone {
	return &tombstone.Tombstone{
		Timestamp:    time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		Pid:          100,
		Uid:          1000,
		CrashedTid:   100,
		ProcessName:  "crasher",
		CommandLine:  []string{"/bin/crasher", "--fast"},
		SELinuxLabel: "u:r:untrusted_app:s0",
		Arch:         registers.ArchX86_64,
		Signal:       signalinfo.Siginfo{Signo: 11, Code: 1, FaultAddr: 0xdeadbeef},
		AbortMessage: tombstone.AbortMessage{Status: tombstone.AbortMessageAbsent},
		Threads: []tombstone.ThreadRecord{
			{
				Tid:  100,
				Name: "crasher",
				Registers: []tombstone.RegisterValue{
					{Name: "rip", Value: 0x400100},
					{Name: "rsp", Value: 0x7ffe00},
				},
				Siginfo: &signalinfo.Siginfo{Signo: 11, Code: 1, FaultAddr: 0xdeadbeef},
				Frames: []tombstone.Frame{
					{Num: 0, PC: 0x400100, Symbol: "abort"},
					{Num: 1, PC: 0x400200},
				},
			},
			{
				Tid:           101,
				Name:          "worker",
				BacktraceNote: "no backtrace available (no register snapshot)",
			},
		},
	}
}

type renderedLine struct {
	text   string
	header bool
}

func renderAll(t *tombstone.Tombstone) []renderedLine {
	var lines []renderedLine
	Render(t, func(line string, header bool) {
		lines = append(lines, renderedLine{text: line, header: header})
	})
	return lines
}

func fullText(lines []renderedLine) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.text)
		b.WriteByte('\n')
	}
	return b.String()
}

func TestRenderIsDeterministic(t *testing.T) {
	ts := segvTombstone()
	assert.Equal(t, fullText(renderAll(ts)), fullText(renderAll(ts)))
}

func TestRenderEndToEndContent(t *testing.T) {
	lines := renderAll(segvTombstone())
	text := fullText(lines)

	// Header names the process and the signal.
	assert.Contains(t, text, "pid: 100, tid: 100, name: crasher  >>> /bin/crasher --fast <<<")
	assert.Contains(t, text, "signal 11 (SIGSEGV), code 1 (SEGV_MAPERR), fault addr 0xdeadbeef")

	// Full backtrace for the crashing thread.
	assert.Contains(t, text, "backtrace:")
	assert.Contains(t, text, "#00 pc 0000000000400100  abort")
	assert.Contains(t, text, "#01 pc 0000000000400200  <unknown>")

	// The register-less sibling is explicitly marked.
	assert.Contains(t, text, "tid: 101, name: worker")
	assert.Contains(t, text, "no backtrace available")
}

func TestRenderHeaderFlagPartitionsSections(t *testing.T) {
	lines := renderAll(segvTombstone())

	var sawHeader, sawBody bool
	inBody := false
	for _, l := range lines {
		if l.header {
			sawHeader = true
			// Header lines never follow body lines: the sections are
			// contiguous.
			assert.False(t, inBody, "header line %q after body began", l.text)
		} else {
			sawBody = true
			inBody = true
		}
	}
	assert.True(t, sawHeader)
	assert.True(t, sawBody)

	// The crashing thread's backtrace belongs to the header section.
	for _, l := range lines {
		if strings.Contains(l.text, "#00 pc") {
			assert.True(t, l.header)
		}
	}
}

func TestRenderAbortMessageStates(t *testing.T) {
	ts := segvTombstone()

	ts.AbortMessage = tombstone.AbortMessage{Status: tombstone.AbortMessageAbsent}
	assert.Contains(t, fullText(renderAll(ts)), "Abort message: absent")

	ts.AbortMessage = tombstone.AbortMessage{Status: tombstone.AbortMessageResolved, Text: "assert failed: q != nil"}
	assert.Contains(t, fullText(renderAll(ts)), `Abort message: "assert failed: q != nil"`)

	ts.AbortMessage = tombstone.AbortMessage{Status: tombstone.AbortMessageUnreadable}
	assert.Contains(t, fullText(renderAll(ts)), "Abort message: unreadable")
}

func TestRenderAbsentOptionalsAreExplicit(t *testing.T) {
	ts := segvTombstone()
	ts.SELinuxLabel = ""
	ts.CommandLine = nil
	ts.OpenFiles = nil
	text := fullText(renderAll(ts))

	assert.Contains(t, text, "selinux label: unavailable")
	assert.Contains(t, text, ">>> unavailable <<<")
	assert.Contains(t, text, "open files: not collected")
	assert.Contains(t, text, "registers: unavailable") // worker thread
}

func TestRenderOpenFiles(t *testing.T) {
	ts := segvTombstone()
	ts.OpenFiles = tombstone.OpenFilesList{
		{Fd: 0, Path: "/dev/null"},
		{Fd: 7, Path: "/data/app.db"},
	}
	text := fullText(renderAll(ts))

	assert.Contains(t, text, "open files:")
	assert.Contains(t, text, "  fd 0: /dev/null")
	assert.Contains(t, text, "  fd 7: /data/app.db")
}

func TestRenderGuestBacktrace(t *testing.T) {
	ts := segvTombstone()
	ts.GuestArch = registers.ArchArm64
	ts.Threads[0].GuestFrames = []tombstone.Frame{{Num: 0, PC: 0x8000}}
	text := fullText(renderAll(ts))

	assert.Contains(t, text, "guest architecture: arm64")
	assert.Contains(t, text, "guest backtrace (arm64):")
	assert.Contains(t, text, "#00 pc 0000000000008000")
}

func TestRenderTimestamp(t *testing.T) {
	ts := segvTombstone()
	text := fullText(renderAll(ts))
	assert.Contains(t, text, "Timestamp: 2026-03-14T09:26:53Z")

	ts.Timestamp = time.Time{}
	require.Contains(t, fullText(renderAll(ts)), "Timestamp: unavailable")
}
