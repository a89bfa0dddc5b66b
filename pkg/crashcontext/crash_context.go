// Package crashcontext reconstructs the crashing thread's state from
// the raw signal context plus best-effort procfs reads. Capture as a
// whole cannot fail: every field has a defined absent state and a
// failed read yields that state, never an error.
package crashcontext

import (
	"strings"

	"github.com/prometheus/procfs"
	"github.com/spf13/afero"

	"github.com/crashkit/tombstone/pkg/registers"
	"github.com/crashkit/tombstone/pkg/signalinfo"
	"github.com/crashkit/tombstone/pkg/tombstone"
)

// Capturer extracts a ThreadInfo for the thread that took the fatal
// signal.
type Capturer struct {
	fs       procfs.FS
	files    afero.Fs
	procRoot string

	// hwProbe queries the two optional hardware security attributes.
	// Swappable in tests; the default is the platform probe.
	hwProbe func() (tagged, pac tombstone.HardwareFeature)
}

// NewCapturer builds a Capturer over the given procfs mount. files
// serves the virtual files procfs does not model (attr/current);
// procRoot is its path prefix, normally "/proc".
func NewCapturer(fs procfs.FS, files afero.Fs, procRoot string) *Capturer {
	return &Capturer{
		fs:       fs,
		files:    files,
		procRoot: procRoot,
		hwProbe:  probeHardwareFeatures,
	}
}

// WithHardwareProbe replaces the platform hardware-attribute probe.
// A nil probe disables it: an out-of-process host cannot prctl the
// target, so both attributes stay unsupported there.
func (c *Capturer) WithHardwareProbe(probe func() (tagged, pac tombstone.HardwareFeature)) *Capturer {
	c.hwProbe = probe
	return c
}

// Capture builds the crashing thread's ThreadInfo. si must carry the
// delivered signal detail; rawContext is the machine context for
// arch, decoded into a typed snapshot when well-formed and dropped
// (nil Registers) when not.
func (c *Capturer) Capture(pid, tid int, si *signalinfo.Siginfo, arch registers.Arch, rawContext []byte) tombstone.ThreadInfo {
	info := tombstone.ThreadInfo{
		Tid:     tid,
		Pid:     pid,
		Siginfo: si,
	}

	if regs, err := registers.FromContext(arch, rawContext); err == nil {
		info.Registers = regs
	}

	if proc, err := c.fs.Proc(tid); err == nil {
		if comm, err := proc.Comm(); err == nil {
			info.Name = comm
		}
		if status, err := proc.NewStatus(); err == nil {
			info.Uid = int(status.UIDs[1])
		}
	}
	if proc, err := c.fs.Proc(pid); err == nil {
		if cmdline, err := proc.CmdLine(); err == nil {
			info.CommandLine = cmdline
		}
	}

	info.SELinuxLabel = c.securityLabel(tid)
	if c.hwProbe != nil {
		info.TaggedAddrCtrl, info.PacEnabledKeys = c.hwProbe()
	}

	return info
}

// securityLabel reads the thread's mandatory-access-control label,
// empty when the attr file is missing or unreadable.
func (c *Capturer) securityLabel(tid int) string {
	path := c.procRoot + "/" + itoa(tid) + "/attr/current"
	data, err := afero.ReadFile(c.files, path)
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(data), "\x00\n")
}

// itoa avoids pulling strconv's formatting paths onto the capture
// path for a value that is always a small positive integer.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
