package crashcontext

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/prometheus/procfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashkit/tombstone/pkg/registers"
	"github.com/crashkit/tombstone/pkg/signalinfo"
	"github.com/crashkit/tombstone/pkg/tombstone"
)

const statusTemplate = "Name:\tcrasher\nUid:\t1000\t1000\t1000\t1000\nGid:\t1000\t1000\t1000\t1000\n"

func fakeProcTree(t *testing.T, pid int) (procfs.FS, string) {
	t.Helper()
	root := t.TempDir()

	pidDir := filepath.Join(root, strconv.Itoa(pid))
	require.NoError(t, os.MkdirAll(pidDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pidDir, "comm"), []byte("crasher\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pidDir, "cmdline"), []byte("/bin/crasher\x00--fast\x00"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pidDir, "status"), []byte(statusTemplate), 0o644))

	fs, err := procfs.NewFS(root)
	require.NoError(t, err)
	return fs, root
}

func x86Context() []byte {
	raw := make([]byte, 18*8)
	binary.LittleEndian.PutUint64(raw[16*8:], 0x400abc) // rip
	binary.LittleEndian.PutUint64(raw[15*8:], 0x7ffe00) // rsp
	return raw
}

func testProbe() (tombstone.HardwareFeature, tombstone.HardwareFeature) {
	return tombstone.HardwareFeature{Supported: true, Value: 0x5}, tombstone.HardwareFeature{}
}

func TestCaptureFullState(t *testing.T) {
	fs, root := fakeProcTree(t, 100)
	files := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(files, root+"/100/attr/current", []byte("u:r:untrusted_app:s0\x00"), 0o644))

	c := NewCapturer(fs, files, root).WithHardwareProbe(testProbe)
	si := &signalinfo.Siginfo{Signo: 11, Code: 1, FaultAddr: 0xdead}

	info := c.Capture(100, 100, si, registers.ArchX86_64, x86Context())

	assert.Equal(t, 100, info.Tid)
	assert.Equal(t, 100, info.Pid)
	assert.Equal(t, 1000, info.Uid)
	assert.Equal(t, "crasher", info.Name)
	assert.Equal(t, []string{"/bin/crasher", "--fast"}, info.CommandLine)
	assert.Equal(t, "u:r:untrusted_app:s0", info.SELinuxLabel)
	require.NotNil(t, info.Registers)
	assert.Equal(t, uint64(0x400abc), info.Registers.PC())
	require.NotNil(t, info.Siginfo)
	assert.Equal(t, 11, info.Siginfo.Signo)
	assert.True(t, info.TaggedAddrCtrl.Supported)
	assert.False(t, info.PacEnabledKeys.Supported)
}

func TestCaptureNeverFailsOnMissingFields(t *testing.T) {
	// Bare procfs root: every best-effort read misses.
	root := t.TempDir()
	fs, err := procfs.NewFS(root)
	require.NoError(t, err)

	c := NewCapturer(fs, afero.NewMemMapFs(), root).WithHardwareProbe(nil)
	si := &signalinfo.Siginfo{Signo: 6, Code: -6}

	info := c.Capture(200, 200, si, registers.ArchX86_64, nil)

	assert.Equal(t, 200, info.Tid)
	assert.Empty(t, info.Name)
	assert.Empty(t, info.CommandLine)
	assert.Empty(t, info.SELinuxLabel)
	assert.Nil(t, info.Registers) // context was malformed
	assert.False(t, info.TaggedAddrCtrl.Supported)
	assert.False(t, info.PacEnabledKeys.Supported)
	require.NotNil(t, info.Siginfo)
}

func TestCaptureDropsUndecodableContext(t *testing.T) {
	fs, root := fakeProcTree(t, 100)

	c := NewCapturer(fs, afero.NewMemMapFs(), root).WithHardwareProbe(nil)
	info := c.Capture(100, 100, &signalinfo.Siginfo{Signo: 11, Code: 1}, registers.ArchX86_64, make([]byte, 8))

	assert.Nil(t, info.Registers)
	assert.Equal(t, "crasher", info.Name)
}
