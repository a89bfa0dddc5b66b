package crashcontext

import (
	"golang.org/x/sys/unix"

	"github.com/crashkit/tombstone/pkg/tombstone"
)

// probeHardwareFeatures reads the calling thread's tagged-address
// control and PAC enabled-keys configuration. Either prctl may be
// rejected by an older kernel; that leaves the feature unsupported,
// which is a normal result.
func probeHardwareFeatures() (tagged, pac tombstone.HardwareFeature) {
	if v, err := unix.PrctlRetInt(unix.PR_GET_TAGGED_ADDR_CTRL, 0, 0, 0, 0); err == nil {
		tagged = tombstone.HardwareFeature{Supported: true, Value: uint64(v)}
	}
	if v, err := unix.PrctlRetInt(unix.PR_PAC_GET_ENABLED_KEYS, 0, 0, 0, 0); err == nil {
		pac = tombstone.HardwareFeature{Supported: true, Value: uint64(v)}
	}
	return tagged, pac
}
