//go:build !(linux && arm64)

package crashcontext

import (
	"github.com/crashkit/tombstone/pkg/tombstone"
)

// Both hardware security attributes are arm64-only; everywhere else
// they are reported unsupported rather than failing.
func probeHardwareFeatures() (tagged, pac tombstone.HardwareFeature) {
	return tombstone.HardwareFeature{}, tombstone.HardwareFeature{}
}
