// Package validator checks host prerequisites before the tombstone
// host starts serving: a kernel new enough for cross-process memory
// reads and a readable procfs mount.
package validator

import (
	"fmt"
	"os"

	logger "github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"golang.org/x/sys/unix"
)

// process_vm_readv arrived in 3.2.
const minKernelVersion = "3.2"

func checkKernelVersion() error {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return fmt.Errorf("checkKernelVersion: fail to detect the kernel version")
	}
	release := unameField(uname.Release[:])
	logger.L().Debug("detected kernel", helpers.String("release", release))

	if release < minKernelVersion {
		return fmt.Errorf("checkKernelVersion: kernel %s is older than the minimum supported %s", release, minKernelVersion)
	}
	return nil
}

func unameField(arr []byte) string {
	for i, v := range arr {
		if v == 0 {
			return string(arr[:i])
		}
	}
	return string(arr)
}

func checkProcRoot(procRoot string) error {
	info, err := os.Stat(procRoot)
	if err != nil {
		return fmt.Errorf("checkProcRoot: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("checkProcRoot: %s is not a directory", procRoot)
	}
	return nil
}

// CheckPrerequisites validates the host can actually engrave
// tombstones for other processes.
func CheckPrerequisites(procRoot string) error {
	if err := checkKernelVersion(); err != nil {
		return err
	}
	if err := checkProcRoot(procRoot); err != nil {
		return err
	}
	return nil
}
