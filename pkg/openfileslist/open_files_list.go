// Package openfileslist snapshots the crashed process's fd table.
// The snapshot is an optional collaborator input to the report: a nil
// list means "not collected", never "no files open".
package openfileslist

import (
	"fmt"
	"sort"

	"github.com/prometheus/procfs"

	"github.com/crashkit/tombstone/pkg/tombstone"
)

// Collect reads pid's open descriptors and their targets, ordered by
// ascending fd. Callers treat a failure as "not collected" and pass
// a nil list to the builder.
func Collect(fs procfs.FS, pid int) (tombstone.OpenFilesList, error) {
	proc, err := fs.Proc(pid)
	if err != nil {
		return nil, fmt.Errorf("openfileslist: pid %d: %w", pid, err)
	}
	fds, err := proc.FileDescriptors()
	if err != nil {
		return nil, fmt.Errorf("openfileslist: reading fds of pid %d: %w", pid, err)
	}
	targets, err := proc.FileDescriptorTargets()
	if err != nil {
		return nil, fmt.Errorf("openfileslist: reading fd targets of pid %d: %w", pid, err)
	}

	list := make(tombstone.OpenFilesList, 0, len(fds))
	for i, fd := range fds {
		entry := tombstone.OpenFile{Fd: int(fd)}
		if i < len(targets) {
			entry.Path = targets[i]
		}
		list = append(list, entry)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Fd < list[j].Fd })
	return list, nil
}
