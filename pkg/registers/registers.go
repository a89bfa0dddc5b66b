// Package registers models the architecture-specific register state
// of a crashed thread as a closed set of variants behind one
// interface. The variant is selected once, at capture time; nothing
// downstream branches on the architecture again.
package registers

import (
	"fmt"
	"runtime"
)

// Arch is an opaque instruction-set architecture tag.
type Arch string

const (
	ArchArm64  Arch = "arm64"
	ArchX86_64 Arch = "x86_64"
)

// CurrentArch returns the tag of the architecture this process runs
// on, or an empty tag on an unsupported platform.
func CurrentArch() Arch {
	switch runtime.GOARCH {
	case "arm64":
		return ArchArm64
	case "amd64":
		return ArchX86_64
	}
	return ""
}

// Registers is one thread's general-purpose register snapshot.
type Registers interface {
	Arch() Arch
	PC() uint64
	SP() uint64

	// Each calls fn for every register in a fixed, documented order,
	// so renderings and serializations are deterministic.
	Each(fn func(name string, value uint64))
}

// FromContext reconstructs a typed register snapshot from the raw
// machine-context bytes delivered with a signal, decoded per the
// given architecture.
func FromContext(arch Arch, raw []byte) (Registers, error) {
	switch arch {
	case ArchArm64:
		return DecodeArm64(raw)
	case ArchX86_64:
		return DecodeX86_64(raw)
	}
	return nil, fmt.Errorf("registers: unsupported architecture %q", arch)
}
