package registers

import (
	"encoding/binary"
	"fmt"
)

// arm64ContextSize is the size of the fixed part of the arm64
// sigcontext: fault_address, x0..x30, sp, pc, pstate.
const arm64ContextSize = 8 + 31*8 + 8 + 8 + 8

// Arm64Regs is the arm64 general-purpose register file.
type Arm64Regs struct {
	X      [31]uint64
	Sp     uint64
	Pc     uint64
	Pstate uint64
}

// DecodeArm64 reads an Arm64Regs out of the raw arm64 sigcontext
// block (fault_address first, then x0..x30, sp, pc, pstate, all
// little-endian 64-bit).
func DecodeArm64(raw []byte) (*Arm64Regs, error) {
	if len(raw) < arm64ContextSize {
		return nil, fmt.Errorf("registers: arm64 context too short: %d bytes", len(raw))
	}
	r := &Arm64Regs{}
	off := 8 // skip fault_address, siginfo carries it
	for i := 0; i < 31; i++ {
		r.X[i] = binary.LittleEndian.Uint64(raw[off:])
		off += 8
	}
	r.Sp = binary.LittleEndian.Uint64(raw[off:])
	r.Pc = binary.LittleEndian.Uint64(raw[off+8:])
	r.Pstate = binary.LittleEndian.Uint64(raw[off+16:])
	return r, nil
}

func (r *Arm64Regs) Arch() Arch { return ArchArm64 }

func (r *Arm64Regs) PC() uint64 { return r.Pc }

func (r *Arm64Regs) SP() uint64 { return r.Sp }

func (r *Arm64Regs) Each(fn func(name string, value uint64)) {
	for i := 0; i < 29; i++ {
		fn(fmt.Sprintf("x%d", i), r.X[i])
	}
	fn("fp", r.X[29])
	fn("lr", r.X[30])
	fn("sp", r.Sp)
	fn("pc", r.Pc)
	fn("pst", r.Pstate)
}
