package registers

import (
	"encoding/binary"
	"fmt"
)

// x86_64 sigcontext field order, one 64-bit slot each.
var x86_64Order = []string{
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	"rdi", "rsi", "rbp", "rbx", "rdx", "rax", "rcx", "rsp",
	"rip", "eflags",
}

const x86_64ContextSize = 18 * 8

// X86_64Regs is the x86_64 general-purpose register file.
type X86_64Regs struct {
	R8, R9, R10, R11, R12, R13, R14, R15 uint64
	Rdi, Rsi, Rbp, Rbx, Rdx, Rax, Rcx    uint64
	Rsp, Rip, Eflags                     uint64
}

// DecodeX86_64 reads an X86_64Regs out of the raw x86_64 sigcontext
// block (r8..r15, rdi, rsi, rbp, rbx, rdx, rax, rcx, rsp, rip,
// eflags, little-endian 64-bit each).
func DecodeX86_64(raw []byte) (*X86_64Regs, error) {
	if len(raw) < x86_64ContextSize {
		return nil, fmt.Errorf("registers: x86_64 context too short: %d bytes", len(raw))
	}
	vals := make([]uint64, 18)
	for i := range vals {
		vals[i] = binary.LittleEndian.Uint64(raw[i*8:])
	}
	return &X86_64Regs{
		R8: vals[0], R9: vals[1], R10: vals[2], R11: vals[3],
		R12: vals[4], R13: vals[5], R14: vals[6], R15: vals[7],
		Rdi: vals[8], Rsi: vals[9], Rbp: vals[10], Rbx: vals[11],
		Rdx: vals[12], Rax: vals[13], Rcx: vals[14], Rsp: vals[15],
		Rip: vals[16], Eflags: vals[17],
	}, nil
}

func (r *X86_64Regs) Arch() Arch { return ArchX86_64 }

func (r *X86_64Regs) PC() uint64 { return r.Rip }

func (r *X86_64Regs) SP() uint64 { return r.Rsp }

func (r *X86_64Regs) Each(fn func(name string, value uint64)) {
	vals := []uint64{
		r.R8, r.R9, r.R10, r.R11, r.R12, r.R13, r.R14, r.R15,
		r.Rdi, r.Rsi, r.Rbp, r.Rbx, r.Rdx, r.Rax, r.Rcx, r.Rsp,
		r.Rip, r.Eflags,
	}
	for i, name := range x86_64Order {
		fn(name, vals[i])
	}
}
