package unwinder

import (
	"encoding/binary"
	"errors"

	"github.com/crashkit/tombstone/pkg/procmemory"
	"github.com/crashkit/tombstone/pkg/registers"
	"github.com/crashkit/tombstone/pkg/tombstone"
)

// maxFrames bounds a walk through a corrupted or self-referential
// frame chain.
const maxFrames = 64

// FramePointer is the local default Unwinder: it follows the saved
// frame-pointer chain ([fp] -> caller fp, [fp+8] -> return pc)
// through a Memory snapshot. It is deliberately simple; hosts with a
// full DWARF engine supply their own Unwinder instead.
type FramePointer struct {
	mem      procmemory.Memory
	resolver SymbolResolver
}

// NewFramePointer builds a frame-pointer unwinder over mem. resolver
// may be nil, in which case frames carry addresses only.
func NewFramePointer(mem procmemory.Memory, resolver SymbolResolver) *FramePointer {
	return &FramePointer{mem: mem, resolver: resolver}
}

func (u *FramePointer) Init() error {
	if u.mem == nil {
		return &InitError{Code: 1, Err: errors.New("no process memory")}
	}
	return nil
}

func (u *FramePointer) Unwind(regs registers.Registers) ([]tombstone.Frame, error) {
	if regs == nil {
		return nil, errors.New("no register snapshot")
	}

	frames := make([]tombstone.Frame, 0, maxFrames)
	push := func(pc uint64) {
		f := tombstone.Frame{Num: len(frames), PC: pc}
		if u.resolver != nil {
			f.Symbol = u.resolver.Resolve(pc)
		}
		frames = append(frames, f)
	}

	push(regs.PC())

	fp := framePointerOf(regs)
	var rec [16]byte
	for fp != 0 && len(frames) < maxFrames {
		if n, err := u.mem.ReadAt(fp, rec[:]); n < len(rec) {
			// Unreadable frame record: the walk ends with a gap, the
			// frames recovered so far stand.
			_ = err
			break
		}
		nextFP := binary.LittleEndian.Uint64(rec[0:])
		retPC := binary.LittleEndian.Uint64(rec[8:])
		if retPC == 0 {
			break
		}
		push(retPC)
		if nextFP <= fp {
			// Frame chains grow toward higher addresses; anything
			// else is corruption.
			break
		}
		fp = nextFP
	}
	return frames, nil
}

func framePointerOf(regs registers.Registers) uint64 {
	switch r := regs.(type) {
	case *registers.Arm64Regs:
		return r.X[29]
	case *registers.X86_64Regs:
		return r.Rbp
	}
	return 0
}
