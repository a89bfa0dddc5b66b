package unwinder

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashkit/tombstone/pkg/procmemory"
	"github.com/crashkit/tombstone/pkg/registers"
)

type mapResolver map[uint64]string

func (r mapResolver) Resolve(pc uint64) string { return r[pc] }

// fakeStack lays frame records (next fp, return pc) into a flat
// memory image.
func fakeStack(records map[uint64][2]uint64) procmemory.Memory {
	img := make([]byte, 1<<16)
	for fp, rec := range records {
		binary.LittleEndian.PutUint64(img[fp:], rec[0])
		binary.LittleEndian.PutUint64(img[fp+8:], rec[1])
	}
	return procmemory.FromReaderAt(bytes.NewReader(img))
}

func x86Regs(pc, fp uint64) registers.Registers {
	return &registers.X86_64Regs{Rip: pc, Rbp: fp, Rsp: fp - 64}
}

func TestFramePointerWalk(t *testing.T) {
	mem := fakeStack(map[uint64][2]uint64{
		0x1000: {0x1100, 0x400200},
		0x1100: {0x1200, 0x400300},
		0x1200: {0, 0}, // chain ends
	})
	u := NewFramePointer(mem, mapResolver{0x400300: "main"})
	require.NoError(t, u.Init())

	frames, err := u.Unwind(x86Regs(0x400100, 0x1000))
	require.NoError(t, err)
	require.Len(t, frames, 3)

	assert.Equal(t, uint64(0x400100), frames[0].PC)
	assert.Equal(t, uint64(0x400200), frames[1].PC)
	assert.Equal(t, uint64(0x400300), frames[2].PC)
	assert.Equal(t, "main", frames[2].Symbol)
	assert.Equal(t, 2, frames[2].Num)
}

func TestFramePointerStopsAtUnreadableFrame(t *testing.T) {
	// Frame record points past the mapped image: one frame gap, the
	// recovered prefix stands.
	mem := fakeStack(map[uint64][2]uint64{
		0x1000: {1 << 20, 0x400200},
	})
	u := NewFramePointer(mem, nil)
	require.NoError(t, u.Init())

	frames, err := u.Unwind(x86Regs(0x400100, 0x1000))
	require.NoError(t, err)
	require.Len(t, frames, 2)
}

func TestFramePointerRejectsDescendingChain(t *testing.T) {
	mem := fakeStack(map[uint64][2]uint64{
		0x1000: {0x0800, 0x400200}, // next fp below current
	})
	u := NewFramePointer(mem, nil)
	require.NoError(t, u.Init())

	frames, err := u.Unwind(x86Regs(0x400100, 0x1000))
	require.NoError(t, err)
	require.Len(t, frames, 2)
}

func TestFramePointerNoRegisters(t *testing.T) {
	u := NewFramePointer(fakeStack(nil), nil)
	require.NoError(t, u.Init())

	_, err := u.Unwind(nil)
	require.Error(t, err)
}

func TestInitWithoutMemoryIsHardFailure(t *testing.T) {
	u := NewFramePointer(nil, nil)

	err := u.Init()
	require.Error(t, err)

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, 1, initErr.Code)
}
