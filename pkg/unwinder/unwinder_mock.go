package unwinder

import (
	"github.com/crashkit/tombstone/pkg/registers"
	"github.com/crashkit/tombstone/pkg/tombstone"
)

var _ Unwinder = (*Mock)(nil)

// Mock is a function-field Unwinder for tests.
type Mock struct {
	InitFunc   func() error
	UnwindFunc func(regs registers.Registers) ([]tombstone.Frame, error)
}

func (m *Mock) Init() error {
	if m.InitFunc != nil {
		return m.InitFunc()
	}
	return nil
}

func (m *Mock) Unwind(regs registers.Registers) ([]tombstone.Frame, error) {
	if m.UnwindFunc != nil {
		return m.UnwindFunc(regs)
	}
	return nil, nil
}
