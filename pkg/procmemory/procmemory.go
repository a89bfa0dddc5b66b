// Package procmemory provides the memory-reading capability the
// unwinder boundary consumes: raw address-space reads plus a cached
// read-through snapshot that lets every per-thread unwind within one
// report observe the same instant.
package procmemory

import (
	"fmt"
	"io"
)

// Memory reads bytes out of one process's address space. Reads fail
// per page: a hole in the address space truncates the read, it does
// not poison the reader.
type Memory interface {
	ReadAt(addr uint64, p []byte) (int, error)
}

const pageSize = 4096

// Cached is a read-through page cache over an underlying Memory.
// Each page is fetched at most once and reused for every subsequent
// read, so all unwinds against one Cached see a single snapshot even
// though the reads happen sequentially. Not safe for concurrent use;
// the engine is single-threaded per report.
type Cached struct {
	mem   Memory
	pages map[uint64][]byte
	// failed remembers unreadable pages so a corrupted region costs
	// one probe, not one probe per frame.
	failed map[uint64]bool
}

// NewCached wraps mem in a fresh snapshot cache. One Cached must be
// created per report and discarded afterwards.
func NewCached(mem Memory) *Cached {
	return &Cached{
		mem:    mem,
		pages:  make(map[uint64][]byte),
		failed: make(map[uint64]bool),
	}
}

func (c *Cached) page(base uint64) ([]byte, error) {
	if pg, ok := c.pages[base]; ok {
		return pg, nil
	}
	if c.failed[base] {
		return nil, fmt.Errorf("procmemory: page %#x unreadable", base)
	}
	buf := make([]byte, pageSize)
	n, err := c.mem.ReadAt(base, buf)
	if n < pageSize {
		c.failed[base] = true
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("procmemory: page %#x unreadable: %w", base, err)
	}
	c.pages[base] = buf
	return buf, nil
}

// ReadAt serves p from the snapshot, faulting in pages on first use.
// A read that crosses an unreadable page returns the bytes up to the
// hole together with the page error.
func (c *Cached) ReadAt(addr uint64, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		base := (addr + uint64(total)) &^ (pageSize - 1)
		pg, err := c.page(base)
		if err != nil {
			return total, err
		}
		off := (addr + uint64(total)) - base
		n := copy(p[total:], pg[off:])
		total += n
	}
	return total, nil
}

// readerAtMemory adapts an io.ReaderAt to the Memory interface. Used
// by tests and by hosts that expose a core image instead of a live
// process.
type readerAtMemory struct {
	r io.ReaderAt
}

// FromReaderAt builds a Memory over an io.ReaderAt, treating the
// reader's offset zero as address zero.
func FromReaderAt(r io.ReaderAt) Memory {
	return &readerAtMemory{r: r}
}

func (m *readerAtMemory) ReadAt(addr uint64, p []byte) (int, error) {
	return m.r.ReadAt(p, int64(addr))
}

// maxCString bounds string reads out of a possibly corrupted address
// space.
const maxCString = 512

// ReadCString reads a NUL-terminated string at addr, bounded by
// maxCString bytes.
func ReadCString(mem Memory, addr uint64) (string, error) {
	buf := make([]byte, maxCString)
	n, err := mem.ReadAt(addr, buf)
	if n == 0 {
		return "", err
	}
	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return string(buf[:i]), nil
		}
	}
	return string(buf[:n]), nil
}
