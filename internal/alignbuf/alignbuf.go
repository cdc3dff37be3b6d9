// Package alignbuf allocates byte buffers whose starting address satisfies
// an alignment contract imposed by the decode engine (16 bytes for video
// frame buffers, 512 bytes for audio block buffers). The allocation keeps
// the unaligned base slice alongside the aligned view so the block stays
// reachable for the garbage collector for as long as the engine may write
// through the aligned pointer.
package alignbuf

import (
	"errors"
	"fmt"
	"unsafe"
)

var (
	// ErrBadAlignment is returned when alignment is zero or not a power of two.
	ErrBadAlignment = errors.New("alignbuf: alignment must be a power of two")

	// ErrZeroSize is returned when a zero-byte allocation is requested.
	ErrZeroSize = errors.New("alignbuf: zero-size allocation")
)

// Block is an owning aligned allocation. Data is the aligned view the engine
// writes into; the base slice it was carved from is retained internally.
// After Release the block must not be used.
type Block struct {
	base   []byte // original allocation, keeps memory live
	Data   []byte // aligned view, len == requested size
	Offset int    // Data starts Offset bytes into base
}

// Alloc returns a Block whose Data slice begins on an address that is a
// multiple of align and holds exactly size bytes. align must be a power of
// two. Either a correctly aligned, correctly sized block is returned or an
// error; there is no partial failure mode.
func Alloc(size int, align int) (*Block, error) {
	if align <= 0 || align&(align-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadAlignment, align)
	}
	if size <= 0 {
		return nil, ErrZeroSize
	}

	base := make([]byte, size+align-1)
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(base)))
	offset := 0
	if rem := addr % uintptr(align); rem != 0 {
		offset = align - int(rem)
	}

	return &Block{
		base:   base,
		Data:   base[offset : offset+size],
		Offset: offset,
	}, nil
}

// Aligned reports whether the block's Data address satisfies align.
func (b *Block) Aligned(align int) bool {
	if len(b.Data) == 0 {
		return false
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b.Data)))%uintptr(align) == 0
}

// Release drops both the aligned view and the base allocation. Releasing
// the base, never the aligned view, is what keeps the accounting honest;
// the struct enforces that by being the only holder of the base slice.
func (b *Block) Release() {
	b.base = nil
	b.Data = nil
	b.Offset = 0
}
