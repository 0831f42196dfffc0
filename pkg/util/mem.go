package util

import (
	"unsafe"
)

// CacheLineSize is the alignment of column value buffers. 64 bytes covers
// a full 512-bit vector load starting at any cell of the buffer.
const CacheLineSize = 64

type BytesAllocator interface {
	Alloc(sz int) []byte
	Free([]byte)
}

type DefaultAllocator struct {
}

func (alloc *DefaultAllocator) Alloc(sz int) []byte {
	return make([]byte, sz)
}

func (alloc *DefaultAllocator) Free(bytes []byte) {
}

var GAlloc BytesAllocator = &DefaultAllocator{}

// AlignedAlloc returns a zeroed buffer of sz bytes whose first element is
// aligned to CacheLineSize.
func AlignedAlloc(sz int) []byte {
	raw := make([]byte, sz+CacheLineSize)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	offset := int(AlignValue(uint64(base), CacheLineSize) - uint64(base))
	return raw[offset : offset+sz : offset+sz]
}
