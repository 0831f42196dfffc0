package util

import (
	"unsafe"
)

// ToSlice reinterprets a byte buffer as a slice of fixed-size cells.
// pSize must be unsafe.Sizeof(T) and data must be aligned for T.
func ToSlice[T any](data []byte, pSize int) []T {
	slen := len(data) / pSize
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(data))), slen)
}

func PointerToSlice[T any](base unsafe.Pointer, len int) []T {
	return unsafe.Slice((*T)(base), len)
}
