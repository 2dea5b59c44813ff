package sink

import (
	"encoding/binary"
	"unsafe"
)

// peek reads width bytes of raw memory at addr in native byte order.
//
//go:nocheckptr
//go:norace
func peek(addr uintptr, width int) uint64 {
	p := unsafe.Pointer(addr) //nolint:govet // reading arbitrary process memory is the point
	switch width {
	case 1:
		return uint64(*(*uint8)(p))
	case 2:
		return uint64(*(*uint16)(p))
	case 4:
		return uint64(*(*uint32)(p))
	default:
		return *(*uint64)(p)
	}
}

// load decodes width bytes from b in native byte order.
func load(b []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.NativeEndian.Uint16(b))
	case 4:
		return uint64(binary.NativeEndian.Uint32(b))
	default:
		return binary.NativeEndian.Uint64(b)
	}
}
