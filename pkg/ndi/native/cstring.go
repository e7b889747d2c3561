package native

import (
	"strings"
	"unsafe"
)

// maxCString bounds scans of untrusted NUL terminated strings.
const maxCString = 1 << 24

// StrLen returns the length of the NUL terminated string at p.
func StrLen(p unsafe.Pointer) int {
	if p == nil {
		return 0
	}
	n := 0
	for n < maxCString && *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return n
}

// GoString copies the NUL terminated string at p. A nil p yields "".
func GoString(p unsafe.Pointer) string {
	n := StrLen(p)
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), n))
}

// View returns a zero-copy byte view of n bytes at p. The caller must not
// retain it past the lifetime of the underlying memory.
func View(p unsafe.Pointer, n int) []byte {
	if p == nil || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}

// NullTerminated returns s as a NUL terminated byte slice. ok is false when
// s already contains a NUL byte.
func NullTerminated(s string) (b []byte, ok bool) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, false
	}
	b = make([]byte, len(s)+1)
	copy(b, s)
	return b, true
}
