//go:build ndi && cgo && ndi_advanced

package native

/*
#include <stdint.h>
*/
import "C"

import "runtime/cgo"

//export ndikitVideoAsyncDone
func ndikitVideoAsyncDone(handle C.uintptr_t) {
	if fn, ok := cgo.Handle(handle).Value().(func()); ok {
		fn()
	}
}
