//go:build ndi && cgo && ndi_advanced

package native

/*
#include "ndi_decls.h"

typedef void (*NDIlib_video_send_async_completion_t)(void* p_opaque, const NDIlib_video_frame_v2_t* p_video_data);
extern void NDIlib_send_set_video_async_completion(NDIlib_send_instance_t p_instance, void* p_opaque, NDIlib_video_send_async_completion_t p_deallocator);

extern void ndikitVideoAsyncDone(uintptr_t handle);

static void ndikit_async_done(void* opaque, const NDIlib_video_frame_v2_t* frame) {
	(void)frame;
	ndikitVideoAsyncDone((uintptr_t)opaque);
}

static void ndikit_set_async_completion(NDIlib_send_instance_t inst, uintptr_t handle) {
	NDIlib_send_set_video_async_completion(inst, (void*)handle, handle ? ndikit_async_done : NULL);
}
*/
import "C"

import "runtime/cgo"

type asyncRegistration struct {
	handle cgo.Handle
}

func (s *sdkLibrary) SendSetVideoAsyncCompletion(inst SendInstance, fn func()) bool {
	if fn == nil {
		// Returns once the library stops invoking the previous callback.
		C.ndikit_set_async_completion(C.NDIlib_send_instance_t(inst), 0)
		s.dropAsync(inst)
		return true
	}

	h := cgo.NewHandle(fn)
	old, loaded := s.async.LoadAndStore(inst, asyncRegistration{handle: h})
	C.ndikit_set_async_completion(C.NDIlib_send_instance_t(inst), C.uintptr_t(h))
	if loaded {
		old.handle.Delete()
	}
	return true
}

func (s *sdkLibrary) dropAsync(inst SendInstance) {
	if r, ok := s.async.LoadAndDelete(inst); ok {
		r.handle.Delete()
	}
}
