package ndi

import (
	"time"

	"github.com/zsiec/ndikit/pkg/ndi/native"
)

// captureOnce issues a single capture for kind k. A nil guard with a nil
// error means no frame arrived. Discriminants of other kinds, including
// status changes, are treated as no frame.
func captureOnce[R any](h *recvHandle, k kind[R], timeout time.Duration) (*guard[R], error) {
	ms, err := timeoutMs(timeout)
	if err != nil {
		return nil, err
	}
	if !h.acquire() {
		return nil, closedError("receiver")
	}

	var raw R
	video, audio, meta := k.slots(&raw)
	ft := h.lib.RecvCapture(h.inst, video, audio, meta, ms)

	switch ft {
	case k.FrameType():
		observe().CaptureAttempt(k.String(), "frame")
		// The reference taken above now belongs to the guard.
		return newGuard(h, k, raw), nil
	case native.FrameTypeError:
		h.release()
		observe().CaptureAttempt(k.String(), "error")
		return nil, newError(ErrorTypeCaptureFailed, "received an error frame")
	default:
		h.release()
		observe().CaptureAttempt(k.String(), "none")
		return nil, nil
	}
}

// captureStatus polls with every frame slot suppressed so only status
// changes and errors surface.
func captureStatus(h *recvHandle, timeout time.Duration) (native.FrameType, error) {
	ms, err := timeoutMs(timeout)
	if err != nil {
		return native.FrameTypeNone, err
	}
	if !h.acquire() {
		return native.FrameTypeNone, closedError("receiver")
	}
	defer h.release()

	ft := h.lib.RecvCapture(h.inst, nil, nil, nil, ms)
	if ft == native.FrameTypeError {
		return ft, newError(ErrorTypeCaptureFailed, "received an error frame")
	}
	return ft, nil
}
