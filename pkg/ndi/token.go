package ndi

import (
	"runtime"
	"sync"
	"time"
)

// AsyncVideoToken stands for a frame handed to the library by
// Sender.SendVideoAsync. Release must be called before the frame's buffer
// is reused or modified.
type AsyncVideoToken struct {
	st   *senderState
	data []byte
	meta []byte
	pin  runtime.Pinner
	once sync.Once
}

// Len is the size of the frame's buffer.
func (t *AsyncVideoToken) Len() int { return len(t.data) }

// Release blocks until the library no longer reads the buffer, then runs
// the sender's OnAsyncVideoDone callback and frees the sender for the next
// asynchronous frame. Later calls do nothing.
func (t *AsyncVideoToken) Release() {
	t.once.Do(func() {
		runtime.SetFinalizer(t, nil)
		st := t.st
		start := time.Now()

		if st.advanced {
			// The native completion runs the callback.
			if !st.done.wait(asyncCompletionWait) {
				logger().WithField("sender", st.name).Warn("Timed out waiting for the asynchronous frame callback; the buffer may still be in use")
			}
		} else {
			if !st.destroyed.Load() {
				st.flush()
			}
			st.notify(len(t.data))
		}

		t.pin.Unpin()
		observe().AsyncFlush(time.Since(start))
		st.busy.Store(false)
		st.release()
	})
}

func (t *AsyncVideoToken) leaked() {
	logger().WithField("sender", t.st.name).Warn("Asynchronous frame token was never released; releasing it from the finalizer")
	t.Release()
}
