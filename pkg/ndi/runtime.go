package ndi

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/zsiec/ndikit/pkg/ndi/native"
)

// RuntimeInitWait bounds how long Acquire waits for a concurrent
// initialization to finish.
const RuntimeInitWait = 5 * time.Second

const initSpins = 64

type runtimeState int32

const (
	stateUninit runtimeState = iota
	stateInitializing
	stateReady
	stateFailed
)

// runtimeManager counts references to one library's runtime. The library
// is initialized by the first reference and destroyed with the last.
// A failed initialization is permanent for the life of the process.
type runtimeManager struct {
	lib   native.Library
	state atomic.Int32
	refs  atomic.Int64
}

var managers = xsync.NewMapOf[native.Library, *runtimeManager]()

func managerFor(lib native.Library) *runtimeManager {
	m, _ := managers.LoadOrCompute(lib, func() *runtimeManager {
		return &runtimeManager{lib: lib}
	})
	return m
}

func (m *runtimeManager) acquire() error {
	deadline := time.Time{}
	spins := 0
	for {
		switch runtimeState(m.state.Load()) {
		case stateFailed:
			return newError(ErrorTypeInitializationFailed, "NDI runtime failed to initialize")

		case stateUninit:
			if !m.state.CompareAndSwap(int32(stateUninit), int32(stateInitializing)) {
				continue
			}
			if !m.lib.Initialize() {
				m.state.Store(int32(stateFailed))
				logger().Error("NDI runtime failed to initialize")
				return newError(ErrorTypeInitializationFailed, "NDI runtime failed to initialize")
			}
			m.refs.Store(1)
			m.state.Store(int32(stateReady))
			observe().RuntimeRefs(1)
			return nil

		case stateReady:
			n := m.refs.Load()
			if n > 0 {
				if m.refs.CompareAndSwap(n, n+1) {
					observe().RuntimeRefs(n + 1)
					return nil
				}
				continue
			}
			// The last reference is being released; wait for it to
			// settle back to uninitialized.
		}

		if deadline.IsZero() {
			deadline = time.Now().Add(RuntimeInitWait)
		} else if time.Now().After(deadline) {
			return newError(ErrorTypeTimeout, "timed out after %s waiting for the NDI runtime", RuntimeInitWait)
		}
		if spins < initSpins {
			spins++
			runtime.Gosched()
		} else {
			time.Sleep(time.Millisecond)
		}
	}
}

func (m *runtimeManager) release() {
	n := m.refs.Add(-1)
	observe().RuntimeRefs(max(n, 0))
	if n == 0 {
		m.lib.Destroy()
		m.state.CompareAndSwap(int32(stateReady), int32(stateUninit))
	}
}

func (m *runtimeManager) running() bool {
	return runtimeState(m.state.Load()) == stateReady && m.refs.Load() > 0
}

// Runtime is one reference to an initialized NDI library. Finders,
// receivers and senders created from it hold their own references, so
// closing the Runtime early is safe.
type Runtime struct {
	lib    native.Library
	m      *runtimeManager
	once   sync.Once
	closed atomic.Bool
}

// Acquire initializes lib if needed and returns a reference to it.
func Acquire(lib native.Library) (*Runtime, error) {
	if lib == nil {
		return nil, newError(ErrorTypeNullPointer, "library is nil")
	}
	m := managerFor(lib)
	if err := m.acquire(); err != nil {
		return nil, err
	}
	return &Runtime{lib: lib, m: m}, nil
}

// AcquireDefault acquires the linked NDI SDK.
func AcquireDefault() (*Runtime, error) {
	lib, err := native.SDK()
	if err != nil {
		return nil, wrapError(ErrorTypeInitializationFailed, err, "NDI SDK is not available")
	}
	return Acquire(lib)
}

// Close releases the reference. Later calls do nothing.
func (rt *Runtime) Close() {
	rt.once.Do(func() {
		rt.closed.Store(true)
		rt.m.release()
	})
}

// Library returns the underlying library.
func (rt *Runtime) Library() native.Library { return rt.lib }

// IsRunning reports whether the library is initialized.
func (rt *Runtime) IsRunning() bool { return rt.m.running() }

// Version returns the library version string.
func (rt *Runtime) Version() (string, error) {
	v, ok := rt.lib.Version()
	if !ok {
		return "", newError(ErrorTypeNullPointer, "library returned no version")
	}
	return v, nil
}

func (rt *Runtime) IsSupportedCPU() bool { return rt.lib.IsSupportedCPU() }

// retain takes another reference for an object created from rt.
func (rt *Runtime) retain() (*runtimeManager, error) {
	if rt.closed.Load() {
		return nil, closedError("runtime")
	}
	if err := rt.m.acquire(); err != nil {
		return nil, err
	}
	return rt.m, nil
}
