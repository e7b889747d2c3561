package ndi

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/zsiec/ndikit/pkg/ndi/native"
)

// recvHandle is a counted reference to a receiver instance. The receiver
// holds one reference and every live guard or frame synchronizer holds
// another; the instance is destroyed when the last one is released.
type recvHandle struct {
	lib       native.Library
	inst      native.RecvInstance
	refs      atomic.Int64
	closed    atomic.Bool
	onDestroy func()
}

func newRecvHandle(lib native.Library, inst native.RecvInstance, onDestroy func()) *recvHandle {
	h := &recvHandle{lib: lib, inst: inst, onDestroy: onDestroy}
	h.refs.Store(1)
	return h
}

// acquire fails once the owner has closed the handle, even while
// outstanding guards keep the instance alive.
func (h *recvHandle) acquire() bool {
	if h.closed.Load() {
		return false
	}
	for {
		n := h.refs.Load()
		if n <= 0 {
			return false
		}
		if h.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (h *recvHandle) release() {
	if h.refs.Add(-1) == 0 {
		h.lib.RecvDestroy(h.inst)
		if h.onDestroy != nil {
			h.onDestroy()
		}
	}
}

// close drops the owner's reference. It must be called once.
func (h *recvHandle) close() {
	h.closed.Store(true)
	h.release()
}

const (
	guardLive int32 = iota
	guardReleased
	guardDetached
	guardLeaked
)

// guard owns one captured record and the receiver reference needed to
// free it. The kind's free function runs exactly once: on Release, from
// the leak finalizer, or through the function handed out by detach. A
// record whose memory was handed out through expose is never freed by the
// finalizer.
type guard[R any] struct {
	h       *recvHandle
	k       kind[R]
	raw     R
	state   atomic.Int32
	exposed atomic.Bool
}

func newGuard[R any](h *recvHandle, k kind[R], raw R) *guard[R] {
	g := &guard[R]{h: h, k: k, raw: raw}
	runtime.SetFinalizer(g, (*guard[R]).leaked)
	observe().GuardsLive(1)
	return g
}

func (g *guard[R]) Release() {
	if !g.state.CompareAndSwap(guardLive, guardReleased) {
		return
	}
	runtime.SetFinalizer(g, nil)
	g.k.free(g.h.lib, g.h.inst, &g.raw)
	g.h.release()
	observe().GuardsLive(-1)
}

func (g *guard[R]) live() bool {
	return g.state.Load() == guardLive
}

// expose records that a slice over the record's memory has escaped.
func (g *guard[R]) expose() {
	g.exposed.Store(true)
}

// detach transfers the free obligation to the caller. The returned
// function frees the record and drops the receiver reference once, no
// matter how often it is called.
func (g *guard[R]) detach() (R, func(), bool) {
	if !g.state.CompareAndSwap(guardLive, guardDetached) {
		var zero R
		return zero, nil, false
	}
	runtime.SetFinalizer(g, nil)
	observe().GuardsLive(-1)

	h, k, raw := g.h, g.k, g.raw
	var once sync.Once
	return raw, func() {
		once.Do(func() {
			k.free(h.lib, h.inst, &raw)
			h.release()
		})
	}, true
}

func (g *guard[R]) leaked() {
	if !g.live() {
		return
	}
	log := logger().WithField("kind", g.k.String())
	if g.exposed.Load() {
		// A slice from Data may still point into the record.
		if g.state.CompareAndSwap(guardLive, guardLeaked) {
			observe().GuardsLive(-1)
			log.Warn("Captured frame was never released and its data was handed out; leaking it")
		}
		return
	}
	log.Warn("Captured frame was never released; freeing it from the finalizer")
	g.Release()
}
