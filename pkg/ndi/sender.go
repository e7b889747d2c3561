package ndi

import (
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zsiec/ndikit/pkg/ndi/native"
)

// asyncCompletionWait bounds every wait for the library to hand back an
// asynchronous frame.
const asyncCompletionWait = 5 * time.Second

// SenderOptions configures a sender.
type SenderOptions struct {
	Name string
	// Groups is a comma separated list; empty publishes to the default
	// group.
	Groups string
	// ClockVideo paces SendVideo to the frame rate.
	ClockVideo bool
	ClockAudio bool
}

// DefaultSenderOptions clocks both video and audio.
func DefaultSenderOptions(name string) SenderOptions {
	return SenderOptions{Name: name, ClockVideo: true, ClockAudio: true}
}

func (o SenderOptions) Validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return invalidConfig("sender name cannot be empty or only whitespace")
	}
	if !o.ClockVideo && !o.ClockAudio {
		return invalidConfig("at least one of video or audio must be clocked")
	}
	if strings.IndexByte(o.Name, 0) >= 0 || strings.IndexByte(o.Groups, 0) >= 0 {
		return newError(ErrorTypeInvalidCString, "sender name or groups contain a NUL byte")
	}
	return nil
}

// senderState is shared by the Sender, its outstanding token and the
// native completion callback. The instance is destroyed when the last
// reference goes.
type senderState struct {
	lib  native.Library
	inst native.SendInstance
	m    *runtimeManager
	name string

	refs      atomic.Int64
	closed    atomic.Bool
	destroyed atomic.Bool

	// cbMu orders user callbacks against Close.
	cbMu     sync.Mutex
	callback atomic.Pointer[func(int)]

	done     *completion
	busy     atomic.Bool
	inflight atomic.Int64
	advanced bool
}

func (st *senderState) acquire() bool {
	if st.closed.Load() {
		return false
	}
	for {
		n := st.refs.Load()
		if n <= 0 {
			return false
		}
		if st.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (st *senderState) release() {
	if st.refs.Add(-1) == 0 {
		st.teardown()
	}
}

func (st *senderState) teardown() {
	if !st.destroyed.CompareAndSwap(false, true) {
		return
	}
	// The native callback checks destroyed before touching user code;
	// what remains is letting an in-flight completion finish.
	if st.advanced && !st.done.wait(asyncCompletionWait) {
		logger().WithField("sender", st.name).Warn("Timed out waiting for the asynchronous frame callback during teardown")
	}
	if st.advanced {
		st.lib.SendSetVideoAsyncCompletion(st.inst, nil)
	}
	st.lib.SendDestroy(st.inst)
	st.m.release()
}

func (st *senderState) use(fn func(inst native.SendInstance)) error {
	if !st.acquire() {
		return closedError("sender")
	}
	defer st.release()
	fn(st.inst)
	return nil
}

// notify runs the user callback unless the sender is closed.
func (st *senderState) notify(n int) {
	st.cbMu.Lock()
	defer st.cbMu.Unlock()
	if st.closed.Load() || st.destroyed.Load() {
		return
	}
	if cb := st.callback.Load(); cb != nil {
		(*cb)(n)
	}
}

// onNativeCompletion is registered with the library when it supports
// completion callbacks.
func (st *senderState) onNativeCompletion() {
	st.notify(int(st.inflight.Load()))
	st.done.signal()
}

// flush blocks until the library has released every asynchronous frame.
func (st *senderState) flush() {
	unlock := lockFlush()
	defer unlock()
	st.lib.SendVideoAsync(st.inst, nil)
}

// Sender publishes a source.
type Sender struct {
	id   uuid.UUID
	st   *senderState
	once sync.Once
}

// NewSender creates and announces a source called opts.Name.
func NewSender(rt *Runtime, opts SenderOptions) (*Sender, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	m, err := rt.retain()
	if err != nil {
		return nil, err
	}
	inst := rt.lib.SendCreate(native.SendCreate{
		Name:       opts.Name,
		Groups:     opts.Groups,
		ClockVideo: opts.ClockVideo,
		ClockAudio: opts.ClockAudio,
	})
	if inst == nil {
		m.release()
		return nil, newError(ErrorTypeInitializationFailed, "failed to create sender %q", opts.Name)
	}

	st := &senderState{lib: rt.lib, inst: inst, m: m, name: opts.Name, done: newCompletion()}
	st.refs.Store(1)
	st.advanced = rt.lib.SendSetVideoAsyncCompletion(inst, st.onNativeCompletion)
	return &Sender{id: uuid.New(), st: st}, nil
}

func (s *Sender) ID() uuid.UUID { return s.id }

// Name is the name the sender was created with.
func (s *Sender) Name() string { return s.st.name }

// Close stops publishing. No async callback runs once Close returns. A
// token still outstanding keeps the instance alive until it is released.
// Callbacks must not call Close.
func (s *Sender) Close() {
	s.once.Do(func() {
		s.st.cbMu.Lock()
		s.st.closed.Store(true)
		s.st.cbMu.Unlock()
		s.st.release()
	})
}

// OnAsyncVideoDone registers fn to run with the buffer length each time
// the library is done with an asynchronous frame. Only the first
// registration takes effect.
func (s *Sender) OnAsyncVideoDone(fn func(int)) {
	if fn != nil {
		s.st.callback.CompareAndSwap(nil, &fn)
	}
}

// SendVideo sends a frame synchronously.
func (s *Sender) SendVideo(f *VideoFrame) error {
	rec, meta, err := f.Borrow().record()
	if err != nil {
		return err
	}
	err = s.st.use(func(inst native.SendInstance) {
		s.st.lib.SendVideo(inst, &rec)
	})
	runtime.KeepAlive(f)
	runtime.KeepAlive(meta)
	return err
}

// SendVideoAsync starts sending frame and returns at once. The frame's
// buffer belongs to the library until the token is released, and only
// one token may be outstanding per sender; a second call fails with
// ErrBusy.
func (s *Sender) SendVideoAsync(frame BorrowedVideoFrame) (*AsyncVideoToken, error) {
	st := s.st
	if st.closed.Load() {
		return nil, closedError("sender")
	}
	rec, meta, err := frame.record()
	if err != nil {
		return nil, err
	}
	if !st.busy.CompareAndSwap(false, true) {
		observe().AsyncSend("busy")
		return nil, newError(ErrorTypeBusy, "an asynchronous frame is already in flight on %s", st.name)
	}
	if !st.acquire() {
		st.busy.Store(false)
		return nil, closedError("sender")
	}

	t := &AsyncVideoToken{st: st, data: frame.data, meta: meta}
	t.pin.Pin(&frame.data[0])
	if meta != nil {
		t.pin.Pin(&meta[0])
	}
	runtime.SetFinalizer(t, (*AsyncVideoToken).leaked)

	st.inflight.Store(int64(len(frame.data)))
	st.done.reset()
	st.lib.SendVideoAsync(st.inst, &rec)
	observe().AsyncSend("sent")
	return t, nil
}

// FlushAsyncBlocking waits until the library has released any
// asynchronous frame.
func (s *Sender) FlushAsyncBlocking() error {
	if !s.st.acquire() {
		return closedError("sender")
	}
	defer s.st.release()
	s.st.flush()
	return nil
}

// FlushAsync waits up to timeout for the in-flight frame. Without native
// completion callbacks it is FlushAsyncBlocking.
func (s *Sender) FlushAsync(timeout time.Duration) error {
	if _, err := timeoutMs(timeout); err != nil {
		return err
	}
	if !s.st.advanced {
		return s.FlushAsyncBlocking()
	}
	if s.st.closed.Load() {
		return closedError("sender")
	}
	if !s.st.done.wait(timeout) {
		return newError(ErrorTypeTimeout, "asynchronous frame did not complete within %s", timeout)
	}
	return nil
}

func (s *Sender) SendAudio(f *AudioFrame) error {
	rec, meta, err := f.record()
	if err != nil {
		return err
	}
	err = s.st.use(func(inst native.SendInstance) {
		s.st.lib.SendAudio(inst, &rec)
	})
	runtime.KeepAlive(f)
	runtime.KeepAlive(meta)
	return err
}

func (s *Sender) SendMetadata(f *MetadataFrame) error {
	rec, buf, err := f.record()
	if err != nil {
		return err
	}
	err = s.st.use(func(inst native.SendInstance) {
		s.st.lib.SendMetadata(inst, &rec)
	})
	runtime.KeepAlive(buf)
	return err
}

// Tally waits up to timeout for a tally change. changed is false when the
// timeout elapsed; t then holds the current state.
func (s *Sender) Tally(timeout time.Duration) (t Tally, changed bool, err error) {
	ms, err := timeoutMs(timeout)
	if err != nil {
		return Tally{}, false, err
	}
	var raw native.Tally
	err = s.st.use(func(inst native.SendInstance) {
		changed = s.st.lib.SendGetTally(inst, &raw, ms)
	})
	return Tally{OnProgram: raw.OnProgram, OnPreview: raw.OnPreview}, changed, err
}

// Connections waits up to timeout for at least one receiver and returns
// the number connected.
func (s *Sender) Connections(timeout time.Duration) (int, error) {
	ms, err := timeoutMs(timeout)
	if err != nil {
		return 0, err
	}
	n := 0
	err = s.st.use(func(inst native.SendInstance) {
		n = s.st.lib.SendGetNoConnections(inst, ms)
	})
	return n, err
}

// ClearConnectionMetadata drops the metadata sent to new connections.
func (s *Sender) ClearConnectionMetadata() error {
	return s.st.use(s.st.lib.SendClearConnectionMetadata)
}

// AddConnectionMetadata adds metadata every new receiver gets on connect.
func (s *Sender) AddConnectionMetadata(f *MetadataFrame) error {
	rec, buf, err := f.record()
	if err != nil {
		return err
	}
	err = s.st.use(func(inst native.SendInstance) {
		s.st.lib.SendAddConnectionMetadata(inst, &rec)
	})
	runtime.KeepAlive(buf)
	return err
}

// SetFailover names the source receivers switch to if this one goes away.
func (s *Sender) SetFailover(src Source) error {
	if err := src.validate(); err != nil {
		return err
	}
	return s.st.use(func(inst native.SendInstance) {
		s.st.lib.SendSetFailover(inst, src.Name, src.Address.Value)
	})
}

// SourceName returns the source as other machines see it.
func (s *Sender) SourceName() (Source, error) {
	var (
		raw native.Source
		ok  bool
	)
	if err := s.st.use(func(inst native.SendInstance) {
		raw, ok = s.st.lib.SendGetSourceName(inst)
	}); err != nil {
		return Source{}, err
	}
	if !ok {
		return Source{}, newError(ErrorTypeNullPointer, "library returned no source for %s", s.st.name)
	}
	return sourceFromRaw(raw)
}
