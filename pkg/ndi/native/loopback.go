package native

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/puzpuzpuz/xsync/v3"
)

// Call names recorded by Loopback that do not match a Library method.
const (
	CallSendVideoAsyncFlush = "SendVideoAsyncFlush"
	CallAsyncCompletion     = "AsyncCompletion"
)

// Loopback is an in-process Library for tests and development. It moves
// no data over the network. Senders publish a source on the loopback
// host and the frames they send are replayed to receivers connected to
// that source. Receivers can also be scripted per source with Step values.
//
// Every call is counted, every frame handed out is tracked until freed and
// frees of unknown or already freed frames are recorded as violations.
type Loopback struct {
	host         string
	version      string
	failInit     bool
	cpuSupported bool
	advanced     bool
	autoComplete bool
	idleBlock    time.Duration

	calls       *xsync.MapOf[string, *atomic.Int64]
	frames      *xsync.MapOf[uintptr, allocation]
	handles     *xsync.MapOf[unsafe.Pointer, handleKind]
	violations  atomic.Int64
	runtimeRefs atomic.Int64
	nextPort    atomic.Int32

	mu              sync.Mutex
	sources         []*loopSource
	sourcesVersion  uint64
	changed         chan struct{}
	feeds           map[string]*feed
	senders         map[string]*loopSend
	ptzSupported    bool
	audioQueueDepth int
}

type handleKind int

const (
	handleFind handleKind = iota + 1
	handleRecv
	handleSend
	handleFrameSync
)

type allocation struct {
	kind      FrameType
	frameSync bool
	buf       []byte
}

type loopSource struct {
	name    string
	address string
	groups  []string
	local   bool
	cname   []byte
	caddr   []byte
}

func newLoopSource(name, address string, groups []string, local bool) *loopSource {
	cname, _ := NullTerminated(name)
	var caddr []byte
	if address != "" {
		caddr, _ = NullTerminated(address)
	}
	return &loopSource{name: name, address: address, groups: groups, local: local, cname: cname, caddr: caddr}
}

func (s *loopSource) raw() Source {
	src := Source{Name: unsafe.Pointer(&s.cname[0])}
	if len(s.caddr) > 0 {
		src.Address = unsafe.Pointer(&s.caddr[0])
	}
	return src
}

type feed struct {
	queue        []Step
	idle         map[FrameType]Step
	metadata     []string
	inbox        []string
	ptz          []PTZCommand
	tally        Tally
	tallyChanged bool
	connections  int
}

type loopFind struct {
	settings FindCreate
	seen     atomic.Uint64
}

type loopRecv struct {
	source string
}

type loopSend struct {
	source   *loopSource
	settings SendCreate

	mu         sync.Mutex
	completion func()
	pending    bool
	failover   string
	connMeta   []string
}

type loopFrameSync struct {
	recv *loopRecv
	last *Step
}

// LoopbackOption configures a Loopback.
type LoopbackOption func(*Loopback)

// WithHost sets the machine name used for sender sources.
func WithHost(host string) LoopbackOption {
	return func(l *Loopback) { l.host = host }
}

// WithVersion sets the reported version. An empty string reports a null
// version pointer.
func WithVersion(v string) LoopbackOption {
	return func(l *Loopback) { l.version = v }
}

// WithFailingInitialize makes Initialize report failure.
func WithFailingInitialize() LoopbackOption {
	return func(l *Loopback) { l.failInit = true }
}

// WithUnsupportedCPU makes IsSupportedCPU report false.
func WithUnsupportedCPU() LoopbackOption {
	return func(l *Loopback) { l.cpuSupported = false }
}

// WithAdvancedAsync enables native async completion callbacks. With auto
// set, the callback fires shortly after each asynchronous send; otherwise
// it fires on flush, on the next send or from CompleteAsync.
func WithAdvancedAsync(auto bool) LoopbackOption {
	return func(l *Loopback) {
		l.advanced = true
		l.autoComplete = auto
	}
}

// WithIdleBlock bounds how long a capture blocks when nothing is queued.
func WithIdleBlock(d time.Duration) LoopbackOption {
	return func(l *Loopback) { l.idleBlock = d }
}

// WithPTZ makes receivers report PTZ support.
func WithPTZ() LoopbackOption {
	return func(l *Loopback) { l.ptzSupported = true }
}

// NewLoopback returns an empty loopback library.
func NewLoopback(opts ...LoopbackOption) *Loopback {
	l := &Loopback{
		host:         "LOOPBACK",
		version:      "NDI SDK LOOPBACK 6.0.0",
		cpuSupported: true,
		idleBlock:    10 * time.Millisecond,
		calls:        xsync.NewMapOf[string, *atomic.Int64](),
		frames:       xsync.NewMapOf[uintptr, allocation](),
		handles:      xsync.NewMapOf[unsafe.Pointer, handleKind](),
		changed:      make(chan struct{}),
		feeds:        make(map[string]*feed),
		senders:      make(map[string]*loopSend),
	}
	l.nextPort.Store(5960)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Step is one scripted capture result.
type Step struct {
	Type     FrameType
	Video    VideoFrame
	Audio    AudioFrame
	Payload  []byte
	Metadata string
	// Delay blocks the capture call, bounded by its timeout.
	Delay time.Duration
}

// NoFrameStep yields FrameTypeNone without blocking.
func NoFrameStep() Step { return Step{Type: FrameTypeNone} }

// ErrorStep yields FrameTypeError.
func ErrorStep() Step { return Step{Type: FrameTypeError} }

// StatusChangeStep yields FrameTypeStatusChange.
func StatusChangeStep() Step { return Step{Type: FrameTypeStatusChange} }

// MetadataStep yields a metadata frame carrying s.
func MetadataStep(s string) Step { return Step{Type: FrameTypeMetadata, Metadata: s} }

// VideoStep yields a progressive 29.97 fps frame filled with a byte ramp.
func VideoStep(xres, yres int32, fourcc uint32, stride int32) Step {
	size := VideoDataSize(fourcc, stride, yres)
	if size < 0 {
		size = 0
	}
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i)
	}
	aspect := float32(0)
	if yres > 0 {
		aspect = float32(xres) / float32(yres)
	}
	return Step{
		Type: FrameTypeVideo,
		Video: VideoFrame{
			XRes:               xres,
			YRes:               yres,
			FourCC:             fourcc,
			FrameRateN:         30000,
			FrameRateD:         1001,
			PictureAspectRatio: aspect,
			FrameFormatType:    1,
			LineStrideOrSize:   stride,
		},
		Payload: payload,
	}
}

// AudioStep yields a FLTP frame holding a 440 Hz tone on every channel.
func AudioStep(sampleRate, channels, samples int32, planar bool) Step {
	n := int(channels) * int(samples)
	payload := make([]byte, n*4)
	for ch := 0; ch < int(channels); ch++ {
		for s := 0; s < int(samples); s++ {
			v := float32(0.5 * math.Sin(2*math.Pi*440*float64(s)/float64(sampleRate)))
			idx := s*int(channels) + ch
			if planar {
				idx = ch*int(samples) + s
			}
			binary.NativeEndian.PutUint32(payload[idx*4:], math.Float32bits(v))
		}
	}
	stride := int32(0)
	if planar {
		stride = samples * 4
	}
	return Step{
		Type: FrameTypeAudio,
		Audio: AudioFrame{
			SampleRate:          sampleRate,
			NoChannels:          channels,
			NoSamples:           samples,
			FourCC:              FourCCFLTP,
			ChannelStrideOrSize: stride,
		},
		Payload: payload,
	}
}

// AddSource publishes a remote source. Groups default to "public".
func (l *Loopback) AddSource(name, address string, groups ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources = append(l.sources, newLoopSource(name, address, groups, false))
	l.bumpLocked()
}

// RemoveSource withdraws every source called name.
func (l *Loopback) RemoveSource(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.sources[:0]
	for _, s := range l.sources {
		if s.name != name {
			kept = append(kept, s)
		}
	}
	l.sources = kept
	l.bumpLocked()
}

// Script appends steps to the capture queue of source.
func (l *Loopback) Script(source string, steps ...Step) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.feedLocked(source)
	f.queue = append(f.queue, steps...)
}

// SetIdle sets the step replayed for its frame type whenever the queue of
// source is empty.
func (l *Loopback) SetIdle(source string, step Step) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.feedLocked(source).idle[step.Type] = step
}

// SetAudioQueueDepth sets the value reported by FrameSyncAudioQueueDepth.
func (l *Loopback) SetAudioQueueDepth(n int) {
	l.mu.Lock()
	l.audioQueueDepth = n
	l.mu.Unlock()
}

// SenderSourceName returns the full source name a sender called name
// publishes under.
func (l *Loopback) SenderSourceName(name string) string {
	return fmt.Sprintf("%s (%s)", l.host, name)
}

// Calls reports how often the named method was called.
func (l *Loopback) Calls(name string) int64 {
	if c, ok := l.calls.Load(name); ok {
		return c.Load()
	}
	return 0
}

// Outstanding reports frames handed out and not yet freed.
func (l *Loopback) Outstanding() int {
	return l.frames.Size()
}

// Violations reports frees of unknown frames, double frees and calls on
// destroyed instances.
func (l *Loopback) Violations() int64 {
	return l.violations.Load()
}

// RuntimeRefs reports successful Initialize calls minus Destroy calls.
func (l *Loopback) RuntimeRefs() int64 {
	return l.runtimeRefs.Load()
}

// LiveHandles reports instances created and not yet destroyed.
func (l *Loopback) LiveHandles() int {
	return l.handles.Size()
}

// Connections reports receivers connected to source.
func (l *Loopback) Connections(source string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.feedLocked(source).connections
}

// PTZCommands returns the PTZ commands accepted for source.
func (l *Loopback) PTZCommands(source string) []PTZCommand {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]PTZCommand(nil), l.feedLocked(source).ptz...)
}

// Inbox returns metadata receivers sent upstream to source.
func (l *Loopback) Inbox(source string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.feedLocked(source).inbox...)
}

// ConnectionMetadata returns the connection metadata of the sender
// publishing source.
func (l *Loopback) ConnectionMetadata(source string) []string {
	s := l.sender(source)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.connMeta...)
}

// Failover returns the failover source name of the sender publishing
// source.
func (l *Loopback) Failover(source string) string {
	s := l.sender(source)
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failover
}

// CompleteAsync fires the completion callback of every sender with a
// pending asynchronous frame and returns how many fired.
func (l *Loopback) CompleteAsync() int {
	l.mu.Lock()
	senders := make([]*loopSend, 0, len(l.senders))
	for _, s := range l.senders {
		senders = append(senders, s)
	}
	l.mu.Unlock()

	n := 0
	for _, s := range senders {
		if l.complete(s) {
			n++
		}
	}
	return n
}

func (l *Loopback) count(name string) {
	c, _ := l.calls.LoadOrCompute(name, func() *atomic.Int64 { return new(atomic.Int64) })
	c.Add(1)
}

func (l *Loopback) bumpLocked() {
	l.sourcesVersion++
	close(l.changed)
	l.changed = make(chan struct{})
}

func (l *Loopback) feedLocked(source string) *feed {
	f, ok := l.feeds[source]
	if !ok {
		f = &feed{idle: make(map[FrameType]Step)}
		l.feeds[source] = f
	}
	return f
}

func (l *Loopback) sender(source string) *loopSend {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.senders[source]
}

func (l *Loopback) register(p unsafe.Pointer, kind handleKind) {
	l.handles.Store(p, kind)
}

func (l *Loopback) unregister(p unsafe.Pointer, kind handleKind) bool {
	k, ok := l.handles.LoadAndDelete(p)
	if !ok || k != kind {
		l.violations.Add(1)
		return false
	}
	return true
}

func (l *Loopback) live(p unsafe.Pointer, kind handleKind) bool {
	k, ok := l.handles.Load(p)
	if !ok || k != kind {
		l.violations.Add(1)
		return false
	}
	return true
}

func (l *Loopback) alloc(kind FrameType, frameSync bool, payload []byte) unsafe.Pointer {
	if len(payload) == 0 {
		return nil
	}
	buf := bytes.Clone(payload)
	p := unsafe.Pointer(&buf[0])
	l.frames.Store(uintptr(p), allocation{kind: kind, frameSync: frameSync, buf: buf})
	return p
}

func (l *Loopback) release(kind FrameType, frameSync bool, p unsafe.Pointer) {
	if p == nil {
		return
	}
	a, ok := l.frames.LoadAndDelete(uintptr(p))
	if !ok || a.kind != kind || a.frameSync != frameSync {
		l.violations.Add(1)
	}
}

func block(d time.Duration, timeoutMs uint32) {
	if limit := time.Duration(timeoutMs) * time.Millisecond; d > limit {
		d = limit
	}
	if d > 0 {
		time.Sleep(d)
	}
}

func splitGroups(s string) []string {
	var out []string
	for _, g := range strings.Split(s, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, strings.ToLower(g))
		}
	}
	if len(out) == 0 {
		out = []string{"public"}
	}
	return out
}

func (l *Loopback) visible(settings FindCreate, s *loopSource) bool {
	if s.local && !settings.ShowLocalSources {
		return false
	}
	srcGroups := s.groups
	if len(srcGroups) == 0 {
		srcGroups = []string{"public"}
	}
	for _, want := range splitGroups(settings.Groups) {
		for _, have := range srcGroups {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

func (l *Loopback) Initialize() bool {
	l.count("Initialize")
	if l.failInit {
		return false
	}
	l.runtimeRefs.Add(1)
	return true
}

func (l *Loopback) Destroy() {
	l.count("Destroy")
	l.runtimeRefs.Add(-1)
}

func (l *Loopback) Version() (string, bool) {
	l.count("Version")
	return l.version, l.version != ""
}

func (l *Loopback) IsSupportedCPU() bool {
	l.count("IsSupportedCPU")
	return l.cpuSupported
}

func (l *Loopback) FindCreate(settings FindCreate) FindInstance {
	l.count("FindCreate")
	f := &loopFind{settings: settings}
	l.register(unsafe.Pointer(f), handleFind)
	return FindInstance(unsafe.Pointer(f))
}

func (l *Loopback) FindDestroy(inst FindInstance) {
	l.count("FindDestroy")
	l.unregister(unsafe.Pointer(inst), handleFind)
}

func (l *Loopback) FindWaitForSources(inst FindInstance, timeoutMs uint32) bool {
	l.count("FindWaitForSources")
	if !l.live(unsafe.Pointer(inst), handleFind) {
		return false
	}
	f := (*loopFind)(unsafe.Pointer(inst))

	timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	defer timer.Stop()
	for {
		l.mu.Lock()
		v, ch := l.sourcesVersion, l.changed
		l.mu.Unlock()
		if f.seen.Swap(v) != v {
			return true
		}
		select {
		case <-ch:
		case <-timer.C:
			return false
		}
	}
}

func (l *Loopback) FindGetCurrentSources(inst FindInstance) []Source {
	l.count("FindGetCurrentSources")
	if !l.live(unsafe.Pointer(inst), handleFind) {
		return nil
	}
	f := (*loopFind)(unsafe.Pointer(inst))

	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Source
	for _, s := range l.sources {
		if l.visible(f.settings, s) {
			out = append(out, s.raw())
		}
	}
	return out
}

func (l *Loopback) FindGetSources(inst FindInstance, timeoutMs uint32) []Source {
	if timeoutMs > 0 {
		l.FindWaitForSources(inst, timeoutMs)
	}
	return l.FindGetCurrentSources(inst)
}

func (l *Loopback) RecvCreate(settings RecvCreate) RecvInstance {
	l.count("RecvCreate")
	r := &loopRecv{source: settings.SourceName}
	l.mu.Lock()
	l.feedLocked(r.source).connections++
	l.mu.Unlock()
	l.register(unsafe.Pointer(r), handleRecv)
	return RecvInstance(unsafe.Pointer(r))
}

func (l *Loopback) RecvDestroy(inst RecvInstance) {
	l.count("RecvDestroy")
	if !l.unregister(unsafe.Pointer(inst), handleRecv) {
		return
	}
	r := (*loopRecv)(unsafe.Pointer(inst))
	l.mu.Lock()
	l.feedLocked(r.source).connections--
	l.mu.Unlock()
}

func (l *Loopback) next(source string, wantVideo, wantAudio, wantMeta bool) (Step, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.feedLocked(source)
	if len(f.queue) > 0 {
		step := f.queue[0]
		f.queue = f.queue[1:]
		return step, true
	}
	if step, ok := f.idle[FrameTypeVideo]; ok && wantVideo {
		return step, true
	}
	if step, ok := f.idle[FrameTypeAudio]; ok && wantAudio {
		return step, true
	}
	if len(f.metadata) > 0 && wantMeta {
		s := f.metadata[0]
		f.metadata = f.metadata[1:]
		return MetadataStep(s), true
	}
	return Step{}, false
}

func (l *Loopback) RecvCapture(inst RecvInstance, video *VideoFrame, audio *AudioFrame, meta *MetadataFrame, timeoutMs uint32) FrameType {
	l.count("RecvCapture")
	if !l.live(unsafe.Pointer(inst), handleRecv) {
		return FrameTypeNone
	}
	r := (*loopRecv)(unsafe.Pointer(inst))

	step, ok := l.next(r.source, video != nil, audio != nil, meta != nil)
	if !ok {
		block(l.idleBlock, timeoutMs)
		return FrameTypeNone
	}
	block(step.Delay, timeoutMs)

	switch step.Type {
	case FrameTypeVideo:
		if video != nil {
			*video = step.Video
			video.Data = l.alloc(FrameTypeVideo, false, step.Payload)
			video.Metadata = nil
		}
	case FrameTypeAudio:
		if audio != nil {
			*audio = step.Audio
			audio.Data = l.alloc(FrameTypeAudio, false, step.Payload)
			audio.Metadata = nil
		}
	case FrameTypeMetadata:
		if meta != nil {
			buf, _ := NullTerminated(step.Metadata)
			*meta = MetadataFrame{Length: int32(len(buf)), Data: l.alloc(FrameTypeMetadata, false, buf)}
		}
	}
	return step.Type
}

func (l *Loopback) RecvFreeVideo(inst RecvInstance, frame *VideoFrame) {
	l.count("RecvFreeVideo")
	if l.live(unsafe.Pointer(inst), handleRecv) {
		l.release(FrameTypeVideo, false, frame.Data)
	}
}

func (l *Loopback) RecvFreeAudio(inst RecvInstance, frame *AudioFrame) {
	l.count("RecvFreeAudio")
	if l.live(unsafe.Pointer(inst), handleRecv) {
		l.release(FrameTypeAudio, false, frame.Data)
	}
}

func (l *Loopback) RecvFreeMetadata(inst RecvInstance, frame *MetadataFrame) {
	l.count("RecvFreeMetadata")
	if l.live(unsafe.Pointer(inst), handleRecv) {
		l.release(FrameTypeMetadata, false, frame.Data)
	}
}

func (l *Loopback) RecvSendMetadata(inst RecvInstance, frame *MetadataFrame) bool {
	l.count("RecvSendMetadata")
	if !l.live(unsafe.Pointer(inst), handleRecv) {
		return false
	}
	r := (*loopRecv)(unsafe.Pointer(inst))
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.feedLocked(r.source)
	f.inbox = append(f.inbox, GoString(frame.Data))
	return true
}

func (l *Loopback) RecvSetTally(inst RecvInstance, tally Tally) bool {
	l.count("RecvSetTally")
	if !l.live(unsafe.Pointer(inst), handleRecv) {
		return false
	}
	r := (*loopRecv)(unsafe.Pointer(inst))
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.feedLocked(r.source)
	f.tally = tally
	f.tallyChanged = true
	return true
}

func (l *Loopback) RecvGetNoConnections(inst RecvInstance) int {
	l.count("RecvGetNoConnections")
	if !l.live(unsafe.Pointer(inst), handleRecv) {
		return 0
	}
	r := (*loopRecv)(unsafe.Pointer(inst))
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.sources {
		if s.name == r.source {
			return 1
		}
	}
	return 0
}

func (l *Loopback) RecvPTZIsSupported(inst RecvInstance) bool {
	l.count("RecvPTZIsSupported")
	return l.live(unsafe.Pointer(inst), handleRecv) && l.ptzSupported
}

func (l *Loopback) RecvPTZ(inst RecvInstance, cmd PTZCommand) bool {
	l.count("RecvPTZ")
	if !l.live(unsafe.Pointer(inst), handleRecv) || !l.ptzSupported {
		return false
	}
	r := (*loopRecv)(unsafe.Pointer(inst))
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.feedLocked(r.source)
	f.ptz = append(f.ptz, cmd)
	return true
}

func (l *Loopback) SendCreate(settings SendCreate) SendInstance {
	l.count("SendCreate")
	addr := fmt.Sprintf("127.0.0.1:%d", l.nextPort.Add(1))
	var groups []string
	if settings.Groups != "" {
		groups = splitGroups(settings.Groups)
	}
	s := &loopSend{
		source:   newLoopSource(l.SenderSourceName(settings.Name), addr, groups, true),
		settings: settings,
	}

	l.mu.Lock()
	l.sources = append(l.sources, s.source)
	l.senders[s.source.name] = s
	l.bumpLocked()
	l.mu.Unlock()

	l.register(unsafe.Pointer(s), handleSend)
	return SendInstance(unsafe.Pointer(s))
}

func (l *Loopback) SendDestroy(inst SendInstance) {
	l.count("SendDestroy")
	if !l.unregister(unsafe.Pointer(inst), handleSend) {
		return
	}
	s := (*loopSend)(unsafe.Pointer(inst))

	s.mu.Lock()
	s.completion = nil
	s.pending = false
	s.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.senders, s.source.name)
	kept := l.sources[:0]
	for _, src := range l.sources {
		if src != s.source {
			kept = append(kept, src)
		}
	}
	l.sources = kept
	l.bumpLocked()
}

func (l *Loopback) echoVideo(s *loopSend, frame *VideoFrame) {
	size := VideoDataSize(frame.FourCC, frame.LineStrideOrSize, frame.YRes)
	if frame.Data == nil || size <= 0 {
		return
	}
	tmpl := *frame
	tmpl.Data, tmpl.Metadata = nil, nil
	step := Step{Type: FrameTypeVideo, Video: tmpl, Payload: bytes.Clone(View(frame.Data, int(size)))}

	l.mu.Lock()
	l.feedLocked(s.source.name).idle[FrameTypeVideo] = step
	l.mu.Unlock()
}

func (l *Loopback) SendVideo(inst SendInstance, frame *VideoFrame) {
	l.count("SendVideo")
	if l.live(unsafe.Pointer(inst), handleSend) {
		l.echoVideo((*loopSend)(unsafe.Pointer(inst)), frame)
	}
}

func (l *Loopback) SendVideoAsync(inst SendInstance, frame *VideoFrame) {
	if frame == nil {
		l.count(CallSendVideoAsyncFlush)
	} else {
		l.count("SendVideoAsync")
	}
	if !l.live(unsafe.Pointer(inst), handleSend) {
		return
	}
	s := (*loopSend)(unsafe.Pointer(inst))

	// Any call releases the previously submitted buffer.
	l.complete(s)
	if frame == nil {
		return
	}

	l.echoVideo(s, frame)
	s.mu.Lock()
	s.pending = true
	s.mu.Unlock()
	if l.autoComplete {
		go func() {
			time.Sleep(time.Millisecond)
			l.complete(s)
		}()
	}
}

func (l *Loopback) complete(s *loopSend) bool {
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return false
	}
	s.pending = false
	fn := s.completion
	s.mu.Unlock()

	if fn != nil && l.advanced {
		l.count(CallAsyncCompletion)
		fn()
	}
	return true
}

func (l *Loopback) SendAudio(inst SendInstance, frame *AudioFrame) {
	l.count("SendAudio")
	if !l.live(unsafe.Pointer(inst), handleSend) {
		return
	}
	s := (*loopSend)(unsafe.Pointer(inst))
	size := int(frame.NoChannels) * int(frame.NoSamples) * 4
	if frame.Data == nil || size <= 0 {
		return
	}
	tmpl := *frame
	tmpl.Data, tmpl.Metadata = nil, nil
	step := Step{Type: FrameTypeAudio, Audio: tmpl, Payload: bytes.Clone(View(frame.Data, size))}

	l.mu.Lock()
	l.feedLocked(s.source.name).idle[FrameTypeAudio] = step
	l.mu.Unlock()
}

func (l *Loopback) SendMetadata(inst SendInstance, frame *MetadataFrame) {
	l.count("SendMetadata")
	if !l.live(unsafe.Pointer(inst), handleSend) {
		return
	}
	s := (*loopSend)(unsafe.Pointer(inst))
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.feedLocked(s.source.name)
	f.metadata = append(f.metadata, GoString(frame.Data))
}

func (l *Loopback) SendGetTally(inst SendInstance, tally *Tally, timeoutMs uint32) bool {
	l.count("SendGetTally")
	if !l.live(unsafe.Pointer(inst), handleSend) {
		return false
	}
	s := (*loopSend)(unsafe.Pointer(inst))

	l.mu.Lock()
	f := l.feedLocked(s.source.name)
	*tally = f.tally
	changed := f.tallyChanged
	f.tallyChanged = false
	l.mu.Unlock()

	if !changed {
		block(l.idleBlock, timeoutMs)
	}
	return changed
}

func (l *Loopback) SendGetNoConnections(inst SendInstance, timeoutMs uint32) int {
	l.count("SendGetNoConnections")
	if !l.live(unsafe.Pointer(inst), handleSend) {
		return 0
	}
	s := (*loopSend)(unsafe.Pointer(inst))
	l.mu.Lock()
	n := l.feedLocked(s.source.name).connections
	l.mu.Unlock()
	if n == 0 {
		block(l.idleBlock, timeoutMs)
	}
	return n
}

func (l *Loopback) SendClearConnectionMetadata(inst SendInstance) {
	l.count("SendClearConnectionMetadata")
	if !l.live(unsafe.Pointer(inst), handleSend) {
		return
	}
	s := (*loopSend)(unsafe.Pointer(inst))
	s.mu.Lock()
	s.connMeta = nil
	s.mu.Unlock()
}

func (l *Loopback) SendAddConnectionMetadata(inst SendInstance, frame *MetadataFrame) {
	l.count("SendAddConnectionMetadata")
	if !l.live(unsafe.Pointer(inst), handleSend) {
		return
	}
	s := (*loopSend)(unsafe.Pointer(inst))
	s.mu.Lock()
	s.connMeta = append(s.connMeta, GoString(frame.Data))
	s.mu.Unlock()
}

func (l *Loopback) SendSetFailover(inst SendInstance, name, _ string) {
	l.count("SendSetFailover")
	if !l.live(unsafe.Pointer(inst), handleSend) {
		return
	}
	s := (*loopSend)(unsafe.Pointer(inst))
	s.mu.Lock()
	s.failover = name
	s.mu.Unlock()
}

func (l *Loopback) SendGetSourceName(inst SendInstance) (Source, bool) {
	l.count("SendGetSourceName")
	if !l.live(unsafe.Pointer(inst), handleSend) {
		return Source{}, false
	}
	return (*loopSend)(unsafe.Pointer(inst)).source.raw(), true
}

func (l *Loopback) SendSetVideoAsyncCompletion(inst SendInstance, fn func()) bool {
	l.count("SendSetVideoAsyncCompletion")
	if !l.advanced || !l.live(unsafe.Pointer(inst), handleSend) {
		return false
	}
	s := (*loopSend)(unsafe.Pointer(inst))
	s.mu.Lock()
	s.completion = fn
	s.mu.Unlock()
	return true
}

func (l *Loopback) FrameSyncCreate(recv RecvInstance) FrameSyncInstance {
	l.count("FrameSyncCreate")
	if !l.live(unsafe.Pointer(recv), handleRecv) {
		return nil
	}
	fs := &loopFrameSync{recv: (*loopRecv)(unsafe.Pointer(recv))}
	l.register(unsafe.Pointer(fs), handleFrameSync)
	return FrameSyncInstance(unsafe.Pointer(fs))
}

func (l *Loopback) FrameSyncDestroy(inst FrameSyncInstance) {
	l.count("FrameSyncDestroy")
	l.unregister(unsafe.Pointer(inst), handleFrameSync)
}

func (l *Loopback) FrameSyncCaptureVideo(inst FrameSyncInstance, frame *VideoFrame, _ int32) {
	l.count("FrameSyncCaptureVideo")
	*frame = VideoFrame{}
	if !l.live(unsafe.Pointer(inst), handleFrameSync) {
		return
	}
	fs := (*loopFrameSync)(unsafe.Pointer(inst))

	l.mu.Lock()
	f := l.feedLocked(fs.recv.source)
	if len(f.queue) > 0 && f.queue[0].Type == FrameTypeVideo {
		step := f.queue[0]
		f.queue = f.queue[1:]
		fs.last = &step
	} else if step, ok := f.idle[FrameTypeVideo]; ok {
		fs.last = &step
	}
	last := fs.last
	l.mu.Unlock()

	// The synchronizer repeats the last frame and yields an empty one
	// until a frame has arrived.
	if last == nil {
		return
	}
	*frame = last.Video
	frame.Data = l.alloc(FrameTypeVideo, true, last.Payload)
}

func (l *Loopback) FrameSyncFreeVideo(inst FrameSyncInstance, frame *VideoFrame) {
	l.count("FrameSyncFreeVideo")
	if l.live(unsafe.Pointer(inst), handleFrameSync) {
		l.release(FrameTypeVideo, true, frame.Data)
	}
}

func (l *Loopback) FrameSyncCaptureAudio(inst FrameSyncInstance, frame *AudioFrame, sampleRate, channels, samples int32) {
	l.count("FrameSyncCaptureAudio")
	*frame = AudioFrame{}
	if !l.live(unsafe.Pointer(inst), handleFrameSync) {
		return
	}
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	if channels <= 0 {
		channels = 2
	}
	if samples <= 0 {
		samples = 1024
	}
	// Silence is inserted when the queue runs dry.
	*frame = AudioFrame{
		SampleRate:          sampleRate,
		NoChannels:          channels,
		NoSamples:           samples,
		FourCC:              FourCCFLTP,
		ChannelStrideOrSize: samples * 4,
	}
	frame.Data = l.alloc(FrameTypeAudio, true, make([]byte, int(channels)*int(samples)*4))
}

func (l *Loopback) FrameSyncFreeAudio(inst FrameSyncInstance, frame *AudioFrame) {
	l.count("FrameSyncFreeAudio")
	if l.live(unsafe.Pointer(inst), handleFrameSync) {
		l.release(FrameTypeAudio, true, frame.Data)
	}
}

func (l *Loopback) FrameSyncAudioQueueDepth(inst FrameSyncInstance) int {
	l.count("FrameSyncAudioQueueDepth")
	if !l.live(unsafe.Pointer(inst), handleFrameSync) {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.audioQueueDepth
}

var _ Library = (*Loopback)(nil)
