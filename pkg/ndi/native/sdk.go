//go:build ndi && cgo

package native

/*
#cgo darwin LDFLAGS: -L/Library/NDI\ SDK\ for\ Apple/lib/macOS -lndi
#cgo linux LDFLAGS: -L/usr/lib -L/usr/local/lib -lndi
#cgo windows LDFLAGS: -L"C:/Program Files/NDI/NDI 6 SDK/Lib/x64" -lProcessing.NDI.Lib.x64

#include "ndi_decls.h"
*/
import "C"

import (
	"runtime"
	"unsafe"

	"github.com/puzpuzpuz/xsync/v3"
)

type sendStrings struct {
	name   *C.char
	groups *C.char
}

type sdkLibrary struct {
	// strings handed to NDIlib_send_create stay allocated until destroy
	pinned *xsync.MapOf[SendInstance, sendStrings]
	async  *xsync.MapOf[SendInstance, asyncRegistration]
}

var sdkInstance = &sdkLibrary{
	pinned: xsync.NewMapOf[SendInstance, sendStrings](),
	async:  xsync.NewMapOf[SendInstance, asyncRegistration](),
}

// SDK returns the library backed by the linked NDI runtime.
func SDK() (Library, error) {
	return sdkInstance, nil
}

func cstr(s string) *C.char {
	if s == "" {
		return nil
	}
	return C.CString(s)
}

func freeCStr(p *C.char) {
	if p != nil {
		C.free(unsafe.Pointer(p))
	}
}

func videoFromC(c *C.NDIlib_video_frame_v2_t, f *VideoFrame) {
	*f = VideoFrame{
		XRes:               int32(c.xres),
		YRes:               int32(c.yres),
		FourCC:             uint32(c.FourCC),
		FrameRateN:         int32(c.frame_rate_N),
		FrameRateD:         int32(c.frame_rate_D),
		PictureAspectRatio: float32(c.picture_aspect_ratio),
		FrameFormatType:    int32(c.frame_format_type),
		Timecode:           int64(c.timecode),
		Data:               unsafe.Pointer(c.p_data),
		LineStrideOrSize:   int32(c.line_stride_in_bytes),
		Metadata:           unsafe.Pointer(c.p_metadata),
		Timestamp:          int64(c.timestamp),
	}
}

func videoToC(f *VideoFrame) C.NDIlib_video_frame_v2_t {
	return C.NDIlib_video_frame_v2_t{
		xres:                 C.int(f.XRes),
		yres:                 C.int(f.YRes),
		FourCC:               C.uint32_t(f.FourCC),
		frame_rate_N:         C.int(f.FrameRateN),
		frame_rate_D:         C.int(f.FrameRateD),
		picture_aspect_ratio: C.float(f.PictureAspectRatio),
		frame_format_type:    C.int(f.FrameFormatType),
		timecode:             C.int64_t(f.Timecode),
		p_data:               (*C.uint8_t)(f.Data),
		line_stride_in_bytes: C.int(f.LineStrideOrSize),
		p_metadata:           (*C.char)(f.Metadata),
		timestamp:            C.int64_t(f.Timestamp),
	}
}

func audioFromC(c *C.NDIlib_audio_frame_v3_t, f *AudioFrame) {
	*f = AudioFrame{
		SampleRate:          int32(c.sample_rate),
		NoChannels:          int32(c.no_channels),
		NoSamples:           int32(c.no_samples),
		Timecode:            int64(c.timecode),
		FourCC:              uint32(c.FourCC),
		Data:                unsafe.Pointer(c.p_data),
		ChannelStrideOrSize: int32(c.channel_stride_in_bytes),
		Metadata:            unsafe.Pointer(c.p_metadata),
		Timestamp:           int64(c.timestamp),
	}
}

func audioToC(f *AudioFrame) C.NDIlib_audio_frame_v3_t {
	return C.NDIlib_audio_frame_v3_t{
		sample_rate:             C.int(f.SampleRate),
		no_channels:             C.int(f.NoChannels),
		no_samples:              C.int(f.NoSamples),
		timecode:                C.int64_t(f.Timecode),
		FourCC:                  C.uint32_t(f.FourCC),
		p_data:                  (*C.uint8_t)(f.Data),
		channel_stride_in_bytes: C.int(f.ChannelStrideOrSize),
		p_metadata:              (*C.char)(f.Metadata),
		timestamp:               C.int64_t(f.Timestamp),
	}
}

func metadataFromC(c *C.NDIlib_metadata_frame_t, f *MetadataFrame) {
	*f = MetadataFrame{
		Length:   int32(c.length),
		Timecode: int64(c.timecode),
		Data:     unsafe.Pointer(c.p_data),
	}
}

func metadataToC(f *MetadataFrame) C.NDIlib_metadata_frame_t {
	return C.NDIlib_metadata_frame_t{
		length:   C.int(f.Length),
		timecode: C.int64_t(f.Timecode),
		p_data:   (*C.char)(f.Data),
	}
}

func (s *sdkLibrary) Initialize() bool { return bool(C.NDIlib_initialize()) }

func (s *sdkLibrary) Destroy() { C.NDIlib_destroy() }

func (s *sdkLibrary) Version() (string, bool) {
	p := C.NDIlib_version()
	if p == nil {
		return "", false
	}
	return C.GoString(p), true
}

func (s *sdkLibrary) IsSupportedCPU() bool { return bool(C.NDIlib_is_supported_CPU()) }

func (s *sdkLibrary) FindCreate(settings FindCreate) FindInstance {
	groups, ips := cstr(settings.Groups), cstr(settings.ExtraIPs)
	defer freeCStr(groups)
	defer freeCStr(ips)

	create := C.NDIlib_find_create_t{
		show_local_sources: C.bool(settings.ShowLocalSources),
		p_groups:           groups,
		p_extra_ips:        ips,
	}
	return FindInstance(C.NDIlib_find_create_v2(&create))
}

func (s *sdkLibrary) FindDestroy(inst FindInstance) {
	C.NDIlib_find_destroy(C.NDIlib_find_instance_t(inst))
}

func (s *sdkLibrary) FindWaitForSources(inst FindInstance, timeoutMs uint32) bool {
	return bool(C.NDIlib_find_wait_for_sources(C.NDIlib_find_instance_t(inst), C.uint32_t(timeoutMs)))
}

func (s *sdkLibrary) FindGetCurrentSources(inst FindInstance) []Source {
	var n C.uint32_t
	p := C.NDIlib_find_get_current_sources(C.NDIlib_find_instance_t(inst), &n)
	if p == nil || n == 0 {
		return nil
	}
	raw := unsafe.Slice(p, int(n))
	out := make([]Source, len(raw))
	for i := range raw {
		out[i] = Source{
			Name:    unsafe.Pointer(raw[i].p_ndi_name),
			Address: unsafe.Pointer(raw[i].p_url_address),
		}
	}
	return out
}

func (s *sdkLibrary) FindGetSources(inst FindInstance, timeoutMs uint32) []Source {
	if timeoutMs > 0 {
		s.FindWaitForSources(inst, timeoutMs)
	}
	return s.FindGetCurrentSources(inst)
}

func (s *sdkLibrary) RecvCreate(settings RecvCreate) RecvInstance {
	name, addr, recvName := cstr(settings.SourceName), cstr(settings.SourceAddress), cstr(settings.Name)
	defer freeCStr(name)
	defer freeCStr(addr)
	defer freeCStr(recvName)

	create := C.NDIlib_recv_create_v3_t{
		source_to_connect_to: C.NDIlib_source_t{p_ndi_name: name, p_url_address: addr},
		color_format:         C.int(settings.ColorFormat),
		bandwidth:            C.int(settings.Bandwidth),
		allow_video_fields:   C.bool(settings.AllowVideoFields),
		p_ndi_recv_name:      recvName,
	}
	return RecvInstance(C.NDIlib_recv_create_v3(&create))
}

func (s *sdkLibrary) RecvDestroy(inst RecvInstance) {
	C.NDIlib_recv_destroy(C.NDIlib_recv_instance_t(inst))
}

func (s *sdkLibrary) RecvCapture(inst RecvInstance, video *VideoFrame, audio *AudioFrame, meta *MetadataFrame, timeoutMs uint32) FrameType {
	var (
		v  C.NDIlib_video_frame_v2_t
		a  C.NDIlib_audio_frame_v3_t
		m  C.NDIlib_metadata_frame_t
		pv *C.NDIlib_video_frame_v2_t
		pa *C.NDIlib_audio_frame_v3_t
		pm *C.NDIlib_metadata_frame_t
	)
	if video != nil {
		pv = &v
	}
	if audio != nil {
		pa = &a
	}
	if meta != nil {
		pm = &m
	}

	t := FrameType(C.NDIlib_recv_capture_v3(C.NDIlib_recv_instance_t(inst), pv, pa, pm, C.uint32_t(timeoutMs)))

	if video != nil {
		videoFromC(&v, video)
	}
	if audio != nil {
		audioFromC(&a, audio)
	}
	if meta != nil {
		metadataFromC(&m, meta)
	}
	return t
}

func (s *sdkLibrary) RecvFreeVideo(inst RecvInstance, frame *VideoFrame) {
	c := videoToC(frame)
	C.NDIlib_recv_free_video_v2(C.NDIlib_recv_instance_t(inst), &c)
}

func (s *sdkLibrary) RecvFreeAudio(inst RecvInstance, frame *AudioFrame) {
	c := audioToC(frame)
	C.NDIlib_recv_free_audio_v3(C.NDIlib_recv_instance_t(inst), &c)
}

func (s *sdkLibrary) RecvFreeMetadata(inst RecvInstance, frame *MetadataFrame) {
	c := metadataToC(frame)
	C.NDIlib_recv_free_metadata(C.NDIlib_recv_instance_t(inst), &c)
}

func (s *sdkLibrary) RecvSendMetadata(inst RecvInstance, frame *MetadataFrame) bool {
	var pin runtime.Pinner
	defer pin.Unpin()
	pinPtr(&pin, frame.Data)

	c := metadataToC(frame)
	return bool(C.NDIlib_recv_send_metadata(C.NDIlib_recv_instance_t(inst), &c))
}

func (s *sdkLibrary) RecvSetTally(inst RecvInstance, tally Tally) bool {
	c := C.NDIlib_tally_t{on_program: C.bool(tally.OnProgram), on_preview: C.bool(tally.OnPreview)}
	return bool(C.NDIlib_recv_set_tally(C.NDIlib_recv_instance_t(inst), &c))
}

func (s *sdkLibrary) RecvGetNoConnections(inst RecvInstance) int {
	return int(C.NDIlib_recv_get_no_connections(C.NDIlib_recv_instance_t(inst)))
}

func (s *sdkLibrary) RecvPTZIsSupported(inst RecvInstance) bool {
	return bool(C.NDIlib_recv_ptz_is_supported(C.NDIlib_recv_instance_t(inst)))
}

func (s *sdkLibrary) RecvPTZ(inst RecvInstance, cmd PTZCommand) bool {
	r := C.NDIlib_recv_instance_t(inst)
	a := cmd.Args
	switch cmd.Op {
	case PTZRecallPreset:
		return bool(C.NDIlib_recv_ptz_recall_preset(r, C.int(cmd.Preset), C.float(a[0])))
	case PTZZoom:
		return bool(C.NDIlib_recv_ptz_zoom(r, C.float(a[0])))
	case PTZZoomSpeed:
		return bool(C.NDIlib_recv_ptz_zoom_speed(r, C.float(a[0])))
	case PTZPanTilt:
		return bool(C.NDIlib_recv_ptz_pan_tilt(r, C.float(a[0]), C.float(a[1])))
	case PTZPanTiltSpeed:
		return bool(C.NDIlib_recv_ptz_pan_tilt_speed(r, C.float(a[0]), C.float(a[1])))
	case PTZStorePreset:
		return bool(C.NDIlib_recv_ptz_store_preset(r, C.int(cmd.Preset)))
	case PTZAutoFocus:
		return bool(C.NDIlib_recv_ptz_auto_focus(r))
	case PTZFocus:
		return bool(C.NDIlib_recv_ptz_focus(r, C.float(a[0])))
	case PTZFocusSpeed:
		return bool(C.NDIlib_recv_ptz_focus_speed(r, C.float(a[0])))
	case PTZWhiteBalanceAuto:
		return bool(C.NDIlib_recv_ptz_white_balance_auto(r))
	case PTZWhiteBalanceIndoor:
		return bool(C.NDIlib_recv_ptz_white_balance_indoor(r))
	case PTZWhiteBalanceOutdoor:
		return bool(C.NDIlib_recv_ptz_white_balance_outdoor(r))
	case PTZWhiteBalanceOneshot:
		return bool(C.NDIlib_recv_ptz_white_balance_oneshot(r))
	case PTZWhiteBalanceManual:
		return bool(C.NDIlib_recv_ptz_white_balance_manual(r, C.float(a[0]), C.float(a[1])))
	case PTZExposureAuto:
		return bool(C.NDIlib_recv_ptz_exposure_auto(r))
	case PTZExposureManual:
		return bool(C.NDIlib_recv_ptz_exposure_manual(r, C.float(a[0])))
	case PTZExposureManualV2:
		return bool(C.NDIlib_recv_ptz_exposure_manual_v2(r, C.float(a[0]), C.float(a[1]), C.float(a[2])))
	default:
		return false
	}
}

func (s *sdkLibrary) SendCreate(settings SendCreate) SendInstance {
	strs := sendStrings{name: cstr(settings.Name), groups: cstr(settings.Groups)}
	create := C.NDIlib_send_create_t{
		p_ndi_name:  strs.name,
		p_groups:    strs.groups,
		clock_video: C.bool(settings.ClockVideo),
		clock_audio: C.bool(settings.ClockAudio),
	}
	inst := SendInstance(C.NDIlib_send_create(&create))
	if inst == nil {
		freeCStr(strs.name)
		freeCStr(strs.groups)
		return nil
	}
	s.pinned.Store(inst, strs)
	return inst
}

func (s *sdkLibrary) SendDestroy(inst SendInstance) {
	C.NDIlib_send_destroy(C.NDIlib_send_instance_t(inst))
	if strs, ok := s.pinned.LoadAndDelete(inst); ok {
		freeCStr(strs.name)
		freeCStr(strs.groups)
	}
	s.dropAsync(inst)
}

func (s *sdkLibrary) SendVideo(inst SendInstance, frame *VideoFrame) {
	var pin runtime.Pinner
	defer pin.Unpin()
	pinPtr(&pin, frame.Data)
	pinPtr(&pin, frame.Metadata)

	c := videoToC(frame)
	C.NDIlib_send_send_video_v2(C.NDIlib_send_instance_t(inst), &c)
}

func (s *sdkLibrary) SendVideoAsync(inst SendInstance, frame *VideoFrame) {
	if frame == nil {
		C.NDIlib_send_send_video_async_v2(C.NDIlib_send_instance_t(inst), nil)
		return
	}
	// The caller keeps frame.Data pinned until the next async call.
	var pin runtime.Pinner
	defer pin.Unpin()
	pinPtr(&pin, frame.Data)
	pinPtr(&pin, frame.Metadata)

	c := videoToC(frame)
	C.NDIlib_send_send_video_async_v2(C.NDIlib_send_instance_t(inst), &c)
}

func (s *sdkLibrary) SendAudio(inst SendInstance, frame *AudioFrame) {
	var pin runtime.Pinner
	defer pin.Unpin()
	pinPtr(&pin, frame.Data)
	pinPtr(&pin, frame.Metadata)

	c := audioToC(frame)
	C.NDIlib_send_send_audio_v3(C.NDIlib_send_instance_t(inst), &c)
}

func (s *sdkLibrary) SendMetadata(inst SendInstance, frame *MetadataFrame) {
	var pin runtime.Pinner
	defer pin.Unpin()
	pinPtr(&pin, frame.Data)

	c := metadataToC(frame)
	C.NDIlib_send_send_metadata(C.NDIlib_send_instance_t(inst), &c)
}

func (s *sdkLibrary) SendGetTally(inst SendInstance, tally *Tally, timeoutMs uint32) bool {
	var c C.NDIlib_tally_t
	changed := bool(C.NDIlib_send_get_tally(C.NDIlib_send_instance_t(inst), &c, C.uint32_t(timeoutMs)))
	tally.OnProgram = bool(c.on_program)
	tally.OnPreview = bool(c.on_preview)
	return changed
}

func (s *sdkLibrary) SendGetNoConnections(inst SendInstance, timeoutMs uint32) int {
	return int(C.NDIlib_send_get_no_connections(C.NDIlib_send_instance_t(inst), C.uint32_t(timeoutMs)))
}

func (s *sdkLibrary) SendClearConnectionMetadata(inst SendInstance) {
	C.NDIlib_send_clear_connection_metadata(C.NDIlib_send_instance_t(inst))
}

func (s *sdkLibrary) SendAddConnectionMetadata(inst SendInstance, frame *MetadataFrame) {
	var pin runtime.Pinner
	defer pin.Unpin()
	pinPtr(&pin, frame.Data)

	c := metadataToC(frame)
	C.NDIlib_send_add_connection_metadata(C.NDIlib_send_instance_t(inst), &c)
}

func (s *sdkLibrary) SendSetFailover(inst SendInstance, name, address string) {
	if name == "" && address == "" {
		C.NDIlib_send_set_failover(C.NDIlib_send_instance_t(inst), nil)
		return
	}
	n, a := cstr(name), cstr(address)
	defer freeCStr(n)
	defer freeCStr(a)

	src := C.NDIlib_source_t{p_ndi_name: n, p_url_address: a}
	C.NDIlib_send_set_failover(C.NDIlib_send_instance_t(inst), &src)
}

func (s *sdkLibrary) SendGetSourceName(inst SendInstance) (Source, bool) {
	p := C.NDIlib_send_get_source_name(C.NDIlib_send_instance_t(inst))
	if p == nil {
		return Source{}, false
	}
	return Source{Name: unsafe.Pointer(p.p_ndi_name), Address: unsafe.Pointer(p.p_url_address)}, true
}

func (s *sdkLibrary) FrameSyncCreate(recv RecvInstance) FrameSyncInstance {
	return FrameSyncInstance(C.NDIlib_framesync_create(C.NDIlib_recv_instance_t(recv)))
}

func (s *sdkLibrary) FrameSyncDestroy(inst FrameSyncInstance) {
	C.NDIlib_framesync_destroy(C.NDIlib_framesync_instance_t(inst))
}

func (s *sdkLibrary) FrameSyncCaptureVideo(inst FrameSyncInstance, frame *VideoFrame, fieldType int32) {
	var c C.NDIlib_video_frame_v2_t
	C.NDIlib_framesync_capture_video(C.NDIlib_framesync_instance_t(inst), &c, C.int(fieldType))
	videoFromC(&c, frame)
}

func (s *sdkLibrary) FrameSyncFreeVideo(inst FrameSyncInstance, frame *VideoFrame) {
	c := videoToC(frame)
	C.NDIlib_framesync_free_video(C.NDIlib_framesync_instance_t(inst), &c)
}

func (s *sdkLibrary) FrameSyncCaptureAudio(inst FrameSyncInstance, frame *AudioFrame, sampleRate, channels, samples int32) {
	var c C.NDIlib_audio_frame_v3_t
	C.NDIlib_framesync_capture_audio_v2(C.NDIlib_framesync_instance_t(inst), &c, C.int(sampleRate), C.int(channels), C.int(samples))
	audioFromC(&c, frame)
}

func (s *sdkLibrary) FrameSyncFreeAudio(inst FrameSyncInstance, frame *AudioFrame) {
	c := audioToC(frame)
	C.NDIlib_framesync_free_audio_v2(C.NDIlib_framesync_instance_t(inst), &c)
}

func (s *sdkLibrary) FrameSyncAudioQueueDepth(inst FrameSyncInstance) int {
	return int(C.NDIlib_framesync_audio_queue_depth(C.NDIlib_framesync_instance_t(inst)))
}

func pinPtr(pin *runtime.Pinner, p unsafe.Pointer) {
	if p != nil {
		pin.Pin(p)
	}
}
