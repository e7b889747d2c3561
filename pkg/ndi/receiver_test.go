package ndi

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/ndikit/pkg/ndi/native"
)

func TestReceiverOptions_Presets(t *testing.T) {
	src := NewSource("CAM (1)", "10.0.0.2:5961")
	tests := []struct {
		name      string
		opts      ReceiverOptions
		color     ColorFormat
		bandwidth Bandwidth
		fields    bool
	}{
		{"default", DefaultReceiverOptions(src), ColorBGRXBGRA, BandwidthHighest, true},
		{"snapshot", SnapshotPreset(src), ColorRGBXRGBA, BandwidthHighest, false},
		{"high quality", HighQualityPreset(src), ColorBest, BandwidthHighest, true},
		{"monitoring", MonitoringPreset(src), ColorFastest, BandwidthLowest, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.color, tt.opts.Color)
			assert.Equal(t, tt.bandwidth, tt.opts.Bandwidth)
			assert.Equal(t, tt.fields, tt.opts.AllowVideoFields)
			assert.Equal(t, src, tt.opts.Source)
			assert.NoError(t, tt.opts.Validate())
		})
	}
}

func TestReceiverOptions_Validate(t *testing.T) {
	valid := DefaultReceiverOptions(NewSource("CAM (1)", ""))
	tests := []struct {
		name   string
		mutate func(*ReceiverOptions)
		want   *Error
	}{
		{"empty source", func(o *ReceiverOptions) { o.Source.Name = " " }, ErrInvalidConfiguration},
		{"nul in source", func(o *ReceiverOptions) { o.Source.Name = "CAM\x00" }, ErrInvalidCString},
		{"nul in name", func(o *ReceiverOptions) { o.Name = "x\x00" }, ErrInvalidCString},
		{"unknown color", func(o *ReceiverOptions) { o.Color = 7 }, ErrInvalidConfiguration},
		{"unknown bandwidth", func(o *ReceiverOptions) { o.Bandwidth = 55 }, ErrInvalidConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)
			err := opts.Validate()
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParseColorFormatAndBandwidth(t *testing.T) {
	c, err := ParseColorFormat("RGBX_RGBA")
	require.NoError(t, err)
	assert.Equal(t, ColorRGBXRGBA, c)
	assert.Equal(t, "rgbx_rgba", c.String())
	_, err = ParseColorFormat("sepia")
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))

	b, err := ParseBandwidth("metadata_only")
	require.NoError(t, err)
	assert.Equal(t, BandwidthMetadataOnly, b)
	assert.Equal(t, "Bandwidth(3)", Bandwidth(3).String())
	_, err = ParseBandwidth("max")
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
}

func TestNewReceiver(t *testing.T) {
	lb, rt := newTestRuntime(t)

	_, err := NewReceiver(rt, ReceiverOptions{})
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
	assert.Zero(t, lb.Calls("RecvCreate"))

	r, err := NewReceiver(rt, MonitoringPreset(NewSource(testSource, "")))
	require.NoError(t, err)
	assert.NotEqual(t, r.ID().String(), "")
	assert.Equal(t, testSource, r.Source().Name)
	assert.Equal(t, 1, lb.Connections(testSource))

	r.Close()
	r.Close()
	assert.Equal(t, int64(1), lb.Calls("RecvDestroy"))
	assert.Zero(t, lb.Connections(testSource))
}

func TestReceiver_PollStatusChange(t *testing.T) {
	lb, rt := newTestRuntime(t)
	lb.AddSource(testSource, "10.0.0.2:5961")
	r := newTestReceiver(t, rt, testSource)

	status, err := r.PollStatusChange(5 * time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, status)

	lb.Script(testSource, native.StatusChangeStep())
	status, err = r.PollStatusChange(time.Second)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.True(t, status.Other)
	require.NotNil(t, status.Connections)
	assert.Equal(t, 1, *status.Connections)
	assert.Nil(t, status.Tally)

	lb.Script(testSource, native.ErrorStep())
	_, err = r.PollStatusChange(time.Second)
	assert.True(t, errors.Is(err, ErrCaptureFailed))
}

func TestReceiver_TallyAndMetadata(t *testing.T) {
	lb, rt := newTestRuntime(t)
	r := newTestReceiver(t, rt, testSource)

	require.NoError(t, r.SetTally(Tally{OnPreview: true}))
	require.NoError(t, r.SendMetadata(NewMetadataFrame("<ptz_preset/>")))
	assert.Equal(t, []string{"<ptz_preset/>"}, lb.Inbox(testSource))
	assert.True(t, errors.Is(r.SendMetadata(NewMetadataFrame("\x00")), ErrInvalidCString))

	n, err := r.Connections()
	require.NoError(t, err)
	assert.Zero(t, n, "the source is not announced")

	r.Close()
	assert.True(t, errors.Is(r.SetTally(Tally{}), ErrClosed))
	_, err = r.Connections()
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestReceiver_PTZ(t *testing.T) {
	lb, rt := newTestRuntime(t, native.WithPTZ())
	r := newTestReceiver(t, rt, testSource)
	require.True(t, r.PTZIsSupported())

	require.NoError(t, r.PTZRecallPreset(3, 0.5))
	require.NoError(t, r.PTZZoom(0.25))
	require.NoError(t, r.PTZZoomSpeed(-1))
	require.NoError(t, r.PTZPanTilt(0.1, -0.2))
	require.NoError(t, r.PTZPanTiltSpeed(0.5, 0.5))
	require.NoError(t, r.PTZStorePreset(7))
	require.NoError(t, r.PTZAutoFocus())
	require.NoError(t, r.PTZFocus(0.9))
	require.NoError(t, r.PTZFocusSpeed(0.1))
	require.NoError(t, r.PTZWhiteBalanceAuto())
	require.NoError(t, r.PTZWhiteBalanceIndoor())
	require.NoError(t, r.PTZWhiteBalanceOutdoor())
	require.NoError(t, r.PTZWhiteBalanceOneshot())
	require.NoError(t, r.PTZWhiteBalanceManual(0.4, 0.6))
	require.NoError(t, r.PTZExposureAuto())
	require.NoError(t, r.PTZExposureManual(0.3))
	require.NoError(t, r.PTZExposureManualV2(0.1, 0.2, 0.3))

	cmds := lb.PTZCommands(testSource)
	require.Len(t, cmds, 17)
	assert.Equal(t, native.PTZCommand{Op: native.PTZRecallPreset, Preset: 3, Args: [3]float32{0.5}}, cmds[0])
	assert.Equal(t, native.PTZCommand{Op: native.PTZPanTilt, Args: [3]float32{0.1, -0.2}}, cmds[3])
	assert.Equal(t, native.PTZCommand{Op: native.PTZStorePreset, Preset: 7}, cmds[5])
	assert.Equal(t, native.PTZCommand{Op: native.PTZExposureManualV2, Args: [3]float32{0.1, 0.2, 0.3}}, cmds[16])
}

func TestReceiver_PTZUnsupported(t *testing.T) {
	_, rt := newTestRuntime(t)
	r := newTestReceiver(t, rt, testSource)
	assert.False(t, r.PTZIsSupported())

	err := r.PTZZoom(0.5)
	assert.True(t, errors.Is(err, ErrPTZCommandFailed), "got %v", err)
	assert.Contains(t, err.Error(), testSource)
}
