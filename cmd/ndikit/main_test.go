package main

import (
	"bytes"
	"context"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/ndikit/internal/config"
	"github.com/zsiec/ndikit/pkg/ndi"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestOpenRuntime(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		wantErr bool
	}{
		{"loopback", "loopback", false},
		{"unknown", "gstreamer", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, err := openRuntime(config.NDIConfig{Backend: tt.backend})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer rt.Close()
			assert.True(t, rt.IsRunning())

			finder, err := ndi.NewFinder(rt, finderOptions(config.FinderConfig{ShowLocalSources: true}))
			require.NoError(t, err)
			defer finder.Close()
			src, err := finder.FindSource(demoSourceName, time.Second)
			require.NoError(t, err)
			assert.Equal(t, demoSourceAddress, src.Address.String())
		})
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "NDIKit")
}

func TestSourcesCmd(t *testing.T) {
	out, err := execute(t, "--backend", "loopback", "sources", "--wait", "200ms")
	require.NoError(t, err)
	assert.Contains(t, out, demoSourceName)
	assert.Contains(t, out, "5961")
}

func TestSourcesCmd_ByHost(t *testing.T) {
	out, err := execute(t, "--backend", "loopback", "sources", "--host", "127.0.0.1", "--wait", "200ms")
	require.NoError(t, err)
	assert.Contains(t, out, demoSourceName)
}

func TestBackendFlag_Invalid(t *testing.T) {
	_, err := execute(t, "--backend", "bogus", "sources")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend")
}

func TestSnapshotCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pattern.png")
	out, err := execute(t, "--backend", "loopback", "snapshot", demoSourceName, "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "320x180")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, demoWidth, cfg.Width)
	assert.Equal(t, demoHeight, cfg.Height)
}

func TestSnapshotCmd_All(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "--backend", "loopback", "snapshot", "--all", "--format", "jpeg", "-o", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "NDIKIT_Test_Pattern_.jpg"))
}

func TestSnapshotCmd_Args(t *testing.T) {
	_, err := execute(t, "--backend", "loopback", "snapshot")
	assert.Error(t, err)

	_, err = execute(t, "--backend", "loopback", "snapshot", "--all", "extra")
	assert.Error(t, err)
}

func TestSnapshotFormat(t *testing.T) {
	tests := []struct {
		flag    string
		output  string
		want    ndi.ImageFormat
		wantErr bool
	}{
		{"", "", ndi.ImagePNG, false},
		{"", "still.JPG", ndi.ImageJPEG, false},
		{"", "still.jpeg", ndi.ImageJPEG, false},
		{"png", "still.jpg", ndi.ImagePNG, false},
		{"jpeg", "", ndi.ImageJPEG, false},
		{"gif", "", 0, true},
	}
	for _, tt := range tests {
		got, err := snapshotFormat(tt.flag, tt.output)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "flag %q output %q", tt.flag, tt.output)
	}
}

func TestSnapshotFileName(t *testing.T) {
	assert.Equal(t, "STUDIO_CAM_1_.png", snapshotFileName("STUDIO (CAM 1)", ndi.ImagePNG))
	assert.Equal(t, "host.local_a-b.jpg", snapshotFileName("host.local/a-b", ndi.ImageJPEG))
}

func TestSendPattern(t *testing.T) {
	rt, err := openRuntime(config.NDIConfig{Backend: "loopback"})
	require.NoError(t, err)
	defer rt.Close()

	opts := sendOptions{name: "Bars", width: 16, height: 8, fps: 500, frames: 3}
	stats, err := sendPattern(context.Background(), rt, opts, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.frames.Load())
	assert.Equal(t, int64(3*16*8*4), stats.bytes.Load())
}

func TestSendPattern_InvalidFPS(t *testing.T) {
	rt, err := openRuntime(config.NDIConfig{Backend: "loopback"})
	require.NoError(t, err)
	defer rt.Close()

	_, err = sendPattern(context.Background(), rt, sendOptions{name: "Bars", width: 16, height: 8}, io.Discard)
	assert.Error(t, err)
}

func TestDrawBars(t *testing.T) {
	const w, h = 14, 2
	buf := make([]byte, w*h*4)
	drawBars(buf, w, h, 3)

	// Column 0 is the first bar, column 3 carries the marker.
	assert.Equal(t, colorBars[0][:], buf[0:4])
	assert.Equal(t, []byte{255, 255, 255, 255}, buf[12:16])
	assert.Equal(t, colorBars[len(colorBars)-1][:], buf[(w-1)*4:w*4])
	// Every row matches the first.
	assert.Equal(t, buf[:w*4], buf[w*4:])
}
