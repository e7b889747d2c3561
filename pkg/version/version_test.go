package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.Equal(t, Version, info.Version)
	assert.Equal(t, GitCommit, info.GitCommit)
	assert.Equal(t, BuildTime, info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
}

func TestInfoFormatting(t *testing.T) {
	info := Info{
		Version:   "1.2.0",
		GitCommit: "abc123",
		BuildTime: "2026-01-01",
		GoVersion: "go1.23.0",
		OS:        "linux",
		Arch:      "arm64",
	}

	tests := []struct {
		name string
		got  string
		want []string
	}{
		{"string", info.String(), []string{"NDIKit 1.2.0", "commit: abc123", "built: 2026-01-01", "go: go1.23.0", "os/arch: linux/arm64"}},
		{"short", info.Short(), []string{"NDIKit 1.2.0"}},
		{"user agent", info.UserAgent(), []string{"ndikit/1.2.0", "linux/arm64"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, w := range tt.want {
				assert.Contains(t, tt.got, w)
			}
		})
	}
	assert.Equal(t, "NDIKit 1.2.0", info.Short())
}
