package version

import (
	"fmt"
	"runtime"
)

// Build information, set with -ldflags "-X github.com/zsiec/ndikit/pkg/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
	OS        = runtime.GOOS
	Arch      = runtime.GOARCH
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

func GetInfo() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        OS,
		Arch:      Arch,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("NDIKit %s (commit: %s, built: %s, go: %s, os/arch: %s/%s)",
		i.Version, i.GitCommit, i.BuildTime, i.GoVersion, i.OS, i.Arch)
}

// Short is the form used in log fields.
func (i Info) Short() string {
	return fmt.Sprintf("NDIKit %s", i.Version)
}

// UserAgent identifies HTTP clients built from this binary.
func (i Info) UserAgent() string {
	return fmt.Sprintf("ndikit/%s (%s/%s)", i.Version, i.OS, i.Arch)
}
