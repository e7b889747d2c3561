package main

import (
	"fmt"

	"github.com/zsiec/ndikit/internal/config"
	"github.com/zsiec/ndikit/pkg/ndi"
	"github.com/zsiec/ndikit/pkg/ndi/native"
)

// Test pattern published by the loopback backend.
const (
	demoSourceName    = "NDIKIT (Test Pattern)"
	demoSourceAddress = "127.0.0.1:5961"
	demoWidth         = 320
	demoHeight        = 180
)

// openRuntime acquires the runtime named by cfg.Backend.
func openRuntime(cfg config.NDIConfig) (*ndi.Runtime, error) {
	switch cfg.Backend {
	case "sdk":
		return ndi.AcquireDefault()
	case "loopback":
		return ndi.Acquire(newDemoLoopback())
	default:
		return nil, fmt.Errorf("unknown NDI backend %q", cfg.Backend)
	}
}

// newDemoLoopback is an in-process library with one source that always
// has a BGRA frame ready.
func newDemoLoopback() *native.Loopback {
	lb := native.NewLoopback(native.WithHost("127.0.0.1"))
	lb.AddSource(demoSourceName, demoSourceAddress)
	lb.SetIdle(demoSourceName, native.VideoStep(demoWidth, demoHeight, native.FourCCBGRA, demoWidth*4))
	return lb
}

func finderOptions(cfg config.FinderConfig) ndi.FinderOptions {
	return ndi.FinderOptions{
		ShowLocalSources: cfg.ShowLocalSources,
		Groups:           cfg.Groups,
		ExtraIPs:         cfg.ExtraIPs,
	}
}
