package health

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RuntimeStatus is the part of ndi.Runtime the runtime checker reads.
type RuntimeStatus interface {
	IsRunning() bool
	IsSupportedCPU() bool
	Version() (string, error)
}

// RuntimeChecker reports down when the NDI runtime is not running and
// degraded when the CPU lacks the instructions the SDK wants.
type RuntimeChecker struct {
	rt RuntimeStatus
}

func NewRuntimeChecker(rt RuntimeStatus) *RuntimeChecker {
	return &RuntimeChecker{rt: rt}
}

func (c *RuntimeChecker) Name() string { return "ndi_runtime" }

func (c *RuntimeChecker) Check(ctx context.Context) error {
	if !c.rt.IsRunning() {
		return errors.New("NDI runtime is not running")
	}
	if !c.rt.IsSupportedCPU() {
		return Degraded("CPU is not supported by the NDI SDK")
	}
	return nil
}

func (c *RuntimeChecker) Details() map[string]interface{} {
	details := map[string]interface{}{
		"running":       c.rt.IsRunning(),
		"supported_cpu": c.rt.IsSupportedCPU(),
	}
	if v, err := c.rt.Version(); err == nil {
		details["version"] = v
	}
	return details
}

// DiscoveryStatus is the part of discovery.Service the discovery checker
// reads.
type DiscoveryStatus interface {
	LastRefresh() time.Time
	Interval() time.Duration
}

// staleFactor is how many missed intervals make discovery stale.
const staleFactor = 3

// DiscoveryChecker reports down when the last discovery pass is older
// than three intervals, and degraded before the first pass completes.
type DiscoveryChecker struct {
	d   DiscoveryStatus
	now func() time.Time
}

func NewDiscoveryChecker(d DiscoveryStatus) *DiscoveryChecker {
	return &DiscoveryChecker{d: d, now: time.Now}
}

func (c *DiscoveryChecker) Name() string { return "ndi_discovery" }

func (c *DiscoveryChecker) Check(ctx context.Context) error {
	last := c.d.LastRefresh()
	if last.IsZero() {
		return Degraded("no discovery pass has completed yet")
	}
	limit := staleFactor * c.d.Interval()
	if age := c.now().Sub(last); age > limit {
		return fmt.Errorf("last discovery pass was %s ago (limit %s)", age.Round(time.Millisecond), limit)
	}
	return nil
}

func (c *DiscoveryChecker) Details() map[string]interface{} {
	last := c.d.LastRefresh()
	if last.IsZero() {
		return nil
	}
	return map[string]interface{}{"last_refresh": last.UTC().Format(time.RFC3339Nano)}
}
