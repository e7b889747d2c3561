package ndi

import (
	"strings"
	"sync"
	"time"

	"github.com/zsiec/ndikit/pkg/ndi/native"
)

// FinderOptions configures discovery.
type FinderOptions struct {
	// ShowLocalSources includes sources published on this machine.
	ShowLocalSources bool
	// Groups is a comma separated group list; empty searches the
	// default group.
	Groups string
	// ExtraIPs lists comma separated addresses to query directly, for
	// networks where multicast discovery does not reach.
	ExtraIPs string
}

// DefaultFinderOptions shows local sources in the default group.
func DefaultFinderOptions() FinderOptions {
	return FinderOptions{ShowLocalSources: true}
}

func (o FinderOptions) validate() error {
	if strings.IndexByte(o.Groups, 0) >= 0 || strings.IndexByte(o.ExtraIPs, 0) >= 0 {
		return newError(ErrorTypeInvalidCString, "finder groups or extra IPs contain a NUL byte")
	}
	return nil
}

// Finder discovers sources on the network.
type Finder struct {
	lib  native.Library
	m    *runtimeManager
	inst native.FindInstance
	once sync.Once
}

// NewFinder starts discovery.
func NewFinder(rt *Runtime, opts FinderOptions) (*Finder, error) {
	m, err := rt.retain()
	if err != nil {
		return nil, err
	}
	f, err := newFinder(rt.lib, m, opts)
	if err != nil {
		m.release()
		return nil, err
	}
	return f, nil
}

// newFinder takes over a runtime reference the caller already holds.
func newFinder(lib native.Library, m *runtimeManager, opts FinderOptions) (*Finder, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	inst := lib.FindCreate(native.FindCreate{
		ShowLocalSources: opts.ShowLocalSources,
		Groups:           opts.Groups,
		ExtraIPs:         opts.ExtraIPs,
	})
	if inst == nil {
		return nil, newError(ErrorTypeInitializationFailed, "failed to create finder")
	}
	return &Finder{lib: lib, m: m, inst: inst}, nil
}

// WaitForSources blocks until the source list changes or timeout
// elapses and reports whether it changed.
func (f *Finder) WaitForSources(timeout time.Duration) (bool, error) {
	ms, err := timeoutMs(timeout)
	if err != nil {
		return false, err
	}
	return f.lib.FindWaitForSources(f.inst, ms), nil
}

// CurrentSources returns the sources known right now.
func (f *Finder) CurrentSources() []Source {
	return f.convert(f.lib.FindGetCurrentSources(f.inst))
}

// Sources waits up to timeout for sources to appear and returns them.
func (f *Finder) Sources(timeout time.Duration) ([]Source, error) {
	ms, err := timeoutMs(timeout)
	if err != nil {
		return nil, err
	}
	return f.convert(f.lib.FindGetSources(f.inst, ms)), nil
}

// FindSources waits for a change, then returns whatever is known.
func (f *Finder) FindSources(timeout time.Duration) ([]Source, error) {
	if _, err := f.WaitForSources(timeout); err != nil {
		return nil, err
	}
	return f.CurrentSources(), nil
}

// FindSource waits up to timeout for a source whose name is name.
func (f *Finder) FindSource(name string, timeout time.Duration) (Source, error) {
	if _, err := timeoutMs(timeout); err != nil {
		return Source{}, err
	}
	deadline := time.Now().Add(timeout)
	for {
		for _, s := range f.CurrentSources() {
			if s.Name == name {
				return s, nil
			}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Source{}, &NoSourcesFoundError{Criteria: "name " + name}
		}
		if _, err := f.WaitForSources(remaining); err != nil {
			return Source{}, err
		}
	}
}

// Close stops discovery.
func (f *Finder) Close() {
	f.once.Do(func() {
		f.lib.FindDestroy(f.inst)
		f.m.release()
	})
}

func (f *Finder) convert(raw []native.Source) []Source {
	out := make([]Source, 0, len(raw))
	for i, r := range raw {
		s, err := sourceFromRaw(r)
		if err != nil {
			logger().WithError(err).WithField("index", i).Warn("Skipping invalid source")
			continue
		}
		out = append(out, s)
	}
	return out
}
