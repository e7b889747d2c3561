// Package discovery keeps a continuously refreshed view of the NDI
// sources on the network and hands every pass to publishers such as the
// Redis source directory.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/zsiec/ndikit/internal/config"
	"github.com/zsiec/ndikit/internal/logger"
	"github.com/zsiec/ndikit/internal/metrics"
	"github.com/zsiec/ndikit/pkg/ndi"
)

// Publisher receives the full source list after every discovery pass.
type Publisher interface {
	Publish(ctx context.Context, sources []ndi.Source) error
}

// Service runs discovery in the background and serves the latest result.
type Service struct {
	finder     *ndi.Finder
	cfg        config.DiscoveryConfig
	logger     logger.Logger
	sampled    *logger.SampledLogger
	publishers []Publisher

	mu      sync.RWMutex
	sources []ndi.Source
	byName  map[string]ndi.Source

	lastRefresh atomic.Int64
	passes      atomic.Int64
}

// New starts a finder on rt. The finder holds its own runtime reference.
func New(rt *ndi.Runtime, opts ndi.FinderOptions, cfg config.DiscoveryConfig, log logger.Logger, publishers ...Publisher) (*Service, error) {
	finder, err := ndi.NewFinder(rt, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create finder: %w", err)
	}
	log = log.WithField("component", "discovery")
	return &Service{
		finder:     finder,
		cfg:        cfg,
		logger:     log,
		sampled:    logger.NewCaptureLogger(log),
		publishers: publishers,
		byName:     make(map[string]ndi.Source),
	}, nil
}

// Run refreshes immediately and then every interval until ctx ends.
// Failed passes are logged and retried on the next tick.
func (s *Service) Run(ctx context.Context) error {
	s.logger.WithFields(map[string]interface{}{
		"interval":     s.cfg.Interval.String(),
		"wait_timeout": s.cfg.WaitTimeout.String(),
	}).Info("Starting source discovery")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Warn("Discovery pass failed")
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Stopping source discovery")
			return nil
		case <-ticker.C:
		}
	}
}

// Refresh runs one discovery pass: it waits up to the configured wait
// timeout for a change, stores the result and publishes it.
func (s *Service) Refresh(ctx context.Context) ([]ndi.Source, error) {
	found, err := s.finder.FindSources(s.cfg.WaitTimeout)
	if err != nil {
		return nil, err
	}
	sortSources(found)

	s.mu.Lock()
	added, removed := Diff(s.sources, found)
	s.sources = found
	s.byName = make(map[string]ndi.Source, len(found))
	for _, src := range found {
		s.byName[src.Name] = src
	}
	s.mu.Unlock()

	s.lastRefresh.Store(time.Now().UnixNano())
	s.passes.Add(1)
	metrics.SetSourcesDiscovered(len(found))

	for _, src := range added {
		s.logger.WithFields(map[string]interface{}{"source": src.Name, "address": src.Address.String()}).Info("Source appeared")
	}
	for _, src := range removed {
		s.logger.WithField("source", src.Name).Info("Source disappeared")
	}
	if len(added) == 0 && len(removed) == 0 {
		s.sampled.DebugWithCategory(logger.CategoryDiscovery, "Sources unchanged", map[string]interface{}{
			"count": len(found),
		})
	}

	return found, s.publish(ctx, found)
}

func (s *Service) publish(ctx context.Context, sources []ndi.Source) error {
	if len(s.publishers) == 0 {
		return nil
	}
	p := pool.New().WithErrors().WithContext(ctx)
	for _, pub := range s.publishers {
		p.Go(func(ctx context.Context) error {
			return pub.Publish(ctx, sources)
		})
	}
	if err := p.Wait(); err != nil {
		return fmt.Errorf("failed to publish sources: %w", err)
	}
	return nil
}

// Sources returns the result of the latest pass, sorted by name.
func (s *Service) Sources() []ndi.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ndi.Source(nil), s.sources...)
}

// Lookup finds a source from the latest pass by its full name.
func (s *Service) Lookup(name string) (ndi.Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.byName[name]
	return src, ok
}

// LastRefresh is the time of the latest successful pass, or the zero time
// before the first one.
func (s *Service) LastRefresh() time.Time {
	ns := s.lastRefresh.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Interval is the configured refresh interval.
func (s *Service) Interval() time.Duration { return s.cfg.Interval }

func (s *Service) Passes() int64 { return s.passes.Load() }

// Close stops the finder.
func (s *Service) Close() {
	s.finder.Close()
}

// Diff compares two source lists by name.
func Diff(prev, next []ndi.Source) (added, removed []ndi.Source) {
	before := make(map[string]struct{}, len(prev))
	for _, src := range prev {
		before[src.Name] = struct{}{}
	}
	after := make(map[string]struct{}, len(next))
	for _, src := range next {
		after[src.Name] = struct{}{}
		if _, ok := before[src.Name]; !ok {
			added = append(added, src)
		}
	}
	for _, src := range prev {
		if _, ok := after[src.Name]; !ok {
			removed = append(removed, src)
		}
	}
	return added, removed
}

func sortSources(sources []ndi.Source) {
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
}
