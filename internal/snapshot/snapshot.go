// Package snapshot captures still images from NDI sources on demand. It
// keeps one receiver per source warm between requests and closes it once
// the source has been idle for a while.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/zsiec/ndikit/internal/config"
	apperrors "github.com/zsiec/ndikit/internal/errors"
	"github.com/zsiec/ndikit/internal/logger"
	"github.com/zsiec/ndikit/internal/metrics"
	"github.com/zsiec/ndikit/pkg/ndi"
)

var errServiceClosed = fmt.Errorf("snapshot service: %w", ndi.ErrClosed)

const (
	defaultCaptureTimeout = 5 * time.Second
	defaultStatusTimeout  = 100 * time.Millisecond
)

// SourceLookup resolves source names; discovery.Service implements it.
type SourceLookup interface {
	Lookup(name string) (ndi.Source, bool)
	Sources() []ndi.Source
}

// Image is one encoded snapshot.
type Image struct {
	Source      string          `json:"source"`
	Format      ndi.ImageFormat `json:"-"`
	ContentType string          `json:"content_type"`
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	PixelFormat ndi.PixelFormat `json:"-"`
	Timecode    int64           `json:"timecode"`
	CapturedAt  time.Time       `json:"captured_at"`
	Data        []byte          `json:"-"`
}

// Outcome is the result of one source in CaptureAll.
type Outcome struct {
	Source string
	Image  *Image
	Err    error
}

// Status is the connection state of a source's snapshot receiver.
type Status struct {
	Source      string     `json:"source"`
	Connections int        `json:"connections"`
	Changed     bool       `json:"changed"`
	Tally       *ndi.Tally `json:"tally,omitempty"`
	LastUsed    time.Time  `json:"last_used"`
}

type entry struct {
	mu       sync.Mutex
	source   ndi.Source
	recv     *ndi.Receiver
	limiter  *rate.Limiter
	lastUsed atomic.Int64
	closed   bool
}

func (e *entry) touch(now time.Time) { e.lastUsed.Store(now.UnixNano()) }

// Service serves snapshots for discovered sources.
type Service struct {
	rt      *ndi.Runtime
	lookup  SourceLookup
	cfg     config.SnapshotConfig
	recvCfg config.ReceiverConfig
	timeout time.Duration
	logger  logger.Logger

	entries *xsync.MapOf[string, *entry]
	now     func() time.Time
	closed  atomic.Bool
}

// New returns a Service creating receivers on rt. captureTimeout bounds a
// single capture; zero uses five seconds.
func New(rt *ndi.Runtime, lookup SourceLookup, cfg config.SnapshotConfig, recvCfg config.ReceiverConfig, captureTimeout time.Duration, log logger.Logger) *Service {
	if captureTimeout <= 0 {
		captureTimeout = defaultCaptureTimeout
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = ndi.DefaultJPEGQuality
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &Service{
		rt:      rt,
		lookup:  lookup,
		cfg:     cfg,
		recvCfg: recvCfg,
		timeout: captureTimeout,
		logger:  log.WithField("component", "snapshot"),
		entries: xsync.NewMapOf[string, *entry](),
		now:     time.Now,
	}
}

// receiverOptions starts from the snapshot preset and applies the
// configured receiver name and bandwidth. The color format stays RGBA so
// frames encode without conversion.
func (s *Service) receiverOptions(src ndi.Source) ndi.ReceiverOptions {
	opts := ndi.SnapshotPreset(src)
	opts.Name = s.recvCfg.Name
	if s.recvCfg.Bandwidth != "" {
		if bw, err := ndi.ParseBandwidth(s.recvCfg.Bandwidth); err == nil {
			opts.Bandwidth = bw
		}
	}
	return opts
}

func (s *Service) entryFor(name string) (*entry, error) {
	if s.closed.Load() {
		return nil, errServiceClosed
	}
	src, ok := s.lookup.Lookup(name)
	if !ok {
		return nil, &ndi.NoSourcesFoundError{Criteria: name}
	}
	e, _ := s.entries.LoadOrCompute(name, func() *entry {
		return &entry{
			source:  src,
			limiter: rate.NewLimiter(rate.Limit(s.cfg.RatePerSecond), max(s.cfg.Burst, 1)),
		}
	})
	return e, nil
}

// lockEntry returns the live entry for name with its lock held. An entry
// evicted between lookup and lock is replaced by a fresh one. An entry
// inserted while Close was ranging is closed here, before any receiver
// is opened on it.
func (s *Service) lockEntry(name string) (*entry, error) {
	for {
		e, err := s.entryFor(name)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		if s.closed.Load() {
			e.closed = true
			e.mu.Unlock()
			s.entries.Delete(name)
			return nil, errServiceClosed
		}
		if !e.closed {
			return e, nil
		}
		e.mu.Unlock()
	}
}

// receiver returns the entry's receiver, connecting on first use. The
// caller holds e.mu.
func (s *Service) receiver(e *entry) (*ndi.Receiver, error) {
	if e.recv != nil {
		return e.recv, nil
	}
	recv, err := ndi.NewReceiver(s.rt, s.receiverOptions(e.source))
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(map[string]interface{}{
		"source":      e.source.Name,
		"receiver_id": recv.ID().String(),
	}).Debug("Snapshot receiver connected")
	e.recv = recv
	return recv, nil
}

// Capture grabs one frame from the named source and encodes it. quality
// only applies to JPEG; zero or less uses the configured quality.
func (s *Service) Capture(ctx context.Context, name string, format ndi.ImageFormat, quality int) (*Image, error) {
	start := s.now()
	img, status, err := s.capture(ctx, name, format, quality)
	metrics.RecordSnapshot(format.String(), status, s.now().Sub(start))
	return img, err
}

func (s *Service) capture(ctx context.Context, name string, format ndi.ImageFormat, quality int) (*Image, string, error) {
	e, err := s.lockEntry(name)
	if err != nil {
		return nil, "not_found", err
	}
	defer e.mu.Unlock()
	if !e.limiter.Allow() {
		return nil, "rate_limited", apperrors.NewRateLimitError("snapshot rate limit exceeded for " + name)
	}
	if quality <= 0 {
		quality = s.cfg.JPEGQuality
	}
	e.touch(s.now())

	recv, err := s.receiver(e)
	if err != nil {
		return nil, "error", err
	}
	frame, err := recv.CaptureVideo(ctx, s.timeout)
	if err != nil {
		if ndi.TypeOf(err) == ndi.ErrorTypeFrameTimeout {
			return nil, "timeout", err
		}
		return nil, "error", err
	}
	defer frame.Close()

	data, err := frame.Encode(format, quality)
	if err != nil {
		return nil, "error", err
	}

	s.logger.WithFields(map[string]interface{}{
		"source": name,
		"format": format.String(),
		"width":  frame.Width,
		"height": frame.Height,
		"size":   humanize.Bytes(uint64(len(data))),
	}).Debug("Snapshot captured")

	return &Image{
		Source:      name,
		Format:      format,
		ContentType: format.MIMEType(),
		Width:       frame.Width,
		Height:      frame.Height,
		PixelFormat: frame.Format,
		Timecode:    frame.Timecode,
		CapturedAt:  s.now().UTC(),
		Data:        data,
	}, "ok", nil
}

// CaptureAll captures every known source with at most MaxConcurrency
// captures in flight. Outcomes are sorted by source name.
func (s *Service) CaptureAll(ctx context.Context, format ndi.ImageFormat) []Outcome {
	sources := s.lookup.Sources()

	p := pool.NewWithResults[Outcome]().WithMaxGoroutines(s.cfg.MaxConcurrency)
	for _, src := range sources {
		name := src.Name
		p.Go(func() Outcome {
			if err := ctx.Err(); err != nil {
				return Outcome{Source: name, Err: err}
			}
			img, err := s.Capture(ctx, name, format, 0)
			return Outcome{Source: name, Image: img, Err: err}
		})
	}
	outcomes := p.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Source < outcomes[j].Source })
	return outcomes
}

// Status reports the connection count of the named source and whether a
// status change arrived within a short poll.
func (s *Service) Status(ctx context.Context, name string) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := s.lockEntry(name)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	e.touch(s.now())

	recv, err := s.receiver(e)
	if err != nil {
		return nil, err
	}

	status := &Status{Source: name, LastUsed: time.Unix(0, e.lastUsed.Load()).UTC()}
	change, err := recv.PollStatusChange(defaultStatusTimeout)
	if err != nil {
		return nil, err
	}
	if change != nil {
		status.Changed = true
		status.Tally = change.Tally
		if change.Connections != nil {
			status.Connections = *change.Connections
			return status, nil
		}
	}
	if status.Connections, err = recv.Connections(); err != nil {
		return nil, err
	}
	return status, nil
}

// Active returns the names of sources with a connected receiver.
func (s *Service) Active() []string {
	var names []string
	s.entries.Range(func(name string, e *entry) bool {
		e.mu.Lock()
		if e.recv != nil {
			names = append(names, name)
		}
		e.mu.Unlock()
		return true
	})
	sort.Strings(names)
	return names
}

// EvictIdle closes receivers unused for longer than ReceiverIdleTTL and
// returns how many it closed. A zero TTL keeps receivers forever.
func (s *Service) EvictIdle() int {
	ttl := s.cfg.ReceiverIdleTTL
	if ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-ttl).UnixNano()
	evicted := 0
	s.entries.Range(func(name string, e *entry) bool {
		if e.lastUsed.Load() > cutoff || !e.mu.TryLock() {
			return true
		}
		if e.lastUsed.Load() <= cutoff {
			s.entries.Delete(name)
			e.closed = true
			if e.recv != nil {
				e.recv.Close()
				e.recv = nil
				evicted++
				s.logger.WithField("source", name).Debug("Closed idle snapshot receiver")
			}
		}
		e.mu.Unlock()
		return true
	})
	return evicted
}

// Run evicts idle receivers every half TTL until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.ReceiverIdleTTL <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.cfg.ReceiverIdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.EvictIdle()
		}
	}
}

// Close disconnects every receiver. Later captures fail with ErrClosed.
func (s *Service) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.entries.Range(func(name string, e *entry) bool {
		e.mu.Lock()
		e.closed = true
		if e.recv != nil {
			e.recv.Close()
			e.recv = nil
		}
		e.mu.Unlock()
		s.entries.Delete(name)
		return true
	})
}
