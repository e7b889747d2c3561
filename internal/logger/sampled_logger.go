package logger

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Log categories for the hot paths of an NDI service.
const (
	// CategoryCapture covers per-poll capture outcomes ("no frame yet",
	// warm-up retries).
	CategoryCapture   = "capture"
	CategoryDiscovery = "discovery"
	CategorySnapshot  = "snapshot"
	CategoryAsyncSend = "async_send"
	CategoryStatus    = "status"
	CategoryDirectory = "directory"
)

// SampledLogger rate-limits chatty log categories: each category lets a
// burst through per interval and samples the rest. Categories without a
// sampler always log, and errors are never sampled.
type SampledLogger struct {
	base     Logger
	samplers *samplerSet
}

type samplerSet struct {
	mu sync.RWMutex
	m  map[string]*LogSampler
}

// LogSampler holds the rules and counters of one category.
type LogSampler struct {
	name       string
	interval   time.Duration
	burst      int64
	sampleRate float64

	lastLog  atomic.Int64
	inBurst  atomic.Int64
	sinceLog atomic.Int64

	total   atomic.Int64
	logged  atomic.Int64
	dropped atomic.Int64
}

func NewSampledLogger(base Logger) *SampledLogger {
	return &SampledLogger{
		base:     base,
		samplers: &samplerSet{m: make(map[string]*LogSampler)},
	}
}

// WithSampler configures category: up to burst messages per interval,
// then a sampleRate fraction of the rest (0 drops them all).
func (s *SampledLogger) WithSampler(category string, interval time.Duration, burst int, sampleRate float64) *SampledLogger {
	s.samplers.mu.Lock()
	defer s.samplers.mu.Unlock()
	s.samplers.m[category] = &LogSampler{
		name:       category,
		interval:   interval,
		burst:      int64(burst),
		sampleRate: sampleRate,
	}
	return s
}

func (s *SampledLogger) sampler(category string) *LogSampler {
	s.samplers.mu.RLock()
	defer s.samplers.mu.RUnlock()
	return s.samplers.m[category]
}

func (s *SampledLogger) shouldLog(category string) bool {
	sp := s.sampler(category)
	if sp == nil {
		return true
	}
	return sp.allow(time.Now().UnixNano())
}

func (sp *LogSampler) allow(now int64) bool {
	sp.total.Add(1)

	if now-sp.lastLog.Load() >= sp.interval.Nanoseconds() {
		sp.inBurst.Store(1)
		sp.lastLog.Store(now)
		sp.logged.Add(1)
		return true
	}

	if sp.inBurst.Load() < sp.burst {
		sp.inBurst.Add(1)
		sp.lastLog.Store(now)
		sp.logged.Add(1)
		return true
	}

	if sp.sampleRate <= 0 {
		sp.dropped.Add(1)
		return false
	}

	n := sp.sinceLog.Add(1)
	if float64(n)*sp.sampleRate >= 1.0 {
		sp.sinceLog.Store(0)
		sp.lastLog.Store(now)
		sp.logged.Add(1)
		return true
	}

	sp.dropped.Add(1)
	return false
}

// LogWithCategory logs msg at level when the category's sampler allows
// it, annotated with the sampler's counters.
func (s *SampledLogger) LogWithCategory(level logrus.Level, category, msg string, fields map[string]interface{}) {
	if !s.shouldLog(category) {
		return
	}
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["category"] = category
	if sp := s.sampler(category); sp != nil {
		if total := sp.total.Load(); total > 0 {
			fields["_sampling_total"] = total
			fields["_sampling_logged"] = sp.logged.Load()
			fields["_sampling_dropped"] = sp.dropped.Load()
		}
	}
	s.base.WithFields(fields).Log(level, msg)
}

func (s *SampledLogger) DebugWithCategory(category, msg string, fields map[string]interface{}) {
	s.LogWithCategory(logrus.DebugLevel, category, msg, fields)
}

func (s *SampledLogger) InfoWithCategory(category, msg string, fields map[string]interface{}) {
	s.LogWithCategory(logrus.InfoLevel, category, msg, fields)
}

func (s *SampledLogger) WarnWithCategory(category, msg string, fields map[string]interface{}) {
	s.LogWithCategory(logrus.WarnLevel, category, msg, fields)
}

// ErrorWithCategory always logs.
func (s *SampledLogger) ErrorWithCategory(category, msg string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["category"] = category
	s.base.WithFields(fields).Error(msg)
}

// SamplerStats holds statistics for a log sampler
type SamplerStats struct {
	Name            string  `json:"name"`
	TotalMessages   int64   `json:"total_messages"`
	SampledMessages int64   `json:"sampled_messages"`
	DroppedMessages int64   `json:"dropped_messages"`
	CurrentRate     float64 `json:"current_rate"`
}

func (s *SampledLogger) GetSamplerStats() map[string]SamplerStats {
	s.samplers.mu.RLock()
	defer s.samplers.mu.RUnlock()

	stats := make(map[string]SamplerStats, len(s.samplers.m))
	for name, sp := range s.samplers.m {
		st := SamplerStats{
			Name:            name,
			TotalMessages:   sp.total.Load(),
			SampledMessages: sp.logged.Load(),
			DroppedMessages: sp.dropped.Load(),
		}
		if st.TotalMessages > 0 {
			st.CurrentRate = float64(st.SampledMessages) / float64(st.TotalMessages)
		}
		stats[name] = st
	}
	return stats
}

// NewCaptureLogger returns a sampled logger tuned for capture loops.
func NewCaptureLogger(base Logger) *SampledLogger {
	return NewSampledLogger(base).
		// Polls run every few milliseconds while a source warms up.
		WithSampler(CategoryCapture, 100*time.Millisecond, 5, 0.05).
		WithSampler(CategoryAsyncSend, 100*time.Millisecond, 5, 0.1).
		WithSampler(CategoryDiscovery, time.Second, 3, 0.5).
		WithSampler(CategorySnapshot, 200*time.Millisecond, 5, 0.2).
		WithSampler(CategoryStatus, 500*time.Millisecond, 3, 1.0).
		WithSampler(CategoryDirectory, time.Second, 2, 0.5)
}

// Derived loggers share the parent's samplers.

func (s *SampledLogger) WithFields(fields map[string]interface{}) Logger {
	return &SampledLogger{base: s.base.WithFields(fields), samplers: s.samplers}
}

func (s *SampledLogger) WithField(key string, value interface{}) Logger {
	return &SampledLogger{base: s.base.WithField(key, value), samplers: s.samplers}
}

func (s *SampledLogger) WithError(err error) Logger {
	return &SampledLogger{base: s.base.WithError(err), samplers: s.samplers}
}

func (s *SampledLogger) Debug(args ...interface{}) { s.base.Debug(args...) }
func (s *SampledLogger) Info(args ...interface{})  { s.base.Info(args...) }
func (s *SampledLogger) Warn(args ...interface{})  { s.base.Warn(args...) }
func (s *SampledLogger) Error(args ...interface{}) { s.base.Error(args...) }
func (s *SampledLogger) Fatal(args ...interface{}) { s.base.Fatal(args...) }

func (s *SampledLogger) Log(level logrus.Level, args ...interface{}) { s.base.Log(level, args...) }

func (s *SampledLogger) Debugf(format string, args ...interface{}) { s.base.Debugf(format, args...) }
func (s *SampledLogger) Infof(format string, args ...interface{})  { s.base.Infof(format, args...) }
func (s *SampledLogger) Warnf(format string, args ...interface{})  { s.base.Warnf(format, args...) }
func (s *SampledLogger) Errorf(format string, args ...interface{}) { s.base.Errorf(format, args...) }
