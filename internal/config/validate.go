package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/zsiec/ndikit/pkg/ndi"
)

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	// Redis is only dialled for the directory.
	if c.Directory.Enabled {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis config: %w", err)
		}
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.NDI.Validate(); err != nil {
		return fmt.Errorf("ndi config: %w", err)
	}

	if err := c.Discovery.Validate(); err != nil {
		return fmt.Errorf("discovery config: %w", err)
	}

	if err := c.Directory.Validate(); err != nil {
		return fmt.Errorf("directory config: %w", err)
	}

	if err := c.Snapshot.Validate(); err != nil {
		return fmt.Errorf("snapshot config: %w", err)
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if s.HTTPPort < 1 || s.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", s.HTTPPort)
	}

	if s.ReadTimeout < 0 || s.WriteTimeout < 0 || s.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}

	if !s.EnableHTTP3 {
		return nil
	}

	if s.HTTP3Port < 1 || s.HTTP3Port > 65535 {
		return fmt.Errorf("invalid HTTP3 port: %d", s.HTTP3Port)
	}

	if s.HTTP3Port == s.HTTPPort {
		return fmt.Errorf("HTTP and HTTP3 ports must be different")
	}

	if s.TLSCertFile == "" {
		return fmt.Errorf("TLS certificate file is required for HTTP/3")
	}

	if s.TLSKeyFile == "" {
		return fmt.Errorf("TLS key file is required for HTTP/3")
	}

	// Check if certificate files exist
	if _, err := os.Stat(s.TLSCertFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS certificate file not found: %s", s.TLSCertFile)
	}

	if _, err := os.Stat(s.TLSKeyFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS key file not found: %s", s.TLSKeyFile)
	}

	if s.MaxIncomingStreams <= 0 {
		return fmt.Errorf("max_incoming_streams must be positive")
	}

	if s.MaxIncomingUniStreams <= 0 {
		return fmt.Errorf("max_incoming_uni_streams must be positive")
	}

	return nil
}

func (r *RedisConfig) Validate() error {
	if len(r.Addresses) == 0 {
		return fmt.Errorf("at least one Redis address is required")
	}

	if r.DB < 0 {
		return fmt.Errorf("invalid Redis database number: %d", r.DB)
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}

	if r.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive")
	}

	if r.MinIdleConns < 0 {
		return fmt.Errorf("min_idle_conns cannot be negative")
	}

	if r.MinIdleConns > r.PoolSize {
		return fmt.Errorf("min_idle_conns cannot be greater than pool_size")
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"panic": true,
		"fatal": true,
		"error": true,
		"warn":  true,
		"info":  true,
		"debug": true,
		"trace": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 {
			return fmt.Errorf("max_backups cannot be negative")
		}
		if l.MaxAge < 0 {
			return fmt.Errorf("max_age cannot be negative")
		}
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.Port < 1 || m.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", m.Port)
		}

		if m.Path == "" {
			return fmt.Errorf("metrics path cannot be empty")
		}
	}

	return nil
}

func (n *NDIConfig) Validate() error {
	switch n.Backend {
	case "sdk", "loopback":
	default:
		return fmt.Errorf("backend must be 'sdk' or 'loopback', got %q", n.Backend)
	}

	if strings.ContainsRune(n.Finder.Groups, 0) || strings.ContainsRune(n.Finder.ExtraIPs, 0) {
		return fmt.Errorf("finder groups and extra_ips cannot contain NUL bytes")
	}

	if _, err := ndi.ParseColorFormat(n.Receiver.Color); err != nil {
		return fmt.Errorf("receiver color: %w", err)
	}

	if _, err := ndi.ParseBandwidth(n.Receiver.Bandwidth); err != nil {
		return fmt.Errorf("receiver bandwidth: %w", err)
	}

	if n.CaptureTimeout <= 0 || n.CaptureTimeout > ndi.MaxTimeout {
		return fmt.Errorf("capture_timeout must be between 1ms and %s", ndi.MaxTimeout)
	}

	if n.SourceCacheTTL < 0 {
		return fmt.Errorf("source_cache_ttl cannot be negative")
	}

	return nil
}

// FinderOptions converts the finder section.
func (n *NDIConfig) FinderOptions() ndi.FinderOptions {
	return ndi.FinderOptions{
		ShowLocalSources: n.Finder.ShowLocalSources,
		Groups:           n.Finder.Groups,
		ExtraIPs:         n.Finder.ExtraIPs,
	}
}

// ReceiverOptions converts the receiver section for src. The section
// must have passed Validate.
func (n *NDIConfig) ReceiverOptions(src ndi.Source) ndi.ReceiverOptions {
	opts := ndi.SnapshotPreset(src)
	if c, err := ndi.ParseColorFormat(n.Receiver.Color); err == nil {
		opts.Color = c
	}
	if b, err := ndi.ParseBandwidth(n.Receiver.Bandwidth); err == nil {
		opts.Bandwidth = b
	}
	opts.Name = n.Receiver.Name
	return opts
}

func (d *DiscoveryConfig) Validate() error {
	if d.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	if d.WaitTimeout < 0 {
		return fmt.Errorf("wait_timeout cannot be negative")
	}

	if d.WaitTimeout > d.Interval {
		return fmt.Errorf("wait_timeout (%s) cannot exceed interval (%s)", d.WaitTimeout, d.Interval)
	}

	return nil
}

func (d *DirectoryConfig) Validate() error {
	if !d.Enabled {
		return nil
	}

	if d.KeyPrefix == "" {
		return fmt.Errorf("key_prefix cannot be empty")
	}

	if d.TTL <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	return nil
}

func (s *SnapshotConfig) Validate() error {
	if s.RatePerSecond <= 0 {
		return fmt.Errorf("rate_per_second must be positive")
	}

	if s.Burst <= 0 {
		return fmt.Errorf("burst must be positive")
	}

	if s.JPEGQuality < 1 || s.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100")
	}

	if s.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be positive")
	}

	if s.ReceiverIdleTTL <= 0 {
		return fmt.Errorf("receiver_idle_ttl must be positive")
	}

	return nil
}
