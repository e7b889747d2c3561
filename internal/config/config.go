package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	NDI       NDIConfig       `mapstructure:"ndi"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
}

type ServerConfig struct {
	// HTTP/1.1 and HTTP/2
	HTTPPort int `mapstructure:"http_port"`

	// HTTP/3, only started when enabled and both TLS files are set
	EnableHTTP3 bool   `mapstructure:"enable_http3"`
	HTTP3Port   int    `mapstructure:"http3_port"`
	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// QUIC specific
	MaxIncomingStreams    int64         `mapstructure:"max_incoming_streams"`
	MaxIncomingUniStreams int64         `mapstructure:"max_incoming_uni_streams"`
	MaxIdleTimeout        time.Duration `mapstructure:"max_idle_timeout"`
}

// HTTP3Enabled reports whether the QUIC listener should run.
func (s *ServerConfig) HTTP3Enabled() bool {
	return s.EnableHTTP3 && s.TLSCertFile != "" && s.TLSKeyFile != ""
}

type RedisConfig struct {
	Addresses    []string      `mapstructure:"addresses"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json or text
	Output     string `mapstructure:"output"`   // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

type NDIConfig struct {
	// Backend is "sdk" for the NDI runtime or "loopback" for the
	// in-process library.
	Backend        string         `mapstructure:"backend"`
	Finder         FinderConfig   `mapstructure:"finder"`
	Receiver       ReceiverConfig `mapstructure:"receiver"`
	CaptureTimeout time.Duration  `mapstructure:"capture_timeout"`
	SourceCacheTTL time.Duration  `mapstructure:"source_cache_ttl"`
}

type FinderConfig struct {
	ShowLocalSources bool   `mapstructure:"show_local_sources"`
	Groups           string `mapstructure:"groups"`
	ExtraIPs         string `mapstructure:"extra_ips"`
}

type ReceiverConfig struct {
	Color     string `mapstructure:"color"`
	Bandwidth string `mapstructure:"bandwidth"`
	Name      string `mapstructure:"name"`
}

type DiscoveryConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
}

type DirectoryConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type SnapshotConfig struct {
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	Burst           int           `mapstructure:"burst"`
	JPEGQuality     int           `mapstructure:"jpeg_quality"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	ReceiverIdleTTL time.Duration `mapstructure:"receiver_idle_ttl"`
}

// Load reads configPath, or only defaults and environment when it is
// empty. Environment variables use the NDIKIT_ prefix with dots replaced
// by underscores, e.g. NDIKIT_NDI_BACKEND.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variable override
	v.SetEnvPrefix("NDIKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.enable_http3", false)
	v.SetDefault("server.http3_port", 8443)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_incoming_streams", 1000)
	v.SetDefault("server.max_incoming_uni_streams", 100)
	v.SetDefault("server.max_idle_timeout", "30s")

	// Redis defaults
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)

	// NDI defaults
	v.SetDefault("ndi.backend", "sdk")
	v.SetDefault("ndi.finder.show_local_sources", true)
	v.SetDefault("ndi.finder.groups", "")
	v.SetDefault("ndi.finder.extra_ips", "")
	v.SetDefault("ndi.receiver.color", "rgbx_rgba")
	v.SetDefault("ndi.receiver.bandwidth", "highest")
	v.SetDefault("ndi.receiver.name", "ndikit")
	v.SetDefault("ndi.capture_timeout", "5s")
	v.SetDefault("ndi.source_cache_ttl", "5m")

	// Discovery defaults
	v.SetDefault("discovery.interval", "5s")
	v.SetDefault("discovery.wait_timeout", "1s")

	// Directory defaults
	v.SetDefault("directory.enabled", false)
	v.SetDefault("directory.key_prefix", "ndikit")
	v.SetDefault("directory.ttl", "30s")

	// Snapshot defaults
	v.SetDefault("snapshot.rate_per_second", 2.0)
	v.SetDefault("snapshot.burst", 4)
	v.SetDefault("snapshot.jpeg_quality", 90)
	v.SetDefault("snapshot.max_concurrency", 4)
	v.SetDefault("snapshot.receiver_idle_ttl", "1m")
}
