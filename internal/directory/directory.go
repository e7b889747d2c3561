// Package directory publishes discovered NDI sources to Redis so other
// services can resolve sources without running discovery themselves.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/redis/go-redis/v9"

	"github.com/zsiec/ndikit/internal/config"
	"github.com/zsiec/ndikit/internal/logger"
	"github.com/zsiec/ndikit/internal/metrics"
	"github.com/zsiec/ndikit/pkg/ndi"
)

const (
	publishAttempts = 3
	publishDelay    = 100 * time.Millisecond
)

// ErrNotFound is returned by Get for unknown or expired sources.
var ErrNotFound = errors.New("source not found in directory")

// Entry is the stored form of a source.
type Entry struct {
	Name    string    `json:"name"`
	Address string    `json:"address,omitempty"`
	Host    string    `json:"host,omitempty"`
	Port    uint16    `json:"port,omitempty"`
	SeenAt  time.Time `json:"seen_at"`
}

// NewEntry converts a discovered source.
func NewEntry(src ndi.Source, seenAt time.Time) Entry {
	e := Entry{Name: src.Name, Address: src.Address.String(), SeenAt: seenAt.UTC()}
	if host, ok := src.Host(); ok {
		e.Host = host
	}
	if port, ok := src.Address.Port(); ok {
		e.Port = port
	}
	return e
}

// RedisDirectory keeps the current source list in a hash at
// <prefix>:sources and one expiring key per source at
// <prefix>:source:<name>.
type RedisDirectory struct {
	client redis.UniversalClient
	logger logger.Logger
	prefix string
	ttl    time.Duration
	delay  time.Duration
}

// NewClient builds a Redis client from config. A single address gives a
// plain client; several give a cluster client.
func NewClient(cfg config.RedisConfig) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addresses,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})
}

func New(client redis.UniversalClient, cfg config.DirectoryConfig, log logger.Logger) *RedisDirectory {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ndikit"
	}
	return &RedisDirectory{
		client: client,
		logger: log.WithField("component", "directory"),
		prefix: prefix,
		ttl:    ttl,
		delay:  publishDelay,
	}
}

func (d *RedisDirectory) hashKey() string { return d.prefix + ":sources" }

func (d *RedisDirectory) sourceKey(name string) string { return d.prefix + ":source:" + name }

// Publish replaces the directory with sources. The write is one MULTI
// block, retried on failure.
func (d *RedisDirectory) Publish(ctx context.Context, sources []ndi.Source) error {
	now := time.Now()
	fields := make(map[string]interface{}, len(sources))
	for _, src := range sources {
		data, err := json.Marshal(NewEntry(src, now))
		if err != nil {
			return fmt.Errorf("failed to marshal source %q: %w", src.Name, err)
		}
		fields[src.Name] = data
	}

	err := retry.Do(
		func() error {
			_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, d.hashKey())
				if len(fields) == 0 {
					return nil
				}
				pipe.HSet(ctx, d.hashKey(), fields)
				pipe.Expire(ctx, d.hashKey(), d.ttl)
				for name, data := range fields {
					pipe.Set(ctx, d.sourceKey(name), data, d.ttl)
				}
				return nil
			})
			return err
		},
		retry.Attempts(publishAttempts),
		retry.Delay(d.delay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			d.logger.WithError(err).WithField("attempt", n+1).Warn("Retrying directory publish")
		}),
	)
	if err != nil {
		metrics.RecordDirectoryPublish("error")
		return fmt.Errorf("failed to publish %d sources: %w", len(sources), err)
	}

	metrics.RecordDirectoryPublish("ok")
	d.logger.WithField("count", len(sources)).Debug("Published sources")
	return nil
}

// List returns the published sources sorted by name.
func (d *RedisDirectory) List(ctx context.Context) ([]Entry, error) {
	raw, err := d.client.HGetAll(ctx, d.hashKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for name, data := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			d.logger.WithError(err).WithField("source", name).Warn("Skipping malformed directory entry")
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Get returns one source, or ErrNotFound once its key has expired.
func (d *RedisDirectory) Get(ctx context.Context, name string) (Entry, error) {
	data, err := d.client.Get(ctx, d.sourceKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return Entry{}, fmt.Errorf("failed to get source: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("failed to unmarshal source: %w", err)
	}
	return e, nil
}

// Remove deletes one source. Removing an unknown source is not an error.
func (d *RedisDirectory) Remove(ctx context.Context, name string) error {
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, d.hashKey(), name)
		pipe.Del(ctx, d.sourceKey(name))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove source: %w", err)
	}
	d.logger.WithField("source", name).Info("Source removed from directory")
	return nil
}
