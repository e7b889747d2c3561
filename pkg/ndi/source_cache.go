package ndi

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultSourceCacheTTL is used when NewSourceCache is given no TTL.
const DefaultSourceCacheTTL = 5 * time.Minute

// SourceCache memoizes host lookups. Discovery is slow, and a source's
// address rarely changes, so repeated lookups for the same host are served
// from memory until the entry expires or is invalidated.
type SourceCache struct {
	rt    *Runtime
	m     *runtimeManager
	ttl   time.Duration
	cache *ristretto.Cache[string, Source]
	keys  *xsync.MapOf[string, struct{}]
	once  sync.Once
}

// NewSourceCache holds a runtime reference until Close.
func NewSourceCache(rt *Runtime, ttl time.Duration) (*SourceCache, error) {
	if ttl <= 0 {
		ttl = DefaultSourceCacheTTL
	}
	m, err := rt.retain()
	if err != nil {
		return nil, err
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, Source]{
		NumCounters: 1e4,
		MaxCost:     1 << 12,
		BufferItems: 64,
	})
	if err != nil {
		m.release()
		return nil, wrapError(ErrorTypeInvalidConfiguration, err, "failed to create source cache")
	}
	return &SourceCache{
		rt:    rt,
		m:     m,
		ttl:   ttl,
		cache: cache,
		keys:  xsync.NewMapOf[string, struct{}](),
	}, nil
}

// FindByHost returns the first source whose name or address contains
// host. On a miss it runs a discovery pass hinted at host and waits up to
// timeout.
func (c *SourceCache) FindByHost(host string, timeout time.Duration) (Source, error) {
	if s, ok := c.cache.Get(host); ok {
		return s, nil
	}

	if err := c.m.acquire(); err != nil {
		return Source{}, err
	}
	f, err := newFinder(c.rt.lib, c.m, FinderOptions{ShowLocalSources: true, ExtraIPs: host})
	if err != nil {
		c.m.release()
		return Source{}, err
	}
	defer f.Close()

	if _, err := f.WaitForSources(timeout); err != nil {
		return Source{}, err
	}
	for _, s := range f.CurrentSources() {
		if s.MatchesHost(host) {
			c.cache.SetWithTTL(host, s, 1, c.ttl)
			c.cache.Wait()
			c.keys.Store(host, struct{}{})
			return s, nil
		}
	}
	return Source{}, &NoSourcesFoundError{Criteria: "host " + host}
}

// Invalidate drops the entry for host.
func (c *SourceCache) Invalidate(host string) {
	c.cache.Del(host)
	c.keys.Delete(host)
}

func (c *SourceCache) Clear() {
	c.cache.Clear()
	c.keys.Clear()
}

// Len counts live entries.
func (c *SourceCache) Len() int {
	n := 0
	c.keys.Range(func(host string, _ struct{}) bool {
		if _, ok := c.cache.Get(host); ok {
			n++
		} else {
			c.keys.Delete(host)
		}
		return true
	})
	return n
}

func (c *SourceCache) IsEmpty() bool { return c.Len() == 0 }

// Close empties the cache and releases its runtime reference.
func (c *SourceCache) Close() {
	c.once.Do(func() {
		c.cache.Close()
		c.keys.Clear()
		c.m.release()
	})
}
