package pipeline

import (
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/curateworld/eventscout/pkg/types"
)

// CacheEntry is one cached response. Entries are replaced wholesale on
// refresh, never mutated, so concurrent readers can share them safely.
type CacheEntry struct {
	Response  types.CollectResponse
	StoredAt  time.Time
	ExpiresAt time.Time
}

// ResultCache is the process-lifetime response cache: LRU-bounded,
// with a per-entry TTL. Empty results get a much shorter TTL so a
// provider hiccup does not pin an empty answer for the full window.
type ResultCache struct {
	entries     *lru.Cache[string, CacheEntry]
	ttlNonEmpty time.Duration
	ttlEmpty    time.Duration
	now         func() time.Time
}

// NewResultCache creates a cache with the given bound and TTLs.
func NewResultCache(size int, ttlNonEmpty, ttlEmpty time.Duration) (*ResultCache, error) {
	if size <= 0 {
		size = 256
	}
	entries, err := lru.New[string, CacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	return &ResultCache{
		entries:     entries,
		ttlNonEmpty: ttlNonEmpty,
		ttlEmpty:    ttlEmpty,
		now:         time.Now,
	}, nil
}

// CacheKey derives the lookup key for a query and its options.
func CacheKey(q types.Query, opts types.CollectOptions) string {
	return strings.ToLower(strings.Join([]string{
		strings.TrimSpace(q.Category),
		strings.TrimSpace(q.Location),
		strings.TrimSpace(q.DateWindow),
		opts.Fingerprint(),
	}, "|"))
}

// Get returns the cached response for key if present and not expired.
// Expired entries are removed on read.
func (c *ResultCache) Get(key string) (types.CollectResponse, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return types.CollectResponse{}, false
	}
	if c.now().After(entry.ExpiresAt) {
		c.entries.Remove(key)
		return types.CollectResponse{}, false
	}
	return entry.Response, true
}

// Put stores a response under key. The TTL depends on whether the
// response actually carries events.
func (c *ResultCache) Put(key string, resp types.CollectResponse) {
	ttl := c.ttlNonEmpty
	if len(resp.Events) == 0 {
		ttl = c.ttlEmpty
	}
	now := c.now()
	c.entries.Add(key, CacheEntry{
		Response:  resp,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	})
}

// Len reports the live entry count, expired entries included until
// they are read or evicted.
func (c *ResultCache) Len() int { return c.entries.Len() }

// Purge drops every entry.
func (c *ResultCache) Purge() { c.entries.Purge() }
