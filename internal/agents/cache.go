package agents

import (
	"context"
	"sync"
	"time"

	. "github.com/wayfarelabs/faregate/internal/metrics"
	"github.com/wayfarelabs/faregate/internal/settings"
)

// DefaultCacheTTL bounds how stale cached tenant settings may be.
const DefaultCacheTTL = 30 * time.Second

// FetchFunc loads settings from the external store. Returning
// (nil, nil) means the tenant has nothing configured.
type FetchFunc func(ctx context.Context, tenantID string) (*settings.TenantSettings, error)

type cacheEntry struct {
	settings  *settings.TenantSettings
	fetchedAt time.Time
}

// SettingsCache is a TTL cache over the settings store. A nil result
// is cached too, so unconfigured tenants don't hit the store on every
// request. Concurrent misses for the same tenant may each invoke the
// fetch; the fetch is idempotent and the TTL short, so no single-flight
// coalescing is done.
type SettingsCache struct {
	ttl     time.Duration
	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewSettingsCache creates a cache. A non-positive ttl uses
// DefaultCacheTTL.
func NewSettingsCache(ttl time.Duration) *SettingsCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &SettingsCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns cached settings when fresh, otherwise fetches and caches
// the result. Fetch errors are returned and never cached.
func (c *SettingsCache) Get(ctx context.Context, tenantID string, fetch FetchFunc) (*settings.TenantSettings, error) {
	c.mu.Lock()
	entry, ok := c.entries[tenantID]
	c.mu.Unlock()

	if ok && time.Since(entry.fetchedAt) < c.ttl {
		MetricHit("settings", "cache")
		return entry.settings, nil
	}
	MetricMiss("settings", "cache")

	// Fetch outside the lock so one slow store call doesn't stall
	// every other tenant.
	fetched, err := fetch(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[tenantID] = cacheEntry{settings: fetched, fetchedAt: time.Now()}
	c.mu.Unlock()

	return fetched, nil
}

// Invalidate drops one tenant's cached entry. Call after a settings
// write so the next request sees the new values.
func (c *SettingsCache) Invalidate(tenantID string) {
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.mu.Unlock()
}

// ClearAll drops every cached entry.
func (c *SettingsCache) ClearAll() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
