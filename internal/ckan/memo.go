package ckan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ckan-monitor/ckan-monitor/internal/telemetry"
)

// Catalog is the set of catalog operations the rest of the application
// consumes. *Client and *CachedClient both satisfy it.
type Catalog interface {
	ListOrganizations(ctx context.Context) []string
	ListDatasets(ctx context.Context) []string
	ShowDataset(ctx context.Context, id string) *Dataset
	ShowOrganization(ctx context.Context, id string) *Organization
	SearchDatasets(ctx context.Context, rows, start int) *SearchResult
	CountDatasets(ctx context.Context) int
}

// Memoization TTLs. The dataset count changes rarely, so it is held far
// longer than the listing and detail endpoints.
const (
	listTTL  = 10 * time.Minute
	countTTL = time.Hour
)

type memoEntry struct {
	value   any
	expires time.Time
}

// Memo is a time-boxed memoization store keyed by action + arguments.
// Entries expire independently and are recomputed transparently; InvalidateAll
// drops everything at once (the manual-refresh path). Safe for concurrent use.
type Memo struct {
	mu      sync.RWMutex
	entries map[string]memoEntry
	now     func() time.Time // swappable for tests
}

// NewMemo creates an empty memoization store.
func NewMemo() *Memo {
	return &Memo{
		entries: make(map[string]memoEntry),
		now:     time.Now,
	}
}

func (m *Memo) get(key string) (any, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || m.now().After(e.expires) {
		return nil, false
	}
	return e.value, true
}

func (m *Memo) set(key string, v any, ttl time.Duration) {
	m.mu.Lock()
	m.entries[key] = memoEntry{value: v, expires: m.now().Add(ttl)}
	m.mu.Unlock()
}

// InvalidateAll removes every memoized entry so the next call of each
// operation goes back to the upstream API.
func (m *Memo) InvalidateAll() {
	m.mu.Lock()
	m.entries = make(map[string]memoEntry)
	m.mu.Unlock()
}

// Len reports the number of stored entries, expired or not.
func (m *Memo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Memoize returns the cached value for key when present and fresh, otherwise
// computes it via fn and stores it. Empty and nil results are cached too —
// a failed upstream call is deliberately not retried until the entry expires,
// matching the behaviour of caching the client's neutral return values.
func Memoize[T any](m *Memo, action, key string, ttl time.Duration, fn func() T) T {
	if v, ok := m.get(key); ok {
		if t, ok := v.(T); ok {
			telemetry.MemoHitsTotal.WithLabelValues(action).Inc()
			return t
		}
	}
	v := fn()
	m.set(key, v, ttl)
	return v
}

// CachedClient wraps a Catalog with per-operation memoization. Search pages
// are intentionally not memoized: the paginated bulk fetch has its own
// durable snapshot cache, and holding multi-megabyte pages here would only
// duplicate it.
type CachedClient struct {
	api  Catalog
	memo *Memo
}

// NewCachedClient wraps api with the supplied memoization store. The store is
// shared with the snapshot cache's manual-refresh path, which calls
// InvalidateAll on it.
func NewCachedClient(api Catalog, memo *Memo) *CachedClient {
	return &CachedClient{api: api, memo: memo}
}

// Memo exposes the underlying store for invalidation.
func (c *CachedClient) Memo() *Memo { return c.memo }

func (c *CachedClient) ListOrganizations(ctx context.Context) []string {
	return Memoize(c.memo, "organization_list", "organization_list", listTTL, func() []string {
		return c.api.ListOrganizations(ctx)
	})
}

func (c *CachedClient) ListDatasets(ctx context.Context) []string {
	return Memoize(c.memo, "package_list", "package_list", listTTL, func() []string {
		return c.api.ListDatasets(ctx)
	})
}

func (c *CachedClient) ShowDataset(ctx context.Context, id string) *Dataset {
	key := fmt.Sprintf("package_show:%s", id)
	return Memoize(c.memo, "package_show", key, listTTL, func() *Dataset {
		return c.api.ShowDataset(ctx, id)
	})
}

func (c *CachedClient) ShowOrganization(ctx context.Context, id string) *Organization {
	key := fmt.Sprintf("organization_show:%s", id)
	return Memoize(c.memo, "organization_show", key, listTTL, func() *Organization {
		return c.api.ShowOrganization(ctx, id)
	})
}

// SearchDatasets is a pass-through; see type comment.
func (c *CachedClient) SearchDatasets(ctx context.Context, rows, start int) *SearchResult {
	return c.api.SearchDatasets(ctx, rows, start)
}

func (c *CachedClient) CountDatasets(ctx context.Context) int {
	return Memoize(c.memo, "package_search_count", "package_search:count", countTTL, func() int {
		return c.api.CountDatasets(ctx)
	})
}
