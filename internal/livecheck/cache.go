package livecheck

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/obentoo/tapcheck/internal/common/logger"
)

// ErrCacheCorrupted is returned when the cache file cannot be parsed
var ErrCacheCorrupted = errors.New("cache file is corrupted")

// DefaultCacheTTL is the default time-to-live for cache entries (1 hour)
const DefaultCacheTTL = time.Hour

// CacheFileName is the name of the cache file inside the cache directory.
const CacheFileName = "cache.json"

// CacheEntry is a remembered successful resolution.
type CacheEntry struct {
	Version  string    `json:"version"`
	RawMatch string    `json:"raw_match,omitempty"`
	CachedAt time.Time `json:"cached_at"`
	// Fingerprint identifies the source the version was resolved from
	Fingerprint string `json:"fingerprint"`
}

type cacheFile struct {
	Entries map[string]CacheEntry `json:"entries"`
}

// Cache persists resolved versions with TTL-based expiration.
// It is safe for concurrent use.
type Cache struct {
	entries map[string]CacheEntry
	ttl     time.Duration
	path    string
	mu      sync.RWMutex
	// nowFunc allows injecting time for testing
	nowFunc func() time.Time
}

// CacheOption is a functional option for configuring Cache
type CacheOption func(*Cache)

// WithTTL sets a custom TTL for the cache
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithNowFunc sets a custom time function for testing
func WithNowFunc(fn func() time.Time) CacheOption {
	return func(c *Cache) {
		c.nowFunc = fn
	}
}

// OpenCache loads the cache stored in dir, creating dir if needed.
// A missing or corrupted file yields an empty cache that is rewritten
// on the next store.
func OpenCache(dir string, opts ...CacheOption) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &Cache{
		entries: make(map[string]CacheEntry),
		ttl:     DefaultCacheTTL,
		path:    filepath.Join(dir, CacheFileName),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("ignoring cache %s: %v", c.path, err)
		c.entries = make(map[string]CacheEntry)
	}
	return c, nil
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	if cf.Entries != nil {
		c.entries = cf.Entries
	}
	return nil
}

// Lookup returns the entry for name if it is fresh and was resolved
// from the source identified by fingerprint.
func (c *Cache) Lookup(name, fingerprint string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[name]
	if !ok || e.Fingerprint != fingerprint || c.expired(e) {
		return CacheEntry{}, false
	}
	return e, true
}

func (c *Cache) expired(e CacheEntry) bool {
	return c.nowFunc().Sub(e.CachedAt) >= c.ttl
}

// Store records a resolution and saves the cache to disk.
func (c *Cache) Store(name, fingerprint string, v ResolvedVersion) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[name] = CacheEntry{
		Version:     v.Value,
		RawMatch:    v.RawMatch,
		CachedAt:    c.nowFunc(),
		Fingerprint: fingerprint,
	}
	return c.saveLocked()
}

// saveLocked writes the cache atomically. Caller must hold the write lock.
func (c *Cache) saveLocked() error {
	data, err := json.MarshalIndent(cacheFile{Entries: c.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// Clear removes all entries and saves the empty cache.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]CacheEntry)
	return c.saveLocked()
}

// Prune drops expired entries and returns how many were removed.
func (c *Cache) Prune() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for name, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, name)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, c.saveLocked()
}

// CachedVersion is a cache entry with its package name and freshness.
type CachedVersion struct {
	Name string
	CacheEntry
	Expired bool
}

// List returns all entries sorted by package name.
func (c *Cache) List() []CachedVersion {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]CachedVersion, 0, len(c.entries))
	for name, e := range c.entries {
		out = append(out, CachedVersion{Name: name, CacheEntry: e, Expired: c.expired(e)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of entries in the cache.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Fingerprint identifies a source for cache invalidation. The declared
// version takes part only when the source URL is derived from it.
func Fingerprint(desc PackageDescriptor, src Source) string {
	key := struct {
		Source   Source `json:"source"`
		Download string `json:"download,omitempty"`
		Version  string `json:"version,omitempty"`
	}{Source: src}
	if src.URL == URLFromDownload {
		key.Download = desc.DownloadURLTemplate
		key.Version = desc.DeclaredVersion
	}
	data, _ := json.Marshal(key)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// CachingResolver serves fresh cached versions and stores successful
// resolutions. Failures are never cached.
type CachingResolver struct {
	next  VersionResolver
	cache *Cache
	// force skips lookups but still stores results
	force bool
}

// NewCachingResolver wraps next with cache. With force set, every call
// goes upstream.
func NewCachingResolver(next VersionResolver, cache *Cache, force bool) *CachingResolver {
	return &CachingResolver{next: next, cache: cache, force: force}
}

// Resolve implements VersionResolver.
func (r *CachingResolver) Resolve(ctx context.Context, desc PackageDescriptor, src Source) (ResolvedVersion, error) {
	fp := Fingerprint(desc, src)
	if !r.force {
		if e, ok := r.cache.Lookup(desc.Name, fp); ok {
			logger.Debug("%s: using cached version %s", desc.Name, e.Version)
			return ResolvedVersion{Value: e.Version, RawMatch: e.RawMatch, FromCache: true}, nil
		}
	}

	v, err := r.next.Resolve(ctx, desc, src)
	if err != nil {
		return ResolvedVersion{}, err
	}
	if err := r.cache.Store(desc.Name, fp, v); err != nil {
		logger.Warn("%s: failed to update cache: %v", desc.Name, err)
	}
	return v, nil
}
