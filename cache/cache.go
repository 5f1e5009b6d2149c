// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cache

import (
	"errors"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-httpd/api"
)

// CachedResponse is what the cache hands out. It is returned by value; the
// byte slices it references are never mutated after Store.
type CachedResponse struct {
	Body        []byte
	ContentType string
	// ModTime is the file modification time the body was read at. When set
	// on Store it must still match the file, otherwise the store is skipped.
	ModTime time.Time
	// Encoded holds precompressed bodies keyed by content-coding.
	Encoded map[string][]byte
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// AssetCache is safe for concurrent use. Its mutex covers map access only;
// file system calls happen outside it.
type AssetCache struct {
	mu      sync.Mutex
	entries map[string]CachedResponse

	stat   func(string) (fs.FileInfo, error)
	logger api.Logger
	minLen int

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Option configures an AssetCache.
type Option func(*AssetCache)

// WithCompressMin sets the smallest compressible body that gets encoded
// variants. Zero or less disables precompression.
func WithCompressMin(n int) Option {
	return func(c *AssetCache) { c.minLen = n }
}

// WithStatFunc replaces os.Stat, mainly for tests.
func WithStatFunc(stat func(string) (fs.FileInfo, error)) Option {
	return func(c *AssetCache) { c.stat = stat }
}

// DefaultCompressMin is the default WithCompressMin threshold.
const DefaultCompressMin = 256

// New creates an empty cache. logger receives store failures.
func New(logger api.Logger, opts ...Option) *AssetCache {
	c := &AssetCache{
		entries: make(map[string]CachedResponse),
		stat:    os.Stat,
		logger:  logger,
		minLen:  DefaultCompressMin,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Lookup returns the cached response for path if the file still exists and
// its modification time matches. A vanished file evicts the entry.
func (c *AssetCache) Lookup(path string) (CachedResponse, bool) {
	c.mu.Lock()
	entry, ok := c.entries[path]
	c.mu.Unlock()
	if !ok {
		c.misses.Add(1)
		return CachedResponse{}, false
	}

	fi, err := c.stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		c.evict(path, entry.ModTime)
		c.misses.Add(1)
		return CachedResponse{}, false
	case err != nil, !fi.ModTime().Equal(entry.ModTime):
		c.misses.Add(1)
		return CachedResponse{}, false
	}
	c.hits.Add(1)
	return entry, true
}

// evict removes path unless a newer store replaced it meanwhile.
func (c *AssetCache) evict(path string, mtime time.Time) {
	c.mu.Lock()
	if cur, ok := c.entries[path]; ok && cur.ModTime.Equal(mtime) {
		delete(c.entries, path)
	}
	c.mu.Unlock()
}

// Store records resp for path, replacing any previous entry. If the file
// cannot be stat'ed, or changed since resp.ModTime, the store is skipped.
func (c *AssetCache) Store(path string, resp CachedResponse) {
	fi, err := c.stat(path)
	if err != nil {
		c.logf("[cache] store %s skipped: %v", path, err)
		return
	}
	if !resp.ModTime.IsZero() && !resp.ModTime.Equal(fi.ModTime()) {
		c.logf("[cache] store %s skipped: modified while reading", path)
		return
	}
	resp.ModTime = fi.ModTime()
	if resp.Encoded == nil && c.minLen > 0 && len(resp.Body) >= c.minLen && Compressible(resp.ContentType) {
		resp.Encoded = encodeVariants(resp.Body)
	}

	c.mu.Lock()
	c.entries[path] = resp
	c.mu.Unlock()
}

// Len returns the number of entries, stale ones included.
func (c *AssetCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the entry count and hit/miss counters.
func (c *AssetCache) Stats() Stats {
	return Stats{Entries: c.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func (c *AssetCache) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// RegisterProbes exposes entry and hit/miss counts as debug probes.
func (c *AssetCache) RegisterProbes(ctl api.Control) {
	ctl.RegisterDebugProbe("cache.entries", func() any { return c.Len() })
	ctl.RegisterDebugProbe("cache.hits", func() any { return c.hits.Load() })
	ctl.RegisterDebugProbe("cache.misses", func() any { return c.misses.Load() })
}
