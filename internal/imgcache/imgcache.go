// Package imgcache implements the tiered blob cache that resolves image
// locators (URLs) to bytes: memory tier, then disk tier, then network, with
// concurrent requests for the same locator coalesced into a single fetch.
//
// Tier behavior:
//   - Memory: count- and byte-bounded LRU; dropped entirely on a low-memory
//     signal; the disk tier is untouched.
//   - Disk: content-addressed by a SHA-256 of the locator, written
//     best-effort in the background, garbage-collected by age at startup.
//   - Network: one real fetch per locator at a time (dedup.Group); oversized
//     payloads pass through an injected downscale transform before caching.
//
// Resolve never returns an error: on any failure the caller gets a miss and
// the failure is logged and counted.
package imgcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/tbourn/go-diary-sync/internal/cache"
	"github.com/tbourn/go-diary-sync/internal/dedup"
)

// imgRequests counts resolutions by outcome tier. Observability only; the
// counters never influence eviction.
var imgRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "imagecache_requests_total",
		Help: "Image cache resolutions by outcome (memory, disk, network, coalesced, failure).",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(imgRequests)
}

// Fetcher retrieves the raw bytes behind a locator over the network.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, locator string) ([]byte, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, locator string) ([]byte, error) {
	return f(ctx, locator)
}

// Transform is the opaque downscaling hook applied to fetched payloads
// before caching. A nil transform caches payloads verbatim.
type Transform func(data []byte) ([]byte, error)

// Stats is a snapshot of the cache's outcome counters.
type Stats struct {
	MemoryHits     uint64
	DiskHits       uint64
	NetworkFetches uint64
	CoalescedWaits uint64
	Failures       uint64
}

// Options configures a Cache. Zero fields fall back to defaults.
type Options struct {
	MaxMemoryEntries int           // default 100
	MaxMemoryBytes   int64         // default 50 MiB
	DiskTTL          time.Duration // default 30 days
	PrefetchWorkers  int64         // default 10
	Transform        Transform
	Logger           zerolog.Logger
}

// Cache is the tiered image cache. All methods are safe for concurrent use.
type Cache struct {
	mem       *cache.Costed[string, []byte]
	dir       string
	fetcher   Fetcher
	transform Transform
	group     dedup.Group[[]byte]
	sem       *semaphore.Weighted
	ttl       time.Duration
	log       zerolog.Logger

	memoryHits     atomic.Uint64
	diskHits       atomic.Uint64
	networkFetches atomic.Uint64
	coalescedWaits atomic.Uint64
	failures       atomic.Uint64
}

// New creates a Cache rooted at dir and kicks off an asynchronous sweep of
// disk entries older than the TTL. The sweep never blocks construction.
func New(dir string, fetcher Fetcher, opts Options) (*Cache, error) {
	if opts.MaxMemoryEntries <= 0 {
		opts.MaxMemoryEntries = 100
	}
	if opts.MaxMemoryBytes <= 0 {
		opts.MaxMemoryBytes = 50 << 20
	}
	if opts.DiskTTL <= 0 {
		opts.DiskTTL = 30 * 24 * time.Hour
	}
	if opts.PrefetchWorkers <= 0 {
		opts.PrefetchWorkers = 10
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	c := &Cache{
		mem:       cache.NewCosted[string, []byte](opts.MaxMemoryEntries, opts.MaxMemoryBytes, nil),
		dir:       dir,
		fetcher:   fetcher,
		transform: opts.Transform,
		sem:       semaphore.NewWeighted(opts.PrefetchWorkers),
		ttl:       opts.DiskTTL,
		log:       opts.Logger.With().Str("component", "imgcache").Logger(),
	}
	go c.sweep()
	return c, nil
}

// Key returns the stable content address for a locator.
func Key(locator string) string {
	sum := sha256.Sum256([]byte(locator))
	return hex.EncodeToString(sum[:])
}

// Resolve returns the bytes for locator, consulting memory, then any
// in-flight fetch for the same locator, then disk, then the network. It
// reports found=false on any failure and never returns an error.
func (c *Cache) Resolve(ctx context.Context, locator string) (data []byte, found bool) {
	key := Key(locator)

	if b, ok := c.mem.Get(key); ok {
		c.memoryHits.Add(1)
		imgRequests.WithLabelValues("memory").Inc()
		return b, true
	}

	b, shared, err := c.group.Do(key, func() ([]byte, error) {
		return c.load(ctx, key, locator)
	})
	if shared {
		c.coalescedWaits.Add(1)
		imgRequests.WithLabelValues("coalesced").Inc()
	}
	if err != nil {
		c.failures.Add(1)
		imgRequests.WithLabelValues("failure").Inc()
		c.log.Debug().Err(err).Str("locator", locator).Msg("image resolve failed")
		return nil, false
	}
	return b, true
}

// load is the single-flight body: disk tier, then network. It populates the
// memory tier synchronously and the disk tier in the background.
func (c *Cache) load(ctx context.Context, key, locator string) ([]byte, error) {
	path := filepath.Join(c.dir, key)
	if b, err := os.ReadFile(path); err == nil {
		c.diskHits.Add(1)
		imgRequests.WithLabelValues("disk").Inc()
		c.mem.Add(key, b, int64(len(b)))
		return b, nil
	}

	b, err := c.fetcher.Fetch(ctx, locator)
	if err != nil {
		return nil, err
	}
	if c.transform != nil {
		if scaled, terr := c.transform(b); terr == nil {
			b = scaled
		} else {
			c.log.Debug().Err(terr).Str("locator", locator).Msg("downscale failed, caching original")
		}
	}
	c.networkFetches.Add(1)
	imgRequests.WithLabelValues("network").Inc()

	c.mem.Add(key, b, int64(len(b)))
	go c.writeDisk(path, b)
	return b, nil
}

// writeDisk persists a payload best-effort: write to a temp name, then
// rename. Failures are logged and otherwise ignored; shared state is never
// left half-written.
func (c *Cache) writeDisk(path string, b []byte) {
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		c.log.Debug().Err(err).Msg("disk tier write failed")
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		c.log.Debug().Err(err).Msg("disk tier rename failed")
	}
}

// Prefetch warms the cache for the given locators in the background with
// bounded concurrency. It returns immediately; failures are swallowed.
// Locators already resident in memory are skipped without a fetch slot.
func (c *Cache) Prefetch(ctx context.Context, locators []string) {
	for _, locator := range locators {
		if _, ok := c.mem.Peek(Key(locator)); ok {
			continue
		}
		loc := locator
		go func() {
			if err := c.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer c.sem.Release(1)
			c.Resolve(ctx, loc)
		}()
	}
}

// DropMemory empties the memory tier in response to a low-memory signal.
// The disk tier is untouched.
func (c *Cache) DropMemory() {
	c.mem.Purge()
}

// Invalidate removes a locator from both tiers.
func (c *Cache) Invalidate(locator string) {
	key := Key(locator)
	c.mem.Remove(key)
	_ = os.Remove(filepath.Join(c.dir, key))
}

// Stats returns a snapshot of the outcome counters.
func (c *Cache) Stats() Stats {
	return Stats{
		MemoryHits:     c.memoryHits.Load(),
		DiskHits:       c.diskHits.Load(),
		NetworkFetches: c.networkFetches.Load(),
		CoalescedWaits: c.coalescedWaits.Load(),
		Failures:       c.failures.Load(),
	}
}

// sweep deletes disk entries older than the TTL. Runs once, asynchronously,
// at construction.
func (c *Cache) sweep() {
	cutoff := time.Now().Add(-c.ttl)
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.log.Debug().Err(err).Msg("disk tier sweep skipped")
		return
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(filepath.Join(c.dir, e.Name())) == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		c.log.Info().Int("removed", removed).Msg("disk tier sweep")
	}
}
