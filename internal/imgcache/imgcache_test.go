package imgcache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	data  map[string][]byte
	err   error
	gate  chan struct{} // when non-nil, Fetch blocks until closed
}

func (f *countingFetcher) Fetch(_ context.Context, locator string) ([]byte, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[locator]++
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	if b, ok := f.data[locator]; ok {
		return b, nil
	}
	return nil, errors.New("no such image")
}

func (f *countingFetcher) count(locator string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[locator]
}

func newTestCache(t *testing.T, f Fetcher, opts Options) *Cache {
	t.Helper()
	opts.Logger = zerolog.Nop()
	c, err := New(t.TempDir(), f, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// waitForFile polls for the background disk write to land.
func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("file %s never appeared", path)
}

func TestResolve_NetworkThenMemoryHit(t *testing.T) {
	f := &countingFetcher{data: map[string][]byte{"u": []byte("img-bytes")}}
	c := newTestCache(t, f, Options{})

	b, ok := c.Resolve(context.Background(), "u")
	if !ok || !bytes.Equal(b, []byte("img-bytes")) {
		t.Fatalf("first resolve: ok=%v b=%q", ok, b)
	}
	b, ok = c.Resolve(context.Background(), "u")
	if !ok || !bytes.Equal(b, []byte("img-bytes")) {
		t.Fatalf("second resolve: ok=%v", ok)
	}
	if n := f.count("u"); n != 1 {
		t.Fatalf("fetch count = %d, want 1", n)
	}

	s := c.Stats()
	if s.NetworkFetches != 1 || s.MemoryHits != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestResolve_ConcurrentCallersOneFetch(t *testing.T) {
	gate := make(chan struct{})
	f := &countingFetcher{data: map[string][]byte{"u": []byte("x")}, gate: gate}
	c := newTestCache(t, f, Options{})

	const callers = 8
	var ok32 int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := c.Resolve(context.Background(), "u"); ok {
				atomic.AddInt32(&ok32, 1)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if ok32 != callers {
		t.Fatalf("%d/%d callers got the image", ok32, callers)
	}
	if n := f.count("u"); n != 1 {
		t.Fatalf("fetch count = %d, want exactly 1", n)
	}
}

func TestResolve_DiskPromotionAfterMemoryDrop(t *testing.T) {
	f := &countingFetcher{data: map[string][]byte{"u": []byte("persisted")}}
	c := newTestCache(t, f, Options{})

	if _, ok := c.Resolve(context.Background(), "u"); !ok {
		t.Fatal("initial resolve failed")
	}
	waitForFile(t, filepath.Join(c.dir, Key("u")))

	c.DropMemory()

	b, ok := c.Resolve(context.Background(), "u")
	if !ok || !bytes.Equal(b, []byte("persisted")) {
		t.Fatalf("disk resolve: ok=%v b=%q", ok, b)
	}
	if n := f.count("u"); n != 1 {
		t.Fatalf("disk hit must not refetch; fetch count = %d", n)
	}
	if s := c.Stats(); s.DiskHits != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestResolve_FailureReturnsNotFound(t *testing.T) {
	f := &countingFetcher{err: errors.New("network down")}
	c := newTestCache(t, f, Options{})

	if _, ok := c.Resolve(context.Background(), "u"); ok {
		t.Fatal("expected miss on fetch failure")
	}
	if s := c.Stats(); s.Failures != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestResolve_TransformAppliedBeforeCaching(t *testing.T) {
	f := &countingFetcher{data: map[string][]byte{"u": []byte("ORIGINAL-LARGE-PAYLOAD")}}
	c := newTestCache(t, f, Options{
		Transform: func(b []byte) ([]byte, error) { return b[:8], nil },
	})

	b, ok := c.Resolve(context.Background(), "u")
	if !ok || string(b) != "ORIGINAL" {
		t.Fatalf("transformed resolve: ok=%v b=%q", ok, b)
	}

	// Disk tier holds the transformed payload too.
	path := filepath.Join(c.dir, Key("u"))
	waitForFile(t, path)
	onDisk, err := os.ReadFile(path)
	if err != nil || string(onDisk) != "ORIGINAL" {
		t.Fatalf("disk payload = %q err=%v", onDisk, err)
	}
}

func TestPrefetch_WarmsAndDeduplicates(t *testing.T) {
	f := &countingFetcher{data: map[string][]byte{
		"a": []byte("1"), "b": []byte("2"),
	}}
	c := newTestCache(t, f, Options{PrefetchWorkers: 2})

	c.Prefetch(context.Background(), []string{"a", "b", "a"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.count("a") >= 1 && f.count("b") >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Wait for flights to settle, then verify single fetch per locator.
	time.Sleep(50 * time.Millisecond)
	if f.count("a") != 1 || f.count("b") != 1 {
		t.Fatalf("fetch counts a=%d b=%d, want 1 each", f.count("a"), f.count("b"))
	}

	if _, ok := c.Resolve(context.Background(), "a"); !ok {
		t.Fatal("prefetched image should resolve from cache")
	}
	if f.count("a") != 1 {
		t.Fatal("resolve after prefetch must hit a warm tier")
	}
}

func TestSweep_RemovesExpiredEntries(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, Key("old"))
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed stale file: %v", err)
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	f := &countingFetcher{}
	_, err := New(dir, f, Options{DiskTTL: 24 * time.Hour, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(stale); os.IsNotExist(err) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expired disk entry was not swept")
}

func TestInvalidate_RemovesBothTiers(t *testing.T) {
	f := &countingFetcher{data: map[string][]byte{"u": []byte("x")}}
	c := newTestCache(t, f, Options{})

	c.Resolve(context.Background(), "u")
	waitForFile(t, filepath.Join(c.dir, Key("u")))

	c.Invalidate("u")
	if _, err := os.Stat(filepath.Join(c.dir, Key("u"))); !os.IsNotExist(err) {
		t.Fatal("disk entry survived invalidation")
	}

	c.Resolve(context.Background(), "u")
	if n := f.count("u"); n != 2 {
		t.Fatalf("expected refetch after invalidation, fetch count = %d", n)
	}
}
