package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/star/orbitview/internal/orbit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

var (
	v1 = time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	v2 = v1.Add(24 * time.Hour)
)

func testKey(id int, version time.Time) Key {
	return Key{Group: "stations", CatalogID: id, Version: VersionOf(version), Segments: 8, DisplayRadius: 5}
}

func testPath(p orbit.Parameters) func() (orbit.Path, error) {
	return func() (orbit.Path, error) {
		return orbit.OrbitPath(p, 5, 8)
	}
}

// TestPathCache tests basic cache operations: compute, hit, stats.
func TestPathCache(t *testing.T) {
	c := NewPathCache(Config{}, testLogger())
	params := orbit.Parameters{Height: 0.066, Inclination: 0.9}

	calls := 0
	compute := func() (orbit.Path, error) {
		calls++
		return testPath(params)()
	}

	first, err := c.GetOrCompute(testKey(1, v1), compute)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.GetOrCompute(testKey(1, v1), compute)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("compute calls = %d, want 1", calls)
	}
	if len(first) != 9 || &first[0] != &second[0] {
		t.Error("second lookup did not return the cached path")
	}

	stats := c.Stats()
	if stats.Entries != 1 || stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.SizeBytes <= 0 {
		t.Errorf("SizeBytes = %d, want positive", stats.SizeBytes)
	}
}

func TestPathCacheKeyDistinguishesRenderSettings(t *testing.T) {
	c := NewPathCache(Config{}, testLogger())
	base := testKey(1, v1)
	c.put(base, orbit.Path{{X: 1}})

	for _, k := range []Key{
		{Group: base.Group, CatalogID: 1, Version: VersionOf(v1), Segments: 16, DisplayRadius: 5},
		{Group: base.Group, CatalogID: 1, Version: VersionOf(v1), Segments: 8, DisplayRadius: 6},
		{Group: "weather", CatalogID: 1, Version: VersionOf(v1), Segments: 8, DisplayRadius: 5},
		{Group: base.Group, CatalogID: 1, Version: VersionOf(v2), Segments: 8, DisplayRadius: 5},
	} {
		if _, ok := c.Get(k); ok {
			t.Errorf("unexpected hit for %+v", k)
		}
	}
}

func TestPathCacheComputeError(t *testing.T) {
	c := NewPathCache(Config{}, testLogger())
	boom := errors.New("boom")
	_, err := c.GetOrCompute(testKey(1, v1), func() (orbit.Path, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if c.Len() != 0 {
		t.Error("failed computation was cached")
	}
}

func TestPathCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewPathCache(Config{MaxEntries: 2}, testLogger())
	clock := v1
	c.now = func() time.Time { return clock }

	c.put(testKey(1, v1), orbit.Path{{X: 1}})
	clock = clock.Add(time.Second)
	c.put(testKey(2, v1), orbit.Path{{X: 2}})
	clock = clock.Add(time.Second)

	// Touch 1 so 2 becomes the oldest.
	c.Get(testKey(1, v1))
	clock = clock.Add(time.Second)
	c.put(testKey(3, v1), orbit.Path{{X: 3}})

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if _, ok := c.Get(testKey(2, v1)); ok {
		t.Error("least recently used entry survived")
	}
	if _, ok := c.Get(testKey(1, v1)); !ok {
		t.Error("recently used entry evicted")
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", c.Stats().Evictions)
	}
}

func TestPathCacheEvictIdle(t *testing.T) {
	c := NewPathCache(Config{IdleTTL: time.Minute}, testLogger())
	clock := v1
	c.now = func() time.Time { return clock }

	c.put(testKey(1, v1), orbit.Path{{X: 1}})
	clock = clock.Add(30 * time.Second)
	c.put(testKey(2, v1), orbit.Path{{X: 2}})
	clock = clock.Add(45 * time.Second)

	if removed := c.evictIdle(); removed != 1 {
		t.Errorf("evictIdle() = %d, want 1", removed)
	}
	if _, ok := c.Get(testKey(2, v1)); !ok {
		t.Error("fresh entry evicted")
	}
}

// TestPathCacheCutover verifies a dataset change purges only that group's
// stale versions.
func TestPathCacheCutover(t *testing.T) {
	c := NewPathCache(Config{}, testLogger())
	c.put(testKey(1, v1), orbit.Path{{X: 1}})
	c.put(testKey(2, v1), orbit.Path{{X: 2}})
	c.put(testKey(1, v2), orbit.Path{{X: 3}})
	other := Key{Group: "weather", CatalogID: 1, Version: VersionOf(v1), Segments: 8, DisplayRadius: 5}
	c.put(other, orbit.Path{{X: 4}})

	if removed := c.Cutover("stations", v2); removed != 2 {
		t.Errorf("Cutover removed %d, want 2", removed)
	}
	if _, ok := c.Get(testKey(1, v2)); !ok {
		t.Error("current version purged")
	}
	if _, ok := c.Get(other); !ok {
		t.Error("other group purged")
	}
	if c.Stats().Purged != 2 {
		t.Errorf("Purged = %d, want 2", c.Stats().Purged)
	}
}

// TestPathCacheEqualInstants verifies keys built from the same instant in
// different representations share one entry.
func TestPathCacheEqualInstants(t *testing.T) {
	c := NewPathCache(Config{}, testLogger())
	now := time.Now() // carries a monotonic reading
	local := now.In(time.FixedZone("UTC+5", 5*3600))
	stripped := now.Round(0)
	if now == local || now == stripped {
		t.Fatal("test instants should differ under ==")
	}

	c.put(testKey(1, now), orbit.Path{{X: 1}})
	for _, v := range []time.Time{local, stripped} {
		if _, ok := c.Get(testKey(1, v)); !ok {
			t.Errorf("Get(%v) missed an entry stored under %v", v, now)
		}
	}
	if removed := c.Cutover("stations", local); removed != 0 {
		t.Errorf("Cutover with an equal instant removed %d, want 0", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestPathCacheWarm(t *testing.T) {
	c := NewPathCache(Config{}, testLogger())
	c.put(testKey(1, v1), orbit.Path{{X: 1}})

	keys := []Key{testKey(1, v1), testKey(2, v1), testKey(3, v1)}
	compute := func(k Key) (orbit.Path, error) {
		if k.CatalogID == 3 {
			return nil, errors.New("bad object")
		}
		return orbit.OrbitPath(orbit.Parameters{Height: 0.1}, k.DisplayRadius, k.Segments)
	}

	if got := c.Warm(context.Background(), keys, compute); got != 1 {
		t.Errorf("Warm generated %d, want 1", got)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := c.Warm(ctx, []Key{testKey(9, v1)}, compute); got != 0 {
		t.Errorf("Warm with cancelled context generated %d", got)
	}
}

func TestPathCacheConcurrentAccess(t *testing.T) {
	c := NewPathCache(Config{MaxEntries: 16}, testLogger())
	params := orbit.Parameters{Height: 0.2, Inclination: 1}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if _, err := c.GetOrCompute(testKey(i%32, v1), testPath(params)); err != nil {
					t.Error(err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 16 {
		t.Errorf("Len() = %d exceeds MaxEntries", c.Len())
	}
}

func TestPathCacheStartStops(t *testing.T) {
	c := NewPathCache(Config{SweepInterval: time.Millisecond}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
