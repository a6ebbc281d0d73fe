package elements

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

const testOMM = `[
 {"OBJECT_NAME":"ZARYA B","NORAD_CAT_ID":3,"MEAN_MOTION":15.5,"ECCENTRICITY":0.0001,"INCLINATION":51.6},
 {"OBJECT_NAME":"ALPHA","NORAD_CAT_ID":2,"MEAN_MOTION":15.1,"ECCENTRICITY":0.0002,"INCLINATION":97.4},
 {"OBJECT_NAME":"ALPHA","NORAD_CAT_ID":1,"MEAN_MOTION":14.9,"ECCENTRICITY":0.0003,"INCLINATION":98.1}
]`

type fakeSource struct {
	mu    sync.Mutex
	data  []byte
	err   error
	calls int
}

func (f *fakeSource) FetchGroup(ctx context.Context, group string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.data, f.err
}

func (f *fakeSource) SourceURL() string { return "fake://celestrak" }

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestProvider(src Source, cache *Cache, fetch bool) *Provider {
	return NewProvider(src, cache, NewStore(), ProviderConfig{MaxAge: DefaultMaxAge, FetchEnabled: fetch}, testLogger)
}

func TestProviderFetchesAndSortsByName(t *testing.T) {
	src := &fakeSource{data: []byte(testOMM)}
	cache := NewCache(t.TempDir(), 5)
	p := newTestProvider(src, cache, true)

	ds, err := p.Load(context.Background(), "stations")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Group != "stations" || ds.Source != "fake://celestrak" {
		t.Errorf("unexpected dataset header: %+v", ds)
	}

	wantIDs := []int{1, 2, 3}
	if len(ds.Sets) != len(wantIDs) {
		t.Fatalf("sets = %d, want %d", len(ds.Sets), len(wantIDs))
	}
	for i, id := range wantIDs {
		if ds.Sets[i].CatalogID != id {
			t.Errorf("Sets[%d].CatalogID = %d, want %d", i, ds.Sets[i].CatalogID, id)
		}
	}

	if _, _, err := cache.LoadLatest("stations"); err != nil {
		t.Errorf("fetched data was not cached: %v", err)
	}
	if p.Store().Get("stations") != ds {
		t.Error("dataset was not published to the store")
	}
}

func TestProviderUsesFreshMemoryAndDisk(t *testing.T) {
	src := &fakeSource{data: []byte(testOMM)}
	cache := NewCache(t.TempDir(), 5)

	first := newTestProvider(src, cache, true)
	if _, err := first.Load(context.Background(), "stations"); err != nil {
		t.Fatal(err)
	}
	if _, err := first.Load(context.Background(), "stations"); err != nil {
		t.Fatal(err)
	}
	if got := src.Calls(); got != 1 {
		t.Errorf("fetch calls after two loads = %d, want 1", got)
	}

	// A new provider with an empty store reads the fresh disk copy.
	second := newTestProvider(src, cache, true)
	ds, err := second.Load(context.Background(), "stations")
	if err != nil {
		t.Fatal(err)
	}
	if ds.Source != "cache" {
		t.Errorf("Source = %q, want cache", ds.Source)
	}
	if got := src.Calls(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}

func TestProviderRefetchesWhenStale(t *testing.T) {
	src := &fakeSource{data: []byte(testOMM)}
	cache := NewCache(t.TempDir(), 5)
	if err := cache.Write("stations", []byte(testOMM), time.Now().Add(-48*time.Hour)); err != nil {
		t.Fatal(err)
	}

	p := newTestProvider(src, cache, true)
	ds, err := p.Load(context.Background(), "stations")
	if err != nil {
		t.Fatal(err)
	}
	if src.Calls() != 1 {
		t.Errorf("stale cache should trigger a fetch")
	}
	if ds.Source == "cache" {
		t.Error("stale cache returned instead of fetched data")
	}
}

func TestProviderFallsBackToStaleCache(t *testing.T) {
	src := &fakeSource{err: errors.New("network down")}
	cache := NewCache(t.TempDir(), 5)
	staleAt := time.Now().Add(-72 * time.Hour).Truncate(time.Second)
	if err := cache.Write("stations", []byte(testOMM), staleAt); err != nil {
		t.Fatal(err)
	}

	p := newTestProvider(src, cache, true)
	ds, err := p.Load(context.Background(), "stations")
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if !ds.FetchedAt.Equal(staleAt) {
		t.Errorf("FetchedAt = %v, want %v", ds.FetchedAt, staleAt)
	}
	if len(ds.Sets) != 3 {
		t.Errorf("sets = %d, want 3", len(ds.Sets))
	}
}

func TestProviderFetchFailureWithoutCache(t *testing.T) {
	src := &fakeSource{err: ErrRateLimited}
	p := newTestProvider(src, NewCache(t.TempDir(), 5), true)

	_, err := p.Load(context.Background(), "stations")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestProviderFetchDisabled(t *testing.T) {
	src := &fakeSource{data: []byte(testOMM)}
	cache := NewCache(t.TempDir(), 5)
	p := newTestProvider(src, cache, false)

	if _, err := p.Load(context.Background(), "stations"); !errors.Is(err, ErrNoCache) {
		t.Fatalf("err = %v, want ErrNoCache", err)
	}
	if src.Calls() != 0 {
		t.Error("fetch called while disabled")
	}

	if err := cache.Write("stations", []byte(testOMM), time.Now().Add(-72*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Load(context.Background(), "stations"); err != nil {
		t.Fatalf("stale cache should serve when fetch is disabled: %v", err)
	}
}

func TestProviderRejectsUnknownGroup(t *testing.T) {
	p := newTestProvider(&fakeSource{}, nil, true)
	if _, err := p.Load(context.Background(), "bogus"); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("Load err = %v, want ErrUnknownGroup", err)
	}
	if _, err := p.Refresh(context.Background(), "bogus"); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("Refresh err = %v, want ErrUnknownGroup", err)
	}
}

func TestProviderRefreshKeepsCurrentOnFailure(t *testing.T) {
	src := &fakeSource{data: []byte(testOMM)}
	p := newTestProvider(src, nil, true)

	ds, err := p.Load(context.Background(), "stations")
	if err != nil {
		t.Fatal(err)
	}

	src.mu.Lock()
	src.err = errors.New("boom")
	src.mu.Unlock()

	if _, err := p.Refresh(context.Background(), "stations"); err == nil {
		t.Fatal("expected refresh error")
	}
	if p.Store().Get("stations") != ds {
		t.Error("failed refresh replaced the current dataset")
	}
}

func TestProviderEmptyPayload(t *testing.T) {
	p := newTestProvider(&fakeSource{data: []byte("[]")}, nil, true)
	if _, err := p.Load(context.Background(), "stations"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDatasetFind(t *testing.T) {
	ds := newDataset("stations", "test", time.Now(), []ElementSet{{CatalogID: 7, Name: "X"}})
	if s, ok := ds.Find(7); !ok || s.Name != "X" {
		t.Errorf("Find(7) = %+v, %v", s, ok)
	}
	if _, ok := ds.Find(8); ok {
		t.Error("Find(8) found a missing set")
	}
}

func TestStoreGroups(t *testing.T) {
	s := NewStore()
	if s.AgeSeconds("stations") != -1 {
		t.Error("AgeSeconds for missing group should be -1")
	}
	s.Set(&Dataset{Group: "weather", FetchedAt: time.Now()})
	s.Set(&Dataset{Group: "stations", FetchedAt: time.Now()})
	got := s.Groups()
	if len(got) != 2 || got[0] != "stations" || got[1] != "weather" {
		t.Errorf("Groups() = %v", got)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d", s.Len())
	}
}

func TestProviderBacksOffAfterFailedFetch(t *testing.T) {
	src := &fakeSource{err: errors.New("network down")}
	cache := NewCache(t.TempDir(), 5)
	if err := cache.Write("stations", []byte(testOMM), time.Now().Add(-48*time.Hour)); err != nil {
		t.Fatal(err)
	}

	clock := time.Now()
	p := newTestProvider(src, cache, true)
	p.now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		ds, err := p.Load(context.Background(), "stations")
		if err != nil {
			t.Fatalf("load %d: %v", i+1, err)
		}
		if len(ds.Sets) != 3 {
			t.Fatalf("load %d: sets = %d, want 3", i+1, len(ds.Sets))
		}
	}
	if got := src.Calls(); got != 1 {
		t.Errorf("fetch attempts during outage = %d, want 1", got)
	}

	clock = clock.Add(DefaultRetryAfter)
	if _, err := p.Load(context.Background(), "stations"); err != nil {
		t.Fatal(err)
	}
	if got := src.Calls(); got != 2 {
		t.Errorf("fetch attempts after retry window = %d, want 2", got)
	}

	src.mu.Lock()
	src.data, src.err = []byte(testOMM), nil
	src.mu.Unlock()

	clock = clock.Add(DefaultRetryAfter)
	ds, err := p.Load(context.Background(), "stations")
	if err != nil {
		t.Fatal(err)
	}
	if ds.Source != "fake://celestrak" {
		t.Errorf("Source = %q, want the fetched dataset", ds.Source)
	}
	if _, err := p.Load(context.Background(), "stations"); err != nil {
		t.Fatal(err)
	}
	if got := src.Calls(); got != 3 {
		t.Errorf("fetch attempts after recovery = %d, want 3", got)
	}
}

func TestProviderBackoffWithoutCopy(t *testing.T) {
	src := &fakeSource{err: ErrRateLimited}
	p := newTestProvider(src, NewCache(t.TempDir(), 5), true)

	for i := 0; i < 3; i++ {
		if _, err := p.Load(context.Background(), "stations"); !errors.Is(err, ErrRateLimited) {
			t.Fatalf("load %d: err = %v, want ErrRateLimited", i+1, err)
		}
	}
	if got := src.Calls(); got != 1 {
		t.Errorf("fetch attempts = %d, want 1", got)
	}
}

func TestProviderRefreshIgnoresBackoff(t *testing.T) {
	src := &fakeSource{err: errors.New("network down")}
	p := newTestProvider(src, nil, true)

	if _, err := p.Load(context.Background(), "stations"); err == nil {
		t.Fatal("expected load error")
	}
	src.mu.Lock()
	src.data, src.err = []byte(testOMM), nil
	src.mu.Unlock()

	if _, err := p.Refresh(context.Background(), "stations"); err != nil {
		t.Fatalf("refresh during retry window: %v", err)
	}
	if got := src.Calls(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

// stallSource blocks fetches of one group until release is closed.
type stallSource struct {
	group   string
	entered chan struct{}
	release chan struct{}
}

func (s *stallSource) FetchGroup(ctx context.Context, group string) ([]byte, error) {
	if group == s.group {
		close(s.entered)
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []byte(testOMM), nil
}

func (s *stallSource) SourceURL() string { return "fake://celestrak" }

func TestProviderGroupsLoadIndependently(t *testing.T) {
	src := &stallSource{group: "stations", entered: make(chan struct{}), release: make(chan struct{})}
	p := newTestProvider(src, nil, true)

	done := make(chan error, 1)
	go func() {
		_, err := p.Load(context.Background(), "stations")
		done <- err
	}()
	<-src.entered

	loaded := make(chan error, 1)
	go func() {
		_, err := p.Load(context.Background(), "weather")
		loaded <- err
	}()
	select {
	case err := <-loaded:
		if err != nil {
			t.Errorf("weather load: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("weather load blocked behind a stalled stations fetch")
	}

	close(src.release)
	if err := <-done; err != nil {
		t.Errorf("stations load: %v", err)
	}
}
