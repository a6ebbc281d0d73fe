package elements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/star/orbitview/internal/metrics"
)

// DefaultMaxAge is how long a cached group stays fresh.
const DefaultMaxAge = 24 * time.Hour

// DefaultRetryAfter is how long a group waits after a failed fetch before
// Load tries the source again.
const DefaultRetryAfter = 5 * time.Minute

// Source fetches raw element data for a group.
type Source interface {
	FetchGroup(ctx context.Context, group string) ([]byte, error)
	SourceURL() string
}

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	MaxAge       time.Duration
	FetchEnabled bool
	RetryAfter   time.Duration
}

// Provider loads group datasets, preferring fresh in-memory or on-disk data
// and falling back to stale data when the source is unavailable. After a
// failed fetch a group serves what it has until RetryAfter passes.
type Provider struct {
	source Source
	cache  *Cache
	store  *Store
	cfg    ProviderConfig
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex // guards groups
	groups map[string]*groupState
}

// groupState serializes loads of one group and remembers its last failure.
type groupState struct {
	mu       sync.Mutex
	failedAt time.Time
	lastErr  error
}

// NewProvider creates a Provider. cache may be nil to disable disk caching.
func NewProvider(source Source, cache *Cache, store *Store, cfg ProviderConfig, logger *slog.Logger) *Provider {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = DefaultRetryAfter
	}
	return &Provider{
		source: source,
		cache:  cache,
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		groups: make(map[string]*groupState),
	}
}

// Store returns the provider's in-memory store.
func (p *Provider) Store() *Store {
	return p.store
}

func (p *Provider) group(name string) *groupState {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.groups[name]
	if !ok {
		g = &groupState{}
		p.groups[name] = g
	}
	return g
}

// backingOff reports whether g failed within the retry window. Callers hold g.mu.
func (p *Provider) backingOff(g *groupState) bool {
	return !g.failedAt.IsZero() && p.now().Sub(g.failedAt) < p.cfg.RetryAfter
}

// Load returns the dataset for group. A dataset younger than MaxAge is
// returned from memory or disk; otherwise the group is fetched, and on fetch
// failure the newest stale copy is used. Loads of different groups do not
// wait on each other.
func (p *Provider) Load(ctx context.Context, group string) (*Dataset, error) {
	if !IsKnownGroup(group) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}
	if ds := p.store.Get(group); ds != nil && p.fresh(ds.FetchedAt) {
		return ds, nil
	}

	g := p.group(group)
	g.mu.Lock()
	defer g.mu.Unlock()

	// Another caller may have loaded it while we waited.
	current := p.store.Get(group)
	if current != nil && p.fresh(current.FetchedAt) {
		return current, nil
	}
	backoff := p.cfg.FetchEnabled && p.backingOff(g)
	if backoff && current != nil {
		return current, nil
	}

	var stale *Dataset
	if p.cache != nil {
		if ds, err := p.loadCache(group); err == nil {
			if p.fresh(ds.FetchedAt) {
				p.publish(ds, "cache")
				return ds, nil
			}
			stale = ds
		} else if !errors.Is(err, ErrNoCache) {
			p.logger.Warn("element cache unreadable", "group", group, "error", err)
		}
	}

	if p.cfg.FetchEnabled {
		err := g.lastErr
		if !backoff {
			var ds *Dataset
			ds, err = p.fetch(ctx, group)
			if err == nil {
				g.failedAt, g.lastErr = time.Time{}, nil
				p.publish(ds, "fetch")
				return ds, nil
			}
			g.failedAt, g.lastErr = p.now(), err
			p.logger.Warn("element fetch failed",
				"group", group,
				"error", err,
				"retry_after", p.cfg.RetryAfter,
			)
		}
		if stale == nil {
			if current != nil {
				return current, nil
			}
			metrics.RecordElementLoad(group, "error")
			return nil, err
		}
	}

	if stale != nil {
		p.logger.Info("using stale element cache",
			"group", group,
			"fetched_at", stale.FetchedAt,
			"satellites", len(stale.Sets),
		)
		p.publish(stale, "stale_cache")
		return stale, nil
	}

	metrics.RecordElementLoad(group, "error")
	return nil, fmt.Errorf("group %s: fetch disabled and %w", group, ErrNoCache)
}

// Refresh fetches group from the source regardless of cache age or a
// pending retry window. The current dataset is kept if the fetch fails.
func (p *Provider) Refresh(ctx context.Context, group string) (*Dataset, error) {
	if !IsKnownGroup(group) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}

	g := p.group(group)
	g.mu.Lock()
	defer g.mu.Unlock()

	ds, err := p.fetch(ctx, group)
	if err != nil {
		g.failedAt, g.lastErr = p.now(), err
		metrics.RecordElementLoad(group, "error")
		return nil, err
	}
	g.failedAt, g.lastErr = time.Time{}, nil
	p.publish(ds, "fetch")
	return ds, nil
}

func (p *Provider) fresh(fetchedAt time.Time) bool {
	return p.now().Sub(fetchedAt) < p.cfg.MaxAge
}

func (p *Provider) fetch(ctx context.Context, group string) (*Dataset, error) {
	start := p.now()
	data, err := p.source.FetchGroup(ctx, group)
	if err != nil {
		return nil, err
	}

	sets, err := Parse(data, p.logger)
	if err != nil {
		return nil, fmt.Errorf("parsing group %s: %w", group, err)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("group %s: %w", group, ErrNotFound)
	}

	if p.cache != nil {
		if err := p.cache.Write(group, data, start); err != nil {
			p.logger.Warn("failed to write element cache", "group", group, "error", err)
		}
	}

	p.logger.Info("element data fetched",
		"group", group,
		"satellites", len(sets),
		"duration", p.now().Sub(start),
	)

	return newDataset(group, p.source.SourceURL(), start, sets), nil
}

func (p *Provider) loadCache(group string) (*Dataset, error) {
	data, ts, err := p.cache.LoadLatest(group)
	if err != nil {
		return nil, err
	}
	sets, err := Parse(data, p.logger)
	if err != nil {
		return nil, fmt.Errorf("parsing cached group %s: %w", group, err)
	}
	return newDataset(group, "cache", ts, sets), nil
}

func (p *Provider) publish(ds *Dataset, source string) {
	p.store.Set(ds)
	metrics.RecordElementLoad(ds.Group, source)
	metrics.SetElementDatasetCount(ds.Group, len(ds.Sets))
	metrics.SetElementDatasetAge(ds.Group, p.now().Sub(ds.FetchedAt).Seconds())
}

// newDataset builds a dataset with its sets sorted by name, then catalog ID.
func newDataset(group, source string, fetchedAt time.Time, sets []ElementSet) *Dataset {
	sort.SliceStable(sets, func(i, j int) bool {
		if sets[i].Name != sets[j].Name {
			return sets[i].Name < sets[j].Name
		}
		return sets[i].CatalogID < sets[j].CatalogID
	})
	return &Dataset{
		Group:      group,
		Source:     source,
		FetchedAt:  fetchedAt,
		EpochRange: epochRange(sets),
		Sets:       sets,
	}
}
