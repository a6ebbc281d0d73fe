// Package tracker is the visualization controller. It turns group datasets
// into tracked objects, advances their animation phase tick by tick, serves
// orbit paths on selection and owns the globe's coordinate markers.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/star/orbitview/internal/cache"
	"github.com/star/orbitview/internal/elements"
	"github.com/star/orbitview/internal/metrics"
	"github.com/star/orbitview/internal/orbit"
	"github.com/star/orbitview/internal/propagation"
)

// DefaultDisplayRadius is the globe radius in renderer units.
const DefaultDisplayRadius = 5.0

// Lookup errors.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidRadius  = errors.New("display radius must be positive and finite")
)

// DatasetLoader provides group datasets.
type DatasetLoader interface {
	Load(ctx context.Context, group string) (*elements.Dataset, error)
	Refresh(ctx context.Context, group string) (*elements.Dataset, error)
}

// Config configures a Controller.
type Config struct {
	BodyRadiusKm  float64
	DisplayRadius float64
	SpeedConstant float64
	Segments      int
}

// Controller owns the derived group views, the path cache and the markers.
// Views are shared read-only; per-viewer animation lives in FrameState.
type Controller struct {
	loader DatasetLoader
	paths  *cache.PathCache
	pool   *propagation.WorkerPool
	cfg    Config
	body   orbit.Body
	logger *slog.Logger

	mu    sync.RWMutex
	views map[string]*GroupView

	markers markerSet
}

// New creates a Controller. Zero values in cfg select defaults.
func New(loader DatasetLoader, paths *cache.PathCache, pool *propagation.WorkerPool, cfg Config, logger *slog.Logger) *Controller {
	if cfg.BodyRadiusKm <= 0 {
		cfg.BodyRadiusKm = orbit.EarthRadiusKm
	}
	if cfg.DisplayRadius <= 0 {
		cfg.DisplayRadius = DefaultDisplayRadius
	}
	if cfg.SpeedConstant <= 0 {
		cfg.SpeedConstant = orbit.DefaultSpeedConstant
	}
	if cfg.Segments < orbit.MinSegments {
		cfg.Segments = orbit.DefaultSegments
	}
	return &Controller{
		loader: loader,
		paths:  paths,
		pool:   pool,
		cfg:    cfg,
		body:   orbit.Body{Name: orbit.Earth.Name, RadiusKm: cfg.BodyRadiusKm, Mu: orbit.EarthMu},
		logger: logger,
		views:  make(map[string]*GroupView),
		markers: markerSet{
			displayRadius: cfg.DisplayRadius,
			now:           time.Now,
		},
	}
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// View returns the current view of group, loading the dataset if needed and
// rebuilding the view when the dataset has changed.
func (c *Controller) View(ctx context.Context, group string) (*GroupView, error) {
	ds, err := c.loader.Load(ctx, group)
	if err != nil {
		return nil, err
	}
	return c.viewFor(ds), nil
}

// Refresh forces a fetch of group and returns the rebuilt view.
func (c *Controller) Refresh(ctx context.Context, group string) (*GroupView, error) {
	ds, err := c.loader.Refresh(ctx, group)
	if err != nil {
		return nil, err
	}
	return c.viewFor(ds), nil
}

// Loaded returns the views built so far, sorted by group.
func (c *Controller) Loaded() []*GroupView {
	c.mu.RLock()
	views := make([]*GroupView, 0, len(c.views))
	for _, v := range c.views {
		views = append(views, v)
	}
	c.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool { return views[i].Group < views[j].Group })
	return views
}

func (c *Controller) viewFor(ds *elements.Dataset) *GroupView {
	c.mu.RLock()
	v, ok := c.views[ds.Group]
	c.mu.RUnlock()
	if ok && v.FetchedAt.Equal(ds.FetchedAt) {
		return v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.views[ds.Group]; ok && v.FetchedAt.Equal(ds.FetchedAt) {
		return v
	}

	v = NewGroupView(ds, c.body, c.logger)
	c.views[ds.Group] = v
	c.logger.Info("group view built",
		"group", ds.Group,
		"objects", len(v.Objects),
		"rejected", len(v.Rejected),
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	if c.paths != nil {
		c.paths.Cutover(ds.Group, ds.FetchedAt)
	}
	return v
}

// NewFrame returns a frame for v with every object at its epoch phase,
// positioned for displayRadius (zero selects the configured radius).
func (c *Controller) NewFrame(v *GroupView, displayRadius float64) (*FrameState, error) {
	r, err := c.radius(displayRadius)
	if err != nil {
		return nil, err
	}

	st := &FrameState{
		Group:         v.Group,
		Version:       v.FetchedAt,
		DisplayRadius: r,
		Params:        make([]orbit.Parameters, len(v.Objects)),
		Positions:     make([]orbit.Position3D, len(v.Objects)),
		view:          v,
	}
	for i, obj := range v.Objects {
		st.Params[i] = obj.Params
		st.Positions[i] = orbit.PositionAtPhase(obj.Params, r)
	}
	return st, nil
}

// Rebase builds a frame for v that carries on from prev: every object of v
// is advanced by prev.SimSeconds from its epoch phase, and the sequence
// number and clock continue where prev left off.
func (c *Controller) Rebase(ctx context.Context, prev *FrameState, v *GroupView) (*FrameState, error) {
	st, err := c.NewFrame(v, prev.DisplayRadius)
	if err != nil {
		return nil, err
	}
	if err := c.advance(ctx, st, prev.SimSeconds); err != nil {
		return nil, err
	}
	st.Seq, st.SimSeconds = prev.Seq, prev.SimSeconds
	return st, nil
}

// Tick advances every object in st by dt seconds and recomputes positions.
// Each object is advanced exactly once per tick; ticks on one frame must not
// run concurrently.
func (c *Controller) Tick(ctx context.Context, st *FrameState, dt float64) error {
	start := time.Now()
	if err := c.advance(ctx, st, dt); err != nil {
		return err
	}

	st.Seq++
	if finiteSeconds(dt) {
		st.SimSeconds += dt
	}
	metrics.ObserveTick(st.Group, time.Since(start))
	return nil
}

func (c *Controller) advance(ctx context.Context, st *FrameState, dt float64) error {
	k := c.cfg.SpeedConstant
	r := st.DisplayRadius
	return c.pool.Run(ctx, len(st.Params), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			st.Params[i] = orbit.AdvancePhase(st.Params[i], dt, k)
			st.Positions[i] = orbit.PositionAtPhase(st.Params[i], r)
		}
	})
}

// OrbitPath returns the closed orbit path of one object, memoized per dataset
// version and render settings. Zero segments or radius select the
// configured values.
func (c *Controller) OrbitPath(v *GroupView, catalogID, segments int, displayRadius float64) (orbit.Path, error) {
	obj, ok := v.Find(catalogID)
	if !ok {
		return nil, fmt.Errorf("%w: catalog %d in group %s", ErrObjectNotFound, catalogID, v.Group)
	}
	r, err := c.radius(displayRadius)
	if err != nil {
		return nil, err
	}
	if segments == 0 {
		segments = c.cfg.Segments
	}

	compute := func() (orbit.Path, error) {
		return orbit.OrbitPath(obj.Params, r, segments)
	}
	if c.paths == nil {
		return compute()
	}
	key := cache.Key{
		Group:         v.Group,
		CatalogID:     catalogID,
		Version:       cache.VersionOf(v.FetchedAt),
		Segments:      segments,
		DisplayRadius: r,
	}
	return c.paths.GetOrCompute(key, compute)
}

// WarmPaths precomputes default orbit paths for every object in v.
func (c *Controller) WarmPaths(ctx context.Context, v *GroupView) int {
	if c.paths == nil {
		return 0
	}
	keys := make([]cache.Key, len(v.Objects))
	for i, obj := range v.Objects {
		keys[i] = cache.Key{
			Group:         v.Group,
			CatalogID:     obj.CatalogID,
			Version:       cache.VersionOf(v.FetchedAt),
			Segments:      c.cfg.Segments,
			DisplayRadius: c.cfg.DisplayRadius,
		}
	}
	return c.paths.Warm(ctx, keys, func(k cache.Key) (orbit.Path, error) {
		obj, ok := v.Find(k.CatalogID)
		if !ok {
			return nil, ErrObjectNotFound
		}
		return orbit.OrbitPath(obj.Params, k.DisplayRadius, k.Segments)
	})
}

// PositionAt advances one object t seconds from its epoch phase and returns
// its parameters and position.
func (c *Controller) PositionAt(v *GroupView, catalogID int, t, displayRadius float64) (orbit.Parameters, orbit.Position3D, error) {
	obj, ok := v.Find(catalogID)
	if !ok {
		return orbit.Parameters{}, orbit.Position3D{}, fmt.Errorf("%w: catalog %d in group %s", ErrObjectNotFound, catalogID, v.Group)
	}
	r, err := c.radius(displayRadius)
	if err != nil {
		return orbit.Parameters{}, orbit.Position3D{}, err
	}
	p := orbit.AdvancePhase(obj.Params, t, c.cfg.SpeedConstant)
	return p, orbit.PositionAtPhase(p, r), nil
}

func (c *Controller) radius(r float64) (float64, error) {
	if r == 0 {
		return c.cfg.DisplayRadius, nil
	}
	if r < 0 || !finiteSeconds(r) {
		return 0, ErrInvalidRadius
	}
	return r, nil
}

func finiteSeconds(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
