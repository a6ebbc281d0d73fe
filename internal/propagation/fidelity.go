package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/orbitview/internal/elements"
	"github.com/star/orbitview/internal/orbit"
	"github.com/star/orbitview/internal/transform"
)

// Comparison window defaults.
const (
	DefaultCompareStep = time.Minute
	DefaultCompareSpan = 90 * time.Minute
)

// ComparatorConfig configures a Comparator.
type ComparatorConfig struct {
	Body          orbit.Body
	DisplayRadius float64
	SpeedConstant float64
	Step          time.Duration
	Span          time.Duration
}

// sgp4Cache holds initialized SGP4 propagators for one dataset.
// Immutable after construction; safe for concurrent reads.
type sgp4Cache struct {
	props     map[int]*SGP4
	group     string
	fetchedAt time.Time
}

// Comparator measures how far the circular visualization model drifts from
// SGP4 for the same element sets.
type Comparator struct {
	pool   *WorkerPool
	cfg    ComparatorConfig
	logger *slog.Logger
	sgp4   atomic.Pointer[sgp4Cache]
	sgp4Mu sync.Mutex // serializes cache rebuilds
}

// NewComparator creates a Comparator. Zero values in cfg select defaults.
func NewComparator(pool *WorkerPool, cfg ComparatorConfig, logger *slog.Logger) *Comparator {
	if cfg.Body.RadiusKm <= 0 {
		cfg.Body = orbit.Earth
	}
	if cfg.SpeedConstant <= 0 {
		cfg.SpeedConstant = orbit.DefaultSpeedConstant
	}
	if cfg.DisplayRadius <= 0 {
		cfg.DisplayRadius = 1
	}
	if cfg.Step <= 0 {
		cfg.Step = DefaultCompareStep
	}
	if cfg.Span <= 0 {
		cfg.Span = DefaultCompareSpan
	}
	return &Comparator{pool: pool, cfg: cfg, logger: logger}
}

// cachedProps returns initialized propagators for ds, rebuilding them when the
// dataset has changed (double-checked locking).
func (c *Comparator) cachedProps(ds *elements.Dataset) map[int]*SGP4 {
	if pc := c.sgp4.Load(); pc != nil && pc.group == ds.Group && pc.fetchedAt.Equal(ds.FetchedAt) {
		return pc.props
	}

	c.sgp4Mu.Lock()
	defer c.sgp4Mu.Unlock()

	if pc := c.sgp4.Load(); pc != nil && pc.group == ds.Group && pc.fetchedAt.Equal(ds.FetchedAt) {
		return pc.props
	}

	props := make(map[int]*SGP4, len(ds.Sets))
	var skipped int
	for _, set := range ds.Sets {
		if _, ok := props[set.CatalogID]; ok {
			continue
		}
		l1, l2 := set.TLELines()
		sp, err := NewSGP4(l1, l2, set.CatalogID)
		if err != nil {
			c.logger.Warn("sgp4 init failed", "catalog_id", set.CatalogID, "error", err)
			skipped++
			continue
		}
		props[set.CatalogID] = sp
	}

	c.logger.Info("sgp4 propagator cache rebuilt",
		"group", ds.Group,
		"cached", len(props),
		"skipped", skipped,
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	c.sgp4.Store(&sgp4Cache{props: props, group: ds.Group, fetchedAt: ds.FetchedAt})
	return props
}

// Compare builds a report for one element set over the configured window
// starting at start.
func (c *Comparator) Compare(set elements.ElementSet, start time.Time) (Report, error) {
	l1, l2 := set.TLELines()
	prop, err := NewSGP4(l1, l2, set.CatalogID)
	if err != nil {
		return Report{}, err
	}
	return c.compare(set, prop, start)
}

// CompareDataset reports on every object in ds, spreading the work over the
// pool. Objects that fail derivation or propagation are logged and counted in
// failed.
func (c *Comparator) CompareDataset(ctx context.Context, ds *elements.Dataset, start time.Time) (reports []Report, failed int, err error) {
	props := c.cachedProps(ds)

	results := make([]Report, len(ds.Sets))
	errs := make([]error, len(ds.Sets))

	err = c.pool.Run(ctx, len(ds.Sets), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			set := ds.Sets[i]
			prop, ok := props[set.CatalogID]
			if !ok {
				errs[i] = fmt.Errorf("catalog %d: no sgp4 propagator", set.CatalogID)
				continue
			}
			results[i], errs[i] = c.compare(set, prop, start)
		}
	})
	if err != nil {
		return nil, 0, err
	}

	reports = make([]Report, 0, len(ds.Sets))
	for i, e := range errs {
		if e != nil {
			failed++
			c.logger.Warn("fidelity comparison failed", "catalog_id", ds.Sets[i].CatalogID, "error", e)
			continue
		}
		reports = append(reports, results[i])
	}
	return reports, failed, nil
}

func (c *Comparator) compare(set elements.ElementSet, prop *SGP4, start time.Time) (Report, error) {
	params, err := c.cfg.Body.Derive(set.Elements())
	if err != nil {
		return Report{}, err
	}

	report := Report{
		CatalogID:       set.CatalogID,
		Name:            set.Name,
		ModelAltitudeKm: orbit.AltitudeKm(params, c.cfg.Body.RadiusKm),
		MinAltitudeKm:   math.Inf(1),
		MaxAltitudeKm:   math.Inf(-1),
		KeplerPeriod:    time.Duration(86400 / set.MeanMotion * float64(time.Second)),
	}
	if hp := orbit.HeuristicPeriod(params, c.cfg.SpeedConstant); !math.IsInf(hp, 1) {
		report.HeuristicPeriod = time.Duration(hp * float64(time.Second))
	}

	bodyRadiusM := c.cfg.Body.RadiusKm * 1000
	var sum float64
	for at := start; !at.After(start.Add(c.cfg.Span)); at = at.Add(c.cfg.Step) {
		teme, err := prop.Propagate(at)
		if err != nil {
			return Report{}, err
		}
		ecef := transform.TEMEToECEF(teme, at)
		geo := transform.ECEFToGeodetic(ecef.Pos)
		r := transform.ECEFToRenderer(ecef.Pos, bodyRadiusM, c.cfg.DisplayRadius)

		altKm := geo.AltM / 1000
		report.Samples = append(report.Samples, Sample{
			At:         at,
			LatDeg:     geo.LatDeg,
			LonDeg:     geo.LonDeg,
			AltitudeKm: altKm,
			Renderer:   [3]float64{r.X, r.Y, r.Z},
		})
		sum += altKm
		report.MinAltitudeKm = math.Min(report.MinAltitudeKm, altKm)
		report.MaxAltitudeKm = math.Max(report.MaxAltitudeKm, altKm)
	}

	report.MeanAltitudeKm = sum / float64(len(report.Samples))
	report.AltitudeErrorKm = report.ModelAltitudeKm - report.MeanAltitudeKm
	return report, nil
}
