package propagation

import "time"

// Config holds tick pool configuration.
type Config struct {
	Workers           int // Worker pool size (default: runtime.NumCPU())
	ParallelThreshold int // Minimum object count before a tick fans out
}

// Sample is one point of an SGP4 comparison: where the reference model puts
// the object at At, expressed in the same units the visualization uses.
type Sample struct {
	At         time.Time
	LatDeg     float64
	LonDeg     float64
	AltitudeKm float64    // km above the WGS-84 ellipsoid
	Renderer   [3]float64 // renderer-space position for the configured display radius
}

// Report compares the visualization model of one object against SGP4 over a
// time window.
type Report struct {
	CatalogID int
	Name      string

	// ModelAltitudeKm is the circular-orbit altitude the globe draws.
	ModelAltitudeKm float64
	// SGP4 altitude statistics over the window.
	MinAltitudeKm  float64
	MaxAltitudeKm  float64
	MeanAltitudeKm float64
	// AltitudeErrorKm is ModelAltitudeKm minus MeanAltitudeKm.
	AltitudeErrorKm float64

	// KeplerPeriod is one revolution at the published mean motion.
	KeplerPeriod time.Duration
	// HeuristicPeriod is one revolution of the animation phase rate, or
	// zero when the object has no finite rate.
	HeuristicPeriod time.Duration

	Samples []Sample
}
