package orbit

import (
	"math"
)

const secondsPerDay = 86400.0

// DeriveParameters derives orbit parameters from an element set, normalizing
// heights by referenceBodyRadiusKm. Earth's gravitational parameter is used.
//
// Steps: mean motion to rad/s, semi-major axis from Kepler's third law,
// normalization by the body radius, then perigee height a(1-e)-1. The
// perigee height doubles as the circular display radius; true ellipse
// geometry is discarded.
func DeriveParameters(el Elements, referenceBodyRadiusKm float64) (Parameters, error) {
	return derive(el, EarthMu, referenceBodyRadiusKm)
}

// Derive derives orbit parameters for an object orbiting b.
func (b Body) Derive(el Elements) (Parameters, error) {
	return derive(el, b.Mu, b.RadiusKm)
}

func derive(el Elements, mu, radiusKm float64) (Parameters, error) {
	reject := func(field string, v float64, r Reason) (Parameters, error) {
		return Parameters{}, &DerivationError{
			CatalogID: el.CatalogID,
			Name:      el.Name,
			Field:     field,
			Value:     v,
			Reason:    r,
		}
	}

	fields := []struct {
		name string
		v    float64
	}{
		{"mean_motion", el.MeanMotion},
		{"eccentricity", el.Eccentricity},
		{"inclination", el.Inclination},
		{"raan", el.RAAN},
		{"arg_perigee", el.ArgPerigee},
		{"mean_anomaly", el.MeanAnomaly},
	}
	for _, f := range fields {
		if !finite(f.v) {
			return reject(f.name, f.v, ReasonNonFinite)
		}
	}
	if !finite(radiusKm) || radiusKm <= 0 {
		return reject("body_radius_km", radiusKm, ReasonBodyRadius)
	}
	if el.MeanMotion <= 0 {
		return reject("mean_motion", el.MeanMotion, ReasonMeanMotion)
	}
	if el.Eccentricity < 0 || el.Eccentricity >= 1 {
		return reject("eccentricity", el.Eccentricity, ReasonEccentricity)
	}
	if el.Inclination < 0 || el.Inclination > 180 {
		return reject("inclination", el.Inclination, ReasonInclination)
	}

	n := el.MeanMotion * twoPi / secondsPerDay
	a := math.Cbrt(mu/(n*n)) / radiusKm
	height := a*(1-el.Eccentricity) - 1

	if !finite(height) {
		return reject("height", height, ReasonNonFinite)
	}
	if height <= -1 {
		return reject("height", height, ReasonSubsurface)
	}

	return Parameters{
		Height:      height,
		Inclination: Radians(el.Inclination),
		RAAN:        normalizeAngle(Radians(el.RAAN)),
		ArgPerigee:  normalizeAngle(Radians(el.ArgPerigee)),
		Phase:       normalizeAngle(Radians(el.MeanAnomaly)),
	}, nil
}

// SemiMajorAxisKm returns the semi-major axis implied by a mean motion in
// revolutions per day, or NaN when meanMotion is not positive.
func SemiMajorAxisKm(meanMotion, mu float64) float64 {
	if meanMotion <= 0 {
		return math.NaN()
	}
	n := meanMotion * twoPi / secondsPerDay
	return math.Cbrt(mu / (n * n))
}

// AltitudeKm converts the normalized height back to kilometres.
func AltitudeKm(p Parameters, referenceBodyRadiusKm float64) float64 {
	return p.Height * referenceBodyRadiusKm
}

// Derived pairs an object's identity with its derived parameters.
type Derived struct {
	CatalogID int
	Name      string
	Params    Parameters
}

// DeriveBatch derives every element set independently. Sets that fail are
// reported in errs as *DerivationError values and do not affect the others.
func DeriveBatch(sets []Elements, referenceBodyRadiusKm float64) (ok []Derived, errs []error) {
	ok = make([]Derived, 0, len(sets))
	for _, el := range sets {
		p, err := DeriveParameters(el, referenceBodyRadiusKm)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ok = append(ok, Derived{CatalogID: el.CatalogID, Name: el.Name, Params: p})
	}
	return ok, errs
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
