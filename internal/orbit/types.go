// Package orbit converts orbital element sets into renderer-space positions.
//
// The model is a reduced Keplerian approximation intended for visualization,
// not an orbit propagator: every object is drawn on a circle whose radius is
// its perigee radius, and the phase advances with a height-based heuristic
// instead of true orbital dynamics. All functions are pure; callers own the
// per-object phase and thread it through each tick.
package orbit

import "math"

const twoPi = 2 * math.Pi

// Body describes the reference body being orbited.
type Body struct {
	Name     string
	RadiusKm float64 // mean radius (km)
	Mu       float64 // standard gravitational parameter (km^3/s^2)
}

// EarthMu is Earth's standard gravitational parameter in km^3/s^2.
const EarthMu = 398600.4418

// EarthRadiusKm is the mean Earth radius used to normalize orbit heights.
const EarthRadiusKm = 6371.0

// Earth is the default reference body.
var Earth = Body{Name: "Earth", RadiusKm: EarthRadiusKm, Mu: EarthMu}

// Elements is the subset of an element set needed to derive an orbit.
// Angles are in degrees, mean motion in revolutions per day.
type Elements struct {
	CatalogID    int
	Name         string
	MeanMotion   float64
	Eccentricity float64
	Inclination  float64
	RAAN         float64
	ArgPerigee   float64
	MeanAnomaly  float64
}

// Parameters are the derived orbit parameters for one tracked object.
//
// Height is the perigee altitude in units of the body radius. Angles are in
// radians; Inclination lies in [0, π], the others in [0, 2π).
type Parameters struct {
	Height      float64
	Inclination float64
	RAAN        float64
	ArgPerigee  float64
	Phase       float64
}

// Position3D is a Cartesian point in renderer space, where the reference body
// is drawn with a fixed display radius.
type Position3D struct {
	X, Y, Z float64
}

// Norm returns the distance of p from the origin.
func (p Position3D) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// Array returns p as an [x, y, z] array for JSON payloads.
func (p Position3D) Array() [3]float64 {
	return [3]float64{p.X, p.Y, p.Z}
}

// Path is a closed polyline: the last point is the first point repeated.
type Path []Position3D

// normalizeAngle maps a into [0, 2π).
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	if a >= twoPi {
		a = 0
	}
	return a
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
