package orbit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultSegments is the number of samples used for orbit paths.
const DefaultSegments = 200

// MinSegments is the smallest segment count that forms a polygon.
const MinSegments = 3

var (
	axisX = r3.Vec{X: 1}
	axisZ = r3.Vec{Z: 1}
)

// planeRotation carries an orbital-plane point into renderer space.
// The order is fixed: inclination about X, then argument of perigee about Z,
// then RAAN about Z. The rotations do not commute.
type planeRotation struct {
	inclination r3.Rotation
	argPerigee  r3.Rotation
	raan        r3.Rotation
}

func newPlaneRotation(p Parameters) planeRotation {
	return planeRotation{
		inclination: r3.NewRotation(p.Inclination, axisX),
		argPerigee:  r3.NewRotation(p.ArgPerigee, axisZ),
		raan:        r3.NewRotation(p.RAAN, axisZ),
	}
}

func (r planeRotation) apply(v r3.Vec) r3.Vec {
	v = r.inclination.Rotate(v)
	v = r.argPerigee.Rotate(v)
	return r.raan.Rotate(v)
}

// orbitRadius returns the circular orbit radius in renderer units.
func orbitRadius(p Parameters, displayRadius float64) float64 {
	return displayRadius * (1 + p.Height)
}

func inPlane(phase, radius float64) r3.Vec {
	sin, cos := math.Sincos(phase)
	return r3.Vec{X: cos * radius, Y: sin * radius}
}

// PositionAtPhase returns the renderer-space position of an object at its
// current phase, with the body drawn at displayRadius.
func PositionAtPhase(p Parameters, displayRadius float64) Position3D {
	v := newPlaneRotation(p).apply(inPlane(p.Phase, orbitRadius(p, displayRadius)))
	return Position3D{X: v.X, Y: v.Y, Z: v.Z}
}

// OrbitPath samples the orbit at segmentCount phase-uniform points over one
// revolution and closes the loop by repeating the first point. Consecutive
// points are evenly spaced in phase, not in arc length.
func OrbitPath(p Parameters, displayRadius float64, segmentCount int) (Path, error) {
	if segmentCount < MinSegments {
		return nil, fmt.Errorf("segment count %d below minimum %d", segmentCount, MinSegments)
	}

	rot := newPlaneRotation(p)
	radius := orbitRadius(p, displayRadius)

	path := make(Path, 0, segmentCount+1)
	for i := 0; i < segmentCount; i++ {
		phase := twoPi * float64(i) / float64(segmentCount)
		v := rot.apply(inPlane(phase, radius))
		path = append(path, Position3D{X: v.X, Y: v.Y, Z: v.Z})
	}
	path = append(path, path[0])

	return path, nil
}

// SubPoint returns an approximate sub-object latitude and longitude in
// degrees, measured in the orbital-plane frame before RAAN is applied.
func SubPoint(p Parameters) (latDeg, lonDeg float64) {
	sinPhase, cosPhase := math.Sincos(p.Phase)
	lat := math.Asin(sinPhase * math.Sin(p.Inclination))
	lon := math.Atan2(sinPhase*math.Cos(p.Inclination), cosPhase)
	return Degrees(lat), Degrees(lon)
}

// SurfacePosition maps a latitude/longitude in degrees onto a sphere of the
// given radius in renderer space (Y up, longitude 0 facing +X after the
// 180° texture offset).
func SurfacePosition(latDeg, lonDeg, radius float64) Position3D {
	phi := Radians(90 - latDeg)
	theta := Radians(lonDeg + 180)
	sinPhi, cosPhi := math.Sincos(phi)
	sinTheta, cosTheta := math.Sincos(theta)
	return Position3D{
		X: -radius * sinPhi * cosTheta,
		Y: radius * cosPhi,
		Z: radius * sinPhi * sinTheta,
	}
}
