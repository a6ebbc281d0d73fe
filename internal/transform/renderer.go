package transform

import "gonum.org/v1/gonum/spatial/r3"

// ECEFToRenderer maps an ECEF position in meters into the globe renderer's
// frame, where Y points to the north pole, the prime meridian lies on +X and
// 90°E on −Z. The body of radius bodyRadiusM is drawn at displayRadius.
func ECEFToRenderer(pos r3.Vec, bodyRadiusM, displayRadius float64) r3.Vec {
	s := displayRadius / bodyRadiusM
	return r3.Vec{
		X: pos.X * s,
		Y: pos.Z * s,
		Z: -pos.Y * s,
	}
}
