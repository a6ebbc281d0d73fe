// Package transform converts SGP4 output between reference frames: TEME to
// Earth-fixed, Earth-fixed to geodetic, and Earth-fixed to the globe
// renderer's Y-up frame.
//
// TEME to ECEF uses a GMST-only rotation (TEME → PEF ≈ ECEF). Polar motion
// and the equation of the equinoxes are ignored, which costs at most ~50 m.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const j2000 = 2451545.0

// OmegaEarth is Earth's rotation rate in rad/s (IAU value).
const OmegaEarth = 7.292115146706979e-5

var (
	axisZ     = r3.Vec{Z: 1}
	earthSpin = r3.Vec{Z: OmegaEarth}
)

// StateTEME is a position (km) and velocity (km/s) in the TEME frame.
type StateTEME struct {
	Pos r3.Vec
	Vel r3.Vec
}

// StateECEF is a position (m) and velocity (m/s) in the ECEF frame.
type StateECEF struct {
	Pos r3.Vec
	Vel r3.Vec
}

// JulianDate converts a UTC time to a Julian Date (Meeus, ch. 7).
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	dayFrac := (float64(t.Hour()) +
		float64(t.Minute())/60 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/3600) / 24

	// January and February count as months 13 and 14 of the previous year.
	if m <= 2 {
		y--
		m += 12
	}
	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5 + dayFrac
}

// GMST returns Greenwich Mean Sidereal Time in radians, IAU-82 model
// (Vallado eq. 3-47):
//
//	θ = 67310.54841 + (876600h + 8640184.812866)·T + 0.093104·T² − 6.2e-6·T³
//
// with T in Julian centuries of UT1 from J2000.0 and θ in seconds of time.
func GMST(t time.Time) float64 {
	tu := (JulianDate(t) - j2000) / 36525.0

	sec := 67310.54841 +
		(876600*3600+8640184.812866)*tu +
		0.093104*tu*tu -
		6.2e-6*tu*tu*tu

	sec = math.Mod(sec, 86400)
	if sec < 0 {
		sec += 86400
	}
	return sec / 86400 * 2 * math.Pi
}

// TEMEToECEF converts a TEME state to ECEF at UTC time t.
func TEMEToECEF(s StateTEME, t time.Time) StateECEF {
	return TEMEToECEFWithGMST(s, GMST(t))
}

// TEMEToECEFWithGMST converts a TEME state to ECEF using a precomputed GMST
// angle in radians, for batches propagated to the same instant.
//
//	r_ECEF = R3(θ)·r_TEME
//	v_ECEF = R3(θ)·v_TEME − ω × r_ECEF
func TEMEToECEFWithGMST(s StateTEME, gmst float64) StateECEF {
	rot := r3.NewRotation(-gmst, axisZ)

	pos := rot.Rotate(s.Pos)
	vel := r3.Sub(rot.Rotate(s.Vel), r3.Cross(earthSpin, pos))

	return StateECEF{
		Pos: r3.Scale(1000, pos),
		Vel: r3.Scale(1000, vel),
	}
}

// ValidateECEF reports whether an ECEF position in meters is plausible for
// an Earth-orbiting object: finite, and between 6200 km and 50000 km from
// the geocenter.
func ValidateECEF(pos r3.Vec) bool {
	for _, v := range []float64{pos.X, pos.Y, pos.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	const (
		minRadius = 6200.0e3
		maxRadius = 50000.0e3
	)
	mag := r3.Norm(pos)
	return mag >= minRadius && mag <= maxRadius
}
