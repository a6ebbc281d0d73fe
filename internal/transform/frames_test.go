package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"
)

// TestJulianDate verifies the Julian Date calculation against known values.
func TestJulianDate(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected float64
	}{
		{
			name:     "J2000.0 epoch",
			time:     time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
			expected: 2451545.0,
		},
		{
			name:     "Unix epoch",
			time:     time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			expected: 2440587.5,
		},
		{
			// Vallado Example 3-15: April 6, 2004, 07:51:28.386 UTC
			name:     "Vallado example date",
			time:     time.Date(2004, 4, 6, 7, 51, 28, 386009000, time.UTC),
			expected: 2453101.827411875,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDate(tt.time)
			if diff := math.Abs(got - tt.expected); diff > 1e-6 {
				t.Errorf("JulianDate(%v) = %.10f, want %.10f (diff=%.2e)", tt.time, got, tt.expected, diff)
			}
		})
	}
}

// TestGMST checks GMST against go-satellite's GSTimeFromDate, which uses the
// same IAU-82 model.
func TestGMST(t *testing.T) {
	times := []time.Time{
		time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		time.Date(2026, 2, 6, 4, 1, 0, 0, time.UTC),
	}

	for _, tm := range times {
		t.Run(tm.Format(time.RFC3339), func(t *testing.T) {
			ours := GMST(tm)
			ref := satellite.GSTimeFromDate(tm.Year(), int(tm.Month()), tm.Day(), tm.Hour(), tm.Minute(), tm.Second())
			// 1e-8 rad ≈ 0.06 arcsec.
			if diff := math.Abs(ours - ref); diff > 1e-8 {
				t.Errorf("GMST = %.12f rad, go-satellite = %.12f rad (diff=%.2e)", ours, ref, diff)
			}
		})
	}
}

// TestTEMEToECEF compares the rotation against go-satellite's ECIToECEF for
// the same GMST. Both ignore nutation and polar motion.
func TestTEMEToECEF(t *testing.T) {
	tests := []struct {
		name string
		teme StateTEME
		time time.Time
	}{
		{
			name: "Vallado example 3-15",
			teme: StateTEME{
				Pos: r3.Vec{X: 5094.18016, Y: 6127.64465, Z: 6380.34453},
				Vel: r3.Vec{X: -4.746131487, Y: 0.786598499, Z: 5.531931288},
			},
			time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		},
		{
			name: "LEO equatorial",
			teme: StateTEME{Pos: r3.Vec{X: 6778}, Vel: r3.Vec{Y: 7.5}},
			time: time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "LEO polar",
			teme: StateTEME{Pos: r3.Vec{Z: 6978}, Vel: r3.Vec{X: 7.4}},
			time: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gmst := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)

			ours := TEMEToECEFWithGMST(tt.teme, gmst)
			ref := satellite.ECIToECEF(satellite.Vector3{X: tt.teme.Pos.X, Y: tt.teme.Pos.Y, Z: tt.teme.Pos.Z}, gmst)
			refM := r3.Vec{X: ref.X * 1000, Y: ref.Y * 1000, Z: ref.Z * 1000}

			const tolerance = 1.0 // meter
			if d := r3.Norm(r3.Sub(ours.Pos, refM)); d > tolerance {
				t.Errorf("position mismatch %.6f m:\n  ours: %v\n  ref:  %v", d, ours.Pos, refM)
			}
			if !ValidateECEF(ours.Pos) {
				t.Errorf("ECEF position failed validation: %v", ours.Pos)
			}
		})
	}
}

// TestTEMEToECEFVelocity verifies the velocity includes the Earth rotation
// correction.
func TestTEMEToECEFVelocity(t *testing.T) {
	teme := StateTEME{Pos: r3.Vec{X: 6778}, Vel: r3.Vec{Y: 7.5}}

	// GMST = 0 aligns the TEME X axis with ECEF X.
	ecef := TEMEToECEFWithGMST(teme, 0)

	if math.Abs(ecef.Pos.X-6778000.0) > 0.1 {
		t.Errorf("X position: got %.1f, want 6778000.0", ecef.Pos.X)
	}

	// ω·R = 7.292115e-5 · 6778 ≈ 0.4943 km/s.
	wantVY := (7.5 - OmegaEarth*6778.0) * 1000.0
	if math.Abs(ecef.Vel.Y-wantVY) > 0.1 {
		t.Errorf("VY: got %.1f m/s, want %.1f m/s", ecef.Vel.Y, wantVY)
	}
}

func TestValidateECEF(t *testing.T) {
	tests := []struct {
		name  string
		pos   r3.Vec
		valid bool
	}{
		{"LEO", r3.Vec{X: 6778000}, true},
		{"GEO", r3.Vec{X: 42164000}, true},
		{"too low", r3.Vec{X: 5000000}, false},
		{"too high", r3.Vec{X: 60000000}, false},
		{"NaN", r3.Vec{X: math.NaN()}, false},
		{"Inf", r3.Vec{X: math.Inf(1)}, false},
		{"zero", r3.Vec{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateECEF(tt.pos); got != tt.valid {
				t.Errorf("ValidateECEF(%v) = %v, want %v", tt.pos, got, tt.valid)
			}
		})
	}
}
