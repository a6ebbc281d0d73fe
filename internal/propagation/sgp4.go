package propagation

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/orbitview/internal/transform"
)

// SGP4 is the reference propagator for one object, backed by
// github.com/joshuaferrara/go-satellite.
//
// satellite.Propagate takes the Satellite by value, so SGP4 error codes never
// reach the caller. Failures are detected from NaN/Inf output and
// implausible radii instead.
type SGP4 struct {
	sat       satellite.Satellite
	catalogID int
}

// NewSGP4 initializes SGP4 from TLE lines.
//
// The lines are pre-validated because go-satellite calls log.Fatal on
// malformed input.
func NewSGP4(line1, line2 string, catalogID int) (*SGP4, error) {
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for catalog %d: %w", catalogID, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for catalog %d: code=%d %s", catalogID, sat.Error, sat.ErrorStr)
	}
	return &SGP4{sat: sat, catalogID: catalogID}, nil
}

func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// Propagate returns the TEME state (km, km/s) at UTC time t.
func (p *SGP4) Propagate(t time.Time) (transform.StateTEME, error) {
	t = t.UTC()
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	state := transform.StateTEME{
		Pos: r3.Vec{X: pos.X, Y: pos.Y, Z: pos.Z},
		Vel: r3.Vec{X: vel.X, Y: vel.Y, Z: vel.Z},
	}

	for _, v := range []float64{pos.X, pos.Y, pos.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return transform.StateTEME{}, fmt.Errorf("sgp4 propagation failed for catalog %d: output is NaN/Inf", p.catalogID)
		}
	}

	// Position magnitude should be between ~6200 km and ~50000 km.
	if mag := r3.Norm(state.Pos); mag < 6200.0 || mag > 50000.0 {
		return transform.StateTEME{}, fmt.Errorf("sgp4 propagation failed for catalog %d: unreasonable position magnitude %.1f km", p.catalogID, mag)
	}

	return state, nil
}
