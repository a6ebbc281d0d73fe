package orbit

import "math"

// DefaultSpeedConstant is the phase-rate constant in rad/s at unit height.
// It matches a 1e-6 rad per frame animation constant at 60 frames per second.
const DefaultSpeedConstant = 6e-5

// AngularSpeed returns the heuristic phase rate in rad/s for p:
// speedConstant * height^-1.5. Non-positive heights have no finite rate and
// return 0.
func AngularSpeed(p Parameters, speedConstant float64) float64 {
	if p.Height <= 0 {
		return 0
	}
	return speedConstant * math.Pow(p.Height, -1.5)
}

// AdvancePhase returns a copy of p with its phase advanced by dt seconds.
//
// This is a visualization heuristic (Kepler's third law applied to the
// normalized height), not orbital dynamics: eccentricity, drag and
// perturbations are ignored and the resulting rate is not physical. Calls for
// one object must be applied in time order.
func AdvancePhase(p Parameters, dt, speedConstant float64) Parameters {
	w := AngularSpeed(p, speedConstant)
	if w == 0 || dt == 0 || !finite(dt) {
		return p
	}
	p.Phase = normalizeAngle(p.Phase + w*dt)
	return p
}

// HeuristicPeriod returns the seconds AdvancePhase needs to sweep one full
// revolution, or +Inf when the object has no finite rate.
func HeuristicPeriod(p Parameters, speedConstant float64) float64 {
	w := AngularSpeed(p, speedConstant)
	if w <= 0 {
		return math.Inf(1)
	}
	return twoPi / w
}

// PhaseDelta returns the signed shortest angular distance from a to b, in
// (-π, π].
func PhaseDelta(a, b float64) float64 {
	d := math.Mod(b-a, twoPi)
	if d > math.Pi {
		d -= twoPi
	} else if d <= -math.Pi {
		d += twoPi
	}
	return d
}
