package orbit

import (
	"errors"
	"fmt"
)

// ErrDerivation is matched by every *DerivationError via errors.Is.
var ErrDerivation = errors.New("orbit derivation failed")

// Reason labels why an element set was rejected. Values are stable and used
// as metric labels.
type Reason string

const (
	ReasonMeanMotion   Reason = "mean_motion"
	ReasonEccentricity Reason = "eccentricity"
	ReasonInclination  Reason = "inclination"
	ReasonNonFinite    Reason = "non_finite"
	ReasonBodyRadius   Reason = "body_radius"
	ReasonSubsurface   Reason = "subsurface"
)

// DerivationError reports an element set that cannot produce valid orbit
// parameters. Callers drop the offending object and keep processing the rest.
type DerivationError struct {
	CatalogID int
	Name      string
	Field     string
	Value     float64
	Reason    Reason
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("catalog %d (%s): invalid %s %g: %s", e.CatalogID, e.Name, e.Field, e.Value, e.Reason)
}

// Unwrap lets errors.Is(err, ErrDerivation) match.
func (e *DerivationError) Unwrap() error {
	return ErrDerivation
}
