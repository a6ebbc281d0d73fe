package tracker

import (
	"errors"
	"log/slog"
	"time"

	"github.com/star/orbitview/internal/elements"
	"github.com/star/orbitview/internal/metrics"
	"github.com/star/orbitview/internal/orbit"
)

// Object is a tracked object with valid derived parameters.
type Object struct {
	CatalogID  int
	Name       string
	ObjectID   string
	Epoch      time.Time
	Params     orbit.Parameters // phase is the mean anomaly at epoch
	AltitudeKm float64
}

// Rejection records an element set the orbit model could not use.
type Rejection struct {
	CatalogID int
	Name      string
	Field     string
	Value     float64
	Reason    orbit.Reason
}

// GroupView is the derived, read-only view of one group dataset. A new view
// is built whenever the dataset changes.
type GroupView struct {
	Group     string
	FetchedAt time.Time
	Objects   []Object
	Rejected  []Rejection

	index map[int]int
}

// NewGroupView derives parameters for every set in ds. Sets that fail are
// excluded and recorded in Rejected; they never affect the others.
func NewGroupView(ds *elements.Dataset, body orbit.Body, logger *slog.Logger) *GroupView {
	v := &GroupView{
		Group:     ds.Group,
		FetchedAt: ds.FetchedAt,
		Objects:   make([]Object, 0, len(ds.Sets)),
		index:     make(map[int]int, len(ds.Sets)),
	}

	for _, set := range ds.Sets {
		p, err := body.Derive(set.Elements())
		if err != nil {
			var de *orbit.DerivationError
			if !errors.As(err, &de) {
				de = &orbit.DerivationError{CatalogID: set.CatalogID, Name: set.Name, Reason: orbit.ReasonNonFinite}
			}
			logger.Warn("excluding object from group",
				"group", ds.Group,
				"catalog_id", de.CatalogID,
				"name", de.Name,
				"field", de.Field,
				"value", de.Value,
				"reason", string(de.Reason),
			)
			metrics.RecordRejection(ds.Group, string(de.Reason))
			v.Rejected = append(v.Rejected, Rejection{
				CatalogID: de.CatalogID,
				Name:      de.Name,
				Field:     de.Field,
				Value:     de.Value,
				Reason:    de.Reason,
			})
			continue
		}

		// The first set wins when a feed repeats a catalog number.
		if _, dup := v.index[set.CatalogID]; dup {
			continue
		}
		v.index[set.CatalogID] = len(v.Objects)
		v.Objects = append(v.Objects, Object{
			CatalogID:  set.CatalogID,
			Name:       set.Name,
			ObjectID:   set.ObjectID,
			Epoch:      set.Epoch,
			Params:     p,
			AltitudeKm: orbit.AltitudeKm(p, body.RadiusKm),
		})
	}

	metrics.RecordDerivations(ds.Group, len(v.Objects), len(v.Rejected))
	metrics.SetTrackedObjects(ds.Group, len(v.Objects))
	return v
}

// Find returns the tracked object with catalogID.
func (v *GroupView) Find(catalogID int) (Object, bool) {
	i, ok := v.index[catalogID]
	if !ok {
		return Object{}, false
	}
	return v.Objects[i], true
}

// Len returns the number of tracked objects.
func (v *GroupView) Len() int {
	return len(v.Objects)
}
