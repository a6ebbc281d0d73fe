package elements

import (
	"time"

	"github.com/star/orbitview/internal/orbit"
)

// ElementSet is one object's mean orbital elements as published by Celestrak.
// Angles are in degrees, mean motion in revolutions per day. Read-only once
// parsed.
type ElementSet struct {
	CatalogID      int       `json:"NORAD_CAT_ID"`
	ObjectID       string    `json:"OBJECT_ID"`
	Name           string    `json:"OBJECT_NAME"`
	Epoch          time.Time `json:"-"`
	MeanMotion     float64   `json:"MEAN_MOTION"`
	Eccentricity   float64   `json:"ECCENTRICITY"`
	Inclination    float64   `json:"INCLINATION"`
	RAAN           float64   `json:"RA_OF_ASC_NODE"`
	ArgPerigee     float64   `json:"ARG_OF_PERICENTER"`
	MeanAnomaly    float64   `json:"MEAN_ANOMALY"`
	EphemerisType  int       `json:"EPHEMERIS_TYPE"`
	Classification string    `json:"CLASSIFICATION_TYPE"`
	ElementSetNo   int       `json:"ELEMENT_SET_NO"`
	RevAtEpoch     int       `json:"REV_AT_EPOCH"`
	BStar          float64   `json:"BSTAR"`
	MeanMotionDot  float64   `json:"MEAN_MOTION_DOT"`
	MeanMotionDDot float64   `json:"MEAN_MOTION_DDOT"`

	// Line1 and Line2 are set when the set was parsed from TLE text.
	Line1 string `json:"-"`
	Line2 string `json:"-"`
}

// Elements returns the fields the orbit model needs.
func (e ElementSet) Elements() orbit.Elements {
	return orbit.Elements{
		CatalogID:    e.CatalogID,
		Name:         e.Name,
		MeanMotion:   e.MeanMotion,
		Eccentricity: e.Eccentricity,
		Inclination:  e.Inclination,
		RAAN:         e.RAAN,
		ArgPerigee:   e.ArgPerigee,
		MeanAnomaly:  e.MeanAnomaly,
	}
}

// HasTLE reports whether the raw TLE lines are available.
func (e ElementSet) HasTLE() bool {
	return e.Line1 != "" && e.Line2 != ""
}

// EpochRange represents the minimum and maximum epoch times in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Dataset is the element sets of one satellite group from a single fetch.
type Dataset struct {
	Group      string
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Sets       []ElementSet
}

// Find returns the element set for catalogID.
func (d *Dataset) Find(catalogID int) (ElementSet, bool) {
	for _, s := range d.Sets {
		if s.CatalogID == catalogID {
			return s, true
		}
	}
	return ElementSet{}, false
}

// epochRange returns the minimum and maximum epochs of sets.
func epochRange(sets []ElementSet) EpochRange {
	var r EpochRange
	for i, s := range sets {
		if i == 0 || s.Epoch.Before(r.Min) {
			r.Min = s.Epoch
		}
		if i == 0 || s.Epoch.After(r.Max) {
			r.Max = s.Epoch
		}
	}
	return r
}
