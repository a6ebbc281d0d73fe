package tracker

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/star/orbitview/internal/orbit"
)

// Marker errors.
var (
	ErrMarkerNotFound = errors.New("marker not found")
	ErrInvalidMarker  = errors.New("invalid marker")
)

// Marker geometry.
const (
	// MarkerAltitude lifts markers above the globe surface.
	MarkerAltitude = 0.05
	// DefaultMarkerColor is red.
	DefaultMarkerColor uint32 = 0xff0000

	markerBaseSize  = 0.05
	markerSizeScale = 0.1
	markerValueNorm = 2e7
)

// Marker is a coordinate marker drawn on the globe.
type Marker struct {
	ID        string
	Name      string
	Lat       float64 // degrees
	Lon       float64 // degrees
	Value     float64
	Color     uint32 // 0xRRGGBB
	Size      float64
	Position  orbit.Position3D
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MarkerSpec describes a new marker. A nil Color selects DefaultMarkerColor.
type MarkerSpec struct {
	Name  string
	Lat   float64
	Lon   float64
	Value float64
	Color *uint32
}

// MarkerUpdate changes selected marker fields; nil fields are left as is.
type MarkerUpdate struct {
	Name  *string
	Value *float64
	Color *uint32
}

// MarkerSize returns the marker sphere radius for a data value.
func MarkerSize(value float64) float64 {
	return markerBaseSize + value/markerValueNorm*markerSizeScale
}

// SampleMarkers are the default city markers.
func SampleMarkers() []MarkerSpec {
	return []MarkerSpec{
		{Name: "New York", Lat: 40.7128, Lon: -74.0060, Value: 8419000, Color: rgb(0xff0000)},
		{Name: "London", Lat: 51.5074, Lon: -0.1278, Value: 8982000, Color: rgb(0x00ff00)},
		{Name: "Tokyo", Lat: 35.6762, Lon: 139.6503, Value: 13960000, Color: rgb(0x0000ff)},
		{Name: "Sydney", Lat: -33.8688, Lon: 151.2093, Value: 5312000, Color: rgb(0xff00ff)},
		{Name: "Nairobi", Lat: -1.2921, Lon: 36.8219, Value: 4397000, Color: rgb(0xffff00)},
	}
}

func rgb(c uint32) *uint32 { return &c }

type markerSet struct {
	mu            sync.RWMutex
	byID          map[string]*Marker
	nextID        int
	displayRadius float64
	now           func() time.Time
}

// AddMarker places a new marker and returns it.
func (c *Controller) AddMarker(spec MarkerSpec) (Marker, error) {
	if err := validateMarker(spec.Lat, spec.Lon, spec.Value); err != nil {
		return Marker{}, err
	}
	color := uint32(DefaultMarkerColor)
	if spec.Color != nil {
		color = *spec.Color
	}

	s := &c.markers
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byID == nil {
		s.byID = make(map[string]*Marker)
	}
	s.nextID++
	now := s.now()
	m := &Marker{
		ID:        "m-" + strconv.Itoa(s.nextID),
		Name:      spec.Name,
		Lat:       spec.Lat,
		Lon:       spec.Lon,
		Value:     spec.Value,
		Color:     color & 0xffffff,
		Size:      MarkerSize(spec.Value),
		Position:  orbit.SurfacePosition(spec.Lat, spec.Lon, s.displayRadius+MarkerAltitude),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byID[m.ID] = m
	return *m, nil
}

// UpdateMarker merges u into marker id. A new value resizes the marker.
func (c *Controller) UpdateMarker(id string, u MarkerUpdate) (Marker, error) {
	if u.Value != nil {
		if err := validateValue(*u.Value); err != nil {
			return Marker{}, err
		}
	}

	s := &c.markers
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return Marker{}, fmt.Errorf("%w: %s", ErrMarkerNotFound, id)
	}
	if u.Name != nil {
		m.Name = *u.Name
	}
	if u.Value != nil {
		m.Value = *u.Value
		m.Size = MarkerSize(m.Value)
	}
	if u.Color != nil {
		m.Color = *u.Color & 0xffffff
	}
	m.UpdatedAt = s.now()
	return *m, nil
}

// RemoveMarker deletes marker id.
func (c *Controller) RemoveMarker(id string) error {
	s := &c.markers
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return fmt.Errorf("%w: %s", ErrMarkerNotFound, id)
	}
	delete(s.byID, id)
	return nil
}

// Markers returns every marker in creation order.
func (c *Controller) Markers() []Marker {
	s := &c.markers
	s.mu.RLock()
	out := make([]Marker, 0, len(s.byID))
	for _, m := range s.byID {
		out = append(out, *m)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return markerSeq(out[i].ID) < markerSeq(out[j].ID)
	})
	return out
}

func markerSeq(id string) int {
	n, _ := strconv.Atoi(id[len("m-"):])
	return n
}

func validateMarker(lat, lon, value float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %g outside [-90, 90]", ErrInvalidMarker, lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %g outside [-180, 180]", ErrInvalidMarker, lon)
	}
	return validateValue(value)
}

func validateValue(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: value %g must be finite and non-negative", ErrInvalidMarker, v)
	}
	return nil
}
