package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/star/orbitview/internal/tracker"
)

// maxMarkerBody bounds marker request bodies.
const maxMarkerBody = 64 << 10

// hexColor is a 0xRRGGBB color. It encodes as "#rrggbb" and decodes from
// that form or a plain JSON number.
type hexColor uint32

func (c hexColor) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("#%06x", uint32(c)&0xffffff))
}

func (c *hexColor) UnmarshalJSON(b []byte) error {
	var n uint32
	if err := json.Unmarshal(b, &n); err == nil {
		*c = hexColor(n & 0xffffff)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.New("color must be a number or \"#rrggbb\"")
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return fmt.Errorf("color %q must be \"#rrggbb\"", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return fmt.Errorf("color %q must be \"#rrggbb\"", s)
	}
	*c = hexColor(v)
	return nil
}

type markerPayload struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Lat       float64    `json:"lat"`
	Lon       float64    `json:"lon"`
	Value     float64    `json:"value"`
	Color     hexColor   `json:"color"`
	Size      float64    `json:"size"`
	Position  [3]float64 `json:"position"`
	CreatedAt string     `json:"created_at"`
	UpdatedAt string     `json:"updated_at"`
}

func newMarkerPayload(m tracker.Marker) markerPayload {
	return markerPayload{
		ID:        m.ID,
		Name:      m.Name,
		Lat:       m.Lat,
		Lon:       m.Lon,
		Value:     m.Value,
		Color:     hexColor(m.Color),
		Size:      m.Size,
		Position:  [3]float64{m.Position.X, m.Position.Y, m.Position.Z},
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: m.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type createMarkerRequest struct {
	Name  string    `json:"name"`
	Lat   *float64  `json:"lat"`
	Lon   *float64  `json:"lon"`
	Value float64   `json:"value"`
	Color *hexColor `json:"color"`
}

type updateMarkerRequest struct {
	Name  *string   `json:"name"`
	Value *float64  `json:"value"`
	Color *hexColor `json:"color"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMarkerBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// GET /api/v1/markers
func (h *handlers) listMarkers(w http.ResponseWriter, r *http.Request) {
	markers := h.ctrl.Markers()
	out := make([]markerPayload, len(markers))
	for i, m := range markers {
		out[i] = newMarkerPayload(m)
	}
	writeJSON(w, http.StatusOK, map[string]any{"markers": out})
}

// POST /api/v1/markers
func (h *handlers) createMarker(w http.ResponseWriter, r *http.Request) {
	var req createMarkerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Lat == nil || req.Lon == nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}

	spec := tracker.MarkerSpec{
		Name:  req.Name,
		Lat:   *req.Lat,
		Lon:   *req.Lon,
		Value: req.Value,
	}
	if req.Color != nil {
		c := uint32(*req.Color)
		spec.Color = &c
	}
	m, err := h.ctrl.AddMarker(spec)
	if err != nil {
		h.markerError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/markers/"+m.ID)
	writeJSON(w, http.StatusCreated, newMarkerPayload(m))
}

// PUT /api/v1/markers/{id}
func (h *handlers) updateMarker(w http.ResponseWriter, r *http.Request) {
	var req updateMarkerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	u := tracker.MarkerUpdate{Name: req.Name, Value: req.Value}
	if req.Color != nil {
		c := uint32(*req.Color)
		u.Color = &c
	}
	m, err := h.ctrl.UpdateMarker(r.PathValue("id"), u)
	if err != nil {
		h.markerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMarkerPayload(m))
}

// DELETE /api/v1/markers/{id}
func (h *handlers) deleteMarker(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.RemoveMarker(r.PathValue("id")); err != nil {
		h.markerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) markerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracker.ErrMarkerNotFound):
		writeError(w, http.StatusNotFound, "marker not found")
	case errors.Is(err, tracker.ErrInvalidMarker):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("marker operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "marker operation failed")
	}
}
