package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orbitview/internal/cache"
	"github.com/star/orbitview/internal/elements"
	"github.com/star/orbitview/internal/orbit"
	"github.com/star/orbitview/internal/tracker"
)

// Query limits.
const (
	maxSegments   = 10000
	maxRadius     = 1e6
	maxPositionT  = 1e9 // seconds
	timestampForm = time.RFC3339
)

type handlers struct {
	ctrl   *tracker.Controller
	store  *elements.Store
	paths  *cache.PathCache
	logger *slog.Logger
}

// ready reports true once at least one group has been loaded.
func (h *handlers) ready() bool {
	return len(h.ctrl.Loaded()) > 0
}

type groupStatus struct {
	Name             string   `json:"name"`
	Loaded           bool     `json:"loaded"`
	Source           string   `json:"source,omitempty"`
	Objects          int      `json:"objects"`
	Rejected         int      `json:"rejected"`
	DatasetFetchedAt string   `json:"dataset_fetched_at,omitempty"`
	AgeSeconds       *float64 `json:"age_seconds,omitempty"`
}

// GET /api/v1/groups
func (h *handlers) listGroups(w http.ResponseWriter, r *http.Request) {
	loaded := make(map[string]*tracker.GroupView)
	for _, v := range h.ctrl.Loaded() {
		loaded[v.Group] = v
	}

	groups := elements.KnownGroups()
	out := make([]groupStatus, 0, len(groups))
	for _, g := range groups {
		st := groupStatus{Name: g}
		if v, ok := loaded[g]; ok {
			st.Loaded = true
			st.Objects = len(v.Objects)
			st.Rejected = len(v.Rejected)
			st.DatasetFetchedAt = v.FetchedAt.UTC().Format(timestampForm)
		}
		if h.store != nil {
			if ds := h.store.Get(g); ds != nil {
				age := h.store.AgeSeconds(g)
				st.Source = ds.Source
				st.AgeSeconds = &age
			}
		}
		out = append(out, st)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"default": elements.DefaultGroup,
		"groups":  out,
	})
}

type subPoint struct {
	LatDeg float64 `json:"lat_deg"`
	LonDeg float64 `json:"lon_deg"`
}

type paramsPayload struct {
	Height         float64 `json:"height"`
	InclinationDeg float64 `json:"inclination_deg"`
	RAANDeg        float64 `json:"raan_deg"`
	ArgPerigeeDeg  float64 `json:"arg_perigee_deg"`
	PhaseDeg       float64 `json:"phase_deg"`
}

type satellitePayload struct {
	CatalogID        int           `json:"catalog_id"`
	Name             string        `json:"name"`
	ObjectID         string        `json:"object_id,omitempty"`
	Epoch            string        `json:"epoch,omitempty"`
	AltitudeKm       float64       `json:"altitude_km"`
	Params           paramsPayload `json:"params"`
	SubPoint         subPoint      `json:"subpoint"`
	HeuristicPeriodS *float64      `json:"heuristic_period_seconds,omitempty"`
}

type rejectionPayload struct {
	CatalogID int      `json:"catalog_id"`
	Name      string   `json:"name"`
	Field     string   `json:"field"`
	Value     *float64 `json:"value"` // null when not finite
	Reason    string   `json:"reason"`
}

func newParamsPayload(p orbit.Parameters) paramsPayload {
	return paramsPayload{
		Height:         p.Height,
		InclinationDeg: orbit.Degrees(p.Inclination),
		RAANDeg:        orbit.Degrees(p.RAAN),
		ArgPerigeeDeg:  orbit.Degrees(p.ArgPerigee),
		PhaseDeg:       orbit.Degrees(p.Phase),
	}
}

func newSubPoint(p orbit.Parameters) subPoint {
	lat, lon := orbit.SubPoint(p)
	return subPoint{LatDeg: lat, LonDeg: lon}
}

func finitePtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// GET /api/v1/groups/{group}/satellites
func (h *handlers) listSatellites(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	speed := h.ctrl.Config().SpeedConstant

	sats := make([]satellitePayload, len(v.Objects))
	for i, obj := range v.Objects {
		sats[i] = satellitePayload{
			CatalogID:        obj.CatalogID,
			Name:             obj.Name,
			ObjectID:         obj.ObjectID,
			AltitudeKm:       obj.AltitudeKm,
			Params:           newParamsPayload(obj.Params),
			SubPoint:         newSubPoint(obj.Params),
			HeuristicPeriodS: finitePtr(orbit.HeuristicPeriod(obj.Params, speed)),
		}
		if !obj.Epoch.IsZero() {
			sats[i].Epoch = obj.Epoch.UTC().Format(time.RFC3339Nano)
		}
	}

	rejected := make([]rejectionPayload, len(v.Rejected))
	for i, rj := range v.Rejected {
		rejected[i] = rejectionPayload{
			CatalogID: rj.CatalogID,
			Name:      rj.Name,
			Field:     rj.Field,
			Value:     finitePtr(rj.Value),
			Reason:    string(rj.Reason),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"group":              v.Group,
		"dataset_fetched_at": v.FetchedAt.UTC().Format(timestampForm),
		"count":              len(sats),
		"satellites":         sats,
		"rejected":           rejected,
	})
}

// GET /api/v1/groups/{group}/satellites/{id}/orbit?segments=&radius=
func (h *handlers) orbitPath(w http.ResponseWriter, r *http.Request) {
	id, ok := catalogID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	segments := 0
	if s := q.Get("segments"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < orbit.MinSegments || n > maxSegments {
			writeError(w, http.StatusBadRequest, "invalid segments parameter, must be 3-10000")
			return
		}
		segments = n
	}
	radius, ok := radiusParam(w, r)
	if !ok {
		return
	}

	v, ok := h.view(w, r)
	if !ok {
		return
	}
	path, err := h.ctrl.OrbitPath(v, id, segments, radius)
	if err != nil {
		h.lookupError(w, err)
		return
	}

	points := make([][3]float64, len(path))
	for i, p := range path {
		points[i] = [3]float64{p.X, p.Y, p.Z}
	}
	if radius == 0 {
		radius = h.ctrl.Config().DisplayRadius
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group":          v.Group,
		"catalog_id":     id,
		"segments":       len(path) - 1,
		"display_radius": radius,
		"points":         points,
	})
}

// GET /api/v1/groups/{group}/satellites/{id}/position?t=&radius=
func (h *handlers) position(w http.ResponseWriter, r *http.Request) {
	id, ok := catalogID(w, r)
	if !ok {
		return
	}

	t := 0.0
	if s := r.URL.Query().Get("t"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.Abs(f) > maxPositionT {
			writeError(w, http.StatusBadRequest, "invalid t parameter, must be seconds within ±1e9")
			return
		}
		t = f
	}
	radius, ok := radiusParam(w, r)
	if !ok {
		return
	}

	v, ok := h.view(w, r)
	if !ok {
		return
	}
	p, pos, err := h.ctrl.PositionAt(v, id, t, radius)
	if err != nil {
		h.lookupError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"group":      v.Group,
		"catalog_id": id,
		"t":          t,
		"params":     newParamsPayload(p),
		"subpoint":   newSubPoint(p),
		"position":   [3]float64{pos.X, pos.Y, pos.Z},
	})
}

// POST /api/v1/groups/{group}/refresh
func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	group := r.PathValue("group")
	if !elements.IsKnownGroup(group) {
		writeError(w, http.StatusNotFound, "unknown group")
		return
	}

	v, err := h.ctrl.Refresh(r.Context(), group)
	if err != nil {
		h.logger.Warn("group refresh failed", "group", group, "error", err)
		switch {
		case errors.Is(err, elements.ErrRateLimited):
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "upstream rate limited")
		case errors.Is(err, elements.ErrNotFound):
			writeError(w, http.StatusNotFound, "group not found upstream")
		default:
			writeError(w, http.StatusBadGateway, "refresh failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"group":              v.Group,
		"dataset_fetched_at": v.FetchedAt.UTC().Format(timestampForm),
		"objects":            len(v.Objects),
		"rejected":           len(v.Rejected),
	})
}

// GET /api/v1/path-cache/stats
func (h *handlers) pathCacheStats(w http.ResponseWriter, r *http.Request) {
	if h.paths == nil {
		writeError(w, http.StatusNotFound, "path cache disabled")
		return
	}
	s := h.paths.Stats()
	resp := map[string]any{
		"entries":    s.Entries,
		"size_bytes": s.SizeBytes,
		"hits":       s.Hits,
		"misses":     s.Misses,
		"evictions":  s.Evictions,
		"purged":     s.Purged,
	}
	if !s.OldestEntry.IsZero() {
		resp["oldest_entry"] = s.OldestEntry.UTC().Format(timestampForm)
		resp["newest_entry"] = s.NewestEntry.UTC().Format(timestampForm)
	}
	writeJSON(w, http.StatusOK, resp)
}

// view resolves the {group} path value to a loaded view, writing the error
// response itself when it cannot.
func (h *handlers) view(w http.ResponseWriter, r *http.Request) (*tracker.GroupView, bool) {
	group := r.PathValue("group")
	if !elements.IsKnownGroup(group) {
		writeError(w, http.StatusNotFound, "unknown group")
		return nil, false
	}
	v, err := h.ctrl.View(r.Context(), group)
	if err != nil {
		h.logger.Warn("group unavailable", "group", group, "error", err)
		writeError(w, http.StatusServiceUnavailable, "group data unavailable")
		return nil, false
	}
	return v, true
}

func (h *handlers) lookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracker.ErrObjectNotFound):
		writeError(w, http.StatusNotFound, "satellite not found")
	case errors.Is(err, tracker.ErrInvalidRadius):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("orbit computation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "orbit computation failed")
	}
}

func catalogID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid catalog id")
		return 0, false
	}
	return id, true
}

// radiusParam parses ?radius=; zero means the configured display radius.
func radiusParam(w http.ResponseWriter, r *http.Request) (float64, bool) {
	s := r.URL.Query().Get("radius")
	if s == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !(f > 0) || f > maxRadius {
		writeError(w, http.StatusBadRequest, "invalid radius parameter, must be a positive number")
		return 0, false
	}
	return f, true
}
