package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/star/orbitview/internal/auth"
	"github.com/star/orbitview/internal/cache"
	"github.com/star/orbitview/internal/elements"
	"github.com/star/orbitview/internal/propagation"
	"github.com/star/orbitview/internal/tracker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type fakeLoader struct {
	ds         *elements.Dataset
	refreshErr error
}

func (f *fakeLoader) Load(ctx context.Context, group string) (*elements.Dataset, error) {
	return f.ds, nil
}

func (f *fakeLoader) Refresh(ctx context.Context, group string) (*elements.Dataset, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.ds, nil
}

func testDataset() *elements.Dataset {
	return &elements.Dataset{
		Group:     "stations",
		Source:    "test",
		FetchedAt: time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC),
		Sets: []elements.ElementSet{
			{CatalogID: 25544, Name: "ISS (ZARYA)", ObjectID: "1998-067A", MeanMotion: 15.5, Eccentricity: 0.0001, Inclination: 51.64, RAAN: 100},
			{CatalogID: 48274, Name: "CSS (TIANHE)", MeanMotion: 15.6, Eccentricity: 0.0005, Inclination: 41.47},
			{CatalogID: 90001, Name: "NAN", MeanMotion: math.NaN()},
		},
	}
}

type testEnv struct {
	handler http.Handler
	ctrl    *tracker.Controller
	loader  *fakeLoader
}

func newTestEnv(t *testing.T, authCfg auth.Config) *testEnv {
	t.Helper()
	loader := &fakeLoader{ds: testDataset()}
	pool := propagation.NewWorkerPool(propagation.Config{Workers: 1}, testLogger())
	paths := cache.NewPathCache(cache.Config{}, testLogger())
	ctrl := tracker.New(loader, paths, pool, tracker.Config{}, testLogger())

	store := elements.NewStore()
	store.Set(loader.ds)

	srv := NewServer(Config{Addr: ":0", Auth: authCfg}, Deps{
		Controller: ctrl,
		Store:      store,
		Paths:      paths,
	}, testLogger())
	return &testEnv{handler: srv.Handler(), ctrl: ctrl, loader: loader}
}

func (e *testEnv) do(t *testing.T, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
	return m
}

func TestReadyzAfterFirstLoad(t *testing.T) {
	env := newTestEnv(t, auth.Config{})

	if w := env.do(t, "GET", "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before load = %d, want 503", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/groups/stations/satellites", ""); w.Code != http.StatusOK {
		t.Fatalf("satellites = %d", w.Code)
	}
	if w := env.do(t, "GET", "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("readyz after load = %d, want 200", w.Code)
	}
}

func TestListGroups(t *testing.T) {
	env := newTestEnv(t, auth.Config{})
	env.do(t, "GET", "/api/v1/groups/stations/satellites", "")

	w := env.do(t, "GET", "/api/v1/groups", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode(t, w)
	if resp["default"] != "stations" {
		t.Errorf("default = %v", resp["default"])
	}

	groups := resp["groups"].([]any)
	if len(groups) != len(elements.KnownGroups()) {
		t.Errorf("groups = %d, want %d", len(groups), len(elements.KnownGroups()))
	}
	var found bool
	for _, g := range groups {
		g := g.(map[string]any)
		if g["name"] != "stations" {
			if g["loaded"] == true {
				t.Errorf("group %v reported loaded", g["name"])
			}
			continue
		}
		found = true
		if g["loaded"] != true || g["objects"].(float64) != 2 || g["rejected"].(float64) != 1 {
			t.Errorf("stations status = %v", g)
		}
		if g["source"] != "test" {
			t.Errorf("source = %v", g["source"])
		}
	}
	if !found {
		t.Error("stations missing from group list")
	}
}

func TestListSatellites(t *testing.T) {
	env := newTestEnv(t, auth.Config{})

	w := env.do(t, "GET", "/api/v1/groups/stations/satellites", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	resp := decode(t, w)

	sats := resp["satellites"].([]any)
	if len(sats) != 2 {
		t.Fatalf("satellites = %d, want 2", len(sats))
	}
	iss := sats[0].(map[string]any)
	if iss["catalog_id"].(float64) != 25544 || iss["object_id"] != "1998-067A" {
		t.Errorf("first satellite = %v", iss)
	}
	params := iss["params"].(map[string]any)
	if math.Abs(params["inclination_deg"].(float64)-51.64) > 1e-9 {
		t.Errorf("inclination_deg = %v", params["inclination_deg"])
	}
	if math.Abs(params["raan_deg"].(float64)-100) > 1e-9 {
		t.Errorf("raan_deg = %v", params["raan_deg"])
	}
	if _, ok := iss["subpoint"].(map[string]any)["lat_deg"]; !ok {
		t.Error("missing subpoint")
	}

	rejected := resp["rejected"].([]any)
	if len(rejected) != 1 {
		t.Fatalf("rejected = %d, want 1", len(rejected))
	}
	rj := rejected[0].(map[string]any)
	if rj["reason"] != "non_finite" || rj["value"] != nil {
		t.Errorf("rejection = %v", rj)
	}
}

func TestUnknownGroup(t *testing.T) {
	env := newTestEnv(t, auth.Config{})
	for _, target := range []string{
		"/api/v1/groups/bogus/satellites",
		"/api/v1/groups/bogus/satellites/25544/orbit",
	} {
		w := env.do(t, "GET", target, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("%s = %d, want 404", target, w.Code)
		}
		if decode(t, w)["error"] == nil {
			t.Errorf("%s: expected error field", target)
		}
	}
}

func TestOrbitPath(t *testing.T) {
	env := newTestEnv(t, auth.Config{})

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantPoints int
	}{
		{"default segments", "/api/v1/groups/stations/satellites/25544/orbit", http.StatusOK, 201},
		{"custom segments", "/api/v1/groups/stations/satellites/25544/orbit?segments=8&radius=2", http.StatusOK, 9},
		{"too few segments", "/api/v1/groups/stations/satellites/25544/orbit?segments=2", http.StatusBadRequest, 0},
		{"too many segments", "/api/v1/groups/stations/satellites/25544/orbit?segments=20000", http.StatusBadRequest, 0},
		{"bad radius", "/api/v1/groups/stations/satellites/25544/orbit?radius=-1", http.StatusBadRequest, 0},
		{"bad id", "/api/v1/groups/stations/satellites/iss/orbit", http.StatusBadRequest, 0},
		{"rejected object", "/api/v1/groups/stations/satellites/90001/orbit", http.StatusNotFound, 0},
		{"missing object", "/api/v1/groups/stations/satellites/1/orbit", http.StatusNotFound, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "GET", tt.target, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			resp := decode(t, w)
			if tt.wantStatus != http.StatusOK {
				if resp["error"] == nil {
					t.Error("expected error field in response")
				}
				return
			}
			points := resp["points"].([]any)
			if len(points) != tt.wantPoints {
				t.Fatalf("points = %d, want %d", len(points), tt.wantPoints)
			}
			first := points[0].([]any)
			last := points[len(points)-1].([]any)
			for i := range first {
				if first[i] != last[i] {
					t.Errorf("path not closed: %v vs %v", first, last)
				}
			}
		})
	}
}

func TestPosition(t *testing.T) {
	env := newTestEnv(t, auth.Config{})

	w := env.do(t, "GET", "/api/v1/groups/stations/satellites/48274/position?t=3600", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	resp := decode(t, w)

	v, _ := env.ctrl.View(context.Background(), "stations")
	want, pos, _ := env.ctrl.PositionAt(v, 48274, 3600, 0)
	params := resp["params"].(map[string]any)
	if math.Abs(params["phase_deg"].(float64)-want.Phase*180/math.Pi) > 1e-9 {
		t.Errorf("phase_deg = %v", params["phase_deg"])
	}
	p := resp["position"].([]any)
	if p[0].(float64) != pos.X || p[1].(float64) != pos.Y || p[2].(float64) != pos.Z {
		t.Errorf("position = %v, want %+v", p, pos)
	}

	for _, q := range []string{"?t=abc", "?t=NaN", "?t=1e12"} {
		if w := env.do(t, "GET", "/api/v1/groups/stations/satellites/48274/position"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", q, w.Code)
		}
	}
}

func TestRefreshRequiresAuth(t *testing.T) {
	env := newTestEnv(t, auth.Config{Enabled: true, Token: "tok"})

	if w := env.do(t, "POST", "/api/v1/groups/stations/refresh", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("refresh without token = %d, want 401", w.Code)
	}

	w := env.do(t, "POST", "/api/v1/groups/stations/refresh", "", "Authorization", "Bearer tok")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh with token = %d body=%s", w.Code, w.Body.String())
	}
	if resp := decode(t, w); resp["objects"].(float64) != 2 {
		t.Errorf("objects = %v", resp["objects"])
	}

	// Reads stay public.
	if w := env.do(t, "GET", "/api/v1/groups/stations/satellites", ""); w.Code != http.StatusOK {
		t.Errorf("public read = %d", w.Code)
	}
}

func TestRefreshErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"rate limited", elements.ErrRateLimited, http.StatusTooManyRequests},
		{"not found", elements.ErrNotFound, http.StatusNotFound},
		{"other", io.ErrUnexpectedEOF, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, auth.Config{})
			env.loader.refreshErr = tt.err
			if w := env.do(t, "POST", "/api/v1/groups/stations/refresh", ""); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	env := newTestEnv(t, auth.Config{})
	if w := env.do(t, "POST", "/api/v1/groups/bogus/refresh", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown group refresh = %d, want 404", w.Code)
	}
}

func TestMarkerLifecycle(t *testing.T) {
	env := newTestEnv(t, auth.Config{})

	w := env.do(t, "POST", "/api/v1/markers", `{"name":"Tokyo","lat":35.6762,"lon":139.6503,"value":13960000,"color":"#0000ff"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d body=%s", w.Code, w.Body.String())
	}
	created := decode(t, w)
	id := created["id"].(string)
	if created["color"] != "#0000ff" {
		t.Errorf("color = %v", created["color"])
	}
	if loc := w.Header().Get("Location"); loc != "/api/v1/markers/"+id {
		t.Errorf("Location = %q", loc)
	}
	wantSize := tracker.MarkerSize(13960000)
	if math.Abs(created["size"].(float64)-wantSize) > 1e-12 {
		t.Errorf("size = %v, want %v", created["size"], wantSize)
	}

	w = env.do(t, "PUT", "/api/v1/markers/"+id, `{"value":0,"color":65280}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d body=%s", w.Code, w.Body.String())
	}
	updated := decode(t, w)
	if updated["name"] != "Tokyo" || updated["color"] != "#00ff00" || updated["size"].(float64) != 0.05 {
		t.Errorf("updated = %v", updated)
	}

	w = env.do(t, "GET", "/api/v1/markers", "")
	if markers := decode(t, w)["markers"].([]any); len(markers) != 1 {
		t.Errorf("markers = %d, want 1", len(markers))
	}

	if w := env.do(t, "DELETE", "/api/v1/markers/"+id, ""); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if w := env.do(t, "DELETE", "/api/v1/markers/"+id, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestMarkerValidation(t *testing.T) {
	env := newTestEnv(t, auth.Config{})

	tests := []struct {
		name  string
		body  string
		want  int
		color string
	}{
		{"missing lat", `{"lon":1}`, http.StatusBadRequest, ""},
		{"lat out of range", `{"lat":95,"lon":1}`, http.StatusBadRequest, ""},
		{"negative value", `{"lat":1,"lon":1,"value":-3}`, http.StatusBadRequest, ""},
		{"bad color", `{"lat":1,"lon":1,"color":"red"}`, http.StatusBadRequest, ""},
		{"unknown field", `{"lat":1,"lon":1,"radius":9}`, http.StatusBadRequest, ""},
		{"not json", `lat=1`, http.StatusBadRequest, ""},
		{"default color", `{"lat":0,"lon":0}`, http.StatusCreated, "#ff0000"},
		{"explicit black", `{"lat":0,"lon":0,"color":"#000000"}`, http.StatusCreated, "#000000"},
		{"numeric zero color", `{"lat":0,"lon":0,"color":0}`, http.StatusCreated, "#000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/v1/markers", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			if tt.color != "" && decode(t, w)["color"] != tt.color {
				t.Errorf("color = %v, want %s", decode(t, w)["color"], tt.color)
			}
		})
	}

	if w := env.do(t, "PUT", "/api/v1/markers/m-404", `{"name":"x"}`); w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestPathCacheStats(t *testing.T) {
	env := newTestEnv(t, auth.Config{})
	env.do(t, "GET", "/api/v1/groups/stations/satellites/25544/orbit", "")
	env.do(t, "GET", "/api/v1/groups/stations/satellites/25544/orbit", "")

	resp := decode(t, env.do(t, "GET", "/api/v1/path-cache/stats", ""))
	if resp["entries"].(float64) != 1 || resp["hits"].(float64) != 1 || resp["misses"].(float64) != 1 {
		t.Errorf("stats = %v", resp)
	}
}

func TestHexColorJSON(t *testing.T) {
	var c hexColor
	for _, in := range []string{`"#12abEF"`, `"12abef"`, `1223663`} {
		if err := json.Unmarshal([]byte(in), &c); err != nil {
			t.Fatalf("Unmarshal(%s): %v", in, err)
		}
		if c != 0x12abef {
			t.Errorf("Unmarshal(%s) = %#x", in, uint32(c))
		}
	}
	b, _ := json.Marshal(c)
	if string(b) != `"#12abef"` {
		t.Errorf("Marshal = %s", b)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, auth.Config{})

	w := env.do(t, "GET", "/healthz", "", "X-Request-ID", "abc-123")
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("echoed request id = %q", got)
	}
	w = env.do(t, "GET", "/healthz", "", "X-Request-ID", "bad id with spaces")
	if got := w.Header().Get("X-Request-ID"); got == "" || got == "bad id with spaces" {
		t.Errorf("generated request id = %q", got)
	}
}
