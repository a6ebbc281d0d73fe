package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(Config{Enabled: true, Token: "s3cret"})(ok)

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"public read", "GET", "/api/v1/groups", "", http.StatusNoContent},
		{"readiness check", "GET", "/readyz", "", http.StatusNoContent},
		{"refresh without token", "POST", "/api/v1/groups/stations/refresh", "", http.StatusUnauthorized},
		{"refresh wrong token", "POST", "/api/v1/groups/stations/refresh", "Bearer nope", http.StatusUnauthorized},
		{"refresh missing scheme", "POST", "/api/v1/groups/stations/refresh", "s3cret", http.StatusUnauthorized},
		{"refresh with token", "POST", "/api/v1/groups/stations/refresh", "Bearer s3cret", http.StatusNoContent},
		{"marker delete", "DELETE", "/api/v1/markers/m-1", "", http.StatusUnauthorized},
		{"marker update with token", "PUT", "/api/v1/markers/m-1", "Bearer s3cret", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	h := Middleware(Config{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest("POST", "/api/v1/markers", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
