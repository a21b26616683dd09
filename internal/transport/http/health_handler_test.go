package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpulse/internal/services"
)

func newHealthRouter(ready func() error) http.Handler {
	logger := discardLogger()
	h := NewHealthHandler(services.NewHealthService("1.2.3", ready, logger), logger)
	r := chi.NewRouter()
	r.Get("/healthz", h.LivenessCheck)
	r.Get("/readyz", h.ReadinessCheck)
	r.Get("/version", h.Version)
	return r
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		ready      func() error
		wantStatus int
		wantBody   map[string]interface{}
	}{
		{
			name:       "liveness",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   map[string]interface{}{"status": "alive", "version": "1.2.3"},
		},
		{
			name:       "ready",
			path:       "/readyz",
			ready:      func() error { return nil },
			wantStatus: http.StatusOK,
			wantBody:   map[string]interface{}{"status": "ready"},
		},
		{
			name:       "not ready",
			path:       "/readyz",
			ready:      func() error { return errors.New("reports directory missing") },
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   map[string]interface{}{"status": "not_ready", "error": "reports directory missing"},
		},
		{
			name:       "version",
			path:       "/version",
			wantStatus: http.StatusOK,
			wantBody:   map[string]interface{}{"version": "1.2.3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newHealthRouter(tt.ready), httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.wantStatus, rec.Code)

			body := decodeJSON(t, rec)
			for k, v := range tt.wantBody {
				assert.Equal(t, v, body[k], k)
			}
		})
	}
}
