package server

import (
	"context"
	"net/http"
	"time"
)

type componentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentHealth `json:"components"`
}

// healthHandler reports per-component status for the database and the blob
// store. Degraded still returns 200; only a fully unhealthy service returns
// 503.
func (cfg Config) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]componentHealth{
		"database": checkComponent(cfg.DB.PingContext(ctx)),
		"storage":  checkComponent(cfg.Blobs.Check(ctx)),
	}

	status := "healthy"
	code := http.StatusOK
	down := 0
	for _, c := range components {
		if c.Status == "down" {
			down++
		}
	}
	switch down {
	case 0:
	case len(components):
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	default:
		status = "degraded"
	}

	writeJSON(w, code, healthResponse{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Version:    cfg.Build.Version,
		Components: components,
	})
}

func checkComponent(err error) componentHealth {
	if err != nil {
		return componentHealth{Status: "down", Message: err.Error()}
	}
	return componentHealth{Status: "up"}
}

// readyHandler is a readiness probe: can we query the database?
func (cfg Config) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var result int
	if err := cfg.DB.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
