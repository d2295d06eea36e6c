package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// Check reports an unhealthy dependency by returning an error
type Check func(ctx context.Context) error

// HealthHandler provides health check endpoints for readiness and liveness probes
type HealthHandler struct {
	startTime       time.Time
	readinessChecks map[string]Check
	livenessChecks  map[string]Check
}

// Health response structure
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Details   map[string]string `json:"details,omitempty"`
}

// NewHealthHandler creates a new health handler with the given readiness checks
func NewHealthHandler(readiness map[string]Check) *HealthHandler {
	h := &HealthHandler{
		startTime:       time.Now(),
		readinessChecks: make(map[string]Check, len(readiness)),
		livenessChecks: map[string]Check{
			"uptime": func(context.Context) error { return nil },
		},
	}
	for name, check := range readiness {
		h.readinessChecks[name] = check
	}
	return h
}

// HandleReadiness handles readiness probe requests
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.readinessChecks, true)
}

// HandleLiveness handles liveness probe requests
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.livenessChecks, false)
}

// HandleHealth handles general health check requests
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("Error writing health response")
	}
}

func (h *HealthHandler) respond(w http.ResponseWriter, r *http.Request, checks map[string]Check, withDetails bool) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	details := make(map[string]string, len(checks))
	allOk := true
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			allOk = false
			details[name] = err.Error()
			log.Warn().Err(err).Str("check", name).Msg("Health check failed")
		} else {
			details[name] = "OK"
		}
	}

	response := HealthResponse{
		Status:    "UP",
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(h.startTime).String(),
	}
	if withDetails {
		response.Details = details
	}

	status := http.StatusOK
	if !allOk {
		response.Status = "DOWN"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}
