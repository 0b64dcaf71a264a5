package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jacobpro/calpol/internal/engine"
)

// Server holds the dependencies needed by the REST handlers.
type Server struct {
	store   Store
	trigger Trigger
}

// NewServer creates a new Server wired to a Store and a run Trigger.
func NewServer(store Store, trigger Trigger) *Server {
	return &Server{store: store, trigger: trigger}
}

// handleHealthz responds to GET /healthz. It does not require authentication
// and returns HTTP 200 so load balancers and orchestrators can verify
// liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListProbes responds to GET /api/v1/probes with every configured
// probe, enabled or not.
func (s *Server) handleListProbes(w http.ResponseWriter, r *http.Request) {
	probes, err := s.store.ListProbes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list probes")
		return
	}
	if probes == nil {
		probes = []engine.Probe{}
	}
	writeJSON(w, http.StatusOK, probes)
}

// handlePutProbe responds to PUT /api/v1/probes/{id}, creating the probe if
// absent or replacing its mutable fields if present.
func (s *Server) handlePutProbe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		id = uuid.NewString()
	}

	var body struct {
		Name             string          `json:"name"`
		Enabled          bool            `json:"enabled"`
		FailureThreshold uint8           `json:"failure_threshold"`
		Config           json.RawMessage `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "'name' is required")
		return
	}
	if body.FailureThreshold == 0 {
		writeError(w, http.StatusBadRequest, "'failure_threshold' must be at least 1")
		return
	}

	p := engine.Probe{
		ID:               id,
		Name:             body.Name,
		Enabled:          body.Enabled,
		FailureThreshold: body.FailureThreshold,
	}
	if err := json.Unmarshal(body.Config, &p.Config); err != nil {
		writeError(w, http.StatusBadRequest, "invalid 'config': "+err.Error())
		return
	}

	if err := s.store.InsertProbe(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save probe")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleListRuns responds to GET /api/v1/runs.
//
// Supported query parameters:
//
//	limit – maximum number of run logs to return (default 50, max 500)
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "'limit' must be a positive integer")
			return
		}
		if parsed > 500 {
			parsed = 500
		}
		limit = parsed
	}

	logs, err := s.store.ListRunLogs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list run logs")
		return
	}
	if logs == nil {
		logs = []engine.RunLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// handleQueueRun responds to POST /api/v1/runs/queue by requesting an
// out-of-cadence run. It returns immediately: the run itself happens
// asynchronously on the scheduler's own goroutine.
func (s *Server) handleQueueRun(w http.ResponseWriter, r *http.Request) {
	s.trigger.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response with the given HTTP status code.
// The response body is {"error": "<message>"}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
