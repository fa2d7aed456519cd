package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/mikhail/topic-modeler/internal/progress"
	"github.com/mikhail/topic-modeler/internal/settings"
)

// RunRequest is the body for POST /run.
type RunRequest struct {
	Recluster bool `json:"recluster"`
	DaysBack  int  `json:"days_back" validate:"gte=0,lte=365"`
}

// RunResponse is returned when a run is accepted.
type RunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// CancelRequest is the body for POST /cancel. An empty run id cancels the
// current run.
type CancelRequest struct {
	RunID string `json:"run_id,omitempty"`
}

// SettingsResponse bundles the effective settings with the UI group layout.
type SettingsResponse struct {
	Settings settings.Settings `json:"settings"`
	Groups   []settings.Group  `json:"groups"`
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleProgress returns the state of the current (or most recent) run.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	run, err := progress.CurrentProgress(r.Context(), s.progress)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to read progress: "+err.Error())
		return
	}
	if run == nil {
		s.errorResponse(w, http.StatusNotFound, "no runs recorded")
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// handleRun starts a pipeline run unless one is already active.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if err := s.validate.Struct(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	if !s.running.CompareAndSwap(false, true) {
		s.errorResponse(w, http.StatusConflict, "a run is already in progress")
		return
	}

	runID := uuid.NewString()
	go func() {
		defer s.running.Store(false)
		// The request context dies with the response; the run must not.
		if err := s.runner(context.Background(), runID, req.Recluster, req.DaysBack); err != nil {
			s.log.WithError(err).WithField("run_id", runID).Warn("run finished with error")
		}
	}()

	s.jsonResponse(w, http.StatusAccepted, RunResponse{RunID: runID, Status: progress.StatusRunning})
}

// handleCancel requests cooperative cancellation of a run.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	found, err := progress.RequestCancel(r.Context(), s.progress, req.RunID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to request cancel: "+err.Error())
		return
	}
	if !found {
		s.errorResponse(w, http.StatusNotFound, "no matching run")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// handleGetSettings returns the effective settings and their UI grouping.
func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, SettingsResponse{
		Settings: s.settings.Load(),
		Groups:   settings.Groups(),
	})
}

// handleUpdateSettings applies a partial settings update. Unknown keys are
// ignored and out-of-range values clamped, so the response is the effective
// result, not necessarily what was sent.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	updated, err := s.settings.Update(raw)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to update settings: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, SettingsResponse{Settings: updated, Groups: settings.Groups()})
}
