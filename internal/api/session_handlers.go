// Package api provides HTTP handlers for CarePipe session lifecycle endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/careops/carepipe/internal/models"
	"github.com/careops/carepipe/internal/reconcile"
)

// controllerErrorStatus maps session controller errors onto HTTP status
// codes.
func controllerErrorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrNoPatientSelected), errors.Is(err, models.ErrNoActiveSession):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrPatientNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrSessionEnded), errors.Is(err, models.ErrSubmitInProgress):
		return http.StatusConflict
	default:
		return http.StatusConflict
	}
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return false
	}
	return true
}

// sessionSelectHandler handles POST /session/select.
func (s *Server) sessionSelectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requirePost(w, r) {
		return
	}
	var req struct {
		PatientID string `json:"patient_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sessionSelectHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.PatientID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("patient_id is required"))
		return
	}
	patient, err := s.ctrl.SelectPatient(r.Context(), req.PatientID)
	if err != nil {
		slog.Warn("Server.sessionSelectHandler: selection failed", "error", err, "patientID", req.PatientID)
		writeJSONResponse(w, controllerErrorStatus(err), models.Error(err.Error()))
		return
	}
	slog.Info("Server.sessionSelectHandler: patient selected", "patientID", req.PatientID)
	writeJSONResponse(w, http.StatusOK, models.Success(patient))
}

// sessionStartHandler handles POST /session/start.
func (s *Server) sessionStartHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.ctrl.StartRecording(); err != nil {
		slog.Warn("Server.sessionStartHandler: start rejected", "error", err)
		writeJSONResponse(w, controllerErrorStatus(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.ctrl.Status()))
}

// sessionStopHandler handles POST /session/stop.
func (s *Server) sessionStopHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.ctrl.StopRecording(); err != nil {
		slog.Warn("Server.sessionStopHandler: stop rejected", "error", err)
		writeJSONResponse(w, controllerErrorStatus(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.ctrl.Status()))
}

// sessionContinueHandler handles POST /session/continue, dismissing the
// inactivity advisory.
func (s *Server) sessionContinueHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.ctrl.Continue(); err != nil {
		slog.Warn("Server.sessionContinueHandler: continue rejected", "error", err)
		writeJSONResponse(w, controllerErrorStatus(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.ctrl.Status()))
}

// sessionSubmitHandler handles POST /session/submit.
func (s *Server) sessionSubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.ctrl.Submit(r.Context()); err != nil {
		slog.Error("Server.sessionSubmitHandler: submit failed", "error", err)
		writeJSONResponse(w, controllerErrorStatus(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session submitted", s.ctrl.Status()))
}

// sessionActivityHandler handles POST /session/activity, resetting the
// inactivity clock.
func (s *Server) sessionActivityHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Kind models.ActivityKind `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sessionActivityHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Kind == "" {
		req.Kind = models.ActivityOperatorInteraction
	}
	if err := s.ctrl.RecordActivity(req.Kind); err != nil {
		writeJSONResponse(w, controllerErrorStatus(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.ctrl.Status()))
}

// sessionStatusHandler handles GET /session/status.
func (s *Server) sessionStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.ctrl.Status()))
}

// sessionExtractionHandler handles POST /session/extraction. It runs the
// transcript through the extraction client, reconciles the result against
// the selected record and returns the merged fields with per-field
// provenance. With apply=true the merged fields are persisted.
func (s *Server) sessionExtractionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Transcript string `json:"transcript"`
		Apply      bool   `json:"apply,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sessionExtractionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Transcript == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("transcript is required"))
		return
	}
	baseline := s.ctrl.SelectedPatient()
	if baseline == nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrNoPatientSelected.Error()))
		return
	}

	payload, ignored, err := s.extractor.Extract(r.Context(), req.Transcript)
	if err != nil {
		slog.Error("Server.sessionExtractionHandler: extraction failed", "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to extract transcript fields"))
		return
	}

	result := reconcile.Merge(baseline, payload)
	result.Ignored = append(result.Ignored, ignored...)

	if req.Apply && len(result.MergedFields) > 0 {
		if err := s.st.UpdatePatient(baseline.PatientID, result.MergedFields); err != nil {
			slog.Error("Server.sessionExtractionHandler: failed to persist merged fields",
				"error", err, "patientID", baseline.PatientID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to persist merged fields"))
			return
		}
		// Refresh the controller's snapshot so the next reconciliation
		// runs against the fields just saved.
		s.ctrl.RefreshSelectedPatient(reconcile.ApplyMerge(baseline, result.MergedFields))
	}

	slog.Info("Server.sessionExtractionHandler: extraction reconciled",
		"patientID", baseline.PatientID, "merged", len(result.MergedFields), "ignored", len(result.Ignored))
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// feedbackHandler handles POST /feedback. Delivery is advisory; a closed
// or absent channel drops the event without failing the request.
func (s *Server) feedbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Panel        string `json:"panel"`
		FeedbackType string `json:"feedback_type"`
		FeedbackText string `json:"feedback_text"`
		UserID       string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.feedbackHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Panel == "" || req.FeedbackType == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("panel and feedback_type are required"))
		return
	}
	s.relay.Send(req.Panel, req.FeedbackType, req.FeedbackText, req.UserID)
	writeJSONResponse(w, http.StatusAccepted, models.SuccessWithMessage("Feedback accepted", nil))
}
