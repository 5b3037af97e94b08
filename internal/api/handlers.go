// Package api provides HTTP handlers for CarePipe patient record endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/careops/carepipe/internal/models"
	"github.com/careops/carepipe/internal/util"
)

// patientsHandler routes /patients and /patients/{id}.
func (s *Server) patientsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.patientsHandler: processing request", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/patients")
	path = strings.TrimPrefix(path, "/")
	segments := strings.Split(path, "/")

	if len(segments) == 0 || segments[0] == "" {
		// /patients
		switch r.Method {
		case http.MethodGet:
			s.listPatientsHandler(w, r)
		case http.MethodPost:
			s.createPatientHandler(w, r)
		default:
			w.Header().Set("Allow", "GET, POST")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	patientID := segments[0]

	if len(segments) == 1 {
		// /patients/{id}
		switch r.Method {
		case http.MethodGet:
			s.getPatientHandler(w, r, patientID)
		case http.MethodPut:
			s.updatePatientHandler(w, r, patientID)
		default:
			w.Header().Set("Allow", "GET, PUT")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown patient endpoint"))
}

// listPatientsHandler handles GET /patients?search=
func (s *Server) listPatientsHandler(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	patients, err := s.st.ListPatients(search)
	if err != nil {
		slog.Error("Server.listPatientsHandler: failed to list patients", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list patients"))
		return
	}
	slog.Debug("Server.listPatientsHandler: returning patients", "count", len(patients), "search", search)
	writeJSONResponse(w, http.StatusOK, models.Success(patients))
}

// createPatientHandler handles POST /patients
func (s *Server) createPatientHandler(w http.ResponseWriter, r *http.Request) {
	var p models.Patient
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		slog.Warn("Server.createPatientHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if p.Name == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Patient name is required"))
		return
	}
	if p.PatientID == "" {
		p.PatientID = util.GeneratePatientID()
	}
	now := time.Now()
	p.CreatedDate = now
	p.LastUpdated = now

	if err := s.st.AddPatient(p); err != nil {
		slog.Error("Server.createPatientHandler: failed to save patient", "error", err, "patientID", p.PatientID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save patient"))
		return
	}
	slog.Info("Server.createPatientHandler: patient created", "patientID", p.PatientID)
	writeJSONResponse(w, http.StatusCreated, models.Success(p))
}

// getPatientHandler handles GET /patients/{id}
func (s *Server) getPatientHandler(w http.ResponseWriter, r *http.Request, patientID string) {
	p, err := s.st.GetPatient(patientID)
	if err != nil {
		if errors.Is(err, models.ErrPatientNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Patient not found"))
			return
		}
		slog.Error("Server.getPatientHandler: failed to fetch patient", "error", err, "patientID", patientID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch patient"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(p))
}

// updatePatientHandler handles PUT /patients/{id}
func (s *Server) updatePatientHandler(w http.ResponseWriter, r *http.Request, patientID string) {
	var fields map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		slog.Warn("Server.updatePatientHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.st.UpdatePatient(patientID, fields); err != nil {
		if errors.Is(err, models.ErrPatientNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Patient not found"))
			return
		}
		slog.Error("Server.updatePatientHandler: failed to update patient", "error", err, "patientID", patientID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update patient"))
		return
	}
	updated, err := s.st.GetPatient(patientID)
	if err != nil {
		slog.Error("Server.updatePatientHandler: failed to reload patient", "error", err, "patientID", patientID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reload patient"))
		return
	}
	slog.Info("Server.updatePatientHandler: patient updated", "patientID", patientID, "fields", len(fields))
	writeJSONResponse(w, http.StatusOK, models.Success(updated))
}

// notesHandler handles GET /notes?patient_id= and POST /notes.
func (s *Server) notesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.notesHandler: processing request", "method", r.Method, "path", r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		patientID := r.URL.Query().Get("patient_id")
		if patientID == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("patient_id query parameter is required"))
			return
		}
		notes, err := s.st.ListNotes(patientID)
		if err != nil {
			slog.Error("Server.notesHandler: failed to list notes", "error", err, "patientID", patientID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list notes"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(notes))
	case http.MethodPost:
		var n models.Note
		if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
			slog.Warn("Server.notesHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if n.PatientID == "" || n.NoteText == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("patient_id and note_text are required"))
			return
		}
		if n.NoteID == "" {
			n.NoteID = util.GenerateNoteID()
		}
		if n.CreatedDate.IsZero() {
			n.CreatedDate = time.Now()
		}
		if err := s.st.AddNote(n); err != nil {
			slog.Error("Server.notesHandler: failed to save note", "error", err, "patientID", n.PatientID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save note"))
			return
		}
		slog.Info("Server.notesHandler: note saved", "noteID", n.NoteID, "patientID", n.PatientID)
		writeJSONResponse(w, http.StatusCreated, models.Success(n))
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	// Session controller state doubles as a liveness indicator
	if s.ctrl != nil {
		status := s.ctrl.Status()
		healthData["session_state"] = status.State
	}

	if _, err := s.st.ListPatients(""); err != nil {
		slog.Warn("Health check: store query failed", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to query patient store"
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}
