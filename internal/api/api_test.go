package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/careops/carepipe/internal/api"
	"github.com/careops/carepipe/internal/models"
	"github.com/careops/carepipe/internal/testutil"
)

func TestHealthEndpoint(t *testing.T) {
	env := testutil.NewTestServer()
	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/health", nil)

	env.Server.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health check")
	resp := decodeBody(t, rr)
	if resp["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", resp["status"])
	}
}

func TestCreateAndGetPatient(t *testing.T) {
	env := testutil.NewTestServer()
	handler := env.Server.Handler()

	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/patients", map[string]interface{}{
		"name":         "Asha Rao",
		"phone_number": "+911234567890",
	})
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create patient")
	created := testutil.AssertJSONResponse(t, rr, "ok")

	result, ok := created["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected patient result, got %v", created["result"])
	}
	patientID, _ := result["patient_id"].(string)
	if patientID == "" {
		t.Fatal("expected a generated patient_id")
	}

	rr = httptest.NewRecorder()
	req = testutil.CreateHTTPRequest(t, http.MethodGet, "/patients/"+patientID, nil)
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "get patient")
}

func TestCreatePatientRequiresName(t *testing.T) {
	env := testutil.NewTestServer()
	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/patients", map[string]interface{}{
		"phone_number": "+911234567890",
	})
	env.Server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "create patient without name")
}

func TestGetPatientNotFound(t *testing.T) {
	env := testutil.NewTestServer()
	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/patients/missing", nil)
	env.Server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "get unknown patient")
}

func TestUpdatePatient(t *testing.T) {
	env := testutil.NewTestServer()
	p := testutil.SeedTestPatient(t, env.Store)

	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodPut, "/patients/"+p.PatientID, map[string]interface{}{
		"customer_location": "Whitefield",
		"first_pregnancy":   true,
	})
	env.Server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "update patient")

	updated, err := env.Store.GetPatient(p.PatientID)
	if err != nil {
		t.Fatalf("GetPatient failed: %v", err)
	}
	if updated.CustomerLocation != "Whitefield" {
		t.Errorf("expected persisted update, got %q", updated.CustomerLocation)
	}
	if updated.FirstPregnancy == nil || !*updated.FirstPregnancy {
		t.Error("expected first_pregnancy true")
	}
}

func TestListPatientsWithSearch(t *testing.T) {
	env := testutil.NewTestServer()
	testutil.SeedTestPatient(t, env.Store)

	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/patients?search=asha", nil)
	env.Server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "search patients")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	results, ok := resp["result"].([]interface{})
	if !ok || len(results) != 1 {
		t.Errorf("expected one search match, got %v", resp["result"])
	}
}

func TestNotesEndpoints(t *testing.T) {
	env := testutil.NewTestServer()
	p := testutil.SeedTestPatient(t, env.Store)
	handler := env.Server.Handler()

	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/notes", map[string]interface{}{
		"patient_id": p.PatientID,
		"note_text":  "asked about insurance coverage",
		"created_by": "agent-7",
	})
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create note")

	rr = httptest.NewRecorder()
	req = testutil.CreateHTTPRequest(t, http.MethodGet, "/notes?patient_id="+p.PatientID, nil)
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "list notes")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	results, ok := resp["result"].([]interface{})
	if !ok || len(results) != 1 {
		t.Fatalf("expected one note, got %v", resp["result"])
	}

	rr = httptest.NewRecorder()
	req = testutil.CreateHTTPRequest(t, http.MethodGet, "/notes", nil)
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "list notes without patient_id")
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	env := testutil.NewTestServer()
	p := testutil.SeedTestPatient(t, env.Store)
	handler := env.Server.Handler()

	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/session/select", map[string]interface{}{
		"patient_id": p.PatientID,
	})
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "select patient")

	rr = httptest.NewRecorder()
	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/session/start", nil)
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "start recording")

	rr = httptest.NewRecorder()
	req = testutil.CreateHTTPRequest(t, http.MethodGet, "/session/status", nil)
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "session status")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	status, _ := resp["result"].(map[string]interface{})
	if status["state"] != string(models.StateRecording) {
		t.Errorf("expected recording state, got %v", status["state"])
	}
	if status["session_id"] == "" {
		t.Error("expected a session identity")
	}

	rr = httptest.NewRecorder()
	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/session/activity", map[string]interface{}{
		"kind": "transcript_delta",
	})
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "record activity")

	rr = httptest.NewRecorder()
	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/session/stop", nil)
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "stop recording")

	rr = httptest.NewRecorder()
	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/session/submit", nil)
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "submit session")
	if got := env.Finalizer.Calls(); got != 1 {
		t.Errorf("expected one finalize call, got %d", got)
	}

	// The ended session rejects further input.
	rr = httptest.NewRecorder()
	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/session/start", nil)
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "start after ended")
}

func TestSessionSelectUnknownPatient(t *testing.T) {
	env := testutil.NewTestServer()
	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/session/select", map[string]interface{}{
		"patient_id": "missing",
	})
	env.Server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "select unknown patient")
}

func TestSessionStartWithoutPatient(t *testing.T) {
	env := testutil.NewTestServer()
	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/session/start", nil)
	env.Server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "start without patient")
}

func TestSessionContinueWithoutAdvisory(t *testing.T) {
	env := testutil.NewTestServer()
	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/session/continue", nil)
	env.Server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "continue without advisory")
}

func TestSessionExtraction(t *testing.T) {
	env := testutil.NewTestServer()
	p := testutil.SeedTestPatient(t, env.Store)
	handler := env.Server.Handler()

	edd := "2025-09-12"
	env.Extractor.Payload = models.ExtractionPayload{
		PregnancyRelated: &models.PregnancyFacts{CustomerEDD: &edd},
	}
	env.Extractor.Ignored = []string{"mystery_category"}

	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/session/select", map[string]interface{}{
		"patient_id": p.PatientID,
	})
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "select patient")

	rr = httptest.NewRecorder()
	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/session/extraction", map[string]interface{}{
		"transcript": "patient mentioned her due date is September 12th",
		"apply":      true,
	})
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "extract transcript")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result, _ := resp["result"].(map[string]interface{})
	provenance, _ := result["provenance"].(map[string]interface{})
	if provenance["customer_edd"] != string(models.ProvenanceNew) {
		t.Errorf("expected new provenance for customer_edd, got %v", provenance["customer_edd"])
	}
	ignored, _ := result["ignored_categories"].([]interface{})
	if len(ignored) != 1 {
		t.Errorf("expected one ignored category surfaced, got %v", ignored)
	}

	// apply=true persisted the merged field.
	updated, err := env.Store.GetPatient(p.PatientID)
	if err != nil {
		t.Fatalf("GetPatient failed: %v", err)
	}
	if updated.CustomerEDD != edd {
		t.Errorf("expected persisted EDD %q, got %q", edd, updated.CustomerEDD)
	}
}

func TestSessionExtractionApplyRefreshesBaseline(t *testing.T) {
	env := testutil.NewTestServer()
	p := testutil.SeedTestPatient(t, env.Store)
	handler := env.Server.Handler()

	edd := "2025-09-12"
	env.Extractor.Payload = models.ExtractionPayload{
		PregnancyRelated: &models.PregnancyFacts{CustomerEDD: &edd},
	}

	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/session/select", map[string]interface{}{
		"patient_id": p.PatientID,
	})
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "select patient")

	extract := func() map[string]interface{} {
		rr := httptest.NewRecorder()
		req := testutil.CreateHTTPRequest(t, http.MethodPost, "/session/extraction", map[string]interface{}{
			"transcript": "her due date is September 12th",
			"apply":      true,
		})
		handler.ServeHTTP(rr, req)
		testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "extract transcript")
		resp := testutil.AssertJSONResponse(t, rr, "ok")
		result, _ := resp["result"].(map[string]interface{})
		return result
	}

	first := extract()
	provenance, _ := first["provenance"].(map[string]interface{})
	if provenance["customer_edd"] != string(models.ProvenanceNew) {
		t.Fatalf("expected new provenance on first pass, got %v", provenance["customer_edd"])
	}

	// The saved fields became the baseline, so replaying the same
	// extraction reconciles as unchanged instead of new.
	second := extract()
	provenance, _ = second["provenance"].(map[string]interface{})
	if provenance["customer_edd"] != string(models.ProvenanceUnchanged) {
		t.Errorf("expected unchanged provenance on replay, got %v", provenance["customer_edd"])
	}
	merged, _ := second["merged_fields"].(map[string]interface{})
	if len(merged) != 0 {
		t.Errorf("expected no merged fields on replay, got %v", merged)
	}
}

func TestSessionExtractionRequiresPatient(t *testing.T) {
	env := testutil.NewTestServer()
	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/session/extraction", map[string]interface{}{
		"transcript": "hello",
	})
	env.Server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "extraction without patient")
}

func TestFeedbackEndpointAlwaysAccepts(t *testing.T) {
	env := testutil.NewTestServer()
	rr := httptest.NewRecorder()
	// No channel attached and no session: the event is dropped, but the
	// request still succeeds.
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/feedback", map[string]interface{}{
		"panel":         "transcript",
		"feedback_type": "thumbs_down",
		"feedback_text": "names were garbled",
	})
	env.Server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusAccepted, rr.Code, "feedback")
}

func TestFeedbackValidation(t *testing.T) {
	env := testutil.NewTestServer()
	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/feedback", map[string]interface{}{
		"feedback_text": "missing panel and type",
	})
	env.Server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "feedback validation")
}

func TestLogoutRedirectsAndClearsCookies(t *testing.T) {
	env := testutil.NewTestServer()
	srv := api.NewServer(env.Store, env.Controller, env.Relay, env.Extractor,
		api.WithAuth("https://auth.example.com", "client-1", "https://console.example.com/"))

	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/auth/logout", nil)
	srv.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusFound, rr.Code, "logout redirect")
	loc := rr.Header().Get("Location")
	if loc != "https://auth.example.com/logout?client_id=client-1&logout_uri=https%3A%2F%2Fconsole.example.com%2F" {
		t.Errorf("unexpected redirect location %q", loc)
	}

	cleared := map[string]bool{}
	for _, c := range rr.Result().Cookies() {
		if c.MaxAge < 0 && c.Value == "" {
			cleared[c.Name] = true
		}
	}
	if !cleared["id_token"] || !cleared["access_token"] {
		t.Errorf("expected auth cookies cleared, got %v", cleared)
	}
}

func TestLogoutWithoutAuthDomain(t *testing.T) {
	env := testutil.NewTestServer()
	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/auth/logout", nil)
	env.Server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusNoContent, rr.Code, "logout without auth domain")
}

func TestMethodNotAllowed(t *testing.T) {
	env := testutil.NewTestServer()
	cases := []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/patients"},
		{http.MethodGet, "/session/submit"},
		{http.MethodPost, "/session/status"},
		{http.MethodPut, "/feedback"},
	}
	for _, c := range cases {
		rr := httptest.NewRecorder()
		req := testutil.CreateHTTPRequest(t, c.method, c.path, nil)
		env.Server.Handler().ServeHTTP(rr, req)
		testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, c.method+" "+c.path)
	}
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return resp
}
