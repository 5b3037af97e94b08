// Package testutil provides common test utilities and helpers for CarePipe tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/careops/carepipe/internal/api"
	"github.com/careops/carepipe/internal/feedback"
	"github.com/careops/carepipe/internal/models"
	"github.com/careops/carepipe/internal/session"
	"github.com/careops/carepipe/internal/store"
)

// FakeFinalizer counts finalize calls and returns a configurable error.
type FakeFinalizer struct {
	mu    sync.Mutex
	calls int
	Err   error
}

func (f *FakeFinalizer) Finalize(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.Err
}

// Calls returns the number of finalize invocations so far.
func (f *FakeFinalizer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeExtractor returns a canned extraction payload.
type FakeExtractor struct {
	Payload models.ExtractionPayload
	Ignored []string
	Err     error
}

func (f *FakeExtractor) Extract(ctx context.Context, transcript string) (models.ExtractionPayload, []string, error) {
	return f.Payload, f.Ignored, f.Err
}

// TestEnv bundles a test API server with its in-memory collaborators so
// tests can seed data and drive the session controller directly.
type TestEnv struct {
	Server     *api.Server
	Store      *store.InMemoryStore
	Controller *session.Controller
	Finalizer  *FakeFinalizer
	Extractor  *FakeExtractor
	Relay      *feedback.Relay
}

// NewTestServer creates a test API server with in-memory dependencies.
// This centralizes the test server creation logic used across multiple test files.
func NewTestServer() *TestEnv {
	st := store.NewInMemoryStore()
	fin := &FakeFinalizer{}
	ctrl := session.NewController(st, fin)
	relay := feedback.NewRelay(ctrl)
	ext := &FakeExtractor{}
	srv := api.NewServer(st, ctrl, relay, ext)
	return &TestEnv{
		Server:     srv,
		Store:      st,
		Controller: ctrl,
		Finalizer:  fin,
		Extractor:  ext,
		Relay:      relay,
	}
}

// SeedTestPatient adds a sample patient record and returns it.
func SeedTestPatient(t *testing.T, st *store.InMemoryStore) models.Patient {
	t.Helper()
	p := models.Patient{
		PatientID:   "pt_test1",
		MPID:        "MP001",
		Name:        "Asha Rao",
		PhoneNumber: "+911234567890",
		CreatedDate: time.Now().Add(-time.Hour),
		LastUpdated: time.Now().Add(-time.Hour),
	}
	if err := st.AddPatient(p); err != nil {
		t.Fatalf("failed to seed test patient: %v", err)
	}
	return p
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}
