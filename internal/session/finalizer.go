// Package session provides the finalize-session collaborator client.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Finalizer persists a finished session in the external session service and
// marks it ended. Exactly one Finalize call is made per submit transition.
type Finalizer interface {
	Finalize(ctx context.Context, sessionID string) error
}

// DefaultFinalizeTimeout bounds the finalize call so a hung backend cannot
// leave the controller stuck in the submitting state.
const DefaultFinalizeTimeout = 30 * time.Second

// HTTPFinalizer finalizes sessions against the session service REST API.
type HTTPFinalizer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFinalizer creates an HTTPFinalizer for the given base URL.
func NewHTTPFinalizer(baseURL string) *HTTPFinalizer {
	slog.Debug("HTTPFinalizer.NewHTTPFinalizer: creating finalizer", "baseURL_set", baseURL != "")
	return &HTTPFinalizer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultFinalizeTimeout},
	}
}

// Finalize posts the end-session request. The caller's context deadline
// applies on top of the client timeout.
func (f *HTTPFinalizer) Finalize(ctx context.Context, sessionID string) error {
	slog.Debug("HTTPFinalizer.Finalize: finalizing session", "sessionID", sessionID)

	body, err := json.Marshal(map[string]string{"session_id": sessionID, "status": "ended"})
	if err != nil {
		return fmt.Errorf("failed to marshal finalize request: %w", err)
	}

	url := fmt.Sprintf("%s/sessions/%s/end", f.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build finalize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		slog.Error("HTTPFinalizer.Finalize: request failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("finalize request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("HTTPFinalizer.Finalize: unexpected status", "status", resp.StatusCode, "sessionID", sessionID)
		return fmt.Errorf("finalize returned status %d", resp.StatusCode)
	}

	slog.Info("HTTPFinalizer.Finalize: session finalized", "sessionID", sessionID)
	return nil
}
