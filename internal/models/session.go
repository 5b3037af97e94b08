// Package models defines session lifecycle structures for CarePipe.
package models

import "time"

// SessionState represents the lifecycle state of a capture session.
type SessionState string

const (
	// StateIdle indicates no capture is running.
	StateIdle SessionState = "idle"
	// StateRecording indicates the operator is actively capturing audio.
	StateRecording SessionState = "recording"
	// StateAwaitingSubmitConfirmation indicates the inactivity advisory is
	// showing and the operator must continue or submit.
	StateAwaitingSubmitConfirmation SessionState = "awaiting_submit_confirmation"
	// StateSubmitting indicates the finalize call is in flight; all
	// operator input is disabled.
	StateSubmitting SessionState = "submitting"
	// StateEnded indicates the session is over; further input is rejected
	// until a new session is created.
	StateEnded SessionState = "ended"
)

// IsValidSessionState checks if the given session state is supported.
func IsValidSessionState(s SessionState) bool {
	switch s {
	case StateIdle, StateRecording, StateAwaitingSubmitConfirmation, StateSubmitting, StateEnded:
		return true
	default:
		return false
	}
}

// ActivityKind identifies the operator event that resets the activity clock.
type ActivityKind string

const (
	// ActivityTranscriptDelta is a new chunk of transcribed speech.
	ActivityTranscriptDelta ActivityKind = "transcript_delta"
	// ActivityOperatorInteraction is an explicit UI interaction.
	ActivityOperatorInteraction ActivityKind = "operator_interaction"
	// ActivityLanguageChange is a capture language selection.
	ActivityLanguageChange ActivityKind = "language_change"
	// ActivityFileSelection is an audio file selection for upload.
	ActivityFileSelection ActivityKind = "file_selection"
)

// SessionStatus is a snapshot of the controller state, served to the UI.
type SessionStatus struct {
	SessionID      string       `json:"session_id,omitempty"`
	PatientID      string       `json:"patient_id,omitempty"`
	State          SessionState `json:"state"`
	AdvisoryRaised bool         `json:"advisory_raised"`
	LastActivityAt time.Time    `json:"last_activity_at,omitempty"`
}

// FeedbackEvent is the typed event emitted over the feedback channel.
type FeedbackEvent struct {
	Type         string `json:"type"`
	SessionID    string `json:"session_id"`
	Panel        string `json:"panel"`
	FeedbackType string `json:"feedback_type"`
	FeedbackText string `json:"feedback_text,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}
