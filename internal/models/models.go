// Package models defines the core data structures for CarePipe.
//
// It includes the patient record, conversation notes, and the shared API
// response envelope used by all HTTP handlers.
package models

import (
	"errors"
	"time"
)

// Error variables for better error handling and testability
var (
	// ErrNoPatientSelected is returned when an action requires a selected
	// patient record and none is selected.
	ErrNoPatientSelected = errors.New("no patient selected")
	// ErrSessionEnded is returned when operator input arrives after the
	// session has ended.
	ErrSessionEnded = errors.New("session already ended")
	// ErrNoActiveSession is returned when an action requires a capture
	// session and none has been started.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSubmitInProgress indicates a submit is already being processed.
	ErrSubmitInProgress = errors.New("submit already in progress")
	// ErrTransport wraps failures of external store or finalize calls.
	ErrTransport = errors.New("transport failure")
	// ErrPatientNotFound is returned when a patient lookup yields no row.
	ErrPatientNotFound = errors.New("patient not found")
)

// Patient represents the persistent subject record being annotated.
// Nullable yes/no answers use pointer types so that an explicit "no"
// survives the round trip instead of collapsing into absence.
type Patient struct {
	PatientID             string    `json:"patient_id"`
	MPID                  string    `json:"mpid,omitempty"`
	Name                  string    `json:"name"`
	PhoneNumber           string    `json:"phone_number,omitempty"`
	Email                 string    `json:"email,omitempty"`
	CustomerEDD           string    `json:"customer_edd,omitempty"`
	FirstPregnancy        *bool     `json:"first_pregnancy,omitempty"`
	ScansDone             []string  `json:"scans_done,omitempty"`
	HavingTwins           string    `json:"having_twins,omitempty"`
	CustomerLocation      string    `json:"customer_location,omitempty"`
	RelativesLivingWith   string    `json:"relatives_living_with,omitempty"`
	MotherOccupation      string    `json:"mother_occupation,omitempty"`
	FatherOccupation      string    `json:"father_occupation,omitempty"`
	ReferralSource        string    `json:"referral_source,omitempty"`
	AwareOfPackages       *bool     `json:"aware_of_packages,omitempty"`
	DownloadedApp         *bool     `json:"downloaded_app,omitempty"`
	BookingMethod         string    `json:"booking_method,omitempty"`
	InsuranceStatus       string    `json:"insurance_status,omitempty"`
	TransportMethod       string    `json:"transport_method,omitempty"`
	MentionedCompetitors  *bool     `json:"mentioned_competitors,omitempty"`
	InterestedInFacility  *bool     `json:"interested_in_facilities,omitempty"`
	DoctorPreference      string    `json:"doctor_preference,omitempty"`
	DoctorName            string    `json:"doctor_name,omitempty"`
	PriceInquiry          *bool     `json:"price_inquiry,omitempty"`
	AccompaniedBy         string    `json:"accompanied_by,omitempty"`
	BringsOtherChildren   string    `json:"brings_other_children,omitempty"`
	DoctorRemarkQuestions *bool     `json:"doctor_remark_questions,omitempty"`
	GoingToNative         *bool     `json:"going_to_native,omitempty"`
	PackageInterest       string    `json:"package_interest,omitempty"`
	LeadStatus            string    `json:"lead_status,omitempty"`
	BookingStatus         string    `json:"booking_status,omitempty"`
	FollowUpDate          string    `json:"follow_up_date,omitempty"`
	Notes                 string    `json:"notes,omitempty"`
	CreatedDate           time.Time `json:"created_date,omitempty"`
	LastUpdated           time.Time `json:"last_updated,omitempty"`
}

// Note represents one conversation note attached to a patient record.
type Note struct {
	NoteID      string    `json:"note_id"`
	PatientID   string    `json:"patient_id"`
	SessionID   string    `json:"session_id,omitempty"`
	NoteText    string    `json:"note_text"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedDate time.Time `json:"created_date"`
}

// API Response types for consistent JSON responses

// APIStatus represents the status field of an API response.
type APIStatus string

const (
	// APIStatusOK indicates the request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates the request failed.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
