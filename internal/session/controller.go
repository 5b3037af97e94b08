package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/careops/carepipe/internal/models"
)

// RecordFetcher fetches a patient record snapshot during selection.
type RecordFetcher interface {
	GetPatient(id string) (*models.Patient, error)
}

// Controller is the session lifecycle controller. It is the only writer of
// session state; a single mutex serializes every transition, so timer
// ticks, operator actions and payload arrivals never interleave.
type Controller struct {
	mu sync.Mutex

	state       models.SessionState
	resumeState models.SessionState // state to return to when the advisory clears
	sessionID   string
	patient     *models.Patient

	// submitting is independent of state so concurrent submit triggers
	// (advisory auto-submit racing a manual click) collapse to one
	// finalize call.
	submitting     bool
	advisoryRaised bool

	selectSeq uint64 // supersedes in-flight record selections

	clock           *ActivityClock
	records         RecordFetcher
	finalizer       Finalizer
	finalizeTimeout time.Duration
	watchdog        *Watchdog

	onAdvisory func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithFinalizeTimeout overrides the deadline applied to the finalize call.
func WithFinalizeTimeout(d time.Duration) Option {
	return func(c *Controller) { c.finalizeTimeout = d }
}

// WithClock injects an activity clock (used by tests for a fake time source).
func WithClock(clock *ActivityClock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithAdvisoryHandler registers a callback fired when the inactivity
// advisory is raised.
func WithAdvisoryHandler(fn func()) Option {
	return func(c *Controller) { c.onAdvisory = fn }
}

// NewController creates a session lifecycle controller.
func NewController(records RecordFetcher, finalizer Finalizer, opts ...Option) *Controller {
	slog.Debug("Controller.NewController: creating session controller",
		"hasRecords", records != nil, "hasFinalizer", finalizer != nil)
	c := &Controller{
		state:           models.StateIdle,
		resumeState:     models.StateIdle,
		clock:           NewActivityClock(),
		records:         records,
		finalizer:       finalizer,
		finalizeTimeout: DefaultFinalizeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AttachWatchdog hands the controller the watchdog it owns. The controller
// starts it on session activation and stops it on termination.
func (c *Controller) AttachWatchdog(w *Watchdog) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchdog = w
}

// Clock exposes the activity clock for the watchdog.
func (c *Controller) Clock() *ActivityClock {
	return c.clock
}

// SessionID returns the authoritative session identity, resolved at call
// time. It is empty when no session exists.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() models.SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := models.SessionStatus{
		SessionID:      c.sessionID,
		State:          c.state,
		AdvisoryRaised: c.advisoryRaised,
		LastActivityAt: c.clock.LastActivityAt(),
	}
	if c.patient != nil {
		status.PatientID = c.patient.PatientID
	}
	return status
}

// SelectedPatient returns the currently selected record snapshot, or nil.
func (c *Controller) SelectedPatient() *models.Patient {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.patient
}

// RefreshSelectedPatient replaces the selected record snapshot after an
// out-of-band update, so later reconciliations see the saved fields.
// Ignored when the record is no longer the selected one.
func (c *Controller) RefreshSelectedPatient(p *models.Patient) {
	if p == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.patient == nil || c.patient.PatientID != p.PatientID {
		return
	}
	c.patient = p
	slog.Debug("Controller.RefreshSelectedPatient: snapshot refreshed", "patientID", p.PatientID)
}

// SelectPatient fetches the record and makes it the session subject. A
// later selection supersedes an earlier in-flight one rather than
// aborting it. Selecting a record after a session has ended resets the
// controller for a fresh interaction.
func (c *Controller) SelectPatient(ctx context.Context, patientID string) (*models.Patient, error) {
	c.mu.Lock()
	if c.submitting || c.state == models.StateSubmitting {
		c.mu.Unlock()
		slog.Warn("Controller.SelectPatient: rejected while submitting", "patientID", patientID)
		return nil, models.ErrSubmitInProgress
	}
	c.selectSeq++
	seq := c.selectSeq
	c.mu.Unlock()

	slog.Debug("Controller.SelectPatient: fetching record", "patientID", patientID)
	patient, err := c.records.GetPatient(patientID)
	if err != nil {
		slog.Error("Controller.SelectPatient: fetch failed", "error", err, "patientID", patientID)
		if errors.Is(err, models.ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: fetch record: %v", models.ErrTransport, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.selectSeq {
		// A later selection superseded this one while the fetch was in
		// flight; discard the stale result.
		slog.Debug("Controller.SelectPatient: selection superseded", "patientID", patientID)
		return patient, nil
	}
	if c.state == models.StateEnded {
		c.resetLocked()
	}
	c.patient = patient
	c.clock.Reset()
	c.advisoryRaised = false
	slog.Info("Controller.SelectPatient: record selected", "patientID", patientID)
	return patient, nil
}

// StartRecording begins capture. A session is created on the first start;
// selecting a record first is a precondition.
func (c *Controller) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.rejectIfClosedLocked(); err != nil {
		return err
	}
	if c.patient == nil {
		slog.Warn("Controller.StartRecording: no patient selected")
		return models.ErrNoPatientSelected
	}
	if c.state == models.StateRecording {
		return nil
	}
	if c.state == models.StateAwaitingSubmitConfirmation {
		return fmt.Errorf("cannot start recording while the inactivity advisory is pending")
	}

	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
		slog.Info("Controller.StartRecording: session created", "sessionID", c.sessionID, "patientID", c.patient.PatientID)
		if c.watchdog != nil {
			c.watchdog.Start()
		}
	}

	c.state = models.StateRecording
	c.clock.Reset()
	c.advisoryRaised = false
	slog.Debug("Controller.StartRecording: recording started", "sessionID", c.sessionID)
	return nil
}

// StopRecording pauses capture without mutating the record.
func (c *Controller) StopRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.rejectIfClosedLocked(); err != nil {
		return err
	}
	if c.state != models.StateRecording {
		slog.Debug("Controller.StopRecording: not recording", "state", c.state)
		return nil
	}
	c.state = models.StateIdle
	c.clock.Reset()
	slog.Debug("Controller.StopRecording: recording stopped", "sessionID", c.sessionID)
	return nil
}

// RecordActivity registers an activity-resetting event: a transcript
// delta, an explicit operator interaction, a language change or a file
// selection. Activity clears a pending advisory.
func (c *Controller) RecordActivity(kind models.ActivityKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.rejectIfClosedLocked(); err != nil {
		return err
	}
	c.clock.Reset()
	if c.advisoryRaised {
		c.advisoryRaised = false
		if c.state == models.StateAwaitingSubmitConfirmation {
			c.state = c.resumeState
		}
	}
	slog.Debug("Controller.RecordActivity: activity recorded", "kind", kind, "state", c.state)
	return nil
}

// Continue dismisses the inactivity advisory and resumes the session in
// the state it was in before the advisory fired. It does not change
// whether capture is active.
func (c *Controller) Continue() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != models.StateAwaitingSubmitConfirmation {
		return fmt.Errorf("no advisory pending in state %s", c.state)
	}
	c.state = c.resumeState
	c.advisoryRaised = false
	c.clock.Reset()
	slog.Info("Controller.Continue: advisory dismissed", "sessionID", c.sessionID, "resumed", c.state)
	return nil
}

// Submit drives the session through the submitting state: it invokes the
// finalize collaborator exactly once, under a deadline. A second Submit
// while one is in flight is a no-op. On transport failure the session
// returns to its pre-submit state so the operator can retry manually; on
// success it ends and rejects further input.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.state == models.StateEnded {
		c.mu.Unlock()
		return models.ErrSessionEnded
	}
	if c.submitting {
		// Concurrent trigger: advisory auto-submit racing a manual click.
		c.mu.Unlock()
		slog.Debug("Controller.Submit: already submitting, ignoring duplicate trigger")
		return nil
	}
	if c.sessionID == "" {
		c.mu.Unlock()
		slog.Warn("Controller.Submit: no active session")
		return models.ErrNoActiveSession
	}

	preSubmit := c.state
	if preSubmit == models.StateAwaitingSubmitConfirmation {
		preSubmit = c.resumeState
	}
	c.submitting = true
	c.state = models.StateSubmitting
	c.advisoryRaised = false
	sessionID := c.sessionID
	c.mu.Unlock()

	slog.Info("Controller.Submit: finalizing session", "sessionID", sessionID)
	finalizeCtx, cancel := context.WithTimeout(ctx, c.finalizeTimeout)
	defer cancel()
	err := c.finalizer.Finalize(finalizeCtx, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false
	if err != nil {
		c.state = preSubmit
		slog.Error("Controller.Submit: finalize failed, session restored for retry",
			"error", err, "sessionID", sessionID, "state", c.state)
		return fmt.Errorf("%w: finalize session: %v", models.ErrTransport, err)
	}

	c.state = models.StateEnded
	if c.watchdog != nil {
		c.watchdog.Stop()
	}
	slog.Info("Controller.Submit: session ended", "sessionID", sessionID)
	return nil
}

// Reset discards the ended session so a new one can be created. The
// selected record is kept.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// EvaluateIdle is invoked by the watchdog on each poll. It raises the
// advisory at most once per idle episode, and only while a session is
// active and not recording.
func (c *Controller) EvaluateIdle(threshold time.Duration) {
	c.mu.Lock()
	// Recording is excluded: transcript deltas reset the clock, and the
	// advisory concerns a session left idle between recordings.
	if c.sessionID == "" ||
		c.advisoryRaised ||
		c.state != models.StateIdle ||
		c.clock.IdleFor() < threshold {
		c.mu.Unlock()
		return
	}

	c.resumeState = c.state
	c.state = models.StateAwaitingSubmitConfirmation
	c.advisoryRaised = true
	cb := c.onAdvisory
	sessionID := c.sessionID
	c.mu.Unlock()

	slog.Info("Controller.EvaluateIdle: inactivity advisory raised", "sessionID", sessionID)
	if cb != nil {
		cb()
	}
}

// rejectIfClosedLocked enforces the input gates of the submitting and
// ended states. Caller must hold c.mu.
func (c *Controller) rejectIfClosedLocked() error {
	if c.state == models.StateEnded {
		return models.ErrSessionEnded
	}
	if c.submitting || c.state == models.StateSubmitting {
		return models.ErrSubmitInProgress
	}
	return nil
}

// resetLocked clears session identity and lifecycle flags. Caller must
// hold c.mu.
func (c *Controller) resetLocked() {
	if c.watchdog != nil && c.sessionID != "" {
		c.watchdog.Stop()
	}
	c.sessionID = ""
	c.state = models.StateIdle
	c.resumeState = models.StateIdle
	c.submitting = false
	c.advisoryRaised = false
	c.clock.Reset()
	slog.Debug("Controller.resetLocked: controller reset")
}
