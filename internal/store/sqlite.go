// Package store provides storage backends for CarePipe.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "embed"

	"github.com/careops/carepipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	slog.Debug("SQLite database opened")

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLite ping successful")

	// Run migrations to ensure tables exist
	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// ListPatients returns patients matching the search term by name, phone
// number or MPID, most recently updated first. An empty search returns
// all patients.
func (s *SQLiteStore) ListPatients(search string) ([]models.Patient, error) {
	query := `SELECT ` + patientSelectColumns + ` FROM patients`
	var args []interface{}
	if search != "" {
		query += ` WHERE lower(name) LIKE ? OR phone_number LIKE ? OR lower(mpid) LIKE ?`
		needle := "%" + strings.ToLower(search) + "%"
		args = append(args, needle, needle, needle)
	}
	query += ` ORDER BY last_updated DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListPatients query failed", "error", err)
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	var patients []models.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			slog.Error("SQLiteStore ListPatients scan failed", "error", err)
			return nil, err
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListPatients rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate patient rows: %w", err)
	}
	slog.Debug("SQLiteStore ListPatients succeeded", "count", len(patients))
	return patients, nil
}

// GetPatient returns the patient with the given ID.
func (s *SQLiteStore) GetPatient(id string) (*models.Patient, error) {
	row := s.db.QueryRow(`SELECT `+patientSelectColumns+` FROM patients WHERE patient_id = ?`, id)
	p, err := scanPatient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPatientNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetPatient failed", "error", err, "patientID", id)
		return nil, err
	}
	slog.Debug("SQLiteStore GetPatient succeeded", "patientID", id)
	return &p, nil
}

// UpdatePatient applies whitelisted field updates to a patient record and
// bumps last_updated.
func (s *SQLiteStore) UpdatePatient(id string, fields map[string]interface{}) error {
	filtered, err := filterPatientFields(fields)
	if err != nil {
		slog.Error("SQLiteStore UpdatePatient filter failed", "error", err, "patientID", id)
		return err
	}
	if len(filtered) == 0 {
		slog.Debug("SQLiteStore UpdatePatient no-op, no updatable fields", "patientID", id)
		return nil
	}

	names := make([]string, 0, len(filtered))
	for name := range filtered {
		names = append(names, name)
	}
	sort.Strings(names)

	var sets []string
	var args []interface{}
	for _, name := range names {
		sets = append(sets, name+" = ?")
		args = append(args, filtered[name])
	}
	sets = append(sets, "last_updated = ?")
	args = append(args, time.Now(), id)

	query := `UPDATE patients SET ` + strings.Join(sets, ", ") + ` WHERE patient_id = ?`
	res, err := s.db.Exec(query, args...)
	if err != nil {
		slog.Error("SQLiteStore UpdatePatient failed", "error", err, "patientID", id)
		return fmt.Errorf("failed to update patient %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrPatientNotFound
	}
	slog.Debug("SQLiteStore UpdatePatient succeeded", "patientID", id, "fields", len(filtered))
	return nil
}

// ListNotes returns a patient's notes, newest first.
func (s *SQLiteStore) ListNotes(patientID string) ([]models.Note, error) {
	rows, err := s.db.Query(`SELECT note_id, patient_id, session_id, note_text, created_by, created_date FROM patient_notes WHERE patient_id = ? ORDER BY created_date DESC`, patientID)
	if err != nil {
		slog.Error("SQLiteStore ListNotes query failed", "error", err, "patientID", patientID)
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var notes []models.Note
	for rows.Next() {
		var n models.Note
		var sessionID, createdBy sql.NullString
		if err := rows.Scan(&n.NoteID, &n.PatientID, &sessionID, &n.NoteText, &createdBy, &n.CreatedDate); err != nil {
			slog.Error("SQLiteStore ListNotes scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan note row: %w", err)
		}
		n.SessionID = sessionID.String
		n.CreatedBy = createdBy.String
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListNotes rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate note rows: %w", err)
	}
	slog.Debug("SQLiteStore ListNotes succeeded", "patientID", patientID, "count", len(notes))
	return notes, nil
}

// AddNote inserts a note for a patient.
func (s *SQLiteStore) AddNote(note models.Note) error {
	_, err := s.db.Exec(`INSERT INTO patient_notes (note_id, patient_id, session_id, note_text, created_by, created_date) VALUES (?, ?, ?, ?, ?, ?)`,
		note.NoteID, note.PatientID, nilIfEmpty(note.SessionID), note.NoteText, nilIfEmpty(note.CreatedBy), note.CreatedDate)
	if err != nil {
		slog.Error("SQLiteStore AddNote failed", "error", err, "patientID", note.PatientID)
		return fmt.Errorf("failed to insert note for %s: %w", note.PatientID, err)
	}
	slog.Debug("SQLiteStore AddNote succeeded", "patientID", note.PatientID, "noteID", note.NoteID)
	return nil
}

// AddPatient inserts a new patient record. Used by tests and seed tooling.
func (s *SQLiteStore) AddPatient(p models.Patient) error {
	_, err := s.db.Exec(`INSERT INTO patients (patient_id, mpid, name, phone_number, created_date, last_updated) VALUES (?, ?, ?, ?, ?, ?)`,
		p.PatientID, nilIfEmpty(p.MPID), p.Name, nilIfEmpty(p.PhoneNumber), p.CreatedDate, p.LastUpdated)
	if err != nil {
		slog.Error("SQLiteStore AddPatient failed", "error", err, "patientID", p.PatientID)
		return fmt.Errorf("failed to insert patient %s: %w", p.PatientID, err)
	}
	slog.Debug("SQLiteStore AddPatient succeeded", "patientID", p.PatientID)
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
