// Package store provides storage backends for CarePipe.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	_ "embed"

	"github.com/careops/carepipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	slog.Debug("Opening Postgres database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	slog.Debug("Postgres database opened")

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Postgres ping successful")

	// Run migrations to ensure tables exist
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// ListPatients returns patients matching the search term by name, phone
// number or MPID, most recently updated first.
func (s *PostgresStore) ListPatients(search string) ([]models.Patient, error) {
	query := `SELECT ` + patientSelectColumns + ` FROM patients`
	var args []interface{}
	if search != "" {
		query += ` WHERE name ILIKE $1 OR phone_number ILIKE $1 OR mpid ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY last_updated DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore ListPatients query failed", "error", err)
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	var patients []models.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			slog.Error("PostgresStore ListPatients scan failed", "error", err)
			return nil, err
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListPatients rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate patient rows: %w", err)
	}
	slog.Debug("PostgresStore ListPatients succeeded", "count", len(patients))
	return patients, nil
}

// GetPatient returns the patient with the given ID.
func (s *PostgresStore) GetPatient(id string) (*models.Patient, error) {
	row := s.db.QueryRow(`SELECT `+patientSelectColumns+` FROM patients WHERE patient_id = $1`, id)
	p, err := scanPatient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPatientNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetPatient failed", "error", err, "patientID", id)
		return nil, err
	}
	slog.Debug("PostgresStore GetPatient succeeded", "patientID", id)
	return &p, nil
}

// UpdatePatient applies whitelisted field updates to a patient record and
// bumps last_updated.
func (s *PostgresStore) UpdatePatient(id string, fields map[string]interface{}) error {
	filtered, err := filterPatientFields(fields)
	if err != nil {
		slog.Error("PostgresStore UpdatePatient filter failed", "error", err, "patientID", id)
		return err
	}
	if len(filtered) == 0 {
		slog.Debug("PostgresStore UpdatePatient no-op, no updatable fields", "patientID", id)
		return nil
	}

	names := make([]string, 0, len(filtered))
	for name := range filtered {
		names = append(names, name)
	}
	sort.Strings(names)

	var sets []string
	var args []interface{}
	for i, name := range names {
		sets = append(sets, fmt.Sprintf("%s = $%d", name, i+1))
		args = append(args, filtered[name])
	}
	sets = append(sets, fmt.Sprintf("last_updated = $%d", len(names)+1))
	args = append(args, time.Now(), id)

	query := fmt.Sprintf(`UPDATE patients SET %s WHERE patient_id = $%d`, strings.Join(sets, ", "), len(names)+2)
	res, err := s.db.Exec(query, args...)
	if err != nil {
		slog.Error("PostgresStore UpdatePatient failed", "error", err, "patientID", id)
		return fmt.Errorf("failed to update patient %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrPatientNotFound
	}
	slog.Debug("PostgresStore UpdatePatient succeeded", "patientID", id, "fields", len(filtered))
	return nil
}

// ListNotes returns a patient's notes, newest first.
func (s *PostgresStore) ListNotes(patientID string) ([]models.Note, error) {
	rows, err := s.db.Query(`SELECT note_id, patient_id, session_id, note_text, created_by, created_date FROM patient_notes WHERE patient_id = $1 ORDER BY created_date DESC`, patientID)
	if err != nil {
		slog.Error("PostgresStore ListNotes query failed", "error", err, "patientID", patientID)
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var notes []models.Note
	for rows.Next() {
		var n models.Note
		var sessionID, createdBy sql.NullString
		if err := rows.Scan(&n.NoteID, &n.PatientID, &sessionID, &n.NoteText, &createdBy, &n.CreatedDate); err != nil {
			slog.Error("PostgresStore ListNotes scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan note row: %w", err)
		}
		n.SessionID = sessionID.String
		n.CreatedBy = createdBy.String
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListNotes rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate note rows: %w", err)
	}
	slog.Debug("PostgresStore ListNotes succeeded", "patientID", patientID, "count", len(notes))
	return notes, nil
}

// AddNote inserts a note for a patient.
func (s *PostgresStore) AddNote(note models.Note) error {
	_, err := s.db.Exec(`INSERT INTO patient_notes (note_id, patient_id, session_id, note_text, created_by, created_date) VALUES ($1, $2, $3, $4, $5, $6)`,
		note.NoteID, note.PatientID, nilIfEmpty(note.SessionID), note.NoteText, nilIfEmpty(note.CreatedBy), note.CreatedDate)
	if err != nil {
		slog.Error("PostgresStore AddNote failed", "error", err, "patientID", note.PatientID)
		return fmt.Errorf("failed to insert note for %s: %w", note.PatientID, err)
	}
	slog.Debug("PostgresStore AddNote succeeded", "patientID", note.PatientID, "noteID", note.NoteID)
	return nil
}

// AddPatient inserts a new patient record. Used by tests and seed tooling.
func (s *PostgresStore) AddPatient(p models.Patient) error {
	_, err := s.db.Exec(`INSERT INTO patients (patient_id, mpid, name, phone_number, created_date, last_updated) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.PatientID, nilIfEmpty(p.MPID), p.Name, nilIfEmpty(p.PhoneNumber), p.CreatedDate, p.LastUpdated)
	if err != nil {
		slog.Error("PostgresStore AddPatient failed", "error", err, "patientID", p.PatientID)
		return fmt.Errorf("failed to insert patient %s: %w", p.PatientID, err)
	}
	slog.Debug("PostgresStore AddPatient succeeded", "patientID", p.PatientID)
	return nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
