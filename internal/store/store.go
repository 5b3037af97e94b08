// Package store provides storage backends for CarePipe patient records
// and conversation notes.
//
// It includes an in-memory store for tests and development, plus SQLite
// and PostgreSQL backends selected by DSN.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/careops/carepipe/internal/models"
)

// Store is the record and note store consumed by the session controller
// and the API layer.
type Store interface {
	AddPatient(p models.Patient) error
	ListPatients(search string) ([]models.Patient, error)
	GetPatient(id string) (*models.Patient, error)
	UpdatePatient(id string, fields map[string]interface{}) error
	ListNotes(patientID string) ([]models.Note, error)
	AddNote(note models.Note) error
	Close() error
}

// Opts holds store configuration.
type Opts struct {
	DSN    string
	Driver string
}

// Option configures a store backend.
type Option func(*Opts)

// WithSQLiteDSN configures a SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "sqlite3"
	}
}

// WithPostgresDSN configures a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "postgres"
	}
}

// DetectDSNType guesses the backend from a DSN string. PostgreSQL DSNs use
// a URL scheme or key=value form; anything else is treated as a SQLite
// file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a mutex-guarded map-backed store.
type InMemoryStore struct {
	mu       sync.RWMutex
	patients map[string]models.Patient
	notes    map[string][]models.Note
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		patients: make(map[string]models.Patient),
		notes:    make(map[string][]models.Note),
	}
}

// AddPatient inserts or replaces a patient record.
func (s *InMemoryStore) AddPatient(p models.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.PatientID] = p
	return nil
}

// ListPatients returns patients matching the search term by name, phone
// number or MPID, most recently updated first.
func (s *InMemoryStore) ListPatients(search string) ([]models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(search)
	var out []models.Patient
	for _, p := range s.patients {
		if needle == "" ||
			strings.Contains(strings.ToLower(p.Name), needle) ||
			strings.Contains(strings.ToLower(p.PhoneNumber), needle) ||
			strings.Contains(strings.ToLower(p.MPID), needle) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.After(out[j].LastUpdated) })
	return out, nil
}

// GetPatient returns the patient with the given ID.
func (s *InMemoryStore) GetPatient(id string) (*models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, models.ErrPatientNotFound
	}
	return &p, nil
}

// UpdatePatient applies whitelisted field updates to a patient record.
func (s *InMemoryStore) UpdatePatient(id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok {
		return models.ErrPatientNotFound
	}
	applyPatientFields(&p, fields)
	p.LastUpdated = time.Now()
	s.patients[id] = p
	return nil
}

// ListNotes returns a patient's notes, newest first.
func (s *InMemoryStore) ListNotes(patientID string) ([]models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	notes := make([]models.Note, len(s.notes[patientID]))
	copy(notes, s.notes[patientID])
	sort.Slice(notes, func(i, j int) bool { return notes[i].CreatedDate.After(notes[j].CreatedDate) })
	return notes, nil
}

// AddNote appends a note for a patient.
func (s *InMemoryStore) AddNote(note models.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[note.PatientID] = append(s.notes[note.PatientID], note)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
