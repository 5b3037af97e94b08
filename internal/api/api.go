// Package api provides HTTP handlers and the main API server logic for CarePipe.
//
// It exposes RESTful endpoints for patient records, conversation session
// lifecycle control, transcript extraction, feedback relay and logout.
// The API integrates with the session, store, reconcile, extract and
// feedback modules.
package api

import (
	"log/slog"
	"net/http"

	"github.com/careops/carepipe/internal/extract"
	"github.com/careops/carepipe/internal/feedback"
	"github.com/careops/carepipe/internal/session"
	"github.com/careops/carepipe/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds API server configuration options.
type Opts struct {
	Addr         string
	AuthDomain   string
	AuthClientID string
	LogoutURI    string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr overrides the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithAuth configures the hosted-auth logout redirect parameters.
func WithAuth(domain, clientID, logoutURI string) Option {
	return func(o *Opts) {
		o.AuthDomain = domain
		o.AuthClientID = clientID
		o.LogoutURI = logoutURI
	}
}

// Server wires the storage, session and extraction modules behind HTTP
// endpoints.
type Server struct {
	st        store.Store
	ctrl      *session.Controller
	relay     *feedback.Relay
	extractor extract.ClientInterface
	opts      Opts
}

// NewServer creates an API server over the given collaborators.
func NewServer(st store.Store, ctrl *session.Controller, relay *feedback.Relay, extractor extract.ClientInterface, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewServer invoked", "addr", cfg.Addr, "auth_configured", cfg.AuthDomain != "")
	return &Server{
		st:        st,
		ctrl:      ctrl,
		relay:     relay,
		extractor: extractor,
		opts:      cfg,
	}
}

// Handler builds the route mux. Exposed separately from Run so tests can
// drive the server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/patients", s.patientsHandler)
	mux.HandleFunc("/patients/", s.patientsHandler)
	mux.HandleFunc("/notes", s.notesHandler)
	mux.HandleFunc("/session/select", s.sessionSelectHandler)
	mux.HandleFunc("/session/start", s.sessionStartHandler)
	mux.HandleFunc("/session/stop", s.sessionStopHandler)
	mux.HandleFunc("/session/continue", s.sessionContinueHandler)
	mux.HandleFunc("/session/submit", s.sessionSubmitHandler)
	mux.HandleFunc("/session/activity", s.sessionActivityHandler)
	mux.HandleFunc("/session/status", s.sessionStatusHandler)
	mux.HandleFunc("/session/extraction", s.sessionExtractionHandler)
	mux.HandleFunc("/feedback", s.feedbackHandler)
	mux.HandleFunc("/auth/logout", s.logoutHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	slog.Info("CarePipe API running", "addr", s.opts.Addr)
	return http.ListenAndServe(s.opts.Addr, s.Handler())
}
