package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/careops/carepipe/internal/api"
	"github.com/careops/carepipe/internal/extract"
	"github.com/careops/carepipe/internal/feedback"
	"github.com/careops/carepipe/internal/scheduler"
	"github.com/careops/carepipe/internal/session"
	"github.com/careops/carepipe/internal/store"
	"github.com/careops/carepipe/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for CarePipe state data
	DefaultStateDir = "/var/lib/carepipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "carepipe.db"
	// feedbackDialTimeout bounds the startup feedback channel dial
	feedbackDialTimeout = 10 * time.Second
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Open the record store
	st, err := openStore(flags)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Session lifecycle: controller owns the watchdog, the watchdog polls
	// through the shared scheduler.
	finalizer := session.NewHTTPFinalizer(*flags.sessionServiceURL)
	ctrl := session.NewController(st, finalizer)
	sched := scheduler.NewScheduler()
	defer sched.Stop()
	watchdog := session.NewWatchdog(ctrl, sched)
	ctrl.AttachWatchdog(watchdog)

	// Feedback relay, with a best-effort channel dial at startup
	relay := feedback.NewRelay(ctrl)
	if *flags.feedbackWSURL != "" {
		dialCtx, cancel := context.WithTimeout(context.Background(), feedbackDialTimeout)
		ch, err := feedback.Dial(dialCtx, *flags.feedbackWSURL)
		cancel()
		if err != nil {
			slog.Warn("Feedback channel unavailable, events will be dropped", "error", err, "url", *flags.feedbackWSURL)
		} else {
			relay.SetChannel(ch)
			defer ch.Close()
		}
	}

	// Transcript extraction client
	extractOpts := buildExtractOptions(flags)
	extractor, err := extract.NewClient(extractOpts...)
	if err != nil {
		slog.Error("Failed to create extraction client", "error", err)
		os.Exit(1)
	}

	apiOpts := buildAPIOptions(flags)
	srv := api.NewServer(st, ctrl, relay, extractor, apiOpts...)

	slog.Info("Bootstrapping CarePipe with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	if err := srv.Run(); err != nil {
		slog.Error("CarePipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("CarePipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL       string
	StateDir          string
	OpenAIKey         string
	APIAddr           string
	SessionServiceURL string
	FeedbackWSURL     string
	AuthDomain        string
	AuthClientID      string
	LogoutURI         string
}

// Flags holds command line flag values
type Flags struct {
	stateDir          *string
	dbDSN             *string
	openaiKey         *string
	apiAddr           *string
	sessionServiceURL *string
	feedbackWSURL     *string
	authDomain        *string
	authClientID      *string
	logoutURI         *string
}

// initializeLogger sets up structured logging. CAREPIPE_DEBUG=true enables
// debug-level output; the default is info.
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevelFromEnv()}))
	slog.SetDefault(logger)
}

func logLevelFromEnv() slog.Level {
	if util.ParseBoolEnv("CAREPIPE_DEBUG", false) {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		StateDir:          os.Getenv("CAREPIPE_STATE_DIR"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		APIAddr:           os.Getenv("API_ADDR"),
		SessionServiceURL: os.Getenv("SESSION_SERVICE_URL"),
		FeedbackWSURL:     os.Getenv("FEEDBACK_WS_URL"),
		AuthDomain:        os.Getenv("AUTH_DOMAIN"),
		AuthClientID:      os.Getenv("AUTH_CLIENT_ID"),
		LogoutURI:         os.Getenv("LOGOUT_URI"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CAREPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("CAREPIPE_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CAREPIPE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"SESSION_SERVICE_URL_SET", config.SessionServiceURL != "",
		"FEEDBACK_WS_URL_SET", config.FeedbackWSURL != "",
		"AUTH_DOMAIN_SET", config.AuthDomain != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:          flag.String("state-dir", config.StateDir, "state directory for CarePipe data (overrides $CAREPIPE_STATE_DIR)"),
		dbDSN:             flag.String("db-dsn", config.DatabaseURL, "database DSN for the patient store (overrides $DATABASE_URL)"),
		openaiKey:         flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:           flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		sessionServiceURL: flag.String("session-service-url", config.SessionServiceURL, "session finalize service base URL (overrides $SESSION_SERVICE_URL)"),
		feedbackWSURL:     flag.String("feedback-ws-url", config.FeedbackWSURL, "feedback relay websocket URL (overrides $FEEDBACK_WS_URL)"),
		authDomain:        flag.String("auth-domain", config.AuthDomain, "hosted auth domain for logout redirects (overrides $AUTH_DOMAIN)"),
		authClientID:      flag.String("auth-client-id", config.AuthClientID, "hosted auth client ID (overrides $AUTH_CLIENT_ID)"),
		logoutURI:         flag.String("logout-uri", config.LogoutURI, "post-logout redirect URI (overrides $LOGOUT_URI)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"sessionServiceURL_set", *flags.sessionServiceURL != "",
		"feedbackWSURL_set", *flags.feedbackWSURL != "")

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "dsn_updated", true, "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	// Ensure state directory exists if we're using a file-based DSN
	if store.DetectDSNType(*flags.dbDSN) != "postgres" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
		slog.Debug("State directory created successfully", "state_dir", stateDir)
	}
	return nil
}

// openStore selects and opens the store backend based on the DSN.
func openStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildExtractOptions constructs extraction client configuration options
func buildExtractOptions(flags Flags) []extract.Option {
	var opts []extract.Option
	if *flags.openaiKey != "" {
		opts = append(opts, extract.WithAPIKey(*flags.openaiKey))
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.authDomain != "" {
		apiOpts = append(apiOpts, api.WithAuth(*flags.authDomain, *flags.authClientID, *flags.logoutURI))
	}
	return apiOpts
}
