package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/BreatheCheck/internal/airquality"
	"github.com/BTreeMap/BreatheCheck/internal/api"
	"github.com/BTreeMap/BreatheCheck/internal/lockfile"
	"github.com/BTreeMap/BreatheCheck/internal/messaging"
	"github.com/BTreeMap/BreatheCheck/internal/store"
	"github.com/BTreeMap/BreatheCheck/internal/util"
	"github.com/BTreeMap/BreatheCheck/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for BreatheCheck state data.
	DefaultStateDir = "/var/lib/breathecheck"
	// DefaultDBFileName is the default SQLite database filename.
	DefaultDBFileName = "breathecheck.db"
	// DefaultIdleExpiry is the default idle bound before an in-progress
	// session is discarded.
	DefaultIdleExpiry = 24 * time.Hour
)

// Config holds environment configuration.
type Config struct {
	StateDir    string
	DBDSN       string
	WAQIToken   string
	APIAddr     string
	Messenger   string
	TwilioSID   string
	TwilioToken string
	TwilioFrom  string
	WhatsAppDSN string
	IdleExpiry  time.Duration
}

// Flags holds command line flag values.
type Flags struct {
	stateDir   *string
	dbDSN      *string
	waqiToken  *string
	apiAddr    *string
	messenger  *string
	qrOutput   *string
	numeric    *bool
	idleExpiry *time.Duration
}

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	// One process per state directory: this is what makes per-user turn
	// serialization a global guarantee.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lock.Release()

	msgService, err := buildMessagingService(flags, config)
	if err != nil {
		slog.Error("Failed to build messaging service", "error", err)
		os.Exit(1)
	}

	storeOpts := buildStoreOptions(flags)
	aqOpts := buildAirQualityOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping BreatheCheck",
		"state_dir", *flags.stateDir,
		"dsn_set", *flags.dbDSN != "",
		"api_addr", *flags.apiAddr,
		"messenger", *flags.messenger,
		"idle_expiry", *flags.idleExpiry)
	if err := api.Run(storeOpts, aqOpts, msgService, apiOpts); err != nil {
		slog.Error("BreatheCheck failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("BreatheCheck exited successfully")
}

// initializeLogger sets up structured logging with debug level.
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and a
// .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	config := Config{
		StateDir:    os.Getenv("BREATHECHECK_STATE_DIR"),
		DBDSN:       os.Getenv("DATABASE_URL"),
		WAQIToken:   os.Getenv("AQICN_API"),
		APIAddr:     os.Getenv("API_ADDR"),
		Messenger:   os.Getenv("MESSENGER"),
		TwilioSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken: os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:  os.Getenv("TWILIO_WHATSAPP_FROM"),
		WhatsAppDSN: os.Getenv("WHATSAPP_DB_DSN"),
		IdleExpiry:  util.ParseDurationEnv("SESSION_IDLE_EXPIRY", DefaultIdleExpiry),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No BREATHECHECK_STATE_DIR set, using default", "state_dir", config.StateDir)
	}
	if config.DBDSN == "" {
		config.DBDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL set, defaulting to SQLite in state dir", "path", config.DBDSN)
	}

	slog.Debug("Environment configuration loaded",
		"state_dir", config.StateDir,
		"dsn_set", config.DBDSN != "",
		"waqi_token_set", config.WAQIToken != "",
		"api_addr", config.APIAddr,
		"messenger", config.Messenger,
		"idle_expiry", config.IdleExpiry)
	return config
}

// parseCommandLineFlags parses command line arguments with environment
// defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:   flag.String("state-dir", config.StateDir, "state directory for BreatheCheck data (overrides $BREATHECHECK_STATE_DIR)"),
		dbDSN:      flag.String("db-dsn", config.DBDSN, "session database DSN, SQLite path or PostgreSQL URL (overrides $DATABASE_URL)"),
		waqiToken:  flag.String("waqi-token", config.WAQIToken, "WAQI air-quality API token (overrides $AQICN_API)"),
		apiAddr:    flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		messenger:  flag.String("messenger", config.Messenger, "message transport: whatsapp, twilio, or none (overrides $MESSENGER)"),
		qrOutput:   flag.String("qr-output", "", "path to write the WhatsApp login QR code"),
		numeric:    flag.Bool("numeric-code", false, "use a numeric WhatsApp login code instead of a QR code"),
		idleExpiry: flag.Duration("idle-expiry", config.IdleExpiry, "discard sessions idle longer than this; 0 disables (overrides $SESSION_IDLE_EXPIRY)"),
	}
	flag.Parse()
	return flags
}

// buildMessagingService selects and constructs the message transport.
func buildMessagingService(flags Flags, config Config) (messaging.Service, error) {
	switch *flags.messenger {
	case "whatsapp":
		waOpts := []whatsapp.Option{}
		if config.WhatsAppDSN != "" {
			waOpts = append(waOpts, whatsapp.WithDBDSN(config.WhatsAppDSN))
		} else {
			waOpts = append(waOpts, whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, "whatsmeow.db")))
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil
	case "twilio":
		return messaging.NewTwilioService(
			messaging.WithAccountSID(config.TwilioSID),
			messaging.WithAuthToken(config.TwilioToken),
			messaging.WithFrom(config.TwilioFrom),
		)
	case "", "none":
		slog.Warn("No message transport configured, assessment is reachable over the HTTP API only")
		return messaging.NewMockService(), nil
	default:
		return nil, fmt.Errorf("unknown messenger %q (expected whatsapp, twilio, or none)", *flags.messenger)
	}
}

// buildStoreOptions constructs session store configuration options.
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	}
	return storeOpts
}

// buildAirQualityOptions constructs WAQI client configuration options.
func buildAirQualityOptions(flags Flags) []airquality.Option {
	var aqOpts []airquality.Option
	if *flags.waqiToken != "" {
		aqOpts = append(aqOpts, airquality.WithToken(*flags.waqiToken))
	}
	return aqOpts
}

// buildAPIOptions constructs API server configuration options.
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.idleExpiry > 0 {
		apiOpts = append(apiOpts, api.WithIdleExpiry(*flags.idleExpiry))
	}
	return apiOpts
}
