package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for notify-stream.
type Config struct {
	// Dashboard host serving the notification websocket, without scheme,
	// e.g. "dashboard.example.com" or "dashboard.example.com:8443".
	Host string `env:"NOTIFY_HOST"`

	// Bearer token presented on the websocket handshake.
	Token string `env:"NOTIFY_TOKEN"`

	// Insecure switches the endpoint from wss:// to ws://. Local
	// development only.
	Insecure bool `env:"NOTIFY_INSECURE" envDefault:"false"`

	// Debug forces debug-level text logging regardless of Environment.
	Debug bool `env:"NOTIFY_DEBUG" envDefault:"false"`

	// SoundURL is the audio asset echoed on alert sound triggers.
	SoundURL string `env:"NOTIFY_SOUND_URL" envDefault:"/static/notifications/audio/notification_bell.mp3"`

	// StateDir holds the session database. Defaults to
	// ~/.notify-stream/ when empty.
	StateDir string `env:"NOTIFY_STATE_DIR"`

	// TypesFile is an optional YAML file of notification type overrides.
	// When set, the file is watched and reloaded on change.
	TypesFile string `env:"NOTIFY_TYPES_FILE"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Reconnect backoff bounds.
	ReconnectMin time.Duration `env:"NOTIFY_RECONNECT_MIN" envDefault:"1s"`
	ReconnectMax time.Duration `env:"NOTIFY_RECONNECT_MAX" envDefault:"60s"`

	// SeenMaxAge bounds how long rendered notification identifiers are
	// kept for deduplication. Entries older than this are pruned at
	// startup.
	SeenMaxAge time.Duration `env:"NOTIFY_SEEN_MAX_AGE" envDefault:"48h"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, err
		}

		cfg.StateDir = dir
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".notify-stream"), nil
}

func (c *Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("NOTIFY_HOST is required")
	}

	if strings.Contains(c.Host, "://") {
		return fmt.Errorf("NOTIFY_HOST must not include a scheme (got %q)", c.Host)
	}

	if c.Token == "" {
		return fmt.Errorf("NOTIFY_TOKEN is required")
	}

	if c.ReconnectMin <= 0 {
		return fmt.Errorf("NOTIFY_RECONNECT_MIN must be positive")
	}

	if c.ReconnectMax < c.ReconnectMin {
		return fmt.Errorf("NOTIFY_RECONNECT_MAX must be at least NOTIFY_RECONNECT_MIN")
	}

	if c.SeenMaxAge <= 0 {
		return fmt.Errorf("NOTIFY_SEEN_MAX_AGE must be positive")
	}

	return nil
}

// Endpoint returns the websocket URL for the notification stream.
func (c *Config) Endpoint() string {
	scheme := "wss"
	if c.Insecure {
		scheme = "ws"
	}

	return scheme + "://" + c.Host + "/ws/notification/"
}

// SessionID derives a stable identifier for this host/token pair. The
// token itself never touches disk; only its hash partitions the session
// database.
func (c *Config) SessionID() string {
	sum := sha256.Sum256([]byte(c.Host + "\x00" + c.Token))

	return hex.EncodeToString(sum[:8])
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// LogEnvironment returns the environment the logger should be built for.
// Debug overrides production so an operator can flip verbose logging on a
// deployed client without changing ENVIRONMENT.
func (c *Config) LogEnvironment() string {
	if c.Debug {
		return "development"
	}

	return c.Environment
}
