// Package config loads the server configuration.
//
// LOADING ORDER:
//  1. Defaults (defaultConfig)
//  2. A .env file in the working directory, if present (joho/godotenv).
//     Variables already set in the process environment win over .env.
//  3. An optional YAML file (path argument, or CONFIG_FILE)
//  4. Environment variables, which override everything above
//
// The resulting *Config is built once in main and passed down by reference.
// Nothing else in the program reads the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	Ingest   IngestConfig   `yaml:"ingest"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig selects PostgreSQL or the SQLite fallback.
type DatabaseConfig struct {
	// URL is a PostgreSQL connection URL. A "sqlite:///path" URL selects
	// SQLite at that path.
	URL string `yaml:"url"`
	// AllowSQLiteFallback permits running on SQLitePath when URL is empty.
	AllowSQLiteFallback bool   `yaml:"allow_sqlite_fallback"`
	SQLitePath          string `yaml:"sqlite_path"`
}

// SessionConfig contains session cookie settings.
type SessionConfig struct {
	Secret string `yaml:"secret"`
	// TTL bounds session lifetime. Zero means sessions do not expire.
	TTL          time.Duration `yaml:"ttl"`
	CookieSecure bool          `yaml:"cookie_secure"`
}

// IngestConfig contains the shared key devices present on /api/ingest.
type IngestConfig struct {
	APIKey string `yaml:"api_key"`
}

// MQTTConfig contains device-messaging broker settings.
// An empty Host disables the broker connection; commands then fail with a
// transport error.
type MQTTConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	TLS         bool   `yaml:"tls"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	QoS         int    `yaml:"qos"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Host != ""
}

// LoggingConfig contains slog settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Minimum session secret length, matching auth.NewSessionCodec.
const minSecretLength = 16

// Load builds the configuration. path may be empty; CONFIG_FILE is consulted
// in that case, and with neither set no YAML file is read.
func Load(path string) (*Config, error) {
	// godotenv.Load never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Database: DatabaseConfig{
			SQLitePath: "data/garirakho.db",
		},
		Ingest: IngestConfig{
			APIKey: "devkey",
		},
		MQTT: MQTTConfig{
			Port:        1883,
			ClientID:    "garirakho-backend",
			QoS:         1,
			TopicPrefix: "garirakho",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyEnvOverrides copies set environment variables over cfg.
// Malformed numbers, booleans and durations are reported, not ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	collect(envInt("PORT", &cfg.Server.Port))
	if v, ok := lookupEnv("ALLOWED_ORIGINS"); ok {
		cfg.Server.AllowedOrigins = parseList(v)
	}

	envString("DATABASE_URL", &cfg.Database.URL)
	collect(envBool("ALLOW_SQLITE_FALLBACK", &cfg.Database.AllowSQLiteFallback))
	envString("DB_PATH", &cfg.Database.SQLitePath)

	envString("SESSION_SECRET", &cfg.Session.Secret)
	collect(envDuration("SESSION_TTL", &cfg.Session.TTL))
	collect(envBool("COOKIE_SECURE", &cfg.Session.CookieSecure))

	envString("INGEST_API_KEY", &cfg.Ingest.APIKey)

	envString("MQTT_HOST", &cfg.MQTT.Host)
	collect(envInt("MQTT_PORT", &cfg.MQTT.Port))
	collect(envBool("MQTT_TLS", &cfg.MQTT.TLS))
	envString("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	envString("MQTT_USERNAME", &cfg.MQTT.Username)
	envString("MQTT_PASSWORD", &cfg.MQTT.Password)
	collect(envInt("MQTT_QOS", &cfg.MQTT.QoS))
	envString("MQTT_TOPIC_PREFIX", &cfg.MQTT.TopicPrefix)

	envString("LOG_LEVEL", &cfg.Logging.Level)
	envString("LOG_FORMAT", &cfg.Logging.Format)

	return errors.Join(errs...)
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}

	if _, _, err := c.Database.Select(); err != nil {
		errs = append(errs, err)
	}

	if len(c.Session.Secret) < minSecretLength {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d characters", minSecretLength))
	}
	if c.Session.TTL < 0 {
		errs = append(errs, errors.New("SESSION_TTL must not be negative"))
	}

	if strings.TrimSpace(c.Ingest.APIKey) == "" {
		errs = append(errs, errors.New("INGEST_API_KEY must not be empty"))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("MQTT QoS %d must be 0, 1 or 2", c.MQTT.QoS))
	}
	if c.MQTT.Enabled() {
		if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
			errs = append(errs, fmt.Errorf("MQTT port %d out of range", c.MQTT.Port))
		}
		if c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
			errs = append(errs, fmt.Errorf("MQTT topic prefix %q is invalid", c.MQTT.TopicPrefix))
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q must be text or json", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Database drivers returned by Select.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Select decides which database to open and with what DSN.
//
//   - URL set to "sqlite:///path" (or "sqlite://path"): SQLite at path
//   - any other URL: PostgreSQL
//   - no URL: SQLite at SQLitePath if AllowSQLiteFallback, else an error
func (d DatabaseConfig) Select() (driver, dsn string, err error) {
	url := strings.TrimSpace(d.URL)

	if url == "" {
		if !d.AllowSQLiteFallback {
			return "", "", errors.New("DATABASE_URL is missing and ALLOW_SQLITE_FALLBACK is not set")
		}
		if d.SQLitePath == "" {
			return "", "", errors.New("DB_PATH must not be empty when using the SQLite fallback")
		}
		return DriverSQLite, d.SQLitePath, nil
	}

	if rest, ok := strings.CutPrefix(url, "sqlite://"); ok {
		// sqlite:///./garirakho.db -> ./garirakho.db, sqlite:////abs.db -> /abs.db
		path := strings.TrimPrefix(rest, "/")
		if path == "" {
			return "", "", fmt.Errorf("DATABASE_URL %q has no path", url)
		}
		return DriverSQLite, path, nil
	}

	return DriverPostgres, url, nil
}

// =============================================================================
// Environment helpers
// =============================================================================

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func envString(key string, dst *string) {
	if v, ok := lookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v, ok := lookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

// envBool accepts 1/0, true/false, yes/no and on/off.
func envBool(key string, dst *bool) error {
	v, ok := lookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		return fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v, ok := lookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", key, v)
	}
	*dst = d
	return nil
}

// parseList splits a comma-separated list, dropping blanks.
func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
