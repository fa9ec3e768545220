package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livesync/backend/internal/session"
)

type Config struct {
	State    StateConfig    `yaml:"state"`
	Report   ReportConfig   `yaml:"report"`
	Identity IdentityConfig `yaml:"identity"`
	Server   ServerConfig   `yaml:"server"`
	Privacy  PrivacyConfig  `yaml:"privacy"`
	Mock     MockConfig     `yaml:"mock"`
	Log      LogConfig      `yaml:"log"`
}

// StateConfig selects where persisted records live.
type StateConfig struct {
	Backend string `yaml:"backend"` // file, sqlite or memory
	// Path is the directory for the file backend and the database file
	// for sqlite. Empty selects the per-user state directory.
	Path      string        `yaml:"path"`
	Key       string        `yaml:"key"`
	Retention time.Duration `yaml:"retention"`
}

type ReportConfig struct {
	Event      string        `yaml:"event"`
	Expiration time.Duration `yaml:"expiration"`
	QueueSize  int           `yaml:"queue_size"`
	Sinks      []SinkConfig  `yaml:"sinks"`
}

// SinkConfig describes one report destination.
type SinkConfig struct {
	Type       string        `yaml:"type"` // log, http, ws or amqp
	URL        string        `yaml:"url"`
	Token      string        `yaml:"token"`
	Codec      string        `yaml:"codec"` // json or cbor
	Exchange   string        `yaml:"exchange"`
	RoutingKey string        `yaml:"routing_key"`
	Timeout    time.Duration `yaml:"timeout"`
}

type IdentityConfig struct {
	UserID string `yaml:"user_id"`
	// InstallationID defaults to the host id.
	InstallationID string `yaml:"installation_id"`
}

type ServerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Port             int           `yaml:"port"`
	Host             string        `yaml:"host"`
	AuthToken        string        `yaml:"auth_token"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	MaxConnections   int           `yaml:"max_connections"`
	RecentEvents     int           `yaml:"recent_events"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// PrivacyConfig masks what the inspection server shows.
type PrivacyConfig struct {
	MaskTokens     bool     `yaml:"mask_tokens"`
	MaskSessionIDs bool     `yaml:"mask_session_ids"`
	AllowedKinds   []string `yaml:"allowed_kinds"`
	BlockedKinds   []string `yaml:"blocked_kinds"`
}

type MockConfig struct {
	Interval time.Duration `yaml:"interval"`
	Sessions int           `yaml:"sessions"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaultConfig() *Config {
	return &Config{
		State: StateConfig{
			Backend:   "file",
			Key:       "__wonderpush_persistedActivityStates",
			Retention: 8 * time.Hour,
		},
		Report: ReportConfig{
			Event:      "NewLiveActivity",
			Expiration: 8 * time.Hour,
			QueueSize:  256,
			Sinks:      []SinkConfig{{Type: "log"}},
		},
		Server: ServerConfig{
			Enabled:          true,
			Port:             8080,
			Host:             "127.0.0.1",
			MaxConnections:   32,
			RecentEvents:     100,
			SnapshotInterval: 10 * time.Second,
		},
		Privacy: PrivacyConfig{
			MaskTokens: true,
		},
		Mock: MockConfig{
			Interval: 2 * time.Second,
			Sessions: 4,
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.State.Backend {
	case "file", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("state.backend: unknown backend %q", c.State.Backend))
	}
	if c.State.Key == "" {
		errs = append(errs, errors.New("state.key: must not be empty"))
	}
	if c.State.Retention < 0 {
		errs = append(errs, errors.New("state.retention: must not be negative"))
	}

	if c.Report.Event == "" {
		errs = append(errs, errors.New("report.event: must not be empty"))
	}
	if c.Report.Expiration <= 0 {
		errs = append(errs, errors.New("report.expiration: must be positive"))
	}
	if c.Report.QueueSize < 0 {
		errs = append(errs, errors.New("report.queue_size: must not be negative"))
	}
	for i, sink := range c.Report.Sinks {
		if err := sink.validate(); err != nil {
			errs = append(errs, fmt.Errorf("report.sinks[%d]: %w", i, err))
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}
	if c.Server.SnapshotInterval < 0 {
		errs = append(errs, errors.New("server.snapshot_interval: must not be negative"))
	}

	if c.Mock.Interval <= 0 {
		errs = append(errs, errors.New("mock.interval: must be positive"))
	}

	switch c.Log.Level {
	case "DEBUG", "INFO", "NOTICE", "WARNING", "ERROR", "CRITICAL":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

func (s SinkConfig) validate() error {
	switch s.Codec {
	case "", "json", "cbor":
	default:
		return fmt.Errorf("unknown codec %q", s.Codec)
	}
	if s.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	switch s.Type {
	case "log":
		return nil
	case "http", "ws":
		if s.URL == "" {
			return fmt.Errorf("%s sink needs a url", s.Type)
		}
		return nil
	case "amqp":
		if s.URL == "" || s.Exchange == "" {
			return errors.New("amqp sink needs a url and an exchange")
		}
		return nil
	}
	return fmt.Errorf("unknown sink type %q", s.Type)
}

// NewPrivacyFilter builds the filter applied by the inspection server.
func (c *Config) NewPrivacyFilter() *session.PrivacyFilter {
	return &session.PrivacyFilter{
		MaskTokens:     c.Privacy.MaskTokens,
		MaskSessionIDs: c.Privacy.MaskSessionIDs,
		AllowedKinds:   c.Privacy.AllowedKinds,
		BlockedKinds:   c.Privacy.BlockedKinds,
	}
}

// GenerateToken returns a random 32-character hex token suitable for
// server.auth_token.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
