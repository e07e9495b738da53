// Package config loads survey bot settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable pointing at the YAML config file.
const FileEnv = "SURVEYBOT_CONFIG"

// Config is the process-wide configuration.
type Config struct {
	// AdminSecret is the password accepted by the auth command. Never log it.
	AdminSecret string `yaml:"admin_secret"`
	// BaseURL is the public origin of the HTTP server, used for chart links.
	BaseURL       string `yaml:"base_url"`
	HTTPAddr      string `yaml:"http_addr"`
	DatabasePath  string `yaml:"database_path"`
	StaticDir     string `yaml:"static_dir"`
	CommandMarker string `yaml:"command_marker"`

	Line      LineConfig      `yaml:"line"`
	Matrix    MatrixConfig    `yaml:"matrix"`
	Footprint FootprintConfig `yaml:"footprint"`
	Log       LogConfig       `yaml:"log"`
}

// LineConfig enables the LINE webhook when both values are set.
type LineConfig struct {
	ChannelSecret      string `yaml:"channel_secret"`
	ChannelAccessToken string `yaml:"channel_access_token"`
	APIBase            string `yaml:"api_base"`
}

// Enabled reports whether the LINE transport is configured.
func (l LineConfig) Enabled() bool {
	return l.ChannelSecret != "" || l.ChannelAccessToken != ""
}

// MatrixConfig enables the Matrix transport when the homeserver is set.
type MatrixConfig struct {
	Homeserver  string   `yaml:"homeserver"`
	UserID      string   `yaml:"user_id"`
	AccessToken string   `yaml:"access_token"`
	Rooms       []string `yaml:"rooms"`
}

// Enabled reports whether the Matrix transport is configured.
func (m MatrixConfig) Enabled() bool {
	return m.Homeserver != "" || m.UserID != "" || m.AccessToken != ""
}

// FootprintConfig points the bulletin scraper at its source; empty fields use
// the scraper defaults.
type FootprintConfig struct {
	ListURL string `yaml:"list_url"`
	Origin  string `yaml:"origin"`
	Keyword string `yaml:"keyword"`
}

// LogConfig selects the slog level and handler format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		HTTPAddr:      ":8080",
		DatabasePath:  "./surveybot.db",
		StaticDir:     "./static",
		CommandMarker: "@",
		Log:           LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (or $SURVEYBOT_CONFIG when path is empty) over the
// defaults and then applies environment overrides. A missing file is an error
// only when one was named.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("BASE_URL is required"))
	} else if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("BASE_URL must be an http(s) URL, got %q", c.BaseURL))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH is required"))
	}
	if c.CommandMarker == "" {
		errs = append(errs, errors.New("COMMAND_MARKER must not be empty"))
	}

	if !c.Line.Enabled() && !c.Matrix.Enabled() {
		errs = append(errs, errors.New("no chat transport configured: set CHANNEL_SECRET and CHANNEL_ACCESS_TOKEN, or the MATRIX_* variables"))
	}
	if c.Line.Enabled() {
		if c.Line.ChannelSecret == "" {
			errs = append(errs, errors.New("CHANNEL_SECRET is required for LINE"))
		}
		if c.Line.ChannelAccessToken == "" {
			errs = append(errs, errors.New("CHANNEL_ACCESS_TOKEN is required for LINE"))
		}
	}
	if c.Matrix.Enabled() {
		if c.Matrix.Homeserver == "" {
			errs = append(errs, errors.New("MATRIX_HOMESERVER is required for Matrix"))
		}
		if c.Matrix.UserID == "" {
			errs = append(errs, errors.New("MATRIX_USER_ID is required for Matrix"))
		}
		if c.Matrix.AccessToken == "" {
			errs = append(errs, errors.New("MATRIX_ACCESS_TOKEN is required for Matrix"))
		}
	}
	return errors.Join(errs...)
}

// Secrets lists the values that must never appear in logs.
func (c *Config) Secrets() []string {
	return []string{c.AdminSecret, c.Line.ChannelSecret, c.Line.ChannelAccessToken, c.Matrix.AccessToken}
}
