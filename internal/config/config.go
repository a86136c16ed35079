package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAPIBaseURL is used when no backend host is configured. A terminal has
// no page origin to fall back to, so it points at a locally running Functions host.
const DefaultAPIBaseURL = "http://localhost:7071"

// Config holds all WormChat configuration.
// The flat ApiBaseUrl/ApiKey pair is the canonical backend binding.
type Config struct {
	// Backend binding
	APIBaseURL string `yaml:"ApiBaseUrl"`
	APIKey     string `yaml:"ApiKey"`

	// Session expiry after inactivity; 0 disables expiry.
	SessionTimeoutMinutes int `yaml:"SessionTimeoutMinutes"`

	// Per-request timeout for the backend exchange; "0" disables it.
	RequestTimeout string `yaml:"RequestTimeout"`

	// UI theme: "auto", "light" or "dark"
	Theme string `yaml:"Theme"`

	Storage     StorageConfig     `yaml:"Storage"`
	Logging     LoggingConfig     `yaml:"Logging"`
	StubBackend StubBackendConfig `yaml:"StubBackend"`
}

// StubBackendConfig configures the local stub backend.
type StubBackendConfig struct {
	Addr   string `yaml:"Addr"`
	APIKey string `yaml:"ApiKey"` // when set, requests must carry a matching x-functions-key
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:            DefaultAPIBaseURL,
		SessionTimeoutMinutes: 1440,
		RequestTimeout:        "100s",
		Theme:                 "auto",
		Storage:               DefaultStorageConfig(),
		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},
		StubBackend: StubBackendConfig{
			Addr: "127.0.0.1:7071",
		},
	}
}

// ResolveHome returns the WormChat state directory.
// Priority: explicit flag > WORMCHAT_HOME > ~/.wormchat
func ResolveHome(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("WORMCHAT_HOME"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user home: %w", err)
	}
	return filepath.Join(home, ".wormchat"), nil
}

// DefaultConfigPath returns <home>/config.yaml.
func DefaultConfigPath(home string) string {
	return filepath.Join(home, "config.yaml")
}

// Load loads configuration from a YAML file, then applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may carry the function key.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// BaseURL returns the backend base URL with the default applied and any
// trailing slash removed.
func (c *Config) BaseURL() string {
	base := strings.TrimSpace(c.APIBaseURL)
	if base == "" {
		base = DefaultAPIBaseURL
	}
	return strings.TrimRight(base, "/")
}

// GetRequestTimeout returns the request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	if c.RequestTimeout == "" {
		return 100 * time.Second
	}
	if c.RequestTimeout == "0" {
		return 0
	}
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 100 * time.Second
	}
	return d
}

// GetSessionTimeout returns the session inactivity timeout as a duration.
func (c *Config) GetSessionTimeout() time.Duration {
	if c.SessionTimeoutMinutes <= 0 {
		return 0
	}
	return time.Duration(c.SessionTimeoutMinutes) * time.Minute
}

// ValidThemes lists the accepted Theme values.
var ValidThemes = []string{"auto", "light", "dark"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL())
	if err != nil {
		return fmt.Errorf("invalid ApiBaseUrl %q: %w", c.APIBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid ApiBaseUrl %q: scheme must be http or https", c.APIBaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid ApiBaseUrl %q: missing host", c.APIBaseURL)
	}

	if c.SessionTimeoutMinutes < 0 {
		return fmt.Errorf("SessionTimeoutMinutes must not be negative (got %d)", c.SessionTimeoutMinutes)
	}

	if c.RequestTimeout != "" && c.RequestTimeout != "0" {
		if _, err := time.ParseDuration(c.RequestTimeout); err != nil {
			return fmt.Errorf("invalid RequestTimeout %q: %w", c.RequestTimeout, err)
		}
	}

	validTheme := false
	for _, t := range ValidThemes {
		if c.Theme == t {
			validTheme = true
			break
		}
	}
	if !validTheme {
		return fmt.Errorf("invalid Theme: %s (valid: %v)", c.Theme, ValidThemes)
	}

	return c.Storage.Validate()
}
