package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envOverrides lists the environment variables that override the YAML file.
// Fields are pre-filled from the loaded config; unset variables leave them unchanged.
type envOverrides struct {
	APIBaseURL            string `env:"WORMCHAT_API_BASE_URL"`
	APIKey                string `env:"WORMCHAT_API_KEY"`
	SessionTimeoutMinutes int    `env:"WORMCHAT_SESSION_TIMEOUT_MINUTES"`
	RequestTimeout        string `env:"WORMCHAT_REQUEST_TIMEOUT"`
	Theme                 string `env:"WORMCHAT_THEME"`
	StorageBackend        string `env:"WORMCHAT_STORAGE_BACKEND"`
	StoragePath           string `env:"WORMCHAT_STORAGE_PATH"`
	RedisURL              string `env:"WORMCHAT_REDIS_URL"`
	DebugMode             bool   `env:"WORMCHAT_DEBUG"`
	StubAddr              string `env:"WORMCHAT_STUB_ADDR"`
	StubAPIKey            string `env:"WORMCHAT_STUB_API_KEY"`
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	ov := envOverrides{
		APIBaseURL:            c.APIBaseURL,
		APIKey:                c.APIKey,
		SessionTimeoutMinutes: c.SessionTimeoutMinutes,
		RequestTimeout:        c.RequestTimeout,
		Theme:                 c.Theme,
		StorageBackend:        c.Storage.Backend,
		StoragePath:           c.Storage.Path,
		RedisURL:              c.Storage.RedisURL,
		DebugMode:             c.Logging.DebugMode,
		StubAddr:              c.StubBackend.Addr,
		StubAPIKey:            c.StubBackend.APIKey,
	}

	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	c.APIBaseURL = ov.APIBaseURL
	c.APIKey = ov.APIKey
	c.SessionTimeoutMinutes = ov.SessionTimeoutMinutes
	c.RequestTimeout = ov.RequestTimeout
	c.Theme = ov.Theme
	c.Storage.Backend = ov.StorageBackend
	c.Storage.Path = ov.StoragePath
	c.Storage.RedisURL = ov.RedisURL
	c.Logging.DebugMode = ov.DebugMode
	c.StubBackend.Addr = ov.StubAddr
	c.StubBackend.APIKey = ov.StubAPIKey
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set.
// Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}
