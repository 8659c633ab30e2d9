// Package config loads tiny-tune configuration from an optional TOML file
// and the environment. Environment variables always win over file values.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ErrMissingCredentials is returned when no Spotify client credentials are
// configured.
var ErrMissingCredentials = errors.New("missing Spotify client credentials (set SPOTIFY_ID and SPOTIFY_SECRET)")

// Config holds the application configuration.
type Config struct {
	Addr        string `toml:"addr"`
	RedirectURI string `toml:"redirect_uri"`

	Spotify  SpotifyConfig  `toml:"spotify"`
	Database DatabaseConfig `toml:"database"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// DatabaseConfig contains database connection settings. An empty URL means
// sessions are kept in memory.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// Default returns a Config with defaults applied.
func Default() *Config {
	return &Config{
		Addr:        "127.0.0.1:8080",
		RedirectURI: "http://127.0.0.1:8080/callback",
	}
}

// Load builds the configuration from an optional TOML file at path plus
// environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("REDIRECT_URI"); v != "" {
		c.RedirectURI = v
	}
	if v := os.Getenv("SPOTIFY_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
}

func (c *Config) validate() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return ErrMissingCredentials
	}
	return nil
}
