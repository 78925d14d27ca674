// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/tunedeck/internal/domain/queue"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig            `yaml:"server"`
	Player  PlayerConfig            `yaml:"player"`
	Spotify SpotifyConfig           `yaml:"spotify"`
	Radio   RadioConfig             `yaml:"radio"`
	Filters map[string]FilterConfig `yaml:"filters"`
}

// ServerConfig represents the control API server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Token string      `yaml:"token"` // empty disables authentication
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// PlayerConfig represents playback configuration.
type PlayerConfig struct {
	DefaultMode   string `yaml:"default_mode" default:"none" validate:"oneof=none off loop repeat_all one repeat_one shuffle"`
	StateFile     string `yaml:"state_file" default:"tunedeck-state.yaml"`
	NoMoreMessage string `yaml:"no_more_message" default:"No more songs!"`
	TickMs        int    `yaml:"tick_ms" default:"100" validate:"gte=10,lte=1000"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
	RefreshToken string `yaml:"refresh_token" validate:"required"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// RadioConfig represents radio session configuration.
type RadioConfig struct {
	BatchSize int              `yaml:"batch_size" default:"20" validate:"gte=1,lte=100"`
	Providers []ProviderConfig `yaml:"providers" validate:"dive"`
}

// ProviderConfig represents a single radio provider configuration.
type ProviderConfig struct {
	Type        string         `yaml:"type" validate:"required,oneof=playlist lastfm"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings" validate:"required"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Radio.Providers {
			if c.Radio.Providers[i].Type == "lastfm" {
				if c.Radio.Providers[i].Settings == nil {
					c.Radio.Providers[i].Settings = make(map[string]any)
				}
				c.Radio.Providers[i].Settings["api_key"] = v
			}
		}
	}
	if v := os.Getenv("TUNEDECK_TOKEN"); v != "" {
		c.Server.Token = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// DefaultMode returns the configured initial loop mode.
func (c *Config) DefaultMode() queue.LoopMode {
	mode, err := queue.ParseLoopMode(c.Player.DefaultMode)
	if err != nil {
		return queue.Off
	}
	return mode
}

// Tick returns the engine clock resolution.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Player.TickMs) * time.Millisecond
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}
