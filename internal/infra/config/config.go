// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the audio service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Player    PlayerConfig    `yaml:"player"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Callbacks CallbacksConfig `yaml:"callbacks"`
	Session   SessionConfig   `yaml:"session"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	LastFM    LastFMConfig    `yaml:"lastfm"`
	Spotify   SpotifyConfig   `yaml:"spotify"`
}

// ServerConfig represents RPC server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Token string      `yaml:"token"` // empty disables authentication
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents shell commands run around the server lifetime.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// LoggingConfig represents logger configuration.
type LoggingConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	File   string `yaml:"file"`
}

// PlayerConfig represents the defaults applied to every new player.
type PlayerConfig struct {
	Volume     float64 `yaml:"volume" default:"1" validate:"gte=0,lte=1"`
	Rate       float64 `yaml:"rate" default:"1" validate:"gt=0,lte=4"`
	TickMs     int     `yaml:"tick_ms" default:"250" validate:"gte=10,lte=5000"`
	ProbeLocal bool    `yaml:"probe_local" default:"true"`
}

// MetadataConfig represents remote metadata refresh configuration.
type MetadataConfig struct {
	IntervalSec int     `yaml:"interval_sec" default:"15" validate:"gte=1"`
	TimeoutSec  int     `yaml:"timeout_sec" default:"10" validate:"gte=1,lte=120"`
	Workers     int     `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
	QueueSize   int     `yaml:"queue_size" default:"64" validate:"gte=1"`
	Rate        float64 `yaml:"rate" default:"5" validate:"gt=0"` // fetches per second
	Burst       int     `yaml:"burst" default:"5" validate:"gte=1"`
	MaxBodyKB   int     `yaml:"max_body_kb" default:"256" validate:"gte=1"`
}

// CallbacksConfig represents callback delivery configuration.
type CallbacksConfig struct {
	Buffer int `yaml:"buffer" default:"64" validate:"gte=1"`
}

// SessionConfig represents the shared session configuration.
type SessionConfig struct {
	HostOrigin       string `yaml:"host_origin"`
	ShowSeekBackward *bool  `yaml:"show_seek_backward"`
	ShowSeekForward  *bool  `yaml:"show_seek_forward"`
}

// SnapshotConfig represents session snapshot storage configuration.
type SnapshotConfig struct {
	Store      string `yaml:"store" default:"memory" validate:"oneof=memory redis none"`
	Addr       string `yaml:"addr" default:"localhost:6379"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db" validate:"gte=0"`
	TTLSec     int    `yaml:"ttl_sec" default:"3600" validate:"gte=0"`
	TimeoutSec int    `yaml:"timeout_sec" default:"5" validate:"gte=1"`
}

// LastFMConfig represents Last.fm API configuration. An empty key disables
// artwork enrichment.
type LastFMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url" default:"https://ws.audioscrobbler.com/2.0/" validate:"url"`
}

// SpotifyConfig represents Spotify API configuration. Without credentials,
// spotify: update URLs are rejected.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required_with=ClientSecret"`
	ClientSecret string `yaml:"client_secret" validate:"required_with=ClientID"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
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

// Parse parses configuration from YAML data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	return Parse([]byte("{}"))
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("AUDIOD_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		c.LastFM.APIKey = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Snapshot.Password = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Logging.Output != "stdout" && c.Logging.Output != "stderr" && c.Logging.File == "" {
		return errors.Newf("logging.file is required for output %q", c.Logging.Output)
	}
	return nil
}

// ShowSeekBackward returns the default for the backward seek control.
func (c *Config) ShowSeekBackward() bool {
	return c.Session.ShowSeekBackward == nil || *c.Session.ShowSeekBackward
}

// ShowSeekForward returns the default for the forward seek control.
func (c *Config) ShowSeekForward() bool {
	return c.Session.ShowSeekForward == nil || *c.Session.ShowSeekForward
}

// SpotifyEnabled reports whether Spotify credentials are configured.
func (c *Config) SpotifyEnabled() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

// MetadataInterval returns the default refresh interval.
func (c *Config) MetadataInterval() time.Duration {
	return time.Duration(c.Metadata.IntervalSec) * time.Second
}

// FetchTimeout returns the timeout of a single metadata fetch.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Metadata.TimeoutSec) * time.Second
}

// SnapshotTTL returns how long a stored snapshot lives.
func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.Snapshot.TTLSec) * time.Second
}

// SnapshotTimeout returns the timeout of a single snapshot write.
func (c *Config) SnapshotTimeout() time.Duration {
	return time.Duration(c.Snapshot.TimeoutSec) * time.Second
}

// Tick returns the clock player position update period.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Player.TickMs) * time.Millisecond
}
