package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration for the Voxlink SDK
type Config struct {
	// Transport configuration
	Transport TransportConfig `json:"transport" yaml:"transport"`

	// Token configuration
	Token TokenConfig `json:"token" yaml:"token"`

	// Transform configuration
	Transform TransformConfig `json:"transform" yaml:"transform"`

	// Signaling configuration
	Signaling SignalingConfig `json:"signaling" yaml:"signaling"`

	// Session configuration
	Session SessionConfig `json:"session" yaml:"session"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// TransportConfig holds media transport configuration
type TransportConfig struct {
	// AppID is the transport provider application identifier
	AppID string `json:"app_id" yaml:"app_id"`

	// SubscribeTimeout bounds a single remote-track subscription attempt
	SubscribeTimeout time.Duration `json:"subscribe_timeout" yaml:"subscribe_timeout"`

	// EventBuffer is the size of the transport event channel
	EventBuffer int `json:"event_buffer" yaml:"event_buffer"`
}

// TokenConfig holds transport token provider configuration
type TokenConfig struct {
	// APIKey identifies the token issuer
	APIKey string `json:"api_key" yaml:"api_key"`

	// APISecret signs issued tokens
	APISecret string `json:"api_secret" yaml:"api_secret"`

	// TTL is the lifetime of an issued token. Tokens are fetched
	// fresh per join attempt and never cached across sessions.
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

// TransformConfig holds video transform stage configuration
type TransformConfig struct {
	// ClientToken is the transform provider credential.
	// Empty means the stage is never constructed.
	ClientToken string `json:"client_token" yaml:"client_token"`

	// DefaultSmoothing is the initial smoothing parameter (0..1)
	DefaultSmoothing float64 `json:"default_smoothing" yaml:"default_smoothing"`
}

// SignalingConfig holds signaling service configuration
type SignalingConfig struct {
	// RedisAddress is the redis server address (host:port) for the
	// redis-backed signaling service
	RedisAddress string `json:"redis_address" yaml:"redis_address"`

	// RedisPassword is the redis password (optional)
	RedisPassword string `json:"redis_password" yaml:"redis_password"`

	// RedisDB is the redis database number
	RedisDB int `json:"redis_db" yaml:"redis_db"`

	// ListenerURL is the websocket endpoint for the snapshot listener
	ListenerURL string `json:"listener_url" yaml:"listener_url"`

	// DialTimeout bounds the websocket dial
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
}

// SessionConfig holds session coordinator configuration
type SessionConfig struct {
	// RingTimeout is how long a ringing call waits before being
	// marked missed
	RingTimeout time.Duration `json:"ring_timeout" yaml:"ring_timeout"`

	// ExitDelay is the pause between a terminal status and the exit
	// signal to the owner
	ExitDelay time.Duration `json:"exit_delay" yaml:"exit_delay"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error)
	Level string `json:"level" yaml:"level"`

	// Format is the log format (json, text)
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			AppID:            "",
			SubscribeTimeout: 5 * time.Second,
			EventBuffer:      64,
		},
		Token: TokenConfig{
			APIKey:    "",
			APISecret: "",
			TTL:       time.Minute,
		},
		Transform: TransformConfig{
			ClientToken:      "",
			DefaultSmoothing: 0.5,
		},
		Signaling: SignalingConfig{
			RedisAddress: "localhost:6379",
			RedisDB:      0,
			ListenerURL:  "",
			DialTimeout:  10 * time.Second,
		},
		Session: SessionConfig{
			RingTimeout: 45 * time.Second,
			ExitDelay:   1500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.loadFromEnv()

	return cfg, nil
}

// Validate checks that required fields are present
func (c *Config) Validate() error {
	if c.Transport.AppID == "" {
		return fmt.Errorf("transport.app_id is required")
	}
	if c.Token.APISecret == "" {
		return fmt.Errorf("token.api_secret is required")
	}
	if c.Transform.DefaultSmoothing < 0 || c.Transform.DefaultSmoothing > 1 {
		return fmt.Errorf("transform.default_smoothing must be within [0,1]")
	}
	return nil
}

// loadFromEnv overrides config from environment variables
func (c *Config) loadFromEnv() {
	if appID := os.Getenv("VOXLINK_APP_ID"); appID != "" {
		c.Transport.AppID = appID
	}
	if secret := os.Getenv("VOXLINK_API_SECRET"); secret != "" {
		c.Token.APISecret = secret
	}
	if token := os.Getenv("VOXLINK_TRANSFORM_TOKEN"); token != "" {
		c.Transform.ClientToken = token
	}
	if redisAddr := os.Getenv("REDIS_URL"); redisAddr != "" {
		c.Signaling.RedisAddress = redisAddr
	}
	if redisPass := os.Getenv("REDIS_PASSWORD"); redisPass != "" {
		c.Signaling.RedisPassword = redisPass
	}
}
