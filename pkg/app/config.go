package app

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-gesture/internal/config"
	"github.com/teslashibe/go-gesture/pkg/camera"
	"github.com/teslashibe/go-gesture/pkg/live"
)

// Config holds all configuration for the gesture app.
type Config struct {
	Live   live.Config
	Camera camera.Config

	// ListenAddr is where the state feed server listens.
	ListenAddr string

	// AutoConnect starts a session as soon as Run is called.
	AutoConnect bool

	LogLevel string
	LogFile  string
	Debug    bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Live:       live.DefaultConfig(),
		Camera:     camera.DefaultConfig(),
		ListenAddr: ":8181",
		LogLevel:   "info",
	}
}

// LoadEnvConfig fills in values from environment variables.
// Call before flag parsing so flags take precedence.
func (c *Config) LoadEnvConfig() {
	c.Live = c.Live.
		WithProvider(live.Provider(config.GetEnv("GESTURE_PROVIDER", string(c.Live.Provider)))).
		WithAPIKey(config.GetEnv("GOOGLE_API_KEY", c.Live.GoogleAPIKey)).
		WithModel(config.GetEnv("GEMINI_MODEL", c.Live.Model)).
		WithSystemPrompt(config.GetEnv("GESTURE_SYSTEM_PROMPT", c.Live.SystemPrompt))
	c.Live.Endpoint = config.GetEnv("GEMINI_ENDPOINT", c.Live.Endpoint)
	c.Live.RelayURL = config.GetEnv("GESTURE_RELAY_URL", c.Live.RelayURL)
	c.Live.HandshakeTimeout = config.GetEnvDuration("GESTURE_HANDSHAKE_TIMEOUT", c.Live.HandshakeTimeout)

	c.Camera.DeviceID = config.GetEnvInt("GESTURE_CAMERA", c.Camera.DeviceID)

	c.ListenAddr = config.GetEnv("GESTURE_LISTEN", c.ListenAddr)
	c.AutoConnect = config.GetEnvBool("GESTURE_AUTO_CONNECT", c.AutoConnect)
	c.LogLevel = config.GetEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = config.GetEnv("LOG_FILE", c.LogFile)
	c.Debug = config.GetEnvBool("DEBUG", c.Debug)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.Live.Validate(); err != nil {
		return &ConfigError{Field: "Live", Message: err.Error()}
	}
	if problems := c.Camera.Validate(); len(problems) > 0 {
		return &ConfigError{Field: "Camera", Message: strings.Join(problems, "; ")}
	}
	if c.ListenAddr == "" {
		return &ConfigError{Field: "ListenAddr", Message: "listen address is required"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s - %s", e.Field, e.Message)
}
