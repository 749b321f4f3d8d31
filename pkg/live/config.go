package live

import (
	"errors"
	"time"
)

// Provider identifies the remote inference transport.
type Provider string

const (
	// ProviderGemini talks to Google's Gemini Live API directly.
	ProviderGemini Provider = "gemini"

	// ProviderRelay talks to a relay that speaks the compact frame protocol.
	ProviderRelay Provider = "relay"
)

// DefaultSystemPrompt instructs the model to map hand gestures to particle updates.
const DefaultSystemPrompt = `You watch a live camera feed of a person's hands, two frames per second.
Recognize hand gestures and drive a particle visualization by calling update_particles.
Only send the fields that should change.

Gestures:
- open palm: shape "sphere", expansion grows with how far the fingers spread
- fist: expansion 0.3, speed 0.5
- peace sign: shape "heart", color_palette "fire"
- pointing finger: shape "helix", rotation_speed follows the pointing direction
- thumbs up: shape "firework", color_palette "rainbow"
- wave: shape "galaxy", speed 3

If no hand is visible, do not call the function.`

// Config holds the settings for a live transport.
type Config struct {
	// Provider selection
	Provider Provider

	// Gemini
	GoogleAPIKey string // Falls back to Application Default Credentials when empty
	Model        string
	Endpoint     string // Overrides the Gemini websocket URL
	SystemPrompt string

	// Relay
	RelayURL string

	HandshakeTimeout time.Duration

	Debug bool
}

// DefaultConfig returns a Config for the Gemini Live provider.
func DefaultConfig() Config {
	return Config{
		Provider:         ProviderGemini,
		Model:            "models/gemini-2.0-flash-exp",
		SystemPrompt:     DefaultSystemPrompt,
		HandshakeTimeout: 10 * time.Second,
	}
}

// DefaultRelayConfig returns a Config for a relay at url.
func DefaultRelayConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.Provider = ProviderRelay
	cfg.RelayURL = url
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.Model == "" {
			return errors.New("live: Gemini model required")
		}
	case ProviderRelay:
		if c.RelayURL == "" {
			return errors.New("live: relay URL required")
		}
	default:
		return errors.New("live: unknown provider: " + string(c.Provider))
	}

	if c.HandshakeTimeout < 0 {
		return errors.New("live: handshake timeout must not be negative")
	}
	return nil
}

// WithProvider returns a copy with the provider set.
func (c Config) WithProvider(p Provider) Config {
	c.Provider = p
	return c
}

// WithAPIKey returns a copy with the Google API key set.
func (c Config) WithAPIKey(key string) Config {
	c.GoogleAPIKey = key
	return c
}

// WithModel returns a copy with the model set.
func (c Config) WithModel(model string) Config {
	c.Model = model
	return c
}

// WithSystemPrompt returns a copy with the system prompt set.
func (c Config) WithSystemPrompt(prompt string) Config {
	c.SystemPrompt = prompt
	return c
}

// WithDebug returns a copy with debug enabled.
func (c Config) WithDebug(debug bool) Config {
	c.Debug = debug
	return c
}
