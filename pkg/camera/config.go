// Package camera reads frames from a local video capture device.
package camera

// Config selects the capture device. Frames are always delivered at
// capture.FrameWidth x capture.FrameHeight.
type Config struct {
	DeviceID int `json:"device_id"` // Index of the video capture device
}

// DefaultConfig returns the first device.
func DefaultConfig() Config {
	return Config{DeviceID: 0}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.DeviceID < 0 {
		errors = append(errors, "device_id must not be negative")
	}

	return errors
}
