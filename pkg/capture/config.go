// Package capture reads BGR frames from webcams and video files.
package capture

// Config holds capture settings. Zero values leave the device default.
type Config struct {
	Width     int `json:"width" yaml:"width"`         // requested frame width in pixels
	Height    int `json:"height" yaml:"height"`       // requested frame height in pixels
	Framerate int `json:"framerate" yaml:"framerate"` // requested FPS
	// JPEG quality used when frames are uploaded to a server
	Quality int `json:"quality" yaml:"quality"`
}

// DefaultConfig returns 640x480 at 30 FPS, the usual webcam mode.
func DefaultConfig() Config {
	return Config{
		Width:     640,
		Height:    480,
		Framerate: 30,
		Quality:   80,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width != 0 && (c.Width < 160 || c.Width > 4096) {
		errors = append(errors, "width must be 0 or between 160 and 4096")
	}
	if c.Height != 0 && (c.Height < 120 || c.Height > 2160) {
		errors = append(errors, "height must be 0 or between 120 and 2160")
	}
	if c.Framerate < 0 || c.Framerate > 120 {
		errors = append(errors, "framerate must be between 0 and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}
