package session

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-falldetect/pkg/fall"
	"github.com/teslashibe/go-falldetect/pkg/pose"
)

// Config holds the tunable parameters of a detection session
type Config struct {
	// Classifier
	FallThreshold   float64 // minimum hip-minus-shoulder drop for a collapse
	GroundThreshold float64 // hip height (0 top, 1 bottom) counted as near the floor

	// Landmark source
	DetectionConfidence float64 // score needed to start tracking a body
	TrackingConfidence  float64 // score needed to keep tracking a body

	// Timing
	FPS           float64 // nominal capture rate, drives timestamps
	WindowSeconds float64 // seconds of history kept for playback

	// Frames larger than this on either side are downscaled
	MaxDimension int
}

// DefaultConfig returns the library defaults
func DefaultConfig() Config {
	return Config{
		FallThreshold:       0.3,
		GroundThreshold:     0.8,
		DetectionConfidence: 0.5,
		TrackingConfidence:  0.5,
		FPS:                 30,
		WindowSeconds:       5,
		MaxDimension:        640,
	}
}

// Validate reports the first invalid field
func (c Config) Validate() error {
	switch {
	case c.FPS <= 0 || math.IsNaN(c.FPS):
		return fmt.Errorf("session: fps must be positive, got %v", c.FPS)
	case c.WindowSeconds <= 0 || math.IsNaN(c.WindowSeconds):
		return fmt.Errorf("session: window seconds must be positive, got %v", c.WindowSeconds)
	case c.MaxDimension <= 0:
		return fmt.Errorf("session: max dimension must be positive, got %d", c.MaxDimension)
	}

	for _, f := range []struct {
		name string
		v    float64
	}{
		{"detection confidence", c.DetectionConfidence},
		{"tracking confidence", c.TrackingConfidence},
	} {
		if f.v < 0 || f.v > 1 || math.IsNaN(f.v) {
			return fmt.Errorf("session: %s must be in [0,1], got %v", f.name, f.v)
		}
	}
	return nil
}

// Capacity is the number of frames the playback window holds
func (c Config) Capacity() int {
	return max(1, int(math.Round(c.WindowSeconds*c.FPS)))
}

// Thresholds returns the classifier thresholds
func (c Config) Thresholds() fall.Thresholds {
	return fall.Thresholds{Fall: c.FallThreshold, Ground: c.GroundThreshold}
}

// SourceOptions returns the options handed to the landmark source
func (c Config) SourceOptions() pose.Options {
	return pose.Options{
		DetectionConfidence: c.DetectionConfidence,
		TrackingConfidence:  c.TrackingConfidence,
	}
}
