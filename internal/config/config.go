// Package config loads the fall detection service configuration.
//
// Values come from built-in defaults, then an optional YAML file, then
// environment variables. Command-line flags are applied last by each command.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/teslashibe/go-falldetect/pkg/pose"
	"github.com/teslashibe/go-falldetect/pkg/session"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Model   ModelConfig   `yaml:"model"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig contains HTTP settings
type ServerConfig struct {
	Port           string        `yaml:"port"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	RequestLogging bool          `yaml:"request_logging"`
	BodyLimitMB    int           `yaml:"body_limit_mb"`
	SessionIdle    time.Duration `yaml:"session_idle"` // idle sessions are closed after this long
}

// ModelConfig contains pose model settings
type ModelConfig struct {
	Path        string  `yaml:"path"`
	InputSize   int     `yaml:"input_size"`
	NMSThresh   float64 `yaml:"nms_threshold"`
	TrackingIoU float64 `yaml:"tracking_iou"`
}

// SessionConfig contains per-session detection settings
type SessionConfig struct {
	FallThreshold       float64 `yaml:"fall_threshold"`
	GroundThreshold     float64 `yaml:"ground_threshold"`
	DetectionConfidence float64 `yaml:"detection_confidence"`
	TrackingConfidence  float64 `yaml:"tracking_confidence"`
	FPS                 float64 `yaml:"fps"`
	WindowSeconds       float64 `yaml:"window_seconds"`
	MaxDimension        int     `yaml:"max_dimension"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the service defaults. The detection thresholds are more
// sensitive than the library defaults.
func Default() Config {
	yolo := pose.DefaultYOLOConfig()
	s := session.DefaultConfig()

	return Config{
		Server: ServerConfig{
			Port:        "5000",
			CORSOrigins: []string{"http://localhost:3000"},
			BodyLimitMB: 16,
			SessionIdle: 10 * time.Minute,
		},
		Model: ModelConfig{
			Path:        yolo.ModelPath,
			InputSize:   yolo.InputWidth,
			NMSThresh:   float64(yolo.NMSThresh),
			TrackingIoU: yolo.TrackIoU,
		},
		Session: SessionConfig{
			FallThreshold:       0.2,
			GroundThreshold:     0.7,
			DetectionConfidence: 0.3,
			TrackingConfidence:  0.3,
			FPS:                 s.FPS,
			WindowSeconds:       s.WindowSeconds,
			MaxDimension:        s.MaxDimension,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = String("PORT", c.Server.Port)
	c.Server.CORSOrigins = List("CORS_ORIGINS", c.Server.CORSOrigins)
	c.Model.Path = String("FALL_MODEL_PATH", c.Model.Path)
	c.Log.Level = String("LOG_LEVEL", c.Log.Level)

	var errs []error
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"FALL_THRESHOLD", &c.Session.FallThreshold},
		{"GROUND_THRESHOLD", &c.Session.GroundThreshold},
		{"DETECTION_CONFIDENCE", &c.Session.DetectionConfidence},
		{"TRACKING_CONFIDENCE", &c.Session.TrackingConfidence},
	} {
		v, err := Float(f.key, *f.dst)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*f.dst = v
	}
	return errors.Join(errs...)
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if c.Server.BodyLimitMB <= 0 {
		return fmt.Errorf("server.body_limit_mb must be positive, got %d", c.Server.BodyLimitMB)
	}
	if c.Server.SessionIdle < 0 {
		return fmt.Errorf("server.session_idle must not be negative, got %s", c.Server.SessionIdle)
	}
	if c.Model.Path == "" {
		return errors.New("model.path is required")
	}
	if c.Model.InputSize <= 0 || c.Model.InputSize%32 != 0 {
		return fmt.Errorf("model.input_size must be a positive multiple of 32, got %d", c.Model.InputSize)
	}
	if c.Model.NMSThresh <= 0 || c.Model.NMSThresh > 1 {
		return fmt.Errorf("model.nms_threshold must be in (0,1], got %v", c.Model.NMSThresh)
	}
	return c.SessionConfig().Validate()
}

// SessionConfig converts the session section for the engine
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		FallThreshold:       c.Session.FallThreshold,
		GroundThreshold:     c.Session.GroundThreshold,
		DetectionConfidence: c.Session.DetectionConfidence,
		TrackingConfidence:  c.Session.TrackingConfidence,
		FPS:                 c.Session.FPS,
		WindowSeconds:       c.Session.WindowSeconds,
		MaxDimension:        c.Session.MaxDimension,
	}
}

// YOLOConfig converts the model section for the pose estimator
func (c *Config) YOLOConfig() pose.YOLOConfig {
	yolo := pose.DefaultYOLOConfig()
	yolo.ModelPath = c.Model.Path
	yolo.InputWidth = c.Model.InputSize
	yolo.InputHeight = c.Model.InputSize
	yolo.NMSThresh = float32(c.Model.NMSThresh)
	yolo.TrackIoU = c.Model.TrackingIoU
	return yolo
}

// SourceOpener returns an opener that loads the configured pose model
func (c *Config) SourceOpener() session.SourceOpener {
	yolo := c.YOLOConfig()
	return func(opts pose.Options) (pose.Source, error) {
		src, err := pose.NewYOLOPose(yolo, opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}
