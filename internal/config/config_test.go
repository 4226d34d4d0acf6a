package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "falld.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() invalid: %v", err)
	}

	s := cfg.SessionConfig()
	if s.FallThreshold != 0.2 || s.GroundThreshold != 0.7 {
		t.Errorf("thresholds = %v/%v, want 0.2/0.7", s.FallThreshold, s.GroundThreshold)
	}
	if s.DetectionConfidence != 0.3 || s.TrackingConfidence != 0.3 {
		t.Errorf("confidences = %v/%v, want 0.3/0.3", s.DetectionConfidence, s.TrackingConfidence)
	}
	if s.Capacity() != 150 {
		t.Errorf("Capacity() = %d, want 150", s.Capacity())
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Server.Port != "5000" {
		t.Errorf("Port = %q, want 5000", cfg.Server.Port)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, `
server:
  port: "8080"
  cors_origins: ["https://care.example.com"]
  session_idle: 30s
model:
  path: /opt/models/pose.onnx
session:
  fall_threshold: 0.35
  window_seconds: 2
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "https://care.example.com" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Server.SessionIdle != 30*time.Second {
		t.Errorf("SessionIdle = %v", cfg.Server.SessionIdle)
	}
	if cfg.Model.Path != "/opt/models/pose.onnx" {
		t.Errorf("Model.Path = %q", cfg.Model.Path)
	}
	if cfg.Session.FallThreshold != 0.35 {
		t.Errorf("FallThreshold = %v", cfg.Session.FallThreshold)
	}
	// untouched keys keep their defaults
	if cfg.Session.GroundThreshold != 0.7 || cfg.Session.FPS != 30 {
		t.Errorf("defaults lost: %+v", cfg.Session)
	}
	if cfg.SessionConfig().Capacity() != 60 {
		t.Errorf("Capacity() = %d, want 60", cfg.SessionConfig().Capacity())
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "server:\n  port: \"8080\"\nsession:\n  fall_threshold: 0.35\n")

	t.Setenv("PORT", "9090")
	t.Setenv("FALL_THRESHOLD", "0.4")
	t.Setenv("GROUND_THRESHOLD", "0.75")
	t.Setenv("DETECTION_CONFIDENCE", "0.6")
	t.Setenv("TRACKING_CONFIDENCE", "0.55")
	t.Setenv("FALL_MODEL_PATH", "/models/alt.onnx")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"port", cfg.Server.Port, "9090"},
		{"fall", ftoa(cfg.Session.FallThreshold), "0.4"},
		{"ground", ftoa(cfg.Session.GroundThreshold), "0.75"},
		{"detection", ftoa(cfg.Session.DetectionConfidence), "0.6"},
		{"tracking", ftoa(cfg.Session.TrackingConfidence), "0.55"},
		{"model", cfg.Model.Path, "/models/alt.onnx"},
		{"log", cfg.Log.Level, "warn"},
		{"cors", cfg.Server.CORSOrigins[0] + "|" + cfg.Server.CORSOrigins[1], "http://a.test|http://b.test"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %q, want %q", tc.got, tc.want)
			}
		})
	}
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("FALL_THRESHOLD", "lots")

	_, err := Load("")
	var envErr *EnvError
	if !errors.As(err, &envErr) {
		t.Fatalf("Load() error = %v, want *EnvError", err)
	}
	if envErr.Key != "FALL_THRESHOLD" {
		t.Errorf("Key = %q", envErr.Key)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed yaml", "server: [unclosed"},
		{"zero fps", "session:\n  fps: 0\n"},
		{"confidence above one", "session:\n  detection_confidence: 2\n"},
		{"odd input size", "model:\n  input_size: 100\n"},
		{"empty port", "server:\n  port: \"\"\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, tc.body)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestYOLOConfig(t *testing.T) {
	cfg := Default()
	cfg.Model.Path = "/m.onnx"
	cfg.Model.InputSize = 320

	y := cfg.YOLOConfig()
	if y.ModelPath != "/m.onnx" || y.InputWidth != 320 || y.InputHeight != 320 {
		t.Errorf("YOLOConfig() = %+v", y)
	}
}

func TestList(t *testing.T) {
	t.Setenv("TEST_LIST", " a ,, b ")
	got := List("TEST_LIST", nil)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("List() = %q", got)
	}
	if got := List("TEST_LIST_UNSET", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Errorf("List() default = %q", got)
	}
}
