package capture

import (
	"errors"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

func TestConfig_Validate(t *testing.T) {
	def := DefaultConfig()
	if errs := def.Validate(); len(errs) != 0 {
		t.Fatalf("DefaultConfig invalid: %v", errs)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"tiny width", func(c *Config) { c.Width = 10 }},
		{"huge height", func(c *Config) { c.Height = 5000 }},
		{"negative fps", func(c *Config) { c.Framerate = -1 }},
		{"zero quality", func(c *Config) { c.Quality = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if errs := cfg.Validate(); len(errs) == 0 {
				t.Error("expected validation errors")
			}
		})
	}

	auto := Config{Quality: 90}
	if errs := auto.Validate(); len(errs) != 0 {
		t.Errorf("zero size should mean device default: %v", errs)
	}
}

func TestOpenFile_Missing(t *testing.T) {
	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing.mp4")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestCamera_ClosedRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.avi")

	w, err := gocv.VideoWriterFile(path, "MJPG", 10, 64, 48, true)
	if err != nil {
		t.Skipf("video writer unavailable: %v", err)
	}
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 48, 64, gocv.MatTypeCV8UC3)
	defer img.Close()
	for i := 0; i < 3; i++ {
		_ = w.Write(img)
	}
	w.Close()

	cam, err := OpenFile(path)
	if err != nil {
		t.Skipf("video backend unavailable: %v", err)
	}

	frame := gocv.NewMat()
	defer frame.Close()

	read := 0
	for cam.Read(&frame) == nil {
		read++
	}
	if read == 0 {
		t.Error("expected at least one frame")
	}
	if err := cam.Read(&frame); !errors.Is(err, ErrReadFailed) {
		t.Errorf("Read at end = %v, want ErrReadFailed", err)
	}

	if err := cam.Close(); err != nil {
		t.Fatal(err)
	}
	if err := cam.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if err := cam.Read(&frame); !errors.Is(err, ErrClosed) {
		t.Errorf("Read after Close = %v, want ErrClosed", err)
	}
	if cam.FPS() != 0 {
		t.Error("FPS after Close should be 0")
	}
}
