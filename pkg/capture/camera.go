package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

var (
	// ErrReadFailed is returned when the device yields no frame,
	// including at the end of a video file.
	ErrReadFailed = errors.New("capture: failed to read frame")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("capture: camera closed")
)

// Camera is an open video source
type Camera struct {
	mu     sync.Mutex
	video  *gocv.VideoCapture
	name   string
	closed bool
}

// OpenDevice opens a webcam by index
func OpenDevice(id int, cfg Config) (*Camera, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("capture: invalid config: %v", errs)
	}

	video, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("capture: open device %d: %w", id, err)
	}
	if !video.IsOpened() {
		video.Close()
		return nil, fmt.Errorf("capture: device %d not available", id)
	}

	if cfg.Width > 0 {
		video.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		video.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.Framerate > 0 {
		video.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}
	// Keep latency low; stale buffered frames are useless for detection
	video.Set(gocv.VideoCaptureBufferSize, 1)

	return &Camera{video: video, name: fmt.Sprintf("device %d", id)}, nil
}

// OpenFile opens a video file or stream URL
func OpenFile(path string) (*Camera, error) {
	video, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", path, err)
	}
	if !video.IsOpened() {
		video.Close()
		return nil, fmt.Errorf("capture: %s not available", path)
	}
	return &Camera{video: video, name: path}, nil
}

// Read reads the next frame into dst
func (c *Camera) Read(dst *gocv.Mat) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if ok := c.video.Read(dst); !ok || dst.Empty() {
		return ErrReadFailed
	}
	return nil
}

// FPS reports the source frame rate, or 0 when unknown
func (c *Camera) FPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0
	}
	return c.video.Get(gocv.VideoCaptureFPS)
}

// String names the source
func (c *Camera) String() string {
	return c.name
}

// Close releases the device. It is safe to call more than once.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.video.Close()
}
