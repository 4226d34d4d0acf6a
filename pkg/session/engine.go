// Package session runs the per-frame fall detection pipeline.
//
// An Engine owns a landmark source and a window of recent annotated frames.
// Each call to Process resizes the frame, extracts landmarks, classifies the
// pose and returns an annotated copy. Pausing freezes the pipeline and hands
// the buffered history to an optional playback callback.
package session

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-falldetect/internal/log"
	"github.com/teslashibe/go-falldetect/pkg/annotate"
	"github.com/teslashibe/go-falldetect/pkg/buffer"
	"github.com/teslashibe/go-falldetect/pkg/fall"
	"github.com/teslashibe/go-falldetect/pkg/pose"
	"gocv.io/x/gocv"
)

// SourceOpener acquires the landmark source for an engine
type SourceOpener func(pose.Options) (pose.Source, error)

// PlaybackFunc receives the buffered frames when the engine pauses.
// The frames are released after it returns.
type PlaybackFunc func(frames []buffer.Frame)

// Detection describes what the landmark source found in a frame
type Detection int

const (
	DetectionBody Detection = iota
	DetectionNoBody
	DetectionSourceFailed
)

func (d Detection) String() string {
	switch d {
	case DetectionBody:
		return "body detected"
	case DetectionNoBody:
		return "no body detected"
	case DetectionSourceFailed:
		return "landmark source unavailable"
	default:
		return "unknown"
	}
}

// Outcome is the result of processing one frame
type Outcome struct {
	// Frame is the annotated frame, owned by the caller. Empty when the
	// engine is paused.
	Frame     gocv.Mat
	Fallen    bool
	Processed bool
	Timestamp float64
	// FrameCount is the session frame index, starting at 1
	FrameCount int
	Result     fall.Result
	Detection  Detection
}

// Close releases the annotated frame
func (o *Outcome) Close() error {
	return o.Frame.Close()
}

// Stats summarizes a session
type Stats struct {
	FrameCount     int     `json:"frame_count"`
	Falls          int     `json:"falls"`
	SourceFailures int     `json:"source_failures"`
	Buffered       int     `json:"buffered"`
	Capacity       int     `json:"capacity"`
	Paused         bool    `json:"paused"`
	Elapsed        float64 `json:"elapsed"`
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPlayback registers a callback that replays the window on pause
func WithPlayback(fn PlaybackFunc) Option {
	return func(e *Engine) {
		e.playback = fn
	}
}

// Engine is a single detection session. It is safe for concurrent use;
// calls are serialized.
type Engine struct {
	cfg      Config
	source   pose.Source
	window   *buffer.Window
	logger   *slog.Logger
	playback PlaybackFunc

	mu             sync.Mutex
	paused         bool
	closed         bool
	frameCount     int
	falls          int
	sourceFailures int

	closeOnce sync.Once
	closeErr  error
}

// New validates cfg and opens the landmark source once
func New(cfg Config, open SourceOpener, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if open == nil {
		return nil, fmt.Errorf("%w: no source opener", ErrSourceUnavailable)
	}

	e := &Engine{
		cfg:    cfg,
		window: buffer.New(cfg.Capacity()),
		logger: log.Component("session"),
	}
	for _, opt := range opts {
		opt(e)
	}

	src, err := open(cfg.SourceOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: opener returned no source", ErrSourceUnavailable)
	}
	e.source = src

	e.logger.Debug("session started",
		"fps", cfg.FPS,
		"window", cfg.Capacity(),
		"fall_threshold", cfg.FallThreshold,
		"ground_threshold", cfg.GroundThreshold)

	return e, nil
}

// Process runs one BGR frame through the pipeline. The input is not
// modified. While paused nothing happens and Outcome.Processed is false.
func (e *Engine) Process(frame gocv.Mat) (Outcome, error) {
	if frame.Empty() {
		return Outcome{}, ErrInvalidFrame
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Outcome{}, ErrSourceUnavailable
	}
	if e.paused {
		return Outcome{Frame: gocv.NewMat()}, nil
	}

	work := frame
	if resized, ok := e.fit(frame); ok {
		defer resized.Close()
		work = resized
	}

	e.frameCount++
	ts := float64(e.frameCount) / e.cfg.FPS

	detection := DetectionBody
	lms, err := e.detect(work)
	if err != nil {
		e.sourceFailures++
		e.logger.Warn("landmark extraction failed", "frame", e.frameCount, "error", err)
		detection = DetectionSourceFailed
		lms = nil
	} else if lms.Empty() {
		detection = DetectionNoBody
	}

	var res fall.Result
	if detection == DetectionBody {
		res = fall.Classify(lms, e.cfg.Thresholds())
	}

	annotated := annotate.Annotate(work, lms, res, ts)
	e.window.Push(buffer.Frame{Image: annotated.Clone(), Timestamp: ts})

	if res.Fallen {
		e.falls++
		e.logger.Info("fall detected",
			"timestamp", annotate.FormatElapsed(ts),
			"frame", e.frameCount,
			"collapse", res.Collapse,
			"inverted", res.Inverted,
			"tilted", res.Tilted)
	}

	return Outcome{
		Frame:      annotated,
		Fallen:     res.Fallen,
		Processed:  true,
		Timestamp:  ts,
		FrameCount: e.frameCount,
		Result:     res,
		Detection:  detection,
	}, nil
}

// ProcessJPEG decodes an encoded image and processes it
func (e *Engine) ProcessJPEG(data []byte) (Outcome, error) {
	if len(data) == 0 {
		return Outcome{}, ErrInvalidFrame
	}
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	defer img.Close()

	return e.Process(img)
}

// fit downscales frames whose larger side exceeds MaxDimension
func (e *Engine) fit(frame gocv.Mat) (gocv.Mat, bool) {
	w, h := frame.Cols(), frame.Rows()
	longest := max(w, h)
	if longest <= e.cfg.MaxDimension {
		return gocv.Mat{}, false
	}

	scale := float64(e.cfg.MaxDimension) / float64(longest)
	size := image.Pt(
		max(1, int(float64(w)*scale+0.5)),
		max(1, int(float64(h)*scale+0.5)),
	)

	dst := gocv.NewMat()
	gocv.Resize(frame, &dst, size, 0, 0, gocv.InterpolationLinear)
	return dst, true
}

func (e *Engine) detect(bgr gocv.Mat) (pose.LandmarkSet, error) {
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(bgr, &rgb, gocv.ColorBGRToRGB)

	return e.source.Detect(rgb)
}

// TogglePause flips between active and paused and returns the new state.
// Entering pause replays the window through the playback callback.
func (e *Engine) TogglePause() bool {
	e.mu.Lock()
	e.paused = !e.paused
	paused := e.paused

	var snapshot []buffer.Frame
	if paused && e.playback != nil && !e.closed {
		snapshot = e.window.Snapshot()
	}
	e.mu.Unlock()

	e.logger.Debug("pause toggled", "paused", paused, "buffered", len(snapshot))

	if snapshot != nil {
		defer buffer.CloseAll(snapshot)
		e.playback(snapshot)
	}
	return paused
}

// Frames returns copies of the buffered frames, oldest first.
// Release them with buffer.CloseAll.
func (e *Engine) Frames() []buffer.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.Snapshot()
}

// Paused reports whether the engine is paused
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// FrameCount returns the number of frames processed so far
func (e *Engine) FrameCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frameCount
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		FrameCount:     e.frameCount,
		Falls:          e.falls,
		SourceFailures: e.sourceFailures,
		Buffered:       e.window.Len(),
		Capacity:       e.window.Cap(),
		Paused:         e.paused,
		Elapsed:        float64(e.frameCount) / e.cfg.FPS,
	}
}

// Close releases the landmark source and the buffered frames. Only the first
// call does any work; later calls return the same result.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		e.closed = true
		e.window.Clear()
		if err := e.source.Close(); err != nil {
			e.closeErr = &TeardownError{Err: err}
			e.logger.Error("failed to release landmark source", "error", err)
			return
		}
		e.logger.Debug("session closed", "frames", e.frameCount, "falls", e.falls)
	})
	return e.closeErr
}
