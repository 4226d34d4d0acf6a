// Package buffer keeps a bounded, time-ordered history of annotated frames.
package buffer

import "gocv.io/x/gocv"

// Frame is an annotated frame and the session time it was taken at.
// A Frame is not modified after it is created.
type Frame struct {
	Image     gocv.Mat
	Timestamp float64 // seconds since session start
}

// Close releases the frame's image
func (f Frame) Close() error {
	return f.Image.Close()
}

// CloseAll releases every frame in a snapshot
func CloseAll(frames []Frame) {
	for _, f := range frames {
		_ = f.Close()
	}
}

// Window is a fixed-capacity FIFO of frames. The oldest frame is evicted,
// and its image released, when a new one arrives at capacity.
//
// Window is not safe for concurrent use.
type Window struct {
	frames []Frame
	cap    int
}

// New creates a window holding at most capacity frames (minimum 1)
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		frames: make([]Frame, 0, capacity),
		cap:    capacity,
	}
}

// Push appends a frame and takes ownership of its image
func (w *Window) Push(f Frame) {
	if len(w.frames) == w.cap {
		_ = w.frames[0].Close()
		w.frames[0] = Frame{}
		w.frames = append(w.frames[:0], w.frames[1:]...)
	}
	w.frames = append(w.frames, f)
}

// Len returns the number of buffered frames
func (w *Window) Len() int {
	return len(w.frames)
}

// Cap returns the window capacity
func (w *Window) Cap() int {
	return w.cap
}

// Snapshot returns copies of the buffered frames, oldest first.
// The caller owns the copies and must release them with CloseAll.
func (w *Window) Snapshot() []Frame {
	out := make([]Frame, len(w.frames))
	for i, f := range w.frames {
		out[i] = Frame{Image: f.Image.Clone(), Timestamp: f.Timestamp}
	}
	return out
}

// Timestamps returns the buffered timestamps, oldest first
func (w *Window) Timestamps() []float64 {
	out := make([]float64, len(w.frames))
	for i, f := range w.frames {
		out[i] = f.Timestamp
	}
	return out
}

// Clear releases all buffered frames
func (w *Window) Clear() {
	CloseAll(w.frames)
	clear(w.frames)
	w.frames = w.frames[:0]
}

// Close releases all buffered frames. The window stays usable.
func (w *Window) Close() error {
	w.Clear()
	return nil
}
