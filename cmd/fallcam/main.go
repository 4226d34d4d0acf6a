// fallcam: run fall detection on a local webcam or video file
//
// Keys in the preview window: p pauses and replays the last seconds,
// q or Esc quits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-falldetect/internal/config"
	"github.com/teslashibe/go-falldetect/internal/log"
	"github.com/teslashibe/go-falldetect/pkg/annotate"
	"github.com/teslashibe/go-falldetect/pkg/buffer"
	"github.com/teslashibe/go-falldetect/pkg/capture"
	"github.com/teslashibe/go-falldetect/pkg/session"
	"gocv.io/x/gocv"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	device     = flag.Int("device", 0, "Webcam index")
	file       = flag.String("file", "", "Video file or stream URL instead of a webcam")
	modelPath  = flag.String("model", "", "YOLOv8-pose ONNX model (overrides config)")
	preview    = flag.Bool("preview", true, "Show the annotated preview window")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fallcam: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	log.Init(cfg.Log.Level)
	logger := log.Component("fallcam")

	var cam *capture.Camera
	if *file != "" {
		cam, err = capture.OpenFile(*file)
	} else {
		cam, err = capture.OpenDevice(*device, capture.DefaultConfig())
	}
	if err != nil {
		return err
	}
	defer cam.Close()

	sessCfg := cfg.SessionConfig()
	if fps := cam.FPS(); fps > 0 {
		sessCfg.FPS = fps
	}

	var window *gocv.Window
	opts := []session.Option{session.WithLogger(log.Component("session"))}
	if *preview {
		window = gocv.NewWindow("Fall Detection")
		defer window.Close()
		opts = append(opts, session.WithPlayback(replay(window, sessCfg.FPS)))
	}

	engine, err := session.New(sessCfg, cfg.SourceOpener(), opts...)
	if err != nil {
		return err
	}

	logger.Info("capturing", "source", cam.String(), "fps", sessCfg.FPS, "window_frames", sessCfg.Capacity())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loopErr := loop(ctx, cam, engine, window)
	closeErr := engine.Close()

	stats := engine.Stats()
	logger.Info("finished", "frames", stats.FrameCount, "falls", stats.Falls, "elapsed", annotate.FormatElapsed(stats.Elapsed))

	return errors.Join(loopErr, closeErr)
}

func loop(ctx context.Context, cam *capture.Camera, engine *session.Engine, window *gocv.Window) error {
	frame := gocv.NewMat()
	defer frame.Close()

	for ctx.Err() == nil {
		if err := cam.Read(&frame); err != nil {
			if errors.Is(err, capture.ErrReadFailed) && *file != "" {
				return nil // end of file
			}
			return err
		}

		out, err := engine.Process(frame)
		if err != nil {
			return err
		}
		if window != nil && out.Processed {
			window.IMShow(out.Frame)
		}
		_ = out.Close()

		if window == nil {
			continue
		}
		switch key := window.WaitKey(1); key {
		case 'q', 27:
			return nil
		case 'p':
			engine.TogglePause()
		}
	}
	return nil
}

// replay shows the buffered frames at capture speed when the engine pauses
func replay(window *gocv.Window, fps float64) session.PlaybackFunc {
	delay := time.Duration(float64(time.Second) / fps)
	return func(frames []buffer.Frame) {
		for _, f := range frames {
			window.IMShow(f.Image)
			if window.WaitKey(int(delay/time.Millisecond)) == 'q' {
				return
			}
		}
	}
}
