// fallclient: stream a local webcam to a remote falld server
//
// With -preview, p in the window pauses the session, replays the
// server's buffered frames and resumes.
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

	"github.com/teslashibe/go-falldetect/internal/log"
	"github.com/teslashibe/go-falldetect/pkg/capture"
	"github.com/teslashibe/go-falldetect/pkg/client"
	"gocv.io/x/gocv"
)

var (
	server   = flag.String("server", "http://localhost:5000", "falld base URL")
	device   = flag.Int("device", 0, "Webcam index")
	interval = flag.Duration("interval", 100*time.Millisecond, "Time between uploads")
	quality  = flag.Int("quality", 80, "JPEG quality")
	own      = flag.Bool("session", false, "Use a private server session instead of the default")
	preview  = flag.Bool("preview", false, "Show annotated frames returned by the server")
	level    = flag.String("log", "info", "Log level")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fallclient: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	log.Init(*level)
	logger := log.Component("fallclient")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.New(*server)
	h, err := api.Health(ctx)
	if err != nil {
		return fmt.Errorf("server not reachable: %w", err)
	}
	logger.Info("connected", "server", *server, "status", h.Status)

	if *own {
		id, err := api.CreateSession(ctx)
		if err != nil {
			return err
		}
		api = client.New(*server, client.WithSession(id))
		defer func() {
			if err := api.CloseSession(context.Background(), id); err != nil {
				logger.Warn("failed to close session", "session", id, "error", err)
			}
		}()
		logger.Info("session created", "session", id)
	}

	events, err := api.Events(ctx)
	if err != nil {
		logger.Warn("event stream unavailable", "error", err)
	} else {
		go func() {
			for ev := range events {
				logger.Info("fall event", "session", ev.SessionID, "at", ev.Elapsed, "frame", ev.FrameCount)
			}
		}()
	}

	capCfg := capture.DefaultConfig()
	capCfg.Quality = *quality
	cam, err := capture.OpenDevice(*device, capCfg)
	if err != nil {
		return err
	}
	defer cam.Close()

	var window *gocv.Window
	if *preview {
		window = gocv.NewWindow("Fall Detection (remote)")
		defer window.Close()
	}

	return upload(ctx, api, cam, window, capCfg.Quality)
}

func upload(ctx context.Context, api *client.Client, cam *capture.Camera, window *gocv.Window, quality int) error {
	logger := log.Component("fallclient")

	frame := gocv.NewMat()
	defer frame.Close()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := cam.Read(&frame); err != nil {
			return err
		}

		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame, []int{int(gocv.IMWriteJpegQuality), quality})
		if err != nil {
			return err
		}
		jpeg := append([]byte(nil), buf.GetBytes()...)
		buf.Close()

		d, err := api.DetectFall(ctx, jpeg)
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
				logger.Warn("frame rejected", "status", apiErr.StatusCode, "error", apiErr.Message)
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if d.FallDetected {
			logger.Info("fall detected", "timestamp", d.Timestamp)
		}
		if window != nil && d.Annotated != nil {
			show(window, d.Annotated)
			switch window.WaitKey(1) {
			case 'q', 27:
				return nil
			case 'p':
				if err := pauseAndReplay(ctx, api, window); err != nil {
					logger.Warn("replay failed", "error", err)
				}
			}
		}
	}
}

// pauseAndReplay pauses the server session, plays back its buffered frames
// and resumes
func pauseAndReplay(ctx context.Context, api *client.Client, window *gocv.Window) error {
	paused, err := api.TogglePause(ctx)
	if err != nil {
		return err
	}
	if !paused {
		return nil
	}

	frames, err := api.PreviousFrames(ctx)
	if err != nil {
		return err
	}
	for i, f := range frames {
		show(window, f.JPEG)
		wait := 33
		if i+1 < len(frames) {
			wait = max(1, int((frames[i+1].Timestamp-f.Timestamp)*1000))
		}
		window.WaitKey(wait)
	}

	_, err = api.TogglePause(ctx)
	return err
}

func show(window *gocv.Window, jpeg []byte) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return
	}
	defer img.Close()
	if !img.Empty() {
		window.IMShow(img)
	}
}
