// falld: fall detection service
// Accepts webcam frames over HTTP and streams fall events over websockets
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-falldetect/internal/config"
	"github.com/teslashibe/go-falldetect/internal/log"
	"github.com/teslashibe/go-falldetect/pkg/session"
	"github.com/teslashibe/go-falldetect/pkg/web"
)

var (
	version    = "1.0.0"
	configPath = flag.String("config", "", "YAML config file")
	port       = flag.String("port", "", "HTTP server port (overrides config)")
	modelPath  = flag.String("model", "", "YOLOv8-pose ONNX model (overrides config)")
	debug      = flag.Bool("debug", false, "Enable debug logging and request logs")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "falld: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}
	if *debug {
		cfg.Log.Level = "debug"
		cfg.Server.RequestLogging = true
	}

	log.Init(cfg.Log.Level)
	logger := log.Component("falld")

	fmt.Println()
	fmt.Println("🩺 falld v" + version)
	fmt.Println("   Fall detection service")
	fmt.Println()

	sessCfg := cfg.SessionConfig()
	open := cfg.SourceOpener()
	factory := func() (*session.Engine, error) {
		return session.New(sessCfg, open, session.WithLogger(log.Component("session")))
	}

	srv := web.NewServer(web.Options{
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestLogging: cfg.Server.RequestLogging,
		BodyLimit:      cfg.Server.BodyLimitMB * 1024 * 1024,
		SessionIdle:    cfg.Server.SessionIdle,
		Logger:         log.Component("web"),
	}, factory)

	// Load the model up front so a bad path fails at startup
	if _, err := srv.Sessions().Get(web.DefaultSessionID); err != nil {
		return fmt.Errorf("open default session: %w", err)
	}

	logger.Info("starting",
		"port", cfg.Server.Port,
		"model", cfg.Model.Path,
		"fall_threshold", sessCfg.FallThreshold,
		"ground_threshold", sessCfg.GroundThreshold,
		"window_frames", sessCfg.Capacity())
	logger.Info("endpoints",
		"detect", fmt.Sprintf("http://localhost:%s/api/detect_fall", cfg.Server.Port),
		"events", fmt.Sprintf("ws://localhost:%s/ws/events", cfg.Server.Port),
		"health", fmt.Sprintf("http://localhost:%s/health", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = srv.Run(ctx, ":"+cfg.Server.Port)
	logger.Info("shut down")
	return err
}
