package web

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-falldetect/pkg/annotate"
	"github.com/teslashibe/go-falldetect/pkg/buffer"
	"github.com/teslashibe/go-falldetect/pkg/hub"
	"github.com/teslashibe/go-falldetect/pkg/session"
)

// DetectRequest is the body of POST /api/detect_fall
type DetectRequest struct {
	Frame string `json:"frame"`
}

// DetectResponse is returned for a processed frame
type DetectResponse struct {
	FallDetected   bool    `json:"fall_detected"`
	AnnotatedFrame string  `json:"annotated_frame"`
	Paused         bool    `json:"paused"`
	Timestamp      float64 `json:"timestamp"`
	BodyDetected   bool    `json:"body_detected"`
}

// FrameEntry is one buffered frame in GET /api/get_previous_frames
type FrameEntry struct {
	Frame     string  `json:"frame"`
	Timestamp float64 `json:"timestamp"`
}

// handleError renders every error as {"error": message}
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "status", code, "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}

// engine resolves the caller's session
func (s *Server) engine(c *fiber.Ctx) (*session.Engine, error) {
	e, err := s.sessions.Get(c.Get(SessionHeader))
	switch {
	case err == nil:
		return e, nil
	case errors.Is(err, ErrUnknownSession):
		return nil, fiber.NewError(fiber.StatusNotFound, "Unknown session")
	default:
		s.logger.Error("failed to open session", "error", err)
		return nil, fiber.NewError(fiber.StatusServiceUnavailable, "Landmark source unavailable")
	}
}

func (s *Server) handleHello(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "Hello from backend!"})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	id, _, err := s.sessions.Create()
	if err != nil {
		s.logger.Error("failed to create session", "error", err)
		return fiber.NewError(fiber.StatusServiceUnavailable, "Landmark source unavailable")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	err := s.sessions.Remove(c.Params("id"))
	switch {
	case err == nil:
		return c.SendStatus(fiber.StatusNoContent)
	case errors.Is(err, ErrUnknownSession):
		return fiber.NewError(fiber.StatusNotFound, "Unknown session")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleSessionStats(c *fiber.Ctx) error {
	e, err := s.engine(c)
	if err != nil {
		return err
	}
	return c.JSON(e.Stats())
}

// handleDetectFall processes one frame posted as a JPEG data URL
func (s *Server) handleDetectFall(c *fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "No data received")
	}
	var req DetectRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "No data received")
	}
	if req.Frame == "" {
		return fiber.NewError(fiber.StatusBadRequest, "No frame data")
	}

	data, err := decodeDataURL(req.Frame)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid frame data")
	}

	e, err := s.engine(c)
	if err != nil {
		return err
	}

	out, err := e.ProcessJPEG(data)
	switch {
	case errors.Is(err, session.ErrInvalidFrame):
		return fiber.NewError(fiber.StatusBadRequest, "Invalid frame data")
	case errors.Is(err, session.ErrSourceUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, "Landmark source unavailable")
	case err != nil:
		return err
	}
	defer out.Close()

	if !out.Processed {
		return c.JSON(fiber.Map{"paused": true})
	}

	if out.Fallen {
		s.publishFall(c.Get(SessionHeader), out)
	}

	annotated, err := encodeJPEGDataURL(out.Frame)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Processing failed")
	}

	return c.JSON(DetectResponse{
		FallDetected:   out.Fallen,
		AnnotatedFrame: annotated,
		Paused:         e.Paused(),
		Timestamp:      out.Timestamp,
		BodyDetected:   out.Detection == session.DetectionBody,
	})
}

func (s *Server) publishFall(id string, out session.Outcome) {
	if id == "" {
		id = DefaultSessionID
	}
	err := s.events.PublishFall(hub.FallEvent{
		SessionID:  id,
		Timestamp:  out.Timestamp,
		Elapsed:    annotate.FormatElapsed(out.Timestamp),
		FrameCount: out.FrameCount,
		Collapse:   out.Result.Collapse,
		Inverted:   out.Result.Inverted,
		Tilted:     out.Result.Tilted,
		SpineAngle: out.Result.SpineAngle,
		At:         time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to publish fall event", "error", err)
	}
}

func (s *Server) handleTogglePause(c *fiber.Ctx) error {
	e, err := s.engine(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"paused": e.TogglePause()})
}

func (s *Server) handlePreviousFrames(c *fiber.Ctx) error {
	e, err := s.engine(c)
	if err != nil {
		return err
	}

	frames := e.Frames()
	defer buffer.CloseAll(frames)

	entries := make([]FrameEntry, 0, len(frames))
	for _, f := range frames {
		url, err := encodeJPEGDataURL(f.Image)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Encoding failed")
		}
		entries = append(entries, FrameEntry{Frame: url, Timestamp: f.Timestamp})
	}
	return c.JSON(fiber.Map{"frames": entries})
}
