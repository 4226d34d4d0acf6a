// Package client talks to a remote fall detection server.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/teslashibe/go-falldetect/internal/httpc"
	"github.com/teslashibe/go-falldetect/pkg/web"
)

// APIError is returned for non-2xx responses
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: API error %d: %s", e.StatusCode, e.Message)
}

// Detection is the server's verdict on one frame
type Detection struct {
	FallDetected bool
	Paused       bool
	BodyDetected bool
	Timestamp    float64
	// Annotated is the JPEG returned by the server. Nil while paused.
	Annotated []byte
}

// Frame is one buffered frame from the server
type Frame struct {
	JPEG      []byte
	Timestamp float64
}

// Health is the server health report
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the shared HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithSession sends every request to the given session
func WithSession(id string) Option {
	return func(c *Client) {
		c.session = id
	}
}

// Client is a fall detection API client
type Client struct {
	baseURL string
	http    *http.Client
	session string
}

// New creates a client for the server at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpc.Client,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the session ID requests are sent to, empty for the default
func (c *Client) Session() string {
	return c.session
}

// DetectFall uploads a JPEG frame for classification
func (c *Client) DetectFall(ctx context.Context, jpeg []byte) (*Detection, error) {
	req := web.DetectRequest{
		Frame: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg),
	}

	var resp web.DetectResponse
	if err := c.do(ctx, http.MethodPost, "/api/detect_fall", req, &resp); err != nil {
		return nil, err
	}

	d := &Detection{
		FallDetected: resp.FallDetected,
		Paused:       resp.Paused,
		BodyDetected: resp.BodyDetected,
		Timestamp:    resp.Timestamp,
	}
	if resp.AnnotatedFrame != "" {
		img, err := decodeDataURL(resp.AnnotatedFrame)
		if err != nil {
			return nil, err
		}
		d.Annotated = img
	}
	return d, nil
}

// TogglePause flips the session's pause state and returns the new state
func (c *Client) TogglePause(ctx context.Context) (bool, error) {
	var resp struct {
		Paused bool `json:"paused"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/toggle_pause", nil, &resp); err != nil {
		return false, err
	}
	return resp.Paused, nil
}

// PreviousFrames downloads the session's buffered frames, oldest first
func (c *Client) PreviousFrames(ctx context.Context) ([]Frame, error) {
	var resp struct {
		Frames []web.FrameEntry `json:"frames"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/get_previous_frames", nil, &resp); err != nil {
		return nil, err
	}

	frames := make([]Frame, 0, len(resp.Frames))
	for _, f := range resp.Frames {
		img, err := decodeDataURL(f.Frame)
		if err != nil {
			return nil, err
		}
		frames = append(frames, Frame{JPEG: img, Timestamp: f.Timestamp})
	}
	return frames, nil
}

// Health checks that the server is up
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// CreateSession opens a new server session and returns its ID
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sessions", nil, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CloseSession closes a server session
func (c *Client) CloseSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+id, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := httpc.NewJSONRequest(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if c.session != "" {
		req.Header.Set(web.SessionHeader, c.session)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s response: %w", path, err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

func decodeDataURL(s string) ([]byte, error) {
	_, payload, ok := strings.Cut(s, ",")
	if !ok {
		payload = s
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("client: decode frame: %w", err)
	}
	return data, nil
}
