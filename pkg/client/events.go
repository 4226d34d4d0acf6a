package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-falldetect/pkg/hub"
)

// Events subscribes to the server's fall event stream. The channel is
// closed when ctx is cancelled or the connection drops.
func (c *Client) Events(ctx context.Context) (<-chan hub.FallEvent, error) {
	url := c.wsURL("/ws/events")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}

	out := make(chan hub.FallEvent, 16)

	// Unblock ReadMessage on cancel
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})

	go func() {
		defer close(out)
		defer stop()
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev hub.FallEvent
			if err := json.Unmarshal(data, &ev); err != nil || ev.Type != hub.EventFall {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// wsURL maps the http(s) base URL onto ws(s)
func (c *Client) wsURL(path string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + path
}
