// Package hub fans out fall events to websocket subscribers
// using the channel-based register/unregister/broadcast pattern.
package hub

import "time"

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded message
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data (e.g., JPEG frames)
	BinaryMessage
)

// Message represents a message to be broadcast to clients
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a binary message
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// EventFall is the type tag of a FallEvent
const EventFall = "fall"

// FallEvent is published whenever a session classifies a frame as a fall
type FallEvent struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id"`
	Timestamp  float64   `json:"timestamp"` // session time in seconds
	Elapsed    string    `json:"elapsed"`   // MM:SS.CC
	FrameCount int       `json:"frame_count"`
	Collapse   bool      `json:"collapse"`
	Inverted   bool      `json:"inverted"`
	Tilted     bool      `json:"tilted"`
	SpineAngle float64   `json:"spine_angle"`
	At         time.Time `json:"at"`
}
