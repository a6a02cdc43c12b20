// Package signaling implements the Signaling & Fallback Server (C6):
// an HTTP server multiplexing the sink page, the WebRTC SDP/ICE relay,
// the WebSocket signaling-and-JPEG-fallback channel, and an SSE JPEG
// fallback for sinks without WebSocket binary support (§4.6).
package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// MessageType discriminates the JSON text frames exchanged on /stream
// (§4.6, §6).
type MessageType string

const (
	TypeSDP          MessageType = "SDP"
	TypeICE          MessageType = "ICE"
	TypeTimestamp    MessageType = "TIMESTAMP"
	TypeVideoURL     MessageType = "VIDEO_URL"
	TypeVideoControl MessageType = "VIDEO_CONTROL"
)

// PeekType extracts the "type" field from a raw WebSocket text frame
// without fully unmarshaling it, so the dispatcher can pick the right
// concrete struct before paying for a full decode.
func PeekType(raw []byte) MessageType {
	return MessageType(gjson.GetBytes(raw, "type").String())
}

// SDPMessage carries an SDP offer or answer (§6). FrontCamera is set on
// the offer only, once, at session start (§4's front-lens mirroring
// note): the sink applies its own horizontal mirror transform for
// front-lens video since that transform is never applied on the source
// side.
type SDPMessage struct {
	Type        MessageType `json:"type"`
	SDPType     string      `json:"sdpType"`
	SDP         string      `json:"sdp"`
	FrontCamera bool        `json:"frontCamera"`
}

// ICEMessage carries one ICE candidate (§6).
type ICEMessage struct {
	Type          MessageType `json:"type"`
	SDPMid        string      `json:"sdpMid"`
	SDPMLineIndex int         `json:"sdpMLineIndex"`
	Candidate     string      `json:"candidate"`
}

// TimestampMessage is sent immediately before each binary JPEG frame so
// the sink can compute one-way latency (§4.6).
type TimestampMessage struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
}

// VideoURLMessage tells the sink which YouTube video to mirror.
type VideoURLMessage struct {
	Type        MessageType `json:"type"`
	VideoID     string      `json:"videoId"`
	CurrentTime float64     `json:"currentTime,omitempty"`
}

// VideoControlMessage carries a playback command for the sink's video
// element.
type VideoControlMessage struct {
	Type    MessageType `json:"type"`
	Command string      `json:"command"`
	Value   float64     `json:"value,omitempty"`
}

// NewTimestampMessage builds the per-frame latency marker (§4.6, step 1
// of the broadcast algorithm).
func NewTimestampMessage(epochMillis int64) TimestampMessage {
	return TimestampMessage{Type: TypeTimestamp, Timestamp: epochMillis}
}

// Encode marshals v to JSON, wrapping any error with a "signaling:
// encode message" prefix.
func Encode(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("signaling: encode message: %w", err)
	}
	return b, nil
}
