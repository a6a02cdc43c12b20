// Package pipeline implements the Pipeline Controller (C7): it
// orchestrates the camera, frame router, peer session, and signaling
// server across the PipelineState machine, and implements the
// WebRTC-to-fallback degradation (§4.7).
package pipeline

import "fmt"

// State is the PipelineState of §4.7.
type State int

const (
	Stopped State = iota
	Starting
	ServerUp
	PeerNegotiating
	StreamingWebRTC
	StreamingFallback
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Starting:
		return "Starting"
	case ServerUp:
		return "ServerUp"
	case PeerNegotiating:
		return "PeerNegotiating"
	case StreamingWebRTC:
		return "StreamingWebRTC"
	case StreamingFallback:
		return "StreamingFallback"
	case Stopping:
		return "Stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event names one of §4.7's PipelineState transition triggers.
type Event int

const (
	EventStart Event = iota
	EventCameraReady
	EventSinkWebSocketOpened
	EventPeerConnected
	EventPeerFailed
	EventICETimeout
	EventPeerInitFailed
	EventStop
	EventDrained
)

// next computes the §4.7 PipelineState transition table, mirroring
// peer.next's shape: a bool reports whether the event has a defined
// transition from the current state.
func next(from State, ev Event) (to State, ok bool) {
	switch ev {
	case EventStart:
		if from == Stopped {
			return Starting, true
		}
	case EventCameraReady:
		if from == Starting {
			return ServerUp, true
		}
	case EventSinkWebSocketOpened:
		if from == ServerUp {
			return PeerNegotiating, true
		}
	case EventPeerConnected:
		if from == PeerNegotiating {
			return StreamingWebRTC, true
		}
	case EventPeerFailed, EventICETimeout:
		if from == PeerNegotiating {
			return StreamingFallback, true
		}
	case EventPeerInitFailed:
		if from == ServerUp {
			return StreamingFallback, true
		}
	case EventStop:
		if from != Stopped {
			return Stopping, true
		}
	case EventDrained:
		if from == Stopping {
			return Stopped, true
		}
	}
	return from, false
}
