package peer

import "fmt"

// State is the PeerState of §4.5.
type State int

const (
	Idle State = iota
	Offering
	AwaitingAnswer
	Connected
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Offering:
		return "Offering"
	case AwaitingAnswer:
		return "AwaitingAnswer"
	case Connected:
		return "Connected"
	case Failed:
		return "Failed"
	case Closed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event names one of §4.5's PeerState transition triggers.
type Event int

const (
	EventCreateOffer Event = iota
	EventOfferCreated
	EventAnswerReceived
	EventICECandidateLocal
	EventICECandidateRemote
	EventConnectionEstablished
	EventConnectionFailed
	EventClose
)

// next computes the §4.5 PeerState transition table. ok is false for
// an event that has no defined transition from the current state (the
// table only names specific From rows; anything else is a caller
// error, not a state change).
func next(from State, ev Event) (to State, ok bool) {
	switch ev {
	case EventCreateOffer:
		if from == Idle {
			return Offering, true
		}
	case EventOfferCreated:
		if from == Offering {
			return AwaitingAnswer, true
		}
	case EventAnswerReceived:
		if from == AwaitingAnswer {
			return AwaitingAnswer, true
		}
	case EventICECandidateLocal, EventICECandidateRemote:
		return from, true // "any" row: no state change
	case EventConnectionEstablished:
		if from == AwaitingAnswer {
			return Connected, true
		}
	case EventConnectionFailed:
		return Failed, true // "any" row
	case EventClose:
		return Closed, true // "any" row
	}
	return from, false
}
