package peer

import "testing"

func TestNextHappyPathWebRTC(t *testing.T) {
	s := Idle
	steps := []struct {
		ev   Event
		want State
	}{
		{EventCreateOffer, Offering},
		{EventOfferCreated, AwaitingAnswer},
		{EventAnswerReceived, AwaitingAnswer},
		{EventConnectionEstablished, Connected},
	}
	for _, step := range steps {
		got, ok := next(s, step.ev)
		if !ok {
			t.Fatalf("from %s: event %v has no transition", s, step.ev)
		}
		if got != step.want {
			t.Fatalf("from %s on %v: got %s, want %s", s, step.ev, got, step.want)
		}
		s = got
	}
}

func TestNextICEEventsNeverChangeState(t *testing.T) {
	for _, s := range []State{Idle, Offering, AwaitingAnswer, Connected} {
		if got, ok := next(s, EventICECandidateLocal); !ok || got != s {
			t.Fatalf("ICE local event should be a no-op from %s, got %s ok=%v", s, got, ok)
		}
		if got, ok := next(s, EventICECandidateRemote); !ok || got != s {
			t.Fatalf("ICE remote event should be a no-op from %s, got %s ok=%v", s, got, ok)
		}
	}
}

func TestNextConnectionFailedFromAnyState(t *testing.T) {
	for _, s := range []State{Idle, Offering, AwaitingAnswer, Connected} {
		got, ok := next(s, EventConnectionFailed)
		if !ok || got != Failed {
			t.Fatalf("from %s: expected Failed, got %s ok=%v", s, got, ok)
		}
	}
}

func TestNextCloseFromAnyState(t *testing.T) {
	for _, s := range []State{Idle, Offering, AwaitingAnswer, Connected, Failed} {
		got, ok := next(s, EventClose)
		if !ok || got != Closed {
			t.Fatalf("from %s: expected Closed, got %s ok=%v", s, got, ok)
		}
	}
}

func TestNextCreateOfferOnlyFromIdle(t *testing.T) {
	if _, ok := next(Connected, EventCreateOffer); ok {
		t.Fatal("expected create_offer to have no transition from Connected")
	}
}
