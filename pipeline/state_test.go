package pipeline

import "testing"

func TestNextHappyPathWebRTC(t *testing.T) {
	s := Stopped
	steps := []struct {
		ev   Event
		want State
	}{
		{EventStart, Starting},
		{EventCameraReady, ServerUp},
		{EventSinkWebSocketOpened, PeerNegotiating},
		{EventPeerConnected, StreamingWebRTC},
	}
	for _, step := range steps {
		got, ok := next(s, step.ev)
		if !ok {
			t.Fatalf("from %s: event %v has no transition", s, step.ev)
		}
		if got != step.want {
			t.Fatalf("from %s on %v: got %s want %s", s, step.ev, got, step.want)
		}
		s = got
	}
}

func TestNextDegradesToFallbackOnPeerFailure(t *testing.T) {
	for _, ev := range []Event{EventPeerFailed, EventICETimeout} {
		got, ok := next(PeerNegotiating, ev)
		if !ok || got != StreamingFallback {
			t.Fatalf("event %v: expected StreamingFallback, got %s ok=%v", ev, got, ok)
		}
	}
}

func TestNextPeerInitFailureGoesStraightToFallback(t *testing.T) {
	got, ok := next(ServerUp, EventPeerInitFailed)
	if !ok || got != StreamingFallback {
		t.Fatalf("expected StreamingFallback, got %s ok=%v", got, ok)
	}
}

func TestNextStopFromAnyNonStoppedState(t *testing.T) {
	for _, s := range []State{Starting, ServerUp, PeerNegotiating, StreamingWebRTC, StreamingFallback} {
		got, ok := next(s, EventStop)
		if !ok || got != Stopping {
			t.Fatalf("from %s: expected Stopping, got %s ok=%v", s, got, ok)
		}
	}
	if _, ok := next(Stopped, EventStop); ok {
		t.Fatal("expected stop to have no transition from Stopped")
	}
}

func TestNextDrainedReturnsToStopped(t *testing.T) {
	got, ok := next(Stopping, EventDrained)
	if !ok || got != Stopped {
		t.Fatalf("expected Stopped, got %s ok=%v", got, ok)
	}
}

func TestStartThenStopRoundTrip(t *testing.T) {
	s, _ := next(Stopped, EventStart)
	s, _ = next(s, EventCameraReady)
	s, _ = next(s, EventStop)
	s, ok := next(s, EventDrained)
	if !ok || s != Stopped {
		t.Fatalf("expected round trip back to Stopped, got %s ok=%v", s, ok)
	}
}
