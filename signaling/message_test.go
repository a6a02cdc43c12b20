package signaling

import (
	"encoding/json"
	"testing"
)

func TestPeekTypeExtractsDiscriminator(t *testing.T) {
	raw := []byte(`{"type":"SDP","sdpType":"offer","sdp":"v=0..."}`)
	if got := PeekType(raw); got != TypeSDP {
		t.Fatalf("expected %q, got %q", TypeSDP, got)
	}
}

func TestPeekTypeEmptyForMissingField(t *testing.T) {
	raw := []byte(`{"foo":"bar"}`)
	if got := PeekType(raw); got != "" {
		t.Fatalf("expected empty type, got %q", got)
	}
}

func TestEncodeSDPMessageCarriesFrontCameraFlag(t *testing.T) {
	b, err := Encode(SDPMessage{Type: TypeSDP, SDPType: "offer", SDP: "v=0...", FrontCamera: true})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var m SDPMessage
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !m.FrontCamera {
		t.Fatal("expected frontCamera to round-trip true")
	}
}

func TestEncodeTimestampMessage(t *testing.T) {
	b, err := Encode(NewTimestampMessage(1700000000000))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if PeekType(b) != TypeTimestamp {
		t.Fatalf("expected TIMESTAMP type round-trip, got %q", PeekType(b))
	}
}
