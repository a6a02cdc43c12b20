package peer

import (
	"strings"
	"testing"
)

const sampleSDP = "v=0\r\n" +
	"o=- 123 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96 97 98\r\n" +
	"a=rtpmap:96 VP8/90000\r\n" +
	"a=rtcp-fb:96 nack\r\n" +
	"a=rtpmap:97 AV1/90000\r\n" +
	"a=fmtp:97 profile=0\r\n" +
	"a=rtpmap:98 H264/90000\r\n" +
	"a=fmtp:98 packetization-mode=1\r\n"

func TestFilterSDPRemovesVP8AndAV1(t *testing.T) {
	out := FilterSDP(sampleSDP)
	if strings.Contains(out, "VP8") {
		t.Fatal("expected VP8 to be removed")
	}
	if strings.Contains(out, "AV1") {
		t.Fatal("expected AV1 to be removed")
	}
	if !strings.Contains(out, "H264") {
		t.Fatal("expected H264 to survive filtering")
	}
}

func TestFilterSDPStripsPayloadsFromMLine(t *testing.T) {
	out := FilterSDP(sampleSDP)
	for _, line := range strings.Split(out, "\r\n") {
		if strings.HasPrefix(line, "m=video") {
			if strings.Contains(line, " 96") || strings.Contains(line, " 97") {
				t.Fatalf("expected payloads 96/97 stripped from m-line, got %q", line)
			}
			if !strings.Contains(line, " 98") {
				t.Fatalf("expected payload 98 to remain, got %q", line)
			}
			return
		}
	}
	t.Fatal("no m=video line found in filtered SDP")
}

func TestFilterSDPPassesThroughWithNoBlockedCodecs(t *testing.T) {
	sdp := "v=0\r\nm=video 9 UDP/TLS/RTP/SAVPF 98\r\na=rtpmap:98 H264/90000\r\n"
	out := FilterSDP(sdp)
	if !strings.Contains(out, "H264") {
		t.Fatal("expected untouched SDP to pass through")
	}
}

func TestFilterSDPPreservesOtherLinesVerbatim(t *testing.T) {
	out := FilterSDP(sampleSDP)
	if !strings.Contains(out, "o=- 123 2 IN IP4 127.0.0.1") {
		t.Fatal("expected origin line preserved verbatim")
	}
}
