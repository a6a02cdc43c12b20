// Package peer implements the Peer Session (C5): one WebRTC peer
// connection per sink, codec-filtered SDP on the wire, and an I420
// frame-injection path into the outgoing video track (§4.5).
package peer

import (
	"regexp"
	"strings"
)

// filteredCodecs lists the codecs §4.5 requires stripped from any SDP
// handed to the sink. The local description is never filtered — only
// what goes out on the signaling channel.
var filteredCodecs = []string{"VP8", "AV1"}

var rtpmapRE = regexp.MustCompile(`^a=rtpmap:(\d+) ([A-Za-z0-9_-]+)/\d+`)

// FilterSDP runs the §4.5 codec-filter algorithm: it removes every
// a=rtpmap/a=rtcp-fb/a=fmtp line for VP8 or AV1 payload types, strips
// those payload numbers from every m=video line's payload list, and
// rejoins with CRLF, leaving everything else verbatim.
func FilterSDP(sdp string) string {
	lines := splitSDPLines(sdp)

	blocked := make(map[string]bool)
	for _, line := range lines {
		m := rtpmapRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		pt, codec := m[1], strings.ToUpper(m[2])
		for _, c := range filteredCodecs {
			if codec == c {
				blocked[pt] = true
			}
		}
	}
	if len(blocked) == 0 {
		return strings.Join(lines, "\r\n")
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if isPayloadSpecificLine(line, blocked) {
			continue
		}
		if strings.HasPrefix(line, "m=video") {
			line = stripPayloadsFromMLine(line, blocked)
		}
		out = append(out, line)
	}
	return strings.Join(out, "\r\n")
}

func splitSDPLines(sdp string) []string {
	normalized := strings.ReplaceAll(sdp, "\r\n", "\n")
	parts := strings.Split(normalized, "\n")
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		lines = append(lines, p)
	}
	return lines
}

func isPayloadSpecificLine(line string, blocked map[string]bool) bool {
	for _, prefix := range []string{"a=rtpmap:", "a=rtcp-fb:", "a=fmtp:"} {
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		rest := line[len(prefix):]
		pt := rest
		if idx := strings.IndexAny(rest, " :"); idx >= 0 {
			pt = rest[:idx]
		}
		if blocked[pt] {
			return true
		}
	}
	return false
}

func stripPayloadsFromMLine(line string, blocked map[string]bool) string {
	fields := strings.Fields(line)
	// m=video <port> <proto> <pt>...
	if len(fields) <= 3 {
		return line
	}
	kept := fields[:3]
	for _, pt := range fields[3:] {
		if !blocked[pt] {
			kept = append(kept, pt)
		}
	}
	return strings.Join(kept, " ")
}
