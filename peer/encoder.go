package peer

import (
	"fmt"
	"io"
	"log"
	"net"
	"os/exec"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/tomeksn/fitnessmirror/media"
)

// h264Payload is the payload type the H264 codec is registered under in
// the session's MediaEngine, so it appears in the offered SDP; the RTP
// pump also stamps it on every packet read back from the encoder
// (§4.5: "the local encoder is free to choose VP9 or H.264").
const h264Payload = 109

// trackEncoder feeds I420Frames into an outgoing H264 RTP track by
// piping raw I420 into an ffmpeg subprocess and reading the resulting
// RTP stream back off a loopback UDP socket: subprocess-encode, then
// pump RTP, generalized from file/webcam input to programmatically
// injected frames.
type trackEncoder struct {
	track *webrtc.TrackLocalStaticRTP

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	conn   *net.UDPConn
	width  int
	height int

	closed chan struct{}
}

// newTrackEncoder starts ffmpeg reading rawvideo I420 frames of the
// given dimensions from stdin and writing H264 RTP to a loopback UDP
// port, then starts a pump goroutine forwarding those RTP packets into
// track.
func newTrackEncoder(track *webrtc.TrackLocalStaticRTP, width, height int) (*trackEncoder, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		return nil, fmt.Errorf("peer: reserve rtp pump socket: %w", err)
	}
	rtpPort := conn.LocalAddr().(*net.UDPAddr).Port

	args := []string{
		"-hide_banner", "-loglevel", "warning",
		"-f", "rawvideo", "-pix_fmt", "yuv420p",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", "10",
		"-i", "pipe:0",
		"-c:v", "libx264", "-preset", "ultrafast", "-tune", "zerolatency",
		"-payload_type", fmt.Sprint(h264Payload),
		"-f", "rtp", fmt.Sprintf("rtp://127.0.0.1:%d", rtpPort),
	}
	cmd := exec.Command("ffmpeg", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("peer: open ffmpeg stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("peer: start ffmpeg encoder: %w", err)
	}

	e := &trackEncoder{
		track:  track,
		cmd:    cmd,
		stdin:  stdin,
		conn:   conn,
		width:  width,
		height: height,
		closed: make(chan struct{}),
	}
	go e.pumpRTP()
	return e, nil
}

// WriteFrame writes one I420Frame's packed Y/U/V planes to the encoder
// in sequence. Frames of the wrong dimensions are rejected rather than
// silently truncated/padded.
func (e *trackEncoder) WriteFrame(frame *media.I420Frame) error {
	if frame.Width != e.width || frame.Height != e.height {
		return fmt.Errorf("peer: frame %dx%d does not match encoder %dx%d", frame.Width, frame.Height, e.width, e.height)
	}
	for _, plane := range [][]byte{frame.Y, frame.U, frame.V} {
		if _, err := e.stdin.Write(plane); err != nil {
			return fmt.Errorf("peer: write to encoder: %w", err)
		}
	}
	return nil
}

// pumpRTP reads RTP packets off the loopback socket and writes them
// into the outgoing track. A packet whose WriteRTP fails is logged and
// dropped, and the pump pauses 50ms before reading the next one.
func (e *trackEncoder) pumpRTP() {
	buf := make([]byte, 1500)
	for {
		n, err := e.conn.Read(buf)
		if err != nil {
			select {
			case <-e.closed:
			default:
				log.Printf("[peer] rtp pump read error: %v", err)
			}
			return
		}
		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			log.Printf("[peer] rtp pump unmarshal error: %v", err)
			continue
		}
		pkt.Header.PayloadType = h264Payload
		if err := e.track.WriteRTP(&pkt); err != nil {
			log.Printf("[peer] rtp pump write error: %v", err)
			time.Sleep(50 * time.Millisecond)
		}
	}
}

// Close tears down the ffmpeg subprocess and the loopback socket.
func (e *trackEncoder) Close() error {
	close(e.closed)
	e.stdin.Close()
	e.conn.Close()
	_ = e.cmd.Wait()
	return nil
}
