package peer

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/tomeksn/fitnessmirror/media"
)

// ErrClosed is returned by operations attempted on a closed Session.
var ErrClosed = errors.New("peer: session closed")

// ErrWrongState is returned when an operation is attempted from a
// PeerState that has no defined transition for it (§4.5).
var ErrWrongState = errors.New("peer: operation invalid in current state")

// STUNServer is the single public STUN endpoint named in §4.5; no TURN
// relay is configured (LAN-only system, relayed paths add latency and
// have displaced working host candidates in practice).
const STUNServer = "stun:stun.l.google.com:19302"

// Callbacks lets C7 observe Session events without Session depending on
// the pipeline or signaling packages (§9's narrow-interface guidance).
type Callbacks struct {
	OnLocalSDP  func(filteredSDP string)
	OnLocalICE  func(c webrtc.ICECandidateInit)
	OnConnected func()
	OnFailed    func(err error)
}

// Session manages one WebRTC peer connection: SDP negotiation, ICE,
// codec filtering on the outbound signaling path, and I420 frame
// injection into the outgoing video track (§4.5). At most one Session
// is active per sink; the pipeline controller owns replacing it.
type Session struct {
	cb Callbacks

	width, height int

	mu      sync.Mutex
	state   State
	pc      *webrtc.PeerConnection
	track   *webrtc.TrackLocalStaticRTP
	encoder *trackEncoder
	closed  bool
}

// New builds a Session ready to create an offer. width/height are the
// I420 track's fixed encode resolution (C4's output).
func New(cb Callbacks, width, height int) (*Session, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "packetization-mode=1;profile-level-id=42e01f",
		},
		PayloadType: h264Payload,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("peer: register H264 codec: %w", err)
	}
	// Also register VP9 and VP8 so the unfiltered local description can
	// advertise them (§4.5: "the locally-set description retains all
	// codecs the stack advertises"); only the wire-transmitted SDP is
	// filtered, by FilterSDP, not what the local encoder may pick from.
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000},
		PayloadType:        98,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("peer: register VP9 codec: %w", err)
	}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		PayloadType:        96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("peer: register VP8 codec: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("peer: register default interceptors: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir))
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{STUNServer}}},
	})
	if err != nil {
		return nil, fmt.Errorf("peer: new peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
		"video", "fitnessmirror-source",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("peer: new video track: %w", err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("peer: add video track: %w", err)
	}

	s := &Session{cb: cb, width: width, height: height, state: Idle, pc: pc, track: track}

	// Drain RTCP off the sender so the registered interceptor chain
	// (NACK responder, report generation) actually sees receiver
	// feedback; an undrained sender just buffers it forever.
	go func() {
		buf := make([]byte, 1500)
		for {
			n, _, err := sender.Read(buf)
			if err != nil {
				return
			}
			if _, err := rtcp.Unmarshal(buf[:n]); err != nil {
				log.Printf("[peer] rtcp unmarshal: %v", err)
			}
		}
	}()

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		s.advance(EventICECandidateLocal)
		if s.cb.OnLocalICE != nil {
			s.cb.OnLocalICE(c.ToJSON())
		}
	})
	pc.OnICEConnectionStateChange(func(st webrtc.ICEConnectionState) {
		log.Printf("[peer] ice state: %s", st)
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		switch st {
		case webrtc.PeerConnectionStateConnected:
			if s.advance(EventConnectionEstablished) && s.cb.OnConnected != nil {
				s.cb.OnConnected()
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			s.advance(EventConnectionFailed)
			if s.cb.OnFailed != nil {
				s.cb.OnFailed(fmt.Errorf("peer: connection state %s", st))
			}
		}
	})

	return s, nil
}

// CreateOffer runs Idle -> Offering -> AwaitingAnswer: it generates a
// local SDP offer, sets it as the (unfiltered) local description, and
// emits the codec-filtered SDP via Callbacks.OnLocalSDP.
func (s *Session) CreateOffer() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.advanceLocked(EventCreateOffer) {
		s.mu.Unlock()
		return ErrWrongState
	}
	pc := s.pc
	s.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		s.fail(err)
		return fmt.Errorf("peer: create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		s.fail(err)
		return fmt.Errorf("peer: set local description: %w", err)
	}

	s.mu.Lock()
	s.advanceLocked(EventOfferCreated)
	s.mu.Unlock()

	if s.cb.OnLocalSDP != nil {
		s.cb.OnLocalSDP(FilterSDP(offer.SDP))
	}
	return nil
}

// SetRemoteAnswer applies the sink's SDP answer (AwaitingAnswer ->
// AwaitingAnswer per §4.5; the state only changes once the ICE/DTLS
// handshake actually completes, observed via OnConnectionStateChange).
func (s *Session) SetRemoteAnswer(sdp string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.advanceLocked(EventAnswerReceived) {
		s.mu.Unlock()
		return ErrWrongState
	}
	pc := s.pc
	s.mu.Unlock()

	err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
	if err != nil {
		s.fail(err)
		return fmt.Errorf("peer: set remote description: %w", err)
	}
	return nil
}

// AddRemoteICECandidate adds an ICE candidate received from the sink.
func (s *Session) AddRemoteICECandidate(c webrtc.ICECandidateInit) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.advanceLocked(EventICECandidateRemote)
	pc := s.pc
	s.mu.Unlock()

	if err := pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("peer: add ice candidate: %w", err)
	}
	return nil
}

// InjectFrame implements §4.5's inject_frame: it lazily starts the
// subprocess encoder on the first frame (once the track resolution is
// known) and writes the frame's planes into it.
func (s *Session) InjectFrame(frame *media.I420Frame) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.encoder == nil {
		enc, err := newTrackEncoder(s.track, s.width, s.height)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("peer: start track encoder: %w", err)
		}
		s.encoder = enc
	}
	enc := s.encoder
	s.mu.Unlock()

	return enc.WriteFrame(frame)
}

// State reports the current PeerState.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close releases all resources (§4.5: "any -> close -> Closed: release
// all resources"). It is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.advanceLocked(EventClose)
	enc := s.encoder
	pc := s.pc
	s.mu.Unlock()

	if enc != nil {
		enc.Close()
	}
	return pc.Close()
}

func (s *Session) advance(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(ev)
}

func (s *Session) advanceLocked(ev Event) bool {
	to, ok := next(s.state, ev)
	if !ok {
		return false
	}
	s.state = to
	return true
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.advanceLocked(EventConnectionFailed)
	s.mu.Unlock()
	if s.cb.OnFailed != nil {
		s.cb.OnFailed(err)
	}
}
