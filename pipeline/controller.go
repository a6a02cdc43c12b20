package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/tomeksn/fitnessmirror/camera"
	"github.com/tomeksn/fitnessmirror/i420conv"
	"github.com/tomeksn/fitnessmirror/jpegenc"
	"github.com/tomeksn/fitnessmirror/media"
	"github.com/tomeksn/fitnessmirror/peer"
	"github.com/tomeksn/fitnessmirror/router"
	"github.com/tomeksn/fitnessmirror/signaling"
	"github.com/tomeksn/fitnessmirror/store"
)

const jpegConsumerName = "fallback-jpeg"
const i420ConsumerName = "webrtc-i420"

// Config wires together the sub-component configurations the
// controller owns.
type Config struct {
	Camera         camera.Config
	Signaling      signaling.Config
	RouterInterval time.Duration
	JPEG           jpegenc.Config
	I420Width      int
	I420Height     int
	InitialLens    media.Lens // lens Start() opens with; defaults to media.Back

	// Store, if non-nil, persists the lens choice across SwitchLens
	// calls and the bound signaling port across restarts. Optional: a
	// Controller built without one simply skips persistence.
	Store *store.Store
}

// DefaultConfig mirrors the defaults of the wired sub-packages.
func DefaultConfig() Config {
	return Config{
		Camera:         camera.DefaultConfig(),
		Signaling:      signaling.DefaultConfig(),
		RouterInterval: router.DefaultInterval,
		JPEG:           jpegenc.DefaultConfig(),
		I420Width:      i420conv.TargetWidth,
		I420Height:     i420conv.TargetHeight,
	}
}

// peerSession is the subset of *peer.Session the controller drives.
// Narrowing it to an interface lets tests substitute a fake and
// exercise handleSinkConnected's failure branches without a real
// PeerConnection.
type peerSession interface {
	CreateOffer() error
	SetRemoteAnswer(sdp string) error
	AddRemoteICECandidate(c webrtc.ICECandidateInit) error
	InjectFrame(frame *media.I420Frame) error
	Close() error
}

// newPeerSession builds a peerSession; overridden in tests.
var newPeerSession = func(cb peer.Callbacks, width, height int) (peerSession, error) {
	s, err := peer.New(cb, width, height)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Controller is the in-process embedder control surface for C7: no
// gRPC/HTTP control API is defined for it (§6: "No process-level CLI
// is defined by this core"), only these Go methods.
type Controller struct {
	cfg Config

	mu    sync.Mutex
	state State

	cam     *camera.Source
	rtr     *router.Router
	jpeg    *jpegenc.Encoder
	i420    *i420conv.Converter
	sig     *signaling.Server
	session peerSession

	// OnStateChange and OnError surface the embedder-visible
	// notifications of §7 ("streaming_on", "sink_connected",
	// "mode = webrtc | fallback", "error = <kind, message>").
	OnStateChange func(State)
	OnError       func(kind string, err error)
}

// New builds a Controller in the Stopped state.
func New(cfg Config) *Controller {
	return &Controller{
		cfg:   cfg,
		cam:   camera.NewSource(cfg.Camera),
		rtr:   router.New(cfg.RouterInterval),
		jpeg:  jpegenc.New(cfg.JPEG),
		i420:  i420conv.New(cfg.I420Width, cfg.I420Height),
		state: Stopped,
	}
}

func (c *Controller) setState(s State) {
	c.state = s
	if c.OnStateChange != nil {
		c.OnStateChange(s)
	}
}

// State reports the current PipelineState.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) reportError(kind string, err error) {
	log.Printf("[pipeline] %s: %v", kind, err)
	if c.OnError != nil {
		c.OnError(kind, err)
	}
}

// Start runs Stopped -> Starting -> ServerUp (§4.7): it opens the
// camera in Streaming mode and, once camera_ready fires exactly once,
// starts the signaling server. The server is never started before
// that notification (§4.7's critical ordering rule).
func (c *Controller) Start() error {
	c.mu.Lock()
	if !c.advanceLocked(EventStart) {
		c.mu.Unlock()
		return fmt.Errorf("pipeline: start invalid from %s", c.state)
	}
	c.mu.Unlock()

	c.cam.OnReady = func() {
		c.mu.Lock()
		ok := c.advanceLocked(EventCameraReady)
		c.mu.Unlock()
		if !ok {
			return
		}
		if err := c.startSignaling(); err != nil {
			c.reportError("PortBusy", err)
		}
	}

	if err := c.cam.Open(media.Streaming, c.cfg.InitialLens); err != nil {
		c.reportError("CameraUnavailable", err)
		return fmt.Errorf("pipeline: open camera: %w", err)
	}
	return nil
}

func (c *Controller) startSignaling() error {
	c.sig = signaling.New(c.cfg.Signaling, signaling.Handlers{
		OnSinkConnected: c.handleSinkConnected,
		OnSDPMessage:    c.handleSDPMessage,
		OnICEMessage:    c.handleICEMessage,
	})
	if err := c.sig.Start(); err != nil {
		return err
	}
	if c.cfg.Store != nil {
		if err := c.cfg.Store.SaveLastPort(portFromAddr(c.cfg.Signaling.Addr)); err != nil {
			c.reportError("PreferenceSaveFailed", err)
		}
	}
	go c.rtr.Run(c.cam.Analysis())
	return nil
}

// portFromAddr extracts the numeric port from a ":8080"-style listen
// address for preference persistence.
func portFromAddr(addr string) int {
	port := 0
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			n := 0
			for _, ch := range addr[i+1:] {
				if ch < '0' || ch > '9' {
					return port
				}
				n = n*10 + int(ch-'0')
			}
			return n
		}
	}
	return port
}

// handleSinkConnected fires on the WebSocket handshake completing. Per
// §4.7's table, ServerUp -> PeerNegotiating only happens once a peer
// offer has actually been created; a peer.New/CreateOffer failure
// instead takes the ServerUp -> StreamingFallback row directly, since
// EventPeerInitFailed has no PeerNegotiating-sourced transition and the
// controller must never advance into PeerNegotiating without a live
// session to eventually connect or fail.
func (c *Controller) handleSinkConnected() {
	c.mu.Lock()
	if c.state != ServerUp {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	frontCamera := c.cam.CurrentLens() == media.Front
	session, err := newPeerSession(peer.Callbacks{
		OnLocalSDP: func(sdp string) { c.sig.SendSDP("offer", sdp, frontCamera) },
		OnLocalICE: func(ic webrtc.ICECandidateInit) {
			mLineIndex := 0
			if ic.SDPMLineIndex != nil {
				mLineIndex = int(*ic.SDPMLineIndex)
			}
			mid := ""
			if ic.SDPMid != nil {
				mid = *ic.SDPMid
			}
			c.sig.SendICE(mid, mLineIndex, ic.Candidate)
		},
		OnConnected: c.handlePeerConnected,
		OnFailed:    c.handlePeerFailed,
	}, c.cfg.I420Width, c.cfg.I420Height)
	if err != nil {
		c.mu.Lock()
		c.advanceLocked(EventPeerInitFailed)
		c.mu.Unlock()
		c.reportError("PeerNegotiationFailure", err)
		c.startFallback()
		return
	}

	if err := session.CreateOffer(); err != nil {
		session.Close()
		c.mu.Lock()
		c.advanceLocked(EventPeerInitFailed)
		c.mu.Unlock()
		c.reportError("PeerNegotiationFailure", err)
		c.startFallback()
		return
	}

	c.mu.Lock()
	ok := c.advanceLocked(EventSinkWebSocketOpened)
	c.session = session
	c.mu.Unlock()
	if !ok {
		// Sink was displaced or the controller was stopped while the
		// offer was being created; the fresh session has no home.
		session.Close()
		c.mu.Lock()
		c.session = nil
		c.mu.Unlock()
	}
}

func (c *Controller) handleSDPMessage(m signaling.SDPMessage) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil || m.SDPType != "answer" {
		return
	}
	if err := session.SetRemoteAnswer(m.SDP); err != nil {
		c.reportError("PeerNegotiationFailure", err)
	}
}

func (c *Controller) handleICEMessage(m signaling.ICEMessage) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return
	}
	mLineIndex := uint16(m.SDPMLineIndex)
	mid := m.SDPMid
	if err := session.AddRemoteICECandidate(webrtc.ICECandidateInit{
		Candidate:     m.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &mLineIndex,
	}); err != nil {
		c.reportError("PeerNegotiationFailure", err)
	}
}

// handlePeerConnected runs PeerNegotiating -> StreamingWebRTC: the
// analysis frames now flow to C4/C5 instead of C3/C6.
func (c *Controller) handlePeerConnected() {
	c.mu.Lock()
	ok := c.advanceLocked(EventPeerConnected)
	c.mu.Unlock()
	if !ok {
		return
	}
	c.rtr.RemoveConsumer(jpegConsumerName)
	c.rtr.AddConsumer(i420ConsumerName, router.FrameConsumerFunc(func(f *media.RawFrame) {
		out, err := c.i420.Convert(f, time.Now().UnixNano())
		if err != nil {
			c.reportError("FrameProcessingError", err)
			return
		}
		c.mu.Lock()
		session := c.session
		c.mu.Unlock()
		if session == nil {
			return
		}
		if err := session.InjectFrame(out); err != nil {
			c.reportError("FrameProcessingError", err)
		}
	}))
}

// handlePeerFailed degrades PeerNegotiating -> StreamingFallback.
func (c *Controller) handlePeerFailed(err error) {
	c.mu.Lock()
	ok := c.advanceLocked(EventPeerFailed)
	session := c.session
	c.session = nil
	c.mu.Unlock()
	if session != nil {
		session.Close()
	}
	if !ok {
		return
	}
	c.reportError("PeerNegotiationFailure", err)
	c.startFallback()
}

func (c *Controller) startFallback() {
	c.rtr.RemoveConsumer(i420ConsumerName)
	c.rtr.AddConsumer(jpegConsumerName, router.FrameConsumerFunc(func(f *media.RawFrame) {
		c.jpeg.EncodeInto(f, func(out *media.EncodedJpeg) {
			c.sig.BroadcastJPEG(out.Bytes, time.Now().UnixMilli())
		})
	}))
}

// SwitchLens forwards to the camera (§4.7, camera-switch handling):
// the switch completes atomically and re-uses the current CameraMode;
// the WebRTC/fallback route stays alive across the brief frame gap.
// The new lens is saved to cfg.Store, if set; Start() on this
// Controller still opens cfg.InitialLens, which SwitchLens leaves as is.
func (c *Controller) SwitchLens() error {
	if err := c.cam.SwitchLens(); err != nil {
		return err
	}
	if c.cfg.Store != nil {
		if err := c.cfg.Store.SaveLens(c.cam.CurrentLens()); err != nil {
			c.reportError("PreferenceSaveFailed", err)
		}
	}
	return nil
}

// SetSinkVideo tells the sink which YouTube video to mirror.
func (c *Controller) SetSinkVideo(videoID string, startSeconds float64) {
	if c.sig == nil {
		return
	}
	c.sig.SendVideoURL(videoID, startSeconds)
}

// ClearSinkVideo stops sink playback.
func (c *Controller) ClearSinkVideo() {
	if c.sig == nil {
		return
	}
	c.sig.SendVideoControl("stop", 0)
}

// Stop runs any non-Stopped state -> Stopping -> Stopped (§4.7):
// closes the peer, stops the signaling server with the goodbye close
// frame, and returns the camera to PreviewOnly. No wake lock is taken
// or released here.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.advanceLocked(EventStop) {
		c.mu.Unlock()
		return fmt.Errorf("pipeline: stop invalid from %s", c.state)
	}
	session := c.session
	c.session = nil
	sig := c.sig
	c.mu.Unlock()

	if session != nil {
		session.Close()
	}
	if sig != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sig.Stop(ctx); err != nil {
			c.reportError("PortBusy", err)
		}
	}
	c.rtr.RemoveConsumer(jpegConsumerName)
	c.rtr.RemoveConsumer(i420ConsumerName)

	if err := c.cam.SetMode(media.PreviewOnly); err != nil {
		log.Printf("[pipeline] stop: camera to PreviewOnly: %v", err)
	}

	c.mu.Lock()
	c.advanceLocked(EventDrained)
	c.mu.Unlock()
	return nil
}

func (c *Controller) advanceLocked(ev Event) bool {
	to, ok := next(c.state, ev)
	if !ok {
		return false
	}
	c.setState(to)
	return true
}
