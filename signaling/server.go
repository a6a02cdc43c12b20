package signaling

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// PingInterval is the WebSocket keep-alive cadence (§4.6, §5).
const PingInterval = 60 * time.Second

// SSEPingInterval keeps middleboxes from closing idle SSE connections
// (§4.6).
const SSEPingInterval = 1 * time.Second

// SocketTimeout bounds how long a WebSocket read may block before the
// connection is considered dead (§5).
const SocketTimeout = 120 * time.Second

func deadlineNow() time.Time { return time.Now().Add(time.Second) }

// Handlers lets C7 receive signaling events without this package
// depending on the pipeline package (§9).
type Handlers struct {
	// OnSinkConnected fires once the WebSocket sink handshake completes
	// (§4.7's sink_websocket_opened event).
	OnSinkConnected func()
	// OnSDPMessage, OnICEMessage and OnVideoControl fire for the decoded
	// SDP, ICE and VIDEO_CONTROL text messages from the sink; other
	// message types are logged and not dispatched.
	OnSDPMessage   func(SDPMessage)
	OnICEMessage   func(ICEMessage)
	OnVideoControl func(VideoControlMessage)
}

// Server hosts the sink page, the WebRTC offer/answer/ICE endpoints,
// and the WebSocket/SSE fallback channels (§4.6).
type Server struct {
	cfg      Config
	handlers Handlers
	registry *SinkRegistry

	upgrader websocket.Upgrader
	mux      *http.ServeMux
	http     *http.Server
}

// Config configures the Server.
type Config struct {
	Addr           string // default ":8080"
	SinkPage       []byte // served at GET /, bytes only (§4.6 "out of scope")
	AllowAnyOrigin bool
}

// DefaultConfig returns §4.6's default listen address.
func DefaultConfig() Config {
	return Config{Addr: ":8080", AllowAnyOrigin: true}
}

// New builds a Server. It does not start listening until Start is
// called — C7 must not call Start before the camera is ready (§4.7's
// critical ordering rule).
func New(cfg Config, h Handlers) *Server {
	s := &Server{
		cfg:      cfg,
		handlers: h,
		registry: NewSinkRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return cfg.AllowAnyOrigin || r.Header.Get("Origin") == ""
			},
		},
	}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/stream", s.handleStream)
	s.mux.HandleFunc("/stream-sse", s.handleSSE)
	s.mux.HandleFunc("/webrtc-offer", s.handleOffer)
	s.mux.HandleFunc("/webrtc-answer", s.handleAnswer)
	s.mux.HandleFunc("/webrtc-ice", s.handleICE)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	return s
}

// Start begins listening. Per §4.6's failure semantics, a port already
// in use triggers one targeted retry after a 500ms wait before
// surfacing the error to the caller (C7).
func (s *Server) Start() error {
	s.http = &http.Server{Addr: s.cfg.Addr, Handler: s.mux}
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err == nil || err == http.ErrServerClosed {
			return nil
		}
		log.Printf("[signaling] listen failed (%v), retrying once in 500ms", err)
		time.Sleep(500 * time.Millisecond)
		s.http = &http.Server{Addr: s.cfg.Addr, Handler: s.mux}
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("signaling: listen on %s: %w", s.cfg.Addr, err)
		}
		return nil
	case <-time.After(100 * time.Millisecond):
		go func() {
			if err := <-errCh; err != nil && err != http.ErrServerClosed {
				log.Printf("[signaling] server stopped: %v", err)
			}
		}()
		return nil // still running; listen errors after this point are logged, not returned
	}
}

// Stop closes the active WebSocket sink with the "streaming stopped"
// reason and shuts the HTTP server down (§4.7 Stopping action).
func (s *Server) Stop(ctx context.Context) error {
	s.registry.StopWebSocketSink()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Registry exposes the server's sink registry.
func (s *Server) Registry() *SinkRegistry { return s.registry }

// SendSDP pushes an SDP message (offer or answer) to the active sink
// (§4.5/§4.6). frontCamera is set on outgoing offers so the sink knows
// whether to apply its own horizontal mirror transform (§4).
func (s *Server) SendSDP(sdpType, sdp string, frontCamera bool) {
	msg, err := Encode(SDPMessage{Type: TypeSDP, SDPType: sdpType, SDP: sdp, FrontCamera: frontCamera})
	if err != nil {
		log.Printf("[signaling] encode SDP message: %v", err)
		return
	}
	s.registry.sendToWSSink(msg)
}

// SendVideoURL tells the sink which YouTube video to mirror (§6,
// VIDEO_URL message).
func (s *Server) SendVideoURL(videoID string, currentTime float64) {
	msg, err := Encode(VideoURLMessage{Type: TypeVideoURL, VideoID: videoID, CurrentTime: currentTime})
	if err != nil {
		log.Printf("[signaling] encode VIDEO_URL message: %v", err)
		return
	}
	s.registry.sendToWSSink(msg)
}

// SendVideoControl issues a playback command to the sink (§6,
// VIDEO_CONTROL message).
func (s *Server) SendVideoControl(command string, value float64) {
	msg, err := Encode(VideoControlMessage{Type: TypeVideoControl, Command: command, Value: value})
	if err != nil {
		log.Printf("[signaling] encode VIDEO_CONTROL message: %v", err)
		return
	}
	s.registry.sendToWSSink(msg)
}

// SendICE pushes a local ICE candidate to the active sink.
func (s *Server) SendICE(sdpMid string, sdpMLineIndex int, candidate string) {
	msg, err := Encode(ICEMessage{Type: TypeICE, SDPMid: sdpMid, SDPMLineIndex: sdpMLineIndex, Candidate: candidate})
	if err != nil {
		log.Printf("[signaling] encode ICE message: %v", err)
		return
	}
	s.registry.sendToWSSink(msg)
}

// BroadcastJPEG runs §4.6's per-frame broadcast algorithm: a timestamp
// marker, then the JPEG as a binary WS frame, then base64(JPEG) to
// every SSE observer.
func (s *Server) BroadcastJPEG(jpeg []byte, epochMillis int64) {
	ts, err := Encode(NewTimestampMessage(epochMillis))
	if err == nil {
		s.registry.sendToWSSink(ts)
	}
	s.registry.sendToWSSink(jpeg)

	encoded := base64.StdEncoding.EncodeToString(jpeg)
	s.registry.broadcastToSSE([]byte("data: " + encoded + "\n\n"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(s.cfg.SinkPage)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[signaling] ws upgrade: %v", err)
		return
	}
	send, done := s.registry.SetWebSocketSink(conn)
	if s.handlers.OnSinkConnected != nil {
		s.handlers.OnSinkConnected()
	}

	go s.writePump(conn, send, done)
	s.readPump(conn)
}

func (s *Server) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case b, ok := <-send:
			if !ok {
				return
			}
			msgType := websocket.TextMessage
			if isJPEGMagic(b) {
				msgType = websocket.BinaryMessage
			}
			if err := conn.WriteMessage(msgType, b); err != nil {
				log.Printf("[signaling] write error: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, deadlineNow()); err != nil {
				return
			}
		}
	}
}

func isJPEGMagic(b []byte) bool {
	return len(b) >= 2 && b[0] == 0xFF && b[1] == 0xD8
}

func (s *Server) readPump(conn *websocket.Conn) {
	defer func() {
		s.registry.RemoveWebSocketSink(conn)
		conn.Close()
	}()
	conn.SetReadDeadline(time.Now().Add(SocketTimeout))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(SocketTimeout))
		s.dispatch(raw)
	}
}

func (s *Server) dispatch(raw []byte) {
	switch PeekType(raw) {
	case TypeSDP:
		var m SDPMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			log.Printf("[signaling] bad SDP message: %v", err)
			return
		}
		if s.handlers.OnSDPMessage != nil {
			s.handlers.OnSDPMessage(m)
		}
	case TypeICE:
		var m ICEMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			log.Printf("[signaling] bad ICE message: %v", err)
			return
		}
		if s.handlers.OnICEMessage != nil {
			s.handlers.OnICEMessage(m)
		}
	case TypeVideoControl:
		var m VideoControlMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			log.Printf("[signaling] bad VIDEO_CONTROL message: %v", err)
			return
		}
		if s.handlers.OnVideoControl != nil {
			s.handlers.OnVideoControl(m)
		}
	default:
		log.Printf("[signaling] unhandled message type %q", PeekType(raw))
	}
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, send := s.registry.AddSSEObserver()
	defer s.registry.RemoveSSEObserver(id)

	ticker := time.NewTicker(SSEPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case b, ok := <-send:
			if !ok {
				return
			}
			w.Write(b)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	var m SDPMessage
	if !decodeJSONBody(w, r, &m) {
		return
	}
	m.Type = TypeSDP
	if s.handlers.OnSDPMessage != nil {
		s.handlers.OnSDPMessage(m)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var m SDPMessage
	if !decodeJSONBody(w, r, &m) {
		return
	}
	m.Type = TypeSDP
	if s.handlers.OnSDPMessage != nil {
		s.handlers.OnSDPMessage(m)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleICE(w http.ResponseWriter, r *http.Request) {
	var m ICEMessage
	if !decodeJSONBody(w, r, &m) {
		return
	}
	m.Type = TypeICE
	if s.handlers.OnICEMessage != nil {
		s.handlers.OnICEMessage(m)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}{Status: "ok", Clients: s.registry.ClientCount()}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}
