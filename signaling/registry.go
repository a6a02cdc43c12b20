package signaling

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// goingAwayReason is the close reason a displaced sink receives (§4.6:
// "New client connected").
const goingAwayReason = "New client connected"

// stoppedReason is the close reason sent on an explicit pipeline stop
// (§4.6, §4.7): the sink recognizes this string and does not
// auto-reconnect.
const stoppedReason = "streaming stopped"

// wsSink is the single active WebSocket sink. At most one may exist at
// a time; a new handshake displaces the previous one (§4.6).
type wsSink struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// sseObserver is one Server-Sent-Events client. Unlike the WebSocket
// sink, many may be attached simultaneously (§4.6).
type sseObserver struct {
	id   string
	send chan []byte
}

// SinkRegistry holds the single WebSocket sink and the set of SSE
// observers. It is the fan-out point for C6's per-frame broadcast.
type SinkRegistry struct {
	mu  sync.Mutex
	ws  *wsSink
	sse map[string]*sseObserver
}

// NewSinkRegistry creates an empty registry.
func NewSinkRegistry() *SinkRegistry {
	return &SinkRegistry{sse: make(map[string]*sseObserver)}
}

// SetWebSocketSink installs conn as the sink, closing any previous one
// with the "going away" / "New client connected" reason (§4.6). It
// returns a channel the caller should read from and forward to conn,
// and a done channel that is closed when the sink is replaced or
// removed.
func (r *SinkRegistry) SetWebSocketSink(conn *websocket.Conn) (send <-chan []byte, done <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ws != nil {
		r.closeLocked(r.ws, websocket.CloseGoingAway, goingAwayReason)
	}
	sink := &wsSink{conn: conn, send: make(chan []byte, 64), done: make(chan struct{})}
	r.ws = sink
	return sink.send, sink.done
}

// RemoveWebSocketSink clears the sink if it is still the one
// identified by conn (a stale transport error for an already-displaced
// sink must not clobber its replacement).
func (r *SinkRegistry) RemoveWebSocketSink(conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ws != nil && r.ws.conn == conn {
		close(r.ws.done)
		r.ws = nil
	}
}

// StopWebSocketSink closes the active sink, if any, with the
// "streaming stopped" reason (§4.6, §4.7 Stopping action).
func (r *SinkRegistry) StopWebSocketSink() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ws != nil {
		r.closeLocked(r.ws, websocket.CloseNormalClosure, stoppedReason)
		r.ws = nil
	}
}

func (r *SinkRegistry) closeLocked(s *wsSink, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	s.conn.WriteControl(websocket.CloseMessage, msg, deadlineNow())
	close(s.done)
}

// AddSSEObserver registers a new SSE observer and returns its id (used
// to remove it later) and the channel the HTTP handler should drain.
func (r *SinkRegistry) AddSSEObserver() (id string, send <-chan []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := &sseObserver{id: uuid.NewString(), send: make(chan []byte, 16)}
	r.sse[o.id] = o
	return o.id, o.send
}

// RemoveSSEObserver deregisters an SSE observer.
func (r *SinkRegistry) RemoveSSEObserver(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.sse[id]; ok {
		delete(r.sse, id)
		close(o.send)
	}
}

// HasWebSocketSink reports whether a sink is currently attached.
func (r *SinkRegistry) HasWebSocketSink() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ws != nil
}

// ClientCount reports the total sink + observer count for /api/status.
func (r *SinkRegistry) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.sse)
	if r.ws != nil {
		n++
	}
	return n
}

// sendToWSSink delivers a message to the active sink, non-blocking: a
// slow sink must not stall the broadcaster (§5: "a slow sink cannot
// stall others"). A full send buffer drops the message for that sink.
func (r *SinkRegistry) sendToWSSink(b []byte) {
	r.mu.Lock()
	s := r.ws
	r.mu.Unlock()
	if s == nil {
		return
	}
	select {
	case s.send <- b:
	default:
	}
}

// broadcastToSSE fans a payload out to every SSE observer, same
// non-blocking drop policy.
func (r *SinkRegistry) broadcastToSSE(b []byte) {
	r.mu.Lock()
	observers := make([]*sseObserver, 0, len(r.sse))
	for _, o := range r.sse {
		observers = append(observers, o)
	}
	r.mu.Unlock()

	for _, o := range observers {
		select {
		case o.send <- b:
		default:
		}
	}
}
