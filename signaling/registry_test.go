package signaling

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestSetWebSocketSinkDisplacesPrevious(t *testing.T) {
	reg := NewSinkRegistry()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		reg.SetWebSocketSink(conn)
		<-r.Context().Done()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	first := dialWS(t, srv)
	defer first.Close()
	time.Sleep(20 * time.Millisecond)
	if !reg.HasWebSocketSink() {
		t.Fatal("expected a sink after first connect")
	}

	first.SetReadDeadline(time.Now().Add(time.Second))

	second := dialWS(t, srv)
	defer second.Close()
	time.Sleep(20 * time.Millisecond)

	_, _, err := first.ReadMessage()
	if err == nil {
		t.Fatal("expected the first connection to be closed by displacement")
	}
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected a going-away close, got %v", err)
	}
}

func TestSSEObserversAreIndependent(t *testing.T) {
	reg := NewSinkRegistry()
	id1, ch1 := reg.AddSSEObserver()
	id2, ch2 := reg.AddSSEObserver()
	defer reg.RemoveSSEObserver(id1)
	defer reg.RemoveSSEObserver(id2)

	reg.broadcastToSSE([]byte("data: x\n\n"))

	select {
	case <-ch1:
	case <-time.After(time.Second):
		t.Fatal("observer 1 did not receive broadcast")
	}
	select {
	case <-ch2:
	case <-time.After(time.Second):
		t.Fatal("observer 2 did not receive broadcast")
	}
}

func TestRemoveSSEObserverStopsDelivery(t *testing.T) {
	reg := NewSinkRegistry()
	id, ch := reg.AddSSEObserver()
	reg.RemoveSSEObserver(id)

	reg.broadcastToSSE([]byte("data: x\n\n"))

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel after removal, got a value")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected channel to be closed immediately after removal")
	}
}

func TestClientCountIncludesSinkAndObservers(t *testing.T) {
	reg := NewSinkRegistry()
	if reg.ClientCount() != 0 {
		t.Fatalf("expected 0 clients initially, got %d", reg.ClientCount())
	}
	id, _ := reg.AddSSEObserver()
	if reg.ClientCount() != 1 {
		t.Fatalf("expected 1 client with one SSE observer, got %d", reg.ClientCount())
	}
	reg.RemoveSSEObserver(id)
}
