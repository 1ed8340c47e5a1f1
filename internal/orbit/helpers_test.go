package orbit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/billchurch/bhyve-mqtt/internal/infrastructure/config"
)

const waitTimeout = 2 * time.Second

// eventLog records every event a client emits.
type eventLog struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newEventLog(c *Client) *eventLog {
	l := &eventLog{ch: make(chan Event, 64)}
	c.SetEventHandler(func(ev Event) {
		l.mu.Lock()
		l.events = append(l.events, ev)
		l.mu.Unlock()
		select {
		case l.ch <- ev:
		default:
		}
	})
	return l
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (l *eventLog) get(i int) Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[i]
}

// waitFor blocks until an event of kind arrives.
func (l *eventLog) waitFor(t *testing.T, kind EventKind) Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-l.ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event; saw %v", kind, l.kinds())
			return Event{}
		}
	}
}

func newTestClient(t *testing.T, baseURL, streamURL string) *Client {
	t.Helper()
	c := New(config.OrbitConfig{
		BaseURL:   baseURL,
		StreamURL: streamURL,
		Timeout:   2,
	})
	t.Cleanup(func() { c.Close() })
	return c
}

// authenticate installs a session without going through REST.
func authenticate(c *Client, token string) {
	c.mu.Lock()
	c.session = Session{Token: token, UserID: "u-1"}
	c.state = StateAuthenticated
	c.mu.Unlock()
}

// fakeStream is a stand-in for the cloud event stream.
type fakeStream struct {
	srv       *httptest.Server
	frames    chan []byte
	conns     chan *websocket.Conn
	connCount atomic.Int32
}

func newFakeStream(t *testing.T) *fakeStream {
	t.Helper()
	fs := &fakeStream{
		frames: make(chan []byte, 64),
		conns:  make(chan *websocket.Conn, 4),
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fs.connCount.Add(1)
		fs.conns <- conn

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			fs.frames <- data
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeStream) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/v1/events"
}

func (fs *fakeStream) nextFrame(t *testing.T) []byte {
	t.Helper()
	select {
	case f := <-fs.frames:
		return f
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a frame from the client")
		return nil
	}
}

func (fs *fakeStream) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-fs.conns:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for the client to connect")
		return nil
	}
}
