package orbit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStream(t *testing.T) (*Client, *fakeStream, *eventLog) {
	t.Helper()
	fs := newFakeStream(t)
	c := newTestClient(t, "", fs.url())
	log := newEventLog(c)
	authenticate(c, "tok-123")

	require.NoError(t, c.OpenStream(context.Background()))
	return c, fs, log
}

func TestOpenStream_SendsAuthFrameFirst(t *testing.T) {
	c, fs, log := openTestStream(t)

	frame := fs.nextFrame(t)
	assert.JSONEq(t, `{"event":"app_connection","orbit_session_token":"tok-123"}`, string(frame))
	assert.Equal(t, StateStreamOpen, c.State())
	assert.True(t, c.StreamOpen())
	assert.Contains(t, log.kinds(), EventStreamOpen)
}

func TestOpenStream_RequiresSession(t *testing.T) {
	fs := newFakeStream(t)
	c := newTestClient(t, "", fs.url())

	err := c.OpenStream(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, StateUnauthenticated, c.State())
	assert.Equal(t, int32(0), fs.connCount.Load())
}

func TestOpenStream_AlreadyOpenIsNoop(t *testing.T) {
	c, fs, _ := openTestStream(t)
	fs.nextFrame(t) // auth frame; the server has registered the connection

	require.NoError(t, c.OpenStream(context.Background()))
	assert.Equal(t, int32(1), fs.connCount.Load())
}

func TestOpenStream_DialFailure(t *testing.T) {
	c := newTestClient(t, "", "ws://127.0.0.1:1/v1/events")
	log := newEventLog(c)
	authenticate(c, "tok-123")

	err := c.OpenStream(context.Background())
	require.ErrorIs(t, err, ErrStreamDial)
	assert.Equal(t, StateAuthenticated, c.State())
	assert.False(t, c.StreamOpen())
	assert.Equal(t, []EventKind{EventError}, log.kinds())
}

func TestStream_SendsPing(t *testing.T) {
	fs := newFakeStream(t)
	c := newTestClient(t, "", fs.url())
	c.pingInterval = 20 * time.Millisecond
	authenticate(c, "tok-123")
	require.NoError(t, c.OpenStream(context.Background()))

	fs.nextFrame(t) // auth
	assert.JSONEq(t, `{"event":"ping"}`, string(fs.nextFrame(t)))
	assert.JSONEq(t, `{"event":"ping"}`, string(fs.nextFrame(t)))
}

func TestStream_EmitsMessages(t *testing.T) {
	_, fs, log := openTestStream(t)
	conn := fs.nextConn(t)

	frames := []string{
		`not json at all`,
		`{"event":"change_mode","device_id":"d1","mode":"manual","stations":[{"station":2,"run_time":5}]}`,
		`{"event":"low_battery"}`,
		`[1,2,3]`,
	}
	for _, f := range frames {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f)))
	}

	ev := log.waitFor(t, EventMessage)
	assert.Equal(t, "change_mode", ev.Message.Event)
	assert.Equal(t, "d1", ev.Message.DeviceID)
	assert.JSONEq(t, frames[1], string(ev.Message.Raw))

	ev = log.waitFor(t, EventMessage)
	assert.Equal(t, "low_battery", ev.Message.Event)
	assert.Empty(t, ev.Message.DeviceID)

	ev = log.waitFor(t, EventMessage)
	assert.Empty(t, ev.Message.Event)
	assert.Equal(t, "[1,2,3]", string(ev.Message.Raw))
}

func TestStream_ServerCloseEmitsClosed(t *testing.T) {
	c, fs, log := openTestStream(t)
	conn := fs.nextConn(t)

	require.NoError(t, conn.Close())

	ev := log.waitFor(t, EventStreamClosed)
	assert.Error(t, ev.Err)
	assert.False(t, c.StreamOpen())
	assert.Equal(t, StateAuthenticated, c.State())

	// The caller may reopen.
	require.NoError(t, c.OpenStream(context.Background()))
	assert.True(t, c.StreamOpen())
}

func TestCloseStream_DoesNotEmitClosed(t *testing.T) {
	c, fs, log := openTestStream(t)
	fs.nextFrame(t)

	c.CloseStream()
	assert.False(t, c.StreamOpen())
	assert.Equal(t, StateAuthenticated, c.State())

	time.Sleep(50 * time.Millisecond)
	assert.NotContains(t, log.kinds(), EventStreamClosed)
}

func TestSendCommand(t *testing.T) {
	c, fs, _ := openTestStream(t)
	fs.nextFrame(t) // auth

	cmd := ChangeModeCommand{
		Event:     "change_mode",
		Mode:      "manual",
		DeviceID:  "d1",
		Timestamp: "2026-10-14T12:00:00.000Z",
		Stations:  []StationRun{{Station: 2, RunTime: 5}},
	}
	require.NoError(t, c.SendCommand(cmd))

	assert.JSONEq(t,
		`{"event":"change_mode","mode":"manual","device_id":"d1","timestamp":"2026-10-14T12:00:00.000Z","stations":[{"station":2,"run_time":5}]}`,
		string(fs.nextFrame(t)))
}

func TestSendCommand_NotOpen(t *testing.T) {
	c := newTestClient(t, "", "")
	authenticate(c, "tok-123")

	err := c.SendCommand(ChangeModeCommand{Event: "change_mode", Stations: []StationRun{}})
	assert.ErrorIs(t, err, ErrStreamNotOpen)
}

func TestClose_InvalidatesSession(t *testing.T) {
	c, fs, _ := openTestStream(t)
	fs.nextFrame(t)

	require.NoError(t, c.Close())
	assert.False(t, c.IsAuthenticated())
	assert.False(t, c.StreamOpen())
	assert.Equal(t, StateUnauthenticated, c.State())
	assert.ErrorIs(t, c.SendCommand(ChangeModeCommand{}), ErrStreamNotOpen)
}

func TestOpenStream_DialFinishedAfterCloseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	firstDone := make(chan struct{})
	var requests, live atomic.Int32
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first := requests.Add(1) == 1
		if first {
			defer close(firstDone)
			<-release
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		live.Add(1)
		defer live.Add(-1)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, "", "ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/events")
	authenticate(c, "tok-123")

	firstErr := make(chan error, 1)
	go func() { firstErr <- c.OpenStream(context.Background()) }()
	require.Eventually(t, func() bool { return requests.Load() == 1 }, waitTimeout, 5*time.Millisecond)

	c.CloseStream()
	require.NoError(t, c.OpenStream(context.Background()))
	require.Eventually(t, func() bool { return live.Load() == 1 }, waitTimeout, 5*time.Millisecond)

	close(release)
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrStreamSuperseded)
	case <-time.After(waitTimeout):
		t.Fatal("first OpenStream did not return")
	}
	select {
	case <-firstDone:
	case <-time.After(waitTimeout):
		t.Fatal("superseded connection was not closed")
	}

	assert.Equal(t, int32(1), live.Load(), "only the second stream stays open")
	assert.True(t, c.StreamOpen())
	assert.Equal(t, StateStreamOpen, c.State())
}
