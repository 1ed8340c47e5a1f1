package orbit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// closeWait bounds the close handshake on CloseStream.
	closeWait = time.Second

	// maxFrameSize bounds inbound frames (1MB).
	maxFrameSize = 1 << 20

	eventAppConnection = "app_connection"
)

// pingFrame is the application-level keepalive the cloud expects.
var pingFrame = []byte(`{"event":"ping"}`)

type authFrame struct {
	Event string `json:"event"`
	Token string `json:"orbit_session_token"`
}

// frameHeader is the part of an inbound frame used for routing.
type frameHeader struct {
	Event    string `json:"event"`
	DeviceID string `json:"device_id"`
}

// stream is one open WebSocket connection.
type stream struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func newStream(conn *websocket.Conn) *stream {
	conn.SetReadLimit(maxFrameSize)
	return &stream{conn: conn, done: make(chan struct{})}
}

func (s *stream) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// close tears the connection down once.
func (s *stream) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// closeGracefully sends a close frame before tearing down.
func (s *stream) closeGracefully() {
	s.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
	s.writeMu.Unlock()
	s.close()
}

// OpenStream opens the event stream and authenticates it with the session
// token. Opening while a stream is open or opening is a no-op.
//
// Once open, a ping frame is sent every ping interval and every inbound
// JSON frame is emitted as EventMessage. When the connection drops,
// EventStreamClosed is emitted and the client returns to Authenticated.
//
// Parameters:
//   - ctx: Bounds the handshake, together with the client timeout
//
// Returns:
//   - error: ErrNotAuthenticated, ErrStreamDial, ErrSendFailed, or
//     ErrStreamSuperseded when CloseStream ran during the dial
func (c *Client) OpenStream(ctx context.Context) error {
	c.mu.Lock()
	if c.stream != nil || c.state == StateStreamConnecting {
		c.mu.Unlock()
		return nil
	}
	if !c.session.Valid() {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	token := c.session.Token
	c.state = StateStreamConnecting
	c.openGen++
	gen := c.openGen
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(dialCtx, c.streamURL, nil)
	if err != nil {
		c.abortStreamConnect(gen)
		err = fmt.Errorf("%w: %w", ErrStreamDial, err)
		c.emit(Event{Kind: EventError, Err: err})
		return err
	}
	s := newStream(conn)

	auth, err := json.Marshal(authFrame{Event: eventAppConnection, Token: token})
	if err == nil {
		err = s.write(auth)
	}
	if err != nil {
		s.close()
		c.abortStreamConnect(gen)
		err = fmt.Errorf("%w: authenticating stream: %w", ErrSendFailed, err)
		c.emit(Event{Kind: EventError, Err: err})
		return err
	}

	c.mu.Lock()
	if c.state != StateStreamConnecting || c.openGen != gen {
		// Closed, logged out or reopened while dialing.
		valid := c.session.Valid()
		c.mu.Unlock()
		s.close()
		if !valid {
			return ErrNotAuthenticated
		}
		return ErrStreamSuperseded
	}
	c.stream = s
	c.state = StateStreamOpen
	c.mu.Unlock()

	c.getLogger().Info("orbit stream open", "url", c.streamURL)
	c.emit(Event{Kind: EventStreamOpen})

	go c.pingLoop(s)
	go c.readLoop(s)
	return nil
}

// abortStreamConnect undoes StreamConnecting after a failed open, unless a
// later open owns it.
func (c *Client) abortStreamConnect(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateStreamConnecting && c.openGen == gen {
		c.state = c.settledStateLocked()
	}
}

// SendCommand writes cmd to the stream as one text frame.
//
// Delivery is fire-and-forget: the cloud sends no acknowledgment.
//
// Returns:
//   - error: ErrStreamNotOpen (command dropped) or ErrSendFailed
func (c *Client) SendCommand(cmd ChangeModeCommand) error {
	c.mu.RLock()
	s := c.stream
	c.mu.RUnlock()
	if s == nil {
		return ErrStreamNotOpen
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	if err := s.write(data); err != nil {
		s.close()
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	c.getLogger().Debug("orbit command sent", "device_id", cmd.DeviceID, "stations", len(cmd.Stations))
	return nil
}

// CloseStream closes the stream, if open, without emitting EventStreamClosed.
func (c *Client) CloseStream() {
	c.mu.Lock()
	s := c.stream
	c.stream = nil
	c.openGen++ // an in-flight open is discarded when its dial returns
	if c.state == StateStreamOpen || c.state == StateStreamConnecting {
		c.state = c.settledStateLocked()
	}
	c.mu.Unlock()

	if s != nil {
		s.closeGracefully()
	}
}

// pingLoop sends the keepalive frame until the stream closes.
func (c *Client) pingLoop(s *stream) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.write(pingFrame); err != nil {
				c.getLogger().Warn("orbit stream ping failed", "error", err)
				// The read loop observes the closed connection.
				s.close()
				return
			}
		}
	}
}

// readLoop emits inbound frames until the connection fails.
func (c *Client) readLoop(s *stream) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			c.streamClosed(s, err)
			return
		}

		if !json.Valid(data) {
			c.getLogger().Warn("orbit stream frame is not JSON, skipped", "size", len(data))
			continue
		}

		// Frames that are not objects, or carry odd field types, are still
		// forwarded; they just have no routing header.
		var hdr frameHeader
		_ = json.Unmarshal(data, &hdr)

		c.emit(Event{
			Kind: EventMessage,
			Message: StreamMessage{
				Event:    hdr.Event,
				DeviceID: hdr.DeviceID,
				Raw:      json.RawMessage(data),
			},
		})
	}
}

// streamClosed handles a dropped connection. EventStreamClosed is emitted
// only when s is still the current stream, so CloseStream stays quiet.
func (c *Client) streamClosed(s *stream, err error) {
	s.close()

	c.mu.Lock()
	current := c.stream == s
	if current {
		c.stream = nil
		if c.state == StateStreamOpen {
			c.state = c.settledStateLocked()
		}
	}
	c.mu.Unlock()

	if !current {
		return
	}

	c.getLogger().Warn("orbit stream closed", "error", err)
	c.emit(Event{Kind: EventStreamClosed, Err: err})
}
