package orbit

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"

	"github.com/billchurch/bhyve-mqtt/internal/infrastructure/config"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultPingInterval = 25 * time.Second

	// Circuit breaker around the REST endpoints.
	breakerName        = "orbit-rest"
	breakerMaxFailures = 5
	breakerOpenTimeout = 30 * time.Second
	breakerInterval    = 60 * time.Second
)

// Client talks to the B-hyve cloud on behalf of one account.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	baseURL      string
	streamURL    string
	timeout      time.Duration
	pingInterval time.Duration

	http    *http.Client
	dialer  *websocket.Dialer
	breaker *gobreaker.CircuitBreaker

	mu      sync.RWMutex
	state   State
	session Session
	stream  *stream
	openGen uint64 // bumped by each OpenStream and CloseStream

	onEvent EventHandler
	eventMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates an unauthenticated client. Zero values in cfg fall back to the
// public B-hyve endpoints, a 10s timeout and a 25s stream ping.
func New(cfg config.OrbitConfig) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		streamURL:    cfg.StreamURL,
		timeout:      cfg.GetTimeout(),
		pingInterval: cfg.GetPingInterval(),
		logger:       nopLogger{},
	}
	if c.baseURL == "" {
		c.baseURL = config.DefaultOrbitBaseURL
	}
	if c.streamURL == "" {
		c.streamURL = config.DefaultOrbitStreamURL
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.pingInterval <= 0 {
		c.pingInterval = defaultPingInterval
	}

	c.http = &http.Client{Timeout: c.timeout}
	c.dialer = &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.timeout,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     breakerName,
		Interval: breakerInterval,
		Timeout:  breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		// A rejected login is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || isCredentialRejection(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.getLogger().Warn("orbit circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return c
}

// State returns the current session state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsAuthenticated reports whether a session is held.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Valid()
}

// StreamOpen reports whether the event stream is open.
func (c *Client) StreamOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stream != nil
}

// Session returns a copy of the current session.
func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Close closes the stream and invalidates the session.
func (c *Client) Close() error {
	c.CloseStream()

	c.mu.Lock()
	c.session = Session{}
	c.state = StateUnauthenticated
	c.mu.Unlock()

	c.http.CloseIdleConnections()
	return nil
}

// clearSession drops the session after the cloud stops accepting it.
func (c *Client) clearSession() {
	c.mu.Lock()
	c.session = Session{}
	if c.stream == nil {
		c.state = StateUnauthenticated
	}
	c.mu.Unlock()
}

// settledStateLocked is the state to fall back to when no stream is open.
// The caller holds c.mu.
func (c *Client) settledStateLocked() State {
	if c.session.Valid() {
		return StateAuthenticated
	}
	return StateUnauthenticated
}

// SetEventHandler sets the callback that receives client events.
func (c *Client) SetEventHandler(handler EventHandler) {
	c.eventMu.Lock()
	c.onEvent = handler
	c.eventMu.Unlock()
}

// emit delivers ev to the event handler, if any.
func (c *Client) emit(ev Event) {
	c.eventMu.RLock()
	handler := c.onEvent
	c.eventMu.RUnlock()
	if handler != nil {
		handler(ev)
	}
}

// SetLogger sets a logger for session and stream events.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = nopLogger{}
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
