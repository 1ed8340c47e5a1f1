package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/billchurch/bhyve-mqtt/internal/infrastructure/config"
)

// newPahoClient is swapped in tests for a fake transport.
var newPahoClient = pahomqtt.NewClient

// Client wraps paho.mqtt.golang with the bridge's connection policy.
//
// It provides connection management, message publishing, idempotent
// subscription handling, and bounded automatic reconnection.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client      pahomqtt.Client
	options     *pahomqtt.ClientOptions
	cfg         config.MQTTConfig
	clientID    string
	statusTopic string

	// tracker holds every subscription for replay on reconnect.
	tracker *SubscriptionTracker

	// state is the current connection state; see State.
	state  State
	connMu sync.RWMutex

	// retries counts reconnect attempts since the last successful connect.
	retries atomic.Int64

	// fatal receives at most one error, when the client enters StateFailed.
	fatal     chan error
	fatalOnce sync.Once
	closing   atomic.Bool

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library.
// They should not block for extended periods.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload (typically JSON)
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// New builds a client without connecting it.
//
// Callbacks should be registered before Connect so the first connection
// is observed.
//
// Parameters:
//   - cfg: MQTT configuration
//   - statusTopic: Retained online/offline topic, also used for the LWT
//
// Returns:
//   - *Client: Client ready for Connect
//   - error: If the broker address is invalid
func New(cfg config.MQTTConfig, statusTopic string) (*Client, error) {
	if statusTopic == "" {
		return nil, fmt.Errorf("%w: status topic", ErrInvalidTopic)
	}

	clientID := newClientID(cfg.Broker.ClientIDPrefix)
	opts, err := buildClientOptions(cfg, clientID)
	if err != nil {
		return nil, err
	}
	configureLWT(opts, statusTopic)

	c := &Client{
		cfg:         cfg,
		options:     opts,
		clientID:    clientID,
		statusTopic: statusTopic,
		tracker:     NewSubscriptionTracker(),
		fatal:       make(chan error, 1),
		logger:      nopLogger{},
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.handleReconnecting()
	})

	c.client = newPahoClient(opts)
	return c, nil
}

// Connect establishes the first connection to the broker.
//
// Attempts are spaced by the reconnect period and bounded by the configured
// maximum retry count. A credential rejection stops retrying at once. Both
// outcomes move the client to StateFailed and are also delivered on Fatal.
//
// Parameters:
//   - ctx: Cancels the retry loop (the client returns to StateDisconnected)
//
// Returns:
//   - error: ErrAuthRejected, ErrRetriesExhausted, or a cancelled context
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	attempts := 0
	maxRetries := max(c.cfg.Reconnect.MaxRetries, 1)
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.GetReconnectPeriod()), uint64(maxRetries-1)),
		ctx,
	)

	err := backoff.RetryNotify(func() error {
		attempts++
		return c.attemptConnect()
	}, bo, func(err error, next time.Duration) {
		c.getLogger().Warn("MQTT connect attempt failed",
			"attempt", attempts,
			"max_retries", maxRetries,
			"retry_in", next,
			"error", err,
		)
	})

	switch {
	case err == nil:
		c.retries.Store(0)
		if c.State() == StateConnecting {
			c.setState(StateConnected)
		}
		return nil
	case errors.Is(err, ErrAuthRejected):
		c.fail(err)
		return err
	case ctx.Err() != nil:
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	default:
		err = fmt.Errorf("%w (%d attempts): %w", ErrRetriesExhausted, attempts, err)
		c.fail(err)
		return err
	}
}

// attemptConnect performs one connection attempt.
func (c *Client) attemptConnect() error {
	token := c.client.Connect()
	// paho bounds the attempt with ConnectTimeout; allow a little slack.
	if !token.WaitTimeout(c.cfg.GetConnectTimeout() + time.Second) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, c.cfg.GetConnectTimeout())
	}
	if err := token.Error(); err != nil {
		if isAuthRejection(token, err) {
			return backoff.Permanent(fmt.Errorf("%w: %w", ErrAuthRejected, err))
		}
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return nil
}

// isAuthRejection reports whether a connect failure was a CONNACK refusal
// for bad credentials (return code 4) or missing authorisation (code 5).
func isAuthRejection(token pahomqtt.Token, err error) bool {
	if ct, ok := token.(*pahomqtt.ConnectToken); ok {
		switch ct.ReturnCode() {
		case packets.ErrRefusedBadUsernameOrPassword, packets.ErrRefusedNotAuthorised:
			return true
		}
	}
	return errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) ||
		errors.Is(err, packets.ErrorRefusedNotAuthorised)
}

// handleConnect is called when the connection is established.
//
// Order matters: subscriptions are replayed and the online status is
// published before the OnConnect callback runs.
func (c *Client) handleConnect() {
	if c.State() == StateFailed || c.closing.Load() {
		return
	}

	c.retries.Store(0)
	c.setState(StateConnected)

	n := c.restoreSubscriptions()
	c.getLogger().Info("MQTT connected", "client_id", c.clientID, "resubscribed", n)

	c.publishOnlineStatus(payloadOnline)

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleConnectionLost is called when an established connection drops.
// paho reconnects on its own; the reconnecting handler counts the attempts.
func (c *Client) handleConnectionLost(err error) {
	if c.State() != StateFailed && !c.closing.Load() {
		c.setState(StateReconnecting)
	}
	c.getLogger().Warn("MQTT connection lost", "error", err)

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// handleReconnecting is called by paho before every reconnect attempt.
//
// paho's auto-reconnect loop keeps the result of each attempt to itself.
// The reconnecting and connection-attempt hooks both run before the dial,
// so a CONNACK credential refusal here cannot be told apart from a network
// failure. It costs one attempt and becomes fatal at MaxRetries. Only the
// initial Connect, which reads the ConnectToken, fails on it immediately.
func (c *Client) handleReconnecting() {
	if c.State() == StateFailed || c.closing.Load() {
		return
	}

	n := c.retries.Add(1)
	c.setState(StateReconnecting)
	c.getLogger().Warn("MQTT reconnecting",
		"attempt", n,
		"max_retries", c.cfg.Reconnect.MaxRetries,
	)

	if n >= int64(c.cfg.Reconnect.MaxRetries) {
		c.fail(fmt.Errorf("%w (%d attempts)", ErrRetriesExhausted, n))
		// Disconnect waits on paho internals that are busy calling us.
		go c.client.Disconnect(0)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() int {
	return c.tracker.Replay(func(topic string, qos byte, handler MessageHandler) {
		// Fire-and-forget; a failure is retried wholesale on the next reconnect.
		c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	})
}

// publishOnlineStatus publishes the bridge status to the status topic.
func (c *Client) publishOnlineStatus(payload string) pahomqtt.Token {
	return c.client.Publish(c.statusTopic, 0, true, payload)
}

// fail moves the client to StateFailed and reports err once on Fatal.
func (c *Client) fail(err error) {
	c.setState(StateFailed)
	c.fatalOnce.Do(func() {
		c.getLogger().Error("MQTT client failed", "error", err)
		c.fatal <- err
	})
}

// Fatal returns a channel that receives one error if the client reaches
// StateFailed. The process is expected to exit when it fires.
func (c *Client) Fatal() <-chan error {
	return c.fatal
}

// Close gracefully disconnects from the MQTT broker.
//
// It performs:
//  1. Publishes the offline status (retained) so subscribers see a clean stop
//  2. Disconnects from broker with a quiesce period
//
// Returns:
//   - error: Always nil (connection already closed is not an error)
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	c.closing.Store(true)

	if c.IsConnected() {
		token := c.publishOnlineStatus(payloadOffline)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	if c.State() != StateFailed {
		c.setState(StateDisconnected)
	}

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return fmt.Errorf("%w: state %s", ErrNotConnected, c.State())
	}

	return nil
}

// IsConnected reports whether publishes would currently be attempted.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected && c.client.IsConnected()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.state
}

// setState changes state unless the client has already failed.
func (c *Client) setState(s State) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.state == StateFailed {
		return
	}
	c.state = s
}

// ClientID returns the client identifier in use, including its random suffix.
func (c *Client) ClientID() string {
	return c.clientID
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect, after
// subscriptions have been replayed.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection events and handler errors.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = nopLogger{}
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger.
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.getLogger().Error("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.getLogger().Warn("MQTT handler returned error",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
