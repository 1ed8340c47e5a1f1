package mqtt

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/billchurch/bhyve-mqtt/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12

	// clientIDSuffixLen is the number of random hex characters appended to
	// the configured client id prefix.
	clientIDSuffixLen = 8

	// Status payloads published to the online topic.
	payloadOnline  = "true"
	payloadOffline = "false"
)

// normalizeBrokerURL turns a broker address into a URL paho can dial.
//
// The mqtt:// and mqtts:// schemes are mapped to tcp:// and ssl://, a bare
// host:port gets tcp://, and a missing port defaults to 1883 (8883 for TLS).
func normalizeBrokerURL(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidBroker)
	}
	if !strings.Contains(address, "://") {
		address = "tcp://" + address
	}

	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidBroker, err)
	}

	switch u.Scheme {
	case "mqtt", "tcp":
		u.Scheme = "tcp"
	case "mqtts", "ssl", "tls":
		u.Scheme = "ssl"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBroker, u.Scheme)
	}

	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidBroker, address)
	}
	if u.Port() == "" && (u.Scheme == "tcp" || u.Scheme == "ssl") {
		port := "1883"
		if u.Scheme == "ssl" {
			port = "8883"
		}
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}

	return u.String(), nil
}

// newClientID returns prefix_xxxxxxxx with a random hex suffix so that a
// restarted bridge never collides with its own stale session.
func newClientID(prefix string) string {
	if prefix == "" {
		prefix = "bhyve-mqtt"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:clientIDSuffixLen]
	return prefix + "_" + suffix
}

// buildClientOptions creates paho MQTT options from bridge config.
//
// This configures:
//   - Broker URL (tcp://, ssl://, ws:// or wss://)
//   - Random-suffixed client id
//   - Authentication credentials (if provided)
//   - Auto-reconnect at the configured reconnect period
//   - Keepalive and connect timeout
//   - TLS configuration for ssl:// brokers
//   - Clean session mode
func buildClientOptions(cfg config.MQTTConfig, clientID string) (*pahomqtt.ClientOptions, error) {
	brokerURL, err := normalizeBrokerURL(cfg.Broker.Address)
	if err != nil {
		return nil, err
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Clean session - subscriptions are replayed by the tracker instead
	opts.SetCleanSession(true)

	// The initial connection is retried by Connect so that attempts can be
	// counted and credential rejections stop immediately. Later drops are
	// handled by paho at a fixed period.
	period := cfg.GetReconnectPeriod()
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(period)
	opts.SetMaxReconnectInterval(period)

	opts.SetConnectTimeout(cfg.GetConnectTimeout())
	opts.SetKeepAlive(cfg.GetKeepAlive())

	if strings.HasPrefix(brokerURL, "ssl://") || strings.HasPrefix(brokerURL, "wss://") {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts, nil
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The broker publishes "false" to the status topic, retained, if the
// bridge disappears without a clean disconnect.
func configureLWT(opts *pahomqtt.ClientOptions, statusTopic string) {
	opts.SetWill(statusTopic, payloadOffline, 0, true)
}
