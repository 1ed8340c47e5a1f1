package mqtt

import (
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps outbound payloads. Device details are the largest
// messages the bridge sends and stay well below it.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for paho to hand it off.
//
// Nothing is queued while the client is offline: the message is dropped
// and ErrNotConnected returned. Topics must be non-empty and wildcard-free
// and QoS at most 2. An empty payload is allowed; the bridge publishes one
// for a device that is not watering.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		c.getLogger().Debug("MQTT publish dropped while offline", "topic", topic)
		return ErrNotConnected
	}

	return awaitToken(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// awaitToken waits up to defaultPublishTimeout for token and wraps any
// failure in sentinel.
func awaitToken(token pahomqtt.Token, sentinel error) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: no acknowledgement within %v", sentinel, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
