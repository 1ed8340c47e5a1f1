package mqtt

import "fmt"

// Subscribe registers handler for topic.
//
// Only the first call for a topic has any effect: it records the topic in
// the tracker and, when connected, submits it to the broker. Later calls
// return nil and keep the first handler. While disconnected the topic is
// only recorded; the replay on the next connect submits it.
//
// A rejected or unacknowledged submission returns ErrSubscribeFailed but
// the topic stays tracked, so the next reconnect retries it.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: nil handler for %q", ErrSubscribeFailed, topic)
	}

	if !c.tracker.Add(topic, qos, handler) {
		return nil
	}
	if !c.IsConnected() {
		c.getLogger().Debug("MQTT subscription deferred until connected", "topic", topic)
		return nil
	}

	if err := awaitToken(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), ErrSubscribeFailed); err != nil {
		return err
	}
	c.getLogger().Debug("MQTT subscribed", "topic", topic, "qos", qos)
	return nil
}

// SubscriptionCount returns the number of tracked topics.
func (c *Client) SubscriptionCount() int {
	return c.tracker.Len()
}

// HasSubscription reports whether topic is tracked. It compares the exact
// string and does not match wildcards.
func (c *Client) HasSubscription(topic string) bool {
	return c.tracker.Has(topic)
}
