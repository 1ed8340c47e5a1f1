package mqtt

import "errors"

// Connection errors.
var (
	ErrInvalidBroker    = errors.New("mqtt: invalid broker address")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrNotConnected     = errors.New("mqtt: not connected")

	// ErrAuthRejected is fatal: the same credentials are never retried.
	ErrAuthRejected = errors.New("mqtt: broker rejected credentials")

	// ErrRetriesExhausted ends the process once the reconnect bound is hit.
	ErrRetriesExhausted = errors.New("mqtt: reconnect retries exhausted")
)

// Message errors.
var (
	ErrInvalidTopic    = errors.New("mqtt: invalid topic")
	ErrInvalidQoS      = errors.New("mqtt: qos must be 0, 1 or 2")
	ErrPublishFailed   = errors.New("mqtt: publish failed")
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")
)
