package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when the recorder is switched off.
	ErrDisabled = errors.New("influxdb: recorder disabled")

	// ErrConnectionFailed wraps a failed startup ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned once the client has been closed.
	ErrNotConnected = errors.New("influxdb: client closed")

	// ErrWriteFailed wraps batch write failures delivered to SetOnError.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
