package orbit

import "errors"

// Domain-specific errors for cloud operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAuthFailed is returned when login does not produce a session.
	ErrAuthFailed = errors.New("orbit: authentication failed")

	// ErrCredentialsRejected is wrapped when the cloud answers 401 or 403.
	ErrCredentialsRejected = errors.New("orbit: credentials rejected")

	// ErrNotAuthenticated is returned when an operation needs a session.
	ErrNotAuthenticated = errors.New("orbit: not authenticated")

	// ErrDeviceFetch is returned when the device list cannot be fetched or decoded.
	ErrDeviceFetch = errors.New("orbit: device fetch failed")

	// ErrUnexpectedStatus is wrapped for non-2xx REST responses.
	ErrUnexpectedStatus = errors.New("orbit: unexpected HTTP status")

	// ErrStreamDial is returned when the event stream cannot be opened.
	ErrStreamDial = errors.New("orbit: stream dial failed")

	// ErrStreamSuperseded is returned by an OpenStream whose dial finished
	// after CloseStream; the new connection is closed.
	ErrStreamSuperseded = errors.New("orbit: stream open superseded")

	// ErrStreamNotOpen is returned by SendCommand when no stream is active.
	// The command is dropped, not buffered.
	ErrStreamNotOpen = errors.New("orbit: stream not open")

	// ErrSendFailed is returned when a frame cannot be written to the stream.
	ErrSendFailed = errors.New("orbit: send failed")
)
