// Package orbit is a client for the Orbit B-hyve cloud.
//
// It covers the three things the bridge needs from the cloud:
//   - session login (POST /v1/session)
//   - the device snapshot (GET /v1/devices?user_id=...)
//   - the event stream (a WebSocket on /v1/events) used both to receive
//     device events and to send watering commands
//
// # State Machine
//
//	Unauthenticated -> Authenticating -> Authenticated -> StreamConnecting -> StreamOpen
//	Authenticating -> Unauthenticated   (login rejected or failed)
//	StreamOpen -> Authenticated         (stream dropped; the caller reopens it)
//
// Login is never retried by this package. The stream is never reopened by
// this package either; a drop is reported as EventStreamClosed.
//
// # Events
//
// Lifecycle and data events are delivered to a single EventHandler set
// with SetEventHandler. Stream events are delivered from the stream's read
// goroutine, so handlers must not block for long.
//
// # Usage
//
//	client := orbit.New(cfg.Orbit)
//	client.SetEventHandler(func(ev orbit.Event) { ... })
//	if _, err := client.Authenticate(ctx, email, password); err != nil {
//	    return err
//	}
//	devices, err := client.ListDevices(ctx)
//	...
//	if err := client.OpenStream(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
package orbit
