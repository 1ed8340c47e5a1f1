package orbit

import (
	"bytes"
	"encoding/json"
)

// State is the cloud session state.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateStreamConnecting
	StateStreamOpen
)

// String returns the snake_case state name used in logs and the status API.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateStreamConnecting:
		return "stream_connecting"
	case StateStreamOpen:
		return "stream_open"
	default:
		return "unknown"
	}
}

// Session is a live cloud login.
type Session struct {
	Token     string
	UserID    string
	BaseURL   string
	StreamURL string
}

// Valid reports whether the session carries a token and user id.
func (s Session) Valid() bool {
	return s.Token != "" && s.UserID != ""
}

// Device is one controller from the device snapshot.
//
// Raw holds the record exactly as the cloud sent it and is what the bridge
// publishes as device details.
type Device struct {
	ID     string
	Name   string
	Status DeviceStatus
	Zones  []Zone
	Raw    json.RawMessage
}

// DeviceStatus is the part of the device record the bridge inspects.
type DeviceStatus struct {
	// WateringStatus is present only while a zone is running.
	WateringStatus json.RawMessage `json:"watering_status"`
}

// Watering reports whether WateringStatus holds an object.
func (s DeviceStatus) Watering() bool {
	trimmed := bytes.TrimSpace(s.WateringStatus)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// Zone is one station of a device. Everything except the station number
// is passed through untouched in Raw.
type Zone struct {
	Station int
	Raw     json.RawMessage
}

// UnmarshalJSON decodes the fields the bridge needs and keeps the raw record.
func (d *Device) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID     string       `json:"id"`
		Name   string       `json:"name"`
		Status DeviceStatus `json:"status"`
		Zones  []Zone       `json:"zones"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.ID = aux.ID
	d.Name = aux.Name
	d.Status = aux.Status
	d.Zones = aux.Zones
	d.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// UnmarshalJSON decodes the station number and keeps the raw record.
func (z *Zone) UnmarshalJSON(data []byte) error {
	var aux struct {
		Station int `json:"station"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	z.Station = aux.Station
	z.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// ChangeModeCommand is the stream frame that starts or stops watering.
type ChangeModeCommand struct {
	Event     string       `json:"event"`
	Mode      string       `json:"mode"`
	DeviceID  string       `json:"device_id"`
	Timestamp string       `json:"timestamp"`
	Stations  []StationRun `json:"stations"`
}

// StationRun asks one station to run for RunTime minutes.
type StationRun struct {
	Station int     `json:"station"`
	RunTime float64 `json:"run_time"`
}

// StreamMessage is one inbound stream frame.
type StreamMessage struct {
	// Event is the frame's "event" field, empty if absent.
	Event string
	// DeviceID is the frame's "device_id" field, empty if absent.
	DeviceID string
	// Raw is the frame as received.
	Raw json.RawMessage
}

// EventKind identifies an Event.
type EventKind int

const (
	EventToken EventKind = iota + 1
	EventUserID
	EventDevices
	EventDeviceID
	EventStreamOpen
	EventMessage
	EventStreamClosed
	EventError
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventToken:
		return "token"
	case EventUserID:
		return "user_id"
	case EventDevices:
		return "devices"
	case EventDeviceID:
		return "device_id"
	case EventStreamOpen:
		return "stream_open"
	case EventMessage:
		return "message"
	case EventStreamClosed:
		return "stream_closed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a tagged lifecycle or data notification. Only the fields that
// belong to Kind are set.
type Event struct {
	Kind     EventKind
	Token    string
	UserID   string
	DeviceID string
	Devices  []Device
	Message  StreamMessage
	Err      error
}

// EventHandler receives client events.
type EventHandler func(Event)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
