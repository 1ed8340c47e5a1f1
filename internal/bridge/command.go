package bridge

import (
	"time"

	"github.com/billchurch/bhyve-mqtt/internal/orbit"
)

const (
	eventChangeMode = "change_mode"
	modeManual      = "manual"

	// timestampLayout matches JavaScript's Date.toISOString.
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// BuildChangeModeCommand turns a validated zone command into the stream
// frame. An on command runs the one station; an off command carries an
// empty station list, which stops watering on the device.
func BuildChangeModeCommand(deviceID string, station int, cmd ZoneCommand, now time.Time) orbit.ChangeModeCommand {
	stations := []orbit.StationRun{}
	if cmd.On {
		stations = append(stations, orbit.StationRun{Station: station, RunTime: cmd.Time})
	}
	return orbit.ChangeModeCommand{
		Event:     eventChangeMode,
		Mode:      modeManual,
		DeviceID:  deviceID,
		Timestamp: FormatTimestamp(now),
		Stations:  stations,
	}
}

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
