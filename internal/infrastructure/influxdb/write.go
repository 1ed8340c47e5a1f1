package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementZoneCommand = "zone_command"
	measurementStreamEvent = "stream_event"
)

// RecordZoneCommand records a zone command that was sent to the cloud.
func (c *Client) RecordZoneCommand(deviceID string, station int, on bool, runTime float64, at time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]any{"on": on}
	if on {
		fields["run_time"] = runTime
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementZoneCommand,
		tags("device_id", deviceID, "station", strconv.Itoa(station)),
		fields,
		at,
	))
}

// RecordStreamEvent records one frame received from the cloud stream.
// Frames without a device id are recorded without the tag.
func (c *Client) RecordStreamEvent(deviceID, event string, at time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementStreamEvent,
		tags("device_id", deviceID, "event", event),
		map[string]any{"count": 1},
		at,
	))
}

// tags builds a tag set from key/value pairs, dropping empty values.
func tags(kv ...string) map[string]string {
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			out[kv[i]] = kv[i+1]
		}
	}
	return out
}
