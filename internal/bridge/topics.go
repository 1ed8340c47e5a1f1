package bridge

import (
	"strconv"
	"strings"
)

// Topics builds the bridge's topic names under a prefix.
//
//	<prefix>/online                          "true"/"false", retained
//	<prefix>/alive                           ISO-8601 timestamp
//	<prefix>/devices                         JSON array of device ids
//	<prefix>/message                         stream frames without a device id
//	<prefix>/device/refresh                  subscribe: refresh everything
//	<prefix>/device/<id>/status              watering status or empty
//	<prefix>/device/<id>/details             device record, retained
//	<prefix>/device/<id>/refresh             subscribe: refresh
//	<prefix>/device/<id>/message             stream frames for the device
//	<prefix>/device/<id>/zone/<station>      zone record
//	<prefix>/device/<id>/zone/<station>/set  subscribe: zone command
type Topics struct {
	prefix string
}

// NewTopics returns the topic builder for prefix. A trailing slash is dropped.
func NewTopics(prefix string) Topics {
	return Topics{prefix: strings.TrimRight(prefix, "/")}
}

// Prefix returns the topic prefix.
func (t Topics) Prefix() string { return t.prefix }

func (t Topics) Online() string  { return t.prefix + "/online" }
func (t Topics) Alive() string   { return t.prefix + "/alive" }
func (t Topics) Devices() string { return t.prefix + "/devices" }
func (t Topics) Message() string { return t.prefix + "/message" }
func (t Topics) Refresh() string { return t.prefix + "/device/refresh" }

func (t Topics) device(id string) string {
	return t.prefix + "/device/" + id
}

func (t Topics) DeviceStatus(id string) string  { return t.device(id) + "/status" }
func (t Topics) DeviceDetails(id string) string { return t.device(id) + "/details" }
func (t Topics) DeviceRefresh(id string) string { return t.device(id) + "/refresh" }
func (t Topics) DeviceMessage(id string) string { return t.device(id) + "/message" }

// Zone returns the zone data topic.
func (t Topics) Zone(id string, station int) string {
	return t.device(id) + "/zone/" + strconv.Itoa(station)
}

// ZoneSet returns the zone control topic.
func (t Topics) ZoneSet(id string, station int) string {
	return t.Zone(id, station) + "/set"
}
