package bridge

import "time"

// EventRecorder receives a copy of bridge traffic for time-series storage.
// Implementations must not block.
type EventRecorder interface {
	RecordZoneCommand(deviceID string, station int, on bool, runTime float64, at time.Time)
	RecordStreamEvent(deviceID, event string, at time.Time)
}

type nopRecorder struct{}

func (nopRecorder) RecordZoneCommand(string, int, bool, float64, time.Time) {}
func (nopRecorder) RecordStreamEvent(string, string, time.Time)             {}
