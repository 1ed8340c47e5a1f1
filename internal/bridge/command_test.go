package bridge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 14, 7, 30, 0, 123_000_000, time.FixedZone("CEST", 2*60*60))

func TestBuildChangeModeCommand_On(t *testing.T) {
	for _, minutes := range []float64{1, 15, 999} {
		cmd := BuildChangeModeCommand("d1", 2, ZoneCommand{State: "ON", On: true, Time: minutes}, fixedNow)

		require.Len(t, cmd.Stations, 1)
		assert.Equal(t, 2, cmd.Stations[0].Station)
		assert.Equal(t, minutes, cmd.Stations[0].RunTime)
		assert.Equal(t, "change_mode", cmd.Event)
		assert.Equal(t, "manual", cmd.Mode)
		assert.Equal(t, "d1", cmd.DeviceID)
	}
}

func TestBuildChangeModeCommand_Off(t *testing.T) {
	cmd := BuildChangeModeCommand("d1", 2, ZoneCommand{State: "off"}, fixedNow)

	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"event":"change_mode","mode":"manual","device_id":"d1","timestamp":"2026-10-14T05:30:00.123Z","stations":[]}`,
		string(data))
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "2026-10-14T05:30:00.123Z", FormatTimestamp(fixedNow))
	assert.Equal(t, "2026-01-02T03:04:05.000Z", FormatTimestamp(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}
