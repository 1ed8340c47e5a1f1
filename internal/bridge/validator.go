package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Run-time bounds in minutes, inclusive.
const (
	minRunTime = 1
	maxRunTime = 999
)

// ZoneCommand is a validated zone-control payload.
type ZoneCommand struct {
	// State is the state as sent: ON, OFF, on or off.
	State string
	// On is true when State is "on" in any case.
	On bool
	// Time is the run time in minutes, 0 when absent.
	Time float64
}

// ValidateCommand parses and checks a zone-control payload.
//
// Accepted shape:
//
//	{"state": "ON"|"OFF"|"on"|"off", "time": 1..999}
//
// time is required when state is on and range-checked whenever present.
// Other fields are ignored and never reach the command.
//
// Returns:
//   - ZoneCommand: The normalized command
//   - error: ErrMalformedPayload, or a *ValidationError
func ValidateCommand(payload []byte) (ZoneCommand, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return ZoneCommand{}, fmt.Errorf("%w: empty", ErrMalformedPayload)
	}

	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return ZoneCommand{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return ZoneCommand{}, &ValidationError{Constraint: "payload must be a JSON object"}
	}

	stateVal, ok := obj["state"]
	if !ok {
		return ZoneCommand{}, &ValidationError{Field: "state", Constraint: "is required"}
	}
	state, ok := stateVal.(string)
	if !ok {
		return ZoneCommand{}, &ValidationError{Field: "state", Constraint: "must be a string"}
	}
	switch state {
	case "ON", "OFF", "on", "off":
	default:
		return ZoneCommand{}, &ValidationError{Field: "state", Constraint: "must be one of ON, OFF, on, off"}
	}

	cmd := ZoneCommand{State: state, On: strings.EqualFold(state, "on")}

	timeVal, hasTime := obj["time"]
	if !hasTime {
		if cmd.On {
			return ZoneCommand{}, &ValidationError{Field: "time", Constraint: "is required when state is on"}
		}
		return cmd, nil
	}

	minutes, ok := timeVal.(float64)
	if !ok {
		return ZoneCommand{}, &ValidationError{Field: "time", Constraint: "must be a number"}
	}
	if minutes < minRunTime || minutes > maxRunTime {
		return ZoneCommand{}, &ValidationError{
			Field:      "time",
			Constraint: fmt.Sprintf("must be between %d and %d", minRunTime, maxRunTime),
		}
	}
	cmd.Time = minutes

	return cmd, nil
}
