package bridge

import (
	"fmt"
	"strconv"
	"strings"
)

// RouteKind classifies an inbound topic.
type RouteKind int

const (
	RouteUnrecognized RouteKind = iota
	RouteZoneSet
	RouteDeviceRefresh
)

// String returns the route name used in logs.
func (k RouteKind) String() string {
	switch k {
	case RouteZoneSet:
		return "zone_set"
	case RouteDeviceRefresh:
		return "device_refresh"
	default:
		return "unrecognized"
	}
}

// Route is the result of classifying a topic.
//
// DeviceID is empty for a refresh of all devices. Station is set only for
// RouteZoneSet.
type Route struct {
	Kind     RouteKind
	DeviceID string
	Station  int
}

// Router maps inbound topics to intents. It holds no state besides the
// prefix.
type Router struct {
	devicePrefix string
}

// NewRouter returns a router for topics under prefix. The prefix may itself
// contain slashes.
func NewRouter(prefix string) *Router {
	return &Router{devicePrefix: strings.TrimRight(prefix, "/") + "/device/"}
}

// Route classifies topic.
//
// Topics outside the control surface return RouteUnrecognized and no
// error. A control topic with an empty device id, or a station that is not
// a plain decimal number, returns ErrInvalidTopic.
func (r *Router) Route(topic string) (Route, error) {
	rest, ok := strings.CutPrefix(topic, r.devicePrefix)
	if !ok {
		return Route{Kind: RouteUnrecognized}, nil
	}
	if rest == "refresh" {
		return Route{Kind: RouteDeviceRefresh}, nil
	}

	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[1] == "refresh":
		if parts[0] == "" {
			return Route{}, fmt.Errorf("%w: %q: empty device id", ErrInvalidTopic, topic)
		}
		return Route{Kind: RouteDeviceRefresh, DeviceID: parts[0]}, nil

	case len(parts) == 4 && parts[1] == "zone" && parts[3] == "set":
		if parts[0] == "" {
			return Route{}, fmt.Errorf("%w: %q: empty device id", ErrInvalidTopic, topic)
		}
		station, err := parseStation(parts[2])
		if err != nil {
			return Route{}, fmt.Errorf("%w: %q: %w", ErrInvalidTopic, topic, err)
		}
		return Route{Kind: RouteZoneSet, DeviceID: parts[0], Station: station}, nil
	}

	return Route{Kind: RouteUnrecognized}, nil
}

// parseStation accepts only ASCII digits; signs, spaces and exponents are
// rejected.
func parseStation(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty station")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("station %q is not a non-negative integer", s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("station %q out of range", s)
	}
	return n, nil
}
