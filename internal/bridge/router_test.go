package bridge

import (
	"errors"
	"testing"
)

func TestRouter_Route(t *testing.T) {
	r := NewRouter("bhyve")

	tests := []struct {
		topic   string
		want    Route
		wantErr bool
	}{
		{topic: "bhyve/device/abc/zone/3/set", want: Route{Kind: RouteZoneSet, DeviceID: "abc", Station: 3}},
		{topic: "bhyve/device/abc/zone/0/set", want: Route{Kind: RouteZoneSet, DeviceID: "abc", Station: 0}},
		{topic: "bhyve/device/abc/zone/12/set", want: Route{Kind: RouteZoneSet, DeviceID: "abc", Station: 12}},
		{topic: "bhyve/device/5d9f-ab/zone/007/set", want: Route{Kind: RouteZoneSet, DeviceID: "5d9f-ab", Station: 7}},
		{topic: "bhyve/device/refresh", want: Route{Kind: RouteDeviceRefresh}},
		{topic: "bhyve/device/abc/refresh", want: Route{Kind: RouteDeviceRefresh, DeviceID: "abc"}},

		{topic: "bhyve/device//zone/3/set", wantErr: true},
		{topic: "bhyve/device/abc/zone/x/set", wantErr: true},
		{topic: "bhyve/device/abc/zone/-1/set", wantErr: true},
		{topic: "bhyve/device/abc/zone//set", wantErr: true},
		{topic: "bhyve/device/abc/zone/+3/set", wantErr: true},
		{topic: "bhyve/device/abc/zone/99999999999999999999/set", wantErr: true},
		{topic: "bhyve/device//refresh", wantErr: true},

		{topic: "bhyve/device/abc/zone/3", want: Route{Kind: RouteUnrecognized}},
		{topic: "bhyve/device/abc/status", want: Route{Kind: RouteUnrecognized}},
		{topic: "bhyve/device/abc/zone/3/set/extra", want: Route{Kind: RouteUnrecognized}},
		{topic: "bhyve/online", want: Route{Kind: RouteUnrecognized}},
		{topic: "other/device/abc/zone/3/set", want: Route{Kind: RouteUnrecognized}},
		{topic: "bhyvex/device/refresh", want: Route{Kind: RouteUnrecognized}},
		{topic: "", want: Route{Kind: RouteUnrecognized}},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, err := r.Route(tt.topic)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTopic) {
					t.Fatalf("Route(%q) error = %v, want ErrInvalidTopic", tt.topic, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Route(%q) error = %v", tt.topic, err)
			}
			if got != tt.want {
				t.Errorf("Route(%q) = %+v, want %+v", tt.topic, got, tt.want)
			}
		})
	}
}

func TestRouter_NestedPrefix(t *testing.T) {
	r := NewRouter("home/garden/bhyve/")

	got, err := r.Route("home/garden/bhyve/device/d1/zone/2/set")
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	want := Route{Kind: RouteZoneSet, DeviceID: "d1", Station: 2}
	if got != want {
		t.Errorf("Route() = %+v, want %+v", got, want)
	}

	got, _ = r.Route("bhyve/device/d1/zone/2/set")
	if got.Kind != RouteUnrecognized {
		t.Errorf("default prefix routed under custom prefix: %+v", got)
	}
}

func TestTopics(t *testing.T) {
	topics := NewTopics("bhyve")

	tests := []struct {
		got  string
		want string
	}{
		{topics.Online(), "bhyve/online"},
		{topics.Alive(), "bhyve/alive"},
		{topics.Devices(), "bhyve/devices"},
		{topics.Message(), "bhyve/message"},
		{topics.Refresh(), "bhyve/device/refresh"},
		{topics.DeviceStatus("d1"), "bhyve/device/d1/status"},
		{topics.DeviceDetails("d1"), "bhyve/device/d1/details"},
		{topics.DeviceRefresh("d1"), "bhyve/device/d1/refresh"},
		{topics.DeviceMessage("d1"), "bhyve/device/d1/message"},
		{topics.Zone("d1", 2), "bhyve/device/d1/zone/2"},
		{topics.ZoneSet("d1", 2), "bhyve/device/d1/zone/2/set"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestTopics_RouterInverse(t *testing.T) {
	topics := NewTopics("bhyve")
	r := NewRouter("bhyve")

	got, err := r.Route(topics.ZoneSet("d1", 4))
	if err != nil || got != (Route{Kind: RouteZoneSet, DeviceID: "d1", Station: 4}) {
		t.Errorf("Route(ZoneSet) = %+v, %v", got, err)
	}
	got, err = r.Route(topics.DeviceRefresh("d1"))
	if err != nil || got != (Route{Kind: RouteDeviceRefresh, DeviceID: "d1"}) {
		t.Errorf("Route(DeviceRefresh) = %+v, %v", got, err)
	}
	got, err = r.Route(topics.Refresh())
	if err != nil || got != (Route{Kind: RouteDeviceRefresh}) {
		t.Errorf("Route(Refresh) = %+v, %v", got, err)
	}
}
