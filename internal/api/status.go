package api

import (
	"net/http"
	"runtime"
	"time"
)

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Bus           BusInfo        `json:"bus"`
	Cloud         CloudInfo      `json:"cloud"`
	Runtime       RuntimeMetrics `json:"runtime"`
}

// BusInfo describes the broker connection.
type BusInfo struct {
	Connected     bool   `json:"connected"`
	State         string `json:"state"`
	Subscriptions int    `json:"subscriptions"`
}

// CloudInfo describes the B-hyve session.
type CloudInfo struct {
	State   string `json:"state"`
	Devices int    `json:"devices"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

const bytesPerMB = 1024 * 1024

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	writeJSON(w, http.StatusOK, StatusResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Bus: BusInfo{
			Connected:     s.bus.IsConnected(),
			State:         s.bus.State().String(),
			Subscriptions: s.bus.SubscriptionCount(),
		},
		Cloud: CloudInfo{
			State:   s.bridge.CloudState().String(),
			Devices: s.bridge.DeviceCount(),
		},
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
	})
}
