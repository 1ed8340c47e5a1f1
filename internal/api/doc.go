// Package api serves the bridge's status over HTTP.
//
// Routes:
//
//	GET /api/v1/health   200 while the bus is connected, 503 otherwise
//	GET /api/v1/status   bus, cloud and runtime status as JSON
//	GET /metrics         Prometheus exposition
//
// The server is optional and disabled by default. It follows the same
// lifecycle as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
