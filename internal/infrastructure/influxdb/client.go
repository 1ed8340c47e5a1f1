package influxdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/billchurch/bhyve-mqtt/internal/infrastructure/config"
)

const (
	connectPingTimeout = 10 * time.Second
	healthPingTimeout  = 5 * time.Second

	defaultBatchSize            = 100
	defaultFlushIntervalSeconds = 10
)

// Client records bridge events to a single InfluxDB bucket.
//
// Points go through the library's batching write API, so the Record
// methods never block the bridge. Failures surface asynchronously on the
// callback installed with SetOnError.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	closed  atomic.Bool
	onError atomic.Pointer[func(error)]
}

// Connect pings the server and starts the batching writer.
// It returns ErrDisabled when the recorder is switched off.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))
	if err := ping(ctx, client, connectPingTimeout); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	go c.forwardErrors(c.writeAPI.Errors())
	return c, nil
}

// writeOptions maps the batch settings onto client options, filling in
// defaults for unset values.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch, flush := cfg.BatchSize, cfg.FlushInterval
	if batch <= 0 {
		batch = defaultBatchSize
	}
	if flush <= 0 {
		flush = defaultFlushIntervalSeconds
	}
	// #nosec G115 -- both values are positive here
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(time.Duration(flush) * time.Second / time.Millisecond))
}

func ping(ctx context.Context, client influxdb2.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("ping: %w", err)
	case !healthy:
		return fmt.Errorf("ping: server not healthy")
	}
	return nil
}

// forwardErrors drains the write API error channel until the client is
// closed, handing each failure to the current callback.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		if cb := c.onError.Load(); cb != nil {
			(*cb)(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetOnError installs the callback for asynchronous write failures.
func (c *Client) SetOnError(cb func(err error)) {
	if cb == nil {
		c.onError.Store(nil)
		return
	}
	c.onError.Store(&cb)
}

// IsConnected reports whether the client is open. It does not ping.
func (c *Client) IsConnected() bool {
	return c != nil && c.client != nil && !c.closed.Load()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := ping(ctx, c.client, healthPingTimeout); err != nil {
		return fmt.Errorf("influxdb: health check: %w", err)
	}
	return nil
}

// Flush sends buffered points now. No-op once closed.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writeAPI.Flush()
	}
}

// Close flushes pending points and releases the client. It is safe to
// call on a nil client and more than once.
func (c *Client) Close() error {
	if c == nil || c.client == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
