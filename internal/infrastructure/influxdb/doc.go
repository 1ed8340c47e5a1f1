// Package influxdb records bridge activity to InfluxDB v2.
//
// Two measurements are written through the batched, non-blocking write
// API of influxdb-client-go:
//
//	zone_command  tags: device_id, station   fields: on, run_time
//	stream_event  tags: device_id, event     fields: count
//
// The recorder is optional. Connect returns ErrDisabled when the
// configuration does not enable it, and every write method is a no-op on a
// closed client.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("influx write", "error", err) })
//	client.RecordZoneCommand("d1", 2, true, 5, time.Now())
//
// Write failures are asynchronous and reach the SetOnError callback
// wrapped in ErrWriteFailed.
package influxdb
