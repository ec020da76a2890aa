// Package influxdb mirrors telemetry samples into InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes, and health monitoring.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTelemetry("alpha", 45.2, 60.1, time.Now())
//
// # Error Handling
//
// Writes never block the caller. Batch failures are delivered to the
// SetOnError callback; connection and health check errors are returned.
package influxdb
