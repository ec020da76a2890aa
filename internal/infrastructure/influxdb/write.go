package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// TelemetryMeasurement is the measurement name for device samples.
const TelemetryMeasurement = "device_telemetry"

// WriteTelemetry queues one device sample.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Failures surface through the SetOnError callback.
//
// Example:
//
//	client.WriteTelemetry("alpha", 45.2, 60.1, sample.At)
func (c *Client) WriteTelemetry(deviceID string, cpu, mem float64, at time.Time) {
	c.WritePointWithTime(TelemetryMeasurement,
		map[string]string{"device_id": deviceID},
		map[string]interface{}{"cpu": cpu, "mem": mem},
		at,
	)
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
// It is a no-op once the client is closed.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
	c.points.Add(1)
}
