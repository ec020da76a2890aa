// Package mqttbridge connects the realtime hub to an MQTT broker.
//
// Outbound, every producer sample is mirrored as retained JSON on
// {prefix}/telemetry/{device}, and hub health is published periodically on
// {prefix}/system/health. Inbound, status reports on {prefix}/status/{device}
// become notifications for that device's group, exactly as if an operator
// had called the HTTP status endpoint.
//
// A status payload is either plain text ("degraded") or JSON:
//
//	{"status": "degraded", "timestamp": "2026-03-01T12:00:00Z"}
//
// The bridge is a telemetry.Recorder, so the producer drives it directly.
package mqttbridge
