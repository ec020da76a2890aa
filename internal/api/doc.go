// Package api implements the netpulse control plane and realtime endpoint.
//
// This package provides:
//   - The websocket hub endpoint (default /hubs/network) speaking the wire
//     envelope from package wire
//   - Control-plane endpoints for health, device status notifications,
//     operator broadcasts, sample history, and metrics
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// Each upgraded websocket is registered with the injected hub.Broadcaster,
// which owns its outbound queue. The read pump turns JoinDeviceGroup and
// LeaveDeviceGroup invocations into group membership changes and answers
// them with completions; a keepalive goroutine sends protocol pings.
// Control-plane requests publish notifications through a hub.Publisher.
//
// # Graceful Degradation
//
// History, MQTT, InfluxDB, and producer dependencies are optional. Without
// a history store the history endpoint answers 503; metrics omit sections
// for absent backends.
package api
