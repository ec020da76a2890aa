// Package telemetry defines the telemetry sample and notification values
// and the recorders that persist or mirror samples outside the realtime
// broadcast: a SQLite history store and a time-series writer adapter.
//
// Device groups are namespaced as "device:{id}" inside the broadcaster;
// DeviceGroup and DeviceFromGroup convert between the two forms.
package telemetry
