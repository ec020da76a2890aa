// Package wire is the JSON codec for the realtime channel.
//
// Every websocket text frame carries one Message:
//
//	{"type":"invocation","id":"7","target":"JoinDeviceGroup","arguments":["alpha"]}
//	{"type":"completion","id":"7"}
//	{"type":"invocation","target":"ReceiveTelemetry","arguments":[{"deviceId":"alpha","cpu":45.2,"mem":60.1,"at":"..."}]}
//	{"type":"invocation","target":"ReceiveNotification","arguments":["maintenance"]}
//	{"type":"ping"}
//
// Completions echo the invocation id and carry an error string on failure.
package wire
