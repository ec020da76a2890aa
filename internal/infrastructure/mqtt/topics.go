package mqtt

import "strings"

// DefaultTopicPrefix is the root of every netpulse topic.
const DefaultTopicPrefix = "netpulse"

// Topic categories below the prefix.
const (
	categoryTelemetry = "telemetry"
	categoryStatus    = "status"
	categorySystem    = "system"
)

// Topics builds netpulse topic names under a configurable prefix.
//
//	t := mqtt.Topics{Prefix: "netpulse"}
//	t.Telemetry("alpha") // "netpulse/telemetry/alpha"
//	t.AllStatus()        // "netpulse/status/+"
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

func (t Topics) root() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

func (t Topics) join(parts ...string) string {
	return t.root() + "/" + strings.Join(parts, "/")
}

// Telemetry is where samples for deviceID are mirrored.
func (t Topics) Telemetry(deviceID string) string {
	return t.join(categoryTelemetry, deviceID)
}

// AllTelemetry matches the telemetry topic of every device.
func (t Topics) AllTelemetry() string {
	return t.join(categoryTelemetry, "+")
}

// Status is where operators (or devices) report a status for deviceID.
func (t Topics) Status(deviceID string) string {
	return t.join(categoryStatus, deviceID)
}

// AllStatus matches the status topic of every device.
func (t Topics) AllStatus() string {
	return t.join(categoryStatus, "+")
}

// SystemStatus carries the retained online/offline presence of the server.
func (t Topics) SystemStatus() string {
	return t.join(categorySystem, "status")
}

// SystemHealth carries periodic retained hub health reports.
func (t Topics) SystemHealth() string {
	return t.join(categorySystem, "health")
}

// All matches every topic under the prefix.
func (t Topics) All() string {
	return t.root() + "/#"
}

// DeviceFromStatus extracts the device id from a concrete status topic.
func (t Topics) DeviceFromStatus(topic string) (string, bool) {
	return t.deviceFrom(categoryStatus, topic)
}

// DeviceFromTelemetry extracts the device id from a concrete telemetry topic.
func (t Topics) DeviceFromTelemetry(topic string) (string, bool) {
	return t.deviceFrom(categoryTelemetry, topic)
}

func (t Topics) deviceFrom(category, topic string) (string, bool) {
	prefix := t.join(category) + "/"
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	id := strings.TrimPrefix(topic, prefix)
	if id == "" || strings.ContainsAny(id, "/+#") {
		return "", false
	}
	return id, true
}
