package telemetry

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// groupPrefix namespaces device groups inside the broadcaster.
const groupPrefix = "device:"

// Sample is one synthesized measurement for a device.
//
// Samples are values: they are copied and forwarded, never mutated.
type Sample struct {
	DeviceID string    `json:"deviceId"`
	CPU      float64   `json:"cpu"`
	Mem      float64   `json:"mem"`
	At       time.Time `json:"at"`
}

// NewSample builds a sample with cpu and mem rounded to one decimal and the
// timestamp normalised to UTC.
func NewSample(deviceID string, cpu, mem float64, at time.Time) Sample {
	return Sample{
		DeviceID: deviceID,
		CPU:      Round1(cpu),
		Mem:      Round1(mem),
		At:       at.UTC(),
	}
}

// Validate checks the sample carries a device and percentages in [0,100].
func (s Sample) Validate() error {
	if strings.TrimSpace(s.DeviceID) == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidSample)
	}
	if s.CPU < 0 || s.CPU > 100 || math.IsNaN(s.CPU) {
		return fmt.Errorf("%w: cpu %v out of range", ErrInvalidSample, s.CPU)
	}
	if s.Mem < 0 || s.Mem > 100 || math.IsNaN(s.Mem) {
		return fmt.Errorf("%w: mem %v out of range", ErrInvalidSample, s.Mem)
	}
	if s.At.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidSample)
	}
	return nil
}

// Notification is an informational message pushed to clients.
type Notification struct {
	Text string `json:"text"`
}

// StatusNotification formats the notification sent when an operator
// reports a device status.
func StatusNotification(deviceID, status string, at time.Time) Notification {
	return Notification{
		Text: fmt.Sprintf("Status updated for %s: %s at %s", deviceID, status, at.UTC().Format(time.RFC3339)),
	}
}

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// DeviceGroup returns the broadcaster group for a device.
func DeviceGroup(deviceID string) string {
	return groupPrefix + deviceID
}

// DeviceFromGroup extracts the device id from a group name.
// ok is false for groups that are not device groups.
func DeviceFromGroup(group string) (deviceID string, ok bool) {
	if !strings.HasPrefix(group, groupPrefix) {
		return "", false
	}
	return strings.TrimPrefix(group, groupPrefix), true
}
