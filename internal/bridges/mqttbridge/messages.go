package mqttbridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/netpulse/internal/telemetry"
)

// maxStatusLength bounds status text taken from the bus.
const maxStatusLength = 256

// StatusMessage is a device status report received from the bus.
type StatusMessage struct {
	Status    string     `json:"status"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// TelemetryMessage is the payload mirrored for every sample.
type TelemetryMessage struct {
	DeviceID  string  `json:"device_id"`
	CPU       float64 `json:"cpu"`
	Mem       float64 `json:"mem"`
	Timestamp string  `json:"timestamp"`
}

// HealthMessage is the periodic hub health payload.
type HealthMessage struct {
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Connections   int    `json:"connections"`
	Groups        int    `json:"groups"`
	Delivered     int64  `json:"delivered"`
	Dropped       int64  `json:"dropped"`
	Mirrored      int64  `json:"samples_mirrored"`
	Ingested      int64  `json:"statuses_ingested"`
	Losses        int64  `json:"connection_losses"`
}

func newTelemetryMessage(s telemetry.Sample) TelemetryMessage {
	return TelemetryMessage{
		DeviceID:  s.DeviceID,
		CPU:       s.CPU,
		Mem:       s.Mem,
		Timestamp: s.At.UTC().Format(time.RFC3339Nano),
	}
}

// parseStatus accepts a JSON StatusMessage or bare status text. When the
// payload carries no timestamp, now is used.
func parseStatus(payload []byte, now time.Time) (string, time.Time, error) {
	trimmed := bytes.TrimSpace(payload)

	var msg StatusMessage
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return "", time.Time{}, fmt.Errorf("%w: %w", ErrInvalidStatus, err)
		}
	} else {
		msg.Status = string(trimmed)
	}

	status := strings.TrimSpace(msg.Status)
	if status == "" {
		return "", time.Time{}, fmt.Errorf("%w: status is required", ErrInvalidStatus)
	}
	if len(status) > maxStatusLength {
		return "", time.Time{}, fmt.Errorf("%w: status longer than %d bytes", ErrInvalidStatus, maxStatusLength)
	}

	at := now
	if msg.Timestamp != nil && !msg.Timestamp.IsZero() {
		at = *msg.Timestamp
	}
	return status, at, nil
}
