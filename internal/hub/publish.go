package hub

import (
	"fmt"

	"github.com/nerrad567/netpulse/internal/telemetry"
	"github.com/nerrad567/netpulse/internal/wire"
)

// Publisher encodes telemetry events into wire frames and fans them out
// through a Broadcaster. Each event is encoded once per call, not per
// recipient.
type Publisher struct {
	b *Broadcaster
}

// NewPublisher creates a Publisher over b.
func NewPublisher(b *Broadcaster) *Publisher {
	return &Publisher{b: b}
}

// SampleToDevice sends s to the members of its device group.
func (p *Publisher) SampleToDevice(s telemetry.Sample) (int, error) {
	frame, err := wire.EncodeSample(s)
	if err != nil {
		return 0, err
	}
	return p.b.BroadcastToGroup(telemetry.DeviceGroup(s.DeviceID), frame)
}

// SampleToAll sends s to every connection.
func (p *Publisher) SampleToAll(s telemetry.Sample) (int, error) {
	frame, err := wire.EncodeSample(s)
	if err != nil {
		return 0, err
	}
	return p.b.BroadcastToAll(frame), nil
}

// NotifyDevice sends a notification to the members of deviceID's group.
func (p *Publisher) NotifyDevice(deviceID string, n telemetry.Notification) (int, error) {
	if deviceID == "" {
		return 0, newProtocolError(ErrInvalidGroup, "empty device id")
	}
	frame, err := wire.EncodeNotification(n.Text)
	if err != nil {
		return 0, fmt.Errorf("encoding notification: %w", err)
	}
	return p.b.BroadcastToGroup(telemetry.DeviceGroup(deviceID), frame)
}

// NotifyAll sends a notification to every connection.
func (p *Publisher) NotifyAll(n telemetry.Notification) (int, error) {
	frame, err := wire.EncodeNotification(n.Text)
	if err != nil {
		return 0, fmt.Errorf("encoding notification: %w", err)
	}
	return p.b.BroadcastToAll(frame), nil
}
