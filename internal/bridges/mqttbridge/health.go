package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

func (b *Bridge) healthLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.reportHealth()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.reportHealth()
		}
	}
}

func (b *Bridge) reportHealth() {
	if !b.client.IsConnected() {
		return
	}
	if err := b.PublishHealth(); err != nil {
		b.logger.Warn("mqtt health publish failed", "error", err)
	}
}

// PublishHealth publishes one retained health message immediately.
func (b *Bridge) PublishHealth() error {
	now := b.now()
	msg := HealthMessage{
		Status:        "online",
		Timestamp:     now.UTC().Format(time.RFC3339),
		UptimeSeconds: int64(now.Sub(b.started).Seconds()),
		Mirrored:      b.mirrored.Load(),
		Ingested:      b.ingested.Load(),
		Losses:        b.losses.Load(),
	}
	if b.stats != nil {
		s := b.stats.Stats()
		msg.Connections = s.Connections
		msg.Groups = s.Groups
		msg.Delivered = s.Delivered
		msg.Dropped = s.Dropped
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding health: %w", err)
	}
	return b.client.Publish(b.topics.SystemHealth(), payload, b.qos, true)
}
