package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/netpulse/internal/hub"
	"github.com/nerrad567/netpulse/internal/infrastructure/logging"
	"github.com/nerrad567/netpulse/internal/infrastructure/mqtt"
	"github.com/nerrad567/netpulse/internal/telemetry"
)

const defaultQoS = 1

// MQTTClient is the broker surface the bridge needs. *mqtt.Client
// satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishContext(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Notifier delivers notifications to a device group. *hub.Publisher
// satisfies it.
type Notifier interface {
	NotifyDevice(deviceID string, n telemetry.Notification) (int, error)
}

// StatsSource reports hub counters for health messages. *hub.Broadcaster
// satisfies it.
type StatsSource interface {
	Stats() hub.Stats
}

// Options configures a Bridge.
type Options struct {
	Client   MQTTClient
	Notifier Notifier
	Topics   mqtt.Topics

	// QoS for published samples and the status subscription.
	QoS byte

	// Stats and HealthInterval enable periodic health publishing when
	// both are set.
	Stats          StatsSource
	HealthInterval time.Duration

	Logger *logging.Logger
	Now    func() time.Time
}

// Bridge mirrors samples to the broker and turns status reports from the
// broker into device notifications.
//
// All methods are safe for concurrent use.
type Bridge struct {
	client   MQTTClient
	notifier Notifier
	topics   mqtt.Topics
	qos      byte
	stats    StatsSource
	interval time.Duration
	logger   *logging.Logger
	now      func() time.Time
	started  time.Time

	mirrored atomic.Int64
	ingested atomic.Int64
	losses   atomic.Int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a bridge. Call Start to subscribe and begin health reporting.
func New(opts Options) (*Bridge, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("mqtt client is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if opts.QoS == 0 {
		opts.QoS = defaultQoS
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Bridge{
		client:   opts.Client,
		notifier: opts.Notifier,
		topics:   opts.Topics,
		qos:      opts.QoS,
		stats:    opts.Stats,
		interval: opts.HealthInterval,
		logger:   opts.Logger,
		now:      opts.Now,
		started:  opts.Now(),
	}, nil
}

// Start subscribes to status reports and starts the health loop.
// Starting a running bridge is a no-op.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}

	topic := b.topics.AllStatus()
	if err := b.client.Subscribe(topic, b.qos, b.handleMessage); err != nil {
		return fmt.Errorf("subscribe to status: %w", err)
	}
	b.logger.Info("mqtt bridge subscribed", "topic", topic)

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.running = true

	if b.stats != nil && b.interval > 0 {
		b.wg.Add(1)
		go b.healthLoop(ctx)
	}
	return nil
}

// Stop ends health reporting and drops the status subscription.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.cancel()
	b.mu.Unlock()

	b.wg.Wait()

	if err := b.client.Unsubscribe(b.topics.AllStatus()); err != nil {
		b.logger.Debug("mqtt bridge unsubscribe failed", "error", err)
	}
	b.logger.Info("mqtt bridge stopped",
		"samples_mirrored", b.mirrored.Load(),
		"statuses_ingested", b.ingested.Load())
}

// Record mirrors s to its device's telemetry topic as a retained message.
// It returns as soon as ctx ends, even while the broker acknowledgement is
// still outstanding.
func (b *Bridge) Record(ctx context.Context, s telemetry.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(newTelemetryMessage(s))
	if err != nil {
		return fmt.Errorf("encoding sample: %w", err)
	}
	if err := b.client.PublishContext(ctx, b.topics.Telemetry(s.DeviceID), payload, b.qos, true); err != nil {
		return fmt.Errorf("mirroring sample for %s: %w", s.DeviceID, err)
	}
	b.mirrored.Add(1)
	return nil
}

// handleMessage routes a status report to the device's group.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	deviceID, ok := b.topics.DeviceFromStatus(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	status, at, err := parseStatus(payload, b.now())
	if err != nil {
		return fmt.Errorf("device %s: %w", deviceID, err)
	}

	sent, err := b.notifier.NotifyDevice(deviceID, telemetry.StatusNotification(deviceID, status, at))
	if err != nil {
		return fmt.Errorf("notifying %s: %w", deviceID, err)
	}
	b.ingested.Add(1)
	b.logger.Debug("status ingested", "device_id", deviceID, "status", status, "recipients", sent)
	return nil
}

// ConnectionLost counts a dropped broker session. Register it with
// mqtt.Client.SetOnDisconnect; the next health message reports the total.
func (b *Bridge) ConnectionLost(err error) {
	n := b.losses.Add(1)
	b.logger.Debug("mqtt bridge saw connection loss", "error", err, "losses", n)
}

// ConnectionLosses returns how many broker sessions have dropped.
func (b *Bridge) ConnectionLosses() int64 {
	return b.losses.Load()
}

// Mirrored returns how many samples have been published to the broker.
func (b *Bridge) Mirrored() int64 {
	return b.mirrored.Load()
}

// Ingested returns how many status reports have been delivered to the hub.
func (b *Bridge) Ingested() int64 {
	return b.ingested.Load()
}

// IsConnected reports the broker connection state.
func (b *Bridge) IsConnected() bool {
	return b.client.IsConnected()
}
