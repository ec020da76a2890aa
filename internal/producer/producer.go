package producer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/netpulse/internal/infrastructure/logging"
	"github.com/nerrad567/netpulse/internal/telemetry"
)

// Defaults for a zero Config.
const (
	DefaultInterval = time.Second

	// DefaultRecordQueueSize bounds samples waiting for the Recorder.
	DefaultRecordQueueSize = 64

	cpuMin, cpuMax = 20.0, 80.0
	memMin, memMax = 30.0, 80.0
)

// DefaultDevices is the roster used when Config.Devices is empty.
var DefaultDevices = []string{"alpha", "bravo", "charlie"}

// State is the producer lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Publisher delivers samples to realtime subscribers. *hub.Publisher
// satisfies it.
type Publisher interface {
	SampleToDevice(s telemetry.Sample) (int, error)
	SampleToAll(s telemetry.Sample) (int, error)
}

// Config configures a Producer.
type Config struct {
	Interval time.Duration
	Devices  []string

	// DualDelivery publishes every sample to its device group and then to
	// all connections. When false only the device group receives it.
	DualDelivery bool

	// Recorder, if set, receives every sample after it is published. It
	// runs on its own goroutine behind a queue of RecordQueueSize samples,
	// so a slow recorder drops samples instead of delaying ticks.
	Recorder        telemetry.Recorder
	RecordQueueSize int

	Logger *logging.Logger

	// Uniform returns a value in [lo, hi). Defaults to math/rand/v2.
	Uniform func(lo, hi float64) float64

	// Now defaults to time.Now.
	Now func() time.Time

	// Ticks overrides the interval ticker; used by tests.
	Ticks <-chan time.Time
}

// Stats counts producer activity.
type Stats struct {
	Ticks    int64 `json:"ticks"`
	Samples  int64 `json:"samples"`
	Failures int64 `json:"failures"`

	// RecordsDropped counts samples discarded because the record queue
	// was full.
	RecordsDropped int64 `json:"records_dropped"`
}

// Producer synthesizes one sample per device on every tick and publishes
// it. It runs Idle → Running → Stopped; Stopped is terminal.
type Producer struct {
	pub     Publisher
	cfg     Config
	devices []string
	logger  *logging.Logger

	state atomic.Int32

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	recDone chan struct{}

	// records is set once by Start before the loops launch.
	records chan telemetry.Sample

	ticks       atomic.Int64
	samples     atomic.Int64
	failures    atomic.Int64
	recsDropped atomic.Int64
}

// New validates cfg and returns an idle Producer.
func New(pub Publisher, cfg Config) (*Producer, error) {
	if pub == nil {
		return nil, fmt.Errorf("producer: publisher is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	devices := cfg.Devices
	if len(devices) == 0 {
		devices = DefaultDevices
	}
	for _, d := range devices {
		if strings.TrimSpace(d) == "" {
			return nil, fmt.Errorf("producer: empty device name in roster")
		}
	}
	if cfg.Uniform == nil {
		cfg.Uniform = func(lo, hi float64) float64 {
			return lo + rand.Float64()*(hi-lo) //nolint:gosec // synthetic data
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RecordQueueSize <= 0 {
		cfg.RecordQueueSize = DefaultRecordQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	return &Producer{
		pub:     pub,
		cfg:     cfg,
		devices: append([]string(nil), devices...),
		logger:  cfg.Logger.With("component", "producer"),
	}, nil
}

// Start moves the producer from Idle to Running and launches the tick
// loop. The first tick fires immediately. The loop ends when ctx is
// cancelled or Stop is called.
func (p *Producer) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("%w: producer is %s", ErrNotIdle, p.State())
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	var recDone chan struct{}
	if p.cfg.Recorder != nil {
		p.records = make(chan telemetry.Sample, p.cfg.RecordQueueSize)
		recDone = make(chan struct{})
	}

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.recDone = recDone
	p.mu.Unlock()

	if recDone != nil {
		go p.recordLoop(loopCtx, recDone)
	}
	go p.run(loopCtx, done)

	p.logger.Info("producer started",
		"interval", p.cfg.Interval.String(),
		"devices", p.devices,
		"dual_delivery", p.cfg.DualDelivery,
	)
	return nil
}

// Stop moves the producer to Stopped and waits for the tick loop to exit.
// It waits at most one interval for an in-flight Record call; samples
// still queued for the recorder are discarded. Stopping an idle producer
// prevents it from ever starting. Stop is idempotent.
func (p *Producer) Stop() {
	prev := State(p.state.Swap(int32(StateStopped)))

	p.mu.Lock()
	cancel, done, recDone := p.cancel, p.done, p.recDone
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if recDone != nil {
		timer := time.NewTimer(p.cfg.Interval)
		select {
		case <-recDone:
		case <-timer.C:
			p.logger.Warn("recorder still busy after stop", "waited", p.cfg.Interval.String())
		}
		timer.Stop()
	}
	if prev == StateRunning {
		p.logger.Info("producer stopped", "ticks", p.ticks.Load())
	}
}

// State returns the current lifecycle state.
func (p *Producer) State() State {
	return State(p.state.Load())
}

// Devices returns the roster.
func (p *Producer) Devices() []string {
	return append([]string(nil), p.devices...)
}

// Stats returns activity counters.
func (p *Producer) Stats() Stats {
	return Stats{
		Ticks:    p.ticks.Load(),
		Samples:  p.samples.Load(),
		Failures: p.failures.Load(),

		RecordsDropped: p.recsDropped.Load(),
	}
}

func (p *Producer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticks := p.cfg.Ticks
	if ticks == nil {
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			// Cancellation of the parent context also ends the lifecycle.
			p.state.Store(int32(StateStopped))
			return
		case <-ticks:
			p.tick(ctx)
		}
	}
}

// tick generates and publishes one sample per device. A failure for one
// device never prevents the remaining devices from being processed.
func (p *Producer) tick(ctx context.Context) {
	p.ticks.Add(1)
	for _, device := range p.devices {
		if ctx.Err() != nil {
			return
		}
		p.emit(device)
	}
}

func (p *Producer) emit(device string) {
	defer func() {
		if r := recover(); r != nil {
			p.failures.Add(1)
			p.logger.Error("panic publishing sample", "device_id", device, "panic", r)
		}
	}()

	s := p.Generate(device)
	p.samples.Add(1)

	if _, err := p.pub.SampleToDevice(s); err != nil {
		p.failures.Add(1)
		p.logger.Warn("group publish failed", "device_id", device, "error", err)
	}
	if p.cfg.DualDelivery {
		if _, err := p.pub.SampleToAll(s); err != nil {
			p.failures.Add(1)
			p.logger.Warn("all publish failed", "device_id", device, "error", err)
		}
	}

	if p.records != nil {
		select {
		case p.records <- s:
		default:
			p.recsDropped.Add(1)
			p.logger.Debug("record queue full, sample dropped", "device_id", device)
		}
	}
}

// recordLoop hands queued samples to the Recorder until ctx ends. Each
// call is bounded by one interval.
func (p *Producer) recordLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-p.records:
			p.record(ctx, s)
		}
	}
}

func (p *Producer) record(ctx context.Context, s telemetry.Sample) {
	defer func() {
		if r := recover(); r != nil {
			p.failures.Add(1)
			p.logger.Error("panic recording sample", "device_id", s.DeviceID, "panic", r)
		}
	}()

	recCtx, cancel := context.WithTimeout(ctx, p.cfg.Interval)
	defer cancel()
	if err := p.cfg.Recorder.Record(recCtx, s); err != nil {
		p.failures.Add(1)
		p.logger.Warn("recording sample failed", "device_id", s.DeviceID, "error", err)
	}
}

// Generate synthesizes one sample for device: cpu in [20,80), mem in
// [30,80), both rounded to one decimal, stamped now.
func (p *Producer) Generate(device string) telemetry.Sample {
	return telemetry.NewSample(
		device,
		p.cfg.Uniform(cpuMin, cpuMax),
		p.cfg.Uniform(memMin, memMax),
		p.cfg.Now(),
	)
}
