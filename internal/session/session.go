package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/netpulse/internal/infrastructure/logging"
	"github.com/nerrad567/netpulse/internal/telemetry"
	"github.com/nerrad567/netpulse/internal/wire"
)

const (
	// DefaultInvokeTimeout bounds the wait for an invocation's completion.
	DefaultInvokeTimeout = 10 * time.Second

	inboundQueueSize = 64
)

// pendingCall is an invocation awaiting its completion.
type pendingCall struct {
	transport Transport
	done      chan error
}

// DefaultRetryDelays is the reconnect schedule: one attempt per entry,
// each preceded by its delay.
var DefaultRetryDelays = []time.Duration{0, 2 * time.Second, 10 * time.Second, 30 * time.Second}

// State is the session lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options configures a Session.
type Options struct {
	// URL is the hub websocket endpoint, e.g. ws://localhost:5000/hubs/network.
	URL string

	// Dialer defaults to WebsocketDialer{}.
	Dialer Dialer

	// BufferCapacity defaults to DefaultBufferCapacity.
	BufferCapacity int

	// RetryDelays defaults to DefaultRetryDelays when nil. An empty,
	// non-nil slice disables reconnection.
	RetryDelays []time.Duration

	// InvokeTimeout defaults to DefaultInvokeTimeout.
	InvokeTimeout time.Duration

	Logger *logging.Logger
}

// Session is the subscriber side of the hub. It keeps one transport open,
// subscribes to a device group, and buffers the samples it receives.
//
// When the transport drops unexpectedly the session walks its retry
// schedule and, once reconnected, joins its last group again before
// reporting Connected. Every buffer mutation happens on one consumer
// goroutine fed by a channel.
//
// Thread Safety: all methods are safe for concurrent use.
type Session struct {
	opts   Options
	dialer Dialer
	logger *logging.Logger
	buffer *Buffer
	ids    wire.IDSource

	mu        sync.Mutex
	state     State
	transport Transport
	lastGroup string
	pending   map[string]pendingCall
	cancel    context.CancelFunc

	wg sync.WaitGroup

	onStateChange  func(from, to State)
	onSample       func(telemetry.Sample)
	onNotification func(text string)
	callbackMu     sync.RWMutex
}

// New returns a disconnected session.
func New(opts Options) (*Session, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("session: url is required")
	}
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.RetryDelays == nil {
		opts.RetryDelays = DefaultRetryDelays
	}
	if opts.InvokeTimeout <= 0 {
		opts.InvokeTimeout = DefaultInvokeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	return &Session{
		opts:    opts,
		dialer:  opts.Dialer,
		logger:  opts.Logger.With("component", "session", "url", opts.URL),
		buffer:  NewBuffer(opts.BufferCapacity),
		pending: make(map[string]pendingCall),
	}, nil
}

// OnStateChange registers fn to be called after every state transition.
// fn runs on a session goroutine. It may call Stop or Start when the new
// state is Disconnected; for other transitions it must not call Stop.
func (s *Session) OnStateChange(fn func(from, to State)) {
	s.callbackMu.Lock()
	s.onStateChange = fn
	s.callbackMu.Unlock()
}

// OnSample registers fn to be called, on the consumer goroutine, after each
// sample is buffered. fn must not call Stop.
func (s *Session) OnSample(fn func(telemetry.Sample)) {
	s.callbackMu.Lock()
	s.onSample = fn
	s.callbackMu.Unlock()
}

// OnNotification registers fn as the notification sink. Without one,
// notifications are logged.
func (s *Session) OnNotification(fn func(text string)) {
	s.callbackMu.Lock()
	s.onNotification = fn
	s.callbackMu.Unlock()
}

// Start connects and joins group. It is a no-op unless the session is
// Disconnected. Cancelling ctx ends the session as Stop would.
func (s *Session) Start(ctx context.Context, group string) error {
	if strings.TrimSpace(group) == "" {
		return ErrEmptyGroup
	}

	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.lastGroup = group
	from := s.state
	s.state = StateConnecting
	// One slot for the consumer, one carried by Start into the supervisor.
	s.wg.Add(2)
	s.mu.Unlock()
	s.stateChanged(from, StateConnecting)

	inbound := make(chan telemetry.Sample, inboundQueueSize)
	go s.consume(runCtx, inbound)

	t, readErr, err := s.connect(runCtx, inbound)
	if err != nil {
		cancel()
		s.wg.Done()

		s.mu.Lock()
		s.cancel = nil
		from := s.state
		s.state = StateDisconnected
		s.mu.Unlock()
		s.stateChanged(from, StateDisconnected)
		return err
	}

	s.setState(StateConnected)
	s.logger.Info("session connected", "group", group)
	go s.supervise(runCtx, t, readErr, inbound)
	return nil
}

// Stop closes the transport and waits for the session goroutines to exit.
// Close errors are logged, never returned. Stop is idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.setState(StateDisconnected)
}

// Join subscribes to group and makes it the group restored after a
// reconnect.
func (s *Session) Join(ctx context.Context, group string) error {
	if strings.TrimSpace(group) == "" {
		return ErrEmptyGroup
	}
	t, err := s.current()
	if err != nil {
		return err
	}
	if err := s.invoke(ctx, t, wire.TargetJoinDeviceGroup, group); err != nil {
		return fmt.Errorf("joining %s: %w", group, err)
	}

	s.mu.Lock()
	s.lastGroup = group
	s.mu.Unlock()
	return nil
}

// Leave unsubscribes from group. Leaving the last joined group means
// nothing is restored after a reconnect.
func (s *Session) Leave(ctx context.Context, group string) error {
	if strings.TrimSpace(group) == "" {
		return ErrEmptyGroup
	}
	t, err := s.current()
	if err != nil {
		return err
	}
	if err := s.invoke(ctx, t, wire.TargetLeaveDeviceGroup, group); err != nil {
		return fmt.Errorf("leaving %s: %w", group, err)
	}

	s.mu.Lock()
	if s.lastGroup == group {
		s.lastGroup = ""
	}
	s.mu.Unlock()
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Group returns the group restored on reconnect, or "" if none.
func (s *Session) Group() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastGroup
}

// Samples returns the buffered samples, newest first.
func (s *Session) Samples() []telemetry.Sample {
	return s.buffer.Snapshot()
}

// Capacity returns the buffer capacity.
func (s *Session) Capacity() int {
	return s.buffer.Cap()
}

func (s *Session) current() (Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.transport == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, s.state)
	}
	return s.transport, nil
}

// connect dials, starts the read loop, and joins the last group.
func (s *Session) connect(ctx context.Context, inbound chan<- telemetry.Sample) (Transport, <-chan error, error) {
	t, err := s.dialer.Dial(ctx, s.opts.URL)
	if err != nil {
		if !errors.Is(err, ErrConnection) {
			err = fmt.Errorf("%w: %w", ErrConnection, err)
		}
		return nil, nil, err
	}

	s.mu.Lock()
	s.transport = t
	group := s.lastGroup
	s.mu.Unlock()

	readErr := s.serve(ctx, t, inbound)

	if group != "" {
		if err := s.invoke(ctx, t, wire.TargetJoinDeviceGroup, group); err != nil {
			s.release(t)
			<-readErr
			return nil, nil, fmt.Errorf("joining %s: %w", group, err)
		}
	}
	return t, readErr, nil
}

// supervise owns the connected transport until ctx ends or reconnection
// gives up. The final Disconnected transition is reported after the
// goroutine has released its WaitGroup slot, so a state callback may call
// Stop or Start.
func (s *Session) supervise(ctx context.Context, t Transport, readErr <-chan error, inbound chan<- telemetry.Sample) {
	from := s.superviseLoop(ctx, t, readErr, inbound)
	s.wg.Done()
	s.stateChanged(from, StateDisconnected)
}

func (s *Session) superviseLoop(ctx context.Context, t Transport, readErr <-chan error, inbound chan<- telemetry.Sample) State {
	for {
		var err error
		select {
		case err = <-readErr:
		case <-ctx.Done():
			s.release(t)
			<-readErr
			return s.endRun()
		}

		s.release(t)
		if ctx.Err() != nil {
			return s.endRun()
		}

		s.logger.Warn("connection lost", "error", err)
		s.setState(StateReconnecting)

		t, readErr, err = s.reconnect(ctx, inbound)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("giving up on connection", "error", err)
			}
			return s.endRun()
		}
		s.setState(StateConnected)
	}
}

// endRun cancels the current run and marks the session Disconnected so it
// can be started again. It returns the state it replaced; the caller
// reports the transition.
func (s *Session) endRun() State {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	from := s.state
	s.state = StateDisconnected
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return from
}

func (s *Session) reconnect(ctx context.Context, inbound chan<- telemetry.Sample) (Transport, <-chan error, error) {
	lastErr := ErrConnection
	for attempt, delay := range s.opts.RetryDelays {
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, nil, ctx.Err()
			case <-timer.C:
			}
		}

		t, readErr, err := s.connect(ctx, inbound)
		if err == nil {
			s.logger.Info("session reconnected", "attempt", attempt+1, "group", s.Group())
			return t, readErr, nil
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		lastErr = err
		s.logger.Warn("reconnect attempt failed", "attempt", attempt+1, "error", err)
	}
	return nil, nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, len(s.opts.RetryDelays), lastErr)
}

func (s *Session) serve(ctx context.Context, t Transport, inbound chan<- telemetry.Sample) <-chan error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.readLoop(ctx, t, inbound)
	}()
	return errc
}

func (s *Session) readLoop(ctx context.Context, t Transport, inbound chan<- telemetry.Sample) error {
	for {
		data, err := t.ReadMessage()
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrConnection, err)
			s.failPending(t, err)
			return err
		}
		s.handleFrame(ctx, t, data, inbound)
	}
}

func (s *Session) handleFrame(ctx context.Context, t Transport, data []byte, inbound chan<- telemetry.Sample) {
	msg, err := wire.Decode(data)
	if err != nil {
		s.logger.Warn("discarding frame", "error", err)
		return
	}

	switch msg.Type {
	case wire.TypeCompletion:
		s.complete(msg.ID, msg.Error)
	case wire.TypePing:
		if err := t.WriteMessage(wire.Pong); err != nil {
			s.logger.Debug("pong failed", "error", err)
		}
	case wire.TypePong:
	case wire.TypeInvocation:
		switch msg.Target {
		case wire.TargetReceiveTelemetry:
			sample, err := msg.SampleArg(0)
			if err != nil {
				s.logger.Warn("discarding telemetry", "error", err)
				return
			}
			select {
			case inbound <- sample:
			case <-ctx.Done():
			}
		case wire.TargetReceiveNotification:
			text, err := msg.StringArg(0)
			if err != nil {
				s.logger.Warn("discarding notification", "error", err)
				return
			}
			s.notify(text)
		default:
			s.logger.Debug("ignoring invocation", "target", msg.Target)
		}
	}
}

// consume is the only writer of the buffer.
func (s *Session) consume(ctx context.Context, inbound <-chan telemetry.Sample) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-inbound:
			s.buffer.Insert(sample)

			s.callbackMu.RLock()
			cb := s.onSample
			s.callbackMu.RUnlock()
			if cb != nil {
				cb(sample)
			}
		}
	}
}

func (s *Session) notify(text string) {
	s.callbackMu.RLock()
	cb := s.onNotification
	s.callbackMu.RUnlock()

	if cb == nil {
		s.logger.Info("notification received", "text", text)
		return
	}
	cb(text)
}

// invoke sends target(arg) on t and waits for its completion.
func (s *Session) invoke(ctx context.Context, t Transport, target, arg string) error {
	id := s.ids.Next()
	frame, err := wire.EncodeInvocation(id, target, arg)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	s.mu.Lock()
	s.pending[id] = pendingCall{transport: t, done: done}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := t.WriteMessage(frame); err != nil {
		return fmt.Errorf("%w: sending %s: %w", ErrConnection, target, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.opts.InvokeTimeout)
	defer cancel()

	select {
	case err := <-done:
		return err
	case <-waitCtx.Done():
		return fmt.Errorf("%w: awaiting %s: %w", ErrConnection, target, waitCtx.Err())
	}
}

func (s *Session) complete(id, errText string) {
	s.mu.Lock()
	call, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()

	if !ok {
		s.logger.Debug("completion for unknown invocation", "id", id)
		return
	}
	if errText != "" {
		call.done <- fmt.Errorf("%w: %s", ErrRejected, errText)
		return
	}
	call.done <- nil
}

// failPending resolves the invocations outstanding on t with cause.
func (s *Session) failPending(t Transport, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, call := range s.pending {
		if call.transport != t {
			continue
		}
		call.done <- cause
		delete(s.pending, id)
	}
}

// release detaches and closes t. Close errors are logged and swallowed.
func (s *Session) release(t Transport) {
	s.mu.Lock()
	if s.transport == t {
		s.transport = nil
	}
	s.mu.Unlock()

	if err := t.Close(); err != nil {
		s.logger.Debug("closing transport", "error", err)
	}
}

func (s *Session) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	s.stateChanged(from, to)
}

func (s *Session) stateChanged(from, to State) {
	if from == to {
		return
	}
	s.logger.Debug("session state changed", "from", from.String(), "to", to.String())

	s.callbackMu.RLock()
	cb := s.onStateChange
	s.callbackMu.RUnlock()
	if cb != nil {
		cb(from, to)
	}
}
