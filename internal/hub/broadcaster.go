package hub

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nerrad567/netpulse/internal/infrastructure/logging"
)

const (
	// DefaultSendBufferSize is the per-connection outbound queue depth.
	DefaultSendBufferSize = 256

	// MaxGroupLength bounds group names accepted by JoinGroup.
	MaxGroupLength = 128
)

// Options configures a Broadcaster.
type Options struct {
	// SendBufferSize is the outbound queue depth per connection.
	// Zero selects DefaultSendBufferSize.
	SendBufferSize int

	// Logger receives delivery failures and lifecycle events.
	// Nil selects a discarding logger.
	Logger *logging.Logger
}

// Stats is a point-in-time view of broadcaster counters.
type Stats struct {
	Connections int   `json:"connections"`
	Groups      int   `json:"groups"`
	Delivered   int64 `json:"delivered"`
	Dropped     int64 `json:"dropped"`
}

// Broadcaster owns the live connections, their group memberships, and
// per-connection outbound delivery.
//
// Each connection gets a bounded queue drained by its own goroutine, so a
// slow recipient only ever loses its own messages. Broadcasts never block
// and never report per-recipient failures to the caller.
//
// Lock ordering: b.mu is taken before any conn.mu, and is released before
// messages are enqueued.
type Broadcaster struct {
	registry   *Registry
	bufferSize int
	logger     *logging.Logger

	mu     sync.RWMutex
	conns  map[string]*conn
	closed bool

	delivered atomic.Int64
	dropped   atomic.Int64
}

// New creates a Broadcaster with its own group registry.
func New(opts Options) *Broadcaster {
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = DefaultSendBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Broadcaster{
		registry:   NewRegistry(),
		bufferSize: opts.SendBufferSize,
		logger:     opts.Logger,
		conns:      make(map[string]*conn),
	}
}

// Connect registers a new connection delivering through sink.
// The connection starts with no group membership.
func (b *Broadcaster) Connect(sink Sink) (string, error) {
	if sink == nil {
		return "", ErrNilSink
	}

	c := newConn(uuid.NewString(), sink, b.bufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", ErrClosed
	}
	b.conns[c.id] = c
	count := len(b.conns)
	b.mu.Unlock()

	go c.drain(b)

	b.logger.Debug("connection registered", "conn_id", c.id, "connections", count)
	return c.id, nil
}

// JoinGroup adds connID to group. Joining a group twice is a no-op.
func (b *Broadcaster) JoinGroup(connID, group string) error {
	if err := validateGroup(group); err != nil {
		return err
	}

	// Held exclusively so a concurrent Disconnect cannot interleave between
	// the existence check and the registry write.
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.conns[connID]; !ok {
		return newProtocolError(ErrUnknownConnection, connID)
	}
	b.registry.Join(connID, group)
	b.logger.Debug("group joined", "conn_id", connID, "group", group)
	return nil
}

// LeaveGroup removes connID from group. Leaving a group never joined is a no-op.
func (b *Broadcaster) LeaveGroup(connID, group string) error {
	if err := validateGroup(group); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.conns[connID]; !ok {
		return newProtocolError(ErrUnknownConnection, connID)
	}
	b.registry.Leave(connID, group)
	b.logger.Debug("group left", "conn_id", connID, "group", group)
	return nil
}

// BroadcastToGroup delivers msg to the members of group at the moment of
// the call. It returns how many recipients accepted the message into their
// queue. Only an invalid group name is reported as an error.
func (b *Broadcaster) BroadcastToGroup(group string, msg []byte) (int, error) {
	if err := validateGroup(group); err != nil {
		return 0, err
	}

	b.mu.RLock()
	ids := b.registry.MembersOf(group)
	targets := make([]*conn, 0, len(ids))
	for _, id := range ids {
		if c, ok := b.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	b.mu.RUnlock()

	return b.fanOut(targets, msg), nil
}

// BroadcastToAll delivers msg to every registered connection.
func (b *Broadcaster) BroadcastToAll(msg []byte) int {
	b.mu.RLock()
	targets := make([]*conn, 0, len(b.conns))
	for _, c := range b.conns {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	return b.fanOut(targets, msg)
}

// SendTo delivers msg to a single connection. Unlike broadcasts, failures
// are returned to the caller.
func (b *Broadcaster) SendTo(connID string, msg []byte) error {
	b.mu.RLock()
	c, ok := b.conns[connID]
	b.mu.RUnlock()

	if !ok {
		return newProtocolError(ErrUnknownConnection, connID)
	}
	if err := c.enqueue(msg); err != nil {
		b.recordFailure(connID, err)
		return err
	}
	return nil
}

// fanOut enqueues msg on each target, isolating per-recipient failures.
func (b *Broadcaster) fanOut(targets []*conn, msg []byte) int {
	sent := 0
	for _, c := range targets {
		if err := c.enqueue(msg); err != nil {
			b.recordFailure(c.id, err)
			continue
		}
		sent++
	}
	return sent
}

func (b *Broadcaster) recordFailure(connID string, err error) {
	b.dropped.Add(1)
	if errors.Is(err, ErrConnectionClosed) {
		// Lost a race with Disconnect; expected during teardown.
		b.logger.Debug("delivery skipped", "conn_id", connID, "error", err)
		return
	}
	b.logger.Warn("delivery failed", "conn_id", connID, "error", err)
}

// Disconnect removes connID from every group and releases its outbound
// queue. Messages already queued are flushed before the sink is closed.
// Disconnecting an unknown connection is a no-op.
func (b *Broadcaster) Disconnect(connID string) {
	b.mu.Lock()
	c, ok := b.conns[connID]
	if ok {
		delete(b.conns, connID)
	}
	groups := b.registry.DropConnection(connID)
	count := len(b.conns)
	b.mu.Unlock()

	if !ok {
		return
	}
	c.shutdown()
	<-c.done

	b.logger.Debug("connection removed", "conn_id", connID, "groups", groups, "connections", count)
}

// Close disconnects every connection and rejects further Connect calls.
// It returns once every drain goroutine has exited.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	conns := make([]*conn, 0, len(b.conns))
	for id, c := range b.conns {
		conns = append(conns, c)
		b.registry.DropConnection(id)
		delete(b.conns, id)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.shutdown()
	}
	for _, c := range conns {
		<-c.done
	}
	b.logger.Info("broadcaster closed", "connections", len(conns))
}

// IsConnected reports whether connID is registered.
func (b *Broadcaster) IsConnected(connID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.conns[connID]
	return ok
}

// ConnectionCount returns the number of registered connections.
func (b *Broadcaster) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// MembersOf returns a snapshot of group's connection ids.
func (b *Broadcaster) MembersOf(group string) []string {
	return b.registry.MembersOf(group)
}

// GroupsOf returns the groups connID belongs to.
func (b *Broadcaster) GroupsOf(connID string) []string {
	return b.registry.GroupsOf(connID)
}

// Groups returns member counts for every non-empty group.
func (b *Broadcaster) Groups() map[string]int {
	return b.registry.Groups()
}

// Stats returns current counters.
func (b *Broadcaster) Stats() Stats {
	return Stats{
		Connections: b.ConnectionCount(),
		Groups:      b.registry.GroupCount(),
		Delivered:   b.delivered.Load(),
		Dropped:     b.dropped.Load(),
	}
}

func validateGroup(group string) error {
	if strings.TrimSpace(group) == "" {
		return newProtocolError(ErrInvalidGroup, "empty group name")
	}
	if len(group) > MaxGroupLength {
		return newProtocolError(ErrInvalidGroup, "group name too long")
	}
	return nil
}
