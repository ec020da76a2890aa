package hub

import (
	"fmt"
	"sync"
)

// Sink is the transport end of one connection.
//
// Send is only ever called from the connection's drain goroutine, so
// implementations need not be safe for concurrent Send calls. Close is
// called once, after the last Send.
type Sink interface {
	Send(msg []byte) error
	Close() error
}

// conn is one registered connection and its outbound queue.
//
// The mutex guards closed and the queue send so that no message is
// enqueued once teardown has begun.
type conn struct {
	id    string
	sink  Sink
	queue chan []byte
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

func newConn(id string, sink Sink, bufferSize int) *conn {
	return &conn{
		id:    id,
		sink:  sink,
		queue: make(chan []byte, bufferSize),
		done:  make(chan struct{}),
	}
}

// enqueue offers msg to the outbound queue without blocking.
func (c *conn) enqueue(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// shutdown stops accepting messages. The drain goroutine flushes what is
// already queued, then closes the sink. Returns false if already shut down.
func (c *conn) shutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	close(c.queue)
	return true
}

// drain writes queued messages to the sink until the queue is closed.
// After the first send error the remaining messages are discarded and
// counted as failed deliveries.
func (c *conn) drain(b *Broadcaster) {
	defer close(c.done)

	var broken error
	for msg := range c.queue {
		if broken != nil {
			b.recordFailure(c.id, broken)
			continue
		}
		if err := c.sink.Send(msg); err != nil {
			broken = fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
			b.recordFailure(c.id, broken)
			continue
		}
		b.delivered.Add(1)
	}

	if err := c.sink.Close(); err != nil {
		b.logger.Debug("closing connection sink", "conn_id", c.id, "error", err)
	}
}
