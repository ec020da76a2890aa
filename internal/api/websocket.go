package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/netpulse/internal/hub"
	"github.com/nerrad567/netpulse/internal/telemetry"
	"github.com/nerrad567/netpulse/internal/wire"
)

const (
	// closeGracePeriod bounds the close frame written on teardown.
	closeGracePeriod = time.Second

	// defaultPongTimeout (seconds) applies when the config leaves it unset.
	defaultPongTimeout = 30
)

// wsSink delivers hub frames over one websocket. gorilla/websocket allows a
// single concurrent writer, so frames and pings share a mutex.
type wsSink struct {
	conn      *websocket.Conn
	writeWait time.Duration

	mu     sync.Mutex
	closed bool
}

func (c *wsSink) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return hub.ErrConnectionClosed
	}
	//nolint:errcheck // Best-effort deadline; write error caught below
	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: %w", hub.ErrDeliveryFailed, err)
	}
	return nil
}

func (c *wsSink) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return hub.ErrConnectionClosed
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// Close writes a close frame and closes the socket. Closing twice is a no-op.
func (c *wsSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	//nolint:errcheck // Best-effort close message; peer may already be gone
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod))
	return c.conn.Close()
}

// handleWebSocket upgrades the request and registers the connection with
// the broadcaster. The connection starts with no group membership.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sink := &wsSink{
		conn:      conn,
		writeWait: time.Duration(s.wsCfg.PongTimeout) * time.Second,
	}
	connID, err := s.broadcaster.Connect(sink)
	if err != nil {
		s.logger.Warn("websocket rejected", "error", err)
		sink.Close() //nolint:errcheck // Best effort on rejected connection
		return
	}
	s.logger.Debug("websocket client connected", "conn_id", connID, "remote", r.RemoteAddr)

	done := make(chan struct{})
	s.wg.Add(2)
	go s.keepalive(connID, sink, done)
	go s.readPump(connID, sink, done)
}

// readPump reads invocations from the client until the socket fails, then
// removes the connection from every group.
func (s *Server) readPump(connID string, sink *wsSink, done chan struct{}) {
	defer s.wg.Done()
	defer func() {
		close(done)
		s.broadcaster.Disconnect(connID)
		s.logger.Debug("websocket client disconnected", "conn_id", connID)
	}()

	conn := sink.conn
	if s.wsCfg.MaxMessageSize > 0 {
		conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	}
	// Without pings an idle client sends nothing, so no read deadline applies.
	pingInterval := time.Duration(s.wsCfg.PingInterval) * time.Second
	pongWait := time.Duration(s.wsCfg.PongTimeout) * time.Second
	extendDeadline := func() {}
	if pingInterval > 0 {
		extendDeadline = func() {
			//nolint:errcheck // Best-effort deadline reset
			conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		}
		conn.SetPongHandler(func(string) error {
			extendDeadline()
			return nil
		})
	}
	extendDeadline()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "conn_id", connID, "error", err)
			} else {
				s.logger.Debug("websocket closed", "conn_id", connID, "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		extendDeadline()
		s.handleFrame(connID, message)
	}
}

// keepalive sends protocol-level pings until the read side ends or the
// server shuts down.
func (s *Server) keepalive(connID string, sink *wsSink, done <-chan struct{}) {
	defer s.wg.Done()

	interval := time.Duration(s.wsCfg.PingInterval) * time.Second
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-s.ctx.Done():
			// Closing the socket unblocks readPump, which disconnects.
			sink.Close() //nolint:errcheck // Best effort during shutdown
			return
		case <-ticker.C:
			if err := sink.ping(); err != nil {
				s.logger.Debug("websocket ping failed", "conn_id", connID, "error", err)
				sink.Close() //nolint:errcheck // Socket is already failing
				return
			}
		}
	}
}

// handleFrame processes one client frame. Invocations carrying an id are
// answered with a completion through the connection's own queue, so the
// reply is ordered with the pushes that follow it.
func (s *Server) handleFrame(connID string, data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		s.logger.Warn("invalid websocket frame", "conn_id", connID, "error", err)
		return
	}

	switch msg.Type {
	case wire.TypePing:
		s.reply(connID, wire.Pong)
	case wire.TypePong, wire.TypeCompletion:
	case wire.TypeInvocation:
		callErr := s.invoke(connID, msg)
		if callErr != nil {
			s.logger.Debug("invocation rejected", "conn_id", connID, "target", msg.Target, "error", callErr)
		}
		if msg.ID == "" {
			return
		}
		frame, err := wire.EncodeCompletion(msg.ID, callErr)
		if err != nil {
			s.logger.Error("encoding completion", "error", err)
			return
		}
		s.reply(connID, frame)
	}
}

// invoke runs a client-to-server call.
func (s *Server) invoke(connID string, msg wire.Message) error {
	switch msg.Target {
	case wire.TargetJoinDeviceGroup, wire.TargetLeaveDeviceGroup:
		deviceID, err := msg.StringArg(0)
		if err != nil {
			return fmt.Errorf("%w: %w", hub.ErrProtocol, err)
		}
		if strings.TrimSpace(deviceID) == "" {
			return fmt.Errorf("%w: %w: empty device id", hub.ErrProtocol, hub.ErrInvalidGroup)
		}
		group := telemetry.DeviceGroup(deviceID)
		if msg.Target == wire.TargetJoinDeviceGroup {
			return s.broadcaster.JoinGroup(connID, group)
		}
		return s.broadcaster.LeaveGroup(connID, group)
	default:
		return fmt.Errorf("%w: unknown target %q", hub.ErrProtocol, msg.Target)
	}
}

func (s *Server) reply(connID string, frame []byte) {
	if err := s.broadcaster.SendTo(connID, frame); err != nil && !errors.Is(err, hub.ErrUnknownConnection) {
		s.logger.Debug("reply not queued", "conn_id", connID, "error", err)
	}
}
