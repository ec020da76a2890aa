package hub

import "errors"

// Errors returned by the hub package.
//
// Join, leave, and targeted-send failures wrap ErrProtocol so callers can
// reject the offending request with a single errors.Is check:
//
//	if errors.Is(err, hub.ErrProtocol) {
//	    // reply with an error completion, keep the connection open
//	}
var (
	// ErrProtocol is the umbrella for malformed or invalid requests.
	ErrProtocol = errors.New("hub: protocol error")

	// ErrUnknownConnection is returned for a connection id that is not registered.
	ErrUnknownConnection = errors.New("hub: unknown connection")

	// ErrInvalidGroup is returned for an empty or oversized group name.
	ErrInvalidGroup = errors.New("hub: invalid group")

	// ErrDeliveryFailed marks a per-recipient send failure during fan-out.
	// It is logged and counted, never returned from a broadcast.
	ErrDeliveryFailed = errors.New("hub: delivery failed")

	// ErrQueueFull is returned when a connection's outbound queue has no room.
	ErrQueueFull = errors.New("hub: outbound queue full")

	// ErrConnectionClosed is returned when sending to a connection being torn down.
	ErrConnectionClosed = errors.New("hub: connection closed")

	// ErrClosed is returned by Connect after the broadcaster has been closed.
	ErrClosed = errors.New("hub: broadcaster closed")

	// ErrNilSink is returned by Connect when no sink is supplied.
	ErrNilSink = errors.New("hub: nil sink")
)

// protocolError wraps a specific cause under ErrProtocol.
type protocolError struct {
	cause error
	msg   string
}

func (e *protocolError) Error() string {
	if e.msg == "" {
		return e.cause.Error()
	}
	return e.cause.Error() + ": " + e.msg
}

func (e *protocolError) Is(target error) bool {
	return target == ErrProtocol
}

func (e *protocolError) Unwrap() error {
	return e.cause
}

func newProtocolError(cause error, msg string) error {
	return &protocolError{cause: cause, msg: msg}
}
