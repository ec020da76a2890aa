package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/nerrad567/netpulse/internal/telemetry"
)

// Message types.
const (
	TypeInvocation = "invocation"
	TypeCompletion = "completion"
	TypePing       = "ping"
	TypePong       = "pong"
)

// Remote call targets.
const (
	// Client to server.
	TargetJoinDeviceGroup  = "JoinDeviceGroup"
	TargetLeaveDeviceGroup = "LeaveDeviceGroup"

	// Server to client.
	TargetReceiveTelemetry    = "ReceiveTelemetry"
	TargetReceiveNotification = "ReceiveNotification"
)

// Message is one frame on the realtime channel.
//
// Invocations with an ID expect a completion carrying the same ID.
// Server pushes are invocations without an ID.
type Message struct {
	Type      string            `json:"type"`
	ID        string            `json:"id,omitempty"`
	Target    string            `json:"target,omitempty"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Decode parses and validates a frame.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	switch m.Type {
	case TypeInvocation:
		if m.Target == "" {
			return Message{}, fmt.Errorf("%w: invocation without target", ErrMalformed)
		}
	case TypeCompletion:
		if m.ID == "" {
			return Message{}, fmt.Errorf("%w: completion without id", ErrMalformed)
		}
	case TypePing, TypePong:
	case "":
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, m.Type)
	}
	return m, nil
}

// Encode serialises m.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", m.Type, err)
	}
	return data, nil
}

// Invocation builds an invocation of target with JSON-encoded args.
func Invocation(id, target string, args ...any) (Message, error) {
	m := Message{Type: TypeInvocation, ID: id, Target: target}
	for i, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return Message{}, fmt.Errorf("encoding argument %d of %s: %w", i, target, err)
		}
		m.Arguments = append(m.Arguments, raw)
	}
	return m, nil
}

// EncodeInvocation builds and serialises an invocation.
func EncodeInvocation(id, target string, args ...any) ([]byte, error) {
	m, err := Invocation(id, target, args...)
	if err != nil {
		return nil, err
	}
	return Encode(m)
}

// EncodeCompletion serialises the reply to invocation id. A non-nil
// callErr becomes the completion's error text.
func EncodeCompletion(id string, callErr error) ([]byte, error) {
	m := Message{Type: TypeCompletion, ID: id}
	if callErr != nil {
		m.Error = callErr.Error()
	}
	return Encode(m)
}

// EncodeSample serialises a ReceiveTelemetry push.
func EncodeSample(s telemetry.Sample) ([]byte, error) {
	return EncodeInvocation("", TargetReceiveTelemetry, s)
}

// EncodeNotification serialises a ReceiveNotification push.
func EncodeNotification(text string) ([]byte, error) {
	return EncodeInvocation("", TargetReceiveNotification, text)
}

// Pong is the fixed reply to a ping frame.
var Pong = []byte(`{"type":"pong"}`)

// Arg decodes argument i into v.
func (m Message) Arg(i int, v any) error {
	if i < 0 || i >= len(m.Arguments) {
		return fmt.Errorf("%w: %s expects argument %d", ErrBadArguments, m.Target, i)
	}
	if err := json.Unmarshal(m.Arguments[i], v); err != nil {
		return fmt.Errorf("%w: %s argument %d: %w", ErrBadArguments, m.Target, i, err)
	}
	return nil
}

// StringArg decodes argument i as a string.
func (m Message) StringArg(i int) (string, error) {
	var s string
	if err := m.Arg(i, &s); err != nil {
		return "", err
	}
	return s, nil
}

// SampleArg decodes argument i as a telemetry sample.
func (m Message) SampleArg(i int) (telemetry.Sample, error) {
	var s telemetry.Sample
	if err := m.Arg(i, &s); err != nil {
		return telemetry.Sample{}, err
	}
	return s, nil
}

// IDSource hands out invocation ids unique within one connection.
type IDSource struct {
	next atomic.Uint64
}

// Next returns a fresh id.
func (s *IDSource) Next() string {
	return strconv.FormatUint(s.next.Add(1), 10)
}
