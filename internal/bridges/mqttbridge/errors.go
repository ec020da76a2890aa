package mqttbridge

import "errors"

var (
	// ErrInvalidStatus is returned for status payloads with no status text.
	ErrInvalidStatus = errors.New("mqttbridge: invalid status message")

	// ErrUnknownTopic is returned for messages outside the bridge's topics.
	ErrUnknownTopic = errors.New("mqttbridge: unknown topic")
)
