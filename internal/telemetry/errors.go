package telemetry

import "errors"

var (
	// ErrInvalidSample is returned when a sample fails validation.
	ErrInvalidSample = errors.New("telemetry: invalid sample")

	// ErrDeviceRequired is returned when a history query has no device id.
	ErrDeviceRequired = errors.New("telemetry: device id is required")
)
