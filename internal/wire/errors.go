package wire

import "errors"

var (
	// ErrMalformed is returned for frames that are not a valid envelope.
	ErrMalformed = errors.New("wire: malformed message")

	// ErrBadArguments is returned when invocation arguments are missing or mistyped.
	ErrBadArguments = errors.New("wire: bad arguments")
)
