package session

import "errors"

var (
	// ErrConnection indicates the transport could not be established or
	// was lost.
	ErrConnection = errors.New("connection error")

	// ErrRetriesExhausted is returned when every reconnect attempt failed.
	// The session is Disconnected afterwards.
	ErrRetriesExhausted = errors.New("reconnect retries exhausted")

	// ErrRejected indicates the server answered an invocation with an error
	// completion.
	ErrRejected = errors.New("invocation rejected")

	// ErrNotConnected is returned by Join and Leave outside the Connected state.
	ErrNotConnected = errors.New("session not connected")

	// ErrEmptyGroup is returned when a blank device group is requested.
	ErrEmptyGroup = errors.New("device group is required")
)
