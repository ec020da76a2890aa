package producer

import "errors"

// ErrNotIdle is returned by Start when the producer has already been
// started or stopped.
var ErrNotIdle = errors.New("producer: not idle")
