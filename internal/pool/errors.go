package pool

import "errors"

// ErrClosed is returned when work is offered to a closed pool.
var ErrClosed = errors.New("pool is closed")
