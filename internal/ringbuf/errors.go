package ringbuf

import "codeberg.org/mutker/acmonitor/internal/errors"

const (
	ErrTimeout    = errors.ErrTimeout
	ErrCapacity   = errors.ErrCapacity
	ErrOutOfRange = errors.ErrOutOfRange
	ErrBadBuffer  = errors.ErrorCode("ringbuf_invalid_destination")
)
