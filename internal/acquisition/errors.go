package acquisition

import "codeberg.org/mutker/acmonitor/internal/errors"

const (
	ErrInvalidLine   = errors.ErrorCode("acquisition_invalid_line")
	ErrOpenPort      = errors.ErrorCode("acquisition_open_port")
	ErrNotOpen       = errors.ErrorCode("acquisition_not_open")
	ErrCommand       = errors.ErrorCode("acquisition_command_failed")
	ErrUnknownSource = errors.ErrorCode("acquisition_unknown_source")
)
