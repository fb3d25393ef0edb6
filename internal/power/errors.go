package power

import "codeberg.org/mutker/acmonitor/internal/errors"

const (
	ErrInvalidSettings = errors.ErrInvalidConfig
	ErrInvalidChannel  = errors.ErrorCode("power_invalid_waveform_channel")
	ErrInvalidQuantity = errors.ErrorCode("power_invalid_waveform_quantity")
)
