package metrics

import "codeberg.org/mutker/acmonitor/internal/errors"

const (
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidListen = errors.ErrorCode("metrics_invalid_listen_address")
	ErrRegister      = errors.ErrorCode("metrics_register_failed")
	ErrServe         = errors.ErrorCode("metrics_serve_failed")
)
