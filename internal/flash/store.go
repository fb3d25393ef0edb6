package flash

import (
	"context"

	"codeberg.org/mutker/acmonitor/internal/diag"
	"codeberg.org/mutker/acmonitor/internal/errors"
	"codeberg.org/mutker/acmonitor/internal/logger"
	"codeberg.org/mutker/acmonitor/internal/power"
)

// No-op implementation
type noopStore struct{}

// NewStore returns the sqlite repository, or a no-op store when flash
// storage is disabled.
func NewStore(cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Flash storage disabled, using no-op store")
		return noopStore{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create flash repository")
		return nil, err
	}

	return repo, nil
}

func (noopStore) AppendPowerRecord(context.Context, Record) error { return nil }

func (noopStore) AppendPowerEvent(context.Context, power.PowerEvent) error { return nil }

func (noopStore) AppendDiagnosticEvent(context.Context, diag.Event) error { return nil }

func (noopStore) Close() error { return nil }
