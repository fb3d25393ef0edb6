package flash

import (
	"context"

	"codeberg.org/mutker/acmonitor/internal/diag"
	"codeberg.org/mutker/acmonitor/internal/power"
)

// Store is the persistent storage the buffers fall back to while the
// network server is away.
type Store interface {
	AppendPowerRecord(ctx context.Context, rec Record) error
	AppendPowerEvent(ctx context.Context, ev power.PowerEvent) error
	AppendDiagnosticEvent(ctx context.Context, ev diag.Event) error
	Close() error
}

// Link reports whether the network server holds a session.
type Link interface {
	Connected() bool
}

// Sampler controls acquisition.
type Sampler interface {
	Start() error
	Pause() error
}

// Diagnostics is the diagnostic event buffer as seen by the drain.
type Diagnostics interface {
	Read(index int) (diag.Event, error)
	Delete(qty int) error
	Full() bool
}

// Metrics receives drain counters.
type Metrics interface {
	DrainCycle()
	FlashError()
	ControllerState(paused bool)
}

// Record is one minute of active energy.
type Record struct {
	// Timestamp is the first second of the minute.
	Timestamp uint32
	// Seconds is the number of power samples aggregated.
	Seconds uint32
	// Active is the energy per phase in Wh.
	Active [power.MaxPhases]float32
}
