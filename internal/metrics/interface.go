package metrics

import (
	"context"
)

// Collector receives counters from the processing loop, the diagnostic
// log and the flash controller.
type Collector interface {
	WindowClosed()
	PowerEvent(kind string)
	PowerEventDropped()
	Diagnostic(kind string)
	DrainCycle()
	FlashError()
	ControllerState(paused bool)
	// Serve exposes the metrics over HTTP until ctx is done.
	Serve(ctx context.Context) error
}

// Occupancy reports the current fill level of each ring.
type Occupancy struct {
	Samples     func() int
	Events      func() int
	Waveform    func() int
	Diagnostics func() int
}
