// Package diag holds the internal diagnostic event stream: acquisition
// stalls, raw sample overflow and full power-event buffers. Events are kept
// in a reject-on-full ring until the server or the flash drain consumes them.
package diag

import (
	"codeberg.org/mutker/acmonitor/internal/clock"
	"codeberg.org/mutker/acmonitor/internal/logger"
	"codeberg.org/mutker/acmonitor/internal/ringbuf"
)

const DefaultCapacity = 31

type Type uint8

const (
	SamplingStopped Type = iota + 1
	ADCBufferFull
	PowerEventsBufferFull
)

func (t Type) String() string {
	switch t {
	case SamplingStopped:
		return "sampling_stopped"
	case ADCBufferFull:
		return "adc_buffer_full"
	case PowerEventsBufferFull:
		return "power_events_buffer_full"
	default:
		return "unknown"
	}
}

type Event struct {
	Type      Type
	Value     int32
	Timestamp uint32
}

// Log is the diagnostic event buffer.
type Log struct {
	ring    *ringbuf.Ring[Event]
	clock   clock.Clock
	onRaise func(Type)
}

type Option func(*Log)

// WithObserver registers fn to be told about every raised event,
// including ones the full buffer drops.
func WithObserver(fn func(Type)) Option {
	return func(l *Log) { l.onRaise = fn }
}

func New(capacity int, clk clock.Clock, opts ...Option) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	l := &Log{
		ring:  ringbuf.New[Event](capacity, ringbuf.Reject),
		clock: clk,
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Raise records a diagnostic stamped with the current clock. A full or
// contended buffer drops the event; the error is returned for the caller
// to count, never to retry.
func (l *Log) Raise(t Type, value int) error {
	ev := Event{
		Type: t,
		//nolint:gosec // G115: values are buffer counts
		Value:     int32(value),
		Timestamp: l.clock.Now(),
	}

	if l.onRaise != nil {
		l.onRaise(t)
	}

	err := l.ring.Push(ev)
	if err != nil {
		logger.Warn().
			Str("type", t.String()).
			Int("value", value).
			Err(err).
			Msg("Diagnostic event dropped")
		return err
	}

	logger.Info().
		Str("type", t.String()).
		Int("value", value).
		Uint32("timestamp", ev.Timestamp).
		Msg("Diagnostic event raised")

	return nil
}

func (l *Log) Read(index int) (Event, error) {
	return l.ring.Read(index)
}

func (l *Log) Delete(qty int) error {
	return l.ring.Delete(qty)
}

func (l *Log) Len() int {
	return l.ring.Len()
}

func (l *Log) Cap() int {
	return l.ring.Cap()
}

func (l *Log) Full() bool {
	return l.ring.Full()
}
