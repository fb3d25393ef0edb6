// Package acquisition provides the raw sample sources feeding the
// processing loop: a waveform simulator and a serial line reader for an
// external ADC front end.
package acquisition

import (
	"context"

	"codeberg.org/mutker/acmonitor/internal/clock"
	"codeberg.org/mutker/acmonitor/internal/errors"
	"codeberg.org/mutker/acmonitor/internal/power"
)

const (
	KindSimulator = "simulator"
	KindSerial    = "serial"

	DefaultBufferSize = 1000
	DefaultBaudRate   = 921600
	DefaultSampleRate = 2000
)

// Source is an acquisition front end with an explicit connection
// lifecycle around the sampling controls.
type Source interface {
	power.Acquirer
	Open(ctx context.Context) error
	Close() error
}

type Config struct {
	Kind       string
	Port       string
	Baud       int
	BufferSize int

	// Simulator waveform
	SampleRate  int
	Frequency   float64
	Voltage     float64
	Current     float64
	Overcurrent float64

	Phases      int
	Calibration power.Calibration
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.Baud <= 0 {
		c.Baud = DefaultBaudRate
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Frequency <= 0 {
		c.Frequency = 50
	}
	if c.Voltage <= 0 {
		c.Voltage = 230
	}
	if c.Overcurrent <= 0 {
		c.Overcurrent = 1
	}
	if c.Phases <= 0 {
		c.Phases = power.MaxPhases
	}
	if c.Calibration == (power.Calibration{}) {
		c.Calibration = power.DefaultCalibration()
	}
	return c
}

// New builds the source selected by cfg.Kind.
func New(cfg Config, clk clock.Clock) (Source, error) {
	switch cfg.Kind {
	case KindSimulator, "":
		return NewSimulator(cfg, clk), nil
	case KindSerial:
		return NewSerial(cfg), nil
	default:
		return nil, errors.New().WithData(ErrUnknownSource, cfg.Kind)
	}
}
