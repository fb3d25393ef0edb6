// Package clock exposes the wall clock as whole seconds since the Unix epoch,
// the resolution used by power samples, events and flash records.
package clock

import (
	"sync/atomic"
	"time"
)

type Clock interface {
	Now() uint32
}

// System reads the host clock.
type System struct{}

func (System) Now() uint32 {
	//nolint:gosec // G115: seconds fit in uint32 until 2106
	return uint32(time.Now().Unix())
}

// Manual is a settable clock for tests and replay.
type Manual struct {
	t atomic.Uint32
}

func NewManual(now uint32) *Manual {
	m := &Manual{}
	m.t.Store(now)
	return m
}

func (m *Manual) Now() uint32 { return m.t.Load() }

func (m *Manual) Set(now uint32) { m.t.Store(now) }

func (m *Manual) Advance(seconds uint32) { m.t.Add(seconds) }
