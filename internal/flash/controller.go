// Package flash implements the fallback that moves buffered power data into
// persistent storage while the network server is unreachable.
package flash

import (
	"context"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/acmonitor/internal/logger"
	"codeberg.org/mutker/acmonitor/internal/power"
	"codeberg.org/mutker/acmonitor/internal/ringbuf"
)

// MaxDrainErrors is the number of failed writes in one drain that keeps
// acquisition paused until the next retry.
const MaxDrainErrors = 3

// DrainLockWait bounds how long a drain or retry waits for a drain already
// in progress.
const DrainLockWait = 500 * time.Millisecond

type State int32

const (
	Acquiring State = iota
	Paused
)

func (s State) String() string {
	if s == Paused {
		return "paused"
	}
	return "acquiring"
}

// DrainResult summarizes one drain cycle.
type DrainResult struct {
	Record      bool
	Events      int
	Diagnostics int
	Errors      int
	Resumed     bool
	// Busy is set when another drain held the lock past DrainLockWait.
	Busy bool
}

type noopMetrics struct{}

func (noopMetrics) DrainCycle()          {}
func (noopMetrics) FlashError()          {}
func (noopMetrics) ControllerState(bool) {}

type Controller struct {
	enabled bool
	phases  int

	store   Store
	link    Link
	sampler Sampler
	buffers *power.Buffers
	diags   Diagnostics
	metrics Metrics

	// serializes drains between the processing loop and Retry callers
	mu    *ringbuf.Mutex
	state atomic.Int32
}

type Option func(*Controller)

func WithMetrics(m Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

func NewController(
	cfg Config,
	phases int,
	store Store,
	link Link,
	sampler Sampler,
	buffers *power.Buffers,
	diags Diagnostics,
	opts ...Option,
) *Controller {
	c := &Controller{
		enabled: cfg.Enabled,
		phases:  phases,
		store:   store,
		link:    link,
		sampler: sampler,
		buffers: buffers,
		diags:   diags,
		metrics: noopMetrics{},
		mu:      ringbuf.NewMutex(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) Paused() bool {
	return c.State() == Paused
}

// Triggered reports whether buffered data must go to storage now.
func (c *Controller) Triggered() bool {
	if !c.enabled || c.link.Connected() {
		return false
	}

	return c.buffers.Samples().Len() >= TriggerSamples ||
		c.buffers.Events().Full() ||
		c.diags.Full()
}

// OnWindowClose runs a drain when the trigger holds.
func (c *Controller) OnWindowClose(ctx context.Context) {
	if !c.Triggered() {
		return
	}
	c.Drain(ctx)
}

// Retry is called periodically while paused. It drains again if the
// trigger still holds and otherwise resumes acquisition.
func (c *Controller) Retry(ctx context.Context) {
	if !c.Paused() {
		return
	}

	if c.Triggered() {
		c.Drain(ctx)
		return
	}

	if !c.mu.TryLock(DrainLockWait) {
		logger.Debug().Msg("Drain in progress, retry skipped")
		return
	}
	defer c.mu.Unlock()
	c.resume()
}

// Drain pauses acquisition and writes one minute record, then the queued
// power events and diagnostics, oldest first. Each stored element is
// deleted from its buffer; the first failed write stops that buffer for
// this cycle. Acquisition resumes unless MaxDrainErrors writes failed.
func (c *Controller) Drain(ctx context.Context) DrainResult {
	var res DrainResult

	if !c.mu.TryLock(DrainLockWait) {
		logger.Warn().Dur("wait", DrainLockWait).Msg("Drain in progress, cycle skipped")
		res.Busy = true
		return res
	}
	defer c.mu.Unlock()

	c.setState(Paused)
	if err := c.sampler.Pause(); err != nil {
		logger.Warn().Err(err).Msg("Failed to pause acquisition")
	}

	if c.buffers.Samples().Len() >= TriggerSamples {
		rec, err := Aggregate(c.buffers.Samples(), c.phases)
		if err == nil {
			err = c.store.AppendPowerRecord(ctx, rec)
		}
		if err != nil {
			c.failed(&res, "power_record", err)
		} else {
			res.Record = true
		}
	}

	res.Events = drainRing(ctx, c.buffers.ReadPowerEvent, c.buffers.DeletePowerEvents, c.store.AppendPowerEvent,
		func(err error) { c.failed(&res, "power_event", err) })
	res.Diagnostics = drainRing(ctx, c.diags.Read, c.diags.Delete, c.store.AppendDiagnosticEvent,
		func(err error) { c.failed(&res, "diagnostic_event", err) })

	c.metrics.DrainCycle()

	if res.Errors < MaxDrainErrors {
		res.Resumed = c.resume()
	} else {
		logger.Error().
			Int("errors", res.Errors).
			Msg("Flash storage failing, acquisition stays paused")
	}

	logger.Info().
		Bool("record", res.Record).
		Int("events", res.Events).
		Int("diagnostics", res.Diagnostics).
		Int("errors", res.Errors).
		Bool("resumed", res.Resumed).
		Msg("Flash drain finished")

	return res
}

// drainRing moves elements from the head of a buffer to storage one at a
// time and returns how many were stored.
func drainRing[T any](
	ctx context.Context,
	read func(int) (T, error),
	del func(int) error,
	store func(context.Context, T) error,
	onFail func(error),
) int {
	stored := 0
	for {
		item, err := read(0)
		if err != nil {
			// empty or contended, try again next cycle
			return stored
		}
		if err := store(ctx, item); err != nil {
			onFail(err)
			return stored
		}
		if err := del(1); err != nil {
			logger.Warn().Err(err).Msg("Failed to delete stored element")
			return stored
		}
		stored++
	}
}

func (c *Controller) failed(res *DrainResult, what string, err error) {
	res.Errors++
	c.metrics.FlashError()
	logger.Warn().Str("element", what).Err(err).Msg("Flash write failed")
}

func (c *Controller) resume() bool {
	if err := c.sampler.Start(); err != nil {
		logger.Warn().Err(err).Msg("Failed to resume acquisition")
		return false
	}
	c.setState(Acquiring)
	return true
}

func (c *Controller) setState(s State) {
	if State(c.state.Swap(int32(s))) != s {
		c.metrics.ControllerState(s == Paused)
		logger.Debug().Str("state", s.String()).Msg("Flash controller state changed")
	}
}
