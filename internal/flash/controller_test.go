package flash

import (
	"context"
	"fmt"
	"testing"

	"codeberg.org/mutker/acmonitor/internal/clock"
	"codeberg.org/mutker/acmonitor/internal/diag"
	"codeberg.org/mutker/acmonitor/internal/errors"
	"codeberg.org/mutker/acmonitor/internal/link"
	"codeberg.org/mutker/acmonitor/internal/power"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	records     []Record
	events      []power.PowerEvent
	diagnostics []diag.Event

	// fail the n-th append of each kind (1-based), 0 never fails
	failRecord int
	failEvent  int
	failDiag   int

	recordCalls, eventCalls, diagCalls int
}

var errFlash = errors.New().WithMessage(ErrWriteFailed, "injected")

func (s *fakeStore) AppendPowerRecord(_ context.Context, rec Record) error {
	s.recordCalls++
	if s.recordCalls == s.failRecord {
		return errFlash
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeStore) AppendPowerEvent(_ context.Context, ev power.PowerEvent) error {
	s.eventCalls++
	if s.eventCalls == s.failEvent {
		return errFlash
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeStore) AppendDiagnosticEvent(_ context.Context, ev diag.Event) error {
	s.diagCalls++
	if s.diagCalls == s.failDiag {
		return errFlash
	}
	s.diagnostics = append(s.diagnostics, ev)
	return nil
}

func (s *fakeStore) Close() error { return nil }

type fakeSampler struct {
	starts, pauses int
}

func (f *fakeSampler) Start() error { f.starts++; return nil }
func (f *fakeSampler) Pause() error { f.pauses++; return nil }

type countingMetrics struct {
	drains, errors int
	paused         []bool
}

func (m *countingMetrics) DrainCycle()                 { m.drains++ }
func (m *countingMetrics) FlashError()                 { m.errors++ }
func (m *countingMetrics) ControllerState(paused bool) { m.paused = append(m.paused, paused) }

type fixture struct {
	ctrl    *Controller
	store   *fakeStore
	sampler *fakeSampler
	link    *link.Flag
	buffers *power.Buffers
	diags   *diag.Log
	metrics *countingMetrics
}

func newFixture(t *testing.T, sizes power.BufferSizes, diagCap int) *fixture {
	t.Helper()

	f := &fixture{
		store:   &fakeStore{},
		sampler: &fakeSampler{},
		link:    &link.Flag{},
		buffers: power.NewBuffers(sizes, nil),
		diags:   diag.New(diagCap, clock.NewManual(minuteStart)),
		metrics: &countingMetrics{},
	}
	f.ctrl = NewController(Config{Enabled: true}, 2, f.store, f.link, f.sampler, f.buffers, f.diags,
		WithMetrics(f.metrics))

	return f
}

// fill queues one full minute of samples, three events and two diagnostics.
func (f *fixture) fill(t *testing.T) {
	t.Helper()

	pushSamples(t, f.buffers.Samples(), minuteStart, minuteStart+TriggerSamples, 100, 50)
	for n := 0; n < 3; n++ {
		require.NoError(t, f.buffers.Events().Push(power.PowerEvent{
			Timestamp: minuteStart + uint32(n),
			Type:      power.Overcurrent,
			Channel:   1,
			Count:     6,
		}))
	}
	require.NoError(t, f.diags.Raise(diag.SamplingStopped, 3))
	require.NoError(t, f.diags.Raise(diag.ADCBufferFull, 1000))
}

func TestControllerTrigger(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, f *fixture)
		enabled bool
		want    bool
	}{
		{
			name:    "sample backlog",
			enabled: true,
			setup: func(t *testing.T, f *fixture) {
				pushSamples(t, f.buffers.Samples(), 0, TriggerSamples, 1, 1)
			},
			want: true,
		},
		{
			name:    "below backlog",
			enabled: true,
			setup: func(t *testing.T, f *fixture) {
				pushSamples(t, f.buffers.Samples(), 0, TriggerSamples-1, 1, 1)
			},
		},
		{
			name:    "events full",
			enabled: true,
			setup: func(t *testing.T, f *fixture) {
				for n := 0; n < 2; n++ {
					require.NoError(t, f.buffers.Events().Push(power.PowerEvent{Channel: 1}))
				}
			},
			want: true,
		},
		{
			name:    "diagnostics full",
			enabled: true,
			setup: func(t *testing.T, f *fixture) {
				for n := 0; n < 2; n++ {
					require.NoError(t, f.diags.Raise(diag.SamplingStopped, n))
				}
			},
			want: true,
		},
		{
			name:    "server connected",
			enabled: true,
			setup: func(t *testing.T, f *fixture) {
				pushSamples(t, f.buffers.Samples(), 0, TriggerSamples, 1, 1)
				f.link.Set(true)
			},
		},
		{
			name: "storage disabled",
			setup: func(t *testing.T, f *fixture) {
				pushSamples(t, f.buffers.Samples(), 0, TriggerSamples, 1, 1)
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, power.BufferSizes{Events: 2}, 2)
			f.ctrl.enabled = tt.enabled
			tt.setup(t, f)

			assert.Equal(t, tt.want, f.ctrl.Triggered())

			f.ctrl.OnWindowClose(context.Background())
			if tt.want {
				assert.Equal(t, 1, f.sampler.pauses)
			} else {
				assert.Zero(t, f.sampler.pauses)
				assert.Zero(t, f.metrics.drains)
			}
		})
	}
}

func TestControllerDrainAll(t *testing.T) {
	f := newFixture(t, power.DefaultBufferSizes(), diag.DefaultCapacity)
	f.fill(t)

	res := f.ctrl.Drain(context.Background())

	assert.Equal(t, DrainResult{Record: true, Events: 3, Diagnostics: 2, Resumed: true}, res)
	assert.Equal(t, Acquiring, f.ctrl.State())
	assert.Equal(t, 1, f.sampler.pauses)
	assert.Equal(t, 1, f.sampler.starts)

	require.Len(t, f.store.records, 1)
	assert.Equal(t, uint32(TriggerSamples), f.store.records[0].Seconds)
	require.Len(t, f.store.events, 3)
	for n, ev := range f.store.events {
		assert.Equal(t, uint32(minuteStart+n), ev.Timestamp, "events are stored oldest first")
	}
	require.Len(t, f.store.diagnostics, 2)
	assert.Equal(t, diag.SamplingStopped, f.store.diagnostics[0].Type)

	assert.Equal(t, power.Occupancy{Samples: 0, Events: 0, Waveform: 0}, f.buffers.Occupancy())
	assert.Zero(t, f.diags.Len())
	assert.Equal(t, []bool{true, false}, f.metrics.paused)
}

func TestControllerFailureBudget(t *testing.T) {
	tests := []struct {
		name        string
		store       fakeStore
		wantErrors  int
		wantState   State
		wantEvents  int
		wantDiags   int
		wantStarted int
	}{
		{
			name:        "two failures resume",
			store:       fakeStore{failRecord: 1, failEvent: 1},
			wantErrors:  2,
			wantState:   Acquiring,
			wantEvents:  3,
			wantDiags:   0,
			wantStarted: 1,
		},
		{
			name:        "three failures stay paused",
			store:       fakeStore{failRecord: 1, failEvent: 1, failDiag: 1},
			wantErrors:  3,
			wantState:   Paused,
			wantEvents:  3,
			wantDiags:   2,
			wantStarted: 0,
		},
		{
			name:        "failure mid-buffer keeps the rest",
			store:       fakeStore{failEvent: 2},
			wantErrors:  1,
			wantState:   Acquiring,
			wantEvents:  2,
			wantDiags:   0,
			wantStarted: 1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, power.DefaultBufferSizes(), diag.DefaultCapacity)
			*f.store = tt.store
			f.fill(t)

			res := f.ctrl.Drain(context.Background())

			assert.Equal(t, tt.wantErrors, res.Errors)
			assert.Equal(t, tt.wantErrors, f.metrics.errors)
			assert.Equal(t, tt.wantState, f.ctrl.State())
			assert.Equal(t, tt.wantState == Paused, f.ctrl.Paused())
			assert.Equal(t, tt.wantEvents, f.buffers.Occupancy().Events)
			assert.Equal(t, tt.wantDiags, f.diags.Len())
			assert.Equal(t, tt.wantStarted, f.sampler.starts)
		})
	}
}

func TestControllerAggregationFailureCounts(t *testing.T) {
	f := newFixture(t, power.DefaultBufferSizes(), diag.DefaultCapacity)

	// four seconds in each of fifteen minutes
	for m := uint32(0); m < 15; m++ {
		pushSamples(t, f.buffers.Samples(), minuteStart+m*60, minuteStart+m*60+4, 10, 10)
	}

	res := f.ctrl.Drain(context.Background())

	assert.False(t, res.Record)
	assert.Equal(t, 1, res.Errors)
	assert.Empty(t, f.store.records)
	assert.Zero(t, f.store.recordCalls)
	assert.Zero(t, f.buffers.Occupancy().Samples)
}

func TestControllerRetry(t *testing.T) {
	f := newFixture(t, power.DefaultBufferSizes(), diag.DefaultCapacity)
	*f.store = fakeStore{failRecord: 1, failEvent: 1, failDiag: 1}
	f.fill(t)

	ctx := context.Background()
	f.ctrl.OnWindowClose(ctx)
	require.True(t, f.ctrl.Paused())

	// samples were consumed by the failed record, the rest is not urgent
	require.False(t, f.ctrl.Triggered())
	f.ctrl.Retry(ctx)

	assert.False(t, f.ctrl.Paused())
	assert.Equal(t, 1, f.sampler.starts)
	assert.Equal(t, 1, f.metrics.drains)

	f.ctrl.Retry(ctx)
	assert.Equal(t, 1, f.sampler.starts, "retry is a no-op while acquiring")
}

func TestControllerDrainBusy(t *testing.T) {
	f := newFixture(t, power.DefaultBufferSizes(), diag.DefaultCapacity)
	f.fill(t)

	require.True(t, f.ctrl.mu.TryLock(0))
	res := f.ctrl.Drain(context.Background())
	f.ctrl.mu.Unlock()

	assert.True(t, res.Busy)
	assert.Zero(t, f.sampler.pauses)
	assert.Zero(t, f.metrics.drains)
	assert.Empty(t, f.store.events)
	assert.Equal(t, 3, f.buffers.Occupancy().Events)

	res = f.ctrl.Drain(context.Background())
	assert.False(t, res.Busy)
	assert.Equal(t, 3, res.Events)
}

func TestControllerRetryDrainsWhileTriggered(t *testing.T) {
	f := newFixture(t, power.BufferSizes{Events: 3}, diag.DefaultCapacity)
	*f.store = fakeStore{failRecord: 1, failEvent: 1, failDiag: 1}
	f.fill(t)

	ctx := context.Background()
	f.ctrl.OnWindowClose(ctx)
	require.True(t, f.ctrl.Paused())
	require.True(t, f.ctrl.Triggered(), "event buffer is still full")

	f.ctrl.Retry(ctx)

	assert.Equal(t, 2, f.metrics.drains)
	assert.False(t, f.ctrl.Paused())
	assert.Len(t, f.store.events, 3)
	assert.Len(t, f.store.diagnostics, 2)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "acquiring", Acquiring.String())
	assert.Equal(t, "paused", fmt.Sprint(Paused))
}
