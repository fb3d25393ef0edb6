package diag

import (
	"testing"

	"codeberg.org/mutker/acmonitor/internal/clock"
	"codeberg.org/mutker/acmonitor/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_RaiseAndRead(t *testing.T) {
	clk := clock.NewManual(1_700_000_000)
	var seen []Type
	l := New(3, clk, WithObserver(func(t Type) { seen = append(seen, t) }))

	require.NoError(t, l.Raise(SamplingStopped, 0))
	clk.Advance(5)
	require.NoError(t, l.Raise(ADCBufferFull, 1000))

	assert.Equal(t, 2, l.Len())
	assert.False(t, l.Full())

	ev, err := l.Read(1)
	require.NoError(t, err)
	assert.Equal(t, Event{Type: ADCBufferFull, Value: 1000, Timestamp: 1_700_000_005}, ev)
	assert.Equal(t, []Type{SamplingStopped, ADCBufferFull}, seen)

	require.NoError(t, l.Delete(1))
	ev, err = l.Read(0)
	require.NoError(t, err)
	assert.Equal(t, ADCBufferFull, ev.Type)
}

func TestLog_FullDropsNewEvents(t *testing.T) {
	l := New(2, clock.NewManual(0))

	require.NoError(t, l.Raise(SamplingStopped, 0))
	require.NoError(t, l.Raise(SamplingStopped, 0))
	assert.True(t, l.Full())

	err := l.Raise(PowerEventsBufferFull, 61)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCapacity))
	assert.Equal(t, 2, l.Len())
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "sampling_stopped", SamplingStopped.String())
	assert.Equal(t, "adc_buffer_full", ADCBufferFull.String())
	assert.Equal(t, "power_events_buffer_full", PowerEventsBufferFull.String())
	assert.Equal(t, "unknown", Type(0).String())
}
