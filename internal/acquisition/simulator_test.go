package acquisition

import (
	"context"
	"math"
	"testing"

	"codeberg.org/mutker/acmonitor/internal/clock"
	"codeberg.org/mutker/acmonitor/internal/errors"
	"codeberg.org/mutker/acmonitor/internal/power"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeRoundTrip(t *testing.T) {
	cfg := Config{SampleRate: 4000, Current: 10, Overcurrent: 2}.withDefaults()
	cal := cfg.Calibration

	var vSq, iSq float64
	const n = 4000
	for k := uint64(0); k < n; k++ {
		raw := synthesize(cfg, k, 77)
		assert.Equal(t, uint32(77), raw.RTCTime)

		v, i := cal.Scale(raw, 2)
		vSq += float64(v[0] * v[0])
		iSq += float64(i[0] * i[0])
	}

	assert.InDelta(t, 230, math.Sqrt(vSq/n), 0.5)
	assert.InDelta(t, 20, math.Sqrt(iSq/n), 0.1)

	last := synthesize(cfg, n, 77)
	assert.Equal(t, uint32(power.UsecsPerSecond), last.Usecs)
}

func TestSynthesizeSinglePhase(t *testing.T) {
	cfg := Config{Phases: 1, Current: 5}.withDefaults()

	raw := synthesize(cfg, 7, 1)
	assert.Zero(t, raw.Data[power.ChannelV2])
	assert.Zero(t, raw.Data[power.ChannelI2])
	assert.NotZero(t, raw.Data[power.ChannelV1])
}

func TestEncodeClamps(t *testing.T) {
	assert.Equal(t, int16(32767), encode(1e9, 1, 1))
	assert.Equal(t, int16(-32768), encode(-1e9, 1, 1))
	assert.Equal(t, int16(0), encode(5, 0, 1))
}

func TestSimulatorLifecycle(t *testing.T) {
	clk := clock.NewManual(1_700_000_000)
	sim := NewSimulator(Config{SampleRate: 1000, Current: 5, BufferSize: 64}, clk)

	require.NoError(t, sim.Open(context.Background()))
	require.NoError(t, sim.Open(context.Background()))
	assert.False(t, sim.Running())
	assert.Equal(t, 64, sim.Capacity())

	require.NoError(t, sim.Start())
	require.NoError(t, sim.Start())

	raw := <-sim.Samples()
	assert.Equal(t, uint32(1_700_000_000), raw.RTCTime)
	assert.Equal(t, uint32(0), raw.Usecs)

	require.NoError(t, sim.Pause())
	assert.False(t, sim.Running())

	require.NoError(t, sim.Close())
	require.NoError(t, sim.Close())
}

func TestSimulatorRestartOpensNewEpoch(t *testing.T) {
	clk := clock.NewManual(100)
	sim := NewSimulator(Config{SampleRate: 1000}, clk)

	require.NoError(t, sim.Start())
	first := sim.next()
	sim.next()
	require.NoError(t, sim.Pause())

	clk.Advance(30)
	require.NoError(t, sim.Start())
	again := sim.next()

	assert.Equal(t, uint32(100), first.RTCTime)
	assert.Equal(t, uint32(130), again.RTCTime)
	assert.Equal(t, uint32(0), again.Usecs)
}

func TestSimulatorDropsWhenFull(t *testing.T) {
	sim := NewSimulator(Config{BufferSize: 2}, clock.NewManual(1))

	for n := 0; n < 5; n++ {
		sim.emit(power.RawSample{})
	}

	assert.Equal(t, 2, sim.Pending())
	assert.Equal(t, uint64(3), sim.Dropped())
}

func TestNewSource(t *testing.T) {
	src, err := New(Config{Kind: KindSerial}, clock.System{})
	require.NoError(t, err)
	assert.IsType(t, &Serial{}, src)

	src, err = New(Config{}, clock.System{})
	require.NoError(t, err)
	assert.IsType(t, &Simulator{}, src)

	_, err = New(Config{Kind: "usb"}, clock.System{})
	assert.True(t, errors.HasCode(err, ErrUnknownSource))
}

func TestSimulatorMarkStalled(t *testing.T) {
	sim := NewSimulator(Config{}, clock.NewManual(1))
	require.NoError(t, sim.Start())

	sim.MarkStalled()

	assert.False(t, sim.Running())
	require.NoError(t, sim.Start())
	assert.True(t, sim.Running())
}
