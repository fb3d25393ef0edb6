package power

import (
	"codeberg.org/mutker/acmonitor/internal/diag"
	"codeberg.org/mutker/acmonitor/internal/errors"
	"codeberg.org/mutker/acmonitor/internal/ringbuf"
)

// Default ring capacities. The power sample ring holds two minutes so a
// full minute can always be aggregated for flash.
const (
	DefaultSampleCapacity   = 121
	DefaultEventCapacity    = 61
	DefaultWaveformCapacity = 50
)

type BufferSizes struct {
	Samples  int
	Events   int
	Waveform int
}

func DefaultBufferSizes() BufferSizes {
	return BufferSizes{
		Samples:  DefaultSampleCapacity,
		Events:   DefaultEventCapacity,
		Waveform: DefaultWaveformCapacity,
	}
}

// DiagnosticSink receives internal diagnostic events.
type DiagnosticSink interface {
	Raise(t diag.Type, value int) error
}

// Occupancy is a point-in-time view of the ring fill levels.
type Occupancy struct {
	Samples  int
	Events   int
	Waveform int
}

// Buffers owns the rings shared between the processing loop, the network
// server and the flash fallback.
type Buffers struct {
	samples  *ringbuf.Ring[PowerSample]
	events   *ringbuf.Ring[PowerEvent]
	waveform *ringbuf.Ring[WaveFrame]
}

// NewBuffers creates the three rings. When sink is not nil it is told every
// time the event ring becomes full.
func NewBuffers(sizes BufferSizes, sink DiagnosticSink, opts ...ringbuf.Option) *Buffers {
	def := DefaultBufferSizes()
	if sizes.Samples <= 0 {
		sizes.Samples = def.Samples
	}
	if sizes.Events <= 0 {
		sizes.Events = def.Events
	}
	if sizes.Waveform <= 0 {
		sizes.Waveform = def.Waveform
	}

	eventOpts := append([]ringbuf.Option{}, opts...)
	if sink != nil {
		eventOpts = append(eventOpts, ringbuf.OnFull(func(count int) {
			_ = sink.Raise(diag.PowerEventsBufferFull, count)
		}))
	}

	return &Buffers{
		samples:  ringbuf.New[PowerSample](sizes.Samples, ringbuf.Overwrite, opts...),
		events:   ringbuf.New[PowerEvent](sizes.Events, ringbuf.Reject, eventOpts...),
		waveform: ringbuf.New[WaveFrame](sizes.Waveform, ringbuf.Overwrite, opts...),
	}
}

// Samples exposes the power sample ring to the flash fallback.
func (b *Buffers) Samples() *ringbuf.Ring[PowerSample] {
	return b.samples
}

// Events exposes the power event ring to the flash fallback.
func (b *Buffers) Events() *ringbuf.Ring[PowerEvent] {
	return b.events
}

func (b *Buffers) ReadPowerSample(index int) (PowerSample, error) {
	return b.samples.Read(index)
}

func (b *Buffers) DeletePowerSamples(qty int) error {
	return b.samples.Delete(qty)
}

func (b *Buffers) ReadPowerEvent(index int) (PowerEvent, error) {
	return b.events.Read(index)
}

func (b *Buffers) DeletePowerEvents(qty int) error {
	return b.events.Delete(qty)
}

// CopyWaveform returns qty values of one waveform channel starting at the
// oldest retained frame.
func (b *Buffers) CopyWaveform(channel, qty int) ([]float32, error) {
	errFactory := errors.New()

	if channel < 0 || channel >= NumChannels {
		return nil, errFactory.WithData(ErrInvalidChannel, channel)
	}
	if qty < 0 || qty > b.waveform.Cap() {
		return nil, errFactory.WithData(ErrInvalidQuantity, qty)
	}

	frames := make([]WaveFrame, qty)
	if err := b.waveform.SnapshotInto(frames); err != nil {
		return nil, err
	}

	out := make([]float32, qty)
	for i, f := range frames {
		out[i] = f[channel]
	}

	return out, nil
}

func (b *Buffers) Occupancy() Occupancy {
	return Occupancy{
		Samples:  b.samples.Len(),
		Events:   b.events.Len(),
		Waveform: b.waveform.Len(),
	}
}
