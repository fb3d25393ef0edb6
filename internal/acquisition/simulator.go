package acquisition

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/acmonitor/internal/clock"
	"codeberg.org/mutker/acmonitor/internal/logger"
	"codeberg.org/mutker/acmonitor/internal/power"
)

const simulatorTick = 10 * time.Millisecond

// Simulator generates a clean two-phase mains waveform encoded as ADC
// codes, paced in real time.
type Simulator struct {
	cfg   Config
	clock clock.Clock

	samples chan power.RawSample
	running atomic.Bool
	dropped atomic.Uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	rtc     uint32
	index   uint64
	restart bool
}

var _ Source = (*Simulator)(nil)

func NewSimulator(cfg Config, clk clock.Clock) *Simulator {
	cfg = cfg.withDefaults()
	return &Simulator{
		cfg:     cfg,
		clock:   clk,
		samples: make(chan power.RawSample, cfg.BufferSize),
	}
}

// Open starts the generator goroutine. Samples flow once Start is called.
func (s *Simulator) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.generate(ctx)

	logger.Info().
		Int("sample_rate", s.cfg.SampleRate).
		Float64("frequency", s.cfg.Frequency).
		Float64("voltage", s.cfg.Voltage).
		Float64("current", s.cfg.Current).
		Msg("Simulated acquisition opened")

	return nil
}

// Close stops the generator and closes the sample channel.
func (s *Simulator) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done
	close(s.samples)

	return nil
}

// Start begins a new acquisition run. Each run gets a fresh epoch.
func (s *Simulator) Start() error {
	if s.running.Load() {
		return nil
	}

	s.mu.Lock()
	s.restart = true
	s.mu.Unlock()

	s.running.Store(true)
	logger.Debug().Msg("Simulated sampling started")

	return nil
}

func (s *Simulator) Pause() error {
	if s.running.Swap(false) {
		logger.Debug().Msg("Simulated sampling paused")
	}
	return nil
}

func (s *Simulator) Running() bool {
	return s.running.Load()
}

func (s *Simulator) MarkStalled() {
	s.running.Store(false)
}

func (s *Simulator) Pending() int {
	return len(s.samples)
}

func (s *Simulator) Capacity() int {
	return cap(s.samples)
}

func (s *Simulator) Samples() <-chan power.RawSample {
	return s.samples
}

// Dropped returns how many samples were discarded on a full channel.
func (s *Simulator) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Simulator) generate(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(simulatorTick)
	defer ticker.Stop()

	perTick := s.cfg.SampleRate * int(simulatorTick/time.Millisecond) / 1000
	if perTick < 1 {
		perTick = 1
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.running.Load() {
				continue
			}
			for n := 0; n < perTick; n++ {
				s.emit(s.next())
			}
		}
	}
}

func (s *Simulator) emit(raw power.RawSample) {
	select {
	case s.samples <- raw:
	default:
		if s.dropped.Add(1) == 1 {
			logger.Warn().Msg("Sample channel full, dropping samples")
		}
	}
}

// next produces the following sample of the current run.
func (s *Simulator) next() power.RawSample {
	s.mu.Lock()
	if s.restart {
		s.restart = false
		s.rtc = s.clock.Now()
		s.index = 0
	}
	n := s.index
	s.index++
	rtc := s.rtc
	s.mu.Unlock()

	return synthesize(s.cfg, n, rtc)
}

// synthesize encodes sample n of a run as ADC codes using the inverse of
// the configured calibration.
func synthesize(cfg Config, n uint64, rtc uint32) power.RawSample {
	ts := float64(n) / float64(cfg.SampleRate)
	phase := 2 * math.Pi * cfg.Frequency * ts

	cal := cfg.Calibration
	vPeak := cfg.Voltage * math.Sqrt2
	iPeak := cfg.Current * math.Sqrt2

	raw := power.RawSample{
		//nolint:gosec // G115: the counter wraps like the hardware one
		Usecs:   uint32(n * power.UsecsPerSecond / uint64(cfg.SampleRate)),
		RTCTime: rtc,
	}

	raw.Data[power.ChannelV1] = encode(vPeak*math.Sin(phase), cal.ADCScale[0], cal.VoltageFactors[0])
	raw.Data[power.ChannelI1] = encode(cfg.Overcurrent*iPeak*math.Sin(phase), cal.ADCScale[1], cal.CurrentFactors[0])

	if cfg.Phases == power.MaxPhases {
		shifted := phase - 2*math.Pi/3
		raw.Data[power.ChannelV2] = encode(vPeak*math.Sin(shifted), cal.ADCScale[0], cal.VoltageFactors[1])
		raw.Data[power.ChannelI2] = encode(iPeak*math.Sin(shifted), cal.ADCScale[2], cal.CurrentFactors[1])
	}

	return raw
}

func encode(value float64, scale, factor float32) int16 {
	if scale == 0 || factor == 0 {
		return 0
	}
	code := math.Round(value / float64(scale*factor))
	return int16(max(math.MinInt16, min(math.MaxInt16, code)))
}
