package power

import (
	"context"
	"time"

	"codeberg.org/mutker/acmonitor/internal/diag"
	"codeberg.org/mutker/acmonitor/internal/errors"
	"codeberg.org/mutker/acmonitor/internal/logger"
)

const (
	DefaultReceiveWait   = 200 * time.Millisecond
	DefaultStallLimit    = 3
	DefaultRetryInterval = time.Second
)

// Acquirer is the raw sample source.
type Acquirer interface {
	Start() error
	Pause() error
	Running() bool
	// MarkStalled tells the source that the consumer saw no samples for a
	// while so it can flag itself as stopped.
	MarkStalled()
	// Pending and Capacity describe the source's outbound queue.
	Pending() int
	Capacity() int
	Samples() <-chan RawSample
}

// FallbackController decides whether buffered data goes to persistent
// storage after each window.
type FallbackController interface {
	OnWindowClose(ctx context.Context)
	Paused() bool
	Retry(ctx context.Context)
}

// Metrics receives processing counters.
type Metrics interface {
	WindowClosed()
	PowerEvent(kind string)
	PowerEventDropped()
}

type noopMetrics struct{}

func (noopMetrics) WindowClosed()      {}
func (noopMetrics) PowerEvent(string)  {}
func (noopMetrics) PowerEventDropped() {}

type noopFallback struct{}

func (noopFallback) OnWindowClose(context.Context) {}
func (noopFallback) Paused() bool                  { return false }
func (noopFallback) Retry(context.Context)         {}

type Settings struct {
	Phases        int
	Calibration   Calibration
	Thresholds    Thresholds
	Rules         Rules
	ReceiveWait   time.Duration
	StallLimit    int
	RetryInterval time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Phases:        2,
		Calibration:   DefaultCalibration(),
		Thresholds:    DefaultThresholds(),
		Rules:         DefaultRules(),
		ReceiveWait:   DefaultReceiveWait,
		StallLimit:    DefaultStallLimit,
		RetryInterval: DefaultRetryInterval,
	}
}

func (s Settings) Validate() error {
	errFactory := errors.New()

	if s.Phases < 1 || s.Phases > MaxPhases {
		return errFactory.WithData(ErrInvalidSettings, struct{ Phases int }{s.Phases})
	}
	if s.ReceiveWait <= 0 || s.StallLimit <= 0 {
		return errFactory.WithData(ErrInvalidSettings, struct {
			ReceiveWait time.Duration
			StallLimit  int
		}{s.ReceiveWait, s.StallLimit})
	}
	if s.Thresholds.FrequencyMin >= s.Thresholds.FrequencyMax ||
		s.Thresholds.VoltageMin >= s.Thresholds.VoltageMax {
		return errFactory.WithData(ErrInvalidSettings, s.Thresholds)
	}

	return nil
}

// Processor is the single worker that owns all per-sample analysis state.
type Processor struct {
	settings Settings
	source   Acquirer
	buffers  *Buffers
	diag     DiagnosticSink
	fallback FallbackController
	metrics  Metrics

	window     *Window
	cycles     [MaxPhases]*CycleAnalyzer
	classifier *Classifier

	// acquisition epoch of the last sample seen, independent of the window
	epoch    uint32
	hasEpoch bool

	emptyReceives int
	lastRetry     time.Time
	now           func() time.Time
}

type ProcessorOption func(*Processor)

func WithFallback(fc FallbackController) ProcessorOption {
	return func(p *Processor) {
		if fc != nil {
			p.fallback = fc
		}
	}
}

func WithMetrics(m Metrics) ProcessorOption {
	return func(p *Processor) {
		if m != nil {
			p.metrics = m
		}
	}
}

func NewProcessor(
	settings Settings,
	source Acquirer,
	buffers *Buffers,
	sink DiagnosticSink,
	opts ...ProcessorOption,
) (*Processor, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	p := &Processor{
		settings:   settings,
		source:     source,
		buffers:    buffers,
		diag:       sink,
		fallback:   noopFallback{},
		metrics:    noopMetrics{},
		window:     NewWindow(settings.Phases),
		classifier: NewClassifier(settings.Rules, settings.Thresholds, settings.Phases),
		now:        time.Now,
	}
	for ch := range p.cycles {
		p.cycles[ch] = NewCycleAnalyzer()
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Run consumes samples until ctx is cancelled or the source channel is
// closed.
func (p *Processor) Run(ctx context.Context) error {
	samples := p.source.Samples()

	timer := time.NewTimer(p.settings.ReceiveWait)
	defer timer.Stop()

	logger.Info().
		Int("phases", p.settings.Phases).
		Dur("receive_wait", p.settings.ReceiveWait).
		Msg("Processing loop started")

	for {
		resetTimer(timer, p.settings.ReceiveWait)

		select {
		case <-ctx.Done():
			logger.Info().Msg("Processing loop stopped")
			return nil
		case raw, ok := <-samples:
			if !ok {
				logger.Info().Msg("Sample source closed")
				return nil
			}
			p.checkOverflow()
			p.process(ctx, raw)
		case <-timer.C:
			p.idle(ctx)
		}
	}
}

func (p *Processor) checkOverflow() {
	// The sample just received has already left the queue.
	pending := p.source.Pending()
	if pending+1 >= p.source.Capacity() {
		p.raise(diag.ADCBufferFull, pending+1)
	}
}

func (p *Processor) idle(ctx context.Context) {
	if p.source.Running() {
		p.emptyReceives++
		if p.emptyReceives == p.settings.StallLimit {
			logger.Warn().
				Int("empty_receives", p.emptyReceives).
				Msg("Acquisition stalled")
			p.raise(diag.SamplingStopped, p.emptyReceives)
			p.source.MarkStalled()
		}
		return
	}

	p.emptyReceives = 0

	if !p.fallback.Paused() {
		return
	}

	now := p.now()
	if now.Sub(p.lastRetry) < p.settings.RetryInterval {
		return
	}
	p.lastRetry = now
	p.fallback.Retry(ctx)
}

func (p *Processor) process(ctx context.Context, raw RawSample) {
	p.emptyReceives = 0

	if p.hasEpoch && raw.RTCTime != p.epoch {
		logger.Debug().
			Uint32("previous", p.epoch).
			Uint32("current", raw.RTCTime).
			Bool("partial_window", !p.window.Empty()).
			Msg("Acquisition epoch changed, resetting analysis")
		p.window.Reset()
		p.classifier.Reset()
		for _, c := range p.cycles {
			c.Reset()
		}
	}
	p.epoch = raw.RTCTime
	p.hasEpoch = true

	if p.window.Empty() {
		p.window.Begin(raw)
	}

	v, i := p.settings.Calibration.Scale(raw, p.settings.Phases)
	p.window.Add(v, i)

	for ch := 0; ch < p.settings.Phases; ch++ {
		p.classifier.ObserveSample(ch, v[ch])
		if m, ok := p.cycles[ch].Feed(v[ch], i[ch], raw.Usecs); ok {
			p.classifier.ObserveCycle(ch, m)
		}
	}

	if err := p.buffers.waveform.Push(WaveFrame{v[0], v[1], i[0], i[1]}); err != nil {
		logger.Debug().Err(err).Msg("Waveform frame dropped")
	}

	if p.window.Due(raw.Usecs) {
		p.closeWindow(ctx, raw.Usecs)
	}
}

func (p *Processor) closeWindow(ctx context.Context, lastUsecs uint32) {
	sample := p.window.Close(lastUsecs)

	if err := p.buffers.samples.Push(sample); err != nil {
		logger.Warn().Err(err).Uint32("timestamp", sample.Timestamp).Msg("Power sample dropped")
	}

	for _, ev := range p.classifier.Close(sample.Timestamp) {
		if err := p.buffers.events.Push(ev); err != nil {
			p.metrics.PowerEventDropped()
			logger.Warn().
				Str("type", ev.Type.String()).
				Uint8("channel", ev.Channel).
				Err(err).
				Msg("Power event dropped")
			continue
		}
		p.metrics.PowerEvent(ev.Type.String())
		logger.Info().
			Str("type", ev.Type.String()).
			Uint8("channel", ev.Channel).
			Uint32("count", ev.Count).
			Float32("avg", ev.Avg).
			Float32("worst", ev.Worst).
			Msg("Power event")
	}

	p.metrics.WindowClosed()
	logger.Debug().
		Uint32("timestamp", sample.Timestamp).
		Uint32("samples", sample.Samples).
		Float32("vrms1", sample.Vrms[0]).
		Float32("irms1", sample.Irms[0]).
		Float32("p1", sample.P[0]).
		Msg("Window closed")

	p.fallback.OnWindowClose(ctx)
}

func (p *Processor) raise(t diag.Type, value int) {
	if p.diag == nil {
		return
	}
	_ = p.diag.Raise(t, value)
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		drainTimer(t)
	}
	t.Reset(d)
}

func drainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}
