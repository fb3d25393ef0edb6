// Package metrics exports buffer occupancy and processing counters in the
// Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"codeberg.org/mutker/acmonitor/internal/errors"
	"codeberg.org/mutker/acmonitor/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "acmonitor"

	shutdownTimeout = 5 * time.Second
)

type service struct {
	cfg      Config
	registry *prometheus.Registry

	windows       prometheus.Counter
	events        *prometheus.CounterVec
	eventsDropped prometheus.Counter
	diagnostics   *prometheus.CounterVec
	drains        prometheus.Counter
	flashErrors   prometheus.Counter
	paused        prometheus.Gauge
}

// No-op implementation
type noopCollector struct{}

// NewService registers the collectors on a private registry. A disabled
// config yields a no-op collector.
func NewService(cfg Config, occ Occupancy) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled() {
		logger.Debug().Msg("Metrics disabled, using no-op collector")
		return noopCollector{}, nil
	}

	s := &service{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		windows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_total",
			Help:      "Total aggregation windows closed",
		}),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "power_events_total",
				Help:      "Total power events queued by type",
			},
			[]string{"type"},
		),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "power_events_dropped_total",
			Help:      "Total power events dropped on a full buffer",
		}),
		diagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "diagnostics_total",
				Help:      "Total diagnostic events raised by type",
			},
			[]string{"type"},
		),
		drains: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_cycles_total",
			Help:      "Total flash drain cycles",
		}),
		flashErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flash_errors_total",
			Help:      "Total failed flash writes and aggregations",
		}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "acquisition_paused",
			Help:      "1 while the flash fallback holds acquisition paused",
		}),
	}

	collectors := []prometheus.Collector{
		s.windows, s.events, s.eventsDropped, s.diagnostics, s.drains, s.flashErrors, s.paused,
	}
	for name, fn := range map[string]func() int{
		"power_samples_buffered":   occ.Samples,
		"power_events_buffered":    occ.Events,
		"waveform_frames_buffered": occ.Waveform,
		"diagnostics_buffered":     occ.Diagnostics,
	} {
		fn := fn
		if fn == nil {
			continue
		}
		collectors = append(collectors, prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      name,
				Help:      "Current ring buffer occupancy",
			},
			func() float64 { return float64(fn()) },
		))
	}

	for _, c := range collectors {
		if err := s.registry.Register(c); err != nil {
			return nil, errFactory.Wrap(ErrRegister, err)
		}
	}

	logger.Debug().Str("listen", cfg.Listen).Msg("Metrics service initialized")

	return s, nil
}

func (s *service) WindowClosed()          { s.windows.Inc() }
func (s *service) PowerEvent(kind string) { s.events.WithLabelValues(kind).Inc() }
func (s *service) PowerEventDropped()     { s.eventsDropped.Inc() }
func (s *service) Diagnostic(kind string) { s.diagnostics.WithLabelValues(kind).Inc() }
func (s *service) DrainCycle()            { s.drains.Inc() }
func (s *service) FlashError()            { s.flashErrors.Inc() }

func (s *service) ControllerState(paused bool) {
	if paused {
		s.paused.Set(1)
		return
	}
	s.paused.Set(0)
}

func (s *service) handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func (s *service) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.handler())

	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("listen", s.cfg.Listen).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.New().Wrap(ErrServe, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.New().Wrap(ErrServe, err)
		}
		return nil
	}
}

func (noopCollector) WindowClosed()               {}
func (noopCollector) PowerEvent(string)           {}
func (noopCollector) PowerEventDropped()          {}
func (noopCollector) Diagnostic(string)           {}
func (noopCollector) DrainCycle()                 {}
func (noopCollector) FlashError()                 {}
func (noopCollector) ControllerState(bool)        {}
func (noopCollector) Serve(context.Context) error { return nil }
