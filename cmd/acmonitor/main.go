package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/acmonitor/internal/acquisition"
	"codeberg.org/mutker/acmonitor/internal/clock"
	"codeberg.org/mutker/acmonitor/internal/config"
	"codeberg.org/mutker/acmonitor/internal/diag"
	"codeberg.org/mutker/acmonitor/internal/errors"
	"codeberg.org/mutker/acmonitor/internal/flash"
	"codeberg.org/mutker/acmonitor/internal/link"
	"codeberg.org/mutker/acmonitor/internal/logger"
	"codeberg.org/mutker/acmonitor/internal/metrics"
	"codeberg.org/mutker/acmonitor/internal/pid"
	"codeberg.org/mutker/acmonitor/internal/power"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")

	if err := run(cfg); err != nil {
		logger.Error().Err(err).Msg("Exiting with error")
		os.Exit(1)
	}
	logger.Info().Msg("Exiting...")
}

func run(cfg *config.Config) error {
	errFactory := errors.New()

	pidFile := pid.New("")
	if err := pidFile.Write(); err != nil {
		return err
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverLink := &link.Flag{}
	go handleSignals(cancel, serverLink)

	clk := clock.System{}

	var (
		buffers *power.Buffers
		diags   *diag.Log
	)
	collector, err := metrics.NewService(cfg.MetricsConfig(), metrics.Occupancy{
		Samples:     func() int { return buffers.Occupancy().Samples },
		Events:      func() int { return buffers.Occupancy().Events },
		Waveform:    func() int { return buffers.Occupancy().Waveform },
		Diagnostics: func() int { return diags.Len() },
	})
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	diags = diag.New(cfg.Buffers.Diagnostics, clk, diag.WithObserver(func(t diag.Type) {
		collector.Diagnostic(t.String())
	}))
	buffers = power.NewBuffers(cfg.BufferSizes(), diags)

	source, err := acquisition.New(cfg.SourceConfig(), clk)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	store, err := flash.NewStore(cfg.FlashConfig(), logger.Get())
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close flash store")
		}
	}()

	controller := flash.NewController(cfg.FlashConfig(), cfg.Phases, store, serverLink, source, buffers, diags,
		flash.WithMetrics(collector))

	processor, err := power.NewProcessor(cfg.PowerSettings(), source, buffers, diags,
		power.WithFallback(controller),
		power.WithMetrics(collector),
	)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	go func() {
		if err := collector.Serve(ctx); err != nil {
			logger.Error().Err(err).Msg("Metrics endpoint stopped")
		}
	}()

	if err := source.Open(ctx); err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	defer func() {
		if err := source.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close acquisition source")
		}
	}()

	if err := source.Start(); err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	logger.Info().
		Str("source", cfg.Source.Kind).
		Int("phases", cfg.Phases).
		Bool("flash", cfg.Flash.Enabled).
		Msg("Monitoring mains")

	if err := processor.Run(ctx); err != nil {
		return errFactory.Wrap(errors.ErrMainLoop, err)
	}

	if err := source.Pause(); err != nil {
		logger.Warn().Err(err).Msg("Failed to pause acquisition")
	}

	return nil
}

// handleSignals cancels on SIGINT/SIGTERM. SIGUSR1 and SIGUSR2 mark the
// network server session as up and down for hosts without a server.
func handleSignals(cancel context.CancelFunc, serverLink *link.Flag) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	for sig := range sigs {
		switch sig {
		case syscall.SIGUSR1:
			serverLink.Set(true)
			logger.Info().Msg("Server session marked connected")
		case syscall.SIGUSR2:
			serverLink.Set(false)
			logger.Info().Msg("Server session marked disconnected")
		default:
			logger.Info().Msg("Received termination signal.")
			cancel()
			return
		}
	}
}
