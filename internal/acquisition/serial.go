package acquisition

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/acmonitor/internal/errors"
	"codeberg.org/mutker/acmonitor/internal/logger"
	"codeberg.org/mutker/acmonitor/internal/power"
	"go.bug.st/serial"
)

// Front end commands.
const (
	cmdStart = "S\n"
	cmdPause = "P\n"
)

// Serial reads samples from an ADC front end streaming text lines of the
// form rtc,usecs,v1,v2,i1,i2.
type Serial struct {
	port string
	baud int

	samples chan power.RawSample
	running atomic.Bool
	dropped atomic.Uint64

	mu     sync.Mutex
	conn   io.ReadWriteCloser
	cancel context.CancelFunc
	done   chan struct{}
	open   func(name string, baud int) (io.ReadWriteCloser, error)
}

var _ Source = (*Serial)(nil)

func NewSerial(cfg Config) *Serial {
	cfg = cfg.withDefaults()
	return &Serial{
		port:    cfg.Port,
		baud:    cfg.Baud,
		samples: make(chan power.RawSample, cfg.BufferSize),
		open:    openPort,
	}
}

func openPort(name string, baud int) (io.ReadWriteCloser, error) {
	return serial.Open(name, &serial.Mode{BaudRate: baud})
}

// Open connects to the port and starts the reader goroutine.
func (s *Serial) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}

	conn, err := s.open(s.port, s.baud)
	if err != nil {
		return errors.New().Wrap(ErrOpenPort, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.conn = conn
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.readSamples(ctx, conn)

	logger.Info().
		Str("port", s.port).
		Int("baud", s.baud).
		Msg("Serial acquisition opened")

	return nil
}

func (s *Serial) Close() error {
	s.mu.Lock()
	conn, cancel, done := s.conn, s.cancel, s.done
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	s.running.Store(false)
	cancel()
	err := conn.Close()
	<-done
	close(s.samples)

	if err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}
	return nil
}

func (s *Serial) Start() error {
	if s.running.Load() {
		return nil
	}
	if err := s.command(cmdStart); err != nil {
		return err
	}
	s.running.Store(true)
	return nil
}

func (s *Serial) Pause() error {
	if !s.running.Load() {
		return nil
	}
	if err := s.command(cmdPause); err != nil {
		return err
	}
	s.running.Store(false)
	return nil
}

func (s *Serial) command(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	errFactory := errors.New()
	if s.conn == nil {
		return errFactory.WithData(ErrNotOpen, s.port)
	}
	if _, err := io.WriteString(s.conn, cmd); err != nil {
		return errFactory.Wrap(ErrCommand, err)
	}
	return nil
}

func (s *Serial) Running() bool {
	return s.running.Load()
}

func (s *Serial) MarkStalled() {
	s.running.Store(false)
}

func (s *Serial) Pending() int {
	return len(s.samples)
}

func (s *Serial) Capacity() int {
	return cap(s.samples)
}

func (s *Serial) Samples() <-chan power.RawSample {
	return s.samples
}

func (s *Serial) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Serial) readSamples(ctx context.Context, r io.Reader) {
	defer close(s.done)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		raw, err := parseLine(line)
		if err != nil {
			logger.Debug().Str("line", line).Err(err).Msg("Skipping malformed line")
			continue
		}

		select {
		case s.samples <- raw:
		case <-ctx.Done():
			return
		default:
			if s.dropped.Add(1) == 1 {
				logger.Warn().Msg("Sample channel full, dropping samples")
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Str("port", s.port).Msg("Serial read failed")
	}
}

// parseLine decodes rtc,usecs,v1,v2,i1,i2.
func parseLine(line string) (power.RawSample, error) {
	var raw power.RawSample
	errFactory := errors.New()

	parts := strings.Split(line, ",")
	if len(parts) != 2+power.NumChannels {
		return raw, errFactory.WithData(ErrInvalidLine, struct {
			Fields int
		}{len(parts)})
	}

	rtc, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return raw, errFactory.Wrap(ErrInvalidLine, err)
	}
	usecs, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return raw, errFactory.Wrap(ErrInvalidLine, err)
	}

	raw.RTCTime = uint32(rtc)
	raw.Usecs = uint32(usecs)

	for ch := 0; ch < power.NumChannels; ch++ {
		code, err := strconv.ParseInt(parts[2+ch], 10, 16)
		if err != nil {
			return power.RawSample{}, errFactory.Wrap(ErrInvalidLine, err)
		}
		raw.Data[ch] = int16(code)
	}

	return raw, nil
}
