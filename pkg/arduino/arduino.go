// Package arduino sends actuation commands to an Arduino-class board over a
// serial link.
//
// Opening the port resets most boards, so Open blocks for Config.SettleDelay
// before returning. Commands are framed as ASCII lines ("LED:7\n") and written
// with a single Write.
package arduino

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"

	"github.com/teslashibe/go-itemsense/pkg/actuation"
)

// Sentinel errors.
var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("arduino: link closed")

	// ErrShortWrite is returned when the port accepted fewer bytes than the
	// encoded command.
	ErrShortWrite = errors.New("arduino: short write")
)

// Actuator delivers commands to hardware.
type Actuator interface {
	Send(cmd actuation.Command) error
	Close() error
}

// Config configures the serial link.
type Config struct {
	// Port is the device path, e.g. /dev/ttyACM0 or COM3.
	Port string `yaml:"port"`

	// Baud is the line speed.
	Baud int `yaml:"baud"`

	// SettleDelay is how long to wait after opening before the first write.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// ReadTimeout bounds reads on the port. Zero blocks.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// DefaultConfig returns the settings the board firmware expects.
func DefaultConfig() Config {
	return Config{
		Port:        "/dev/ttyACM0",
		Baud:        9600,
		SettleDelay: 2 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("serial port is required")
	}
	if c.Baud <= 0 {
		return fmt.Errorf("baud must be positive, got %d", c.Baud)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must not be negative, got %s", c.SettleDelay)
	}
	return nil
}

// Opener opens the underlying port. Tests substitute an in-memory one.
type Opener func(cfg Config) (io.WriteCloser, error)

// OpenSerial opens cfg.Port with github.com/tarm/serial.
func OpenSerial(cfg Config) (io.WriteCloser, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Serial is an Actuator backed by a serial port. It is safe for concurrent
// use, though the pipeline only sends from one goroutine.
type Serial struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	port   io.WriteCloser
	closed bool

	sent   atomic.Int64
	failed atomic.Int64
}

var _ Actuator = (*Serial)(nil)

// Open opens the configured serial port and waits for the board to settle.
// If logger is nil, slog.Default() is used.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Serial, error) {
	return OpenWith(ctx, cfg, OpenSerial, logger)
}

// OpenWith is Open with a custom Opener.
func OpenWith(ctx context.Context, cfg Config, open Opener, logger *slog.Logger) (*Serial, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	port, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("arduino: open %s: %w", cfg.Port, err)
	}

	if cfg.SettleDelay > 0 {
		logger.Info("waiting for board reset", "port", cfg.Port, "delay", cfg.SettleDelay)
		timer := time.NewTimer(cfg.SettleDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			port.Close()
			return nil, ctx.Err()
		}
	}

	logger.Info("serial link ready", "port", cfg.Port, "baud", cfg.Baud)
	return &Serial{cfg: cfg, logger: logger, port: port}, nil
}

// Send writes the encoded command.
func (s *Serial) Send(cmd actuation.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	frame := cmd.Encode()
	n, err := s.port.Write(frame)
	if err != nil {
		s.failed.Add(1)
		return fmt.Errorf("arduino: write %s: %w", cmd, err)
	}
	if n != len(frame) {
		s.failed.Add(1)
		return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(frame))
	}

	s.sent.Add(1)
	s.logger.Debug("command sent", "label", cmd.Label, "pin", cmd.Pin)
	return nil
}

// Close releases the port. Calling it more than once is a no-op.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}

// Stats returns how many sends succeeded and failed.
func (s *Serial) Stats() (sent, failed int64) {
	return s.sent.Load(), s.failed.Load()
}

// Port returns the configured device path.
func (s *Serial) Port() string { return s.cfg.Port }
