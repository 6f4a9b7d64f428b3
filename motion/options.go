package motion

import (
	"errors"
	"time"

	"github.com/epoc-ed/go-simpletem/logger"
)

// Config holds the settings of a Controller.
type Config struct {
	// queueSize is the capacity of the motion queue.
	// Defaults to 16.
	queueSize int

	// enqueueTimeout bounds how long Submit waits for room in a full queue.
	// Defaults to 1 second.
	enqueueTimeout time.Duration

	// fastestDriveRate is the drive-rate index a max speed rotation switches to.
	// Defaults to hw.FastestDriveRate.
	fastestDriveRate int

	logger logger.Logger
}

// Option configures a Controller.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithQueueSize sets the capacity of the motion queue. It must be positive.
func WithQueueSize(size int) Option {
	return optFunc(func(cfg *Config) error {
		if size <= 0 {
			return errors.New("motion queue size must be positive")
		}
		cfg.queueSize = size

		return nil
	})
}

// WithEnqueueTimeout sets how long Submit waits when the queue is full.
func WithEnqueueTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("enqueue timeout must be positive")
		}
		cfg.enqueueTimeout = d

		return nil
	})
}

// WithFastestDriveRate sets the drive-rate index used by max speed rotations.
func WithFastestDriveRate(index int) Option {
	return optFunc(func(cfg *Config) error {
		if index < 0 {
			return errors.New("drive-rate index must not be negative")
		}
		cfg.fastestDriveRate = index

		return nil
	})
}

// WithLogger sets the logger of the controller.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
