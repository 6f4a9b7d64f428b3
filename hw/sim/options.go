package sim

import (
	"errors"
	"time"

	"github.com/epoc-ed/go-simpletem/hw"
	"github.com/epoc-ed/go-simpletem/logger"
)

// Config holds the settings of a simulated microscope.
type Config struct {
	// driveRates is the tilt speed table in degrees per second, fastest first.
	// Defaults to hw.DefaultDriveRates.
	driveRates []float64

	// tiltLimit is the largest absolute tilt angle in degrees. Defaults to 90.
	tiltLimit float64

	// tick is the interval at which a rotation advances. Defaults to 10ms.
	tick time.Duration

	// initial is the stage position at creation. Defaults to (1.1, 1.2, 1.3, 0, 1.5).
	initial hw.StagePosition

	logger logger.Logger
}

func defaultConfig() *Config {
	return &Config{
		driveRates: append([]float64(nil), hw.DefaultDriveRates...),
		tiltLimit:  90,
		tick:       10 * time.Millisecond,
		initial:    hw.StagePosition{1.1, 1.2, 1.3, 0, 1.5},
		logger:     logger.GetLogger(),
	}
}

// Option configures a simulated microscope.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithDriveRates sets the tilt speed table in degrees per second, index 0 being the fastest.
// Every rate must be positive.
func WithDriveRates(rates ...float64) Option {
	return optFunc(func(cfg *Config) error {
		if len(rates) == 0 {
			return errors.New("drive rate table is empty")
		}
		for _, r := range rates {
			if r <= 0 {
				return errors.New("drive rates must be positive")
			}
		}
		cfg.driveRates = append([]float64(nil), rates...)

		return nil
	})
}

// WithTiltLimit sets the largest absolute tilt angle in degrees.
func WithTiltLimit(deg float64) Option {
	return optFunc(func(cfg *Config) error {
		if deg <= 0 {
			return errors.New("tilt limit must be positive")
		}
		cfg.tiltLimit = deg

		return nil
	})
}

// WithTick sets the interval at which a rotation advances.
func WithTick(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("tick must be positive")
		}
		cfg.tick = d

		return nil
	})
}

// WithInitialPosition sets the stage position at creation.
func WithInitialPosition(pos hw.StagePosition) Option {
	return optFunc(func(cfg *Config) error {
		cfg.initial = pos
		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
