package client

import (
	"errors"
	"time"

	"github.com/epoc-ed/go-simpletem/logger"
)

// DefaultPort is the port of the server.
const DefaultPort = 3535

// Config holds the settings of a Client.
type Config struct {
	// port is the TCP port of the server.
	// Defaults to DefaultPort.
	port int

	// timeout bounds a whole call: connect, send and wait for the reply.
	// Defaults to 5 seconds.
	timeout time.Duration

	// pingTimeout is the timeout of the ping liveness probe.
	// Defaults to 1 second.
	pingTimeout time.Duration

	// persistent keeps one connection open across calls instead of connecting per call.
	// Defaults to false.
	persistent bool

	// retryAttempts is the number of attempts IsRotating makes before it fails.
	// Defaults to 3.
	retryAttempts int

	// retryDelay is the pause between IsRotating attempts.
	// Defaults to 100 milliseconds.
	retryDelay time.Duration

	// pollInterval is the period at which WaitForStage polls the stage status.
	// Defaults to 100 milliseconds.
	pollInterval time.Duration

	logger logger.Logger
}

func defaultConfig() *Config {
	return &Config{
		port:          DefaultPort,
		timeout:       5 * time.Second,
		pingTimeout:   time.Second,
		retryAttempts: 3,
		retryDelay:    100 * time.Millisecond,
		pollInterval:  100 * time.Millisecond,
		logger:        logger.GetLogger(),
	}
}

// Option configures a Client.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithPort sets the TCP port of the server.
func WithPort(port int) Option {
	return optFunc(func(cfg *Config) error {
		if port <= 0 || port > 65535 {
			return errors.New("invalid port number")
		}
		cfg.port = port

		return nil
	})
}

// WithTimeout sets the timeout of general commands.
func WithTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d

		return nil
	})
}

// WithPingTimeout sets the timeout of Ping.
func WithPingTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("ping timeout must be positive")
		}
		cfg.pingTimeout = d

		return nil
	})
}

// WithPersistentSession keeps one connection open across calls. The connection is dropped after
// any failed call and opened again by the next one.
func WithPersistentSession() Option {
	return optFunc(func(cfg *Config) error {
		cfg.persistent = true
		return nil
	})
}

// WithRetry sets how many attempts IsRotating makes and the pause between them.
func WithRetry(attempts int, delay time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if attempts < 1 {
			return errors.New("retry attempts must be at least 1")
		}
		if delay < 0 {
			return errors.New("retry delay must not be negative")
		}
		cfg.retryAttempts = attempts
		cfg.retryDelay = delay

		return nil
	})
}

// WithPollInterval sets the status polling period of WaitForStage.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = d

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
