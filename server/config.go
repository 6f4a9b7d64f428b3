package server

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/epoc-ed/go-simpletem/logger"
)

// DefaultPort is the TCP port the server listens on unless configured otherwise.
const DefaultPort = 3535

// FatalFunc is called on a protocol fatal condition. The default calls Fatal on the logger,
// which exits the process with status 1.
type FatalFunc func(msg string, keysAndValues ...any)

// Config represents the configuration of a Server.
type Config struct {
	// host is the interface to listen on. "*" and "" mean all interfaces.
	// Defaults to "*".
	host string

	// port is the TCP port to listen on. 0 picks an ephemeral port.
	// Defaults to DefaultPort.
	port int

	// version is the payload of the version command.
	// Defaults to "dev".
	version string

	// readTimeout bounds reading a frame body once its length header arrived, and writing a reply.
	// Sessions may idle between requests without limit.
	// Defaults to 5 seconds.
	readTimeout time.Duration

	// shutdownTimeout bounds the wait for the motion worker and the session readers on shutdown.
	// Defaults to 5 seconds.
	shutdownTimeout time.Duration

	// requestQueueSize is the capacity of the channel between session readers and the dispatch loop.
	// Defaults to 64.
	requestQueueSize int

	// motionQueueSize is the capacity of the motion queue.
	// Defaults to 16.
	motionQueueSize int

	// motionEnqueueTimeout bounds how long an asynchronous tilt waits for room in the motion queue.
	// Defaults to 1 second.
	motionEnqueueTimeout time.Duration

	fatal  FatalFunc
	logger logger.Logger
}

// NewConfig creates a server configuration with default values, then applies opts.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		host:                 "*",
		port:                 DefaultPort,
		version:              "dev",
		readTimeout:          5 * time.Second,
		shutdownTimeout:      5 * time.Second,
		requestQueueSize:     64,
		motionQueueSize:      16,
		motionEnqueueTimeout: time.Second,
		logger:               logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// Address returns the listen address in host:port form.
func (cfg *Config) Address() string {
	host := cfg.host
	if host == "*" {
		host = ""
	}

	return net.JoinHostPort(host, strconv.Itoa(cfg.port))
}

// Logger returns the configured logger.
func (cfg *Config) Logger() logger.Logger {
	return cfg.logger
}

func (cfg *Config) fatalFunc() FatalFunc {
	if cfg.fatal != nil {
		return cfg.fatal
	}

	return cfg.logger.Fatal
}

// Option represents a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc struct {
	name      string
	applyFunc func(*Config) error
}

func (o *optFunc) apply(cfg *Config) error { return o.applyFunc(cfg) }

func newOptFunc(name string, f func(*Config) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// WithHost sets the interface to listen on, as an IP address, a host name, or "*" for all interfaces.
func WithHost(host string) Option {
	return newOptFunc("WithHost", func(cfg *Config) error {
		if host == "" || host == "*" || host == "localhost" || net.ParseIP(host) != nil {
			cfg.host = host
			return nil
		}

		if _, err := net.LookupHost(host); err != nil {
			return errors.New("invalid host")
		}
		cfg.host = host

		return nil
	})
}

// WithPort sets the TCP port. 0 picks an ephemeral port, which Server.Addr reports after Listen.
func WithPort(port int) Option {
	return newOptFunc("WithPort", func(cfg *Config) error {
		if port < 0 || port > 65535 {
			return errors.New("invalid port number")
		}
		cfg.port = port

		return nil
	})
}

// WithVersion sets the payload of the version command.
func WithVersion(version string) Option {
	return newOptFunc("WithVersion", func(cfg *Config) error {
		cfg.version = version
		return nil
	})
}

// WithReadTimeout sets the frame body read and reply write timeout.
// It should be between 100 milliseconds and 60 seconds.
func WithReadTimeout(val time.Duration) Option {
	return newOptFunc("WithReadTimeout", func(cfg *Config) error {
		if val < 100*time.Millisecond || val > 60*time.Second {
			return errors.New("invalid read timeout")
		}
		cfg.readTimeout = val

		return nil
	})
}

// WithShutdownTimeout sets the shutdown timeout. It should be between 100 milliseconds and 5 minutes.
func WithShutdownTimeout(val time.Duration) Option {
	return newOptFunc("WithShutdownTimeout", func(cfg *Config) error {
		if val < 100*time.Millisecond || val > 5*time.Minute {
			return errors.New("invalid shutdown timeout")
		}
		cfg.shutdownTimeout = val

		return nil
	})
}

// WithRequestQueueSize sets the capacity of the channel feeding the dispatch loop.
func WithRequestQueueSize(size int) Option {
	return newOptFunc("WithRequestQueueSize", func(cfg *Config) error {
		if size <= 0 {
			return errors.New("invalid request queue size")
		}
		cfg.requestQueueSize = size

		return nil
	})
}

// WithMotionQueueSize sets the capacity of the motion queue.
func WithMotionQueueSize(size int) Option {
	return newOptFunc("WithMotionQueueSize", func(cfg *Config) error {
		if size <= 0 {
			return errors.New("invalid motion queue size")
		}
		cfg.motionQueueSize = size

		return nil
	})
}

// WithMotionEnqueueTimeout sets how long an asynchronous tilt waits for room in a full motion queue.
func WithMotionEnqueueTimeout(val time.Duration) Option {
	return newOptFunc("WithMotionEnqueueTimeout", func(cfg *Config) error {
		if val <= 0 {
			return errors.New("invalid motion enqueue timeout")
		}
		cfg.motionEnqueueTimeout = val

		return nil
	})
}

// WithFatalHandler replaces the protocol fatal hook. The default logs at Fatal and exits with status 1.
// When the hook returns, Serve returns an error wrapping ErrProtocolFatal.
func WithFatalHandler(f FatalFunc) Option {
	return newOptFunc("WithFatalHandler", func(cfg *Config) error {
		if f == nil {
			return errors.New("fatal handler is nil")
		}
		cfg.fatal = f

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
