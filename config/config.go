// Package config loads the settings of the TEM server binary: built-in defaults, overlaid by an
// optional YAML file, overlaid by environment variables. A .env file, when present, is loaded into
// the environment first.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/epoc-ed/go-simpletem/hw"
	"github.com/epoc-ed/go-simpletem/logger"
	"github.com/epoc-ed/go-simpletem/server"
)

// Environment variables overriding the file.
const (
	EnvHost            = "TEM_HOST"
	EnvPort            = "TEM_PORT"
	EnvLogLevel        = "TEM_LOG_LEVEL"
	EnvBackend         = "TEM_BACKEND"
	EnvMotionQueueSize = "TEM_MOTION_QUEUE_SIZE"
)

// Config is the configuration of the server binary.
type Config struct {
	Server struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Backend struct {
		Name       string        `yaml:"name"`
		DriveRates []float64     `yaml:"drive_rates"`
		TiltLimit  float64       `yaml:"tilt_limit"`
		Tick       time.Duration `yaml:"tick"`
	} `yaml:"backend"`
	Motion struct {
		QueueSize      int           `yaml:"queue_size"`
		EnqueueTimeout time.Duration `yaml:"enqueue_timeout"`
	} `yaml:"motion"`
}

// Default returns the built-in configuration.
func Default() Config {
	var cfg Config
	cfg.Server.Host = "*"
	cfg.Server.Port = server.DefaultPort
	cfg.Server.ReadTimeout = 5 * time.Second
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Log.Level = "info"
	cfg.Backend.Name = "sim"
	cfg.Backend.DriveRates = append([]float64(nil), hw.DefaultDriveRates...)
	cfg.Backend.TiltLimit = 90
	cfg.Backend.Tick = 10 * time.Millisecond
	cfg.Motion.QueueSize = 16
	cfg.Motion.EnqueueTimeout = time.Second

	return cfg
}

// Load builds the configuration. envFile names a dotenv file that is skipped when it does not exist;
// path names the YAML file and may be empty.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if len(data) == 0 {
			return cfg, errors.New("config file is empty")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func (cfg *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvHost); ok {
		cfg.Server.Host = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		cfg.Log.Level = v
	}
	if v, ok := os.LookupEnv(EnvBackend); ok {
		cfg.Backend.Name = v
	}

	if v, ok := os.LookupEnv(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		cfg.Server.Port = port
	}

	if v, ok := os.LookupEnv(EnvMotionQueueSize); ok {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMotionQueueSize, err)
		}
		cfg.Motion.QueueSize = size
	}

	return nil
}

// Validate checks ranges and names.
func (cfg Config) Validate() error {
	var errs []error

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", cfg.Server.Port))
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if cfg.Backend.Name == "" {
		errs = append(errs, errors.New("backend.name is empty"))
	}
	if len(cfg.Backend.DriveRates) == 0 {
		errs = append(errs, errors.New("backend.drive_rates is empty"))
	}
	for i, r := range cfg.Backend.DriveRates {
		if r <= 0 {
			errs = append(errs, fmt.Errorf("backend.drive_rates[%d] must be positive, got %v", i, r))
		}
	}
	if cfg.Backend.TiltLimit <= 0 {
		errs = append(errs, errors.New("backend.tilt_limit must be positive"))
	}
	if cfg.Motion.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("motion.queue_size must be positive, got %d", cfg.Motion.QueueSize))
	}

	return errors.Join(errs...)
}

// LogLevel returns the parsed log level.
func (cfg Config) LogLevel() logger.Level {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return logger.InfoLevel
	}

	return level
}

// ServerOptions returns the server options carried by cfg.
func (cfg Config) ServerOptions(l logger.Logger) []server.Option {
	opts := []server.Option{
		server.WithHost(cfg.Server.Host),
		server.WithPort(cfg.Server.Port),
		server.WithMotionQueueSize(cfg.Motion.QueueSize),
	}
	if cfg.Server.ReadTimeout > 0 {
		opts = append(opts, server.WithReadTimeout(cfg.Server.ReadTimeout))
	}
	if cfg.Server.ShutdownTimeout > 0 {
		opts = append(opts, server.WithShutdownTimeout(cfg.Server.ShutdownTimeout))
	}
	if cfg.Motion.EnqueueTimeout > 0 {
		opts = append(opts, server.WithMotionEnqueueTimeout(cfg.Motion.EnqueueTimeout))
	}
	if l != nil {
		opts = append(opts, server.WithLogger(l))
	}

	return opts
}

// BackendConfig returns the settings passed to hw.Open.
func (cfg Config) BackendConfig(l logger.Logger) hw.BackendConfig {
	return hw.BackendConfig{
		DriveRates: cfg.Backend.DriveRates,
		TiltLimit:  cfg.Backend.TiltLimit,
		Tick:       cfg.Backend.Tick,
		Logger:     l,
	}
}
