package hw

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/epoc-ed/go-simpletem/logger"
)

// BackendConfig carries the settings a backend may use when it is opened.
type BackendConfig struct {
	// DriveRates is the tilt speed table in degrees per second, fastest first.
	DriveRates []float64
	// TiltLimit is the largest absolute tilt angle in degrees.
	TiltLimit float64
	// Tick is the motion update interval of simulated backends.
	Tick   time.Duration
	Logger logger.Logger
}

// OpenFunc opens a backend.
type OpenFunc func(cfg BackendConfig) (Instrument, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]OpenFunc)
)

// Register makes a backend available under name. It panics on duplicate or empty names,
// since registration happens from init functions.
func Register(name string, open OpenFunc) {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	if name == "" || open == nil {
		panic("hw: Register with empty name or nil open function")
	}
	if _, dup := backends[name]; dup {
		panic("hw: Register called twice for backend " + name)
	}
	backends[name] = open
}

// Open opens the backend registered under name.
func Open(name string, cfg BackendConfig) (Instrument, error) {
	backendsMu.RLock()
	open, ok := backends[name]
	backendsMu.RUnlock()

	if !ok {
		return Instrument{}, fmt.Errorf("%w %q, available: %v", ErrUnknownBackend, name, Backends())
	}

	return open(cfg)
}

// Backends returns the sorted names of the registered backends.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
