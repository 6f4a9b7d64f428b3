// Package sim is a deterministic simulation of the microscope, used for development and tests.
//
// Tilt rotations take real time: the angle advances every tick at the speed of the selected
// drive rate, the tilt axis reports Moving while in flight, and Stop leaves the stage at the
// angle reached so far. Everything else answers immediately with fixed, settable values.
package sim

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/epoc-ed/go-simpletem/hw"
)

// BackendName is the name the simulation registers under in the hw backend registry.
const BackendName = "sim"

func init() {
	hw.Register(BackendName, func(bc hw.BackendConfig) (hw.Instrument, error) {
		var opts []Option
		if len(bc.DriveRates) > 0 {
			opts = append(opts, WithDriveRates(bc.DriveRates...))
		}
		if bc.TiltLimit > 0 {
			opts = append(opts, WithTiltLimit(bc.TiltLimit))
		}
		if bc.Tick > 0 {
			opts = append(opts, WithTick(bc.Tick))
		}
		if bc.Logger != nil {
			opts = append(opts, WithLogger(bc.Logger))
		}

		m, err := New(opts...)
		if err != nil {
			return hw.Instrument{}, err
		}

		return m.Instrument(), nil
	})
}

var functionModes = []string{"MAG", "MAG2", "LowMAG", "SAMAG", "DIFF"}

// magnification tables per function mode, indexed by selector
var magTables = [][]int{
	{2000, 5000, 10000, 15000, 25000, 50000, 100000},
	{2000, 5000, 10000, 15000, 25000, 50000, 100000},
	{50, 100, 200, 500, 1000},
	{8000, 10000, 12000, 15000},
	{100, 150, 200, 250, 300},
}

// Microscope is the simulated instrument. Its capability groups are obtained with Instrument.
type Microscope struct {
	cfg *Config

	mu        sync.RWMutex
	pos       hw.StagePosition
	status    hw.StageStatus
	driveRate int
	stopCh    chan struct{} // non-nil while a rotation is in flight

	lens      map[hw.LensID]uint16
	ilFocus   uint16
	defl      map[hw.DeflectorID]hw.XY
	beamBlank bool
	funcMode  int
	selector  int
	spotSize  int
	alpha     int
	apertures [hw.ApertureEDS + 1]int

	// tiltMu serializes rotations; the state above stays readable during one
	tiltMu sync.Mutex
}

// New creates a simulated microscope.
func New(opts ...Option) (*Microscope, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return &Microscope{
		cfg: cfg,
		pos: cfg.initial,
		lens: map[hw.LensID]uint16{
			hw.LensCL3: 0xFF00,
			hw.LensIL1: 0xFFF0,
			hw.LensIL3: 0x8000,
			hw.LensOLf: 0x4000,
			hw.LensOLc: 0x2000,
		},
		defl: map[hw.DeflectorID]hw.XY{
			hw.DeflectorILs: {21000, 22000},
			hw.DeflectorPLA: {25000, 26000},
		},
		selector: 3,
	}, nil
}

// Instrument returns the capability groups of m.
func (m *Microscope) Instrument() hw.Instrument {
	return hw.Instrument{
		Stage:     &stage{m},
		Lens:      &lens{m},
		Deflector: &deflector{m},
		Optics:    &optics{m},
		Aperture:  &aperture{m},
	}
}

// ILFocus returns the last IL focus written through the Lens group.
func (m *Microscope) ILFocus() uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.ilFocus
}

// DriveRateSpeed returns the speed in degrees per second of drive-rate index.
func (m *Microscope) DriveRateSpeed(index int) (float64, error) {
	if index < 0 || index >= len(m.cfg.driveRates) {
		return 0, fmt.Errorf("%w: %d", hw.ErrInvalidDriveRate, index)
	}

	return m.cfg.driveRates[index], nil
}

// rotate runs one tilt rotation to the angle computed by targetOf from the current angle.
func (m *Microscope) rotate(targetOf func(current float64) float64) error {
	m.tiltMu.Lock()
	defer m.tiltMu.Unlock()

	m.mu.Lock()
	target := targetOf(m.pos[hw.AxisTiltX])
	if math.IsNaN(target) || math.Abs(target) > m.cfg.tiltLimit {
		m.status[hw.AxisTiltX] = hw.HardwareLimitError
		m.mu.Unlock()
		m.cfg.logger.Warn("tilt target beyond limit", "target", target, "limit", m.cfg.tiltLimit)

		return fmt.Errorf("tilt to %.2f deg: %w", target, hw.ErrHardwareLimit)
	}

	if target == m.pos[hw.AxisTiltX] {
		m.status[hw.AxisTiltX] = hw.Rest
		m.mu.Unlock()

		return nil
	}

	rate := m.cfg.driveRates[m.driveRate]
	stop := make(chan struct{})
	m.stopCh = stop
	m.status[hw.AxisTiltX] = hw.Moving
	m.mu.Unlock()

	m.cfg.logger.Debug("tilt started", "target", target, "rate", rate)

	ticker := time.NewTicker(m.cfg.tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			return hw.ErrStopped

		case now := <-ticker.C:
			step := rate * now.Sub(last).Seconds()
			last = now

			if done, err := m.advance(stop, target, step); done {
				return err
			}
		}
	}
}

// advance moves the tilt angle one step toward target. It reports done when the rotation is over.
func (m *Microscope) advance(stop chan struct{}, target, step float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Stop may have won the race against this tick
	if m.stopCh != stop {
		return true, hw.ErrStopped
	}

	remaining := target - m.pos[hw.AxisTiltX]
	if math.Abs(remaining) <= step {
		m.pos[hw.AxisTiltX] = target
		m.status[hw.AxisTiltX] = hw.Rest
		m.stopCh = nil

		return true, nil
	}
	m.pos[hw.AxisTiltX] += math.Copysign(step, remaining)

	return false, nil
}

func (m *Microscope) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	m.stopCh = nil
	m.status[hw.AxisTiltX] = hw.Rest
	m.cfg.logger.Debug("tilt stopped", "angle", m.pos[hw.AxisTiltX])
}
