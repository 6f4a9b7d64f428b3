package sim

import (
	"fmt"

	"github.com/epoc-ed/go-simpletem/hw"
)

type stage struct{ m *Microscope }

var _ hw.Stage = (*stage)(nil)

func (s *stage) Position() (hw.StagePosition, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	return s.m.pos, nil
}

func (s *stage) Status() (hw.StageStatus, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	return s.m.status, nil
}

func (s *stage) MoveRel(axis hw.Axis, delta float64) error {
	if axis != hw.AxisX && axis != hw.AxisY && axis != hw.AxisZ {
		return fmt.Errorf("relative move on %s is not a linear move", axis)
	}

	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	s.m.pos[axis] += delta

	return nil
}

func (s *stage) TiltTo(angle float64) error {
	return s.m.rotate(func(float64) float64 { return angle })
}

func (s *stage) TiltBy(delta float64) error {
	return s.m.rotate(func(current float64) float64 { return current + delta })
}

func (s *stage) DriveRate() (int, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	return s.m.driveRate, nil
}

func (s *stage) SetDriveRate(index int) error {
	if _, err := s.m.DriveRateSpeed(index); err != nil {
		return err
	}

	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	s.m.driveRate = index

	return nil
}

func (s *stage) MeasurementMethod() (hw.MeasurementMethod, error) {
	return hw.MeasureEncoder, nil
}

func (s *stage) Stop() error {
	s.m.stop()
	return nil
}

type lens struct{ m *Microscope }

var _ hw.Lens = (*lens)(nil)

func (l *lens) Value(id hw.LensID) (uint16, error) {
	l.m.mu.RLock()
	defer l.m.mu.RUnlock()

	v, ok := l.m.lens[id]
	if !ok {
		return 0, fmt.Errorf("unknown lens %q", id)
	}

	return v, nil
}

func (l *lens) SetILFocus(value uint16) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()

	l.m.ilFocus = value

	return nil
}

type deflector struct{ m *Microscope }

var _ hw.Deflector = (*deflector)(nil)

func (d *deflector) Value(id hw.DeflectorID) (hw.XY, error) {
	d.m.mu.RLock()
	defer d.m.mu.RUnlock()

	v, ok := d.m.defl[id]
	if !ok {
		return hw.XY{}, fmt.Errorf("unknown deflector %q", id)
	}

	return v, nil
}

func (d *deflector) SetValue(id hw.DeflectorID, value hw.XY) error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()

	if _, ok := d.m.defl[id]; !ok {
		return fmt.Errorf("unknown deflector %q", id)
	}
	d.m.defl[id] = value

	return nil
}

func (d *deflector) BeamBlank() (bool, error) {
	d.m.mu.RLock()
	defer d.m.mu.RUnlock()

	return d.m.beamBlank, nil
}

func (d *deflector) SetBeamBlank(on bool) error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()

	d.m.beamBlank = on

	return nil
}

type optics struct{ m *Microscope }

var _ hw.Optics = (*optics)(nil)

func (o *optics) Magnification() (hw.Magnification, error) {
	o.m.mu.RLock()
	defer o.m.mu.RUnlock()

	value := magTables[o.m.funcMode][o.m.selector]
	if functionModes[o.m.funcMode] == "DIFF" {
		return hw.Magnification{Value: value, Unit: "mm", Name: fmt.Sprintf("%dmm", value)}, nil
	}

	name := fmt.Sprintf("X%d", value)
	if value >= 1000 && value%1000 == 0 {
		name = fmt.Sprintf("X%dk", value/1000)
	}

	return hw.Magnification{Value: value, Unit: "X", Name: name}, nil
}

func (o *optics) FunctionMode() (hw.FunctionMode, error) {
	o.m.mu.RLock()
	defer o.m.mu.RUnlock()

	return hw.FunctionMode{Index: o.m.funcMode, Name: functionModes[o.m.funcMode]}, nil
}

func (o *optics) SelectFunctionMode(index int) error {
	if index < 0 || index >= len(functionModes) {
		return fmt.Errorf("%w: %d", hw.ErrInvalidFunctionMode, index)
	}

	o.m.mu.Lock()
	defer o.m.mu.Unlock()

	o.m.funcMode = index
	o.m.selector = min(o.m.selector, len(magTables[index])-1)

	return nil
}

func (o *optics) SetSelector(value int) error {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()

	if value < 0 || value >= len(magTables[o.m.funcMode]) {
		return fmt.Errorf("selector %d out of range [0, %d]", value, len(magTables[o.m.funcMode])-1)
	}
	o.m.selector = value

	return nil
}

func (o *optics) SpotSize() (int, error) {
	o.m.mu.RLock()
	defer o.m.mu.RUnlock()

	return o.m.spotSize, nil
}

func (o *optics) Alpha() (int, error) {
	o.m.mu.RLock()
	defer o.m.mu.RUnlock()

	return o.m.alpha, nil
}

type aperture struct{ m *Microscope }

var _ hw.Aperture = (*aperture)(nil)

func (a *aperture) HoleIndex(kind hw.ApertureKind) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %d", hw.ErrInvalidAperture, kind)
	}

	a.m.mu.RLock()
	defer a.m.mu.RUnlock()

	return a.m.apertures[kind], nil
}
