package server

import (
	"context"
	"fmt"

	"github.com/epoc-ed/go-simpletem/hw"
	"github.com/epoc-ed/go-simpletem/motion"
)

// commands returns the complete command set. A method is remotely callable only if it appears here.
func (s *Server) commands() []Command {
	inst := s.inst

	cmds := []Command{
		{Name: "ping", Handler: getter(func() (any, error) { return "pong", nil })},
		{Name: "version", Handler: getter(func() (any, error) { return s.cfg.version, nil })},
		{Name: "exit_server", Handler: getter(s.exitServer)},

		// stage
		{Name: "GetStagePosition", Handler: getter(func() (any, error) { return inst.Stage.Position() })},
		{Name: "GetStageStatus", Handler: getter(s.stageStatus)},
		{Name: "SetXRel", Arity: 1, Handler: s.moveRel(hw.AxisX)},
		{Name: "SetYRel", Arity: 1, Handler: s.moveRel(hw.AxisY)},
		{Name: "SetZRel", Arity: 1, Handler: s.moveRel(hw.AxisZ)},
		{Name: "SetTXRel", Arity: 3, Handler: s.tilt(true)},
		{Name: "SetTiltXAngle", Arity: 3, Handler: s.tilt(false)},
		{Name: "GetTiltXAngle", Handler: getter(s.tiltXAngle)},
		{Name: "Getf1OverRateTxNum", Handler: getter(func() (any, error) { return inst.Stage.DriveRate() })},
		{Name: "Setf1OverRateTxNum", Arity: 1, Handler: intSetter(inst.Stage.SetDriveRate)},
		{Name: "GetMovementValueMeasurementMethod", Handler: getter(func() (any, error) { return inst.Stage.MeasurementMethod() })},
		{Name: "StopStage", Handler: getter(func() (any, error) { return nil, inst.Stage.Stop() })},

		// optics
		{Name: "GetMagValue", Handler: getter(func() (any, error) { return inst.Optics.Magnification() })},
		{Name: "GetFunctionMode", Handler: getter(func() (any, error) { return inst.Optics.FunctionMode() })},
		{Name: "SelectFunctionMode", Arity: 1, Handler: intSetter(inst.Optics.SelectFunctionMode)},
		{Name: "SetSelector", Arity: 1, Handler: intSetter(inst.Optics.SetSelector)},
		{Name: "GetSpotSize", Handler: getter(func() (any, error) { return inst.Optics.SpotSize() })},
		{Name: "GetAlpha", Handler: getter(func() (any, error) { return inst.Optics.Alpha() })},

		// aperture
		{Name: "GetAperatureSize", Arity: 1, Handler: s.apertureSize},

		// lens
		{Name: "SetILFocus", Arity: 1, Handler: s.setILFocus},
		{Name: "GetCL3", Handler: s.lensValue(hw.LensCL3)},
		{Name: "GetIL1", Handler: s.lensValue(hw.LensIL1)},
		{Name: "GetIL3", Handler: s.lensValue(hw.LensIL3)},
		{Name: "GetOLf", Handler: s.lensValue(hw.LensOLf)},
		{Name: "GetOLc", Handler: s.lensValue(hw.LensOLc)},

		// deflector
		{Name: "GetILs", Handler: s.deflectorValue(hw.DeflectorILs)},
		{Name: "GetPLA", Handler: s.deflectorValue(hw.DeflectorPLA)},
		{Name: "SetILs", Arity: 2, Handler: s.setDeflector(hw.DeflectorILs)},
		{Name: "GetBeamBlank", Handler: getter(s.beamBlank)},
		{Name: "SetBeamBlank", Arity: 1, Handler: s.setBeamBlank},
	}

	return cmds
}

func getter(f func() (any, error)) Handler {
	return func(Args) (any, error) {
		return f()
	}
}

func intSetter(set func(int) error) Handler {
	return func(args Args) (any, error) {
		v, err := args.Int(0)
		if err != nil {
			return nil, err
		}

		return nil, set(v)
	}
}

func (s *Server) exitServer() (any, error) {
	s.cfg.logger.Info("exit_server received, stopping motion worker")
	s.state.ToShuttingDown()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.shutdownTimeout)
	defer cancel()

	if err := s.motion.Shutdown(ctx); err != nil {
		return nil, fmt.Errorf("stop motion worker: %w", err)
	}

	return "Bye!", nil
}

func (s *Server) moveRel(axis hw.Axis) Handler {
	return func(args Args) (any, error) {
		delta, err := args.Float(0)
		if err != nil {
			return nil, err
		}

		return nil, s.inst.Stage.MoveRel(axis, delta)
	}
}

// tilt handles SetTiltXAngle and SetTXRel: (value, run_async, max_speed).
func (s *Server) tilt(relative bool) Handler {
	return func(args Args) (any, error) {
		value, err := args.Float(0)
		if err != nil {
			return nil, err
		}
		async, err := args.Bool(1)
		if err != nil {
			return nil, err
		}
		maxSpeed, err := args.Bool(2)
		if err != nil {
			return nil, err
		}

		r := motion.Rotate{Target: value, MaxSpeed: maxSpeed, Relative: relative}
		if async {
			return nil, s.motion.Submit(context.Background(), r)
		}

		return nil, s.motion.Execute(r)
	}
}

// stageStatus reports the tilt axis as moving while an async rotation is queued or running, so the
// status is Moving from the OK reply of an async tilt until the last queued rotation ends.
func (s *Server) stageStatus() (any, error) {
	st, err := s.inst.Stage.Status()
	if err != nil {
		return nil, err
	}
	if s.motion.Moving() {
		st[hw.AxisTiltX] = hw.Moving
	}

	return st, nil
}

func (s *Server) tiltXAngle() (any, error) {
	pos, err := s.inst.Stage.Position()
	if err != nil {
		return nil, err
	}

	return pos.TiltX(), nil
}

func (s *Server) apertureSize(args Args) (any, error) {
	kind, err := args.Int(0)
	if err != nil {
		return nil, err
	}

	return s.inst.Aperture.HoleIndex(hw.ApertureKind(kind))
}

func (s *Server) setILFocus(args Args) (any, error) {
	v, err := args.Uint16(0)
	if err != nil {
		return nil, err
	}

	return nil, s.inst.Lens.SetILFocus(v)
}

func (s *Server) lensValue(id hw.LensID) Handler {
	return getter(func() (any, error) {
		return s.inst.Lens.Value(id)
	})
}

func (s *Server) deflectorValue(id hw.DeflectorID) Handler {
	return getter(func() (any, error) {
		return s.inst.Deflector.Value(id)
	})
}

func (s *Server) setDeflector(id hw.DeflectorID) Handler {
	return func(args Args) (any, error) {
		x, err := args.Uint16(0)
		if err != nil {
			return nil, err
		}
		y, err := args.Uint16(1)
		if err != nil {
			return nil, err
		}

		return nil, s.inst.Deflector.SetValue(id, hw.XY{x, y})
	}
}

func (s *Server) beamBlank() (any, error) {
	on, err := s.inst.Deflector.BeamBlank()
	if err != nil {
		return nil, err
	}
	if on {
		return 1, nil
	}

	return 0, nil
}

func (s *Server) setBeamBlank(args Args) (any, error) {
	on, err := args.Bool(0)
	if err != nil {
		return nil, err
	}

	return nil, s.inst.Deflector.SetBeamBlank(on)
}
