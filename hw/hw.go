package hw

// Stage is the stage capability group.
type Stage interface {
	// Position returns (x, y, z, tiltX, tiltY).
	Position() (StagePosition, error)
	// Status returns the drive state of every axis.
	Status() (StageStatus, error)
	// MoveRel moves a linear axis (AxisX, AxisY or AxisZ) by delta nm.
	MoveRel(axis Axis, delta float64) error
	// TiltTo rotates around X to angle degrees, blocking until the rotation ends.
	// It returns ErrStopped when Stop interrupts the rotation.
	TiltTo(angle float64) error
	// TiltBy rotates around X by delta degrees, blocking until the rotation ends.
	TiltBy(delta float64) error
	// DriveRate returns the tilt drive-rate index.
	DriveRate() (int, error)
	// SetDriveRate selects the tilt drive-rate index.
	SetDriveRate(index int) error
	// MeasurementMethod returns how movement of Z and the tilts is measured.
	MeasurementMethod() (MeasurementMethod, error)
	// Stop halts a rotation in progress. It is a no-op when nothing is moving.
	Stop() error
}

// Lens is the lens capability group.
type Lens interface {
	Value(id LensID) (uint16, error)
	SetILFocus(value uint16) error
}

// Deflector is the deflector capability group.
type Deflector interface {
	Value(id DeflectorID) (XY, error)
	SetValue(id DeflectorID, value XY) error
	BeamBlank() (bool, error)
	SetBeamBlank(on bool) error
}

// Optics is the electron optical system group: magnification and function selectors.
type Optics interface {
	Magnification() (Magnification, error)
	FunctionMode() (FunctionMode, error)
	SelectFunctionMode(index int) error
	SetSelector(value int) error
	SpotSize() (int, error)
	Alpha() (int, error)
}

// Aperture is the aperture capability group.
type Aperture interface {
	// HoleIndex returns the selected hole of kind, 0 when open.
	HoleIndex(kind ApertureKind) (int, error)
}

// Instrument bundles the capability groups of one microscope.
type Instrument struct {
	Stage     Stage
	Lens      Lens
	Deflector Deflector
	Optics    Optics
	Aperture  Aperture
}

// Close releases the backend when it holds resources. Backends that need it implement io.Closer
// on one of their capability groups.
func (inst Instrument) Close() error {
	for _, part := range []any{inst.Stage, inst.Lens, inst.Deflector, inst.Optics, inst.Aperture} {
		if c, ok := part.(interface{ Close() error }); ok {
			return c.Close()
		}
	}

	return nil
}
