package hw

import "fmt"

// Axis indexes the five stage axes in StagePosition and StageStatus.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
	AxisTiltX
	AxisTiltY

	numAxes
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	case AxisTiltX:
		return "tiltX"
	case AxisTiltY:
		return "tiltY"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// StagePosition is (x, y, z, tiltX, tiltY). Linear axes are in nm, tilts in degrees.
type StagePosition [numAxes]float64

// TiltX returns the tilt angle around X in degrees.
func (p StagePosition) TiltX() float64 { return p[AxisTiltX] }

// AxisState is the drive state of one axis.
type AxisState int

const (
	Rest AxisState = iota
	Moving
	HardwareLimitError
)

func (s AxisState) String() string {
	switch s {
	case Rest:
		return "rest"
	case Moving:
		return "moving"
	case HardwareLimitError:
		return "hardware-limit-error"
	default:
		return "unknown"
	}
}

// StageStatus holds one AxisState per axis, in StagePosition order.
type StageStatus [numAxes]AxisState

// TiltXMoving reports whether a tilt around X is in flight.
func (s StageStatus) TiltXMoving() bool { return s[AxisTiltX] == Moving }

// XY is a register pair such as a stigmator or alignment deflector, each 0..65535.
type XY [2]uint16

// Magnification is the reading of the current magnification, camera length or rocking angle.
// It travels as the JSON list [value, unit, name].
type Magnification struct {
	Value int
	Unit  string
	Name  string
}

// FunctionMode is the selected imaging function. It travels as the JSON list [index, name].
type FunctionMode struct {
	Index int
	Name  string
}

// LensID names a lens register readable through Lens.Value.
type LensID string

const (
	LensCL3 LensID = "CL3"
	LensIL1 LensID = "IL1"
	LensIL3 LensID = "IL3"
	LensOLf LensID = "OLf"
	LensOLc LensID = "OLc"
)

// DeflectorID names a deflector register pair.
type DeflectorID string

const (
	DeflectorILs DeflectorID = "ILs"
	DeflectorPLA DeflectorID = "PLA"
)

// ApertureKind selects an aperture: 1 CLA, 2 OLA, 3 HCA, 4 SAA, 5 ENTA, 6 EDS.
type ApertureKind int

const (
	ApertureCLA ApertureKind = iota + 1
	ApertureOLA
	ApertureHCA
	ApertureSAA
	ApertureENTA
	ApertureEDS
)

// Valid reports whether k is one of the six aperture kinds.
func (k ApertureKind) Valid() bool { return k >= ApertureCLA && k <= ApertureEDS }

// MeasurementMethod is how movement of Z and the tilts is measured.
type MeasurementMethod int

const (
	MeasureEncoder MeasurementMethod = iota
	MeasurePotentiometer
)

// DefaultDriveRates is the tilt speed table in degrees per second, fastest first.
// Index 0 is the fastest drive rate.
var DefaultDriveRates = []float64{10, 2, 1, 0.5, 0.25, 0.1}

// FastestDriveRate is the drive-rate index a max speed motion switches to.
const FastestDriveRate = 0
