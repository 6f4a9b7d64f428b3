package hw

import "errors"

var (
	// ErrHardwareLimit indicates that a motion target lies outside the travel of the axis.
	ErrHardwareLimit = errors.New("hardware limit reached")

	// ErrStopped indicates that a motion was interrupted by Stage.Stop before it reached its target.
	ErrStopped = errors.New("motion stopped")

	// ErrInvalidDriveRate indicates a drive-rate index outside the rate table.
	ErrInvalidDriveRate = errors.New("invalid drive rate index")

	// ErrInvalidAperture indicates an aperture kind outside 1..6.
	ErrInvalidAperture = errors.New("invalid aperture kind")

	// ErrInvalidFunctionMode indicates a function mode index that the current observation mode lacks.
	ErrInvalidFunctionMode = errors.New("invalid function mode")

	// ErrUnknownBackend indicates that Open was called with a name no backend registered.
	ErrUnknownBackend = errors.New("unknown hardware backend")
)
