// Package hw defines the capability surface of the microscope that the command server drives.
//
// The instrument is split into capability groups, each a small interface:
//   - Stage: position, relative moves, tilt (absolute and relative), drive rate, stop.
//   - Lens: lens register values and the IL focus.
//   - Deflector: deflector register pairs and the beam blank flag.
//   - Optics: magnification, function mode, spot size and alpha selectors.
//   - Aperture: selected hole per aperture kind.
//
// All methods are synchronous. Every call returns promptly except the Stage tilt methods,
// which block for the whole physical rotation and can be interrupted with Stage.Stop.
//
// Backends register themselves by name with Register and are opened with Open. The simulation
// backend lives in hw/sim and registers as "sim".
package hw
