// Package safety validates geometric limits for synthesized resume and
// pause code. Every scaffold Z target is checked against the build volume
// before it is emitted; the bed-prime clearance is checked once against
// the print's recorded extent.
package safety

import (
	"gsplit/pkg/errors"
	"gsplit/pkg/state"
)

// Limits holds the physical limits a synthesized scaffold must respect.
type Limits struct {
	// MaxZ is the maximum build height in mm.
	MaxZ float64

	// HeadClearanceX is the X clearance the print head needs to draw the
	// bed-prime wipe line without touching the standing print.
	HeadClearanceX float64
}

// CheckZ rejects a Z target above the build volume.
func (l Limits) CheckZ(z float64) error {
	if z > l.MaxZ {
		return errors.HeightLimitError(z, l.MaxZ)
	}
	return nil
}

// CapZ clamps a Z target to the build volume, reporting whether clamping
// occurred. Clamping is only acceptable on the final part's end hop; the
// caller decides whether a clamped value is fatal.
func (l Limits) CapZ(z float64) (float64, bool) {
	if z > l.MaxZ {
		return l.MaxZ, true
	}
	return z, false
}

// CheckPrimeClearance validates, after full input consumption, that the
// print's minimum X leaves room for bed-based nozzle priming.
func (l Limits) CheckPrimeClearance(minX state.Optional) error {
	if !minX.Known {
		// A print with no absolute X moves has nothing to collide with.
		return nil
	}
	if minX.Value < l.HeadClearanceX {
		return errors.ClearanceError(minX.Value, l.HeadClearanceX)
	}
	return nil
}
