package state

import (
	"fmt"

	"gsplit/pkg/errors"
)

// AxisKind discriminates the three states of a measured coordinate.
type AxisKind int

const (
	// KindUnknown means the axis has not been observed yet.
	KindUnknown AxisKind = iota

	// KindAbsolute means the axis holds a trusted absolute value.
	KindAbsolute

	// KindTainted means a relative move occurred and the absolute value
	// can no longer be trusted. Taint persists until an absolute set.
	KindTainted
)

// Axis is a coordinate in one of three states: absolute numeric, unknown,
// or relative-tainted. The tagged representation keeps a tainted value from
// being silently coerced back into a usable coordinate.
type Axis struct {
	kind  AxisKind
	value float64
}

// Unknown returns an unobserved axis value.
func Unknown() Axis {
	return Axis{kind: KindUnknown}
}

// Absolute returns a trusted absolute axis value.
func Absolute(v float64) Axis {
	return Axis{kind: KindAbsolute, value: v}
}

// Tainted returns a relative-tainted axis value.
func Tainted() Axis {
	return Axis{kind: KindTainted}
}

// Kind returns the axis state.
func (a Axis) Kind() AxisKind {
	return a.kind
}

// Known reports whether the axis holds a trusted absolute value.
func (a Axis) Known() bool {
	return a.kind == KindAbsolute
}

// IsTainted reports whether a relative move invalidated the axis.
func (a Axis) IsTainted() bool {
	return a.kind == KindTainted
}

// Value returns the absolute coordinate, or an error naming the axis if
// the value is unknown or relative-tainted.
func (a Axis) Value(letter byte) (float64, error) {
	switch a.kind {
	case KindAbsolute:
		return a.value, nil
	case KindTainted:
		return 0, errors.AxisStateError(letter, "relative-tainted")
	default:
		return 0, errors.AxisStateError(letter, "unknown")
	}
}

// String implements fmt.Stringer for diagnostics.
func (a Axis) String() string {
	switch a.kind {
	case KindAbsolute:
		return fmt.Sprintf("%.3f", a.value)
	case KindTainted:
		return "relative-tainted"
	default:
		return "unknown"
	}
}
