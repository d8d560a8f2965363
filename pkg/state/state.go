// Package state reconstructs the printer's logical state from the command
// stream: positioning modes, axis positions, extrusion/retraction
// bookkeeping, temperatures and fan state.
//
// The tracker only follows the command subset needed for resume synthesis;
// everything else is either in a fixed ignore list or a fatal unknown
// command. Dispatch is a closed switch so that adding a recognized command
// is a compile-time-checked change.
package state

import (
	"gsplit/pkg/errors"
	"gsplit/pkg/gcode"
)

// Mode is a positioning mode.
type Mode int

const (
	// ModeAbsolute positions are absolute coordinates.
	ModeAbsolute Mode = iota

	// ModeRelative positions are offsets from the current position.
	ModeRelative
)

func (m Mode) String() string {
	if m == ModeRelative {
		return "relative"
	}
	return "absolute"
}

// Optional is a scalar that may not have been observed yet.
type Optional struct {
	Known bool
	Value float64
}

// Set returns an observed Optional.
func Set(v float64) Optional {
	return Optional{Known: true, Value: v}
}

// Fan is the part-cooling fan state: off, or a numeric duty in 0..255.
type Fan struct {
	Known bool
	Duty  float64
}

// State is the printer's logical state, advanced once per classified
// command line. All fields are value types so a layer snapshot is a plain
// struct copy.
type State struct {
	// Positioning modes. XYZ axes move jointly in the source format and
	// share one mode; the extruder has its own.
	MoveMode    Mode
	ExtrudeMode Mode

	// Axis positions
	X, Y, Z Axis

	// Extrusion position and the running maximum ever reached in absolute
	// mode. Current retraction depth is EMax - E and must be preserved
	// across any extrusion position reset.
	E, EMax Axis

	// Temperatures: current targets and the first-seen value of each,
	// captured once for higher-adhesion resume.
	Bed, Nozzle           Optional
	FirstBed, FirstNozzle Optional

	Fan Fan

	// MinX is the smallest absolute X reached by any move, used for the
	// bed-prime head clearance check after full input consumption.
	MinX Optional
}

// New returns the initial printer state: absolute positioning (the
// firmware default), all axes unobserved.
func New() *State {
	return &State{
		MoveMode:    ModeAbsolute,
		ExtrudeMode: ModeAbsolute,
		X:           Unknown(),
		Y:           Unknown(),
		Z:           Unknown(),
		E:           Unknown(),
		EMax:        Unknown(),
	}
}

// Snapshot returns a read-only copy of the state.
func (s *State) Snapshot() State {
	return *s
}

// Retraction returns the current retraction depth EMax - E.
func (s *State) Retraction() (float64, error) {
	e, err := s.E.Value('E')
	if err != nil {
		return 0, err
	}
	emax, err := s.EMax.Value('E')
	if err != nil {
		return 0, err
	}
	return emax - e, nil
}

// Apply advances the state by one classified command line. Lines of other
// kinds must not be passed in.
func (s *State) Apply(ln gcode.Line) error {
	switch ln.Mnemonic {
	case "":
		// Blank or comment-only line
		return nil

	case "G90":
		s.MoveMode = ModeAbsolute
		s.ExtrudeMode = ModeAbsolute
		return nil
	case "G91":
		s.MoveMode = ModeRelative
		s.ExtrudeMode = ModeRelative
		return nil
	case "M82":
		s.ExtrudeMode = ModeAbsolute
		return nil
	case "M83":
		s.ExtrudeMode = ModeRelative
		return nil

	case "G0", "G1":
		return s.applyMove(ln)

	case "G92":
		return s.applyOverride(ln)

	case "M140", "M190":
		return s.applyTemp(ln, &s.Bed, &s.FirstBed)
	case "M104", "M109":
		return s.applyTemp(ln, &s.Nozzle, &s.FirstNozzle)

	case "M106":
		duty := 255.0
		if f, ok := ln.Field('S'); ok {
			duty = f.Value
		}
		s.Fan = Fan{Known: true, Duty: duty}
		return nil
	case "M107":
		s.Fan = Fan{Known: true, Duty: 0}
		return nil

	case "M220", "M221":
		// Feed/flow overrides are untracked; the layer recorder decides
		// whether their presence inside a layer body is fatal.
		return nil

	// Fixed ignore list: informational queries, homing, power-loss
	// recovery toggles, mesh leveling, motion limits, motor disable.
	case "M105", "M115", "M73", "M413", "M420", "G28", "G29",
		"M84", "M18", "M201", "M203", "M204", "M205":
		return nil

	default:
		return errors.UnknownCommandError(ln.Mnemonic)
	}
}

// applyMove handles G0/G1 field updates.
func (s *State) applyMove(ln gcode.Line) error {
	for _, f := range ln.Fields {
		switch f.Letter {
		case 'X':
			s.X = s.setLinear(s.X, f.Value)
			if s.MoveMode == ModeAbsolute {
				if !s.MinX.Known || f.Value < s.MinX.Value {
					s.MinX = Set(f.Value)
				}
			}
		case 'Y':
			s.Y = s.setLinear(s.Y, f.Value)
		case 'Z':
			s.Z = s.setLinear(s.Z, f.Value)
		case 'E':
			if s.ExtrudeMode == ModeRelative {
				s.E = Tainted()
				s.EMax = Tainted()
				continue
			}
			s.E = Absolute(f.Value)
			if !s.EMax.Known() || f.Value >= s.EMax.value {
				s.EMax = Absolute(f.Value)
			}
		case 'F', 'S':
			// Feed rate / laser power fields are not tracked.
		default:
			return errors.Newf(errors.ErrParse, "unsupported %c field on %s", f.Letter, ln.Mnemonic)
		}
	}
	return nil
}

func (s *State) setLinear(a Axis, v float64) Axis {
	if s.MoveMode == ModeRelative {
		return Tainted()
	}
	return Absolute(v)
}

// applyOverride handles G92. A logical position reset is permitted only for
// the E axis, where it preserves retraction depth. The source format never
// programs logical XYZ coordinates; seeing one means the input uses an
// unsupported addressing mode.
func (s *State) applyOverride(ln gcode.Line) error {
	if len(ln.Fields) == 0 {
		return errors.LogicalCoordError('X')
	}
	for _, f := range ln.Fields {
		switch f.Letter {
		case 'X', 'Y', 'Z':
			return errors.LogicalCoordError(f.Letter)
		case 'E':
			switch {
			case s.E.Known() && s.EMax.Known():
				// new EMax keeps EMax - E invariant across the reset
				s.EMax = Absolute(f.Value + s.EMax.value - s.E.value)
				s.E = Absolute(f.Value)
			case s.E.IsTainted() || s.EMax.IsTainted():
				return errors.AxisStateError('E', "relative-tainted")
			default:
				// First extrusion reference: no retraction outstanding
				s.E = Absolute(f.Value)
				s.EMax = Absolute(f.Value)
			}
		default:
			return errors.Newf(errors.ErrParse, "unsupported %c field on G92", f.Letter)
		}
	}
	return nil
}

func (s *State) applyTemp(ln gcode.Line, cur, first *Optional) error {
	f, ok := ln.Field('S')
	if !ok {
		return errors.Newf(errors.ErrParse, "%s requires an S field", ln.Mnemonic)
	}
	*cur = Set(f.Value)
	if !first.Known {
		*first = Set(f.Value)
	}
	return nil
}

// IsMove reports whether a classified line is a linear/rapid move.
func IsMove(ln gcode.Line) bool {
	return ln.Mnemonic == "G0" || ln.Mnemonic == "G1"
}
