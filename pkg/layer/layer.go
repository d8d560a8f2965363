// Package layer buffers classified command lines per layer and captures
// printer state snapshots at every layer boundary.
package layer

import (
	"gsplit/pkg/config"
	"gsplit/pkg/errors"
	"gsplit/pkg/gcode"
	"gsplit/pkg/state"
)

// Travel is the endpoint of a layer's first non-extruding move. Axis values
// keep their three-state representation so an unusable endpoint fails at
// synthesis time, not silently.
type Travel struct {
	X, Y, Z state.Axis
}

// Point is one absolute end-effector position of a layer's move trace.
type Point struct {
	X, Y, Z float64
}

// Layer is one slicer-defined slice of the print. Layers are appended to
// the program in order and never mutated after their exit snapshot is taken.
type Layer struct {
	// Index is the 0-based layer number; indices are strictly consecutive.
	Index int

	// Start is the printer state before any command of the layer.
	Start state.State

	// End is the printer state after the last command of the layer.
	End state.State

	// Lines is the layer's raw instruction body, passed through verbatim.
	Lines []string

	// FirstTravel is the endpoint of the layer's first move when that move
	// carries no E field; nil when the layer opens with an extruding move.
	FirstTravel *Travel

	// Trace holds per-move end positions for a slow re-trace of the layer.
	Trace []Point

	// Ironable reports whether Trace is valid: false as soon as a relative
	// XYZ move or an unresolvable position occurs inside the layer.
	Ironable bool

	firstMoveSeen bool
}

// StartPosition resolves the layer's effective start point: the first
// non-extruding move endpoint when present, else the entry position.
func (l *Layer) StartPosition() (x, y, z float64, err error) {
	sx, sy, sz := l.Start.X, l.Start.Y, l.Start.Z
	if l.FirstTravel != nil {
		sx, sy, sz = l.FirstTravel.X, l.FirstTravel.Y, l.FirstTravel.Z
	}
	if x, err = sx.Value('X'); err != nil {
		return 0, 0, 0, err
	}
	if y, err = sy.Value('Y'); err != nil {
		return 0, 0, 0, err
	}
	if z, err = sz.Value('Z'); err != nil {
		return 0, 0, 0, err
	}
	return x, y, z, nil
}

// Program is the fully recorded input: all layers with snapshots plus the
// slicer metadata needed for synthesis and validation.
type Program struct {
	// LayerHeight is the slicer's layer-height declaration (0 if absent).
	LayerHeight float64

	// DeclaredCount is the declared total layer count (-1 if never seen).
	DeclaredCount int

	// Layers in index order, dense from 0.
	Layers []*Layer

	// Final is the printer state after the whole input was consumed.
	Final state.State
}

// Recorder drives the state tracker over the classified line stream and
// accumulates layers.
type Recorder struct {
	state   *state.State
	prog    *Program
	current *Layer
	done    bool
	policy  string
	lineNum int
	lastRaw string
}

// NewRecorder creates a Recorder. policy is the M220/M221 in-layer policy
// (config.OverrideReject or config.OverrideIgnore).
func NewRecorder(policy string) *Recorder {
	return &Recorder{
		state:  state.New(),
		prog:   &Program{DeclaredCount: -1},
		policy: policy,
	}
}

// Feed consumes one raw input line.
func (r *Recorder) Feed(raw string) error {
	r.lineNum++
	r.lastRaw = raw
	if r.done {
		// The end marker halts layer accumulation; the slicer's trailing
		// end code is replaced by the synthesized end scaffold.
		return nil
	}

	ln, err := gcode.Classify(raw)
	if err != nil {
		return r.context(err)
	}

	switch ln.Kind {
	case gcode.KindLayerHeight:
		r.prog.LayerHeight = ln.Height
		return nil

	case gcode.KindLayerCount:
		if r.prog.DeclaredCount >= 0 && r.prog.DeclaredCount != ln.Number {
			return r.context(errors.Newf(errors.ErrParse,
				"conflicting layer count declarations: %d then %d", r.prog.DeclaredCount, ln.Number))
		}
		r.prog.DeclaredCount = ln.Number
		return nil

	case gcode.KindLayer:
		return r.context(r.openLayer(ln.Number))

	case gcode.KindEnd:
		r.closeLayer()
		r.done = true
		return nil

	default:
		return r.context(r.command(ln))
	}
}

// context attaches line and layer information to a failure.
func (r *Recorder) context(err error) error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*errors.SplitError); ok {
		se.AtLine(r.lineNum, r.lastRaw)
		if r.current != nil {
			se.AtLayer(r.current.Index)
		}
	}
	return err
}

func (r *Recorder) openLayer(index int) error {
	if index != len(r.prog.Layers)+boolToInt(r.current != nil) {
		return errors.LayerSequenceError(len(r.prog.Layers)+boolToInt(r.current != nil), index)
	}
	r.closeLayer()
	r.current = &Layer{
		Index:    index,
		Start:    r.state.Snapshot(),
		Ironable: true,
	}
	return nil
}

func (r *Recorder) closeLayer() {
	if r.current == nil {
		return
	}
	r.current.End = r.state.Snapshot()
	r.prog.Layers = append(r.prog.Layers, r.current)
	r.current = nil
}

func (r *Recorder) command(ln gcode.Line) error {
	if r.current != nil && r.policy == config.OverrideReject &&
		(ln.Mnemonic == "M220" || ln.Mnemonic == "M221") {
		return errors.OverrideError(ln.Mnemonic)
	}

	if err := r.state.Apply(ln); err != nil {
		return err
	}

	if r.current == nil {
		// Preamble commands feed the tracker (initial temperatures, modes)
		// but belong to no layer.
		return nil
	}

	r.current.Lines = append(r.current.Lines, ln.Raw)

	if state.IsMove(ln) {
		r.recordMove(ln)
	}
	return nil
}

func (r *Recorder) recordMove(ln gcode.Line) {
	l := r.current

	if !l.firstMoveSeen {
		l.firstMoveSeen = true
		if !ln.HasField('E') {
			l.FirstTravel = &Travel{X: r.state.X, Y: r.state.Y, Z: r.state.Z}
		}
	}

	if r.state.MoveMode == state.ModeRelative {
		l.Ironable = false
	}
	if !l.Ironable {
		return
	}
	x, errX := r.state.X.Value('X')
	y, errY := r.state.Y.Value('Y')
	z, errZ := r.state.Z.Value('Z')
	if errX != nil || errY != nil || errZ != nil {
		l.Ironable = false
		return
	}
	l.Trace = append(l.Trace, Point{X: x, Y: y, Z: z})
}

// Finish validates the fully consumed input and returns the program.
func (r *Recorder) Finish() (*Program, error) {
	if !r.done {
		return nil, errors.ParseError("input ended without an end-of-print marker")
	}
	if r.prog.DeclaredCount < 0 {
		return nil, errors.ParseError("input has no layer count declaration")
	}
	if len(r.prog.Layers) != r.prog.DeclaredCount {
		return nil, errors.LayerCountError(r.prog.DeclaredCount, len(r.prog.Layers))
	}
	r.prog.Final = r.state.Snapshot()
	return r.prog, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
