package layer

import (
	"testing"

	"gsplit/pkg/config"
	"gsplit/pkg/errors"
)

func record(t *testing.T, policy string, lines ...string) *Program {
	t.Helper()
	r := NewRecorder(policy)
	for i, raw := range lines {
		if err := r.Feed(raw); err != nil {
			t.Fatalf("Feed(line %d, %q) failed: %v", i+1, raw, err)
		}
	}
	prog, err := r.Finish()
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	return prog
}

var twoLayers = []string{
	";Layer height: 0.2",
	";LAYER_COUNT:2",
	"M190 S60",
	"M109 S210",
	"G28",
	"G1 X50 Y50 Z0.2",
	";LAYER:0",
	"G0 X60 Y60",
	"G1 X70 Y60 E1",
	"M106 S255",
	";LAYER:1",
	"G0 X60 Y60 Z0.4",
	"G1 X70 Y60 E2",
	";End of Gcode",
	"M104 S0",
	"M84",
}

func TestRecordTwoLayers(t *testing.T) {
	prog := record(t, config.OverrideReject, twoLayers...)

	if len(prog.Layers) != 2 {
		t.Fatalf("got %d layers, want 2", len(prog.Layers))
	}
	if prog.LayerHeight != 0.2 {
		t.Errorf("layer height = %g, want 0.2", prog.LayerHeight)
	}
	if prog.DeclaredCount != 2 {
		t.Errorf("declared count = %d, want 2", prog.DeclaredCount)
	}

	l0 := prog.Layers[0]
	if l0.Index != 0 {
		t.Errorf("layer index = %d, want 0", l0.Index)
	}
	if len(l0.Lines) != 3 {
		t.Errorf("layer 0 has %d lines, want 3", len(l0.Lines))
	}
	// Entry snapshot reflects the preamble, exit snapshot the layer body.
	if z, _ := l0.Start.Z.Value('Z'); z != 0.2 {
		t.Errorf("layer 0 entry Z = %g, want 0.2", z)
	}
	if !l0.End.Fan.Known || l0.End.Fan.Duty != 255 {
		t.Errorf("layer 0 exit fan = %+v, want 255", l0.End.Fan)
	}
	if l0.Start.Fan.Known {
		t.Error("layer 0 entry fan should be unknown")
	}

	l1 := prog.Layers[1]
	if z, _ := l1.Start.Z.Value('Z'); z != 0.2 {
		t.Errorf("layer 1 entry Z = %g, want 0.2", z)
	}
	if z, _ := l1.End.Z.Value('Z'); z != 0.4 {
		t.Errorf("layer 1 exit Z = %g, want 0.4", z)
	}
	if e, _ := prog.Final.E.Value('E'); e != 2 {
		t.Errorf("final E = %g, want 2", e)
	}
}

func TestPreambleNotBuffered(t *testing.T) {
	prog := record(t, config.OverrideReject, twoLayers...)
	for _, ln := range prog.Layers[0].Lines {
		if ln == "G28" || ln == "M190 S60" {
			t.Errorf("preamble line %q buffered into layer 0", ln)
		}
	}
}

func TestEndMarkerDiscardsTail(t *testing.T) {
	prog := record(t, config.OverrideReject, twoLayers...)
	last := prog.Layers[1].Lines
	for _, ln := range last {
		if ln == "M104 S0" || ln == "M84" {
			t.Errorf("post-end line %q buffered into the last layer", ln)
		}
	}
	// The tracker must also stop: M104 S0 would otherwise clobber the
	// captured nozzle temperature.
	if !prog.Final.Nozzle.Known || prog.Final.Nozzle.Value != 210 {
		t.Errorf("final nozzle = %+v, want 210", prog.Final.Nozzle)
	}
}

func TestFirstTravel(t *testing.T) {
	prog := record(t, config.OverrideReject, twoLayers...)

	l0 := prog.Layers[0]
	if l0.FirstTravel == nil {
		t.Fatal("layer 0 should have a first travel endpoint")
	}
	x, _ := l0.FirstTravel.X.Value('X')
	y, _ := l0.FirstTravel.Y.Value('Y')
	if x != 60 || y != 60 {
		t.Errorf("first travel = (%g, %g), want (60, 60)", x, y)
	}

	sx, sy, sz, err := l0.StartPosition()
	if err != nil {
		t.Fatalf("StartPosition failed: %v", err)
	}
	if sx != 60 || sy != 60 || sz != 0.2 {
		t.Errorf("start position = (%g, %g, %g), want (60, 60, 0.2)", sx, sy, sz)
	}
}

func TestNoTravelFallsBackToEntry(t *testing.T) {
	prog := record(t, config.OverrideReject,
		";LAYER_COUNT:1",
		"G1 X50 Y50 Z0.2",
		";LAYER:0",
		"G1 X70 Y50 E1", // extruding first move, no travel endpoint
		";End of Gcode",
	)
	l0 := prog.Layers[0]
	if l0.FirstTravel != nil {
		t.Error("extruding first move must not record a travel endpoint")
	}
	sx, sy, sz, err := l0.StartPosition()
	if err != nil {
		t.Fatalf("StartPosition failed: %v", err)
	}
	if sx != 50 || sy != 50 || sz != 0.2 {
		t.Errorf("start position = (%g, %g, %g), want entry (50, 50, 0.2)", sx, sy, sz)
	}
}

func TestTrace(t *testing.T) {
	prog := record(t, config.OverrideReject, twoLayers...)
	l0 := prog.Layers[0]
	if !l0.Ironable {
		t.Fatal("layer 0 should be ironable")
	}
	want := []Point{{60, 60, 0.2}, {70, 60, 0.2}}
	if len(l0.Trace) != len(want) {
		t.Fatalf("trace has %d points, want %d", len(l0.Trace), len(want))
	}
	for i := range want {
		if l0.Trace[i] != want[i] {
			t.Errorf("trace[%d] = %+v, want %+v", i, l0.Trace[i], want[i])
		}
	}
}

func TestRelativeMoveSpoilsTrace(t *testing.T) {
	prog := record(t, config.OverrideReject,
		";LAYER_COUNT:1",
		"G1 X50 Y50 Z0.2",
		";LAYER:0",
		"G1 X60 Y50 E1",
		"G91",
		"G1 Z0.5",
		"G90",
		";End of Gcode",
	)
	if prog.Layers[0].Ironable {
		t.Error("a relative move inside the layer must spoil the trace")
	}
}

func TestLayerSequenceEnforced(t *testing.T) {
	r := NewRecorder(config.OverrideReject)
	for _, raw := range []string{";LAYER_COUNT:3", ";LAYER:0"} {
		if err := r.Feed(raw); err != nil {
			t.Fatalf("Feed(%q) failed: %v", raw, err)
		}
	}
	err := r.Feed(";LAYER:2")
	if !errors.Is(err, errors.ErrLayerSeq) {
		t.Fatalf("error = %v, want LAYER_SEQ", err)
	}
	se := err.(*errors.SplitError)
	if se.InputLine != 3 {
		t.Errorf("input line = %d, want 3", se.InputLine)
	}
}

func TestFirstLayerMustBeZero(t *testing.T) {
	r := NewRecorder(config.OverrideReject)
	if err := r.Feed(";LAYER:1"); !errors.Is(err, errors.ErrLayerSeq) {
		t.Errorf("error = %v, want LAYER_SEQ", err)
	}
}

func TestOverridePolicy(t *testing.T) {
	// Rejected inside a layer.
	r := NewRecorder(config.OverrideReject)
	for _, raw := range []string{";LAYER_COUNT:1", ";LAYER:0"} {
		if err := r.Feed(raw); err != nil {
			t.Fatalf("Feed(%q) failed: %v", raw, err)
		}
	}
	if err := r.Feed("M220 S50"); !errors.Is(err, errors.ErrOverride) {
		t.Errorf("error = %v, want OVERRIDE", err)
	}

	// Allowed in the preamble even under reject.
	r = NewRecorder(config.OverrideReject)
	if err := r.Feed("M220 S50"); err != nil {
		t.Errorf("preamble override rejected: %v", err)
	}

	// Passed through under ignore.
	prog := record(t, config.OverrideIgnore,
		";LAYER_COUNT:1",
		"G1 X50 Y50 Z0.2",
		";LAYER:0",
		"M221 S95",
		"G1 X60 E1",
		";End of Gcode",
	)
	if prog.Layers[0].Lines[0] != "M221 S95" {
		t.Errorf("ignored override not buffered: %v", prog.Layers[0].Lines)
	}
}

func TestFinishRequiresEndMarker(t *testing.T) {
	r := NewRecorder(config.OverrideReject)
	for _, raw := range []string{";LAYER_COUNT:1", ";LAYER:0", "G1 X1 Y1 Z0.2 E1"} {
		if err := r.Feed(raw); err != nil {
			t.Fatalf("Feed(%q) failed: %v", raw, err)
		}
	}
	if _, err := r.Finish(); !errors.Is(err, errors.ErrParse) {
		t.Errorf("error = %v, want PARSE", err)
	}
}

func TestFinishRequiresCountDeclaration(t *testing.T) {
	r := NewRecorder(config.OverrideReject)
	for _, raw := range []string{";LAYER:0", "G1 X1 Y1 Z0.2 E1", ";End of Gcode"} {
		if err := r.Feed(raw); err != nil {
			t.Fatalf("Feed(%q) failed: %v", raw, err)
		}
	}
	if _, err := r.Finish(); !errors.Is(err, errors.ErrParse) {
		t.Errorf("error = %v, want PARSE", err)
	}
}

func TestFinishCountMismatch(t *testing.T) {
	r := NewRecorder(config.OverrideReject)
	for _, raw := range []string{";LAYER_COUNT:5", ";LAYER:0", ";End of Gcode"} {
		if err := r.Feed(raw); err != nil {
			t.Fatalf("Feed(%q) failed: %v", raw, err)
		}
	}
	if _, err := r.Finish(); !errors.Is(err, errors.ErrLayerCount) {
		t.Errorf("error = %v, want LAYER_COUNT", err)
	}
}

func TestConflictingCountDeclarations(t *testing.T) {
	r := NewRecorder(config.OverrideReject)
	if err := r.Feed(";LAYER_COUNT:5"); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if err := r.Feed(";LAYER_COUNT:6"); !errors.Is(err, errors.ErrParse) {
		t.Errorf("error = %v, want PARSE", err)
	}
}

func TestErrorCarriesLayerContext(t *testing.T) {
	r := NewRecorder(config.OverrideReject)
	for _, raw := range []string{";LAYER_COUNT:1", ";LAYER:0"} {
		if err := r.Feed(raw); err != nil {
			t.Fatalf("Feed(%q) failed: %v", raw, err)
		}
	}
	err := r.Feed("M999")
	if !errors.Is(err, errors.ErrUnknownCmd) {
		t.Fatalf("error = %v, want UNKNOWN_CMD", err)
	}
	se := err.(*errors.SplitError)
	if se.Layer != 0 {
		t.Errorf("layer = %d, want 0", se.Layer)
	}
	if se.Raw != "M999" {
		t.Errorf("raw = %q, want M999", se.Raw)
	}
}
