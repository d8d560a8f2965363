package splitter

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gsplit/pkg/config"
	"gsplit/pkg/errors"
)

type memFile struct {
	bytes.Buffer
	closed bool
}

func (m *memFile) Close() error {
	m.closed = true
	return nil
}

// memOpener collects one in-memory file per part.
func memOpener() (map[int]*memFile, Opener) {
	files := make(map[int]*memFile)
	return files, func(part int) (io.WriteCloser, error) {
		f := &memFile{}
		files[part] = f
		return f, nil
	}
}

// sampleGcode builds a minimal but complete sliced program. Every X stays
// clear of the default bed-prime clearance.
func sampleGcode(layers int) string {
	var b strings.Builder
	b.WriteString(";Layer height: 0.2\n")
	fmt.Fprintf(&b, ";LAYER_COUNT:%d\n", layers)
	b.WriteString("M190 S60\n")
	b.WriteString("M109 S210\n")
	b.WriteString("G28\n")
	b.WriteString("G90\n")
	b.WriteString("M82\n")
	b.WriteString("G92 E0\n")
	b.WriteString("G0 X30 Y30 Z2.0 F6000\n")
	for i := 0; i < layers; i++ {
		fmt.Fprintf(&b, ";LAYER:%d\n", i)
		fmt.Fprintf(&b, "G0 X30 Y30 Z%.1f F6000\n", 0.2*float64(i+1))
		fmt.Fprintf(&b, "G1 X80 Y30 E%.3f F1800\n", float64(i+1))
	}
	b.WriteString(";End of Gcode\n")
	b.WriteString("M104 S0\n")
	return b.String()
}

func TestRunTwoParts(t *testing.T) {
	files, open := memOpener()
	s := New(config.DefaultOptions())

	stats, err := s.Run(strings.NewReader(sampleGcode(10)), open)
	require.NoError(t, err)

	assert.Equal(t, 10, stats.Layers)
	assert.Equal(t, 2, stats.Parts)
	require.Len(t, files, 2)
	for part, f := range files {
		assert.True(t, f.closed, "part %d not closed", part)
	}

	p0 := files[0].String()
	p1 := files[1].String()

	assert.Contains(t, p0, "G28 ; home all axes")
	assert.Contains(t, p0, ";LAYER:0\n")
	assert.Contains(t, p0, ";LAYER:4\n")
	assert.NotContains(t, p0, ";LAYER:5\n")
	assert.Contains(t, p0, ";gsplit: pause point after part 1 of 2")

	assert.NotContains(t, p1, "G28 ; home all axes")
	assert.Contains(t, p1, "G92 Z")
	assert.Contains(t, p1, "M211 S0")
	assert.Contains(t, p1, "G28 X Y")
	assert.Contains(t, p1, ";LAYER:5\n")
	assert.Contains(t, p1, ";LAYER:9\n")
	assert.NotContains(t, p1, ";LAYER:4\n")
	assert.Contains(t, p1, ";gsplit: print complete, part 2 of 2")

	// Part 1 resumes at layer 5's travel endpoint, approached from above.
	assert.Contains(t, p1, "G0 X30.000 Y30.000 F6000\nG0 Z1.200 F1200")

	// Layer bodies survive byte for byte.
	assert.Contains(t, p0, "G1 X80 Y30 E3.000 F1800\n")
	assert.Contains(t, p1, "G1 X80 Y30 E8.000 F1800\n")

	// The slicer's own end code is replaced, not copied.
	assert.Equal(t, 1, strings.Count(p1, "M104 S0"))
	assert.NotContains(t, p0+p1, ";End of Gcode")
}

func TestRunFatalBeforeAnyOutput(t *testing.T) {
	input := strings.Replace(sampleGcode(10), ";LAYER:5\n", ";LAYER:5\nG92 X0\n", 1)

	files, open := memOpener()
	s := New(config.DefaultOptions())
	_, err := s.Run(strings.NewReader(input), open)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLogicalXYZ), "error = %v", err)
	assert.Empty(t, files, "no output may be opened after a fatal input error")
}

func TestRunMaxLayerCap(t *testing.T) {
	opts := config.DefaultOptions()
	opts.MaxLayersPerPart = 3

	files, open := memOpener()
	stats, err := New(opts).Run(strings.NewReader(sampleGcode(10)), open)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Parts)
	require.Len(t, files, 3)
	assert.Contains(t, files[2].String(), ";LAYER:9\n")
}

func TestRunPrimeClearance(t *testing.T) {
	// X10 sits inside the default 25mm head clearance.
	input := strings.ReplaceAll(sampleGcode(4), "X30", "X10")

	files, open := memOpener()
	_, err := New(config.DefaultOptions()).Run(strings.NewReader(input), open)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrClearance), "error = %v", err)
	assert.Empty(t, files)

	// Air priming needs no bed clearance.
	opts := config.DefaultOptions()
	opts.Prime = config.PrimeAir
	_, err = New(opts).Run(strings.NewReader(input), open)
	require.NoError(t, err)
}

func TestRunUnknownCommandReportsLine(t *testing.T) {
	input := sampleGcode(4) + "M600\n"
	// Appended after the end marker: discarded, not an error.
	_, open := memOpener()
	_, err := New(config.DefaultOptions()).Run(strings.NewReader(input), open)
	require.NoError(t, err)

	input = strings.Replace(sampleGcode(4), ";LAYER:2\n", "M600\n;LAYER:2\n", 1)
	_, open = memOpener()
	_, err = New(config.DefaultOptions()).Run(strings.NewReader(input), open)
	require.Error(t, err)
	var se *errors.SplitError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, errors.ErrUnknownCmd, se.Code)
	assert.Equal(t, "M600", se.Raw)
	assert.Equal(t, 1, se.Layer)
}

func TestParse(t *testing.T) {
	prog, lines, err := Parse(strings.NewReader(sampleGcode(3)), config.OverrideReject)
	require.NoError(t, err)
	assert.Equal(t, 3, len(prog.Layers))
	assert.Equal(t, 0.2, prog.LayerHeight)
	assert.Equal(t, 20, lines)
}

func TestPartPath(t *testing.T) {
	tests := []struct {
		path string
		part int
		want string
	}{
		{"model.gcode", 0, "model_0.gcode"},
		{"model.gcode", 2, "model_2.gcode"},
		{"/tmp/a.b/model.gcode", 1, "/tmp/a.b/model_1.gcode"},
		{"model", 0, "model_0"},
	}
	for _, tt := range tests {
		if got := PartPath(tt.path, tt.part); got != tt.want {
			t.Errorf("PartPath(%q, %d) = %q, want %q", tt.path, tt.part, got, tt.want)
		}
	}
}
