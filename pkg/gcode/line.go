// Package gcode classifies raw slicer output lines.
//
// A line is either a slicer metadata marker (layer height, layer count,
// layer start, end of print) or a command with letter+number argument
// fields. Classification is a pure function of the line text; it never
// interprets command semantics.
package gcode

import (
	"strconv"
	"strings"

	"gsplit/pkg/errors"
)

// Kind discriminates classified lines.
type Kind int

const (
	// KindCommand is a command line; Mnemonic may be empty for blank or
	// comment-only lines, which are recognized no-ops.
	KindCommand Kind = iota

	// KindLayerHeight is the slicer's layer-height declaration.
	KindLayerHeight

	// KindLayerCount is the slicer's total-layer-count declaration.
	KindLayerCount

	// KindLayer marks the start of a layer.
	KindLayer

	// KindEnd marks the start of the slicer's end-of-print code.
	KindEnd
)

// Field is a single <letter><number> command argument.
type Field struct {
	Letter byte
	Value  float64
}

// Line is one classified input line.
type Line struct {
	Raw      string
	Comment  string
	Mnemonic string
	Fields   []Field

	Kind Kind

	// Number is the layer index (KindLayer) or declared count (KindLayerCount).
	Number int

	// Height is the declared layer height (KindLayerHeight).
	Height float64
}

// Slicer comment conventions (Cura).
const (
	layerPrefix      = "LAYER:"
	layerCountPrefix = "LAYER_COUNT:"
	heightPrefix     = "Layer height:"
	endMarker        = "End of Gcode"
)

// Classify parses a raw input line into a Line. It splits off the trailing
// comment at the first ';', recognizes the slicer marker conventions on
// comment-only lines, and otherwise tokenizes the remainder into a command
// mnemonic and argument fields.
func Classify(raw string) (Line, error) {
	ln := Line{Raw: raw}

	text := raw
	if idx := strings.IndexByte(text, ';'); idx >= 0 {
		ln.Comment = strings.TrimSpace(text[idx+1:])
		text = text[:idx]
	}
	text = strings.TrimSpace(text)

	// Marker conventions live in whole-line comments.
	if text == "" && ln.Comment != "" {
		switch {
		case strings.HasPrefix(ln.Comment, layerCountPrefix):
			n, err := strconv.Atoi(strings.TrimSpace(ln.Comment[len(layerCountPrefix):]))
			if err != nil {
				return ln, errors.ParseError("malformed layer count declaration")
			}
			ln.Kind = KindLayerCount
			ln.Number = n
			return ln, nil
		case strings.HasPrefix(ln.Comment, layerPrefix):
			n, err := strconv.Atoi(strings.TrimSpace(ln.Comment[len(layerPrefix):]))
			if err != nil {
				return ln, errors.ParseError("malformed layer marker")
			}
			ln.Kind = KindLayer
			ln.Number = n
			return ln, nil
		case strings.HasPrefix(ln.Comment, heightPrefix):
			h, err := strconv.ParseFloat(strings.TrimSpace(ln.Comment[len(heightPrefix):]), 64)
			if err != nil {
				return ln, errors.ParseError("malformed layer height declaration")
			}
			ln.Kind = KindLayerHeight
			ln.Height = h
			return ln, nil
		case strings.EqualFold(ln.Comment, endMarker):
			ln.Kind = KindEnd
			return ln, nil
		}
	}

	ln.Kind = KindCommand
	if text == "" {
		return ln, nil
	}

	tokens := strings.Fields(text)
	ln.Mnemonic = strings.ToUpper(tokens[0])
	for _, tok := range tokens[1:] {
		f, err := parseField(tok)
		if err != nil {
			return ln, err
		}
		ln.Fields = append(ln.Fields, f)
	}
	return ln, nil
}

// parseField parses a <letter><numeric> token.
func parseField(tok string) (Field, error) {
	if len(tok) < 2 {
		return Field{}, errors.Newf(errors.ErrParse, "malformed argument field %q", tok)
	}
	letter := tok[0]
	if letter >= 'a' && letter <= 'z' {
		letter -= 'a' - 'A'
	}
	if letter < 'A' || letter > 'Z' {
		return Field{}, errors.Newf(errors.ErrParse, "malformed argument field %q", tok)
	}
	v, err := strconv.ParseFloat(tok[1:], 64)
	if err != nil {
		return Field{}, errors.Newf(errors.ErrParse, "malformed argument field %q", tok)
	}
	return Field{Letter: letter, Value: v}, nil
}

// Field returns the first field with the given letter.
func (l Line) Field(letter byte) (Field, bool) {
	for _, f := range l.Fields {
		if f.Letter == letter {
			return f, true
		}
	}
	return Field{}, false
}

// HasField reports whether a field with the given letter is present.
func (l Line) HasField(letter byte) bool {
	_, ok := l.Field(letter)
	return ok
}
