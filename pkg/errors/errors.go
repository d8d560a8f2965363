// Unified error handling for the gcode splitter.
//
// Every failure in the pipeline is fatal; errors carry enough context
// (input line number, raw line, layer index) for the operator to fix the
// source program or the configuration.
package errors

import (
	"fmt"
)

// Code represents the category of error.
type Code string

const (
	// Input parsing errors
	ErrParse      Code = "PARSE"
	ErrUnknownCmd Code = "UNKNOWN_CMD"
	ErrLayerSeq   Code = "LAYER_SEQ"
	ErrLayerCount Code = "LAYER_COUNT"
	ErrLogicalXYZ Code = "LOGICAL_XYZ"
	ErrOverride   Code = "OVERRIDE"

	// Synthesis errors
	ErrAxisState   Code = "AXIS_STATE"
	ErrMissingTemp Code = "MISSING_TEMP"
	ErrHeightLimit Code = "HEIGHT_LIMIT"
	ErrClearance   Code = "CLEARANCE"

	// Environment errors
	ErrConfig Code = "CONFIG"
	ErrIO     Code = "IO"
)

// SplitError is the unified error type for the splitter.
type SplitError struct {
	// Code is the error category
	Code Code

	// Message is a human-readable error description
	Message string

	// InputLine is the 1-based line number in the source program (0 if n/a)
	InputLine int

	// Raw is the offending source line (empty if n/a)
	Raw string

	// Layer is the layer index the error occurred in (-1 if n/a)
	Layer int

	// Err wraps the underlying error
	Err error
}

// Error implements the error interface.
func (e *SplitError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Layer >= 0 {
		msg += fmt.Sprintf(" (layer %d)", e.Layer)
	}
	if e.InputLine > 0 {
		msg += fmt.Sprintf(" (line %d: %q)", e.InputLine, e.Raw)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *SplitError) Unwrap() error {
	return e.Err
}

// AtLine records the source line context.
func (e *SplitError) AtLine(num int, raw string) *SplitError {
	e.InputLine = num
	e.Raw = raw
	return e
}

// AtLayer records the layer index context.
func (e *SplitError) AtLayer(layer int) *SplitError {
	e.Layer = layer
	return e
}

// New creates a new SplitError.
func New(code Code, message string) *SplitError {
	return &SplitError{
		Code:    code,
		Message: message,
		Layer:   -1,
	}
}

// Newf creates a new SplitError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *SplitError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a category and message.
func Wrap(err error, code Code, message string) *SplitError {
	e := New(code, message)
	e.Err = err
	return e
}

// Parsing errors

// ParseError creates an error for a malformed input line.
func ParseError(reason string) *SplitError {
	return New(ErrParse, reason)
}

// UnknownCommandError creates an error for an unrecognized mnemonic.
func UnknownCommandError(mnemonic string) *SplitError {
	return Newf(ErrUnknownCmd, "unknown command %q: refusing to pass through untracked instructions", mnemonic)
}

// LayerSequenceError creates an error for a non-consecutive layer marker.
func LayerSequenceError(want, got int) *SplitError {
	return Newf(ErrLayerSeq, "layer markers must be consecutive: expected LAYER:%d, got LAYER:%d", want, got)
}

// LayerCountError creates an error for a declared/observed count mismatch.
func LayerCountError(declared, observed int) *SplitError {
	return Newf(ErrLayerCount, "declared layer count %d does not match %d observed layers", declared, observed)
}

// LogicalCoordError creates an error for a G92 position override on X/Y/Z.
func LogicalCoordError(axis byte) *SplitError {
	return Newf(ErrLogicalXYZ, "logical %c coordinate programming is unsupported", axis)
}

// OverrideError creates an error for an in-layer feed/flow override.
func OverrideError(mnemonic string) *SplitError {
	return Newf(ErrOverride, "%s override inside a layer body would break resume correctness", mnemonic)
}

// Synthesis errors

// AxisStateError creates an error for an unusable axis value at synthesis time.
func AxisStateError(axis byte, state string) *SplitError {
	return Newf(ErrAxisState, "%c position is %s: cannot synthesize resume code", axis, state)
}

// MissingTempError creates an error for absent temperature data at synthesis time.
func MissingTempError(subsystem string) *SplitError {
	return Newf(ErrMissingTemp, "no %s temperature observed before this layer", subsystem)
}

// HeightLimitError creates an error for a Z target above the build volume.
func HeightLimitError(z, max float64) *SplitError {
	return Newf(ErrHeightLimit, "Z target %.3f exceeds maximum build height %.3f", z, max)
}

// ClearanceError creates an error for a bed-prime collision risk.
func ClearanceError(minX, clearance float64) *SplitError {
	return Newf(ErrClearance, "print minimum X %.3f is inside the %.3f head clearance needed for bed priming", minX, clearance)
}

// Is checks if an error matches the given code.
func Is(err error, code Code) bool {
	if se, ok := err.(*SplitError); ok {
		return se.Code == code
	}
	return false
}
