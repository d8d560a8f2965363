// Package scaffold synthesizes the resume/pause code inserted at part
// boundaries: a begin scaffold that safely re-establishes printer state
// from a layer snapshot, a settle scaffold emitted after a part's first
// layer, and an end scaffold that parks the machine for power-off.
//
// All three are pure functions of a layer snapshot plus configuration, and
// their output is byte-for-byte reproducible.
package scaffold

import (
	"fmt"
	"strings"

	"gsplit/pkg/config"
	"gsplit/pkg/errors"
	"gsplit/pkg/layer"
	"gsplit/pkg/safety"
	"gsplit/pkg/state"
)

// Fixed maneuver geometry. These constants parameterize the hand-tuned
// physical templates (wipe line placement, feeds, beep); they are expected
// to be adjusted per printer, not derived.
const (
	travelFeed  = 6000 // mm/min, XY travel
	zFeed       = 1200 // mm/min, Z moves
	primeFeed   = 1800 // mm/min, wipe line extrusion
	retractFeed = 1800 // mm/min, E-only moves
	ironFeed    = 1200 // mm/min, slow re-trace

	primeBaseX   = 1.0   // X of the first bed-prime wipe line
	primeShiftX  = 2.0   // per-part X shift between wipe lines
	primeStartY  = 10.0  // wipe line start
	primeEndY    = 110.0 // wipe line end
	primeZ       = 0.3   // wipe line height
	primeLineE   = 15.0  // filament for the wipe line
	primeRetract = 4.0   // retract after the wipe line
	airPrimeE    = 30.0  // filament extruded for air priming
	airPrimeFeed = 300   // mm/min, air priming

	beep = "M300 S440 P1000"
)

// Synthesizer produces scaffold text from layer snapshots.
type Synthesizer struct {
	opts   config.Options
	limits safety.Limits
}

// New creates a Synthesizer for the given options.
func New(opts config.Options) *Synthesizer {
	return &Synthesizer{
		opts: opts,
		limits: safety.Limits{
			MaxZ:           opts.MaxZ,
			HeadClearanceX: opts.HeadClearanceX,
		},
	}
}

// Limits exposes the geometric limits derived from the options.
func (s *Synthesizer) Limits() safety.Limits {
	return s.limits
}

// Begin synthesizes the leading scaffold of a part. ly is the part's first
// layer; prev is the layer printed just before it (nil for part 0) and is
// only consulted for ironing. Fails if any consumed axis value is unknown
// or relative-tainted, if temperature data is missing, or if the Z state
// would exceed the build volume.
func (s *Synthesizer) Begin(ly *layer.Layer, prev *layer.Layer, part int, totalParts int) (string, error) {
	x, y, z, err := ly.StartPosition()
	if err != nil {
		return "", err
	}
	entryZ, err := ly.Start.Z.Value('Z')
	if err != nil {
		return "", err
	}

	bed, nozzle, err := s.resumeTemps(ly)
	if err != nil {
		return "", err
	}

	// Safe travel height: the print's top plus the configured clearance,
	// optionally compressed per part to bias the new layer onto the old.
	safeZ := entryZ + s.opts.ZClearance - s.opts.ZCompression*float64(part)
	if err := s.limits.CheckZ(safeZ); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, ";gsplit: part %d of %d, resume at layer %d\n", part+1, totalParts, ly.Index)
	b.WriteString("M220 S100\n")
	b.WriteString("M221 S100\n")
	b.WriteString("G90\n")
	b.WriteString("M82\n")

	if part == 0 {
		b.WriteString("G28 ; home all axes\n")
	} else {
		// Never home Z mid-print: tell the firmware where the nozzle is,
		// lift the software limits and re-home only X and Y.
		fmt.Fprintf(&b, "G92 Z%.3f ; nozzle parked above the print\n", safeZ)
		b.WriteString("M211 S0 ; software endstops off\n")
		b.WriteString("G28 X Y ; never home Z over a standing print\n")
	}
	b.WriteString("M420 S1 ; restore bed mesh\n")

	if part == 0 || s.opts.ReheatBed {
		fmt.Fprintf(&b, "M190 S%g\n", bed)
	}
	fmt.Fprintf(&b, "M109 S%g\n", nozzle)

	if err := s.prime(&b, part, safeZ); err != nil {
		return "", err
	}

	if part > 0 && s.opts.Iron && prev != nil && prev.Ironable && len(prev.Trace) > 0 {
		s.iron(&b, prev, safeZ)
	}

	// Approach the resume point from directly above, never laterally.
	b.WriteString("; approach the resume point from above\n")
	fmt.Fprintf(&b, "G0 X%.3f Y%.3f F%d\n", x, y, travelFeed)
	fmt.Fprintf(&b, "G0 Z%.3f F%d\n", z, zFeed)

	if err := s.restoreExtrusion(&b, ly.Start); err != nil {
		return "", err
	}
	s.restoreFan(&b, ly.Start.Fan)

	if part > 0 {
		// Cold-layer bonding: slow the resumed first layer down and
		// optionally push extra flow into it.
		fmt.Fprintf(&b, "M220 S%d\n", s.opts.FirstLayerFeed)
		if s.opts.FirstLayerFlow != 100 {
			fmt.Fprintf(&b, "M221 S%d\n", s.opts.FirstLayerFlow)
		}
	}

	return b.String(), nil
}

// resumeTemps resolves the bed and nozzle targets for a begin scaffold.
func (s *Synthesizer) resumeTemps(ly *layer.Layer) (bed, nozzle float64, err error) {
	if !ly.Start.Bed.Known {
		return 0, 0, errors.MissingTempError("bed")
	}
	bed = ly.Start.Bed.Value

	src := ly.Start.Nozzle
	if s.opts.NozzleTempSource == config.TempInitial {
		src = ly.Start.FirstNozzle
	}
	if !src.Known {
		return 0, 0, errors.MissingTempError("nozzle")
	}
	return bed, src.Value, nil
}

// prime emits the nozzle priming maneuver and leaves the nozzle at safeZ
// with the extrusion reference zeroed.
func (s *Synthesizer) prime(b *strings.Builder, part int, safeZ float64) error {
	b.WriteString("G92 E0\n")
	switch s.opts.Prime {
	case config.PrimeBed:
		px := primeBaseX
		if s.opts.PrimeShift {
			// Shift per part so consecutive parts do not wipe over each
			// other's leftovers.
			px += primeShiftX * float64(part)
		}
		b.WriteString("; prime the nozzle on the bed\n")
		fmt.Fprintf(b, "G0 X%.3f Y%.3f F%d\n", px, primeStartY, travelFeed)
		fmt.Fprintf(b, "G0 Z%.3f F%d\n", primeZ, zFeed)
		fmt.Fprintf(b, "G1 Y%.3f E%.5f F%d\n", primeEndY, primeLineE, primeFeed)
		fmt.Fprintf(b, "G1 E%.5f F%d\n", primeLineE-primeRetract, retractFeed)
		fmt.Fprintf(b, "G0 Z%.3f F%d\n", safeZ, zFeed)
	case config.PrimeAir:
		b.WriteString("; prime the nozzle in the air, then wait for cleanup\n")
		fmt.Fprintf(b, "G1 E%.5f F%d\n", airPrimeE, airPrimeFeed)
		b.WriteString(beep + "\n")
		b.WriteString("M0 ; remove the primed filament, then continue\n")
	default:
		return errors.Newf(errors.ErrConfig, "unknown prime mode %q", s.opts.Prime)
	}
	b.WriteString("G92 E0\n")
	return nil
}

// iron re-traces the previous part's final layer at reduced feed rate for
// adhesion. The trace is only present when no relative XYZ move occurred
// inside that layer.
func (s *Synthesizer) iron(b *strings.Builder, prev *layer.Layer, safeZ float64) {
	first := prev.Trace[0]
	b.WriteString("; iron the previous layer\n")
	fmt.Fprintf(b, "G0 X%.3f Y%.3f F%d\n", first.X, first.Y, travelFeed)
	fmt.Fprintf(b, "G0 Z%.3f F%d\n", first.Z, zFeed)
	for _, p := range prev.Trace[1:] {
		fmt.Fprintf(b, "G1 X%.3f Y%.3f Z%.3f F%d\n", p.X, p.Y, p.Z, ironFeed)
	}
	fmt.Fprintf(b, "G0 Z%.3f F%d\n", safeZ, zFeed)
}

// restoreExtrusion re-establishes the snapshot's exact retraction depth
// and extrusion position.
func (s *Synthesizer) restoreExtrusion(b *strings.Builder, snap state.State) error {
	depth := 0.0
	if snap.E.Known() || snap.EMax.Known() || snap.E.IsTainted() || snap.EMax.IsTainted() {
		d, err := snap.Retraction()
		if err != nil {
			return err
		}
		depth = d
	}
	if depth > 0 {
		fmt.Fprintf(b, "G1 E%.5f F%d ; restore retraction\n", -depth, retractFeed)
	}
	e := 0.0
	if snap.E.Known() {
		v, err := snap.E.Value('E')
		if err != nil {
			return err
		}
		e = v
	}
	fmt.Fprintf(b, "G92 E%.5f\n", e)
	return nil
}

func (s *Synthesizer) restoreFan(b *strings.Builder, fan state.Fan) {
	if fan.Known && fan.Duty > 0 {
		fmt.Fprintf(b, "M106 S%g\n", fan.Duty)
	} else {
		b.WriteString("M107\n")
	}
}

// Settle synthesizes the short scaffold inserted after a part's first
// layer: overrides back to nominal and the nozzle back to the temperature
// captured at that layer's exit.
func (s *Synthesizer) Settle(ly *layer.Layer) (string, error) {
	if !ly.End.Nozzle.Known {
		return "", errors.MissingTempError("nozzle")
	}
	var b strings.Builder
	b.WriteString(";gsplit: first layer done, back to nominal\n")
	b.WriteString("M220 S100\n")
	b.WriteString("M221 S100\n")
	fmt.Fprintf(&b, "M104 S%g\n", ly.End.Nozzle.Value)
	return b.String(), nil
}

// End synthesizes the trailing scaffold of a part: retract, lift, present,
// heat off, motors off, beep. The lift is capped to the build volume only
// on the final part; an earlier part that cannot achieve the full hop
// would leave its successor's resume height undefined, which is fatal.
func (s *Synthesizer) End(ly *layer.Layer, part, totalParts int) (string, error) {
	exitZ, err := ly.End.Z.Value('Z')
	if err != nil {
		return "", err
	}

	liftZ, capped := s.limits.CapZ(exitZ + s.opts.ZHop)
	if capped && part != totalParts-1 {
		return "", errors.HeightLimitError(exitZ+s.opts.ZHop, s.opts.MaxZ)
	}

	var b strings.Builder
	if part == totalParts-1 {
		fmt.Fprintf(&b, ";gsplit: print complete, part %d of %d\n", part+1, totalParts)
	} else {
		fmt.Fprintf(&b, ";gsplit: pause point after part %d of %d\n", part+1, totalParts)
	}
	b.WriteString("G91\n")
	fmt.Fprintf(&b, "G1 E%.5f F%d ; retract\n", -s.opts.Retraction, retractFeed)
	b.WriteString("G90\n")
	fmt.Fprintf(&b, "G0 Z%.3f F%d\n", liftZ, zFeed)
	fmt.Fprintf(&b, "G0 X0 Y%.3f F%d ; present\n", s.opts.PresentY, travelFeed)
	b.WriteString("M107\n")
	b.WriteString("M104 S0\n")
	b.WriteString("M140 S0\n")
	b.WriteString("G4 S2\n")
	b.WriteString("M84\n")
	b.WriteString(beep + "\n")
	return b.String(), nil
}
