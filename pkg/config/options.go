package config

import (
	"gsplit/pkg/errors"
)

// Override policies for M220/M221 inside layer bodies.
const (
	OverrideReject = "reject"
	OverrideIgnore = "ignore"
)

// Priming modes for the resume scaffold.
const (
	PrimeBed = "bed"
	PrimeAir = "air"
)

// Nozzle temperature sources for the resume scaffold.
const (
	TempCaptured = "captured"
	TempInitial  = "initial"
)

// Options is the full configuration surface of a split run. All options
// affect synthesis, not parsing.
type Options struct {
	// [split]
	Parts            int    // target part count
	MaxLayersPerPart int    // 0 = uncapped
	StartLayer       int    // layers before this index are excluded
	OverridePolicy   string // OverrideReject | OverrideIgnore

	// [printer]
	MaxZ           float64 // maximum build height (mm)
	Retraction     float64 // end-scaffold retract distance (mm)
	ZHop           float64 // end-scaffold lift (mm)
	PresentY       float64 // presentation Y for the finished part
	HeadClearanceX float64 // print-head X clearance for bed priming (mm)
	ZClearance     float64 // vertical clearance for the resume Z state (mm)
	ZCompression   float64 // per-part Z bias toward the print for adhesion (mm)

	// [resume]
	Prime            string // PrimeBed | PrimeAir
	PrimeShift       bool   // shift the bed-prime line per part index
	NozzleTempSource string // TempCaptured | TempInitial
	ReheatBed        bool   // reheat the bed on parts > 0
	Iron             bool   // re-trace the previous part's final layer
	FirstLayerFeed   int    // M220 percent for a resumed first layer
	FirstLayerFlow   int    // M221 percent for a resumed first layer
}

// DefaultOptions returns the built-in defaults.
func DefaultOptions() Options {
	return Options{
		Parts:            2,
		MaxLayersPerPart: 0,
		StartLayer:       0,
		OverridePolicy:   OverrideReject,

		MaxZ:           250.0,
		Retraction:     6.0,
		ZHop:           2.0,
		PresentY:       220.0,
		HeadClearanceX: 25.0,
		ZClearance:     2.0,
		ZCompression:   0.0,

		Prime:            PrimeBed,
		PrimeShift:       true,
		NozzleTempSource: TempCaptured,
		ReheatBed:        true,
		Iron:             false,
		FirstLayerFeed:   50,
		FirstLayerFlow:   100,
	}
}

// OptionsFrom reads Options out of a Config, filling gaps from defaults.
func OptionsFrom(c *Config) (Options, error) {
	o := DefaultOptions()
	var err error

	split := c.GetSection("split")
	if o.Parts, err = split.GetInt("parts", o.Parts); err != nil {
		return o, err
	}
	if o.MaxLayersPerPart, err = split.GetInt("max_layers_per_part", o.MaxLayersPerPart); err != nil {
		return o, err
	}
	if o.StartLayer, err = split.GetInt("start_layer", o.StartLayer); err != nil {
		return o, err
	}
	if o.OverridePolicy, err = split.GetChoice("override_policy", o.OverridePolicy, OverrideReject, OverrideIgnore); err != nil {
		return o, err
	}

	printer := c.GetSection("printer")
	if o.MaxZ, err = printer.GetFloat("max_z", o.MaxZ); err != nil {
		return o, err
	}
	if o.Retraction, err = printer.GetFloat("retraction", o.Retraction); err != nil {
		return o, err
	}
	if o.ZHop, err = printer.GetFloat("z_hop", o.ZHop); err != nil {
		return o, err
	}
	if o.PresentY, err = printer.GetFloat("present_y", o.PresentY); err != nil {
		return o, err
	}
	if o.HeadClearanceX, err = printer.GetFloat("head_clearance_x", o.HeadClearanceX); err != nil {
		return o, err
	}
	if o.ZClearance, err = printer.GetFloat("z_clearance", o.ZClearance); err != nil {
		return o, err
	}
	if o.ZCompression, err = printer.GetFloat("z_compression", o.ZCompression); err != nil {
		return o, err
	}

	resume := c.GetSection("resume")
	if o.Prime, err = resume.GetChoice("prime", o.Prime, PrimeBed, PrimeAir); err != nil {
		return o, err
	}
	if o.PrimeShift, err = resume.GetBool("prime_shift", o.PrimeShift); err != nil {
		return o, err
	}
	if o.NozzleTempSource, err = resume.GetChoice("nozzle_temp", o.NozzleTempSource, TempCaptured, TempInitial); err != nil {
		return o, err
	}
	if o.ReheatBed, err = resume.GetBool("reheat_bed", o.ReheatBed); err != nil {
		return o, err
	}
	if o.Iron, err = resume.GetBool("iron", o.Iron); err != nil {
		return o, err
	}
	if o.FirstLayerFeed, err = resume.GetInt("first_layer_feed", o.FirstLayerFeed); err != nil {
		return o, err
	}
	if o.FirstLayerFlow, err = resume.GetInt("first_layer_flow", o.FirstLayerFlow); err != nil {
		return o, err
	}

	return o, nil
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.Parts < 1 {
		return errors.Newf(errors.ErrConfig, "parts must be >= 1, got %d", o.Parts)
	}
	if o.MaxLayersPerPart < 0 {
		return errors.Newf(errors.ErrConfig, "max_layers_per_part must be >= 0, got %d", o.MaxLayersPerPart)
	}
	if o.StartLayer < 0 {
		return errors.Newf(errors.ErrConfig, "start_layer must be >= 0, got %d", o.StartLayer)
	}
	if o.MaxZ <= 0 {
		return errors.Newf(errors.ErrConfig, "max_z must be positive, got %g", o.MaxZ)
	}
	if o.Retraction < 0 {
		return errors.Newf(errors.ErrConfig, "retraction must be >= 0, got %g", o.Retraction)
	}
	if o.ZHop < 0 {
		return errors.Newf(errors.ErrConfig, "z_hop must be >= 0, got %g", o.ZHop)
	}
	if o.ZClearance < 0 {
		return errors.Newf(errors.ErrConfig, "z_clearance must be >= 0, got %g", o.ZClearance)
	}
	if o.ZCompression < 0 {
		return errors.Newf(errors.ErrConfig, "z_compression must be >= 0, got %g", o.ZCompression)
	}
	if o.FirstLayerFeed < 1 || o.FirstLayerFeed > 200 {
		return errors.Newf(errors.ErrConfig, "first_layer_feed must be in 1..200, got %d", o.FirstLayerFeed)
	}
	if o.FirstLayerFlow < 1 || o.FirstLayerFlow > 200 {
		return errors.Newf(errors.ErrConfig, "first_layer_flow must be in 1..200, got %d", o.FirstLayerFlow)
	}
	return nil
}
