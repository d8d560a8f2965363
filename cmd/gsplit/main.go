// gsplit re-partitions a sliced gcode program into independently printable
// parts with synthesized pause/resume scaffolding, so a print can be
// interrupted (including full power-off) between parts and resumed without
// losing registration or adhesion.
//
// Usage:
//
//	gsplit split model.gcode --parts 3
//	gsplit info model.gcode
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"gsplit/pkg/config"
	"gsplit/pkg/log"
	"gsplit/pkg/partition"
	"gsplit/pkg/splitter"
)

var (
	cfgFile string
	verbose bool

	opts = config.DefaultOptions()

	logger = log.GetLogger("")
)

var rootCmd = &cobra.Command{
	Use:   "gsplit",
	Short: "Split sliced gcode into power-off resumable parts",
	Long: `gsplit streams a sliced gcode program, reconstructs the printer state at
every layer boundary, and re-partitions the layers into N sub-programs.
Each part begins with a synthesized resume scaffold (homing, priming,
state restore) and ends with a pause scaffold (retract, lift, park,
heaters off), so the physical print survives a full power-off between
parts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			logger.SetLevel(log.DEBUG)
		}
		return loadOptions(cmd)
	},
}

var splitCmd = &cobra.Command{
	Use:   "split <file.gcode>",
	Short: "Split a gcode file into part files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSplit(args[0])
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <file.gcode>",
	Short: "Report layer and partition information without writing output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInfo(args[0])
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "configuration file (INI sections, optional)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	pf.IntVar(&opts.Parts, "parts", opts.Parts, "target part count")
	pf.IntVar(&opts.MaxLayersPerPart, "max-layers", opts.MaxLayersPerPart, "max layers per part (0 = uncapped)")
	pf.IntVar(&opts.StartLayer, "start-layer", opts.StartLayer, "exclude layers before this index")
	pf.StringVar(&opts.OverridePolicy, "override-policy", opts.OverridePolicy, "M220/M221 inside a layer: reject|ignore")

	pf.Float64Var(&opts.MaxZ, "max-z", opts.MaxZ, "maximum build height (mm)")
	pf.Float64Var(&opts.Retraction, "retraction", opts.Retraction, "end-of-part retract distance (mm)")
	pf.Float64Var(&opts.ZHop, "z-hop", opts.ZHop, "end-of-part lift (mm)")
	pf.Float64Var(&opts.PresentY, "present-y", opts.PresentY, "presentation Y position")
	pf.Float64Var(&opts.HeadClearanceX, "head-clearance", opts.HeadClearanceX, "print-head X clearance for bed priming (mm)")
	pf.Float64Var(&opts.ZClearance, "z-clearance", opts.ZClearance, "vertical clearance for the resume Z state (mm)")
	pf.Float64Var(&opts.ZCompression, "z-compression", opts.ZCompression, "per-part Z bias for adhesion (mm)")

	pf.StringVar(&opts.Prime, "prime", opts.Prime, "nozzle priming mode: bed|air")
	pf.BoolVar(&opts.PrimeShift, "prime-shift", opts.PrimeShift, "shift the bed-prime line per part")
	pf.StringVar(&opts.NozzleTempSource, "nozzle-temp", opts.NozzleTempSource, "resume nozzle temperature: captured|initial")
	pf.BoolVar(&opts.ReheatBed, "reheat-bed", opts.ReheatBed, "reheat the bed when resuming parts > 0")
	pf.BoolVar(&opts.Iron, "iron", opts.Iron, "re-trace the previous part's final layer on resume")
	pf.IntVar(&opts.FirstLayerFeed, "first-layer-feed", opts.FirstLayerFeed, "feed percent for a resumed first layer")
	pf.IntVar(&opts.FirstLayerFlow, "first-layer-flow", opts.FirstLayerFlow, "flow percent for a resumed first layer")

	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(infoCmd)
}

// loadOptions layers the configuration: built-in defaults, then the config
// file, then any explicitly set command line flag.
func loadOptions(cmd *cobra.Command) error {
	if cfgFile != "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		fileOpts, err := config.OptionsFrom(cfg)
		if err != nil {
			return err
		}
		flagOpts := opts
		opts = fileOpts
		applyChangedFlags(cmd, flagOpts)
		for _, unused := range cfg.UnusedOptions() {
			logger.Warn("unknown config option %s", unused)
		}
	}
	return opts.Validate()
}

// applyChangedFlags copies flag values over file values for every flag the
// user set explicitly.
func applyChangedFlags(cmd *cobra.Command, flagOpts config.Options) {
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("parts", func() { opts.Parts = flagOpts.Parts })
	set("max-layers", func() { opts.MaxLayersPerPart = flagOpts.MaxLayersPerPart })
	set("start-layer", func() { opts.StartLayer = flagOpts.StartLayer })
	set("override-policy", func() { opts.OverridePolicy = flagOpts.OverridePolicy })
	set("max-z", func() { opts.MaxZ = flagOpts.MaxZ })
	set("retraction", func() { opts.Retraction = flagOpts.Retraction })
	set("z-hop", func() { opts.ZHop = flagOpts.ZHop })
	set("present-y", func() { opts.PresentY = flagOpts.PresentY })
	set("head-clearance", func() { opts.HeadClearanceX = flagOpts.HeadClearanceX })
	set("z-clearance", func() { opts.ZClearance = flagOpts.ZClearance })
	set("z-compression", func() { opts.ZCompression = flagOpts.ZCompression })
	set("prime", func() { opts.Prime = flagOpts.Prime })
	set("prime-shift", func() { opts.PrimeShift = flagOpts.PrimeShift })
	set("nozzle-temp", func() { opts.NozzleTempSource = flagOpts.NozzleTempSource })
	set("reheat-bed", func() { opts.ReheatBed = flagOpts.ReheatBed })
	set("iron", func() { opts.Iron = flagOpts.Iron })
	set("first-layer-feed", func() { opts.FirstLayerFeed = flagOpts.FirstLayerFeed })
	set("first-layer-flow", func() { opts.FirstLayerFlow = flagOpts.FirstLayerFlow })
}

func runSplit(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	s := splitter.New(opts)
	stats, err := s.Run(f, func(part int) (io.WriteCloser, error) {
		out := splitter.PartPath(path, part)
		logger.Info("writing %s", out)
		return os.Create(out)
	})
	if err != nil {
		return err
	}
	fmt.Printf("%d layers -> %d parts (%d bytes)\n", stats.Layers, stats.Parts, stats.BytesOut)
	return nil
}

func runInfo(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	prog, lines, err := splitter.Parse(f, opts.OverridePolicy)
	if err != nil {
		return err
	}

	fmt.Printf("input:        %s (%d lines)\n", path, lines)
	fmt.Printf("layers:       %d\n", len(prog.Layers))
	if prog.LayerHeight > 0 {
		fmt.Printf("layer height: %g mm\n", prog.LayerHeight)
	}
	if prog.Final.FirstBed.Known {
		fmt.Printf("bed temp:     %g\n", prog.Final.FirstBed.Value)
	}
	if prog.Final.FirstNozzle.Known {
		fmt.Printf("nozzle temp:  %g\n", prog.Final.FirstNozzle.Value)
	}
	if prog.Final.MinX.Known {
		fmt.Printf("min X:        %.3f\n", prog.Final.MinX.Value)
	}

	plan, err := partition.New(len(prog.Layers), opts.Parts, opts.MaxLayersPerPart, opts.StartLayer)
	if err != nil {
		return err
	}
	fmt.Printf("parts:        %d\n", plan.TotalParts)
	for _, part := range plan.Parts() {
		fmt.Printf("  part %d: layers %d..%d -> %s\n",
			part.Index, part.FirstLayer, part.LastLayer, splitter.PartPath(path, part.Index))
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
