// Package splitter drives the whole pipeline: stream the input once,
// record layers with snapshots, plan the partition, and write each part
// with its synthesized scaffolds.
//
// The pipeline is strictly single-threaded and order-dependent: every
// layer's entry state depends on every prior line, so there is nothing to
// parallelize.
package splitter

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gsplit/pkg/config"
	"gsplit/pkg/errors"
	"gsplit/pkg/layer"
	"gsplit/pkg/log"
	"gsplit/pkg/partition"
	"gsplit/pkg/scaffold"
)

// Opener supplies the output stream for a part. File creation and naming
// are the caller's concern; only one part is open at a time and a part is
// never reopened once closed.
type Opener func(part int) (io.WriteCloser, error)

// Stats summarizes a completed run.
type Stats struct {
	Layers   int
	Parts    int
	LinesIn  int
	BytesOut int64
}

// Splitter re-partitions one sliced program into independently printable
// parts.
type Splitter struct {
	opts   config.Options
	logger *log.Logger
}

// New creates a Splitter with the given options.
func New(opts config.Options) *Splitter {
	return &Splitter{
		opts:   opts,
		logger: log.GetLogger("splitter"),
	}
}

// Parse consumes the whole input stream and returns the recorded program.
func Parse(r io.Reader, policy string) (*layer.Program, int, error) {
	rec := layer.NewRecorder(policy)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lines := 0
	for scanner.Scan() {
		lines++
		if err := rec.Feed(scanner.Text()); err != nil {
			return nil, lines, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, lines, errors.Wrap(err, errors.ErrIO, "reading input")
	}
	prog, err := rec.Finish()
	return prog, lines, err
}

// Run executes the transform: parse, validate, plan, assemble. No output
// is opened until the entire input has been consumed and validated, so a
// fatal input error never leaves partial files behind.
func (s *Splitter) Run(r io.Reader, open Opener) (Stats, error) {
	var stats Stats

	prog, lines, err := Parse(r, s.opts.OverridePolicy)
	stats.LinesIn = lines
	if err != nil {
		return stats, err
	}
	stats.Layers = len(prog.Layers)

	syn := scaffold.New(s.opts)

	// Clearance is validated once, after full input consumption.
	if s.opts.Prime == config.PrimeBed {
		if err := syn.Limits().CheckPrimeClearance(prog.Final.MinX); err != nil {
			return stats, err
		}
	}

	plan, err := partition.New(len(prog.Layers), s.opts.Parts, s.opts.MaxLayersPerPart, s.opts.StartLayer)
	if err != nil {
		return stats, err
	}
	stats.Parts = plan.TotalParts
	s.logger.Info("splitting %d layers into %d parts", len(prog.Layers), plan.TotalParts)

	err = s.assemble(prog, plan, syn, open, &stats)
	if err != nil {
		return stats, err
	}

	s.logger.WithFields(log.INFO, "split complete", log.Fields{
		"layers": stats.Layers,
		"parts":  stats.Parts,
		"bytes":  stats.BytesOut,
	})
	return stats, nil
}

// assemble walks the layers in order plus one virtual terminal entry and
// streams each part: begin scaffold, layer bodies with the settle scaffold
// after the first, end scaffold.
func (s *Splitter) assemble(prog *layer.Program, plan partition.Plan, syn *scaffold.Synthesizer, open Opener, stats *Stats) (err error) {
	var (
		out        io.WriteCloser
		curPart    = -1
		lastInPart *layer.Layer
	)
	defer func() {
		// Guaranteed release of the open part even on an error exit.
		if out != nil {
			if cerr := out.Close(); cerr != nil && err == nil {
				err = errors.Wrap(cerr, errors.ErrIO, "closing part output")
			}
		}
	}()

	writeText := func(text string) error {
		n, werr := io.WriteString(out, text)
		stats.BytesOut += int64(n)
		if werr != nil {
			return errors.Wrap(werr, errors.ErrIO, fmt.Sprintf("writing part %d", curPart))
		}
		return nil
	}

	for i := 0; i <= len(prog.Layers); i++ {
		idx, included := plan.PartFor(i)
		if !included {
			continue
		}

		if idx != curPart {
			if out != nil {
				end, serr := syn.End(lastInPart, curPart, plan.TotalParts)
				if serr != nil {
					return serr
				}
				if werr := writeText(end); werr != nil {
					return werr
				}
				if cerr := out.Close(); cerr != nil {
					out = nil
					return errors.Wrap(cerr, errors.ErrIO, fmt.Sprintf("closing part %d", curPart))
				}
				out = nil
			}
			if i == len(prog.Layers) {
				// Virtual terminal layer: the last real part is closed.
				break
			}

			ly := prog.Layers[i]
			var prev *layer.Layer
			if ly.Index > 0 {
				prev = prog.Layers[ly.Index-1]
			}
			begin, serr := syn.Begin(ly, prev, idx, plan.TotalParts)
			if serr != nil {
				return serr
			}

			out, err = open(idx)
			if err != nil {
				return errors.Wrap(err, errors.ErrIO, fmt.Sprintf("opening part %d", idx))
			}
			curPart = idx
			lastInPart = nil
			s.logger.Debug("part %d starts at layer %d", idx, i)
			if werr := writeText(begin); werr != nil {
				return werr
			}
		}

		ly := prog.Layers[i]
		if werr := writeText(layerBody(ly)); werr != nil {
			return werr
		}
		if lastInPart == nil {
			settle, serr := syn.Settle(ly)
			if serr != nil {
				return serr
			}
			if werr := writeText(settle); werr != nil {
				return werr
			}
		}
		lastInPart = ly
	}
	return nil
}

// layerBody renders a layer's recorded raw lines verbatim, re-prefixed
// with its marker so resumed files keep the slicer's layer bookkeeping.
func layerBody(ly *layer.Layer) string {
	var b strings.Builder
	fmt.Fprintf(&b, ";LAYER:%d\n", ly.Index)
	for _, line := range ly.Lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// PartPath derives a part's output path by inserting the part index before
// the file extension: model.gcode -> model_0.gcode.
func PartPath(path string, part int) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s_%d%s", base, part, ext)
}
