// Package partition computes the deterministic mapping from layer index to
// part index.
package partition

import (
	"math"

	"gsplit/pkg/errors"
)

// Plan maps layer indices to part indices. A Plan is computed once after
// all layers are known and is immutable thereafter.
type Plan struct {
	TotalLayers int
	StartLayer  int
	TotalParts  int

	// layersPerPart is the ceiled per-part layer budget.
	layersPerPart int
}

// Part is a contiguous range of layer indices assigned to one output. It
// owns no state; it is a view produced by the plan.
type Part struct {
	Index      int
	FirstLayer int
	LastLayer  int
	TotalParts int
}

// New computes a partition plan.
//
// The effective layer span is totalLayers - startLayer. The nominal
// layers-per-part is span / targetParts; when a max-layers-per-part cap is
// configured and the nominal value exceeds it, layers-per-part is
// recomputed as span / ceil(span / cap) so the cap is respected while
// parts stay as equal as possible.
func New(totalLayers, targetParts, maxPerPart, startLayer int) (Plan, error) {
	if totalLayers < 1 {
		return Plan{}, errors.Newf(errors.ErrConfig, "nothing to split: %d layers", totalLayers)
	}
	if startLayer >= totalLayers {
		return Plan{}, errors.Newf(errors.ErrConfig,
			"start layer %d excludes all %d layers", startLayer, totalLayers)
	}

	span := totalLayers - startLayer
	nominal := float64(span) / float64(targetParts)
	if maxPerPart > 0 && nominal > float64(maxPerPart) {
		nominal = float64(span) / math.Ceil(float64(span)/float64(maxPerPart))
	}
	per := int(math.Ceil(nominal))

	total := int(math.Ceil(float64(span-1) / float64(per)))
	if total < 1 {
		total = 1
	}

	return Plan{
		TotalLayers:   totalLayers,
		StartLayer:    startLayer,
		TotalParts:    total,
		layersPerPart: per,
	}, nil
}

// PartFor returns the part index owning the given layer. The second return
// is false when the layer is excluded by the start-layer offset. The
// virtual terminal layer (index == TotalLayers, representing the
// end-of-print marker) maps to TotalParts, forcing closure of the last
// real part.
func (p Plan) PartFor(layer int) (int, bool) {
	if layer < p.StartLayer {
		return 0, false
	}
	if layer >= p.TotalLayers {
		return p.TotalParts, true
	}
	idx := (layer - p.StartLayer) / p.layersPerPart
	if idx > p.TotalParts-1 {
		idx = p.TotalParts - 1
	}
	return idx, true
}

// Parts enumerates the part views in order.
func (p Plan) Parts() []Part {
	parts := make([]Part, p.TotalParts)
	for i := range parts {
		parts[i] = Part{Index: i, FirstLayer: -1, TotalParts: p.TotalParts}
	}
	for layer := p.StartLayer; layer < p.TotalLayers; layer++ {
		idx, ok := p.PartFor(layer)
		if !ok || idx >= p.TotalParts {
			continue
		}
		if parts[idx].FirstLayer < 0 {
			parts[idx].FirstLayer = layer
		}
		parts[idx].LastLayer = layer
	}
	return parts
}
