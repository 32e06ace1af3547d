package weight

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"freightquote/internal/freight"
)

var ErrInvalidDivisor = errors.New("volumetric divisor must be positive")

// eps absorbs float noise before rounding up so 73.0000000001 stays 73.
const eps = 1e-9

// Volumetric returns L×B×H / divisor for one piece.
func Volumetric(it freight.Item, divisor float64) float64 {
	return it.LengthCm * it.BreadthCm * it.HeightCm / divisor
}

// PieceChargeable is the greater of actual and volumetric weight.
func PieceChargeable(it freight.Item, divisor float64) float64 {
	return math.Max(it.WeightKg, Volumetric(it, divisor))
}

// Chargeable sums the per-piece chargeable weights. The result is not
// rounded; carriers apply their own Rule.
func Chargeable(items []freight.Item, divisor float64) (float64, error) {
	if !(divisor > 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDivisor, divisor)
	}
	if len(items) == 0 {
		return 0, fmt.Errorf("%w: no items", freight.ErrInvalidInput)
	}
	var total float64
	for i, it := range items {
		if err := it.Validate(); err != nil {
			return 0, fmt.Errorf("item %d: %w", i+1, err)
		}
		total += PieceChargeable(it, divisor)
	}
	return total, nil
}

// RoundUp rounds w up to the next multiple of step. A non-positive step
// leaves w unchanged.
func RoundUp(w, step float64) float64 {
	if step <= 0 {
		return w
	}
	return math.Ceil(w/step-eps) * step
}

// SnapToSlab returns the smallest slab that is ≥ w. ok is false when w
// exceeds the largest slab.
func SnapToSlab(w float64, slabs []float64) (slab float64, ok bool) {
	if len(slabs) == 0 {
		return w, true
	}
	sorted := append([]float64(nil), slabs...)
	sort.Float64s(sorted)
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i] >= w-eps })
	if i == len(sorted) {
		return 0, false
	}
	return sorted[i], true
}

// Rule is a carrier's billable-weight policy. MinKg is applied first, then
// either the slab table (when present) or Step rounding; both round up.
type Rule struct {
	MinKg float64   `json:"min_kg,omitempty"`
	Step  float64   `json:"step,omitempty"`
	Slabs []float64 `json:"slabs,omitempty"`
}

// Apply turns chargeable weight into billable weight. ok is false when the
// weight lies above the slab table.
func (r Rule) Apply(w float64) (float64, bool) {
	w = math.Max(w, r.MinKg)
	if len(r.Slabs) > 0 {
		return SnapToSlab(w, r.Slabs)
	}
	return RoundUp(w, r.Step), true
}

// MaxSlab is the top of the slab table, zero without one.
func (r Rule) MaxSlab() float64 {
	var max float64
	for _, s := range r.Slabs {
		max = math.Max(max, s)
	}
	return max
}
