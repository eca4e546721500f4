package stats

import "math"

// Range is the closed interval spanned by a sample
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// MinMax returns the range of values. ok is false when values holds no
// finite number.
func MinMax(values []float64) (r Range, ok bool) {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if !ok {
			r = Range{Min: v, Max: v}
			ok = true
			continue
		}
		if v < r.Min {
			r.Min = v
		}
		if v > r.Max {
			r.Max = v
		}
	}
	return r, ok
}

// Degenerate reports whether the range has zero width
func (r Range) Degenerate() bool {
	return r.Max == r.Min
}

// Scale maps v linearly so that Min becomes 0 and Max becomes 1.
// A degenerate range maps everything to 0.
func (r Range) Scale(v float64) float64 {
	if r.Degenerate() {
		return 0
	}
	return (v - r.Min) / (r.Max - r.Min)
}
