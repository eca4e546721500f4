package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinMax(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Range
		wantOK bool
	}{
		{"empty", nil, Range{}, false},
		{"single", []float64{4}, Range{4, 4}, true},
		{"mixed", []float64{3, -1, 7, 2}, Range{-1, 7}, true},
		{"skips nan", []float64{math.NaN(), 5, 1}, Range{1, 5}, true},
		{"only nan", []float64{math.NaN()}, Range{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MinMax(tt.values)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRange_Scale(t *testing.T) {
	r := Range{Min: 2, Max: 10}
	assert.False(t, r.Degenerate())
	assert.Equal(t, 0.0, r.Scale(2))
	assert.Equal(t, 1.0, r.Scale(10))
	assert.Equal(t, 0.5, r.Scale(6))

	flat := Range{Min: 3, Max: 3}
	assert.True(t, flat.Degenerate())
	assert.Equal(t, 0.0, flat.Scale(3))
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{1, 2, 3, 4, math.NaN()})
	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 2.5, s.Mean)
	assert.Equal(t, 2.5, s.Median)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.InDelta(t, 1.2910, s.StdDev, 1e-4)

	empty := Summarize(nil)
	assert.Zero(t, empty.Count)
	assert.Zero(t, empty.Mean)
}

func TestQuantile(t *testing.T) {
	values := []float64{5, 1, 3}
	assert.Equal(t, 3.0, Median(values))
	assert.Equal(t, 1.0, Quantile(values, -1))
	assert.Equal(t, 5.0, Quantile(values, 2))
	assert.Equal(t, []float64{5, 1, 3}, values, "input must not be reordered")
}
