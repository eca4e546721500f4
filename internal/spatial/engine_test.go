package spatial

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_BufferDissolveExplode(t *testing.T) {
	e := NewEngine(DefaultQuadSegments)

	tests := []struct {
		name      string
		points    []orb.Point
		wantParts int
	}{
		{"single point", []orb.Point{{0, 0}}, 1},
		{"near pair and far point", []orb.Point{{0, 0}, {10, 0}, {10000, 0}}, 2},
		{"chain merges transitively", []orb.Point{{0, 0}, {90, 0}, {180, 0}}, 1},
		{"separate beyond twice the distance", []orb.Point{{0, 0}, {150, 0}}, 2},
		{"duplicates", []orb.Point{{5, 5}, {5, 5}, {5, 5}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, err := e.BufferDissolve(tt.points, 50)
			require.NoError(t, err)
			require.NotNil(t, merged)

			parts, err := e.Explode(merged)
			require.NoError(t, err)
			assert.Len(t, parts, tt.wantParts)

			for _, p := range parts {
				_, ok := p.Geom.(orb.Polygon)
				assert.True(t, ok, "exploded part should be a single polygon, got %T", p.Geom)
			}
		})
	}
}

func TestEngine_BufferDissolve_Validation(t *testing.T) {
	e := NewEngine(0)

	_, err := e.BufferDissolve([]orb.Point{{0, 0}}, 0)
	assert.ErrorIs(t, err, ErrSpatialOperation)

	s, err := e.BufferDissolve(nil, 50)
	assert.NoError(t, err)
	assert.Nil(t, s)

	parts, err := e.Explode(nil)
	assert.NoError(t, err)
	assert.Empty(t, parts)
}

func TestEngine_BufferArea(t *testing.T) {
	e := NewEngine(DefaultQuadSegments)

	s, err := e.BufferDissolve([]orb.Point{{1000, 1000}}, 50)
	require.NoError(t, err)

	square, err := e.Shape(orb.Polygon{{{0, 0}, {2000, 0}, {2000, 2000}, {0, 2000}, {0, 0}}})
	require.NoError(t, err)

	area, err := e.OverlapArea(s, square)
	require.NoError(t, err)
	// Inscribed 20-gon area is within 2% of the disk area.
	assert.InEpsilon(t, math.Pi*50*50, area, 0.02)
}

func TestEngine_IntersectsAndOverlap(t *testing.T) {
	e := NewEngine(DefaultQuadSegments)

	left, err := e.Shape(orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}})
	require.NoError(t, err)
	right, err := e.Shape(orb.Polygon{{{5, 0}, {20, 0}, {20, 10}, {5, 10}, {5, 0}}})
	require.NoError(t, err)
	far, err := e.Shape(orb.Polygon{{{100, 100}, {110, 100}, {110, 110}, {100, 110}, {100, 100}}})
	require.NoError(t, err)
	inside, err := e.Shape(orb.Point{2, 2})
	require.NoError(t, err)
	edge, err := e.Shape(orb.Point{10, 5})
	require.NoError(t, err)

	ok, err := e.Intersects(left, right)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Intersects(left, far)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.Intersects(inside, left)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Intersects(edge, left)
	require.NoError(t, err)
	assert.True(t, ok, "boundary points intersect")

	area, err := e.OverlapArea(left, right)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, area, 1e-9)

	area, err = e.OverlapArea(left, far)
	require.NoError(t, err)
	assert.Zero(t, area)
}
