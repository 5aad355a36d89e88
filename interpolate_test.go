package demgrid_test

import (
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-demgrid"
)

func TestInterpolateBilinear(t *testing.T) {
	simpleRaster := &demgrid.Raster{
		Band: [][]float64{
			{0, 1, 2},
			{2, 3, 4},
			{4, 5, 6},
		},
	}
	for _, tc := range []struct {
		name     string
		sampler  demgrid.Sampler
		pts      []demgrid.Point
		expected []float64
	}{
		{
			name:    "aligned_and_fractional",
			sampler: simpleRaster,
			pts: []demgrid.Point{
				{X: 0, Y: 0},
				{X: 1, Y: 0},
				{X: 0, Y: 1},
				{X: 1, Y: 1},
				{X: 0.5, Y: 0.5},
				{X: 0.5, Y: 0},
				{X: 0, Y: 0.5},
				{X: 1, Y: 0.5},
				{X: 0.5, Y: 1},
				{X: 2, Y: 2},
				{X: 1.5, Y: 1.5},
			},
			expected: []float64{
				0,
				1,
				2,
				3,
				1.5,
				0.5,
				1,
				2,
				2.5,
				6,
				4.5,
			},
		},
		{
			name:    "clamped_to_edges",
			sampler: simpleRaster,
			pts: []demgrid.Point{
				{X: -1, Y: -1},
				{X: 10, Y: 10},
				{X: 2.5, Y: 1},
				{X: 1, Y: -0.5},
			},
			expected: []float64{
				0,
				6,
				4,
				1,
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			actual, err := demgrid.InterpolateBilinear(tc.sampler, tc.pts)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestInterpolateBilinearMissing(t *testing.T) {
	raster := &demgrid.Raster{
		Band: [][]float64{
			{math.NaN(), 1},
			{2, 3},
		},
	}

	// Zero-weight corners never touch their samples, so positions aligned
	// with valid cells stay exact even next to the hole.
	actual, err := demgrid.InterpolateBilinear(raster, []demgrid.Point{
		{X: 1, Y: 1},
		{X: 1, Y: 0},
		{X: 0, Y: 1},
		{X: 1, Y: 0.5},
		{X: 0.5, Y: 1},
	})
	assert.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 2, 2, 2.5}, actual)

	// Positions that blend the hole are missing.
	actual, err = demgrid.InterpolateBilinear(raster, []demgrid.Point{
		{X: 0, Y: 0},
		{X: 0.5, Y: 0.5},
		{X: 0.5, Y: 0},
		{X: 0, Y: 0.5},
	})
	assert.NoError(t, err)
	for _, sample := range actual {
		assert.True(t, math.IsNaN(sample))
	}
}
