package demgrid_test

import (
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-demgrid"
)

func ptr[T any](v T) *T {
	return &v
}

func TestBoundsContains(t *testing.T) {
	bounds := demgrid.Bounds{Left: -10, Bottom: 35, Right: 5, Top: 45}
	for _, tc := range []struct {
		lon      float64
		lat      float64
		expected bool
	}{
		{lon: 0, lat: 40, expected: true},
		{lon: -10, lat: 35, expected: true},
		{lon: 5, lat: 45, expected: true},
		{lon: -10.01, lat: 40, expected: false},
		{lon: 0, lat: 46, expected: false},
	} {
		assert.Equal(t, tc.expected, bounds.Contains(tc.lon, tc.lat))
	}
}

func TestRasterDims(t *testing.T) {
	var raster demgrid.Raster
	width, height := raster.Dims()
	assert.Equal(t, 0, width)
	assert.Equal(t, 0, height)
}

func TestRasterSamples(t *testing.T) {
	raster := &demgrid.Raster{
		Band: [][]float64{
			{-9999, 20},
			{30, 40},
		},
		NoData: ptr(-9999.0),
	}
	samples, err := raster.Samples([]demgrid.Coord{
		{X: 0, Y: 0},
		{X: 1, Y: 1},
		{X: -1, Y: 0},
		{X: 2, Y: 0},
	})
	assert.NoError(t, err)
	// Sentinels come back raw, out of band coordinates as NaN.
	assert.Equal(t, -9999.0, samples[0])
	assert.Equal(t, 40.0, samples[1])
	assert.True(t, math.IsNaN(samples[2]))
	assert.True(t, math.IsNaN(samples[3]))
}

func TestRasterElevationAt(t *testing.T) {
	raster := &demgrid.Raster{
		Band: [][]float64{
			{10, 20},
			{30, 40},
		},
		Bounds: demgrid.Bounds{Left: 0, Bottom: 0, Right: 2, Top: 2},
	}
	for _, tc := range []struct {
		name     string
		lon      float64
		lat      float64
		expected float64
	}{
		{name: "cell_centre", lon: 0.5, lat: 1.5, expected: 10},
		{name: "raster_centre", lon: 1, lat: 1, expected: 25},
		{name: "between_rows", lon: 0.5, lat: 1, expected: 20},
		{name: "corner_clamped", lon: 2, lat: 2, expected: 20},
		{name: "edge_clamped", lon: 0, lat: 0, expected: 30},
		{name: "outside_east", lon: 2.5, lat: 1, expected: math.NaN()},
		{name: "outside_south", lon: 1, lat: -0.1, expected: math.NaN()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			actual := raster.ElevationAt(tc.lon, tc.lat)
			if math.IsNaN(tc.expected) {
				assert.True(t, math.IsNaN(actual))
			} else {
				assert.Equal(t, tc.expected, actual)
			}
		})
	}
}

func TestRasterElevationAtNoData(t *testing.T) {
	raster := &demgrid.Raster{
		Band: [][]float64{
			{-9999, 20},
			{30, 40},
		},
		Bounds: demgrid.Bounds{Left: 0, Bottom: 0, Right: 2, Top: 2},
		NoData: ptr(-9999.0),
	}
	assert.True(t, math.IsNaN(raster.ElevationAt(0.5, 1.5)))
	assert.True(t, math.IsNaN(raster.ElevationAt(1, 1)))
	assert.Equal(t, 40.0, raster.ElevationAt(1.5, 0.5))
	assert.Equal(t, 30.0, raster.ElevationAt(0.5, 0.5))
}
