// Package demgrid converts georeferenced elevation rasters into compact,
// resolution-reduced grids for lightweight renderers.
package demgrid

import "math"

// A Coord is a pixel coordinate. X is the column, Y is the row.
type Coord struct {
	X int
	Y int
}

// A Point is a fractional pixel position.
type Point struct {
	X float64
	Y float64
}

// Bounds is the geographic extent of a raster or grid, in longitude/latitude
// order: Left < Right, and Top is the northern (first-row) edge.
type Bounds struct {
	Left   float64
	Bottom float64
	Right  float64
	Top    float64
}

// Contains reports whether the geographic point (lon, lat) lies within b,
// edges included.
func (b Bounds) Contains(lon, lat float64) bool {
	return b.Left <= lon && lon <= b.Right && b.Bottom <= lat && lat <= b.Top
}

type Sampler interface {
	Dims() (width, height int)
	Samples(coords []Coord) ([]float64, error)
}

// A Raster is an in-memory elevation raster. Band holds the raw sample
// values, row 0 northernmost, including any nodata sentinel present in the
// source. Band must be rectangular and is never mutated once built.
type Raster struct {
	Band     [][]float64
	Bounds   Bounds
	NoData   *float64
	CRSLabel string
}

// Dims returns the width and height of the raster band.
func (r *Raster) Dims() (int, int) {
	if len(r.Band) == 0 {
		return 0, 0
	}
	return len(r.Band[0]), len(r.Band)
}

// Samples returns the raw band values at coords. Coordinates outside the
// band are NaN. Nodata sentinels are returned as stored; use [Resample] or
// [Raster.ElevationAt] for a nodata-aware view.
func (r *Raster) Samples(coords []Coord) ([]float64, error) {
	width, height := r.Dims()
	samples := make([]float64, len(coords))
	for i, coord := range coords {
		if coord.X < 0 || width <= coord.X || coord.Y < 0 || height <= coord.Y {
			samples[i] = math.NaN()
			continue
		}
		samples[i] = r.Band[coord.Y][coord.X]
	}
	return samples, nil
}

// ElevationAt returns the bilinearly interpolated elevation at the
// geographic point (lon, lat), interpolating between cell centres. It
// returns NaN outside the raster bounds and at missing data.
func (r *Raster) ElevationAt(lon, lat float64) float64 {
	width, height := r.Dims()
	pt, ok := pixelPos(r.Bounds, width, height, lon, lat)
	if !ok {
		return math.NaN()
	}
	samples, err := InterpolateBilinear(&maskedRaster{r}, []Point{pt})
	if err != nil {
		return math.NaN()
	}
	return samples[0]
}

// A maskedRaster is the lookup-oriented view of a Raster: nodata sentinels
// read as NaN so they never blend into interpolated elevations.
type maskedRaster struct {
	raster *Raster
}

func (m *maskedRaster) Dims() (int, int) {
	return m.raster.Dims()
}

func (m *maskedRaster) Samples(coords []Coord) ([]float64, error) {
	samples, err := m.raster.Samples(coords)
	if err != nil {
		return nil, err
	}
	if m.raster.NoData != nil {
		for i, sample := range samples {
			if isClose(sample, *m.raster.NoData) {
				samples[i] = math.NaN()
			}
		}
	}
	return samples, nil
}

// pixelPos maps a geographic point to the fractional pixel position between
// cell centres, clamped to the band. The second return value is false when
// the point lies outside bounds.
func pixelPos(b Bounds, width, height int, lon, lat float64) (Point, bool) {
	if width == 0 || height == 0 || !b.Contains(lon, lat) {
		return Point{}, false
	}
	scaleX := (b.Right - b.Left) / float64(width)
	scaleY := (b.Top - b.Bottom) / float64(height)
	x := (lon-b.Left)/scaleX - 0.5
	y := (b.Top-lat)/scaleY - 0.5
	return Point{
		X: math.Min(math.Max(x, 0), float64(width-1)),
		Y: math.Min(math.Max(y, 0), float64(height-1)),
	}, true
}
