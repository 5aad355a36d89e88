package demgrid

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// GeographicCRS is the standard geographic reference identifier. Rasters
// labelled with any other CRS trigger an [Advisory], never an error.
const GeographicCRS = "EPSG:4326"

var (
	ErrInvalidDimension = errors.New("invalid grid dimension")
	ErrEmptySource      = errors.New("empty source raster")
)

// An Advisory is a non-fatal warning emitted while resampling. The zero
// behavior is silence; install a receiver with [WithAdvisoryFunc].
type Advisory struct {
	Code    string
	Message string
}

// Advisory codes.
const (
	AdvisoryCRSMismatch = "crs_mismatch"
)

type ResampleOption func(*resampler)

// WithNoDataOverride sets the value treated as nodata, taking precedence
// over any nodata value embedded in the source raster.
func WithNoDataOverride(noData float64) ResampleOption {
	return func(r *resampler) {
		r.noData = &noData
	}
}

// WithAdvisoryFunc installs a receiver for non-fatal advisories.
func WithAdvisoryFunc(advisoryFunc func(Advisory)) ResampleOption {
	return func(r *resampler) {
		r.advisoryFunc = advisoryFunc
	}
}

type resampler struct {
	noData       *float64
	advisoryFunc func(Advisory)
}

func (r *resampler) advise(code, message string) {
	if r.advisoryFunc != nil {
		r.advisoryFunc(Advisory{Code: code, Message: message})
	}
}

// Resample builds an ncols by nrows grid from source by bilinear
// interpolation, mapping the output row and column indexes linearly onto the
// source index space: output index 0 samples source index 0 and output index
// n-1 samples the last source index, upsampling or downsampling as needed. A
// single-index axis samples source index 0. Cells within tolerance of the
// effective nodata value, and NaN cells, become missing in the returned
// grid; the sentinel itself never leaks into it. Resample is pure: it reads
// source and builds a fresh Grid sharing no storage with the source band.
func Resample(source *Raster, ncols, nrows int, options ...ResampleOption) (*Grid, error) {
	if ncols <= 0 || nrows <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimension, ncols, nrows)
	}
	width, height := source.Dims()
	if width == 0 || height == 0 {
		return nil, ErrEmptySource
	}

	r := resampler{
		noData: source.NoData,
	}
	for _, option := range options {
		option(&r)
	}

	if source.CRSLabel != "" && source.CRSLabel != GeographicCRS {
		r.advise(AdvisoryCRSMismatch, fmt.Sprintf("source CRS is %s, not %s; using raw bounds as lon/lat", source.CRSLabel, GeographicCRS))
	}

	pts := make([]Point, 0, nrows*ncols)
	for i := range nrows {
		y := sourcePos(i, nrows, height)
		for j := range ncols {
			pts = append(pts, Point{X: sourcePos(j, ncols, width), Y: y})
		}
	}
	samples, err := InterpolateBilinear(source, pts)
	if err != nil {
		return nil, err
	}

	elev := make([][]*float64, nrows)
	for i := range nrows {
		row := make([]*float64, ncols)
		for j := range ncols {
			sample := samples[i*ncols+j]
			if math.IsNaN(sample) || (r.noData != nil && isClose(sample, *r.noData)) {
				continue
			}
			v := sample
			row[j] = &v
		}
		elev[i] = row
	}

	return &Grid{
		BBox:  source.Bounds,
		NCols: ncols,
		NRows: nrows,
		Lons:  linspace(source.Bounds.Left, source.Bounds.Right, ncols),
		Lats:  linspace(source.Bounds.Top, source.Bounds.Bottom, nrows),
		Elev:  elev,
	}, nil
}

// sourcePos maps output index i of an n-point axis onto the index space of a
// size-sample source axis.
func sourcePos(i, n, size int) float64 {
	if n == 1 {
		return 0
	}
	return float64(i) * float64(size-1) / float64(n-1)
}

// linspace returns n evenly spaced values from start to stop inclusive, with
// exact endpoints. A single-point axis degenerates to the start value.
func linspace(start, stop float64, n int) []float64 {
	dst := make([]float64, n)
	if n == 1 {
		dst[0] = start
		return dst
	}
	floats.Span(dst, start, stop)
	dst[0] = start
	dst[n-1] = stop
	return dst
}

// Tolerances for matching values against the nodata sentinel. Sentinels
// widened from float32 storage do not compare exactly in float64.
const (
	noDataRelTol = 1e-5
	noDataAbsTol = 1e-8
)

func isClose(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) <= noDataAbsTol+noDataRelTol*math.Abs(b)
}
