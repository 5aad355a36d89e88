package demgrid

import "math"

// InterpolateBilinear returns the bilinearly interpolated sample at each
// fractional pixel position in pts. Each result is a weighted average of the
// up to four nearest samples, weighted by the fractional distance along each
// axis; positions outside the band are clamped to the nearest edge, never
// extrapolated.
func InterpolateBilinear(s Sampler, pts []Point) ([]float64, error) {
	width, height := s.Dims()
	coords := make([]Coord, 4*len(pts))
	for i, pt := range pts {
		x0, y0, _, _ := corner(pt, width, height)
		x1 := min(x0+1, width-1)
		y1 := min(y0+1, height-1)
		coords[4*i+0] = Coord{X: x0, Y: y0}
		coords[4*i+1] = Coord{X: x1, Y: y0}
		coords[4*i+2] = Coord{X: x0, Y: y1}
		coords[4*i+3] = Coord{X: x1, Y: y1}
	}
	samples, err := s.Samples(coords)
	if err != nil {
		return nil, err
	}
	result := make([]float64, len(pts))
	for i, pt := range pts {
		_, _, dx, dy := corner(pt, width, height)
		// Skip zero weights: 0*NaN is NaN.
		var v float64
		if w := (1 - dx) * (1 - dy); w != 0 {
			v += samples[4*i+0] * w
		}
		if w := dx * (1 - dy); w != 0 {
			v += samples[4*i+1] * w
		}
		if w := (1 - dx) * dy; w != 0 {
			v += samples[4*i+2] * w
		}
		if w := dx * dy; w != 0 {
			v += samples[4*i+3] * w
		}
		result[i] = v
	}
	return result, nil
}

// corner returns the upper-left corner pixel of the interpolation cell for
// pt and the fractional distances past it, after clamping pt to the band.
func corner(pt Point, width, height int) (x0, y0 int, dx, dy float64) {
	x := math.Min(math.Max(pt.X, 0), float64(width-1))
	y := math.Min(math.Max(pt.Y, 0), float64(height-1))
	x0 = int(math.Floor(x))
	y0 = int(math.Floor(y))
	dx = x - float64(x0)
	dy = y - float64(y0)
	return x0, y0, dx, dy
}
