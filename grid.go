package demgrid

import (
	"encoding/json"
	"fmt"
	"io"
)

// A Grid is a resampled elevation grid. Lons and Lats are the cell
// coordinate axes, Lats descending from north to south, and Elev is indexed
// [row][col] with nil marking missing data. Grids marshal to the compact
// JSON shape consumed by lightweight renderers, with missing cells as null.
type Grid struct {
	BBox  Bounds       `json:"bbox"`
	NCols int          `json:"ncols"`
	NRows int          `json:"nrows"`
	Lons  []float64    `json:"lons"`
	Lats  []float64    `json:"lats"`
	Elev  [][]*float64 `json:"elev"`
}

// MarshalJSON marshals b as [left, bottom, right, top].
func (b Bounds) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.Left, b.Bottom, b.Right, b.Top})
}

// UnmarshalJSON unmarshals b from [left, bottom, right, top].
func (b *Bounds) UnmarshalJSON(data []byte) error {
	var edges []float64
	if err := json.Unmarshal(data, &edges); err != nil {
		return err
	}
	if len(edges) != 4 {
		return fmt.Errorf("bbox: expected 4 edges, got %d", len(edges))
	}
	b.Left = edges[0]
	b.Bottom = edges[1]
	b.Right = edges[2]
	b.Top = edges[3]
	return nil
}

// WriteJSON writes g to w as a single JSON document with a trailing newline.
func (g *Grid) WriteJSON(w io.Writer) error {
	return json.NewEncoder(w).Encode(g)
}
