// internal/targeting/grid.go
package targeting

import (
	"fmt"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/geometry"
	"github.com/xkilldash9x/waypoint/internal/imaging"
)

const (
	DefaultGridColumns    = 16
	DefaultGridRows       = 10
	DefaultMarkerRadiusPx = 12.0
)

// Marker is a labeled point on a captured image used for coarse grounding.
// Markers are regenerated for every capture and never carried across
// screenshots.
type Marker struct {
	ID     int                `json:"id"`
	Center geometry.NormPoint `json:"center"`
	// Radius is normalized by the longest image side.
	Radius float64 `json:"radius"`
}

// Grid is the set of markers generated for one capture.
type Grid struct {
	Width, Height int
	Columns, Rows int
	Markers       []Marker
}

// GenerateGrid lays out columns*rows markers over an image of the given
// pixel size. Ids run row-major from 0 and centers sit in the middle of each
// cell. The layout depends only on its arguments.
func GenerateGrid(width, height, columns, rows int) (*Grid, error) {
	return GenerateGridWithRadius(width, height, columns, rows, DefaultMarkerRadiusPx)
}

// GenerateGridWithRadius is GenerateGrid with an explicit marker radius in pixels.
func GenerateGridWithRadius(width, height, columns, rows int, radiusPx float64) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("targeting: image size must be positive, got %dx%d", width, height)
	}
	if columns <= 0 || rows <= 0 {
		return nil, fmt.Errorf("targeting: grid density must be positive, got %dx%d", columns, rows)
	}
	if radiusPx <= 0 {
		radiusPx = DefaultMarkerRadiusPx
	}

	radius := radiusPx / float64(max(width, height))
	markers := make([]Marker, 0, columns*rows)
	for row := 0; row < rows; row++ {
		for col := 0; col < columns; col++ {
			markers = append(markers, Marker{
				ID: row*columns + col,
				Center: geometry.NormPoint{
					X: (float64(col) + 0.5) / float64(columns),
					Y: (float64(row) + 0.5) / float64(rows),
				},
				Radius: radius,
			})
		}
	}
	return &Grid{Width: width, Height: height, Columns: columns, Rows: rows, Markers: markers}, nil
}

// Lookup returns the marker with the given id.
func (g *Grid) Lookup(id int) (Marker, bool) {
	if g == nil || id < 0 || id >= len(g.Markers) {
		return Marker{}, false
	}
	return g.Markers[id], true
}

// Cell returns the grid cell a marker sits in. It is the coarse box a marker
// reference stands for until it is refined.
func (g *Grid) Cell(id int) (geometry.NormRect, bool) {
	if _, ok := g.Lookup(id); !ok {
		return geometry.NormRect{}, false
	}
	cw := 1 / float64(g.Columns)
	ch := 1 / float64(g.Rows)
	col := id % g.Columns
	row := id / g.Columns
	return geometry.NormRect{X: float64(col) * cw, Y: float64(row) * ch, W: cw, H: ch}, true
}

// Spec returns the grid density in wire form.
func (g *Grid) Spec() *schemas.MarkerGridSpec {
	if g == nil {
		return nil
	}
	return &schemas.MarkerGridSpec{Columns: g.Columns, Rows: g.Rows}
}

// Marks converts the grid into drawable marks.
func (g *Grid) Marks() []imaging.Mark {
	if g == nil {
		return nil
	}
	marks := make([]imaging.Mark, len(g.Markers))
	for i, m := range g.Markers {
		marks[i] = imaging.Mark{ID: m.ID, Center: m.Center, Radius: m.Radius}
	}
	return marks
}
