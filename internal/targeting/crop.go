// internal/targeting/crop.go
package targeting

import (
	"math"

	"github.com/xkilldash9x/waypoint/internal/geometry"
)

const (
	MinCropSize = 0.05
	MaxCropSize = 0.7
	// minStitchedSize keeps stitched boxes from collapsing to zero area.
	minStitchedSize = 0.001
)

// CropAround centers a square of normalized side size on center, then
// slides it back inside the unit square. The side is clamped to
// [MinCropSize, MaxCropSize] and is never reduced by the translation.
func CropAround(center geometry.NormPoint, size float64) geometry.CropRect {
	if math.IsNaN(size) {
		size = MinCropSize
	}
	s := math.Min(math.Max(size, MinCropSize), MaxCropSize)

	return geometry.CropRect{
		CX: slide(center.X-s/2, s),
		CY: slide(center.Y-s/2, s),
		CW: s,
		CH: s,
	}
}

// slide keeps [origin, origin+s] within [0,1].
func slide(origin, s float64) float64 {
	if math.IsNaN(origin) || origin < 0 {
		return 0
	}
	if origin+s > 1 {
		return 1 - s
	}
	return origin
}

// Stitch maps a crop-local box back into full-image coordinates. The origin
// is clamped so that at least minStitchedSize fits before the image edge,
// and the size is cut so the box never runs past that edge.
func Stitch(crop geometry.CropRect, local geometry.NormRect) geometry.NormRect {
	x := math.Min(geometry.Clamp01(crop.CX+local.X*crop.CW), 1-minStitchedSize)
	y := math.Min(geometry.Clamp01(crop.CY+local.Y*crop.CH), 1-minStitchedSize)
	w := math.Max(minStitchedSize, math.Min(local.W*crop.CW, 1-x))
	h := math.Max(minStitchedSize, math.Min(local.H*crop.CH, 1-y))
	return geometry.NormRect{X: x, Y: y, W: w, H: h}
}

// Localize is the inverse of Stitch without clamping: it expresses a
// full-image box in the crop's local coordinates.
func Localize(crop geometry.CropRect, full geometry.NormRect) geometry.NormRect {
	return geometry.NormRect{
		X: (full.X - crop.CX) / crop.CW,
		Y: (full.Y - crop.CY) / crop.CH,
		W: full.W / crop.CW,
		H: full.H / crop.CH,
	}
}
