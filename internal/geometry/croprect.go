package geometry

import (
	"fmt"
	"image"
	"math"
)

// cropTolerance absorbs float error when checking the far edges of a crop.
const cropTolerance = 1e-9

// CropRect is a sub-region of a full image in normalized coordinates.
type CropRect struct {
	CX float64 `json:"cx"`
	CY float64 `json:"cy"`
	CW float64 `json:"cw"`
	CH float64 `json:"ch"`
}

// Validate enforces cx,cy >= 0, cx+cw <= 1, cy+ch <= 1 and a positive size.
func (c CropRect) Validate() error {
	if !isFinite(c.CX) || !isFinite(c.CY) || !isFinite(c.CW) || !isFinite(c.CH) {
		return ErrNonFinite
	}
	if c.CW <= 0 || c.CH <= 0 {
		return fmt.Errorf("geometry: crop has non-positive size %s", c)
	}
	if c.CX < 0 || c.CY < 0 || c.CX+c.CW > 1+cropTolerance || c.CY+c.CH > 1+cropTolerance {
		return fmt.Errorf("geometry: crop %s exceeds the unit square", c)
	}
	return nil
}

// Rect returns the crop as a NormRect.
func (c CropRect) Rect() NormRect {
	return NormRect{X: c.CX, Y: c.CY, W: c.CW, H: c.CH}
}

// PixelBounds converts the crop into an image rectangle for an image of the
// given pixel size. The result always covers at least one pixel.
func (c CropRect) PixelBounds(width, height int) image.Rectangle {
	x0 := int(math.Floor(c.CX * float64(width)))
	y0 := int(math.Floor(c.CY * float64(height)))
	x1 := int(math.Ceil((c.CX + c.CW) * float64(width)))
	y1 := int(math.Ceil((c.CY + c.CH) * float64(height)))
	r := image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, width, height))
	if r.Empty() && width > 0 && height > 0 {
		x := min(max(x0, 0), width-1)
		y := min(max(y0, 0), height-1)
		r = image.Rect(x, y, x+1, y+1)
	}
	return r
}

func (c CropRect) String() string {
	return fmt.Sprintf("(%.3f,%.3f,%.3f,%.3f)", c.CX, c.CY, c.CW, c.CH)
}
