package imaging

import (
	"image"
	"image/color"
	"math"
	"strconv"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/xkilldash9x/waypoint/internal/geometry"
)

// Mark is a labeled dot drawn onto a screenshot so a remote model can refer
// to positions by id.
type Mark struct {
	ID     int
	Center geometry.NormPoint
	// Radius is normalized by the longest image side.
	Radius float64
}

var (
	markFill    = color.RGBA{R: 220, G: 30, B: 60, A: 200}
	markOutline = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	markText    = image.White
)

// Annotate returns a copy of img with every mark drawn on top.
func Annotate(img image.Image, marks []Mark) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	longest := float64(max(b.Dx(), b.Dy()))
	face := basicfont.Face7x13
	for _, m := range marks {
		cx := m.Center.X * float64(b.Dx())
		cy := m.Center.Y * float64(b.Dy())
		r := math.Max(m.Radius*longest, 3)
		fillCircle(dst, cx, cy, r, markFill, markOutline)

		label := strconv.Itoa(m.ID)
		d := &font.Drawer{Dst: dst, Src: markText, Face: face}
		width := d.MeasureString(label)
		d.Dot = fixed.Point26_6{
			X: fixed.I(int(cx)) - width/2,
			Y: fixed.I(int(cy) + face.Ascent/2 - 1),
		}
		d.DrawString(label)
	}
	return dst
}

// AnnotatePNG is Annotate over encoded bytes, returning PNG bytes.
func AnnotatePNG(data []byte, marks []Mark) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return EncodePNG(Annotate(img, marks))
}

// fillCircle paints a disc with a one pixel outline, blending over dst.
func fillCircle(dst *image.RGBA, cx, cy, r float64, fill, outline color.RGBA) {
	bounds := dst.Bounds()
	x0 := max(bounds.Min.X, int(math.Floor(cx-r-1)))
	x1 := min(bounds.Max.X, int(math.Ceil(cx+r+1)))
	y0 := max(bounds.Min.Y, int(math.Floor(cy-r-1)))
	y1 := min(bounds.Max.Y, int(math.Ceil(cy+r+1)))
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
			switch {
			case d <= r-1:
				blend(dst, x, y, fill)
			case d <= r:
				dst.SetRGBA(x, y, outline)
			}
		}
	}
}

func blend(dst *image.RGBA, x, y int, c color.RGBA) {
	under := dst.RGBAAt(x, y)
	a := uint32(c.A)
	mix := func(top, bottom uint8) uint8 {
		return uint8((uint32(top)*a + uint32(bottom)*(255-a)) / 255)
	}
	dst.SetRGBA(x, y, color.RGBA{
		R: mix(c.R, under.R),
		G: mix(c.G, under.G),
		B: mix(c.B, under.B),
		A: 255,
	})
}
