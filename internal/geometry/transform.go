// internal/geometry/transform.go
// Description: Conversions between normalized image coordinates (top-left
// origin, y down, [0,1]) and a device frame, plus tolerant hit-testing.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// HitEpsilon is how far every edge of a target is pushed outward before a
// point is tested against it. It absorbs the rounding between a rendered
// highlight and the pointer position reported by the OS.
const HitEpsilon = 0.001

var (
	// ErrNonFinite is returned when a coordinate is NaN or infinite.
	ErrNonFinite = errors.New("geometry: non-finite coordinate")
	// ErrEmptyFrame is returned for frames with a non-positive width or height.
	ErrEmptyFrame = errors.New("geometry: frame has non-positive size")
)

// NormPoint is a point in normalized image space.
type NormPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NormRect is a rectangle in normalized image space. X/Y is the top-left corner.
type NormRect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the midpoint of the rectangle.
func (r NormRect) Center() NormPoint {
	return NormPoint{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// IsFinite reports whether every component is a real number.
func (r NormRect) IsFinite() bool {
	return isFinite(r.X) && isFinite(r.Y) && isFinite(r.W) && isFinite(r.H)
}

// Clamp pulls the rectangle into the unit square. The origin is clamped
// first, then the size is cut so the far edges stay inside the image.
func (r NormRect) Clamp() NormRect {
	x := Clamp01(r.X)
	y := Clamp01(r.Y)
	return NormRect{
		X: x,
		Y: y,
		W: math.Min(math.Max(r.W, 0), 1-x),
		H: math.Min(math.Max(r.H, 0), 1-y),
	}
}

// String renders the rect with three decimals, matching the log format used for boxes.
func (r NormRect) String() string {
	return fmt.Sprintf("(%.3f,%.3f,%.3f,%.3f)", r.X, r.Y, r.W, r.H)
}

// Frame describes the device coordinate space a screenshot was taken in.
type Frame struct {
	OriginX float64 `json:"origin_x" mapstructure:"origin_x" yaml:"origin_x"`
	OriginY float64 `json:"origin_y" mapstructure:"origin_y" yaml:"origin_y"`
	Width   float64 `json:"width" mapstructure:"width" yaml:"width"`
	Height  float64 `json:"height" mapstructure:"height" yaml:"height"`
	// YUp is true when the device's vertical axis increases upward, which
	// requires a flip relative to normalized image space.
	YUp bool `json:"y_up" mapstructure:"y_up" yaml:"y_up"`
}

// Validate checks the frame can be used for conversions.
func (f Frame) Validate() error {
	if !isFinite(f.OriginX) || !isFinite(f.OriginY) || !isFinite(f.Width) || !isFinite(f.Height) {
		return ErrNonFinite
	}
	if f.Width <= 0 || f.Height <= 0 {
		return ErrEmptyFrame
	}
	return nil
}

// DeviceRect is a rectangle in device units. X/Y is the corner with the
// smallest coordinates in the device's own axis convention.
type DeviceRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the rectangle.
func (r DeviceRect) Center() Vector2D {
	return Vector2D{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// ToDeviceSpace maps a normalized rectangle into the frame.
func ToDeviceSpace(r NormRect, f Frame) (DeviceRect, error) {
	if !r.IsFinite() {
		return DeviceRect{}, ErrNonFinite
	}
	if err := f.Validate(); err != nil {
		return DeviceRect{}, err
	}

	out := DeviceRect{
		X:      f.OriginX + r.X*f.Width,
		Width:  r.W * f.Width,
		Height: r.H * f.Height,
	}
	if f.YUp {
		// The bottom edge of the normalized rect becomes the minimum y.
		out.Y = f.OriginY + (1-r.Y-r.H)*f.Height
	} else {
		out.Y = f.OriginY + r.Y*f.Height
	}
	return out, nil
}

// ToNormalized maps a device point into normalized image space. The result
// is not clamped; points outside the frame produce values outside [0,1].
func ToNormalized(p Vector2D, f Frame) (NormPoint, error) {
	if !p.IsFinite() {
		return NormPoint{}, ErrNonFinite
	}
	if err := f.Validate(); err != nil {
		return NormPoint{}, err
	}

	nx := (p.X - f.OriginX) / f.Width
	ny := (p.Y - f.OriginY) / f.Height
	if f.YUp {
		ny = 1 - ny
	}
	return NormPoint{X: nx, Y: ny}, nil
}

// RectToNormalized is the inverse of ToDeviceSpace.
func RectToNormalized(r DeviceRect, f Frame) (NormRect, error) {
	if !isFinite(r.X) || !isFinite(r.Y) || !isFinite(r.Width) || !isFinite(r.Height) {
		return NormRect{}, ErrNonFinite
	}
	if err := f.Validate(); err != nil {
		return NormRect{}, err
	}

	out := NormRect{
		X: (r.X - f.OriginX) / f.Width,
		W: r.Width / f.Width,
		H: r.Height / f.Height,
	}
	if f.YUp {
		out.Y = 1 - (r.Y-f.OriginY+r.Height)/f.Height
	} else {
		out.Y = (r.Y - f.OriginY) / f.Height
	}
	return out, nil
}

// IsInside reports whether p falls within r after every edge of r has been
// pushed outward by HitEpsilon.
func IsInside(p NormPoint, r NormRect) bool {
	return IsInsideEps(p, r, HitEpsilon)
}

// IsInsideEps is IsInside with an explicit tolerance.
func IsInsideEps(p NormPoint, r NormRect, eps float64) bool {
	if !isFinite(p.X) || !isFinite(p.Y) || !r.IsFinite() {
		return false
	}
	return p.X >= r.X-eps && p.X <= r.X+r.W+eps &&
		p.Y >= r.Y-eps && p.Y <= r.Y+r.H+eps
}

// Clamp01 limits f to [0,1]. NaN collapses to 0.
func Clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
