package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	topDownFrame = Frame{OriginX: 0, OriginY: 0, Width: 1920, Height: 1080}
	// A secondary display to the right of the primary, with a bottom-left origin.
	flippedFrame = Frame{OriginX: 1440, OriginY: -120, Width: 2560, Height: 1440, YUp: true}
)

// Verifies that normalized -> device -> normalized is lossless for both axis conventions.
func TestRoundTrip_RectsInUnitSquare(t *testing.T) {
	frames := map[string]Frame{"top_down": topDownFrame, "flipped": flippedFrame}
	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			for x := 0.0; x <= 1.0; x += 0.125 {
				for y := 0.0; y <= 1.0; y += 0.125 {
					r := NormRect{X: x, Y: y, W: (1 - x) / 2, H: (1 - y) / 3}

					dev, err := ToDeviceSpace(r, frame)
					require.NoError(t, err)
					back, err := RectToNormalized(dev, frame)
					require.NoError(t, err)

					assert.InDelta(t, r.X, back.X, 1e-9)
					assert.InDelta(t, r.Y, back.Y, 1e-9)
					assert.InDelta(t, r.W, back.W, 1e-9)
					assert.InDelta(t, r.H, back.H, 1e-9)
				}
			}
		})
	}
}

// Verifies the vertical flip puts the normalized top edge at the device maximum.
func TestToDeviceSpace_Flip(t *testing.T) {
	frame := Frame{Width: 100, Height: 200, YUp: true}
	dev, err := ToDeviceSpace(NormRect{X: 0.1, Y: 0, W: 0.2, H: 0.25}, frame)
	require.NoError(t, err)

	assert.InDelta(t, 10, dev.X, 1e-9)
	assert.InDelta(t, 150, dev.Y, 1e-9, "bottom edge of a top-anchored rect sits at 150 in a y-up frame")
	assert.InDelta(t, 20, dev.Width, 1e-9)
	assert.InDelta(t, 50, dev.Height, 1e-9)
}

func TestToNormalized_PointAgainstRect(t *testing.T) {
	target := NormRect{X: 0.4, Y: 0.1, W: 0.1, H: 0.05}

	for name, frame := range map[string]Frame{"top_down": topDownFrame, "flipped": flippedFrame} {
		t.Run(name, func(t *testing.T) {
			dev, err := ToDeviceSpace(target, frame)
			require.NoError(t, err)

			p, err := ToNormalized(dev.Center(), frame)
			require.NoError(t, err)
			assert.True(t, IsInside(p, target))

			c := target.Center()
			assert.InDelta(t, c.X, p.X, 1e-9)
			assert.InDelta(t, c.Y, p.Y, 1e-9)
		})
	}
}

func TestConversions_RejectNonFinite(t *testing.T) {
	_, err := ToDeviceSpace(NormRect{X: math.NaN(), W: 0.1, H: 0.1}, topDownFrame)
	assert.ErrorIs(t, err, ErrNonFinite)

	_, err = ToNormalized(Vector2D{X: math.Inf(1)}, topDownFrame)
	assert.ErrorIs(t, err, ErrNonFinite)

	_, err = ToNormalized(Vector2D{X: 1, Y: 1}, Frame{Width: 0, Height: 10})
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

// Verifies the tolerance band: inside epsilon is a hit, just beyond it is not.
func TestIsInside_EpsilonTolerance(t *testing.T) {
	r := NormRect{X: 0.2, Y: 0.3, W: 0.1, H: 0.1}
	const delta = 0.0002

	cases := []struct {
		name string
		p    NormPoint
		want bool
	}{
		{"center", NormPoint{X: 0.25, Y: 0.35}, true},
		{"left edge within eps", NormPoint{X: 0.2 - HitEpsilon + delta, Y: 0.35}, true},
		{"left edge beyond eps", NormPoint{X: 0.2 - HitEpsilon - delta, Y: 0.35}, false},
		{"right edge within eps", NormPoint{X: 0.3 + HitEpsilon - delta, Y: 0.35}, true},
		{"right edge beyond eps", NormPoint{X: 0.3 + HitEpsilon + delta, Y: 0.35}, false},
		{"top edge within eps", NormPoint{X: 0.25, Y: 0.3 - HitEpsilon + delta}, true},
		{"bottom edge beyond eps", NormPoint{X: 0.25, Y: 0.4 + HitEpsilon + delta}, false},
		{"nan", NormPoint{X: math.NaN(), Y: 0.35}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsInside(tc.p, r))
		})
	}
}

func TestNormRect_Clamp(t *testing.T) {
	got := NormRect{X: -0.2, Y: 0.9, W: 0.5, H: 0.5}.Clamp()
	assert.Equal(t, 0.0, got.X)
	assert.Equal(t, 0.9, got.Y)
	assert.InDelta(t, 0.5, got.W, 1e-12)
	assert.InDelta(t, 0.1, got.H, 1e-12)

	assert.Equal(t, 0.0, Clamp01(math.NaN()))
	assert.Equal(t, 1.0, Clamp01(3))
}

func TestVector2D(t *testing.T) {
	a := Vector2D{X: 3, Y: 4}
	assert.Equal(t, 5.0, a.Dist(Vector2D{}))
	assert.Equal(t, Vector2D{X: 4, Y: 6}, a.Add(Vector2D{X: 1, Y: 2}))
	assert.Equal(t, Vector2D{X: 2, Y: 2}, a.Sub(Vector2D{X: 1, Y: 2}))
	assert.Equal(t, Vector2D{X: 6, Y: 8}, a.Mul(2))
	assert.False(t, Vector2D{X: math.NaN()}.IsFinite())
}
