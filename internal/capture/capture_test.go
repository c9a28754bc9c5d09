package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/waypoint/internal/config"
	"github.com/xkilldash9x/waypoint/internal/geometry"
	"github.com/xkilldash9x/waypoint/internal/imaging"
)

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 10, G: 200, B: 30, A: 255})
		}
	}
	return img
}

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	data, err := imaging.EncodePNG(solid(w, h))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "screen.png")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	var cerr *Error
	require.True(t, errors.As(err, &cerr), "expected *capture.Error, got %T: %v", err, err)
	assert.Equal(t, kind, cerr.Kind)
	assert.NotEmpty(t, cerr.Remediation())
}

func TestFileCapturer(t *testing.T) {
	path := writePNG(t, 320, 200)
	c := NewFileCapturer(path, geometry.Frame{}, zaptest.NewLogger(t))

	shot, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, shot.ID)
	assert.Equal(t, 320, shot.Width)
	assert.Equal(t, 200, shot.Height)
	assert.Equal(t, geometry.Frame{Width: 320, Height: 200}, shot.Frame, "frame defaults to pixel space")
	assert.True(t, isPNG(shot.Image))
	assert.Equal(t, 320, shot.Size().W)

	again, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, shot.ID, again.ID, "every capture gets a fresh id")
}

func TestFileCapturer_KeepsConfiguredFrame(t *testing.T) {
	frame := geometry.Frame{OriginX: 100, OriginY: 50, Width: 1440, Height: 900, YUp: true}
	c := NewFileCapturer(writePNG(t, 64, 40), frame, zaptest.NewLogger(t))

	shot, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, frame, shot.Frame)
}

func TestFileCapturer_ReencodesJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(40, 30), nil))
	path := filepath.Join(t.TempDir(), "screen.jpg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	shot, err := NewFileCapturer(path, geometry.Frame{}, zaptest.NewLogger(t)).Capture(context.Background())
	require.NoError(t, err)
	assert.True(t, isPNG(shot.Image))
	assert.Equal(t, 40, shot.Width)
}

func TestFileCapturer_Errors(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := NewFileCapturer(filepath.Join(t.TempDir(), "missing.png"), geometry.Frame{}, logger).Capture(context.Background())
	requireKind(t, err, KindNoDisplay)

	garbage := filepath.Join(t.TempDir(), "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not an image"), 0o600))
	_, err = NewFileCapturer(garbage, geometry.Frame{}, logger).Capture(context.Background())
	requireKind(t, err, KindEncodeFailure)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewFileCapturer(writePNG(t, 4, 4), geometry.Frame{}, logger).Capture(ctx)
	requireKind(t, err, KindTimeout)
}

func TestCommandCapturer(t *testing.T) {
	path := writePNG(t, 128, 72)
	c := NewCommandCapturer([]string{"cat", path}, time.Second, geometry.Frame{}, zaptest.NewLogger(t))

	shot, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 128, shot.Width)
	assert.Equal(t, 72, shot.Height)
}

func TestCommandCapturer_Errors(t *testing.T) {
	cases := []struct {
		name    string
		argv    []string
		timeout time.Duration
		kind    ErrorKind
	}{
		{"timeout", []string{"sleep", "5"}, 50 * time.Millisecond, KindTimeout},
		{"permission", []string{"sh", "-c", "echo 'screen recording not authorized' >&2; exit 1"}, time.Second, KindPermissionDenied},
		{"missing binary", []string{"waypoint-no-such-capture-tool"}, time.Second, KindNoDisplay},
		{"failing tool", []string{"sh", "-c", "echo 'cannot open display' >&2; exit 2"}, time.Second, KindNoDisplay},
		{"empty output", []string{"true"}, time.Second, KindNoDisplay},
		{"not an image", []string{"echo", "hello"}, time.Second, KindEncodeFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCommandCapturer(tc.argv, tc.timeout, geometry.Frame{}, zaptest.NewLogger(t))
			_, err := c.Capture(context.Background())
			requireKind(t, err, tc.kind)
		})
	}
}

func TestNew(t *testing.T) {
	logger := zaptest.NewLogger(t)

	c, err := New(config.CaptureConfig{Mode: config.CaptureModeFile, File: "shot.png"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &FileCapturer{}, c)

	c, err = New(config.CaptureConfig{Mode: config.CaptureModeCommand, Command: []string{"grim", "-"}}, logger)
	require.NoError(t, err)
	assert.IsType(t, &CommandCapturer{}, c)

	_, err = New(config.CaptureConfig{Mode: config.CaptureModeFile}, logger)
	assert.Error(t, err)
	_, err = New(config.CaptureConfig{Mode: "webcam"}, logger)
	assert.Error(t, err)
}

func TestErrorKindStrings(t *testing.T) {
	err := &Error{Kind: KindTimeout, Err: context.DeadlineExceeded}
	assert.Equal(t, "capture failed: timeout: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "unknown", ErrorKind(0).String())
}
