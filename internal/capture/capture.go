// Package capture obtains screenshots of the display being guided. Capture
// is injected into the orchestrator so it can run without a real display.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/config"
	"github.com/xkilldash9x/waypoint/internal/geometry"
	"github.com/xkilldash9x/waypoint/internal/imaging"
)

// Capture is one screenshot together with the device frame it was taken in.
// Targets computed from this image must be hit-tested against this frame.
type Capture struct {
	ID      string
	Image   []byte // PNG
	Width   int
	Height  int
	Frame   geometry.Frame
	TakenAt time.Time
}

// Size returns the image size in wire form.
func (c *Capture) Size() schemas.ImageSize {
	return schemas.ImageSize{W: c.Width, H: c.Height}
}

// Capturer takes screenshots.
type Capturer interface {
	Capture(ctx context.Context) (*Capture, error)
}

// New builds the Capturer selected by cfg.Mode.
func New(cfg config.CaptureConfig, logger *zap.Logger) (Capturer, error) {
	switch cfg.Mode {
	case config.CaptureModeFile:
		if cfg.File == "" {
			return nil, errors.New("capture: file mode requires capture.file")
		}
		return NewFileCapturer(cfg.File, cfg.Frame, logger), nil
	case config.CaptureModeCommand:
		if len(cfg.Command) == 0 {
			return nil, errors.New("capture: command mode requires capture.command")
		}
		return NewCommandCapturer(cfg.Command, cfg.Timeout, cfg.Frame, logger), nil
	default:
		return nil, fmt.Errorf("capture: unknown mode %q", cfg.Mode)
	}
}

// finish normalizes raw image bytes into a Capture. Non-PNG input is
// re-encoded. A frame without a size takes the image's pixel size.
func finish(raw []byte, frame geometry.Frame) (*Capture, error) {
	if len(raw) == 0 {
		return nil, newError(KindNoDisplay, errors.New("empty image"))
	}
	img, err := imaging.Decode(raw)
	if err != nil {
		return nil, newError(KindEncodeFailure, err)
	}
	b := img.Bounds()
	data := raw
	if !isPNG(raw) {
		if data, err = imaging.EncodePNG(img); err != nil {
			return nil, newError(KindEncodeFailure, err)
		}
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		frame.Width, frame.Height = float64(b.Dx()), float64(b.Dy())
	}
	return &Capture{
		ID:      uuid.NewString(),
		Image:   data,
		Width:   b.Dx(),
		Height:  b.Dy(),
		Frame:   frame,
		TakenAt: time.Now(),
	}, nil
}

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func isPNG(b []byte) bool {
	return bytes.HasPrefix(b, pngMagic)
}
