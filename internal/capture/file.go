package capture

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/internal/geometry"
)

// FileCapturer reads the screenshot from a file on every call. Something
// else keeps the file current, such as a screenshot daemon or a test.
type FileCapturer struct {
	path   string
	frame  geometry.Frame
	logger *zap.Logger
}

// NewFileCapturer creates a FileCapturer reading path.
func NewFileCapturer(path string, frame geometry.Frame, logger *zap.Logger) *FileCapturer {
	return &FileCapturer{path: path, frame: frame, logger: logger.Named("capture.file")}
}

// Capture implements Capturer.
func (c *FileCapturer) Capture(ctx context.Context) (*Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError(KindTimeout, err)
	}
	raw, err := os.ReadFile(c.path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrPermission):
			return nil, newError(KindPermissionDenied, err)
		default:
			return nil, newError(KindNoDisplay, err)
		}
	}
	shot, err := finish(raw, c.frame)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Captured screenshot from file.",
		zap.String("capture_id", shot.ID),
		zap.String("path", c.path),
		zap.Int("width", shot.Width),
		zap.Int("height", shot.Height))
	return shot, nil
}
