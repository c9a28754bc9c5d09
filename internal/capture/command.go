package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/internal/geometry"
)

// DefaultTimeout bounds a single capture.
const DefaultTimeout = 5 * time.Second

// execCommandContext is swapped in tests.
var execCommandContext = exec.CommandContext

// CommandCapturer runs an external tool that writes an image to stdout, for
// example `grim -`, `import -window root png:-` or
// `screencapture -x -t png /dev/stdout`.
type CommandCapturer struct {
	argv    []string
	timeout time.Duration
	frame   geometry.Frame
	logger  *zap.Logger
}

// NewCommandCapturer creates a CommandCapturer. argv[0] is the program.
func NewCommandCapturer(argv []string, timeout time.Duration, frame geometry.Frame, logger *zap.Logger) *CommandCapturer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandCapturer{
		argv:    append([]string(nil), argv...),
		timeout: timeout,
		frame:   frame,
		logger:  logger.Named("capture.command"),
	}
}

// Capture implements Capturer.
func (c *CommandCapturer) Capture(ctx context.Context) (*Capture, error) {
	if len(c.argv) == 0 {
		return nil, newError(KindNoDisplay, errors.New("no capture command configured"))
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := execCommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, classify(ctx, err, stderr.String())
	}

	shot, err := finish(stdout.Bytes(), c.frame)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Captured screenshot from command.",
		zap.String("capture_id", shot.ID),
		zap.String("command", c.argv[0]),
		zap.Duration("took", time.Since(start)),
		zap.Int("bytes", len(shot.Image)))
	return shot, nil
}

// classify maps a failed command onto a capture error kind.
func classify(ctx context.Context, err error, stderr string) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return newError(KindTimeout, ctxErr)
	}
	msg := strings.ToLower(stderr)
	detail := err
	if s := strings.TrimSpace(stderr); s != "" {
		detail = fmt.Errorf("%w: %s", err, s)
	}
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return newError(KindNoDisplay, err)
	case strings.Contains(msg, "permission"), strings.Contains(msg, "not authorized"), strings.Contains(msg, "not permitted"):
		return newError(KindPermissionDenied, detail)
	default:
		return newError(KindNoDisplay, detail)
	}
}
