package pointer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/internal/config"
)

// Source delivers input events until ctx is cancelled or the input ends.
// Lines that do not parse are logged and skipped.
type Source interface {
	Run(ctx context.Context, out chan<- Event) error
}

// New creates the source selected by cfg. stdin is used by the stdin
// source only.
func New(cfg config.PointerConfig, stdin io.Reader, logger *zap.Logger) (Source, error) {
	deb := NewDebouncer(cfg.DebounceWindow, cfg.DebounceRadiusPx)
	switch cfg.Source {
	case config.PointerStdin, "":
		return NewReaderSource(stdin, deb, logger), nil
	case config.PointerLog:
		if cfg.LogFile == "" {
			return nil, errors.New("pointer: log source needs a log file")
		}
		return NewLogSource(cfg.LogFile, deb, logger), nil
	default:
		return nil, fmt.Errorf("pointer: unknown source %q", cfg.Source)
	}
}

// lineHandler parses lines, filters duplicates and forwards events.
type lineHandler struct {
	logger *zap.Logger
	deb    *Debouncer
	now    func() time.Time
}

func (h *lineHandler) handle(ctx context.Context, line string, out chan<- Event) error {
	ev, err := Parse(line, h.now())
	if errors.Is(err, ErrEmptyLine) {
		return nil
	}
	if err != nil {
		h.logger.Warn("Ignoring unreadable input.", zap.String("line", line), zap.Error(err))
		return nil
	}
	if !h.deb.Accept(ev) {
		h.logger.Debug("Dropping duplicate click.", zap.Stringer("event", ev))
		return nil
	}
	select {
	case out <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// -- Reader --

// ReaderSource reads commands and clicks line by line, typically from a
// terminal.
type ReaderSource struct {
	r io.Reader
	lineHandler
}

// NewReaderSource creates a source over r.
func NewReaderSource(r io.Reader, deb *Debouncer, logger *zap.Logger) *ReaderSource {
	return &ReaderSource{
		r:           r,
		lineHandler: lineHandler{logger: logger.Named("pointer.reader"), deb: deb, now: time.Now},
	}
}

// Run returns nil at end of input. A read blocked on r is abandoned, not
// interrupted, when ctx is cancelled.
func (s *ReaderSource) Run(ctx context.Context, out chan<- Event) error {
	lines := make(chan string)
	var scanErr error
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(s.r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr = sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if scanErr != nil {
					return fmt.Errorf("pointer: reading input: %w", scanErr)
				}
				s.logger.Debug("Input closed.")
				return nil
			}
			if err := s.handle(ctx, line, out); err != nil {
				return nil
			}
		}
	}
}

// -- Log --

// LogSource follows a file an input hook appends JSON records to. The file
// may not exist yet and may be rotated.
type LogSource struct {
	path      string
	fromStart bool
	poll      bool
	lineHandler
}

// LogOption configures a LogSource.
type LogOption func(*LogSource)

// FromStart replays records already in the file instead of starting at its
// end.
func FromStart() LogOption { return func(s *LogSource) { s.fromStart = true } }

// WithPolling watches the file by polling instead of inotify.
func WithPolling() LogOption { return func(s *LogSource) { s.poll = true } }

// NewLogSource creates a source following path.
func NewLogSource(path string, deb *Debouncer, logger *zap.Logger, opts ...LogOption) *LogSource {
	s := &LogSource{
		path:        path,
		lineHandler: lineHandler{logger: logger.Named("pointer.log"), deb: deb, now: time.Now},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LogSource) Run(ctx context.Context, out chan<- Event) error {
	cfg := tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      s.poll,
		Logger:    tail.DiscardingLogger,
	}
	if !s.fromStart {
		cfg.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}
	t, err := tail.TailFile(s.path, cfg)
	if err != nil {
		return fmt.Errorf("pointer: failed to follow %s: %w", s.path, err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()
	s.logger.Info("Following pointer log.", zap.String("path", s.path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return fmt.Errorf("pointer: stopped following %s", s.path)
			}
			if line.Err != nil {
				s.logger.Warn("Error reading pointer log.", zap.Error(line.Err))
				continue
			}
			if err := s.handle(ctx, line.Text, out); err != nil {
				return nil
			}
		}
	}
}
