package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/waypoint/internal/capture"
	"github.com/xkilldash9x/waypoint/internal/config"
	"github.com/xkilldash9x/waypoint/internal/guidance"
	"github.com/xkilldash9x/waypoint/internal/observability"
	"github.com/xkilldash9x/waypoint/internal/planner"
	"github.com/xkilldash9x/waypoint/internal/pointer"
)

// newGuideCmd creates the `guide` command.
func newGuideCmd() *cobra.Command {
	guideCmd := &cobra.Command{
		Use:   "guide [goal]",
		Short: "Starts an interactive guidance session",
		Long: `Starts a guidance session. Clicks and commands are read from stdin
(or from a pointer log when pointer.source is "log"):

  goal <text>     describe what you want to do
  click X Y       report a click at device pixel X,Y (or just "X,Y")
  next            confirm a step that does not advance on click
  status          show progress
  reset           abandon the session
  quit            exit

When a goal is given as an argument it is submitted right away.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			goal := strings.Join(args, " ")
			return runGuide(ctx, cfg, goal, cmd.InOrStdin(), cmd.OutOrStdout(), observability.GetLogger())
		},
	}

	guideCmd.Flags().String("backend", "", "Planner backend: http, gemini or mock (overrides config)")
	guideCmd.Flags().String("endpoint", "", "Planning service base URL for the http backend")
	guideCmd.Flags().String("screenshot", "", "Screenshot file to capture from in file mode")
	guideCmd.Flags().String("artifact-dir", "", "Directory for per-session debug artifacts")
	return guideCmd
}

// runGuide wires capture, planning and pointer input to an orchestrator and
// runs until the input ends, the user quits or ctx is cancelled.
func runGuide(ctx context.Context, cfg config.Interface, goal string, in io.Reader, out io.Writer, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	capturer, err := capture.New(cfg.Capture(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize screen capture: %w", err)
	}
	client, err := planner.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize planning client: %w", err)
	}
	source, err := pointer.New(cfg.Pointer(), in, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize pointer input: %w", err)
	}

	if hc, ok := client.(planner.HealthChecker); ok && cfg.Planner().HealthCheck {
		if err := hc.Health(ctx); err != nil {
			logger.Warn("Planner health check failed, continuing anyway.", zap.Error(err))
			fmt.Fprintf(out, "warning: planner is not reachable (%v)\n", err)
		}
	}

	orch := guidance.New(guidance.ConfigFrom(cfg), capturer, client, logger)
	notes, unsubscribe := orch.Subscribe()
	defer unsubscribe()

	r := newTerminalRenderer(out)
	events := make(chan pointer.Event)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orch.Run(gctx)
	})
	g.Go(func() error {
		// End of input ends the session.
		defer cancel()
		return source.Run(gctx, events)
	})
	g.Go(func() error {
		for n := range notes {
			r.Render(n)
		}
		return nil
	})
	g.Go(func() error {
		d := &dispatcher{orch: orch, r: r, logger: logger, quit: cancel}
		return d.run(gctx, events, goal)
	})

	err = g.Wait()
	logger.Info("Guide session ended.")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// dispatcher turns pointer events into orchestrator commands.
type dispatcher struct {
	orch   *guidance.Orchestrator
	r      *terminalRenderer
	logger *zap.Logger
	quit   context.CancelFunc
}

func (d *dispatcher) run(ctx context.Context, events <-chan pointer.Event, goal string) error {
	if goal != "" {
		if err := d.check(d.startGoal(ctx, goal)); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if err := d.check(d.handle(ctx, ev)); err != nil {
				return err
			}
		}
	}
}

// check reports recoverable command errors to the user and swallows them.
// Only errors that mean the session is over are returned.
func (d *dispatcher) check(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, guidance.ErrStopped), errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, guidance.ErrInvalidTransition), errors.Is(err, guidance.ErrEmptyGoal):
		d.r.Problem(err)
		return nil
	default:
		d.logger.Warn("Command failed.", zap.Error(err))
		d.r.Problem(err)
		return nil
	}
}

func (d *dispatcher) handle(ctx context.Context, ev pointer.Event) error {
	d.logger.Debug("Input event.", zap.Stringer("event", ev))
	switch ev.Kind {
	case pointer.KindClick:
		res, err := d.orch.HandleClick(ctx, ev.X, ev.Y)
		if err != nil {
			return err
		}
		d.r.Click(res)
		return nil
	case pointer.KindActivate:
		return d.orch.Activate(ctx)
	case pointer.KindGoal:
		return d.startGoal(ctx, ev.Text)
	case pointer.KindNext:
		return d.orch.Next(ctx)
	case pointer.KindReset:
		return d.orch.Reset(ctx)
	case pointer.KindStatus:
		summary, _, _, err := d.orch.Session(ctx)
		if err != nil {
			return err
		}
		d.r.Status(d.orch.Snapshot(), summary)
		return nil
	case pointer.KindQuit:
		d.quit()
		return nil
	default:
		return fmt.Errorf("unsupported input %s", ev)
	}
}

// startGoal submits goal from whatever phase the session is in, resetting a
// session that is still guiding or already completed.
func (d *dispatcher) startGoal(ctx context.Context, goal string) error {
	if strings.TrimSpace(goal) == "" {
		return guidance.ErrEmptyGoal
	}
	switch d.orch.Snapshot().Phase {
	case guidance.PhaseGuiding, guidance.PhaseCompleted, guidance.PhaseLoading:
		if err := d.orch.Reset(ctx); err != nil {
			return err
		}
		fallthrough
	case guidance.PhaseIdle:
		if err := d.orch.Activate(ctx); err != nil {
			return err
		}
	}
	return d.orch.SubmitGoal(ctx, guidance.GoalRequest{Goal: goal})
}
