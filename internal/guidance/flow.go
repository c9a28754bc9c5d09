package guidance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/capture"
	"github.com/xkilldash9x/waypoint/internal/geometry"
	"github.com/xkilldash9x/waypoint/internal/observability"
	"github.com/xkilldash9x/waypoint/internal/planner"
	"github.com/xkilldash9x/waypoint/internal/targeting"
)

const (
	hintMiss        = "Not quite. Click inside the highlighted area."
	hintRetry       = "The screen is still changing. Try the step again in a moment."
	hintRefined     = "Target adjusted. Try the highlighted area again."
	hintNextFailed  = "Couldn't load the next step. Try it again."
	hintReplanFail  = "Couldn't get a new plan. Keep trying the current step."
	completionEmpty = "All steps completed."
)

// newView generates the marker grid for a capture. A capture the grid
// cannot cover still produces a view; marker references then fall back.
func (o *Orchestrator) newView(c *capture.Capture) *view {
	grid, err := targeting.GenerateGridWithRadius(c.Width, c.Height, o.cfg.GridColumns, o.cfg.GridRows, o.cfg.MarkerRadiusPx)
	if err != nil {
		o.logger.Warn("Failed to generate marker grid.", observability.CaptureID(c.ID), zap.Error(err))
	}
	return &view{capture: c, grid: grid}
}

// -- Pre-fetch --

func (o *Orchestrator) startPrefetch() {
	o.cancelPrefetch()
	id := o.nextID()
	ctx, cancel := context.WithCancel(o.ctx)
	o.prefetch = prefetchState{id: id, cancel: cancel}

	o.spawn(func() {
		defer cancel()
		c, err := o.takeCapture(ctx)
		o.post(func() { o.onPrefetch(id, c, err) })
	})
}

func (o *Orchestrator) onPrefetch(id uint64, c *capture.Capture, err error) {
	if o.prefetch.id != id {
		return
	}
	if err != nil {
		o.logger.Debug("Pre-fetch capture failed.", zap.Error(err))
		o.prefetch.cancel = nil
		return
	}
	o.prefetch.capture = c
	o.prefetch.at = o.now()
	o.logger.Debug("Pre-fetched capture.", observability.CaptureID(c.ID))
}

// takePrefetch returns the pre-fetched capture if it finished recently.
// Any pre-fetch still running is cancelled.
func (o *Orchestrator) takePrefetch() *capture.Capture {
	p := o.prefetch
	o.cancelPrefetch()
	if p.capture != nil && o.now().Sub(p.at) <= o.cfg.PrefetchMaxAge {
		return p.capture
	}
	return nil
}

// beginRoundTrip marks a new pending operation and returns its id and
// context.
func (o *Orchestrator) beginRoundTrip() (uint64, context.Context) {
	o.cancelPending()
	id := o.nextID()
	ctx, cancel := context.WithCancel(o.ctx)
	o.pending, o.pendingCancel = id, cancel
	return id, ctx
}

// recapture returns c, or takes a fresh capture when c is nil.
func (o *Orchestrator) recapture(ctx context.Context, c *capture.Capture) (*capture.Capture, error) {
	if c != nil {
		return c, nil
	}
	return o.takeCapture(ctx)
}

// -- Plan --

func (o *Orchestrator) startPlan(prefetched *capture.Capture) {
	o.setPhase(PhaseLoading)
	id, ctx := o.beginRoundTrip()
	s := o.session
	req := schemas.PlanRequest{
		RequestID:       planner.NewRequestID(),
		Goal:            s.Goal,
		LearningProfile: s.LearningProfile,
		AppContext:      s.AppContext,
	}
	artifacts := s.Artifacts
	logger := o.logger.With(observability.SessionID(s.ID), observability.RequestID(req.RequestID), observability.OpID(id))

	o.spawn(func() {
		c, err := o.recapture(ctx, prefetched)
		if err != nil {
			o.post(func() { o.onPlan(id, nil, nil, err) })
			return
		}
		v := o.newView(c)
		artifacts.Save("screenshot", c.Image)
		req.Image, req.ImageSize, req.Grid = c.Image, c.Size(), v.grid.Spec()

		logger.Info("Requesting plan.", observability.CaptureID(c.ID), zap.Bool("prefetched", prefetched != nil))
		callCtx, cancel := o.withTimeout(ctx)
		defer cancel()
		plan, err := o.client.Plan(callCtx, req)
		o.post(func() { o.onPlan(id, v, plan, err) })
	})
}

func (o *Orchestrator) onPlan(id uint64, v *view, plan *schemas.Plan, err error) {
	if !o.claim(id, "plan") {
		return
	}
	if err != nil {
		stage := "get a plan"
		if v == nil {
			stage = "capture the screen"
		}
		o.errInfo = errorInfo(stage, err)
		o.logger.Error("Initial planning failed.", observability.SessionID(o.session.ID), zap.Error(err))
		o.setPhase(PhaseError)
		return
	}
	o.session.setPlan(plan)
	o.session.Completed = nil
	o.session.TotalSteps = len(plan.Steps)
	o.session.record(EventPlanReceived, "", fmt.Sprintf("%d steps", len(plan.Steps)))
	o.show(v)
	o.setPhase(PhaseGuiding)
	o.logger.Info("Plan received.", observability.SessionID(o.session.ID), zap.Int("steps", len(plan.Steps)))
}

// -- Clicks --

func (o *Orchestrator) click(x, y float64) ClickResult {
	step, ok := o.activeStep()
	if !ok {
		return ClickIgnored
	}
	p, err := geometry.ToNormalized(geometry.Vector2D{X: x, Y: y}, o.view.capture.Frame)
	if err != nil {
		o.logger.Warn("Click could not be normalized.", zap.Float64("x", x), zap.Float64("y", y), zap.Error(err))
		return ClickIgnored
	}

	for _, t := range o.targets {
		if t.Contains(p, o.cfg.HitEpsilon) {
			o.session.record(EventClickHit, step.ID, fmt.Sprintf("(%.3f, %.3f)", p.X, p.Y))
			if step.Advance.Type.AdvancesOnClick() {
				o.advance(step)
			}
			return ClickHit
		}
	}

	if !step.Advance.Type.AdvancesOnClick() {
		// Clicking around while typing is expected.
		return ClickIgnored
	}
	o.miss(step, p)
	return ClickMiss
}

func (o *Orchestrator) miss(step schemas.Step, p geometry.NormPoint) {
	n := o.session.miss(step.ID)
	o.session.record(EventClickMiss, step.ID, fmt.Sprintf("(%.3f, %.3f)", p.X, p.Y))
	o.setHint(HintMiss, hintMiss)
	o.mark(NotifyStep)
	o.logger.Debug("Click missed.", observability.StepID(step.ID), zap.Int("misses", n))

	if o.cfg.ReplanMisses > 0 && n == o.cfg.ReplanMisses {
		o.startReplan(step, n)
		return
	}

	primary, ok := targeting.Primary(o.targets)
	if !ok {
		return
	}
	state := targeting.StepState{Misses: n, Refined: o.session.Refined(step.ID), Confidence: primary.Confidence}
	if o.resolver.Policy().ShouldRefine(state, o.refine.id != 0) {
		o.startRefine(step, primary)
	}
}

// -- Next --

// advance records the step as completed and asks what comes next. The
// record is rolled back if the round trip does not produce a new plan.
func (o *Orchestrator) advance(step schemas.Step) {
	s := o.session
	s.Completed = append(s.Completed, step)
	s.record(EventStepAdvanced, step.ID, "")
	o.cancelRefine()
	o.clearHint()
	o.setPhase(PhaseLoading)

	id, ctx := o.beginRoundTrip()
	req := schemas.NextRequest{
		RequestID:       planner.NewRequestID(),
		Goal:            s.Goal,
		CompletedSteps:  append([]schemas.Step(nil), s.Completed...),
		TotalSteps:      s.TotalSteps,
		LearningProfile: s.LearningProfile,
		AppContext:      s.AppContext,
	}
	artifacts := s.Artifacts
	logger := o.logger.With(observability.SessionID(s.ID), observability.RequestID(req.RequestID), observability.OpID(id))

	o.spawn(func() {
		c, err := o.takeCapture(ctx)
		if err != nil {
			o.post(func() { o.onNext(id, nil, nil, err) })
			return
		}
		v := o.newView(c)
		artifacts.Save("screenshot", c.Image)
		req.Image, req.ImageSize, req.Grid = c.Image, c.Size(), v.grid.Spec()

		logger.Info("Requesting next step.", observability.StepID(step.ID), zap.Int("completed", len(req.CompletedSteps)))
		callCtx, cancel := o.withTimeout(ctx)
		defer cancel()
		resp, err := o.client.Next(callCtx, req)
		o.post(func() { o.onNext(id, v, resp, err) })
	})
}

func (o *Orchestrator) onNext(id uint64, v *view, resp *schemas.NextResponse, err error) {
	if !o.claim(id, "next") {
		return
	}
	s := o.session
	if err != nil {
		o.rollbackCompleted()
		s.record(EventNextFailed, "", err.Error())
		o.logger.Warn("Next step request failed, staying on the current step.", observability.SessionID(s.ID), zap.Error(err))
		o.setPhase(PhaseGuiding)
		o.setHint(HintFallback, hintNextFailed)
		return
	}

	switch resp.Status {
	case schemas.NextContinue:
		s.setPlan(resp.AsPlan(s.Goal, s.AppContext))
		s.record(EventPlanReceived, "", fmt.Sprintf("%d steps", len(resp.Steps)))
		o.show(v)
		o.setPhase(PhaseGuiding)
	case schemas.NextDone:
		o.message = completionEmpty
		if resp.Message != nil && *resp.Message != "" {
			o.message = *resp.Message
		}
		o.targets = nil
		o.mark(NotifyTargets, NotifyStep)
		o.setPhase(PhaseCompleted)
		o.logger.Info("Goal completed.", observability.SessionID(s.ID), zap.Int("steps", len(s.Completed)))
	case schemas.NextRetry:
		o.rollbackCompleted()
		text := hintRetry
		if resp.Message != nil && *resp.Message != "" {
			text = *resp.Message
		}
		o.setPhase(PhaseGuiding)
		o.setHint(HintRetry, text)
	}
}

func (o *Orchestrator) rollbackCompleted() {
	s := o.session
	if n := len(s.Completed); n > 0 {
		s.Completed = s.Completed[:n-1]
	}
}

// -- Replan --

func (o *Orchestrator) startReplan(step schemas.Step, misses int) {
	s := o.session
	s.record(EventReplanRequested, step.ID, fmt.Sprintf("%d misses", misses))
	o.cancelRefine()
	o.setPhase(PhaseLoading)

	id, ctx := o.beginRoundTrip()
	req := schemas.ReplanRequest{
		RequestID:       planner.NewRequestID(),
		Goal:            s.Goal,
		CurrentStepID:   step.ID,
		LearningProfile: s.LearningProfile,
		AppContext:      s.AppContext,
		SessionSummary:  s.Summary(),
	}
	artifacts := s.Artifacts
	logger := o.logger.With(observability.SessionID(s.ID), observability.RequestID(req.RequestID), observability.OpID(id))

	o.spawn(func() {
		c, err := o.takeCapture(ctx)
		if err != nil {
			o.post(func() { o.onReplan(id, nil, nil, err) })
			return
		}
		v := o.newView(c)
		artifacts.Save("screenshot", c.Image)
		req.Image, req.ImageSize, req.Grid = c.Image, c.Size(), v.grid.Spec()

		logger.Info("Requesting replan.", observability.StepID(step.ID), zap.Int("misses", misses))
		callCtx, cancel := o.withTimeout(ctx)
		defer cancel()
		plan, err := o.client.Replan(callCtx, req)
		o.post(func() { o.onReplan(id, v, plan, err) })
	})
}

func (o *Orchestrator) onReplan(id uint64, v *view, plan *schemas.Plan, err error) {
	if !o.claim(id, "replan") {
		return
	}
	s := o.session
	if err != nil {
		o.logger.Warn("Replan failed, staying on the current step.", observability.SessionID(s.ID), zap.Error(err))
		o.setPhase(PhaseGuiding)
		o.setHint(HintFallback, hintReplanFail)
		return
	}
	s.setPlan(plan)
	s.TotalSteps = len(s.Completed) + len(plan.Steps)
	s.record(EventPlanReceived, "", fmt.Sprintf("replanned, %d steps", len(plan.Steps)))
	o.show(v)
	o.setPhase(PhaseGuiding)
}

// -- Refine --

func (o *Orchestrator) startRefine(step schemas.Step, target targeting.ResolvedTarget) {
	s := o.session
	id := o.nextID()
	ctx, cancel := o.withTimeout(o.ctx)
	o.refine = refineState{id: id, cancel: cancel, stepID: step.ID}
	o.mark(NotifyTargets)

	in := targeting.RefineInput{
		RequestID:      planner.NewRequestID(),
		Goal:           s.Goal,
		Step:           step,
		Target:         target,
		Image:          o.view.capture.Image,
		SessionSummary: s.Summary(),
	}
	artifacts := s.Artifacts
	o.logger.Info("Refining target.", observability.SessionID(s.ID), observability.StepID(step.ID),
		observability.RequestID(in.RequestID), zap.Float64("confidence", target.Confidence))

	o.spawn(func() {
		defer cancel()
		out, err := o.resolver.Refine(ctx, in)
		if err == nil {
			artifacts.Save("crop", out.CropImage)
		}
		o.post(func() { o.onRefine(id, out, err) })
	})
}

func (o *Orchestrator) onRefine(id uint64, out *targeting.RefineOutcome, err error) {
	if o.refine.id != id {
		return
	}
	stepID := o.refine.stepID
	o.cancelRefine()

	step, ok := o.activeStep()
	if !ok || step.ID != stepID {
		return
	}
	if err != nil {
		o.session.record(EventRefineAbandoned, stepID, err.Error())
		o.logger.Warn("Refinement abandoned, keeping the current target.", observability.StepID(stepID), zap.Error(err))
		return
	}
	o.session.replaceTargets(o.session.Cursor, schemas.Targets{out.Target})
	o.session.refined[stepID] = true
	o.session.record(EventRefineApplied, stepID, out.Target.Rect.String())
	o.resolveTargets()
	o.setHint(HintRefined, hintRefined)
}
