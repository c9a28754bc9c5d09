// Package guidance runs a guidance session: it owns the phase lifecycle and
// sequences capture, plan, next, refine and replan round trips.
package guidance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/capture"
	"github.com/xkilldash9x/waypoint/internal/observability"
	"github.com/xkilldash9x/waypoint/internal/planner"
	"github.com/xkilldash9x/waypoint/internal/targeting"
)

// GoalRequest starts a session.
type GoalRequest struct {
	Goal string
	// LearningProfile overrides the configured profile when set.
	LearningProfile string
	AppContext      *schemas.AppContext
}

// ClickResult says how a click was handled.
type ClickResult int

const (
	ClickIgnored ClickResult = iota
	ClickHit
	ClickMiss
)

func (r ClickResult) String() string {
	switch r {
	case ClickHit:
		return "hit"
	case ClickMiss:
		return "miss"
	default:
		return "ignored"
	}
}

// view is a capture together with the grid generated for it. Targets are
// always resolved and hit-tested against one view.
type view struct {
	capture *capture.Capture
	grid    *targeting.Grid
}

type prefetchState struct {
	id      uint64
	cancel  context.CancelFunc
	capture *capture.Capture
	at      time.Time
}

type refineState struct {
	id     uint64
	cancel context.CancelFunc
	stepID string
}

// Orchestrator is a single-writer actor. Every state change runs on the
// goroutine started by Run; public methods and background round trips post
// functions to it. Completions carry the id of the operation that started
// them and are dropped when that operation is no longer the one pending.
type Orchestrator struct {
	cfg      Config
	capturer capture.Capturer
	client   planner.Client
	resolver *targeting.Resolver
	bus      *Bus
	logger   *zap.Logger
	now      func() time.Time

	cmds     chan func()
	done     chan struct{}
	started  atomic.Bool
	wg       sync.WaitGroup
	snapshot atomic.Pointer[Snapshot]

	// Owned by the loop goroutine.
	ctx           context.Context
	phase         Phase
	session       *Session
	seq           uint64
	pending       uint64
	pendingCancel context.CancelFunc
	prefetch      prefetchState
	refine        refineState
	view          *view
	targets       []targeting.ResolvedTarget
	hint          *Hint
	hintTimer     *time.Timer
	errInfo       *ErrorInfo
	message       string
	dirty         map[NotificationKind]bool
	version       uint64
}

// New creates an orchestrator. It does nothing until Run is called.
func New(cfg Config, capturer capture.Capturer, client planner.Client, logger *zap.Logger) *Orchestrator {
	logger = logger.Named("guidance")
	o := &Orchestrator{
		cfg:      cfg,
		capturer: capturer,
		client:   client,
		resolver: targeting.NewResolver(logger, client, cfg.Targeting),
		bus:      NewBus(logger, cfg.BusBuffer),
		logger:   logger,
		now:      time.Now,
		cmds:     make(chan func()),
		done:     make(chan struct{}),
		dirty:    make(map[NotificationKind]bool),
	}
	o.snapshot.Store(&Snapshot{Phase: PhaseIdle})
	return o
}

// Run processes commands until ctx is cancelled. In-flight round trips are
// cancelled and awaited before it returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return errors.New("guidance: orchestrator already running")
	}
	o.ctx = ctx
	defer o.shutdown()

	o.logger.Debug("Orchestrator loop started.")
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-o.cmds:
			fn()
			o.flush()
		}
	}
}

func (o *Orchestrator) shutdown() {
	o.cancelPending()
	o.cancelPrefetch()
	o.cancelRefine()
	if o.hintTimer != nil {
		o.hintTimer.Stop()
	}
	close(o.done)
	o.wg.Wait()
	o.bus.Shutdown()
	o.logger.Debug("Orchestrator loop stopped.")
}

// Snapshot returns the latest published state. Safe from any goroutine.
func (o *Orchestrator) Snapshot() Snapshot {
	return *o.snapshot.Load()
}

// Subscribe returns a channel of state-change notifications for the given
// kinds, all kinds when none are named.
func (o *Orchestrator) Subscribe(kinds ...NotificationKind) (<-chan Notification, func()) {
	return o.bus.Subscribe(kinds...)
}

// Activate moves idle to inputGoal and starts pre-fetching a capture.
func (o *Orchestrator) Activate(ctx context.Context) error {
	return o.do(ctx, func() error {
		if !canTransition(o.phase, PhaseInputGoal) {
			return invalidTransition(o.phase, "activate")
		}
		o.clearGuidance()
		o.setPhase(PhaseInputGoal)
		o.startPrefetch()
		return nil
	})
}

// SubmitGoal starts a session for the goal and requests the first plan. It
// is accepted in inputGoal and, to resubmit, in error.
func (o *Orchestrator) SubmitGoal(ctx context.Context, req GoalRequest) error {
	goal := strings.TrimSpace(req.Goal)
	if goal == "" {
		return ErrEmptyGoal
	}
	return o.do(ctx, func() error {
		if o.phase != PhaseInputGoal && o.phase != PhaseError {
			return invalidTransition(o.phase, "submit goal")
		}
		o.cancelRefine()
		o.cancelPending()

		profile := req.LearningProfile
		if profile == "" {
			profile = o.cfg.LearningProfile
		}
		o.session = newSession(goal, profile, req.AppContext, o.cfg.EventLogCap, nil)
		o.session.Artifacts = NewArtifactStore(o.cfg.ArtifactDir, o.session.ID, o.cfg.ArtifactHistory, o.logger)
		o.errInfo = nil
		o.message = ""
		o.view, o.targets = nil, nil
		o.clearHint()
		o.mark(NotifyStep, NotifyTargets)

		o.logger.Info("Goal submitted.", observability.SessionID(o.session.ID), zap.String("goal", goal))
		o.startPlan(o.takePrefetch())
		return nil
	})
}

// HandleClick hit-tests a click given in device coordinates against the
// active step. Clicks outside guiding are ignored.
func (o *Orchestrator) HandleClick(ctx context.Context, x, y float64) (ClickResult, error) {
	var result ClickResult
	err := o.do(ctx, func() error {
		result = o.click(x, y)
		return nil
	})
	return result, err
}

// Next advances a step that completes on user confirmation rather than a
// click.
func (o *Orchestrator) Next(ctx context.Context) error {
	return o.do(ctx, func() error {
		step, ok := o.activeStep()
		if !ok {
			return invalidTransition(o.phase, "next")
		}
		if step.Advance.Type.AdvancesOnClick() {
			return invalidTransition(o.phase, fmt.Sprintf("next on %s step", step.Advance.Type))
		}
		o.advance(step)
		return nil
	})
}

// Reset cancels all outstanding work and returns to idle.
func (o *Orchestrator) Reset(ctx context.Context) error {
	return o.do(ctx, func() error {
		o.cancelPending()
		o.cancelPrefetch()
		o.cancelRefine()
		if o.session != nil {
			o.logger.Info("Session reset.", observability.SessionID(o.session.ID))
		}
		o.clearGuidance()
		if o.phase != PhaseIdle {
			o.setPhase(PhaseIdle)
		}
		return nil
	})
}

// Session returns a summary and the event log of the active session.
func (o *Orchestrator) Session(ctx context.Context) (summary string, events []Event, artifacts []Artifact, err error) {
	err = o.do(ctx, func() error {
		if o.session == nil {
			return nil
		}
		summary = o.session.Summary()
		events = o.session.Events()
		artifacts = o.session.Artifacts.History()
		return nil
	})
	return summary, events, artifacts, err
}

// do runs fn on the loop and waits for its result.
func (o *Orchestrator) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case o.cmds <- func() { reply <- fn() }:
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-reply
}

// post hands a completion to the loop. It gives up once the loop is gone.
func (o *Orchestrator) post(fn func()) {
	select {
	case o.cmds <- fn:
	case <-o.done:
	}
}

// spawn runs fn in a tracked goroutine.
func (o *Orchestrator) spawn(fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn()
	}()
}

func (o *Orchestrator) nextID() uint64 {
	o.seq++
	return o.seq
}

// withTimeout bounds a planning round trip.
func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.cfg.RequestTimeout)
}

// takeCapture grabs a screenshot bounded by CaptureTimeout. Running out of
// time is reported as a capture timeout.
func (o *Orchestrator) takeCapture(ctx context.Context) (*capture.Capture, error) {
	if o.cfg.CaptureTimeout <= 0 {
		return o.capturer.Capture(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, o.cfg.CaptureTimeout)
	defer cancel()

	c, err := o.capturer.Capture(cctx)
	if err != nil && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		var capErr *capture.Error
		if !errors.As(err, &capErr) {
			err = &capture.Error{Kind: capture.KindTimeout, Err: err}
		}
	}
	return c, err
}

func (o *Orchestrator) activeStep() (schemas.Step, bool) {
	if o.phase != PhaseGuiding || o.session == nil || o.view == nil {
		return schemas.Step{}, false
	}
	return o.session.Step()
}

// -- State helpers (loop only) --

func (o *Orchestrator) mark(kinds ...NotificationKind) {
	for _, k := range kinds {
		o.dirty[k] = true
	}
}

func (o *Orchestrator) setPhase(p Phase) {
	if !canTransition(o.phase, p) {
		o.logger.Error("Illegal phase transition.", zap.Stringer("from", o.phase), zap.Stringer("to", p))
		return
	}
	o.logger.Debug("Phase changed.", zap.Stringer("from", o.phase), zap.Stringer("to", p))
	o.phase = p
	o.mark(NotifyPhase)
}

func (o *Orchestrator) clearGuidance() {
	o.session = nil
	o.view, o.targets = nil, nil
	o.errInfo = nil
	o.message = ""
	o.clearHint()
	o.mark(NotifyStep, NotifyTargets)
}

func (o *Orchestrator) setHint(kind HintKind, text string) {
	id := o.nextID()
	o.hint = &Hint{ID: id, Kind: kind, Text: text, ExpiresAt: o.now().Add(o.cfg.HintTTL)}
	o.mark(NotifyHint)
	if o.hintTimer != nil {
		o.hintTimer.Stop()
	}
	if o.cfg.HintTTL > 0 {
		o.hintTimer = time.AfterFunc(o.cfg.HintTTL, func() {
			o.post(func() { o.expireHint(id) })
		})
	}
}

func (o *Orchestrator) expireHint(id uint64) {
	if o.hint != nil && o.hint.ID == id {
		o.hint = nil
		o.mark(NotifyHint)
	}
}

func (o *Orchestrator) clearHint() {
	if o.hintTimer != nil {
		o.hintTimer.Stop()
		o.hintTimer = nil
	}
	if o.hint != nil {
		o.hint = nil
		o.mark(NotifyHint)
	}
}

// show makes v the displayed capture and resolves the active step against it.
func (o *Orchestrator) show(v *view) {
	o.view = v
	o.resolveTargets()
	o.mark(NotifyStep)
}

func (o *Orchestrator) resolveTargets() {
	o.targets = nil
	if o.session != nil && o.view != nil {
		if step, ok := o.session.Step(); ok {
			o.targets = o.resolver.Resolve(step, o.view.grid)
		}
	}
	o.mark(NotifyTargets)
}

// flush publishes a new snapshot if anything changed.
func (o *Orchestrator) flush() {
	if len(o.dirty) == 0 {
		return
	}
	o.version++
	snap := o.buildSnapshot()
	o.snapshot.Store(&snap)
	for _, k := range allKinds {
		if o.dirty[k] {
			o.bus.Publish(k, snap)
		}
	}
	clear(o.dirty)
}

func (o *Orchestrator) buildSnapshot() Snapshot {
	snap := Snapshot{
		Version:  o.version,
		Phase:    o.phase,
		Error:    o.errInfo,
		Message:  o.message,
		Refining: o.refine.id != 0,
	}
	if o.hint != nil {
		h := *o.hint
		snap.Hint = &h
	}
	if o.view != nil {
		snap.Frame = o.view.capture.Frame
		snap.CaptureID = o.view.capture.ID
	}
	s := o.session
	if s == nil {
		return snap
	}
	snap.SessionID = s.ID
	snap.Goal = s.Goal
	snap.CompletedSteps = len(s.Completed)
	snap.TotalSteps = s.TotalSteps
	if s.Plan != nil {
		snap.StepCount = len(s.Plan.Steps)
	}
	if step, ok := s.Step(); ok && o.phase == PhaseGuiding {
		st := step
		snap.Step = &st
		snap.StepIndex = s.Cursor
		snap.Misses = s.Misses(step.ID)
		snap.Targets = append([]targeting.ResolvedTarget(nil), o.targets...)
	}
	return snap
}

// -- Cancellation (loop only) --

func (o *Orchestrator) cancelPending() {
	if o.pendingCancel != nil {
		o.pendingCancel()
	}
	o.pending, o.pendingCancel = 0, nil
}

func (o *Orchestrator) cancelPrefetch() {
	if o.prefetch.cancel != nil {
		o.prefetch.cancel()
	}
	o.prefetch = prefetchState{}
}

func (o *Orchestrator) cancelRefine() {
	if o.refine.cancel != nil {
		o.refine.cancel()
	}
	if o.refine.id != 0 {
		o.mark(NotifyTargets)
	}
	o.refine = refineState{}
}

// claim checks a round-trip completion is the one awaited and clears it.
func (o *Orchestrator) claim(id uint64, op string) bool {
	if id == 0 || id != o.pending {
		o.logger.Debug("Discarding stale completion.", zap.String("op", op), observability.OpID(id))
		return false
	}
	o.cancelPending()
	return true
}
