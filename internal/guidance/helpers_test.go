package guidance

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/capture"
	"github.com/xkilldash9x/waypoint/internal/geometry"
	"github.com/xkilldash9x/waypoint/internal/imaging"
	"github.com/xkilldash9x/waypoint/internal/planner"
)

const (
	screenW = 1920
	screenH = 1080
)

func ptr[T any](v T) *T { return &v }

// fakeCapturer returns a small image described as a 1920x1080 screen.
type fakeCapturer struct {
	mu    sync.Mutex
	calls int
	err   error
	img   []byte
}

func newFakeCapturer(t *testing.T) *fakeCapturer {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 192, 108))
	for y := 0; y < 108; y++ {
		for x := 0; x < 192; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 60, A: 255})
		}
	}
	data, err := imaging.EncodePNG(img)
	require.NoError(t, err)
	return &fakeCapturer{img: data}
}

func (f *fakeCapturer) Capture(ctx context.Context) (*capture.Capture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &capture.Capture{
		ID:      fmt.Sprintf("cap-%d", f.calls),
		Image:   f.img,
		Width:   192,
		Height:  108,
		Frame:   geometry.Frame{Width: screenW, Height: screenH},
		TakenAt: time.Now(),
	}, nil
}

func (f *fakeCapturer) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeCapturer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// hungCapturer never produces a screenshot and gives up only when its
// context ends.
type hungCapturer struct{}

func (hungCapturer) Capture(ctx context.Context) (*capture.Capture, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// fakePlanner routes each call to a replaceable function and records the
// requests it saw.
type fakePlanner struct {
	mu       sync.Mutex
	plan     func(context.Context, schemas.PlanRequest) (*schemas.Plan, error)
	next     func(context.Context, schemas.NextRequest) (*schemas.NextResponse, error)
	refine   func(context.Context, schemas.RefineRequest) (*schemas.RefineResult, error)
	replan   func(context.Context, schemas.ReplanRequest) (*schemas.Plan, error)
	nexts    []schemas.NextRequest
	refines  []schemas.RefineRequest
	replans  []schemas.ReplanRequest
	planReqs []schemas.PlanRequest
}

func (f *fakePlanner) Plan(ctx context.Context, req schemas.PlanRequest) (*schemas.Plan, error) {
	f.mu.Lock()
	f.planReqs = append(f.planReqs, req)
	fn := f.plan
	f.mu.Unlock()
	return fn(ctx, req)
}

func (f *fakePlanner) Next(ctx context.Context, req schemas.NextRequest) (*schemas.NextResponse, error) {
	f.mu.Lock()
	f.nexts = append(f.nexts, req)
	fn := f.next
	f.mu.Unlock()
	return fn(ctx, req)
}

func (f *fakePlanner) Refine(ctx context.Context, req schemas.RefineRequest) (*schemas.RefineResult, error) {
	f.mu.Lock()
	f.refines = append(f.refines, req)
	fn := f.refine
	f.mu.Unlock()
	return fn(ctx, req)
}

func (f *fakePlanner) Replan(ctx context.Context, req schemas.ReplanRequest) (*schemas.Plan, error) {
	f.mu.Lock()
	f.replans = append(f.replans, req)
	fn := f.replan
	f.mu.Unlock()
	return fn(ctx, req)
}

func (f *fakePlanner) nextRequests() []schemas.NextRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schemas.NextRequest(nil), f.nexts...)
}

func (f *fakePlanner) refineCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refines)
}

func (f *fakePlanner) replanRequests() []schemas.ReplanRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schemas.ReplanRequest(nil), f.replans...)
}

func boxStep(id string, r geometry.NormRect, conf float64, adv schemas.AdvanceType) schemas.Step {
	return schemas.Step{
		ID:          id,
		Instruction: "Do " + id,
		Targets:     schemas.Targets{schemas.BoxTarget{Rect: r, Confidence: ptr(conf), Label: ptr(id + " target")}},
		Advance:     schemas.Advance{Type: adv},
	}
}

func planOf(goal string, steps ...schemas.Step) *schemas.Plan {
	return &schemas.Plan{
		Version:   schemas.PlanVersion,
		Goal:      goal,
		ImageSize: schemas.ImageSize{W: screenW, H: screenH},
		Steps:     steps,
	}
}

// staticPlan answers every plan call with p.
func staticPlan(p *schemas.Plan) func(context.Context, schemas.PlanRequest) (*schemas.Plan, error) {
	return func(context.Context, schemas.PlanRequest) (*schemas.Plan, error) { return p, nil }
}

// blockUntilDone waits for cancellation and reports it.
func blockUntilDone[Req, Resp any](ctx context.Context, _ Req) (*Resp, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HintTTL = time.Minute
	cfg.RequestTimeout = 5 * time.Second
	return cfg
}

// start runs an orchestrator and returns a function that stops it and
// waits for the loop to exit.
func start(t *testing.T, cfg Config, c capture.Capturer, p planner.Client) (*Orchestrator, func()) {
	t.Helper()
	o := New(cfg, c, p, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- o.Run(ctx) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			require.NoError(t, <-errc)
		})
	}
	t.Cleanup(stop)
	return o, stop
}

func waitFor(t *testing.T, o *Orchestrator, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return cond(o.Snapshot()) }, 2*time.Second, 5*time.Millisecond, what)
	return o.Snapshot()
}

func waitPhase(t *testing.T, o *Orchestrator, p Phase) Snapshot {
	t.Helper()
	return waitFor(t, o, "phase "+p.String(), func(s Snapshot) bool { return s.Phase == p })
}

// guideTo activates, submits and waits for guiding.
func guideTo(t *testing.T, o *Orchestrator, goal string) Snapshot {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, o.Activate(ctx))
	require.NoError(t, o.SubmitGoal(ctx, GoalRequest{Goal: goal}))
	return waitPhase(t, o, PhaseGuiding)
}

// device converts a normalized point into the fake screen's device space.
func device(x, y float64) (float64, float64) {
	return x * screenW, y * screenH
}
