package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/geometry"
)

// mockMarkerColumn and mockMarkerRow place the marker-referenced step of
// the mock plan near the top-left menu area.
const (
	mockMarkerColumn = 1
	mockMarkerRow    = 0
)

// defaultMockSize is used when a request carries no image size.
var defaultMockSize = schemas.ImageSize{W: 1920, H: 1080}

// MockPlanner returns fixed, schema-valid answers without any model. It is
// used for demos and tests.
type MockPlanner struct {
	// Delay is applied before every answer, honoring cancellation.
	Delay time.Duration
}

// NewMockPlanner creates a mock planner.
func NewMockPlanner() *MockPlanner {
	return &MockPlanner{}
}

// Plan implements Client. The second step references a marker when a grid
// was sent, otherwise it uses a box.
func (m *MockPlanner) Plan(ctx context.Context, req schemas.PlanRequest) (*schemas.Plan, error) {
	if err := m.wait(ctx, OpPlan); err != nil {
		return nil, err
	}
	return mockPlan(req.Goal, req.ImageSize, req.AppContext, req.Grid), nil
}

// Next implements Client. One step at a time is returned until the original
// step count is reached.
func (m *MockPlanner) Next(ctx context.Context, req schemas.NextRequest) (*schemas.NextResponse, error) {
	if err := m.wait(ctx, OpNext); err != nil {
		return nil, err
	}
	n := len(req.CompletedSteps)
	if req.TotalSteps > 0 && n >= req.TotalSteps {
		msg := "All steps completed."
		return &schemas.NextResponse{Status: schemas.NextDone, Message: &msg, ImageSize: sizeOr(req.ImageSize)}, nil
	}
	next := n + 1
	return &schemas.NextResponse{
		Version:   schemas.PlanVersion,
		Goal:      req.Goal,
		Status:    schemas.NextContinue,
		ImageSize: sizeOr(req.ImageSize),
		Steps: []schemas.Step{{
			ID:          fmt.Sprintf("s%d", next),
			Instruction: fmt.Sprintf("Click the next button to continue (step %d).", next),
			Targets:     schemas.Targets{box(0.45, 0.5, 0.1, 0.04, 0.88, "Next button")},
			Advance:     schemas.Advance{Type: schemas.AdvanceClickInTarget},
		}},
	}, nil
}

// Refine implements Client with the central 40% of the crop.
func (m *MockPlanner) Refine(ctx context.Context, req schemas.RefineRequest) (*schemas.RefineResult, error) {
	if err := m.wait(ctx, OpRefine); err != nil {
		return nil, err
	}
	label := req.TargetLabel
	if label == "" {
		label = "mock target"
	}
	conf := 0.85
	return &schemas.RefineResult{X: 0.3, Y: 0.3, W: 0.4, H: 0.4, Confidence: &conf, Label: &label}, nil
}

// Replan implements Client by starting the mock plan over.
func (m *MockPlanner) Replan(ctx context.Context, req schemas.ReplanRequest) (*schemas.Plan, error) {
	if err := m.wait(ctx, OpReplan); err != nil {
		return nil, err
	}
	return mockPlan(req.Goal, req.ImageSize, req.AppContext, req.Grid), nil
}

// Health implements HealthChecker.
func (m *MockPlanner) Health(context.Context) error { return nil }

func (m *MockPlanner) wait(ctx context.Context, op Op) error {
	if m.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(m.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return transportError(op, ctx.Err())
	case <-t.C:
		return nil
	}
}

func mockPlan(goal string, size schemas.ImageSize, app *schemas.AppContext, grid *schemas.MarkerGridSpec) *schemas.Plan {
	second := schemas.Targets{box(0.02, 0.04, 0.12, 0.03, 0.85, "New menu item")}
	if grid != nil && grid.Columns > mockMarkerColumn && grid.Rows > mockMarkerRow {
		conf, label := 0.85, "New menu item"
		second = schemas.Targets{schemas.MarkerTarget{
			MarkerID:   mockMarkerRow*grid.Columns + mockMarkerColumn,
			Confidence: &conf,
			Label:      &label,
		}}
	}
	return &schemas.Plan{
		Version:    schemas.PlanVersion,
		Goal:       goal,
		AppContext: app,
		ImageSize:  sizeOr(size),
		Steps: []schemas.Step{
			{
				ID:          "s1",
				Instruction: "Click the menu bar item to begin.",
				Targets:     schemas.Targets{box(0.02, 0.0, 0.06, 0.03, 0.9, "Menu bar")},
				Advance:     schemas.Advance{Type: schemas.AdvanceClickInTarget},
			},
			{
				ID:          "s2",
				Instruction: "Select 'New...' from the dropdown menu.",
				Targets:     second,
				Advance:     schemas.Advance{Type: schemas.AdvanceClickInTarget},
			},
			{
				ID:          "s3",
				Instruction: "Type your information in the text field.",
				Targets:     schemas.Targets{box(0.25, 0.3, 0.5, 0.05, 0.8, "Text input field")},
				Advance:     schemas.Advance{Type: schemas.AdvanceTextEnteredOrNext},
			},
			{
				ID:          "s4",
				Instruction: "Click 'Save' to confirm.",
				Targets:     schemas.Targets{box(0.7, 0.85, 0.1, 0.04, 0.9, "Save button")},
				Advance:     schemas.Advance{Type: schemas.AdvanceClickInTarget},
			},
		},
	}
}

func box(x, y, w, h, conf float64, label string) schemas.BoxTarget {
	return schemas.BoxTarget{
		Rect:       geometry.NormRect{X: x, Y: y, W: w, H: h},
		Confidence: &conf,
		Label:      &label,
	}
}

func sizeOr(s schemas.ImageSize) schemas.ImageSize {
	if s.W < 1 || s.H < 1 {
		return defaultMockSize
	}
	return s
}

var _ Client = (*MockPlanner)(nil)
var _ HealthChecker = (*MockPlanner)(nil)
