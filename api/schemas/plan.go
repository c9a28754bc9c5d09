// api/schemas/plan.go
// Description: Wire shapes exchanged with the planning service. The JSON
// layout is shared with the agent server and must not drift.
package schemas

import (
	"github.com/xkilldash9x/waypoint/internal/geometry"
)

// PlanVersion is the schema version this client speaks.
const PlanVersion = "v1"

// -- Advance & Safety --

// AdvanceType defines how a step is completed.
type AdvanceType string

const (
	AdvanceClickInTarget     AdvanceType = "click_in_target"
	AdvanceTextEnteredOrNext AdvanceType = "text_entered_or_next"
	AdvanceManualNext        AdvanceType = "manual_next"
	AdvanceWaitForUIChange   AdvanceType = "wait_for_ui_change"
)

// Valid reports whether the advance type is one of the known values.
func (a AdvanceType) Valid() bool {
	switch a {
	case AdvanceClickInTarget, AdvanceTextEnteredOrNext, AdvanceManualNext, AdvanceWaitForUIChange:
		return true
	}
	return false
}

// AdvancesOnClick reports whether a click inside the target completes the step.
func (a AdvanceType) AdvancesOnClick() bool {
	return a == AdvanceClickInTarget || a == AdvanceWaitForUIChange
}

// RiskLevel grades how destructive a step may be.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Advance describes how the step advances to the next one.
type Advance struct {
	Type  AdvanceType `json:"type"`
	Notes *string     `json:"notes"`
}

// Safety is optional metadata attached to risky steps.
type Safety struct {
	RequiresConfirmation *bool      `json:"requires_confirmation"`
	RiskLevel            *RiskLevel `json:"risk_level"`
}

// -- Plan --

// AppContext identifies the frontmost application at capture time.
type AppContext struct {
	AppName     string  `json:"app_name"`
	BundleID    *string `json:"bundle_id,omitempty"`
	WindowTitle *string `json:"window_title,omitempty"`
}

// ImageSize is the pixel size of the screenshot a plan was computed from.
type ImageSize struct {
	W int `json:"w"`
	H int `json:"h"`
}

// Step is a single guidance step.
type Step struct {
	ID          string  `json:"id"`
	Instruction string  `json:"instruction"`
	Targets     Targets `json:"targets"`
	Advance     Advance `json:"advance"`
	Safety      *Safety `json:"safety"`
}

// Plan is the ordered list of steps returned by the planner. Plans are
// immutable once received and are replaced wholesale, never merged.
type Plan struct {
	Version    string      `json:"version"`
	Goal       string      `json:"goal"`
	AppContext *AppContext `json:"app_context"`
	ImageSize  ImageSize   `json:"image_size"`
	Steps      []Step      `json:"steps"`
}

// -- Next / Refine --

// NextStatus tells the client what to do after a completed step.
type NextStatus string

const (
	NextContinue NextStatus = "continue"
	NextDone     NextStatus = "done"
	NextRetry    NextStatus = "retry"
)

// NextResponse is returned by the planner's next operation.
type NextResponse struct {
	Version   string     `json:"version,omitempty"`
	Goal      string     `json:"goal,omitempty"`
	Status    NextStatus `json:"status"`
	Message   *string    `json:"message"`
	ImageSize ImageSize  `json:"image_size"`
	Steps     []Step     `json:"steps"`
}

// AsPlan wraps the steps of a continue response into a fresh Plan.
func (r *NextResponse) AsPlan(goal string, app *AppContext) *Plan {
	version := r.Version
	if version == "" {
		version = PlanVersion
	}
	return &Plan{
		Version:    version,
		Goal:       goal,
		AppContext: app,
		ImageSize:  r.ImageSize,
		Steps:      r.Steps,
	}
}

// RefineResult is a box in crop-local normalized coordinates.
type RefineResult struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	W          float64  `json:"w"`
	H          float64  `json:"h"`
	Confidence *float64 `json:"confidence"`
	Label      *string  `json:"label"`
}

// Rect returns the crop-local box.
func (r RefineResult) Rect() geometry.NormRect {
	return geometry.NormRect{X: r.X, Y: r.Y, W: r.W, H: r.H}
}

// MarkerGridSpec tells a remote planner which uniform grid the client
// generated, so marker ids can be referenced without sending every marker.
type MarkerGridSpec struct {
	Columns int `json:"columns"`
	Rows    int `json:"rows"`
}
