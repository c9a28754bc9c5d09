// api/schemas/requests.go
package schemas

import (
	"github.com/xkilldash9x/waypoint/internal/geometry"
)

// -- Planning Requests --
//
// Every request carries an opaque RequestID for cross-system tracing. It is
// logged and forwarded, never interpreted.

// PlanRequest asks for an initial plan for a goal.
type PlanRequest struct {
	RequestID       string
	Goal            string
	Image           []byte // PNG
	ImageSize       ImageSize
	LearningProfile string
	AppContext      *AppContext
	// Grid describes the marker grid generated for Image, if any.
	Grid *MarkerGridSpec
}

// NextRequest reports completed steps and asks what comes next.
type NextRequest struct {
	RequestID       string
	Goal            string
	Image           []byte
	ImageSize       ImageSize
	CompletedSteps  []Step
	TotalSteps      int
	LearningProfile string
	AppContext      *AppContext
	Grid            *MarkerGridSpec
}

// RefineRequest asks for a tighter box inside a cropped region. The answer
// is expressed in the crop's local coordinates.
type RefineRequest struct {
	RequestID      string
	Goal           string
	StepID         string
	Instruction    string
	TargetLabel    string
	CropImage      []byte
	Crop           geometry.CropRect
	SessionSummary string
}

// ReplanRequest asks for a fresh plan after the user got stuck on a step.
type ReplanRequest struct {
	RequestID       string
	Goal            string
	Image           []byte
	ImageSize       ImageSize
	CurrentStepID   string
	LearningProfile string
	AppContext      *AppContext
	SessionSummary  string
	Grid            *MarkerGridSpec
}
