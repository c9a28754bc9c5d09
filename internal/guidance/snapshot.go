package guidance

import (
	"time"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/geometry"
	"github.com/xkilldash9x/waypoint/internal/targeting"
)

// HintKind groups transient hints for renderers.
type HintKind string

const (
	HintMiss     HintKind = "miss"
	HintRetry    HintKind = "retry"
	HintRefined  HintKind = "refined"
	HintFallback HintKind = "fallback"
)

// Hint is a short message that expires on its own.
type Hint struct {
	ID        uint64
	Kind      HintKind
	Text      string
	ExpiresAt time.Time
}

// Snapshot is an immutable view of the orchestrator for renderers. Slices
// and pointers in it are never mutated after publication.
type Snapshot struct {
	Version uint64
	Phase   Phase

	SessionID string
	Goal      string

	Step      *schemas.Step
	StepIndex int
	StepCount int
	// Targets are the active step's resolved boxes in the capture's
	// normalized space.
	Targets []targeting.ResolvedTarget
	// Frame is the device frame of the capture the targets came from.
	Frame     geometry.Frame
	CaptureID string

	Misses         int
	Refining       bool
	CompletedSteps int
	TotalSteps     int

	Hint    *Hint
	Error   *ErrorInfo
	Message string
}
