// internal/targeting/resolver.go
package targeting

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/geometry"
	"github.com/xkilldash9x/waypoint/internal/imaging"
)

// ErrRefineBusy is returned when another refinement already holds the gate.
var ErrRefineBusy = errors.New("targeting: a refinement is already in flight")

// fallbackBox stands in for a marker reference the current grid cannot
// resolve, so the step stays targetable.
var fallbackBox = geometry.NormRect{X: 0.4, Y: 0.4, W: 0.2, H: 0.2}

// ResolvedTarget is a literal, hit-testable box.
type ResolvedTarget struct {
	Rect       geometry.NormRect `json:"rect"`
	Confidence float64           `json:"confidence"`
	Label      string            `json:"label,omitempty"`
	// MarkerID is the marker the box came from, or -1 for literal boxes.
	MarkerID int  `json:"marker_id"`
	Fallback bool `json:"fallback,omitempty"`
}

// Contains hit-tests p against the target with edge tolerance eps.
func (t ResolvedTarget) Contains(p geometry.NormPoint, eps float64) bool {
	return geometry.IsInsideEps(p, t.Rect, eps)
}

// Refiner is the slice of the planning client the resolver needs.
type Refiner interface {
	Refine(ctx context.Context, req schemas.RefineRequest) (*schemas.RefineResult, error)
}

// Config tunes resolution and refinement.
type Config struct {
	Policy   Policy
	CropSize float64
	CropZoom float64
}

// DefaultConfig returns the stock resolver settings.
func DefaultConfig() Config {
	return Config{Policy: DefaultPolicy(), CropSize: 0.3, CropZoom: 2}
}

// Resolver turns declared targets into boxes and runs refinements. One
// Resolver serves one session; its gate admits a single refinement at a time.
type Resolver struct {
	logger  *zap.Logger
	cfg     Config
	refiner Refiner
	gate    *semaphore.Weighted
}

// NewResolver creates a Resolver. refiner may be nil when refinement is not
// wanted; Refine then always fails.
func NewResolver(logger *zap.Logger, refiner Refiner, cfg Config) *Resolver {
	return &Resolver{
		logger:  logger.Named("resolver"),
		cfg:     cfg,
		refiner: refiner,
		gate:    semaphore.NewWeighted(1),
	}
}

// Policy returns the escalation policy in use.
func (r *Resolver) Policy() Policy {
	return r.cfg.Policy
}

// Resolve maps every target of step onto a box. Marker references are
// looked up in grid, which must belong to the capture the step was planned
// against.
func (r *Resolver) Resolve(step schemas.Step, grid *Grid) []ResolvedTarget {
	out := make([]ResolvedTarget, 0, len(step.Targets))
	for i, t := range step.Targets {
		switch v := t.(type) {
		case schemas.BoxTarget:
			out = append(out, ResolvedTarget{
				Rect:       v.Rect.Clamp(),
				Confidence: v.ConfidenceOr(schemas.DefaultConfidence),
				Label:      v.LabelOrEmpty(),
				MarkerID:   -1,
			})
		case schemas.MarkerTarget:
			cell, ok := grid.Cell(v.MarkerID)
			if !ok {
				r.logger.Warn("Marker not in current grid, using fallback box.",
					zap.String("step_id", step.ID),
					zap.Int("marker_id", v.MarkerID))
				out = append(out, fallback(v.LabelOrEmpty(), v.MarkerID))
				continue
			}
			out = append(out, ResolvedTarget{
				Rect:       cell,
				Confidence: v.ConfidenceOr(schemas.DefaultConfidence),
				Label:      v.LabelOrEmpty(),
				MarkerID:   v.MarkerID,
			})
		default:
			r.logger.Warn("Unsupported target, using fallback box.",
				zap.String("step_id", step.ID),
				zap.Int("index", i),
				zap.String("type", fmt.Sprintf("%T", t)))
			out = append(out, fallback("", -1))
		}
	}
	if len(out) == 0 {
		r.logger.Warn("Step has no targets, using fallback box.", zap.String("step_id", step.ID))
		out = append(out, fallback("", -1))
	}
	return out
}

func fallback(label string, markerID int) ResolvedTarget {
	return ResolvedTarget{Rect: fallbackBox, Confidence: 0, Label: label, MarkerID: markerID, Fallback: true}
}

// Primary picks the target a refinement should focus on: the least
// confident one, first wins on ties.
func Primary(targets []ResolvedTarget) (ResolvedTarget, bool) {
	if len(targets) == 0 {
		return ResolvedTarget{}, false
	}
	best := targets[0]
	for _, t := range targets[1:] {
		if t.Confidence < best.Confidence {
			best = t
		}
	}
	return best, true
}

// RefineInput is everything one refinement round trip needs.
type RefineInput struct {
	RequestID      string
	Goal           string
	Step           schemas.Step
	Target         ResolvedTarget
	Image          []byte
	SessionSummary string
}

// RefineOutcome is a successful refinement.
type RefineOutcome struct {
	// Target replaces the step's whole target list.
	Target    schemas.BoxTarget
	Crop      geometry.CropRect
	CropImage []byte
}

// Refine crops the captured image around the target, asks the planner for a
// crop-local box and stitches it back into full-image coordinates. The
// step's declared targets are never modified.
func (r *Resolver) Refine(ctx context.Context, in RefineInput) (*RefineOutcome, error) {
	if r.refiner == nil {
		return nil, errors.New("targeting: no refiner configured")
	}
	if !r.gate.TryAcquire(1) {
		return nil, ErrRefineBusy
	}
	defer r.gate.Release(1)

	size := math.Max(r.cfg.CropSize, 1.5*math.Max(in.Target.Rect.W, in.Target.Rect.H))
	crop := CropAround(in.Target.Rect.Center(), size)
	cropImage, err := imaging.CropPNG(in.Image, crop, r.cfg.CropZoom)
	if err != nil {
		return nil, fmt.Errorf("targeting: failed to crop for step %s: %w", in.Step.ID, err)
	}

	r.logger.Debug("Requesting refinement.",
		zap.String("request_id", in.RequestID),
		zap.String("step_id", in.Step.ID),
		zap.Stringer("crop", crop))

	res, err := r.refiner.Refine(ctx, schemas.RefineRequest{
		RequestID:      in.RequestID,
		Goal:           in.Goal,
		StepID:         in.Step.ID,
		Instruction:    in.Step.Instruction,
		TargetLabel:    in.Target.Label,
		CropImage:      cropImage,
		Crop:           crop,
		SessionSummary: in.SessionSummary,
	})
	if err != nil {
		return nil, fmt.Errorf("targeting: refine step %s: %w", in.Step.ID, err)
	}
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("targeting: refine step %s returned an invalid box: %w", in.Step.ID, err)
	}

	label := res.Label
	if label == nil && in.Target.Label != "" {
		l := in.Target.Label
		label = &l
	}
	stitched := Stitch(crop, res.Rect())
	r.logger.Info("Refined target.",
		zap.String("request_id", in.RequestID),
		zap.String("step_id", in.Step.ID),
		zap.Stringer("before", in.Target.Rect),
		zap.Stringer("after", stitched))

	return &RefineOutcome{
		Target:    schemas.BoxTarget{Rect: stitched, Confidence: res.Confidence, Label: label},
		Crop:      crop,
		CropImage: cropImage,
	}, nil
}
