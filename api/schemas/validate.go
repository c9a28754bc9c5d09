// api/schemas/validate.go
package schemas

import (
	"errors"
	"fmt"
	"regexp"
)

const (
	MaxStepsPerPlan   = 10
	MaxTargetsPerStep = 5
)

var versionPattern = regexp.MustCompile(`^v\d+$`)

// inUnit reports 0 <= f <= 1. Written so NaN fails.
func inUnit(f float64) bool { return f >= 0 && f <= 1 }

// inUnitOpen reports 0 < f <= 1. Written so NaN fails.
func inUnitOpen(f float64) bool { return f > 0 && f <= 1 }

// Validate checks a plan against the shared step plan schema.
func (p *Plan) Validate() error {
	if p == nil {
		return errors.New("plan is nil")
	}
	if !versionPattern.MatchString(p.Version) {
		return fmt.Errorf("plan version %q does not match v<N>", p.Version)
	}
	if p.Goal == "" {
		return errors.New("plan goal is empty")
	}
	if err := p.ImageSize.Validate(); err != nil {
		return err
	}
	if p.AppContext != nil && p.AppContext.AppName == "" {
		return errors.New("app_context.app_name is empty")
	}
	if len(p.Steps) == 0 || len(p.Steps) > MaxStepsPerPlan {
		return fmt.Errorf("plan must have 1..%d steps, got %d", MaxStepsPerPlan, len(p.Steps))
	}
	return validateSteps(p.Steps)
}

// Validate checks the image size is positive.
func (s ImageSize) Validate() error {
	if s.W < 1 || s.H < 1 {
		return fmt.Errorf("image_size must be positive, got %dx%d", s.W, s.H)
	}
	return nil
}

// Validate checks a next response. Steps are only required when continuing.
func (r *NextResponse) Validate() error {
	if r == nil {
		return errors.New("next response is nil")
	}
	switch r.Status {
	case NextContinue:
		if len(r.Steps) == 0 || len(r.Steps) > MaxStepsPerPlan {
			return fmt.Errorf("continue response must have 1..%d steps, got %d", MaxStepsPerPlan, len(r.Steps))
		}
		if err := r.ImageSize.Validate(); err != nil {
			return err
		}
		return validateSteps(r.Steps)
	case NextDone, NextRetry:
		return nil
	default:
		return fmt.Errorf("unknown next status %q", r.Status)
	}
}

// Validate checks a refine result lies within the crop.
func (r *RefineResult) Validate() error {
	if r == nil {
		return errors.New("refine result is nil")
	}
	if !inUnit(r.X) || !inUnit(r.Y) || !inUnitOpen(r.W) || !inUnitOpen(r.H) {
		return fmt.Errorf("refine box %s is outside the crop", r.Rect())
	}
	if r.Confidence != nil && !inUnit(*r.Confidence) {
		return fmt.Errorf("refine confidence %v outside [0,1]", *r.Confidence)
	}
	return nil
}

func validateSteps(steps []Step) error {
	seen := make(map[string]struct{}, len(steps))
	for i := range steps {
		if err := steps[i].Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if _, dup := seen[steps[i].ID]; dup {
			return fmt.Errorf("step %d: duplicate id %q", i, steps[i].ID)
		}
		seen[steps[i].ID] = struct{}{}
	}
	return nil
}

// Validate checks a single step.
func (s *Step) Validate() error {
	if s.ID == "" {
		return errors.New("id is empty")
	}
	if s.Instruction == "" {
		return errors.New("instruction is empty")
	}
	if len(s.Targets) == 0 || len(s.Targets) > MaxTargetsPerStep {
		return fmt.Errorf("must have 1..%d targets, got %d", MaxTargetsPerStep, len(s.Targets))
	}
	for j, t := range s.Targets {
		if err := validateTarget(t); err != nil {
			return fmt.Errorf("target %d: %w", j, err)
		}
	}
	if !s.Advance.Type.Valid() {
		return fmt.Errorf("unknown advance type %q", s.Advance.Type)
	}
	if s.Safety != nil && s.Safety.RiskLevel != nil {
		switch *s.Safety.RiskLevel {
		case RiskLow, RiskMedium, RiskHigh:
		default:
			return fmt.Errorf("unknown risk level %q", *s.Safety.RiskLevel)
		}
	}
	return nil
}

func validateTarget(t Target) error {
	var conf *float64
	switch v := t.(type) {
	case BoxTarget:
		r := v.Rect
		if !inUnit(r.X) || !inUnit(r.Y) || !inUnitOpen(r.W) || !inUnitOpen(r.H) {
			return fmt.Errorf("box %s outside the unit square", r)
		}
		conf = v.Confidence
	case MarkerTarget:
		if v.MarkerID < 0 {
			return fmt.Errorf("negative marker id %d", v.MarkerID)
		}
		conf = v.Confidence
	case nil:
		return errors.New("target is nil")
	default:
		return fmt.Errorf("unsupported target type %T", t)
	}
	if conf != nil && !inUnit(*conf) {
		return fmt.Errorf("confidence %v outside [0,1]", *conf)
	}
	return nil
}
