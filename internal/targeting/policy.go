// internal/targeting/policy.go
package targeting

// Policy decides when a step's target is worth a refinement round trip.
// Low-confidence targets refine after the first miss; confident ones only
// after repeated misses.
type Policy struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	LowConfidenceMisses int     `mapstructure:"low_confidence_misses" yaml:"low_confidence_misses"`
	MaxMisses           int     `mapstructure:"max_misses" yaml:"max_misses"`
}

// DefaultPolicy returns the stock escalation thresholds.
func DefaultPolicy() Policy {
	return Policy{
		ConfidenceThreshold: 0.7,
		LowConfidenceMisses: 1,
		MaxMisses:           2,
	}
}

// StepState is the per-step evidence the policy looks at.
type StepState struct {
	Misses     int
	Refined    bool
	Confidence float64
}

// ShouldRefine reports whether a refinement should start now. A step is
// refined at most once, and never while another refinement is in flight.
func (p Policy) ShouldRefine(s StepState, inFlight bool) bool {
	if s.Refined || inFlight {
		return false
	}
	if s.Confidence < p.ConfidenceThreshold && s.Misses >= p.LowConfidenceMisses {
		return true
	}
	return s.Misses >= p.MaxMisses
}
