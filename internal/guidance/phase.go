package guidance

// Phase is the orchestrator's lifecycle stage.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInputGoal
	PhaseLoading
	PhaseGuiding
	PhaseCompleted
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInputGoal:
		return "input_goal"
	case PhaseLoading:
		return "loading"
	case PhaseGuiding:
		return "guiding"
	case PhaseCompleted:
		return "completed"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// transitions lists the phases reachable from each phase. Reset to idle is
// allowed from anywhere and is not listed.
var transitions = map[Phase][]Phase{
	PhaseIdle:      {PhaseInputGoal},
	PhaseInputGoal: {PhaseLoading},
	PhaseLoading:   {PhaseGuiding, PhaseCompleted, PhaseError},
	PhaseGuiding:   {PhaseLoading},
	PhaseError:     {PhaseLoading},
}

// canTransition reports whether from -> to is a legal move.
func canTransition(from, to Phase) bool {
	if to == PhaseIdle {
		return true
	}
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
