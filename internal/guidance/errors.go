package guidance

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/waypoint/internal/capture"
)

var (
	// ErrInvalidTransition is returned when a command is not valid in the
	// current phase.
	ErrInvalidTransition = errors.New("guidance: invalid phase transition")
	// ErrEmptyGoal is returned by SubmitGoal for a blank goal.
	ErrEmptyGoal = errors.New("guidance: goal is empty")
	// ErrStopped is returned once the orchestrator loop has exited.
	ErrStopped = errors.New("guidance: orchestrator stopped")
)

// ErrorInfo is what the error phase shows: what went wrong and what the
// user can do about it.
type ErrorInfo struct {
	Message  string
	Recovery string
}

const recoveryResubmit = "Check the planner connection and resubmit the goal."

func invalidTransition(from Phase, op string) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, op, from)
}

// errorInfo turns an initial planning failure into a user-facing message.
// Capture failures carry their own remediation.
func errorInfo(stage string, err error) *ErrorInfo {
	var capErr *capture.Error
	if errors.As(err, &capErr) {
		return &ErrorInfo{
			Message:  fmt.Sprintf("Could not capture the screen: %s.", capErr.Kind),
			Recovery: capErr.Remediation(),
		}
	}
	return &ErrorInfo{
		Message:  fmt.Sprintf("Could not %s: %v", stage, err),
		Recovery: recoveryResubmit,
	}
}
