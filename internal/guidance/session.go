package guidance

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/waypoint/api/schemas"
)

// EventKind names something that happened during a session.
type EventKind string

const (
	EventPlanReceived    EventKind = "plan-received"
	EventClickHit        EventKind = "click-hit"
	EventClickMiss       EventKind = "click-miss"
	EventStepAdvanced    EventKind = "step-advanced"
	EventNextFailed      EventKind = "next-failed"
	EventReplanRequested EventKind = "replan-requested"
	EventRefineApplied   EventKind = "refine-applied"
	EventRefineAbandoned EventKind = "refine-abandoned"
)

// Event is one entry of the session log.
type Event struct {
	Time   time.Time
	Kind   EventKind
	StepID string
	Detail string
}

func (e Event) String() string {
	s := string(e.Kind)
	if e.StepID != "" {
		s += "(" + e.StepID + ")"
	}
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	return s
}

// Session is the state of one goal from submission to reset. It is owned
// by the orchestrator loop.
type Session struct {
	ID              string
	Goal            string
	LearningProfile string
	AppContext      *schemas.AppContext

	Plan   *schemas.Plan
	Cursor int
	// Completed holds steps finished since the plan was first received.
	Completed []schemas.Step
	// TotalSteps is the step count of the first plan.
	TotalSteps int

	misses   map[string]int
	refined  map[string]bool
	events   []Event
	eventCap int

	Artifacts *ArtifactStore
}

func newSession(goal, profile string, app *schemas.AppContext, eventCap int, artifacts *ArtifactStore) *Session {
	if eventCap < 1 {
		eventCap = 1
	}
	return &Session{
		ID:              uuid.NewString(),
		Goal:            goal,
		LearningProfile: profile,
		AppContext:      app,
		misses:          make(map[string]int),
		refined:         make(map[string]bool),
		eventCap:        eventCap,
		Artifacts:       artifacts,
	}
}

// Step returns the active step, if the cursor points at one.
func (s *Session) Step() (schemas.Step, bool) {
	if s.Plan == nil || s.Cursor < 0 || s.Cursor >= len(s.Plan.Steps) {
		return schemas.Step{}, false
	}
	return s.Plan.Steps[s.Cursor], true
}

// setPlan replaces the plan wholesale and starts at its first step.
func (s *Session) setPlan(p *schemas.Plan) {
	s.Plan = p
	s.Cursor = 0
	s.misses = make(map[string]int)
	s.refined = make(map[string]bool)
}

// replaceTargets swaps the active step's target list. The plan is copied so
// snapshots already handed out keep their view.
func (s *Session) replaceTargets(stepIndex int, targets schemas.Targets) {
	plan := *s.Plan
	plan.Steps = append([]schemas.Step(nil), s.Plan.Steps...)
	plan.Steps[stepIndex].Targets = targets
	s.Plan = &plan
}

func (s *Session) miss(stepID string) int {
	s.misses[stepID]++
	return s.misses[stepID]
}

func (s *Session) Misses(stepID string) int  { return s.misses[stepID] }
func (s *Session) Refined(stepID string) bool { return s.refined[stepID] }

func (s *Session) record(kind EventKind, stepID, detail string) Event {
	e := Event{Time: time.Now(), Kind: kind, StepID: stepID, Detail: detail}
	if len(s.events) == s.eventCap {
		copy(s.events, s.events[1:])
		s.events = s.events[:len(s.events)-1]
	}
	s.events = append(s.events, e)
	return e
}

// Events returns a copy of the log, oldest first.
func (s *Session) Events() []Event {
	return append([]Event(nil), s.events...)
}

// summaryEvents bounds how much of the log goes into a summary.
const summaryEvents = 12

// Summary describes the session so far for the planner.
func (s *Session) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s.", s.Goal)
	if len(s.Completed) > 0 {
		ids := make([]string, len(s.Completed))
		for i, st := range s.Completed {
			ids[i] = st.ID
		}
		fmt.Fprintf(&b, " Completed: %s.", strings.Join(ids, ", "))
	}
	if step, ok := s.Step(); ok {
		fmt.Fprintf(&b, " Current step %s %q, missed %d times.", step.ID, step.Instruction, s.misses[step.ID])
	}
	events := s.events
	if len(events) > summaryEvents {
		events = events[len(events)-summaryEvents:]
	}
	if len(events) > 0 {
		parts := make([]string, len(events))
		for i, e := range events {
			parts[i] = e.String()
		}
		fmt.Fprintf(&b, " Recent: %s.", strings.Join(parts, "; "))
	}
	return b.String()
}
