package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xkilldash9x/waypoint/internal/geometry"
	"github.com/xkilldash9x/waypoint/internal/guidance"
)

// terminalRenderer prints guidance state as plain text. It stands in for
// an on-screen overlay: targets are printed in device coordinates, which is
// where an overlay would draw them.
type terminalRenderer struct {
	mu        sync.Mutex
	w         io.Writer
	lastStep  string
	lastHint  uint64
	lastBoxes string
}

func newTerminalRenderer(w io.Writer) *terminalRenderer {
	return &terminalRenderer{w: w}
}

func (r *terminalRenderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}

// Render prints what changed in a notification.
func (r *terminalRenderer) Render(n guidance.Notification) {
	s := n.Snapshot
	switch n.Kind {
	case guidance.NotifyPhase:
		r.renderPhase(s)
	case guidance.NotifyStep:
		r.renderStep(s)
	case guidance.NotifyTargets:
		r.renderTargets(s)
	case guidance.NotifyHint:
		if s.Hint != nil && s.Hint.ID != r.lastHint {
			r.lastHint = s.Hint.ID
			r.printf("  hint: %s\n", s.Hint.Text)
		}
	}
}

func (r *terminalRenderer) renderPhase(s guidance.Snapshot) {
	switch s.Phase {
	case guidance.PhaseInputGoal:
		r.printf("What do you want to do? (goal <text>)\n")
	case guidance.PhaseLoading:
		r.printf("Working...\n")
	case guidance.PhaseCompleted:
		r.lastStep = ""
		r.printf("Done: %s\n", s.Message)
	case guidance.PhaseError:
		r.lastStep = ""
		if s.Error != nil {
			r.printf("Error: %s\n  %s\n", s.Error.Message, s.Error.Recovery)
		}
	case guidance.PhaseIdle:
		r.lastStep, r.lastBoxes = "", ""
		r.printf("Idle. Type 'start' or 'goal <text>'.\n")
	}
}

func (r *terminalRenderer) renderStep(s guidance.Snapshot) {
	if s.Step == nil {
		return
	}
	key := s.SessionID + "/" + s.CaptureID + "/" + s.Step.ID
	if key == r.lastStep {
		return
	}
	r.lastStep = key

	progress := s.CompletedSteps + 1
	total := max(s.TotalSteps, progress)
	how := "click inside the highlighted area"
	if !s.Step.Advance.Type.AdvancesOnClick() {
		how = "type 'next' when done"
	}
	r.printf("Step %d/%d: %s (%s)\n", progress, total, s.Step.Instruction, how)
}

func (r *terminalRenderer) renderTargets(s guidance.Snapshot) {
	if len(s.Targets) == 0 {
		return
	}
	var b strings.Builder
	for _, t := range s.Targets {
		d, err := geometry.ToDeviceSpace(t.Rect, s.Frame)
		if err != nil {
			continue
		}
		label := t.Label
		if label == "" {
			label = "target"
		}
		fmt.Fprintf(&b, "  [%s] x=%.0f y=%.0f w=%.0f h=%.0f confidence=%.2f", label, d.X, d.Y, d.Width, d.Height, t.Confidence)
		if t.Fallback {
			b.WriteString(" (approximate)")
		}
		b.WriteString("\n")
	}
	if s.Refining {
		b.WriteString("  refining target...\n")
	}
	out := b.String()
	if out == r.lastBoxes {
		return
	}
	r.lastBoxes = out
	r.printf("%s", out)
}

// Status prints a one-shot summary of the session.
func (r *terminalRenderer) Status(s guidance.Snapshot, summary string) {
	var b strings.Builder
	fmt.Fprintf(&b, "phase: %s\n", s.Phase)
	if s.Goal != "" {
		fmt.Fprintf(&b, "goal: %s\n", s.Goal)
	}
	if s.Step != nil {
		fmt.Fprintf(&b, "step: %s (%d/%d completed, %d misses)\n", s.Step.ID, s.CompletedSteps, s.TotalSteps, s.Misses)
	}
	if summary != "" {
		fmt.Fprintf(&b, "summary: %s\n", summary)
	}
	r.printf("%s", b.String())
}

// Click reports how a click was handled.
func (r *terminalRenderer) Click(res guidance.ClickResult) {
	if res == guidance.ClickMiss {
		r.printf("  missed\n")
	}
}

// Problem prints a command that could not be carried out.
func (r *terminalRenderer) Problem(err error) {
	r.printf("  %v\n", err)
}
