package guidance

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/geometry"
)

// Verifies the event log keeps only the newest entries.
func TestSession_EventCap(t *testing.T) {
	s := newSession("goal", "", nil, 3, nil)
	for i := 0; i < 5; i++ {
		s.record(EventClickMiss, "s1", fmt.Sprint(i))
	}
	events := s.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "2", events[0].Detail)
	assert.Equal(t, "4", events[2].Detail)
}

// Verifies setPlan resets the cursor and per-step bookkeeping.
func TestSession_SetPlanResets(t *testing.T) {
	s := newSession("goal", "", nil, 10, nil)
	s.setPlan(planOf("goal", boxStep("s1", geometry.NormRect{W: 0.1, H: 0.1}, 0.9, schemas.AdvanceClickInTarget)))
	s.miss("s1")
	s.refined["s1"] = true
	s.Cursor = 1

	s.setPlan(planOf("goal", boxStep("s1", geometry.NormRect{W: 0.1, H: 0.1}, 0.9, schemas.AdvanceClickInTarget)))
	assert.Zero(t, s.Cursor)
	assert.Zero(t, s.Misses("s1"))
	assert.False(t, s.Refined("s1"))
}

// Verifies replacing targets leaves earlier plan values untouched.
func TestSession_ReplaceTargetsCopiesPlan(t *testing.T) {
	s := newSession("goal", "", nil, 10, nil)
	s.setPlan(planOf("goal", boxStep("s1", geometry.NormRect{X: 0.1, Y: 0.1, W: 0.1, H: 0.1}, 0.4, schemas.AdvanceClickInTarget)))
	before := s.Plan

	s.replaceTargets(0, schemas.Targets{schemas.BoxTarget{Rect: geometry.NormRect{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}}})

	assert.NotSame(t, before, s.Plan)
	assert.Equal(t, 0.1, before.Steps[0].Targets[0].(schemas.BoxTarget).Rect.X)
	assert.Equal(t, 0.5, s.Plan.Steps[0].Targets[0].(schemas.BoxTarget).Rect.X)
}

// Verifies the summary names the goal, progress, current step and recent events.
func TestSession_Summary(t *testing.T) {
	s := newSession("Export PDF", "", nil, 50, nil)
	s.setPlan(planOf("Export PDF",
		boxStep("s2", geometry.NormRect{W: 0.1, H: 0.1}, 0.9, schemas.AdvanceClickInTarget)))
	s.Completed = []schemas.Step{{ID: "s1"}}
	s.miss("s2")
	s.record(EventClickMiss, "s2", "(0.500, 0.500)")

	sum := s.Summary()
	assert.Contains(t, sum, "Goal: Export PDF.")
	assert.Contains(t, sum, "Completed: s1.")
	assert.Contains(t, sum, `Current step s2 "Do s2", missed 1 times.`)
	assert.Contains(t, sum, "click-miss(s2): (0.500, 0.500)")

	for i := 0; i < 20; i++ {
		s.record(EventClickHit, "s2", fmt.Sprint("n", i))
	}
	sum = s.Summary()
	assert.NotContains(t, sum, "click-miss")
	assert.Contains(t, sum, "n19")
	assert.NotContains(t, sum, ": n7;")
}

// Verifies artifacts are written under the session directory with a bounded history.
func TestArtifactStore(t *testing.T) {
	root := t.TempDir()
	store := NewArtifactStore(root, "sess", 2, zaptest.NewLogger(t))
	require.True(t, store.Enabled())

	store.Save("screenshot", []byte("a"))
	store.Save("crop", []byte("b"))
	store.Save("screenshot", []byte("c"))
	store.Save("crop", nil)

	history := store.History()
	require.Len(t, history, 2)
	assert.Equal(t, "crop", history[0].Kind)
	assert.Equal(t, filepath.Join(root, "sess", "003-screenshot.png"), history[1].Path)

	data, err := os.ReadFile(history[1].Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), data)
}

// Verifies a store without a directory, or a nil store, records nothing.
func TestArtifactStore_Disabled(t *testing.T) {
	store := NewArtifactStore("", "sess", 5, zaptest.NewLogger(t))
	assert.False(t, store.Enabled())
	store.Save("screenshot", []byte("a"))
	assert.Empty(t, store.History())

	var none *ArtifactStore
	assert.False(t, none.Enabled())
	none.Save("screenshot", []byte("a"))
	assert.Nil(t, none.History())
}

// Verifies the phase transition table.
func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseIdle, PhaseInputGoal, true},
		{PhaseInputGoal, PhaseLoading, true},
		{PhaseLoading, PhaseGuiding, true},
		{PhaseLoading, PhaseCompleted, true},
		{PhaseLoading, PhaseError, true},
		{PhaseGuiding, PhaseLoading, true},
		{PhaseError, PhaseLoading, true},
		{PhaseCompleted, PhaseIdle, true},
		{PhaseGuiding, PhaseIdle, true},
		{PhaseIdle, PhaseGuiding, false},
		{PhaseGuiding, PhaseCompleted, false},
		{PhaseCompleted, PhaseLoading, false},
		{PhaseInputGoal, PhaseGuiding, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, canTransition(tt.from, tt.to))
		})
	}
}
