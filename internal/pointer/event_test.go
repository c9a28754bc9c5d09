package pointer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Verifies terminal commands and hook records parse into events.
func TestParse(t *testing.T) {
	stamped := time.Date(2025, 3, 1, 12, 0, 5, 0, time.UTC)
	tests := []struct {
		name string
		line string
		want Event
	}{
		{"click command", "click 812 430.5", Event{Kind: KindClick, X: 812, Y: 430.5, At: now}},
		{"bare pair", "  812,430 ", Event{Kind: KindClick, X: 812, Y: 430, At: now}},
		{"pair with space", "812, 430", Event{Kind: KindClick, X: 812, Y: 430, At: now}},
		{"goal", "goal Export the report as PDF", Event{Kind: KindGoal, Text: "Export the report as PDF", At: now}},
		{"next upper", "NEXT", Event{Kind: KindNext, At: now}},
		{"reset", "reset", Event{Kind: KindReset, At: now}},
		{"start alias", "start", Event{Kind: KindActivate, At: now}},
		{"exit alias", "exit", Event{Kind: KindQuit, At: now}},
		{"status", "status", Event{Kind: KindStatus, At: now}},
		{"record", `{"type":"click","x":100,"y":200.25,"ts":"2025-03-01T12:00:05Z"}`, Event{Kind: KindClick, X: 100, Y: 200.25, At: stamped}},
		{"record default type", `{"x":1,"y":2}`, Event{Kind: KindClick, X: 1, Y: 2, At: now}},
		{"goal record", `{"type":"goal","text":" Open settings "}`, Event{Kind: KindGoal, Text: "Open settings", At: now}},
		{"next record", `{"type":"next"}`, Event{Kind: KindNext, At: now}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Verifies unreadable lines are rejected with a reason.
func TestParse_Errors(t *testing.T) {
	for _, line := range []string{"", "   ", "# comment"} {
		_, err := Parse(line, now)
		assert.ErrorIs(t, err, ErrEmptyLine, line)
	}

	_, err := Parse("wiggle", now)
	assert.ErrorIs(t, err, ErrUnknownCommand)
	_, err = Parse(`{"type":"scroll"}`, now)
	assert.ErrorIs(t, err, ErrUnknownCommand)

	for _, line := range []string{
		"click 12",
		"click a b",
		"goal",
		"NaN,1",
		`{"type":"click","x":1}`,
		`{"type":"goal"}`,
		`{"type":`,
	} {
		_, err := Parse(line, now)
		assert.Error(t, err, line)
	}
}

// Verifies near-duplicate clicks inside the window are dropped.
func TestDebouncer(t *testing.T) {
	d := NewDebouncer(80*time.Millisecond, 3)
	click := func(x, y float64, after time.Duration) Event {
		return Event{Kind: KindClick, X: x, Y: y, At: now.Add(after)}
	}

	assert.True(t, d.Accept(click(100, 100, 0)))
	assert.False(t, d.Accept(click(101, 101, 10*time.Millisecond)), "release of the same click")
	assert.True(t, d.Accept(click(150, 100, 20*time.Millisecond)), "different place")
	assert.True(t, d.Accept(click(150, 100, 200*time.Millisecond)), "same place, later")
	assert.True(t, d.Accept(Event{Kind: KindNext, At: now.Add(201 * time.Millisecond)}))

	var off *Debouncer
	assert.True(t, off.Accept(click(1, 1, 0)))
	disabled := NewDebouncer(0, 3)
	assert.True(t, disabled.Accept(click(1, 1, 0)))
	assert.True(t, disabled.Accept(click(1, 1, 0)))
}
