// Package pointer turns external input into guidance events. Clicks come in
// device coordinates; commands drive the session from a terminal.
package pointer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/waypoint/internal/geometry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrEmptyLine is returned by Parse for blank and comment lines.
	ErrEmptyLine = errors.New("pointer: empty line")
	// ErrUnknownCommand is returned by Parse for input it does not recognize.
	ErrUnknownCommand = errors.New("pointer: unknown command")
)

// Kind is the type of an input event.
type Kind int

const (
	KindClick Kind = iota + 1
	KindActivate
	KindGoal
	KindNext
	KindReset
	KindStatus
	KindQuit
)

func (k Kind) String() string {
	switch k {
	case KindClick:
		return "click"
	case KindActivate:
		return "activate"
	case KindGoal:
		return "goal"
	case KindNext:
		return "next"
	case KindReset:
		return "reset"
	case KindStatus:
		return "status"
	case KindQuit:
		return "quit"
	default:
		return "unknown"
	}
}

var commands = map[string]Kind{
	"click":    KindClick,
	"activate": KindActivate,
	"start":    KindActivate,
	"goal":     KindGoal,
	"next":     KindNext,
	"reset":    KindReset,
	"status":   KindStatus,
	"quit":     KindQuit,
	"exit":     KindQuit,
}

// Event is one input. X and Y are device coordinates and only set for
// clicks; Text is only set for goals.
type Event struct {
	Kind Kind
	X, Y float64
	Text string
	At   time.Time
}

// Point returns the click position.
func (e Event) Point() geometry.Vector2D {
	return geometry.Vector2D{X: e.X, Y: e.Y}
}

func (e Event) String() string {
	switch e.Kind {
	case KindClick:
		return fmt.Sprintf("click(%.1f, %.1f)", e.X, e.Y)
	case KindGoal:
		return fmt.Sprintf("goal(%q)", e.Text)
	default:
		return e.Kind.String()
	}
}

// logLine is the record an input hook appends to the pointer log.
type logLine struct {
	Type string    `json:"type"`
	X    *float64  `json:"x"`
	Y    *float64  `json:"y"`
	Text string    `json:"text"`
	TS   time.Time `json:"ts"`
}

// Parse reads one input line. JSON objects are hook records such as
// {"type":"click","x":812,"y":430}; anything else is a terminal command:
// "click 812 430", "812,430", "goal Export the report as PDF", "next",
// "reset", "status", "quit". now stamps events that carry no time.
func Parse(line string, now time.Time) (Event, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Event{}, ErrEmptyLine
	}
	if strings.HasPrefix(line, "{") {
		return parseRecord(line, now)
	}

	if x, y, ok := parsePoint(line); ok {
		return Event{Kind: KindClick, X: x, Y: y, At: now}, nil
	}

	word, rest, _ := strings.Cut(line, " ")
	kind, ok := commands[strings.ToLower(word)]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownCommand, word)
	}
	rest = strings.TrimSpace(rest)
	ev := Event{Kind: kind, At: now}
	switch kind {
	case KindClick:
		x, y, ok := parsePoint(rest)
		if !ok {
			return Event{}, fmt.Errorf("pointer: click needs two coordinates, got %q", rest)
		}
		ev.X, ev.Y = x, y
	case KindGoal:
		if rest == "" {
			return Event{}, errors.New("pointer: goal needs text")
		}
		ev.Text = rest
	}
	return ev, nil
}

func parseRecord(line string, now time.Time) (Event, error) {
	var rec logLine
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return Event{}, fmt.Errorf("pointer: malformed record: %w", err)
	}
	typ := rec.Type
	if typ == "" {
		typ = "click"
	}
	kind, ok := commands[strings.ToLower(typ)]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownCommand, typ)
	}
	at := rec.TS
	if at.IsZero() {
		at = now
	}
	ev := Event{Kind: kind, Text: strings.TrimSpace(rec.Text), At: at}
	switch kind {
	case KindClick:
		if rec.X == nil || rec.Y == nil {
			return Event{}, errors.New("pointer: click record needs x and y")
		}
		ev.X, ev.Y = *rec.X, *rec.Y
		if !ev.Point().IsFinite() {
			return Event{}, geometry.ErrNonFinite
		}
	case KindGoal:
		if ev.Text == "" {
			return Event{}, errors.New("pointer: goal record needs text")
		}
	}
	return ev, nil
}

// parsePoint accepts "x y", "x,y" and "x, y".
func parsePoint(s string) (float64, float64, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) != 2 {
		return 0, 0, false
	}
	x, errX := strconv.ParseFloat(fields[0], 64)
	y, errY := strconv.ParseFloat(fields[1], 64)
	if errX != nil || errY != nil {
		return 0, 0, false
	}
	p := geometry.Vector2D{X: x, Y: y}
	if !p.IsFinite() {
		return 0, 0, false
	}
	return x, y, true
}
