// api/schemas/target.go
package schemas

import (
	"encoding/json"
	"fmt"

	"github.com/xkilldash9x/waypoint/internal/geometry"
)

// DefaultConfidence is assumed for targets that arrive without a confidence.
const DefaultConfidence = 0.5

// Target is a step's declared target. It is either a literal normalized box
// (BoxTarget) or a reference into the marker grid of the capture the plan was
// computed from (MarkerTarget). Consumers must switch over both.
type Target interface {
	// ConfidenceOr returns the declared confidence, or def when absent.
	ConfidenceOr(def float64) float64
	// LabelOrEmpty returns the declared label, or "".
	LabelOrEmpty() string

	isTarget()
}

// BoxTarget is a literal normalized rectangle.
type BoxTarget struct {
	Rect       geometry.NormRect
	Confidence *float64
	Label      *string
}

// MarkerTarget names a marker by id. It is only meaningful against the grid
// generated for the same screenshot.
type MarkerTarget struct {
	MarkerID   int
	Confidence *float64
	Label      *string
}

func (BoxTarget) isTarget()    {}
func (MarkerTarget) isTarget() {}

func (t BoxTarget) ConfidenceOr(def float64) float64    { return confidenceOr(t.Confidence, def) }
func (t MarkerTarget) ConfidenceOr(def float64) float64 { return confidenceOr(t.Confidence, def) }
func (t BoxTarget) LabelOrEmpty() string                { return labelOrEmpty(t.Label) }
func (t MarkerTarget) LabelOrEmpty() string             { return labelOrEmpty(t.Label) }

func confidenceOr(c *float64, def float64) float64 {
	if c == nil {
		return def
	}
	return *c
}

func labelOrEmpty(l *string) string {
	if l == nil {
		return ""
	}
	return *l
}

// Targets is the wire form of a step's target list.
type Targets []Target

type boxWire struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	W          float64  `json:"w"`
	H          float64  `json:"h"`
	Confidence *float64 `json:"confidence"`
	Label      *string  `json:"label"`
}

type markerWire struct {
	MarkerID   int      `json:"marker_id"`
	Confidence *float64 `json:"confidence"`
	Label      *string  `json:"label"`
}

// targetWire is the union of both shapes, used only while decoding.
type targetWire struct {
	X          *float64 `json:"x"`
	Y          *float64 `json:"y"`
	W          *float64 `json:"w"`
	H          *float64 `json:"h"`
	MarkerID   *int     `json:"marker_id"`
	Confidence *float64 `json:"confidence"`
	Label      *string  `json:"label"`
}

// MarshalJSON implements json.Marshaler.
func (ts Targets) MarshalJSON() ([]byte, error) {
	out := make([]any, 0, len(ts))
	for i, t := range ts {
		switch v := t.(type) {
		case BoxTarget:
			out = append(out, boxWire{X: v.Rect.X, Y: v.Rect.Y, W: v.Rect.W, H: v.Rect.H, Confidence: v.Confidence, Label: v.Label})
		case MarkerTarget:
			out = append(out, markerWire{MarkerID: v.MarkerID, Confidence: v.Confidence, Label: v.Label})
		default:
			return nil, fmt.Errorf("target %d: unsupported target type %T", i, t)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. An object carrying marker_id is
// a marker reference; otherwise x, y, w and h are all required.
func (ts *Targets) UnmarshalJSON(data []byte) error {
	var raw []targetWire
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Targets, 0, len(raw))
	for i, w := range raw {
		if w.MarkerID != nil {
			out = append(out, MarkerTarget{MarkerID: *w.MarkerID, Confidence: w.Confidence, Label: w.Label})
			continue
		}
		if w.X == nil || w.Y == nil || w.W == nil || w.H == nil {
			return fmt.Errorf("target %d: need either marker_id or all of x, y, w, h", i)
		}
		out = append(out, BoxTarget{
			Rect:       geometry.NormRect{X: *w.X, Y: *w.Y, W: *w.W, H: *w.H},
			Confidence: w.Confidence,
			Label:      w.Label,
		})
	}
	*ts = out
	return nil
}
