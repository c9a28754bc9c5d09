package schemas

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/waypoint/internal/geometry"
)

const samplePlanJSON = `{
  "version": "v1",
  "goal": "Create event",
  "app_context": {"app_name": "Calendar", "bundle_id": "com.apple.iCal"},
  "image_size": {"w": 1920, "h": 1080},
  "steps": [
    {"id": "s1", "instruction": "Click the + button.",
     "targets": [{"x": 0.02, "y": 0.05, "w": 0.03, "h": 0.04, "confidence": 0.92, "label": "Add"}],
     "advance": {"type": "click_in_target", "notes": null},
     "safety": null},
    {"id": "s2", "instruction": "Pick the date.",
     "targets": [{"marker_id": 37, "confidence": null, "label": null}],
     "advance": {"type": "wait_for_ui_change", "notes": "popover opens"},
     "safety": {"requires_confirmation": false, "risk_level": "low"}}
  ]
}`

func ptr[T any](v T) *T { return &v }

func TestPlan_DecodeWireShape(t *testing.T) {
	var p Plan
	require.NoError(t, json.Unmarshal([]byte(samplePlanJSON), &p))
	require.NoError(t, p.Validate())

	want := Targets{BoxTarget{
		Rect:       geometry.NormRect{X: 0.02, Y: 0.05, W: 0.03, H: 0.04},
		Confidence: ptr(0.92),
		Label:      ptr("Add"),
	}}
	if diff := cmp.Diff(want, p.Steps[0].Targets); diff != "" {
		t.Errorf("step 1 targets mismatch (-want +got):\n%s", diff)
	}

	marker, ok := p.Steps[1].Targets[0].(MarkerTarget)
	require.True(t, ok, "marker_id objects decode to MarkerTarget")
	assert.Equal(t, 37, marker.MarkerID)
	assert.Equal(t, DefaultConfidence, marker.ConfidenceOr(DefaultConfidence))
	assert.Equal(t, "", marker.LabelOrEmpty())
	assert.Equal(t, RiskLow, *p.Steps[1].Safety.RiskLevel)
	assert.Equal(t, "com.apple.iCal", *p.AppContext.BundleID)
}

// Verifies the encoder emits null confidence/label for boxes, as the shared schema requires.
func TestTargets_EncodeNullables(t *testing.T) {
	data, err := json.Marshal(Targets{
		BoxTarget{Rect: geometry.NormRect{X: 0.1, Y: 0.2, W: 0.3, H: 0.4}},
		MarkerTarget{MarkerID: 5, Confidence: ptr(0.4)},
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"x":0.1,"y":0.2,"w":0.3,"h":0.4,"confidence":null,"label":null},{"marker_id":5,"confidence":0.4,"label":null}]`,
		string(data))
}

func TestTargets_DecodeRejectsPartialBox(t *testing.T) {
	var ts Targets
	err := json.Unmarshal([]byte(`[{"x":0.1,"y":0.2,"w":0.3}]`), &ts)
	assert.ErrorContains(t, err, "need either marker_id")
}

func validPlan() *Plan {
	return &Plan{
		Version:   "v1",
		Goal:      "Create event",
		ImageSize: ImageSize{W: 1920, H: 1080},
		Steps: []Step{{
			ID:          "s1",
			Instruction: "Click it.",
			Targets:     Targets{BoxTarget{Rect: geometry.NormRect{X: 0.1, Y: 0.1, W: 0.1, H: 0.1}}},
			Advance:     Advance{Type: AdvanceClickInTarget},
		}},
	}
}

func TestPlan_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(p *Plan)
		wantErr string
	}{
		{"valid", func(p *Plan) {}, ""},
		{"bad version", func(p *Plan) { p.Version = "1" }, "version"},
		{"empty goal", func(p *Plan) { p.Goal = "" }, "goal"},
		{"zero image", func(p *Plan) { p.ImageSize.W = 0 }, "image_size"},
		{"no steps", func(p *Plan) { p.Steps = nil }, "1..10 steps"},
		{"box outside", func(p *Plan) {
			p.Steps[0].Targets = Targets{BoxTarget{Rect: geometry.NormRect{X: 1.2, Y: 0, W: 0.1, H: 0.1}}}
		}, "outside the unit square"},
		{"nan width", func(p *Plan) {
			p.Steps[0].Targets = Targets{BoxTarget{Rect: geometry.NormRect{X: 0, Y: 0, W: math.NaN(), H: 0.1}}}
		}, "outside the unit square"},
		{"negative marker", func(p *Plan) { p.Steps[0].Targets = Targets{MarkerTarget{MarkerID: -1}} }, "negative marker"},
		{"bad advance", func(p *Plan) { p.Steps[0].Advance.Type = "hover" }, "advance type"},
		{"duplicate ids", func(p *Plan) { p.Steps = append(p.Steps, p.Steps[0]) }, "duplicate id"},
		{"bad confidence", func(p *Plan) {
			p.Steps[0].Targets = Targets{MarkerTarget{MarkerID: 1, Confidence: ptr(1.5)}}
		}, "confidence"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validPlan()
			tc.mutate(p)
			err := p.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestNextResponse_Validate(t *testing.T) {
	done := &NextResponse{Status: NextDone}
	assert.NoError(t, done.Validate())

	emptyContinue := &NextResponse{Status: NextContinue, ImageSize: ImageSize{W: 10, H: 10}}
	assert.Error(t, emptyContinue.Validate())

	unknown := &NextResponse{Status: "maybe"}
	assert.ErrorContains(t, unknown.Validate(), "unknown next status")

	cont := &NextResponse{Status: NextContinue, ImageSize: ImageSize{W: 10, H: 10}, Steps: validPlan().Steps}
	require.NoError(t, cont.Validate())
	p := cont.AsPlan("g", nil)
	assert.Equal(t, PlanVersion, p.Version)
	assert.Equal(t, "g", p.Goal)
}

func TestRefineResult_Validate(t *testing.T) {
	assert.NoError(t, (&RefineResult{X: 0.3, Y: 0.3, W: 0.4, H: 0.4}).Validate())
	assert.Error(t, (&RefineResult{X: 0.3, Y: 0.3, W: 0, H: 0.4}).Validate())
	assert.Error(t, (&RefineResult{X: 0.3, Y: 0.3, W: 0.1, H: 0.1, Confidence: ptr(-0.1)}).Validate())
}
