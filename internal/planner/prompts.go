package planner

import (
	"strings"
	"text/template"
)

const systemPrompt = `You guide a person through a desktop application one click at a time.
You see a screenshot of their screen and answer with JSON only, never prose.
All coordinates are normalized to [0,1] with the origin at the top-left of the image.
Never invent UI that is not visible in the screenshot.`

const stepSchema = `Each step is:
{"id": "s1", "instruction": "<one short imperative sentence>",
 "targets": [<1-5 targets>],
 "advance": {"type": "click_in_target" | "text_entered_or_next" | "manual_next" | "wait_for_ui_change", "notes": null},
 "safety": null}
A target is either a box {"x":..,"y":..,"w":..,"h":..,"confidence":0..1,"label":".."}
{{- if .Grid}} or a marker reference {"marker_id": <id>, "confidence":0..1, "label":".."}{{end}}.
Prefer a marker reference when a marker sits on the element; use a box when no marker is close.`

var (
	planTemplate = template.Must(template.New("plan").Parse(`Goal: {{.Goal}}
Image size: {{.ImageSize}}
Learning profile: {{or .LearningProfile "default"}}
App context: {{or .AppContext "{}"}}
Session so far: {{or .SessionSummary "none"}}
{{- if .Grid}}
The screenshot is overlaid with numbered markers on a {{.Grid.Columns}}x{{.Grid.Rows}} grid.
Marker centers (id, x, y): {{.Markers}}
{{- end}}

Return a plan of at most 10 steps that reaches the goal from the current screen:
{"version": "v1", "goal": "<goal>", "image_size": {"w":..,"h":..}, "steps": [...]}
` + stepSchema))

	nextTemplate = template.Must(template.New("next").Parse(`Goal: {{.Goal}}
Image size: {{.ImageSize}}
Learning profile: {{or .LearningProfile "default"}}
App context: {{or .AppContext "{}"}}
Completed steps ({{.Completed}} of an original {{.Total}}): {{.CompletedSteps}}
{{- if .Grid}}
The screenshot is overlaid with numbered markers on a {{.Grid.Columns}}x{{.Grid.Rows}} grid.
Marker centers (id, x, y): {{.Markers}}
{{- end}}

The screenshot shows the screen after the last completed step. Decide what happens next:
{"status": "continue" | "done" | "retry", "message": "<short note or null>", "image_size": {"w":..,"h":..}, "steps": [...]}
Use "done" when the goal is reached, "retry" when the screen has not caught up yet.
For "continue" return the next one or two steps only.
` + stepSchema))

	refineTemplate = template.Must(template.New("refine").Parse(`Goal: {{.Goal}}
Instruction: {{.Instruction}}
Target: {{or .TargetLabel "the element the instruction refers to"}}
Session so far: {{or .SessionSummary "none"}}

The image is a zoomed crop of the screen around where the target should be.
Return the tightest box around the target in the crop's own coordinates:
{"x":..,"y":..,"w":..,"h":..,"confidence":0..1,"label":".."}
`))

	replanTemplate = template.Must(template.New("replan").Parse(`Goal: {{.Goal}}
Image size: {{.ImageSize}}
Learning profile: {{or .LearningProfile "default"}}
App context: {{or .AppContext "{}"}}
The person is stuck on step {{.CurrentStepID}} and keeps clicking outside the target.
Session so far: {{or .SessionSummary "none"}}
{{- if .Grid}}
The screenshot is overlaid with numbered markers on a {{.Grid.Columns}}x{{.Grid.Rows}} grid.
Marker centers (id, x, y): {{.Markers}}
{{- end}}

Look at the screen again and return a fresh plan from here:
{"version": "v1", "goal": "<goal>", "image_size": {"w":..,"h":..}, "steps": [...]}
` + stepSchema))
)

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
