package planner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/config"
	"github.com/xkilldash9x/waypoint/internal/imaging"
	"github.com/xkilldash9x/waypoint/internal/llmutil"
	"github.com/xkilldash9x/waypoint/internal/targeting"
)

// generator is the slice of the genai models service the planner uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiPlanner answers planning calls with a multimodal Gemini model. The
// screenshot is overlaid with the marker grid before upload so the model
// can answer with marker references.
type GeminiPlanner struct {
	models   generator
	cfg      config.LLMConfig
	radiusPx float64
	logger   *zap.Logger
}

// NewGeminiPlanner connects to the Gemini API using cfg.APIKey.
func NewGeminiPlanner(ctx context.Context, cfg config.LLMConfig, radiusPx float64, logger *zap.Logger) (*GeminiPlanner, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required (set WAYPOINT_GEMINI_API_KEY)")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return newGeminiPlanner(client.Models, cfg, radiusPx, logger), nil
}

func newGeminiPlanner(models generator, cfg config.LLMConfig, radiusPx float64, logger *zap.Logger) *GeminiPlanner {
	if radiusPx <= 0 {
		radiusPx = targeting.DefaultMarkerRadiusPx
	}
	return &GeminiPlanner{
		models:   models,
		cfg:      cfg,
		radiusPx: radiusPx,
		logger:   logger.Named("planner.gemini"),
	}
}

// promptData feeds the prompt templates.
type promptData struct {
	Goal            string
	ImageSize       string
	LearningProfile string
	AppContext      string
	SessionSummary  string
	Grid            *schemas.MarkerGridSpec
	Markers         string
	Completed       int
	Total           int
	CompletedSteps  string
	CurrentStepID   string
	Instruction     string
	TargetLabel     string
}

// Plan implements Client.
func (g *GeminiPlanner) Plan(ctx context.Context, req schemas.PlanRequest) (*schemas.Plan, error) {
	image, data, err := g.screen(OpPlan, req.Image, req.ImageSize, req.Grid)
	if err != nil {
		return nil, err
	}
	data.Goal = req.Goal
	data.LearningProfile = req.LearningProfile
	data.AppContext = appContextJSON(req.AppContext)

	text, err := g.generate(ctx, OpPlan, req.RequestID, planTemplate, data, image)
	if err != nil {
		return nil, err
	}
	return g.parsePlan(OpPlan, text, req.Goal, req.ImageSize, req.AppContext)
}

// Next implements Client.
func (g *GeminiPlanner) Next(ctx context.Context, req schemas.NextRequest) (*schemas.NextResponse, error) {
	image, data, err := g.screen(OpNext, req.Image, req.ImageSize, req.Grid)
	if err != nil {
		return nil, err
	}
	data.Goal = req.Goal
	data.LearningProfile = req.LearningProfile
	data.AppContext = appContextJSON(req.AppContext)
	data.Completed = len(req.CompletedSteps)
	data.Total = req.TotalSteps
	data.CompletedSteps = completedSummary(req.CompletedSteps)

	text, err := g.generate(ctx, OpNext, req.RequestID, nextTemplate, data, image)
	if err != nil {
		return nil, err
	}
	resp, err := llmutil.ParseJSONResponse[schemas.NextResponse](text)
	if err != nil {
		return nil, &DecodingError{Op: OpNext, Err: err}
	}
	if resp.Status == schemas.NextContinue {
		resp.Version = schemas.PlanVersion
		resp.Goal = req.Goal
		resp.ImageSize = req.ImageSize
	}
	if err := resp.Validate(); err != nil {
		return nil, &DecodingError{Op: OpNext, Err: err}
	}
	return resp, nil
}

// Refine implements Client.
func (g *GeminiPlanner) Refine(ctx context.Context, req schemas.RefineRequest) (*schemas.RefineResult, error) {
	if len(req.CropImage) == 0 {
		return nil, &NetworkError{Op: OpRefine, Kind: KindTransport, Err: imaging.ErrEmptyImage}
	}
	data := promptData{
		Goal:           req.Goal,
		Instruction:    req.Instruction,
		TargetLabel:    req.TargetLabel,
		SessionSummary: req.SessionSummary,
	}
	text, err := g.generate(ctx, OpRefine, req.RequestID, refineTemplate, data, req.CropImage)
	if err != nil {
		return nil, err
	}
	res, err := llmutil.ParseValidated[schemas.RefineResult](text)
	if err != nil {
		return nil, &DecodingError{Op: OpRefine, Err: err}
	}
	return res, nil
}

// Replan implements Client.
func (g *GeminiPlanner) Replan(ctx context.Context, req schemas.ReplanRequest) (*schemas.Plan, error) {
	image, data, err := g.screen(OpReplan, req.Image, req.ImageSize, req.Grid)
	if err != nil {
		return nil, err
	}
	data.Goal = req.Goal
	data.LearningProfile = req.LearningProfile
	data.AppContext = appContextJSON(req.AppContext)
	data.SessionSummary = req.SessionSummary
	data.CurrentStepID = req.CurrentStepID

	text, err := g.generate(ctx, OpReplan, req.RequestID, replanTemplate, data, image)
	if err != nil {
		return nil, err
	}
	return g.parsePlan(OpReplan, text, req.Goal, req.ImageSize, req.AppContext)
}

// screen prepares the upload for a full screenshot. With a grid the image
// is annotated and the marker list is rendered for the prompt.
func (g *GeminiPlanner) screen(op Op, image []byte, size schemas.ImageSize, spec *schemas.MarkerGridSpec) ([]byte, promptData, error) {
	data := promptData{ImageSize: fmt.Sprintf(`{"w": %d, "h": %d}`, size.W, size.H)}
	if len(image) == 0 {
		return nil, data, &NetworkError{Op: op, Kind: KindTransport, Err: imaging.ErrEmptyImage}
	}
	if spec == nil {
		return image, data, nil
	}
	grid, err := targeting.GenerateGridWithRadius(size.W, size.H, spec.Columns, spec.Rows, g.radiusPx)
	if err != nil {
		return nil, data, &NetworkError{Op: op, Kind: KindTransport, Err: err}
	}
	annotated, err := imaging.AnnotatePNG(image, grid.Marks())
	if err != nil {
		return nil, data, &NetworkError{Op: op, Kind: KindTransport, Err: fmt.Errorf("annotate screenshot: %w", err)}
	}
	data.Grid = spec
	data.Markers = markerList(grid)
	return annotated, data, nil
}

func (g *GeminiPlanner) generate(ctx context.Context, op Op, requestID string, tmpl *template.Template, data promptData, image []byte) (string, error) {
	prompt, err := render(tmpl, data)
	if err != nil {
		return "", &NetworkError{Op: op, Kind: KindTransport, Err: fmt.Errorf("render prompt: %w", err)}
	}
	requestID = requestIDOr(requestID)
	logger := g.logger.With(zap.String("op", string(op)), zap.String("request_id", requestID))

	if g.cfg.APITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.APITimeout)
		defer cancel()
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(image, "image/png"),
		}, genai.RoleUser),
	}
	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr(g.cfg.Temperature),
		MaxOutputTokens:   g.cfg.MaxOutputTokens,
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.cfg.Model, contents, genCfg)
	if err != nil {
		logger.Warn("Gemini call failed.", zap.Error(err), zap.Duration("took", time.Since(start)))
		if ctx.Err() != nil {
			return "", transportError(op, ctx.Err())
		}
		return "", &NetworkError{Op: op, Kind: KindBadResponse, Detail: "model call failed", Err: err}
	}
	text := resp.Text()
	fields := []zap.Field{zap.Duration("took", time.Since(start)), zap.Int("response_length", len(text))}
	if u := resp.UsageMetadata; u != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", u.PromptTokenCount),
			zap.Int32("completion_tokens", u.CandidatesTokenCount),
			zap.Int32("total_tokens", u.TotalTokenCount))
	}
	logger.Info("Gemini generation complete.", fields...)
	if strings.TrimSpace(text) == "" {
		return "", &DecodingError{Op: op, Err: errors.New("model returned no text")}
	}
	return text, nil
}

// parsePlan decodes a plan and pins the fields the client already knows.
func (g *GeminiPlanner) parsePlan(op Op, text, goal string, size schemas.ImageSize, app *schemas.AppContext) (*schemas.Plan, error) {
	plan, err := llmutil.ParseJSONResponse[schemas.Plan](text)
	if err != nil {
		return nil, &DecodingError{Op: op, Err: err}
	}
	if plan.Version == "" {
		plan.Version = schemas.PlanVersion
	}
	plan.Goal = goal
	plan.ImageSize = size
	if plan.AppContext == nil {
		plan.AppContext = app
	}
	if err := plan.Validate(); err != nil {
		return nil, &DecodingError{Op: op, Err: err}
	}
	return plan, nil
}

func markerList(grid *targeting.Grid) string {
	var b strings.Builder
	for i, m := range grid.Markers {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strconv.Itoa(m.ID))
		b.WriteString(":")
		b.WriteString(strconv.FormatFloat(m.Center.X, 'f', 3, 64))
		b.WriteString(",")
		b.WriteString(strconv.FormatFloat(m.Center.Y, 'f', 3, 64))
	}
	return b.String()
}

func appContextJSON(app *schemas.AppContext) string {
	if app == nil {
		return ""
	}
	data, err := json.Marshal(app)
	if err != nil {
		return ""
	}
	return string(data)
}

func completedSummary(steps []schemas.Step) string {
	if len(steps) == 0 {
		return "none"
	}
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = fmt.Sprintf("%s %q", s.ID, s.Instruction)
	}
	return strings.Join(parts, "; ")
}

var _ Client = (*GeminiPlanner)(nil)
