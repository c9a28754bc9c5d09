package planner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/geometry"
)

// Limits bounds request bodies accepted by Handler.
type Limits struct {
	MaxScreenshotBytes int64
	MaxCropBytes       int64
}

// DefaultLimits mirrors the agent server's upload limits.
func DefaultLimits() Limits {
	return Limits{MaxScreenshotBytes: 20 << 20, MaxCropBytes: 10 << 20}
}

// formOverhead is allowed on top of the image limit for the text fields.
const formOverhead = 1 << 20

// Handlers exposes a Client over the multipart planning protocol.
type Handlers struct {
	log    *zap.Logger
	client Client
	limits Limits
}

// NewHandlers creates handlers serving client.
func NewHandlers(logger *zap.Logger, client Client, limits Limits) *Handlers {
	return &Handlers{
		log:    logger.Named("planner_handlers"),
		client: client,
		limits: limits,
	}
}

// Handler returns a router with every planning route registered.
func Handler(logger *zap.Logger, client Client, limits Limits) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	NewHandlers(logger, client, limits).RegisterRoutes(r)
	return r
}

// RegisterRoutes sets up the planning routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Post("/plan", h.HandlePlan)
	r.Post("/next", h.HandleNext)
	r.Post("/refine", h.HandleRefine)
	r.Post("/replan", h.HandleReplan)
}

// HandleHealth reports ok, probing the wrapped client when it supports it.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if hc, ok := h.client.(HealthChecker); ok {
		if err := hc.Health(r.Context()); err != nil {
			h.respondWithError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandlePlan serves POST /plan.
func (h *Handlers) HandlePlan(w http.ResponseWriter, r *http.Request) {
	p, ok := h.parse(w, r, h.limits.MaxScreenshotBytes)
	if !ok {
		return
	}
	req := schemas.PlanRequest{
		RequestID:       p.requestID,
		Goal:            p.required(fieldGoal),
		LearningProfile: p.value(fieldLearningProfile),
	}
	req.Image = p.file(fieldScreenshot)
	p.jsonField(fieldImageSize, &req.ImageSize, true)
	req.AppContext = optionalJSON[schemas.AppContext](p, fieldAppContext)
	req.Grid = optionalJSON[schemas.MarkerGridSpec](p, fieldMarkerGrid)
	if !h.checkParsed(w, p) {
		return
	}
	h.serve(w, r, OpPlan, p.requestID, func(ctx context.Context) (any, error) {
		return h.client.Plan(ctx, req)
	})
}

// HandleNext serves POST /next.
func (h *Handlers) HandleNext(w http.ResponseWriter, r *http.Request) {
	p, ok := h.parse(w, r, h.limits.MaxScreenshotBytes)
	if !ok {
		return
	}
	req := schemas.NextRequest{
		RequestID:       p.requestID,
		Goal:            p.required(fieldGoal),
		LearningProfile: p.value(fieldLearningProfile),
	}
	req.Image = p.file(fieldScreenshot)
	p.jsonField(fieldImageSize, &req.ImageSize, true)
	p.jsonField(fieldCompletedSteps, &req.CompletedSteps, false)
	req.TotalSteps = p.int(fieldTotalSteps)
	req.AppContext = optionalJSON[schemas.AppContext](p, fieldAppContext)
	req.Grid = optionalJSON[schemas.MarkerGridSpec](p, fieldMarkerGrid)
	if !h.checkParsed(w, p) {
		return
	}
	h.serve(w, r, OpNext, p.requestID, func(ctx context.Context) (any, error) {
		return h.client.Next(ctx, req)
	})
}

// HandleRefine serves POST /refine.
func (h *Handlers) HandleRefine(w http.ResponseWriter, r *http.Request) {
	p, ok := h.parse(w, r, h.limits.MaxCropBytes)
	if !ok {
		return
	}
	req := schemas.RefineRequest{
		RequestID:      p.requestID,
		Goal:           p.required(fieldGoal),
		StepID:         p.required(fieldStepID),
		Instruction:    p.required(fieldInstruction),
		TargetLabel:    p.value(fieldTargetLabel),
		SessionSummary: p.value(fieldSessionSummary),
	}
	req.CropImage = p.file(fieldCropImage)
	var crop geometry.CropRect
	if p.jsonField(fieldCropRect, &crop, true) {
		if err := crop.Validate(); err != nil {
			p.fail(fmt.Errorf("%s: %w", fieldCropRect, err))
		}
	}
	req.Crop = crop
	if !h.checkParsed(w, p) {
		return
	}
	h.serve(w, r, OpRefine, p.requestID, func(ctx context.Context) (any, error) {
		return h.client.Refine(ctx, req)
	})
}

// HandleReplan serves POST /replan.
func (h *Handlers) HandleReplan(w http.ResponseWriter, r *http.Request) {
	p, ok := h.parse(w, r, h.limits.MaxScreenshotBytes)
	if !ok {
		return
	}
	req := schemas.ReplanRequest{
		RequestID:       p.requestID,
		Goal:            p.required(fieldGoal),
		CurrentStepID:   p.required(fieldCurrentStepID),
		LearningProfile: p.value(fieldLearningProfile),
		SessionSummary:  p.value(fieldSessionSummary),
	}
	req.Image = p.file(fieldScreenshot)
	p.jsonField(fieldImageSize, &req.ImageSize, true)
	req.AppContext = optionalJSON[schemas.AppContext](p, fieldAppContext)
	req.Grid = optionalJSON[schemas.MarkerGridSpec](p, fieldMarkerGrid)
	if !h.checkParsed(w, p) {
		return
	}
	h.serve(w, r, OpReplan, p.requestID, func(ctx context.Context) (any, error) {
		return h.client.Replan(ctx, req)
	})
}

func (h *Handlers) parse(w http.ResponseWriter, r *http.Request, imageLimit int64) (*parsedForm, bool) {
	requestID := requestIDOr(r.Header.Get(RequestIDHeader))
	w.Header().Set(RequestIDHeader, requestID)

	r.Body = http.MaxBytesReader(w, r.Body, imageLimit+formOverhead)
	if err := r.ParseMultipartForm(imageLimit + formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondWithError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		h.respondWithError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid multipart form: %v", err))
		return nil, false
	}
	return &parsedForm{form: r.MultipartForm, requestID: requestID, imageLimit: imageLimit}, true
}

func (h *Handlers) checkParsed(w http.ResponseWriter, p *parsedForm) bool {
	if p.err == nil {
		return true
	}
	if errors.Is(p.err, errImageTooLarge) {
		h.respondWithError(w, http.StatusRequestEntityTooLarge, p.err.Error())
		return false
	}
	h.respondWithError(w, http.StatusUnprocessableEntity, p.err.Error())
	return false
}

func (h *Handlers) serve(w http.ResponseWriter, r *http.Request, op Op, requestID string, call func(context.Context) (any, error)) {
	logger := h.log.With(zap.String("op", string(op)), zap.String("request_id", requestID))
	out, err := call(r.Context())
	if err != nil {
		logger.Warn("Planning call failed.", zap.Error(err))
		status := http.StatusBadGateway
		var netErr *NetworkError
		if errors.As(err, &netErr) && netErr.Kind == KindTimeout {
			status = http.StatusGatewayTimeout
		}
		h.respondWithError(w, status, err.Error())
		return
	}
	logger.Debug("Planning call served.")
	h.respond(w, http.StatusOK, out)
}

func (h *Handlers) respondWithError(w http.ResponseWriter, status int, detail string) {
	h.respond(w, status, map[string]string{"detail": detail})
}

func (h *Handlers) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Failed to encode response.", zap.Error(err))
	}
}

var (
	errImageTooLarge = errors.New("image upload exceeds the size limit")
	errNoImage       = errors.New("image upload is empty")
)

// parsedForm reads fields out of a parsed multipart form, remembering the
// first problem.
type parsedForm struct {
	form       *multipart.Form
	requestID  string
	imageLimit int64
	err        error
}

func (p *parsedForm) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *parsedForm) value(key string) string {
	if vs := p.form.Value[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func (p *parsedForm) required(key string) string {
	v := p.value(key)
	if v == "" {
		p.fail(fmt.Errorf("%s is required", key))
	}
	return v
}

func (p *parsedForm) int(key string) int {
	v := p.required(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		p.fail(fmt.Errorf("%s must be a non-negative integer", key))
	}
	return n
}

// jsonField decodes key into out. It reports whether a value was decoded.
func (p *parsedForm) jsonField(key string, out any, required bool) bool {
	v := p.value(key)
	if v == "" {
		if required {
			p.fail(fmt.Errorf("%s is required", key))
		}
		return false
	}
	if err := json.Unmarshal([]byte(v), out); err != nil {
		p.fail(fmt.Errorf("%s is not valid JSON: %w", key, err))
		return false
	}
	return true
}

func optionalJSON[T any](p *parsedForm, key string) *T {
	var out T
	if !p.jsonField(key, &out, false) {
		return nil
	}
	return &out
}

func (p *parsedForm) file(key string) []byte {
	headers := p.form.File[key]
	if len(headers) == 0 {
		p.fail(fmt.Errorf("%s: %w", key, errNoImage))
		return nil
	}
	fh := headers[0]
	if fh.Size > p.imageLimit {
		p.fail(fmt.Errorf("%s: %w", key, errImageTooLarge))
		return nil
	}
	f, err := fh.Open()
	if err != nil {
		p.fail(fmt.Errorf("%s: %w", key, err))
		return nil
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		p.fail(fmt.Errorf("%s: %w", key, err))
		return nil
	}
	if len(data) == 0 {
		p.fail(fmt.Errorf("%s: %w", key, errNoImage))
		return nil
	}
	return data
}
