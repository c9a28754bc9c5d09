package planner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/waypoint/api/schemas"
)

const (
	// RequestIDHeader carries the correlation id in both directions.
	RequestIDHeader  = "X-Request-ID"
	maxResponseBytes = 4 << 20
)

// HTTPClient speaks the multipart planning protocol served by the agent
// server and by Handler.
type HTTPClient struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) { h.http = c }
}

// WithRateLimit limits outgoing requests to perSecond with the given burst.
// A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) HTTPOption {
	return func(h *HTTPClient) {
		if perSecond <= 0 {
			h.limiter = nil
			return
		}
		h.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// NewHTTPClient creates a client for the planning service at endpoint.
// timeout bounds each round trip.
func NewHTTPClient(endpoint string, timeout time.Duration, logger *zap.Logger, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
		logger:   logger.Named("planner.http"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Plan implements Client.
func (c *HTTPClient) Plan(ctx context.Context, req schemas.PlanRequest) (*schemas.Plan, error) {
	f := newForm().
		text(fieldGoal, req.Goal).
		json(fieldImageSize, req.ImageSize, false).
		png(fieldScreenshot, "screenshot.png", req.Image).
		optional(fieldLearningProfile, req.LearningProfile).
		json(fieldAppContext, req.AppContext, req.AppContext == nil).
		json(fieldMarkerGrid, req.Grid, req.Grid == nil)

	var plan schemas.Plan
	if err := c.post(ctx, OpPlan, "/plan", req.RequestID, f, &plan); err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, &DecodingError{Op: OpPlan, Err: err}
	}
	return &plan, nil
}

// Next implements Client.
func (c *HTTPClient) Next(ctx context.Context, req schemas.NextRequest) (*schemas.NextResponse, error) {
	completed := req.CompletedSteps
	if completed == nil {
		completed = []schemas.Step{}
	}
	f := newForm().
		text(fieldGoal, req.Goal).
		json(fieldImageSize, req.ImageSize, false).
		png(fieldScreenshot, "screenshot.png", req.Image).
		json(fieldCompletedSteps, completed, false).
		int(fieldTotalSteps, req.TotalSteps).
		optional(fieldLearningProfile, req.LearningProfile).
		json(fieldAppContext, req.AppContext, req.AppContext == nil).
		json(fieldMarkerGrid, req.Grid, req.Grid == nil)

	var resp schemas.NextResponse
	if err := c.post(ctx, OpNext, "/next", req.RequestID, f, &resp); err != nil {
		return nil, err
	}
	if err := resp.Validate(); err != nil {
		return nil, &DecodingError{Op: OpNext, Err: err}
	}
	return &resp, nil
}

// Refine implements Client.
func (c *HTTPClient) Refine(ctx context.Context, req schemas.RefineRequest) (*schemas.RefineResult, error) {
	f := newForm().
		text(fieldGoal, req.Goal).
		text(fieldStepID, req.StepID).
		text(fieldInstruction, req.Instruction).
		optional(fieldTargetLabel, req.TargetLabel).
		json(fieldCropRect, req.Crop, false).
		png(fieldCropImage, "crop.png", req.CropImage).
		optional(fieldSessionSummary, req.SessionSummary)

	var res schemas.RefineResult
	if err := c.post(ctx, OpRefine, "/refine", req.RequestID, f, &res); err != nil {
		return nil, err
	}
	if err := res.Validate(); err != nil {
		return nil, &DecodingError{Op: OpRefine, Err: err}
	}
	return &res, nil
}

// Replan implements Client.
func (c *HTTPClient) Replan(ctx context.Context, req schemas.ReplanRequest) (*schemas.Plan, error) {
	f := newForm().
		text(fieldGoal, req.Goal).
		json(fieldImageSize, req.ImageSize, false).
		png(fieldScreenshot, "screenshot.png", req.Image).
		text(fieldCurrentStepID, req.CurrentStepID).
		optional(fieldLearningProfile, req.LearningProfile).
		json(fieldAppContext, req.AppContext, req.AppContext == nil).
		optional(fieldSessionSummary, req.SessionSummary).
		json(fieldMarkerGrid, req.Grid, req.Grid == nil)

	var plan schemas.Plan
	if err := c.post(ctx, OpReplan, "/replan", req.RequestID, f, &plan); err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, &DecodingError{Op: OpReplan, Err: err}
	}
	return &plan, nil
}

// Health implements HealthChecker.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return &NetworkError{Op: OpHealth, Kind: KindTransport, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(OpHealth, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode != http.StatusOK {
		return &NetworkError{Op: OpHealth, Kind: KindBadResponse, Status: resp.StatusCode}
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, op Op, path, requestID string, f *form, out any) error {
	requestID = requestIDOr(requestID)
	logger := c.logger.With(zap.String("op", string(op)), zap.String("request_id", requestID))

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return transportError(op, err)
		}
	}

	body, contentType, err := f.encode()
	if err != nil {
		return &NetworkError{Op: op, Kind: KindTransport, Err: fmt.Errorf("encode request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, body)
	if err != nil {
		return &NetworkError{Op: op, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn("Planning request failed.", zap.Error(err), zap.Duration("took", time.Since(start)))
		return transportError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(op, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		logger.Warn("Planning service returned an error.",
			zap.Int("status", resp.StatusCode),
			zap.Duration("took", time.Since(start)))
		return &NetworkError{Op: op, Kind: KindBadResponse, Status: resp.StatusCode, Detail: errorDetail(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodingError{Op: op, Err: err}
	}
	logger.Debug("Planning request complete.",
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
		zap.Int("bytes", len(data)))
	return nil
}

// errorDetail extracts a readable message from an error body.
func errorDetail(body []byte) string {
	var payload struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if s, ok := payload.Detail.(string); ok && s != "" {
			return s
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

var _ Client = (*HTTPClient)(nil)
var _ HealthChecker = (*HTTPClient)(nil)

