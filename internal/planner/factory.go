package planner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/internal/config"
)

// New builds the planning client selected by configuration, wrapped with
// the retry policy.
func New(ctx context.Context, cfg config.Interface, logger *zap.Logger) (Client, error) {
	pc := cfg.Planner()

	var base Client
	switch pc.Backend {
	case config.BackendHTTP:
		base = NewHTTPClient(pc.Endpoint, pc.Timeout, logger, WithRateLimit(pc.RateLimit, pc.RateBurst))
	case config.BackendGemini:
		g, err := NewGeminiPlanner(ctx, cfg.LLM(), cfg.Guidance().MarkerRadiusPx, logger)
		if err != nil {
			return nil, err
		}
		base = g
	case config.BackendMock:
		base = NewMockPlanner()
	default:
		return nil, fmt.Errorf("unknown planner backend %q", pc.Backend)
	}

	logger.Info("Planning client initialized.",
		zap.String("backend", string(pc.Backend)),
		zap.Int("max_retries", pc.MaxRetries))
	return NewRetrying(base, pc.MaxRetries, pc.RetryBackoff, logger, WithAttemptTimeout(pc.Timeout)), nil
}
