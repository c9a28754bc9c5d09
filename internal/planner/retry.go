package planner

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/api/schemas"
)

// Retrying retries failed planning calls a bounded number of times with a
// fixed wait. Only Retryable errors are tried again.
type Retrying struct {
	next           Client
	retries        int
	wait           time.Duration
	attemptTimeout time.Duration
	logger         *zap.Logger
}

// RetryOption configures a Retrying client.
type RetryOption func(*Retrying)

// WithAttemptTimeout bounds each attempt separately so that a timed out
// attempt can still be retried within the caller's deadline.
func WithAttemptTimeout(d time.Duration) RetryOption {
	return func(r *Retrying) {
		r.attemptTimeout = d
	}
}

// NewRetrying wraps client. retries is the number of extra attempts.
func NewRetrying(client Client, retries int, wait time.Duration, logger *zap.Logger, opts ...RetryOption) *Retrying {
	r := &Retrying{
		next:    client,
		retries: max(retries, 0),
		wait:    wait,
		logger:  logger.Named("planner.retry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RetryBudget is the longest a call through Retrying can take when every
// attempt runs into its timeout.
func RetryBudget(attemptTimeout time.Duration, retries int, wait time.Duration) time.Duration {
	retries = max(retries, 0)
	return time.Duration(retries+1)*attemptTimeout + time.Duration(retries)*wait
}

// Plan implements Client.
func (r *Retrying) Plan(ctx context.Context, req schemas.PlanRequest) (*schemas.Plan, error) {
	req.RequestID = requestIDOr(req.RequestID)
	return retry(ctx, r, OpPlan, req.RequestID, func(ctx context.Context) (*schemas.Plan, error) {
		return r.next.Plan(ctx, req)
	})
}

// Next implements Client.
func (r *Retrying) Next(ctx context.Context, req schemas.NextRequest) (*schemas.NextResponse, error) {
	req.RequestID = requestIDOr(req.RequestID)
	return retry(ctx, r, OpNext, req.RequestID, func(ctx context.Context) (*schemas.NextResponse, error) {
		return r.next.Next(ctx, req)
	})
}

// Refine implements Client.
func (r *Retrying) Refine(ctx context.Context, req schemas.RefineRequest) (*schemas.RefineResult, error) {
	req.RequestID = requestIDOr(req.RequestID)
	return retry(ctx, r, OpRefine, req.RequestID, func(ctx context.Context) (*schemas.RefineResult, error) {
		return r.next.Refine(ctx, req)
	})
}

// Replan implements Client.
func (r *Retrying) Replan(ctx context.Context, req schemas.ReplanRequest) (*schemas.Plan, error) {
	req.RequestID = requestIDOr(req.RequestID)
	return retry(ctx, r, OpReplan, req.RequestID, func(ctx context.Context) (*schemas.Plan, error) {
		return r.next.Replan(ctx, req)
	})
}

// Health forwards to the wrapped client when it can probe its backend.
func (r *Retrying) Health(ctx context.Context) error {
	if hc, ok := r.next.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}

func retry[T any](ctx context.Context, r *Retrying, op Op, requestID string, call func(context.Context) (*T, error)) (*T, error) {
	var out *T
	attempt := 0
	operation := func() error {
		attempt++
		actx, cancel := ctx, context.CancelFunc(func() {})
		if r.attemptTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, r.attemptTimeout)
		}
		res, err := call(actx)
		cancel()
		if err == nil {
			out = res
			return nil
		}
		if !Retryable(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if attempt <= r.retries {
			r.logger.Warn("Planning call failed, retrying.",
				zap.String("op", string(op)),
				zap.String("request_id", requestID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(r.wait), uint64(r.retries)), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}
	return out, nil
}

var _ Client = (*Retrying)(nil)
var _ HealthChecker = (*Retrying)(nil)
