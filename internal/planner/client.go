// Package planner talks to the remote planning capability that turns a goal
// and a screenshot into guidance steps. Several transports implement Client.
package planner

import (
	"context"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/waypoint/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client is the planning collaborator. Refine answers in the crop's local
// coordinates; callers stitch.
type Client interface {
	Plan(ctx context.Context, req schemas.PlanRequest) (*schemas.Plan, error)
	Next(ctx context.Context, req schemas.NextRequest) (*schemas.NextResponse, error)
	Refine(ctx context.Context, req schemas.RefineRequest) (*schemas.RefineResult, error)
	Replan(ctx context.Context, req schemas.ReplanRequest) (*schemas.Plan, error)
}

// HealthChecker is implemented by clients that can probe their backend.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewRequestID returns a fresh correlation id.
func NewRequestID() string {
	return uuid.NewString()
}

func requestIDOr(id string) string {
	if id == "" {
		return NewRequestID()
	}
	return id
}
