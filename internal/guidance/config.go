package guidance

import (
	"time"

	"github.com/xkilldash9x/waypoint/internal/config"
	"github.com/xkilldash9x/waypoint/internal/geometry"
	"github.com/xkilldash9x/waypoint/internal/planner"
	"github.com/xkilldash9x/waypoint/internal/targeting"
)

// Config tunes the orchestrator.
type Config struct {
	GridColumns    int
	GridRows       int
	MarkerRadiusPx float64
	Targeting      targeting.Config

	// ReplanMisses asks for a new plan after this many misses on one step.
	// Zero disables replanning.
	ReplanMisses int
	HitEpsilon   float64
	HintTTL      time.Duration
	// RequestTimeout bounds each plan, next, refine and replan round trip,
	// retries included.
	RequestTimeout time.Duration
	// CaptureTimeout bounds a single screenshot.
	CaptureTimeout  time.Duration
	PrefetchMaxAge  time.Duration
	EventLogCap     int
	ArtifactHistory int
	ArtifactDir     string
	LearningProfile string
	BusBuffer       int
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		GridColumns:     targeting.DefaultGridColumns,
		GridRows:        targeting.DefaultGridRows,
		MarkerRadiusPx:  targeting.DefaultMarkerRadiusPx,
		Targeting:       targeting.DefaultConfig(),
		ReplanMisses:    4,
		HitEpsilon:      geometry.HitEpsilon,
		HintTTL:         2 * time.Second,
		RequestTimeout:  45 * time.Second,
		CaptureTimeout:  5 * time.Second,
		PrefetchMaxAge:  5 * time.Second,
		EventLogCap:     50,
		ArtifactHistory: 10,
		BusBuffer:       16,
	}
}

// ConfigFrom maps the application configuration onto a Config.
func ConfigFrom(cfg config.Interface) Config {
	g := cfg.Guidance()
	c := DefaultConfig()
	c.GridColumns = g.GridColumns
	c.GridRows = g.GridRows
	c.MarkerRadiusPx = g.MarkerRadiusPx
	c.Targeting = targeting.Config{
		Policy: targeting.Policy{
			ConfidenceThreshold: g.ConfidenceThreshold,
			LowConfidenceMisses: g.LowConfidenceMisses,
			MaxMisses:           g.MaxMisses,
		},
		CropSize: g.CropSize,
		CropZoom: g.CropZoom,
	}
	c.ReplanMisses = g.ReplanMisses
	c.HitEpsilon = g.HitEpsilon
	c.HintTTL = g.HintTTL
	pc := cfg.Planner()
	c.RequestTimeout = planner.RetryBudget(pc.Timeout, pc.MaxRetries, pc.RetryBackoff)
	c.CaptureTimeout = cfg.Capture().Timeout
	c.PrefetchMaxAge = g.PrefetchMaxAge
	c.EventLogCap = g.EventLogCap
	c.ArtifactHistory = g.ArtifactHistory
	c.ArtifactDir = g.ArtifactDir
	c.LearningProfile = g.LearningProfile
	return c
}
