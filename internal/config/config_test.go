// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/waypoint/internal/geometry"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, BackendHTTP, cfg.Planner().Backend)
	assert.Equal(t, 45*time.Second, cfg.Planner().Timeout)
	assert.Equal(t, 1, cfg.Planner().MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Planner().RetryBackoff)
	assert.Equal(t, 5*time.Second, cfg.Capture().Timeout)
	assert.Equal(t, 16, cfg.Guidance().GridColumns)
	assert.Equal(t, 10, cfg.Guidance().GridRows)
	assert.Equal(t, 0.7, cfg.Guidance().ConfidenceThreshold)
	assert.Equal(t, 2*time.Second, cfg.Guidance().HintTTL)
	assert.Equal(t, 50, cfg.Guidance().EventLogCap)
	assert.Equal(t, geometry.HitEpsilon, cfg.Guidance().HitEpsilon)
	assert.Equal(t, int64(20<<20), cfg.Server().MaxScreenshotBytes)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM().Model)

	require.NoError(t, cfg.Validate(), "defaults must validate")
}

// -- Viper Loading Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Setenv("WAYPOINT_GEMINI_API_KEY", "test-key")

	yaml := []byte(`
planner:
  backend: gemini
  timeout: 30s
capture:
  mode: command
  command: ["grim", "-"]
  frame:
    origin_x: 0
    origin_y: 0
    width: 1440
    height: 900
    y_up: true
guidance:
  replan_misses: 0
  artifact_dir: ~/waypoint-debug
`)
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(yaml)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, BackendGemini, cfg.Planner().Backend)
	assert.Equal(t, 30*time.Second, cfg.Planner().Timeout)
	assert.Equal(t, "test-key", cfg.LLM().APIKey)
	assert.Equal(t, CaptureModeCommand, cfg.Capture().Mode)
	assert.Equal(t, []string{"grim", "-"}, cfg.Capture().Command)
	assert.Equal(t, geometry.Frame{Width: 1440, Height: 900, YUp: true}, cfg.Capture().Frame)
	assert.Equal(t, 0, cfg.Guidance().ReplanMisses)

	home, err := homedir.Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "waypoint-debug"), cfg.Guidance().ArtifactDir)
}

func TestNewConfigFromViper_Invalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("planner.backend", "carrier-pigeon")

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"http without endpoint", func(c *Config) { c.PlannerCfg.Endpoint = "" }, "endpoint is required"},
		{"zero planner timeout", func(c *Config) { c.PlannerCfg.Timeout = 0 }, "timeout must be a positive duration"},
		{"negative retries", func(c *Config) { c.PlannerCfg.MaxRetries = -1 }, "max_retries"},
		{"gemini without model", func(c *Config) { c.SetPlannerBackend(BackendGemini); c.LLMCfg.Model = "" }, "llm.model"},
		{"file mode without file", func(c *Config) { c.SetCaptureFile("") }, "file is required"},
		{"command mode without command", func(c *Config) { c.CaptureCfg.Mode = CaptureModeCommand }, "command is required"},
		{"bad frame", func(c *Config) { c.CaptureCfg.Frame = geometry.Frame{Width: 100, Height: -1} }, "frame"},
		{"zero grid", func(c *Config) { c.GuidanceCfg.GridRows = 0 }, "grid_columns"},
		{"threshold above one", func(c *Config) { c.GuidanceCfg.ConfidenceThreshold = 1.5 }, "confidence_threshold"},
		{"crop too large", func(c *Config) { c.GuidanceCfg.CropSize = 2 }, "crop_size"},
		{"zoom below one", func(c *Config) { c.GuidanceCfg.CropZoom = 0.5 }, "crop_zoom"},
		{"empty event log", func(c *Config) { c.GuidanceCfg.EventLogCap = 0 }, "event_log_cap"},
		{"log pointer without file", func(c *Config) { c.PointerCfg.Source = PointerLog }, "pointer.log_file"},
		{"unknown pointer", func(c *Config) { c.PointerCfg.Source = "joystick" }, "pointer.source"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	t.Run("mock backend needs no endpoint", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.SetPlannerBackend(BackendMock)
		cfg.SetPlannerEndpoint("")
		assert.NoError(t, cfg.Validate())
	})
}
