// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/waypoint/internal/geometry"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Planner() PlannerConfig
	LLM() LLMConfig
	Capture() CaptureConfig
	Guidance() GuidanceConfig
	Pointer() PointerConfig
	Server() ServerConfig

	SetPlannerBackend(b PlannerBackend)
	SetPlannerEndpoint(endpoint string)
	SetCaptureFile(path string)
	SetGuidanceArtifactDir(dir string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	PlannerCfg  PlannerConfig  `mapstructure:"planner" yaml:"planner"`
	LLMCfg      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	CaptureCfg  CaptureConfig  `mapstructure:"capture" yaml:"capture"`
	GuidanceCfg GuidanceConfig `mapstructure:"guidance" yaml:"guidance"`
	PointerCfg  PointerConfig  `mapstructure:"pointer" yaml:"pointer"`
	ServerCfg   ServerConfig   `mapstructure:"server" yaml:"server"`
}

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Planner() PlannerConfig   { return c.PlannerCfg }
func (c *Config) LLM() LLMConfig           { return c.LLMCfg }
func (c *Config) Capture() CaptureConfig   { return c.CaptureCfg }
func (c *Config) Guidance() GuidanceConfig { return c.GuidanceCfg }
func (c *Config) Pointer() PointerConfig   { return c.PointerCfg }
func (c *Config) Server() ServerConfig     { return c.ServerCfg }

// -- Setters for CLI flag overrides --

func (c *Config) SetPlannerBackend(b PlannerBackend) { c.PlannerCfg.Backend = b }
func (c *Config) SetPlannerEndpoint(endpoint string) { c.PlannerCfg.Endpoint = endpoint }
func (c *Config) SetCaptureFile(path string)         { c.CaptureCfg.File = path }
func (c *Config) SetGuidanceArtifactDir(dir string)  { c.GuidanceCfg.ArtifactDir = dir }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// PlannerBackend selects which planning client is used.
type PlannerBackend string

const (
	BackendHTTP   PlannerBackend = "http"
	BackendGemini PlannerBackend = "gemini"
	BackendMock   PlannerBackend = "mock"
)

// PlannerConfig configures the planning collaborator.
type PlannerConfig struct {
	Backend      PlannerBackend `mapstructure:"backend" yaml:"backend"`
	Endpoint     string         `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout      time.Duration  `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries   int            `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBackoff time.Duration  `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	// RateLimit is requests per second; 0 disables limiting.
	RateLimit   float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst   int     `mapstructure:"rate_burst" yaml:"rate_burst"`
	HealthCheck bool    `mapstructure:"health_check" yaml:"health_check"`
}

// LLMConfig configures the Gemini planner backend.
type LLMConfig struct {
	Model           string        `mapstructure:"model" yaml:"model"`
	APIKey          string        `mapstructure:"api_key" yaml:"-"`
	APITimeout      time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature     float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxOutputTokens int32         `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
}

// CaptureMode selects how screenshots are taken.
type CaptureMode string

const (
	CaptureModeFile    CaptureMode = "file"
	CaptureModeCommand CaptureMode = "command"
)

// CaptureConfig configures the screenshot collaborator.
type CaptureConfig struct {
	Mode    CaptureMode    `mapstructure:"mode" yaml:"mode"`
	File    string         `mapstructure:"file" yaml:"file"`
	Command []string       `mapstructure:"command" yaml:"command"`
	Timeout time.Duration  `mapstructure:"timeout" yaml:"timeout"`
	Frame   geometry.Frame `mapstructure:"frame" yaml:"frame"`
}

// GuidanceConfig tunes the orchestrator and target resolution.
type GuidanceConfig struct {
	GridColumns         int           `mapstructure:"grid_columns" yaml:"grid_columns"`
	GridRows            int           `mapstructure:"grid_rows" yaml:"grid_rows"`
	MarkerRadiusPx      float64       `mapstructure:"marker_radius_px" yaml:"marker_radius_px"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	LowConfidenceMisses int           `mapstructure:"low_confidence_misses" yaml:"low_confidence_misses"`
	MaxMisses           int           `mapstructure:"max_misses" yaml:"max_misses"`
	ReplanMisses        int           `mapstructure:"replan_misses" yaml:"replan_misses"`
	CropSize            float64       `mapstructure:"crop_size" yaml:"crop_size"`
	CropZoom            float64       `mapstructure:"crop_zoom" yaml:"crop_zoom"`
	HitEpsilon          float64       `mapstructure:"hit_epsilon" yaml:"hit_epsilon"`
	HintTTL             time.Duration `mapstructure:"hint_ttl" yaml:"hint_ttl"`
	EventLogCap         int           `mapstructure:"event_log_cap" yaml:"event_log_cap"`
	ArtifactHistory     int           `mapstructure:"artifact_history" yaml:"artifact_history"`
	ArtifactDir         string        `mapstructure:"artifact_dir" yaml:"artifact_dir"`
	PrefetchMaxAge      time.Duration `mapstructure:"prefetch_max_age" yaml:"prefetch_max_age"`
	LearningProfile     string        `mapstructure:"learning_profile" yaml:"learning_profile"`
}

// PointerSource selects where click events come from.
type PointerSource string

const (
	PointerStdin PointerSource = "stdin"
	PointerLog   PointerSource = "log"
)

// PointerConfig configures the click event source.
type PointerConfig struct {
	Source  PointerSource `mapstructure:"source" yaml:"source"`
	LogFile string        `mapstructure:"log_file" yaml:"log_file"`
	// Clicks closer than DebounceRadiusPx to the previous click within
	// DebounceWindow are dropped as duplicates.
	DebounceWindow   time.Duration `mapstructure:"debounce_window" yaml:"debounce_window"`
	DebounceRadiusPx float64       `mapstructure:"debounce_radius_px" yaml:"debounce_radius_px"`
}

// ServerConfig configures `waypoint serve`.
type ServerConfig struct {
	Addr               string        `mapstructure:"addr" yaml:"addr"`
	MaxScreenshotBytes int64         `mapstructure:"max_screenshot_bytes" yaml:"max_screenshot_bytes"`
	MaxCropBytes       int64         `mapstructure:"max_crop_bytes" yaml:"max_crop_bytes"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "waypoint")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Planner --
	v.SetDefault("planner.backend", string(BackendHTTP))
	v.SetDefault("planner.endpoint", "http://127.0.0.1:8000")
	v.SetDefault("planner.timeout", "45s")
	v.SetDefault("planner.max_retries", 1)
	v.SetDefault("planner.retry_backoff", "500ms")
	v.SetDefault("planner.rate_limit", 2.0)
	v.SetDefault("planner.rate_burst", 2)
	v.SetDefault("planner.health_check", true)

	// -- LLM --
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.api_timeout", "45s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_output_tokens", 4096)

	// -- Capture --
	v.SetDefault("capture.mode", string(CaptureModeFile))
	v.SetDefault("capture.file", "screen.png")
	v.SetDefault("capture.timeout", "5s")

	// -- Guidance --
	v.SetDefault("guidance.grid_columns", 16)
	v.SetDefault("guidance.grid_rows", 10)
	v.SetDefault("guidance.marker_radius_px", 12.0)
	v.SetDefault("guidance.confidence_threshold", 0.7)
	v.SetDefault("guidance.low_confidence_misses", 1)
	v.SetDefault("guidance.max_misses", 2)
	v.SetDefault("guidance.replan_misses", 4)
	v.SetDefault("guidance.crop_size", 0.3)
	v.SetDefault("guidance.crop_zoom", 2.0)
	v.SetDefault("guidance.hit_epsilon", geometry.HitEpsilon)
	v.SetDefault("guidance.hint_ttl", "2s")
	v.SetDefault("guidance.event_log_cap", 50)
	v.SetDefault("guidance.artifact_history", 10)
	v.SetDefault("guidance.artifact_dir", "")
	v.SetDefault("guidance.prefetch_max_age", "5s")

	// -- Pointer --
	v.SetDefault("pointer.source", string(PointerStdin))
	v.SetDefault("pointer.debounce_window", "80ms")
	v.SetDefault("pointer.debounce_radius_px", 3.0)

	// -- Server --
	v.SetDefault("server.addr", "127.0.0.1:8000")
	v.SetDefault("server.max_screenshot_bytes", 20<<20)
	v.SetDefault("server.max_crop_bytes", 10<<20)
	v.SetDefault("server.shutdown_timeout", "10s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("llm.api_key", "WAYPOINT_GEMINI_API_KEY", "GEMINI_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in every path setting.
func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.LoggerCfg.LogFile,
		&c.CaptureCfg.File,
		&c.GuidanceCfg.ArtifactDir,
		&c.PointerCfg.LogFile,
	} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.PlannerCfg.Validate(); err != nil {
		return fmt.Errorf("planner configuration invalid: %w", err)
	}
	if c.PlannerCfg.Backend == BackendGemini && c.LLMCfg.Model == "" {
		return fmt.Errorf("llm.model is required for the gemini backend")
	}
	if err := c.CaptureCfg.Validate(); err != nil {
		return fmt.Errorf("capture configuration invalid: %w", err)
	}
	if err := c.GuidanceCfg.Validate(); err != nil {
		return fmt.Errorf("guidance configuration invalid: %w", err)
	}
	switch c.PointerCfg.Source {
	case PointerStdin:
	case PointerLog:
		if c.PointerCfg.LogFile == "" {
			return fmt.Errorf("pointer.log_file is required for the log source")
		}
	default:
		return fmt.Errorf("unknown pointer.source %q", c.PointerCfg.Source)
	}
	return nil
}

// Validate checks the PlannerConfig settings.
func (p *PlannerConfig) Validate() error {
	switch p.Backend {
	case BackendHTTP:
		if p.Endpoint == "" {
			return fmt.Errorf("endpoint is required for the http backend")
		}
	case BackendGemini, BackendMock:
	default:
		return fmt.Errorf("unknown backend %q", p.Backend)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if p.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	return nil
}

// Validate checks the CaptureConfig settings.
func (c *CaptureConfig) Validate() error {
	switch c.Mode {
	case CaptureModeFile:
		if c.File == "" {
			return fmt.Errorf("file is required for file mode")
		}
	case CaptureModeCommand:
		if len(c.Command) == 0 {
			return fmt.Errorf("command is required for command mode")
		}
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if c.Frame.Width != 0 || c.Frame.Height != 0 {
		if err := c.Frame.Validate(); err != nil {
			return fmt.Errorf("frame: %w", err)
		}
	}
	return nil
}

// Validate checks the GuidanceConfig settings.
func (g *GuidanceConfig) Validate() error {
	if g.GridColumns <= 0 || g.GridRows <= 0 {
		return fmt.Errorf("grid_columns and grid_rows must be positive")
	}
	if g.ConfidenceThreshold < 0 || g.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be between 0.0 and 1.0")
	}
	if g.LowConfidenceMisses < 1 || g.MaxMisses < 1 {
		return fmt.Errorf("low_confidence_misses and max_misses must be at least 1")
	}
	if g.ReplanMisses < 0 {
		return fmt.Errorf("replan_misses must not be negative")
	}
	if g.CropSize <= 0 || g.CropSize > 1 {
		return fmt.Errorf("crop_size must be in (0, 1]")
	}
	if g.CropZoom < 1 {
		return fmt.Errorf("crop_zoom must be at least 1")
	}
	if g.HitEpsilon < 0 {
		return fmt.Errorf("hit_epsilon must not be negative")
	}
	if g.EventLogCap <= 0 {
		return fmt.Errorf("event_log_cap must be positive")
	}
	if g.ArtifactHistory < 0 {
		return fmt.Errorf("artifact_history must not be negative")
	}
	return nil
}
