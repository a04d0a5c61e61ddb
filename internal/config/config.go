// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/opsmedic/codemedic/api/schemas"
)

// Config holds the entire application configuration. Values are explicit
// and injected into component constructors; there is no process-wide
// mutable configuration state.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Sandbox  SandboxConfig  `mapstructure:"sandbox" yaml:"sandbox"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Repair   RepairConfig   `mapstructure:"repair" yaml:"repair"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
}

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

// SandboxConfig bounds the isolated execution context for untrusted code.
type SandboxConfig struct {
	// Image is the container image built for sandboxed runs.
	Image string `mapstructure:"image" yaml:"image"`
	// Binary is the container runtime CLI to invoke.
	Binary string `mapstructure:"binary" yaml:"binary"`
	// Interpreter runs the mounted script inside the container.
	Interpreter string `mapstructure:"interpreter" yaml:"interpreter"`
	// MemoryBytes is a hard cap; a breach terminates the run.
	MemoryBytes int64 `mapstructure:"memory_bytes" yaml:"memory_bytes"`
	// CPUShare is a fractional throttle, not a hard cap.
	CPUShare float64 `mapstructure:"cpu_share" yaml:"cpu_share"`
	// NetworkEnabled must stay false for untrusted code.
	NetworkEnabled bool `mapstructure:"network_enabled" yaml:"network_enabled"`
	// Timeout is the wall-clock cap enforced by forced termination.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// KeepWorkspace preserves the per-run script directory for debugging.
	KeepWorkspace bool `mapstructure:"keep_workspace" yaml:"keep_workspace"`
}

// Limits converts the sandbox settings into the per-run resource limits
// handed to the executor.
func (s *SandboxConfig) Limits() schemas.ResourceLimits {
	return schemas.ResourceLimits{
		MemoryBytes:    s.MemoryBytes,
		CPUShare:       s.CPUShare,
		NetworkEnabled: s.NetworkEnabled,
		Timeout:        s.Timeout,
	}
}

// LLMProvider defines the supported inference providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOllama LLMProvider = "ollama"
)

// LLMConfig defines the configuration for the inference backend.
type LLMConfig struct {
	Provider    LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model       string            `mapstructure:"model" yaml:"model"`
	APIKey      string            `mapstructure:"api_key" yaml:"-"`
	Endpoint    string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64           `mapstructure:"temperature" yaml:"temperature"`
	TopP        float64           `mapstructure:"top_p" yaml:"top_p"`
	TopK        int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RequestsPerMinute throttles outbound generation calls. Zero disables
	// the limiter.
	RequestsPerMinute float64           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	SafetyFilters     map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// RepairConfig tunes the repair loop itself.
type RepairConfig struct {
	// MaxIterations bounds the execute/patch cycle. 1-10 is the recognized
	// range in practice.
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
	// GenerationTimeout is the hard deadline for one patch-generation call.
	// On expiry control transfers to the fallback rules.
	GenerationTimeout time.Duration `mapstructure:"generation_timeout" yaml:"generation_timeout"`
}

// DatabaseConfig holds the optional session store connection details.
// Sessions are only persisted when URL is set.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "codemedic")
	v.SetDefault("logger.log_file", "codemedic.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Sandbox --
	v.SetDefault("sandbox.image", "codemedic-sandbox")
	v.SetDefault("sandbox.binary", "docker")
	v.SetDefault("sandbox.interpreter", "python3")
	v.SetDefault("sandbox.memory_bytes", 128*1024*1024)
	v.SetDefault("sandbox.cpu_share", 0.5)
	v.SetDefault("sandbox.network_enabled", false)
	v.SetDefault("sandbox.timeout", "5s")
	v.SetDefault("sandbox.keep_workspace", false)

	// -- LLM --
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.model", "llama3")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.api_timeout", "30s")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.requests_per_minute", 0)

	// -- Repair --
	v.SetDefault("repair.max_iterations", 3)
	v.SetDefault("repair.generation_timeout", "30s")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults alone.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	_ = v.BindEnv("llm.api_key", "CODEMEDIC_LLM_API_KEY")
	_ = v.BindEnv("database.url", "CODEMEDIC_DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Sandbox.Validate(); err != nil {
		return fmt.Errorf("sandbox configuration invalid: %w", err)
	}
	if err := c.Repair.Validate(); err != nil {
		return fmt.Errorf("repair configuration invalid: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the sandbox limits.
func (s *SandboxConfig) Validate() error {
	if s.Image == "" {
		return fmt.Errorf("image is required")
	}
	if s.MemoryBytes <= 0 {
		return fmt.Errorf("memory_bytes must be a positive byte count")
	}
	if s.CPUShare <= 0 || s.CPUShare > 1.0 {
		return fmt.Errorf("cpu_share must be in (0.0, 1.0]")
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	return nil
}

// Validate checks the repair loop settings.
func (r *RepairConfig) Validate() error {
	if r.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be greater than 0")
	}
	if r.GenerationTimeout <= 0 {
		return fmt.Errorf("generation_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the inference backend settings.
func (l *LLMConfig) Validate() error {
	switch l.Provider {
	case ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("unknown llm provider '%s' (supported: %s, %s)", l.Provider, ProviderGemini, ProviderOllama)
	}
	if l.Model == "" {
		return fmt.Errorf("model is required")
	}
	if l.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be a positive duration")
	}
	if l.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}
	return nil
}
