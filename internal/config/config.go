package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lamim/folioforge/pkg/models"
)

// Config represents the complete application configuration
type Config struct {
	Generation      GenerationConfig       `toml:"generation"`
	Planner         PlannerConfig          `toml:"planner"`
	Models          map[string]ModelConfig `toml:"models"`
	Paths           PathsConfig            `toml:"paths"`
	Checkpoint      CheckpointConfig       `toml:"checkpoint"`
	Status          StatusConfig           `toml:"status"`
	PromptTemplates PromptTemplates        `toml:"prompt_templates"`
}

// GenerationConfig holds generation-specific settings
type GenerationConfig struct {
	DocumentTitle       string `toml:"document_title"`        // Used when the outline has no title
	Model               string `toml:"model"`                 // Key into [models] used for sections (default: main)
	ArchitectModel      string `toml:"architect_model"`       // Key into [models] used for outline drafting (default: model)
	MinCallDelayMs      int    `toml:"min_call_delay_ms"`     // Minimum spacing between outbound calls (default 2500)
	MaxRateLimitRetries int    `toml:"max_rate_limit_retries"` // Retries after a rate-limit signal (default 5)
	MaxTransientRetries int    `toml:"max_transient_retries"` // Retries after a transient failure (default 3)
	BaseRetryDelayMs    int    `toml:"base_retry_delay_ms"`   // Backoff base (default 2000)
	MaxBackoffSeconds   int    `toml:"max_backoff_seconds"`   // Backoff ceiling (default 120)
	ContextSections     int    `toml:"context_sections"`      // Previous sections passed as context (default 2, -1 = none)
	MinSectionWords     int    `toml:"min_section_words"`     // Shorter output is rejected and retried (default 50)
	HideProgressBar     bool   `toml:"hide_progress_bar"`
}

// PlannerConfig controls how outlines expand into sections
type PlannerConfig struct {
	SectionsPerTopic      int `toml:"sections_per_topic"`       // Fixed multiplier (default 10)
	MinSections           int `toml:"min_sections"`             // Lower bound on plan size (default 120)
	TargetWordsPerSection int `toml:"target_words_per_section"` // Length hint (default 900)
}

// ModelConfig represents configuration for a single model endpoint
type ModelConfig struct {
	BaseURL            string  `toml:"base_url"`
	ModelName          string  `toml:"model_name"`
	Temperature        float64 `toml:"temperature"`
	TopP               float64 `toml:"top_p"`
	MaxOutputTokens    int     `toml:"max_output_tokens"`
	ContextSize        int     `toml:"context_size"`
	RateLimitPerMinute int     `toml:"rate_limit_per_minute"`
	HTTPTimeoutSeconds int     `toml:"http_timeout_seconds"` // Optional: HTTP request timeout (default 180, 0 = no timeout)
	UseJSONMode        bool    `toml:"use_json_mode"`        // Structured output for outline drafting
}

// PathsConfig holds output locations
type PathsConfig struct {
	OutputDir     string `toml:"output_dir"`     // Project directories (default: output)
	CheckpointDir string `toml:"checkpoint_dir"` // Checkpoints, locks and index (default: <output_dir>/checkpoints)
}

// CheckpointConfig selects the checkpoint backend
type CheckpointConfig struct {
	Backend        string `toml:"backend"` // file or redis
	RedisAddr      string `toml:"redis_addr"`
	RedisDB        int    `toml:"redis_db"`
	KeyPrefix      string `toml:"key_prefix"`
	LockTTLSeconds int    `toml:"lock_ttl_seconds"` // Redis lock expiry (default 300)
}

// StatusConfig configures the optional progress HTTP endpoint
type StatusConfig struct {
	Addr string `toml:"addr"` // e.g. 127.0.0.1:8089, empty = disabled
}

// PromptTemplates holds all customizable prompt templates
type PromptTemplates struct {
	SectionGeneration   string `toml:"section_generation"`
	SectionSystemPrompt string `toml:"section_system_prompt"`
	OutlineGeneration   string `toml:"outline_generation"`
	OutlineSystemPrompt string `toml:"outline_system_prompt"`
}

// Secrets holds sensitive credentials loaded from environment variables
type Secrets struct {
	APIKeys       map[string]string
	RedisPassword string
}

const (
	// BackendFile stores checkpoints as JSON files
	BackendFile = "file"
	// BackendRedis stores checkpoints in Redis
	BackendRedis = "redis"

	// MaxSectionsPerTopic bounds the planner multiplier
	MaxSectionsPerTopic = 100
	// MaxMinSections bounds the plan size floor
	MaxMinSections = 5000
	// MinCallDelayFloorMs is the smallest accepted inter-call delay
	MinCallDelayFloorMs = 100
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	g := c.Generation
	if g.MinCallDelayMs < MinCallDelayFloorMs {
		return fmt.Errorf("generation.min_call_delay_ms must be at least %d (got %d)", MinCallDelayFloorMs, g.MinCallDelayMs)
	}
	if g.MaxRateLimitRetries < 0 || g.MaxRateLimitRetries > 20 {
		return fmt.Errorf("generation.max_rate_limit_retries must be between 0 and 20 (got %d)", g.MaxRateLimitRetries)
	}
	if g.MaxTransientRetries < 0 || g.MaxTransientRetries > 20 {
		return fmt.Errorf("generation.max_transient_retries must be between 0 and 20 (got %d)", g.MaxTransientRetries)
	}
	if g.BaseRetryDelayMs < 1 {
		return fmt.Errorf("generation.base_retry_delay_ms must be at least 1")
	}
	if g.MaxBackoffSeconds < 1 {
		return fmt.Errorf("generation.max_backoff_seconds must be at least 1")
	}
	if g.ContextSections < -1 || g.ContextSections > 10 {
		return fmt.Errorf("generation.context_sections must be between -1 and 10 (got %d)", g.ContextSections)
	}

	p := c.Planner
	if p.SectionsPerTopic < 1 || p.SectionsPerTopic > MaxSectionsPerTopic {
		return fmt.Errorf("planner.sections_per_topic must be between 1 and %d (got %d)", MaxSectionsPerTopic, p.SectionsPerTopic)
	}
	if p.MinSections < 1 || p.MinSections > MaxMinSections {
		return fmt.Errorf("planner.min_sections must be between 1 and %d (got %d)", MaxMinSections, p.MinSections)
	}
	if p.TargetWordsPerSection < 50 {
		return fmt.Errorf("planner.target_words_per_section must be at least 50 (got %d)", p.TargetWordsPerSection)
	}

	mc, ok := c.Models[g.Model]
	if !ok {
		return fmt.Errorf("models.%s is required", g.Model)
	}
	if err := validateModelConfig(g.Model, mc); err != nil {
		return err
	}
	if g.ArchitectModel != g.Model {
		amc, ok := c.Models[g.ArchitectModel]
		if !ok {
			return fmt.Errorf("generation.architect_model references unknown model %q", g.ArchitectModel)
		}
		if err := validateModelConfig(g.ArchitectModel, amc); err != nil {
			return err
		}
	}

	if c.Paths.OutputDir == "" {
		return fmt.Errorf("paths.output_dir is required")
	}
	if c.Paths.CheckpointDir == "" {
		return fmt.Errorf("paths.checkpoint_dir is required")
	}

	switch c.Checkpoint.Backend {
	case BackendFile:
	case BackendRedis:
		if c.Checkpoint.RedisAddr == "" {
			return fmt.Errorf("checkpoint.redis_addr is required for backend=redis")
		}
		if c.Checkpoint.LockTTLSeconds < 10 {
			return fmt.Errorf("checkpoint.lock_ttl_seconds must be at least 10 (got %d)", c.Checkpoint.LockTTLSeconds)
		}
	default:
		return fmt.Errorf("checkpoint.backend must be one of: file, redis (got %s)", c.Checkpoint.Backend)
	}

	if c.PromptTemplates.SectionGeneration == "" {
		return fmt.Errorf("prompt_templates.section_generation is required")
	}
	if c.PromptTemplates.OutlineGeneration == "" {
		return fmt.Errorf("prompt_templates.outline_generation is required")
	}

	return nil
}

func validateModelConfig(name string, mc ModelConfig) error {
	if mc.BaseURL == "" {
		return fmt.Errorf("models.%s.base_url is required", name)
	}
	if mc.ModelName == "" {
		return fmt.Errorf("models.%s.model_name is required", name)
	}
	if mc.Temperature < 0 || mc.Temperature > 2 {
		return fmt.Errorf("models.%s.temperature must be between 0 and 2", name)
	}
	if mc.TopP < 0 || mc.TopP > 1 {
		return fmt.Errorf("models.%s.top_p must be between 0 and 1", name)
	}
	if mc.MaxOutputTokens < 1 {
		return fmt.Errorf("models.%s.max_output_tokens must be at least 1", name)
	}
	if mc.ContextSize < 1 {
		return fmt.Errorf("models.%s.context_size must be at least 1", name)
	}
	if mc.RateLimitPerMinute < 1 {
		return fmt.Errorf("models.%s.rate_limit_per_minute must be at least 1", name)
	}
	if mc.MaxOutputTokens > mc.ContextSize {
		return fmt.Errorf("models.%s.max_output_tokens (%d) must not exceed context_size (%d)", name, mc.MaxOutputTokens, mc.ContextSize)
	}
	return nil
}

// SectionModel returns the model used for section drafting
func (c *Config) SectionModel() ModelConfig {
	return c.Models[c.Generation.Model]
}

// ArchitectModel returns the model used for outline drafting
func (c *Config) ArchitectModel() ModelConfig {
	return c.Models[c.Generation.ArchitectModel]
}

// PlanOptions converts planner settings into planner input
func (c *Config) PlanOptions() models.PlanOptions {
	return models.PlanOptions{
		SectionsPerTopic: c.Planner.SectionsPerTopic,
		MinSections:      c.Planner.MinSections,
		TargetWords:      c.Planner.TargetWordsPerSection,
	}
}

// ProjectDir returns the output directory of a project
func (c *Config) ProjectDir(projectID string) string {
	return filepath.Join(c.Paths.OutputDir, projectID)
}

// LoadSecrets loads sensitive credentials from environment variables
func LoadSecrets() (*Secrets, error) {
	secrets := &Secrets{
		APIKeys: make(map[string]string),
	}

	// Load generic API key (provider-agnostic)
	if key := os.Getenv("API_KEY"); key != "" {
		secrets.APIKeys["generic"] = key
	}

	// Provider-specific keys override the generic one
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		secrets.APIKeys["openai"] = key
	}
	if key := os.Getenv("NVIDIA_API_KEY"); key != "" {
		secrets.APIKeys["nvidia"] = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		secrets.APIKeys["anthropic"] = key
	}
	if key := os.Getenv("TOGETHER_API_KEY"); key != "" {
		secrets.APIKeys["together"] = key
	}

	secrets.RedisPassword = os.Getenv("REDIS_PASSWORD")

	return secrets, nil
}

// GetAPIKey returns the API key for a given base URL
func (s *Secrets) GetAPIKey(baseURL string) string {
	if strings.Contains(baseURL, "openai.com") {
		if key := s.APIKeys["openai"]; key != "" {
			return key
		}
	}
	if strings.Contains(baseURL, "nvidia.com") {
		if key := s.APIKeys["nvidia"]; key != "" {
			return key
		}
	}
	if strings.Contains(baseURL, "anthropic.com") {
		if key := s.APIKeys["anthropic"]; key != "" {
			return key
		}
	}
	if strings.Contains(baseURL, "together.xyz") || strings.Contains(baseURL, "together.ai") {
		if key := s.APIKeys["together"]; key != "" {
			return key
		}
	}

	// Fall back to generic API_KEY for any OpenAI-compatible provider
	return s.APIKeys["generic"]
}

// RequireAPIKey returns the key for a model or fails when none is configured
func (s *Secrets) RequireAPIKey(name string, mc ModelConfig) (string, error) {
	key := s.GetAPIKey(mc.BaseURL)
	if key == "" {
		return "", fmt.Errorf("no API key for models.%s (%s): set API_KEY or a provider-specific key", name, mc.BaseURL)
	}
	return key, nil
}
