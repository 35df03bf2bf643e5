package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Load reads and parses the configuration file and environment variables.
// It fails when the section model has no API key.
func Load(configPath string) (*Config, *Secrets, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, nil, err
	}

	secrets, err := LoadSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	if _, err := secrets.RequireAPIKey(cfg.Generation.Model, cfg.SectionModel()); err != nil {
		return nil, nil, err
	}

	return cfg, secrets, nil
}

// Parse decodes TOML, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ValidateInputs(); err != nil {
		return nil, fmt.Errorf("input validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs into the environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	g := &cfg.Generation
	if g.Model == "" {
		g.Model = "main"
	}
	if g.ArchitectModel == "" {
		g.ArchitectModel = g.Model
	}
	if g.MinCallDelayMs == 0 {
		g.MinCallDelayMs = 2500
	}
	if g.MaxRateLimitRetries == 0 {
		g.MaxRateLimitRetries = 5
	}
	if g.MaxTransientRetries == 0 {
		g.MaxTransientRetries = 3
	}
	if g.BaseRetryDelayMs == 0 {
		g.BaseRetryDelayMs = 2000
	}
	if g.MaxBackoffSeconds == 0 {
		g.MaxBackoffSeconds = 120
	}
	// NOTE: TOML can't distinguish 0 from unset, so -1 disables context
	if g.ContextSections == 0 {
		g.ContextSections = 2
	}
	if g.MinSectionWords == 0 {
		g.MinSectionWords = 50
	}

	if cfg.Planner.SectionsPerTopic == 0 {
		cfg.Planner.SectionsPerTopic = 10
	}
	if cfg.Planner.MinSections == 0 {
		cfg.Planner.MinSections = 120
	}
	if cfg.Planner.TargetWordsPerSection == 0 {
		cfg.Planner.TargetWordsPerSection = 900
	}

	for name, model := range cfg.Models {
		if model.Temperature == 0 {
			model.Temperature = 0.7
		}
		if model.TopP == 0 {
			model.TopP = 1.0
		}
		if model.MaxOutputTokens == 0 {
			model.MaxOutputTokens = 4096
		}
		if model.ContextSize == 0 {
			model.ContextSize = 32768
		}
		if model.RateLimitPerMinute == 0 {
			model.RateLimitPerMinute = 20
		}
		if model.HTTPTimeoutSeconds == 0 {
			model.HTTPTimeoutSeconds = 180
		}
		cfg.Models[name] = model
	}

	if cfg.Paths.OutputDir == "" {
		cfg.Paths.OutputDir = "output"
	}
	if cfg.Paths.CheckpointDir == "" {
		cfg.Paths.CheckpointDir = filepath.Join(cfg.Paths.OutputDir, "checkpoints")
	}

	if cfg.Checkpoint.Backend == "" {
		cfg.Checkpoint.Backend = BackendFile
	}
	if cfg.Checkpoint.KeyPrefix == "" {
		cfg.Checkpoint.KeyPrefix = "folioforge"
	}
	if cfg.Checkpoint.LockTTLSeconds == 0 {
		cfg.Checkpoint.LockTTLSeconds = 300
	}

	if cfg.PromptTemplates.SectionGeneration == "" {
		cfg.PromptTemplates.SectionGeneration = GetDefaultSectionTemplate()
	}
	if cfg.PromptTemplates.SectionSystemPrompt == "" {
		cfg.PromptTemplates.SectionSystemPrompt = GetDefaultSectionSystemPrompt()
	}
	if cfg.PromptTemplates.OutlineGeneration == "" {
		cfg.PromptTemplates.OutlineGeneration = GetDefaultOutlineTemplate()
	}
	if cfg.PromptTemplates.OutlineSystemPrompt == "" {
		cfg.PromptTemplates.OutlineSystemPrompt = GetDefaultOutlineSystemPrompt()
	}
}
