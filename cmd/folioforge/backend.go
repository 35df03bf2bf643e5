package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lamim/folioforge/internal/api"
	"github.com/lamim/folioforge/internal/checkpoint"
	"github.com/lamim/folioforge/internal/config"
	"github.com/lamim/folioforge/internal/generation"
	"github.com/lamim/folioforge/internal/metrics"
	"github.com/lamim/folioforge/internal/writer"
)

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// loadConfig reads the config and applies command-line overrides. Commands
// that never call the model skip the API key requirement.
func loadConfig(requireKey bool) (*config.Config, *config.Secrets, error) {
	if envFile != "" {
		if err := config.LoadEnvFile(envFile); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	var (
		cfg     *config.Config
		secrets *config.Secrets
		err     error
	)
	if requireKey {
		cfg, secrets, err = config.Load(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if cfg, err = config.Parse(data); err != nil {
			return nil, nil, err
		}
		if secrets, err = config.LoadSecrets(); err != nil {
			return nil, nil, err
		}
	}

	if err := applyOverrides(cfg); err != nil {
		return nil, nil, err
	}
	return cfg, secrets, nil
}

func applyOverrides(cfg *config.Config) error {
	if modelName != "" {
		mc := cfg.Models[cfg.Generation.Model]
		mc.ModelName = modelName
		cfg.Models[cfg.Generation.Model] = mc
	}
	if minDelayMs > 0 {
		cfg.Generation.MinCallDelayMs = minDelayMs
	}
	if outputDir != "" {
		// A defaulted checkpoint dir follows the output dir
		if cfg.Paths.CheckpointDir == filepath.Join(cfg.Paths.OutputDir, "checkpoints") {
			cfg.Paths.CheckpointDir = filepath.Join(outputDir, "checkpoints")
		}
		cfg.Paths.OutputDir = outputDir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration after overrides: %w", err)
	}
	return nil
}

// storage bundles the checkpoint backend selected in the config
type storage struct {
	store  checkpoint.Store
	index  checkpoint.Index
	locker checkpoint.Locker
}

func (s *storage) Close() error {
	return s.index.Close()
}

func openStorage(ctx context.Context, cfg *config.Config, secrets *config.Secrets, logger *slog.Logger) (*storage, error) {
	cp := cfg.Checkpoint
	switch cp.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cp.RedisAddr,
			Password: secrets.RedisPassword,
			DB:       cp.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cp.RedisAddr, err)
		}
		rs := checkpoint.NewRedisStore(client, cp.KeyPrefix,
			time.Duration(cp.LockTTLSeconds)*time.Second, logger.With("component", "checkpoint"))
		logger.Debug("Using redis checkpoint backend", "addr", cp.RedisAddr, "prefix", cp.KeyPrefix)
		return &storage{store: rs, index: rs, locker: rs}, nil

	default:
		dir := cfg.Paths.CheckpointDir
		store, err := checkpoint.NewFileStore(dir, logger.With("component", "checkpoint"))
		if err != nil {
			return nil, err
		}
		locker, err := checkpoint.NewFileLocker(dir)
		if err != nil {
			return nil, err
		}
		index, err := checkpoint.OpenSQLiteIndex(filepath.Join(dir, "index.db"))
		if err != nil {
			return nil, err
		}
		logger.Debug("Using file checkpoint backend", "dir", dir)
		return &storage{store: store, index: index, locker: locker}, nil
	}
}

// newGenerator wires the API client, the spacing gate and the retry policy
func newGenerator(cfg *config.Config, secrets *config.Secrets, collector *metrics.Collector, logger *slog.Logger) (*generation.Client, error) {
	sectionModel := cfg.SectionModel()
	key, err := secrets.RequireAPIKey(cfg.Generation.Model, sectionModel)
	if err != nil {
		return nil, err
	}

	apiClient := api.NewClient(logger, collector)
	apiClient.SetHTTPTimeout(time.Duration(sectionModel.HTTPTimeoutSeconds) * time.Second)

	client := generation.NewClient(
		generation.NewChatBackend(apiClient, sectionModel, key),
		generation.OptionsFromConfig(cfg.Generation),
		cfg.PromptTemplates,
		collector,
		logger,
	)

	if cfg.Generation.ArchitectModel != cfg.Generation.Model {
		architect := cfg.ArchitectModel()
		akey, err := secrets.RequireAPIKey(cfg.Generation.ArchitectModel, architect)
		if err != nil {
			return nil, err
		}
		client.SetOutlineBackend(generation.NewChatBackend(apiClient, architect, akey))
	}
	return client, nil
}

func consoleLogger() *slog.Logger {
	return writer.NewConsoleLogger(logLevel())
}
