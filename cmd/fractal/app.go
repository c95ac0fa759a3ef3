package main

import (
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ShayCichocki/fractal/internal/api"
	"github.com/ShayCichocki/fractal/internal/config"
	"github.com/ShayCichocki/fractal/internal/engine"
	"github.com/ShayCichocki/fractal/internal/logging"
	"github.com/ShayCichocki/fractal/internal/oracle"
	"github.com/ShayCichocki/fractal/internal/state"
)

// signalsBase is the directory holding the stop file, relative to the
// working directory.
const signalsBase = ".fractal"

// loadConfig loads the configuration and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
}

// openStore opens the run history database.
func openStore(cfg *config.Config) (*state.DB, error) {
	path := cfg.Storage.Path
	if path == "" {
		path = config.DefaultStoragePath()
	}
	db, err := state.OpenAndMigrate(path)
	if err != nil {
		return nil, fmt.Errorf("open run history %s: %w", path, err)
	}
	return db, nil
}

// newAPIClient creates the Anthropic client, direct or through Bedrock.
func newAPIClient(cfg *config.Config) (*api.Client, error) {
	clientCfg := api.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		BaseURL:       cfg.Anthropic.BaseURL,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	}
	if !cfg.Anthropic.UseBedrock {
		key, err := config.GetAPIKey(cfg)
		if errors.Is(err, config.ErrNoAPIKey) {
			return nil, fmt.Errorf("%w\n\nSet ANTHROPIC_API_KEY or run:\n  fractal config anthropic.api_key sk-ant-...", err)
		}
		if err != nil {
			return nil, err
		}
		clientCfg.APIKey = key
	}

	client, err := api.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}
	return client, nil
}

// engineDeps are the optional collaborators of a CLI engine.
type engineDeps struct {
	store  *state.DB
	tracer oteltrace.TracerProvider
}

// buildEngine wires the Claude oracles, limiter and storage into an engine.
func buildEngine(cfg *config.Config, logger *zap.Logger, deps engineDeps) (*engine.Engine, *api.Client, error) {
	client, err := newAPIClient(cfg)
	if err != nil {
		return nil, nil, err
	}

	claude, err := oracle.NewClaude(oracle.ClaudeConfig{
		Client:               client,
		Model:                client.Model(),
		MaxTokens:            cfg.Anthropic.MaxTokens,
		DecisionTemperature:  cfg.Engine.Temperature,
		SynthesisTemperature: cfg.Engine.SynthesisTemperature,
		ReconcileTemperature: cfg.Engine.ReconcileTemperature,
		Logger:               logger,
	})
	if err != nil {
		return nil, nil, err
	}

	opts := []engine.Option{
		engine.WithReconciler(claude),
		engine.WithLimiter(engine.NewLimiter(cfg.Engine.MaxConcurrentCalls, cfg.Engine.RequestsPerSecond)),
		engine.WithLogger(logger),
		engine.WithMaxAgents(cfg.Engine.MaxAgents),
		engine.WithNodeTimeout(cfg.Engine.NodeTimeout),
		engine.WithDefaultGoal(cfg.Engine.Goal),
		engine.WithTracerProvider(deps.tracer),
	}
	if deps.store != nil {
		opts = append(opts, engine.WithSessionStore(deps.store), engine.WithRecorder(deps.store))
	}
	return engine.New(claude, claude, opts...), client, nil
}
