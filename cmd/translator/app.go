package main

import (
	"context"
	"fmt"
	"time"

	"github.com/yourorg/genai-translator/internal/config"
	"github.com/yourorg/genai-translator/internal/llm"
	"github.com/yourorg/genai-translator/internal/logger"
	"github.com/yourorg/genai-translator/internal/store"
	"github.com/yourorg/genai-translator/internal/tracking"
	"github.com/yourorg/genai-translator/internal/translate"
	"github.com/yourorg/genai-translator/pkg/types"
)

// tracker is what both tracking backends offer.
type tracker interface {
	EnsureExperiment(ctx context.Context, name string) (string, error)
	LogRun(ctx context.Context, experimentID string, run *types.Run) error
}

// app is the process-wide wiring shared by serve and translate.
type app struct {
	handler      *translate.Handler
	store        store.Store // nil unless the sqlite backend is active
	experimentID string
}

// newApp wires the completion client and the tracking backend. An unreachable
// tracking server is not fatal: the handler then answers every request with the
// tracking-unavailable message.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{}

	var backend tracker
	switch cfg.Tracking.Backend {
	case config.BackendSQLite:
		st, err := store.NewSQLiteStore(cfg.Tracking.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open tracking db: %w", err)
		}
		a.store = st
		backend = st
	default:
		backend = tracking.NewMLflowClient(cfg.Tracking.URI, log.WithComponent("mlflow").Logger)
	}

	resolveCtx, cancel := resolveContext(ctx)
	defer cancel()
	expID, err := backend.EnsureExperiment(resolveCtx, cfg.Tracking.Experiment)
	if err != nil {
		log.WithError(err).Warn("tracking unavailable", "backend", cfg.Tracking.Backend, "uri", cfg.Tracking.URI)
		expID = ""
	} else {
		log.Info("tracking configured",
			"backend", cfg.Tracking.Backend,
			"uri", cfg.Tracking.URI,
			"experiment", cfg.Tracking.Experiment,
			"experiment_id", expID,
			"api_key_configured", cfg.LLM.APIKey != "")
	}
	a.experimentID = expID

	client := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Timeout, log.WithComponent("llm").Logger)
	a.handler = translate.New(translate.Config{
		Model:        cfg.LLM.Model,
		Temperature:  cfg.LLM.Temperature,
		ArtifactDir:  cfg.Artifacts.Dir,
		ExperimentID: expID,
	}, client, backend, log.WithComponent("translate").Logger)

	return a, nil
}

func (a *app) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// startupTimeout bounds experiment resolution so an unreachable server does not block startup.
const startupTimeout = 10 * time.Second

func resolveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, startupTimeout)
}
