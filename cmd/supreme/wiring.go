package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"supreme-bot/internal/config"
	"supreme-bot/internal/flow"
	"supreme-bot/internal/genai"
	"supreme-bot/internal/kv"
	"supreme-bot/internal/responder"
	"supreme-bot/internal/storage"
	"supreme-bot/internal/ticket"
)

const (
	applicationFlow = "application"
	tradeFlow       = "trade"

	activeAppsDocument    = "active_apps"
	completedAppsDocument = "completed_apps"

	eventRetentionDays = 30
)

func openStore(cfg config.Config) (*storage.Store, error) {
	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("storage init: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return store, nil
}

// applicationEngine keeps application runs and the completed list in the KV backend.
func applicationEngine(cfg config.Config, backend *kv.Backend, logger *zap.Logger, opts ...flow.Option) (*flow.Engine, error) {
	def, err := flow.NewDefinition(applicationFlow, flow.StepsFromConfig(cfg.Application.Steps), nil)
	if err != nil {
		return nil, err
	}
	repo := flow.NewSnapshotRepository(backend.Document(activeAppsDocument), activeAppsDocument, logger)
	completed := flow.NewSnapshotCompletedSet(backend.Document(completedAppsDocument), completedAppsDocument, logger)
	opts = append([]flow.Option{flow.WithSkipWord(cfg.Application.SkipWord)}, opts...)
	return flow.NewEngine(def, repo, completed, logger, opts...), nil
}

// tradeEngine keeps ticket runs on the ticket rows.
func tradeEngine(cfg config.Config, repo *ticket.Repository, logger *zap.Logger, opts ...flow.Option) (*flow.Engine, error) {
	def, err := flow.NewDefinition(tradeFlow, flow.StepsFromConfig(cfg.Ticket.Steps), nil)
	if err != nil {
		return nil, err
	}
	opts = append([]flow.Option{flow.WithSkipWord(cfg.Ticket.SkipWord)}, opts...)
	return flow.NewEngine(def, repo, repo, logger, opts...), nil
}

// generator returns nil when no API key is configured; replies then fall back
// to trained entries and the apology.
func generator(cfg config.GenAIConfig, logger *zap.Logger) (responder.Generator, error) {
	client, err := genai.NewClient(cfg, logger)
	if errors.Is(err, genai.ErrNotConfigured) {
		logger.Warn("generative replies disabled: no api key")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

func budget(cfg config.BudgetConfig) *responder.Budget {
	return responder.NewBudget(cfg.MaxCalls, time.Duration(cfg.WindowSeconds)*time.Second)
}

// housekeeping drops idle budget windows and old flow events until ctx ends.
func housekeeping(ctx context.Context, store *storage.Store, b *responder.Budget, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.Prune(now)
			if err := store.CleanupFlowEvents(ctx, eventRetentionDays); err != nil {
				logger.Warn("flow event cleanup failed", zap.Error(err))
			}
		}
	}
}
