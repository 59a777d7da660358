// Package main runs the HTTP API for clinical trial eligibility matching.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/trial-matching-mcp-server/internal/api"
	"github.com/trial-matching-mcp-server/internal/cache"
	"github.com/trial-matching-mcp-server/internal/config"
	"github.com/trial-matching-mcp-server/internal/database"
	"github.com/trial-matching-mcp-server/internal/domain"
	"github.com/trial-matching-mcp-server/internal/llm"
	"github.com/trial-matching-mcp-server/internal/logging"
	"github.com/trial-matching-mcp-server/internal/preference"
	"github.com/trial-matching-mcp-server/internal/profile"
	"github.com/trial-matching-mcp-server/internal/repository"
	"github.com/trial-matching-mcp-server/internal/service"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := configManager.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation failed: %v\n", err)
		os.Exit(1)
	}

	cfg := configManager.GetConfig()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, configManager, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) error {
	cfg := configManager.GetConfig()

	store := profile.NewFileStore(cfg.Data.PatientProfilesDir, cfg.Data.TrialProfilesDir, logger)
	profiles := cache.NewMemoryCache(cfg.Cache.MemoryMaxItems, cfg.Cache.MemoryTTL)
	matching := service.NewMatchingService(store, profiles, cfg.Matching, logger)

	if configManager.GetRedisConnectionString() != "" {
		reasoningCache, err := cache.NewReasoningCache(cfg.Cache)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer reasoningCache.Close()
		matching.SetReasoningCache(reasoningCache)
		logger.Info("Reasoning cache enabled")
	}

	deps := api.Dependencies{Matching: matching, Logger: logger}

	if cfg.Database.Enabled {
		dbConfig := database.ConfigFromDomain(*configManager.GetDatabaseConfig())
		if err := database.Migrate(ctx, dbConfig.URL(), cfg.Database.MigrationsPath, logger); err != nil {
			return err
		}
		db, err := database.NewConnection(ctx, dbConfig, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		evaluations := repository.NewEvaluationRepository(db.Pool, logger)
		matching.SetResultRecorder(evaluations)
		deps.Evaluations = evaluations
		deps.Database = db
	}

	prefStore, err := openPreferenceStore(cfg.Preferences)
	if err != nil {
		return err
	}
	defer prefStore.Close()

	deps.Ranker = preference.NewRanker(prefStore, logger)

	if cfg.LLM.APIKey != "" {
		generator, err := llm.NewOpenAIGenerator(cfg.LLM, logger)
		if err != nil {
			return err
		}
		deps.Assistant = llm.NewAssistant(generator, logger)
	} else {
		logger.Warn("No LLM API key configured; preference questions and chat are disabled")
	}

	logger.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"environment": cfg.Environment,
	}).Info("Starting trial matching API server")

	return api.NewServer(configManager, deps).Start(ctx)
}

func openPreferenceStore(cfg domain.PreferencesConfig) (preference.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres":
		return preference.NewPostgresStoreFromURL(cfg.PostgresURL)
	default:
		return preference.NewSQLiteStore(cfg.SQLitePath)
	}
}
