// Package mcp exposes eligibility matching as Model Context Protocol tools.
// The lite server needs no external services: profiles come from disk,
// patient profiles are cached in memory and preferences live in SQLite.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/trial-matching-mcp-server/internal/cache"
	litecfg "github.com/trial-matching-mcp-server/internal/config"
	"github.com/trial-matching-mcp-server/internal/domain"
	"github.com/trial-matching-mcp-server/internal/llm"
	"github.com/trial-matching-mcp-server/internal/logging"
	"github.com/trial-matching-mcp-server/internal/preference"
	"github.com/trial-matching-mcp-server/internal/profile"
	"github.com/trial-matching-mcp-server/internal/service"
)

const (
	serverName    = "trial-matching-mcp-server-lite"
	serverVersion = "v0.1.0"
)

// LiteServer is a lightweight MCP server that requires no external databases.
type LiteServer struct {
	config          *litecfg.LiteConfig
	mcpServer       *mcp.Server
	matching        *service.MatchingService
	ranker          *preference.Ranker
	preferenceStore preference.Store
	generator       llm.Generator
	assistant       *llm.Assistant
	cache           *cache.MemoryCache
	logger          *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithPreferenceStore sets a custom preference store.
func WithPreferenceStore(store preference.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.preferenceStore = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// WithGenerator enables the generation-backed tools with the given generator.
func WithGenerator(generator llm.Generator) LiteServerOption {
	return func(s *LiteServer) error {
		s.generator = generator
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{
		config: cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	server.cache = cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)
	store := profile.NewFileStore(cfg.PatientsDir, cfg.TrialsDir, server.logger)
	server.matching = service.NewMatchingService(store, server.cache,
		domain.MatchingConfig{MaxConcurrency: cfg.MaxConcurrency}, server.logger)

	if server.preferenceStore == nil {
		prefs, err := preference.NewSQLiteStore(cfg.PreferencesDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create preference store: %w", err)
		}
		server.preferenceStore = prefs
	}
	server.ranker = preference.NewRanker(server.preferenceStore, server.logger)

	if server.generator == nil && cfg.OpenAIAPIKey != "" {
		gen, err := llm.NewOpenAIGenerator(domain.LLMConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
		}, server.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create text generator: %w", err)
		}
		server.generator = gen
	}
	if server.generator != nil {
		server.assistant = llm.NewAssistant(server.generator, server.logger)
	}

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)
	server.registerTools()

	server.logger.WithFields(logrus.Fields{
		"patients_dir": cfg.PatientsDir,
		"trials_dir":   cfg.TrialsDir,
		"generation":   server.assistant != nil,
	}).Info("Lite server initialized successfully")
	return server, nil
}

// Start serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.Info("Starting trial matching MCP server (lite)")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.preferenceStore != nil {
		if err := s.preferenceStore.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close preference store")
			return err
		}
	}
	return nil
}

// Matching returns the matching service, used by the batch command.
func (s *LiteServer) Matching() *service.MatchingService {
	return s.matching
}

// GetCache returns the memory cache for external access.
func (s *LiteServer) GetCache() *cache.MemoryCache {
	return s.cache
}
