package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/modelcouncil/council/internal/config"
	"github.com/modelcouncil/council/internal/council"
	"github.com/modelcouncil/council/internal/llm"
	"github.com/modelcouncil/council/internal/llm/providers"
	"github.com/modelcouncil/council/internal/observability"
	"github.com/modelcouncil/council/internal/registry"
	"github.com/modelcouncil/council/internal/store"
	domain "github.com/modelcouncil/council/pkg/council"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// processDeps holds everything the serve command needs once configuration
// is loaded: the model registry, a resolver over live provider clients,
// the conversation store, and the orchestrator built on top of them.
type processDeps struct {
	cfg     *config.Config
	reg     *registry.Registry
	orch    *council.Orchestrator
	store   store.Store
	closers []func() error
}

func (d *processDeps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			slog.Warn("error during shutdown", "error", err)
		}
	}
}

// buildProcessDeps wires a Registry, a live ClientResolver keyed by
// provider_tag, a ConversationStore (SQL-backed when database.url is set,
// in-memory otherwise), and the Orchestrator over them.
func buildProcessDeps(ctx context.Context, cfg *config.Config) (*processDeps, error) {
	deps := &processDeps{cfg: cfg}

	descriptors := make([]domain.ModelDescriptor, 0, len(cfg.Council.Models))
	for _, m := range cfg.Council.Models {
		descriptors = append(descriptors, domain.ModelDescriptor{
			ID:          m.ID,
			DisplayName: m.DisplayName,
			ProviderTag: m.ProviderTag,
			IsChairman:  m.ID == cfg.Council.ChairmanModelID,
		})
	}
	reg, err := registry.New(descriptors)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	deps.reg = reg

	clients := make(map[string]llm.Client, len(cfg.Council.Models))
	for _, m := range cfg.Council.Models {
		client, err := buildProviderClient(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("build client for model %q: %w", m.ID, err)
		}
		clients[m.ID] = client
	}
	resolver := func(modelID string) (llm.Client, bool) {
		c, ok := clients[modelID]
		return c, ok
	}

	st, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build store: %w", err)
	}
	deps.store = st
	if closeStore != nil {
		deps.closers = append(deps.closers, closeStore)
	}

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{ServiceName: "council"})
	deps.closers = append(deps.closers, func() error { return shutdownTracer(context.Background()) })

	perCall, stage1, stage2, stage3, turn, outBuf := cfg.Council.StageDeadlines()
	deadlines := council.Deadlines{
		PerCall:      perCall,
		Stage1:       stage1,
		Stage2:       stage2,
		Stage3:       stage3,
		Turn:         turn,
		OutputBuffer: outBuf,
	}
	deps.orch = council.NewOrchestrator(reg, st, resolver, deadlines, tracer)
	return deps, nil
}

// buildProviderClient constructs the llm.Client for one configured model
// based on its provider_tag.
func buildProviderClient(ctx context.Context, m config.ModelConfig) (llm.Client, error) {
	apiKeyEnv := m.APIKeyEnv
	if apiKeyEnv == "" {
		apiKeyEnv = defaultAPIKeyEnv(m.ProviderTag)
	}
	apiKey := os.Getenv(apiKeyEnv)

	switch m.ProviderTag {
	case "anthropic":
		return providers.NewAnthropicClient(providers.AnthropicConfig{
			APIKey:     apiKey,
			BaseURL:    m.BaseURL,
			MaxRetries: 2,
			RetryDelay: time.Second,
		})
	case "openai":
		return providers.NewOpenAIClient(providers.OpenAIConfig{
			APIKey:     apiKey,
			BaseURL:    m.BaseURL,
			MaxRetries: 2,
			RetryDelay: time.Second,
		})
	case "google":
		return providers.NewGoogleClient(ctx, providers.GoogleConfig{
			APIKey:     apiKey,
			MaxRetries: 2,
			RetryDelay: time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown provider_tag %q", m.ProviderTag)
	}
}

func defaultAPIKeyEnv(providerTag string) string {
	switch providerTag {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	default:
		return ""
	}
}

// buildStore opens a SQLStore against database.url when configured,
// falling back to an in-memory store for local/demo use. The returned
// close func, if non-nil, must run before process exit.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, func() error, error) {
	if cfg.Database.URL == "" {
		return store.NewMemoryStore(), nil, nil
	}

	driver := cfg.Database.Driver
	if driver == "" {
		driver = "postgres"
	}
	db, err := sql.Open(driver, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Database.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxConnections)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	var locker *store.DBLocker
	if cfg.Database.DistributedLock {
		locker = store.NewDBLocker(db, store.DefaultDBLockerConfig())
	}
	sqlStore := store.NewSQLStore(db, locker)

	closeFn := func() error {
		if locker != nil {
			locker.Close()
		}
		return db.Close()
	}
	return sqlStore, closeFn, nil
}
