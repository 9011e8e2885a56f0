// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// leadsync — Lead Sync Service
//
// Entry point for the local sync service the CRM view talks to. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to Redis (cache + change events) and PostgreSQL (journal), when configured
//  3. Builds the backend client with session or client-credentials auth
//  4. Serves the board and mutation endpoints
//  5. Revalidates the cache periodically and applies changes from other sessions
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fieldcrm/leadsync/internal/api"
	"github.com/fieldcrm/leadsync/internal/cache"
	"github.com/fieldcrm/leadsync/internal/config"
	"github.com/fieldcrm/leadsync/internal/events"
	"github.com/fieldcrm/leadsync/internal/journal"
	"github.com/fieldcrm/leadsync/internal/models"
	"github.com/fieldcrm/leadsync/internal/mutation"
	"github.com/fieldcrm/leadsync/internal/prefetch"
	"github.com/fieldcrm/leadsync/internal/remote"
)

func main() {
	// Structured JSON logging
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("starting leadsync service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)

	slog.Info("configuration loaded",
		"api", cfg.APIBaseURL,
		"cache_ttl", cfg.CacheTTL,
		"prefetch_cooldown", cfg.PrefetchCooldown,
		"refresh_interval", cfg.RefreshInterval,
		"redis", cfg.RedisURL != "",
		"journal", cfg.JournalDatabaseURL != "",
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Cache backend (Redis or in-process) ---
	var (
		backend   cache.Backend
		rdb       *redis.Client
		publisher *events.Publisher
	)
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)

		redisBackend := cache.NewRedisBackend(rdb)
		if err := redisBackend.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis")

		backend = redisBackend
		publisher = events.NewPublisher(rdb, cfg.EventsChannel)
	} else {
		slog.Warn("no redis_url configured, using in-process cache")
		backend = cache.NewMemoryBackend()
	}

	store := cache.NewStore(backend,
		cache.WithKey(cfg.CacheKey),
		cache.WithTTL(cfg.CacheTTL),
	)

	// --- Mutation journal (PostgreSQL) ---
	var (
		pgPool       *pgxpool.Pool
		journalStore *journal.Store
	)
	if cfg.JournalDatabaseURL != "" {
		pgPool, err = pgxpool.New(ctx, cfg.JournalDatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		if err := pgPool.Ping(ctx); err != nil {
			slog.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")

		journalStore, err = journal.NewStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise mutation journal", "error", err)
			os.Exit(1)
		}
	}

	// --- Backend client ---
	httpClient := remote.NewHTTPClient(ctx, remote.Credentials{
		SessionToken: cfg.APIToken,
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		TokenURL:     cfg.OAuth.TokenURL,
		Scopes:       cfg.OAuth.Scopes,
	})
	client := remote.NewClient(remote.ClientConfig{
		HTTPClient: httpClient,
		BaseURL:    cfg.APIBaseURL,
		Timeout:    cfg.APITimeout,
		Paths:      cfg.Resources,
	})

	// --- Prefetch ---
	orch := prefetch.NewOrchestrator(prefetch.OrchestratorConfig{
		Fetcher:     client,
		Store:       store,
		Coordinator: prefetch.NewCoordinator(cfg.PrefetchCooldown, nil),
		Freshness:   cfg.Freshness,
	})
	refresher := prefetch.NewRefresher(orch, cfg.RefreshInterval)

	// --- Mutation pipeline ---
	pipelineCfg := mutation.PipelineConfig{
		Remote: client,
		Store:  store,
		View:   mutation.NewView(),
	}
	if journalStore != nil {
		pipelineCfg.Journal = journalStore
	}
	if publisher != nil {
		pipelineCfg.Notifier = publisher
	}
	pipeline := mutation.NewPipeline(pipelineCfg)

	// --- Changes from other sessions ---
	var listeners sync.WaitGroup
	if publisher != nil {
		listeners.Add(1)
		go func() {
			defer listeners.Done()
			err := publisher.Listen(ctx, func(ev events.LeadChanged) {
				slog.Debug("applying remote lead change", "lead_id", ev.LeadID, "action", ev.Action)
				pipeline.View().Upsert(ev.Lead)
			})
			if err != nil {
				slog.Error("lead change listener stopped", "error", err)
			}
		}()
	}

	// --- HTTP surface ---
	handlerCfg := api.HandlerConfig{
		Orchestrator: orch,
		Pipeline:     pipeline,
		Store:        store,
		Identity: func(ctx context.Context) (models.Identity, bool) {
			return cache.LoadIdentity(ctx, backend, cfg.ProfileKey)
		},
	}
	if journalStore != nil {
		handlerCfg.History = journalStore
	}
	handler := api.NewHandler(handlerCfg)

	mux := handler.Routes()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		// Check Redis
		if publisher != nil {
			if err := publisher.Ping(r.Context()); err != nil {
				http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		// Check Postgres
		if journalStore != nil {
			if err := journalStore.Ping(r.Context()); err != nil {
				http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	ready, err := api.Serve(ctx, cfg.Port, mux)
	if err != nil {
		slog.Error("failed to start api server", "error", err)
		os.Exit(1)
	}
	<-ready

	// Warm the cache so the first board request is served locally.
	orch.Prefetch(ctx)
	refresher.Start(ctx)

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel() // Stop all background goroutines

	refresher.Stop()
	orch.Wait()
	listeners.Wait()

	if rdb != nil {
		rdb.Close()
	}
	if pgPool != nil {
		pgPool.Close()
	}

	slog.Info("leadsync service stopped")
}
