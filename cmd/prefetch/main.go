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

// leadsync — Cache Warmer
//
// Standalone CLI tool that fills the shared lead cache in one pass and
// reports the resulting board. Intended for warming Redis before a shift
// starts or after a backend migration.
//
// Usage:
//
//	go run ./cmd/prefetch/ [--user 42] [--at 2026-03-10]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fieldcrm/leadsync/internal/bucket"
	"github.com/fieldcrm/leadsync/internal/cache"
	"github.com/fieldcrm/leadsync/internal/config"
	"github.com/fieldcrm/leadsync/internal/models"
	"github.com/fieldcrm/leadsync/internal/prefetch"
	"github.com/fieldcrm/leadsync/internal/projection"
	"github.com/fieldcrm/leadsync/internal/remote"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	userFlag := flag.String("user", "", "Report the board as this restricted user ID (optional; empty = all leads)")
	atFlag := flag.String("at", "", "Reference date for bucketing, YYYY-MM-DD (optional; empty = now)")
	flag.Parse()

	ref := time.Now()
	if *atFlag != "" {
		parsed, err := time.ParseInLocation("2006-01-02", *atFlag, time.Local)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --at date %q: %v\n", *atFlag, err)
			os.Exit(1)
		}
		ref = parsed
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to Redis ---
	var backend cache.Backend
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		redisBackend := cache.NewRedisBackend(rdb)
		if err := redisBackend.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis")
		backend = redisBackend
	} else {
		slog.Warn("no redis_url configured, the warmed cache will not outlive this process")
		backend = cache.NewMemoryBackend()
	}

	store := cache.NewStore(backend,
		cache.WithKey(cfg.CacheKey),
		cache.WithTTL(cfg.CacheTTL),
	)

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

	// --- Run Prefetch ---
	start := time.Now()
	orch := prefetch.NewOrchestrator(prefetch.OrchestratorConfig{
		Fetcher:     client,
		Store:       store,
		Coordinator: prefetch.NewCoordinator(cfg.PrefetchCooldown, nil),
	})
	env := orch.Prefetch(ctx)
	if env == nil {
		slog.Error("prefetch was refused")
		os.Exit(1)
	}

	leads := env.Leads
	if *userFlag != "" {
		identity := models.Identity{Employee: models.Employee{ID: *userFlag}}
		leads = projection.ProjectLeads(leads, identity)
	}
	board := bucket.Partition(leads, ref)

	// --- Summary ---
	slog.Info("prefetch complete",
		"statuses", len(env.Statuses),
		"sources", len(env.Sources),
		"employees", len(env.Employees),
		"leads", len(env.Leads),
		"elapsed", time.Since(start),
	)

	for _, k := range bucket.All {
		slog.Info("bucket",
			"bucket", k,
			"leads", len(board.Column(k)),
			"user", *userFlag,
		)
	}
}
