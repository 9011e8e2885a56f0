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

// Package prefetch fills the lead cache from the backend. It fetches the four
// collections concurrently, absorbs per-resource failures, and writes one
// envelope once every fetch has settled. A Coordinator keeps repeated
// triggers from hammering the backend.
package prefetch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fieldcrm/leadsync/internal/cache"
	"github.com/fieldcrm/leadsync/internal/models"
	"github.com/fieldcrm/leadsync/internal/remote"
)

// DefaultFreshness is how long a cached envelope is served without
// triggering a background revalidation.
const DefaultFreshness = 60 * time.Second

// Fetcher reads one backend collection. Implemented by remote.Client.
type Fetcher interface {
	Fetch(ctx context.Context, resource string) ([]json.RawMessage, error)
}

// Orchestrator runs prefetches through a shared Coordinator.
type Orchestrator struct {
	fetcher   Fetcher
	store     *cache.Store
	coord     *Coordinator
	freshness time.Duration

	// background tracks revalidations started by Load.
	background sync.WaitGroup
}

// OrchestratorConfig holds the dependencies for an Orchestrator.
type OrchestratorConfig struct {
	Fetcher     Fetcher
	Store       *cache.Store
	Coordinator *Coordinator
	Freshness   time.Duration
}

// NewOrchestrator creates a prefetch orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	coord := cfg.Coordinator
	if coord == nil {
		coord = NewCoordinator(DefaultCooldown, cfg.Store.Now)
	}
	freshness := cfg.Freshness
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	return &Orchestrator{
		fetcher:   cfg.Fetcher,
		store:     cfg.Store,
		coord:     coord,
		freshness: freshness,
	}
}

// Prefetch fetches all four collections and replaces the cached envelope.
//
// When the Coordinator refuses (a prefetch is running or one started within
// the cooldown) the current cache contents are returned instead, which may
// be nil. A prefetch that ran always returns a non-nil envelope, with empty
// collections for every resource that failed. Cancelling ctx after the
// Coordinator accepts does not stop the fetches.
func (o *Orchestrator) Prefetch(ctx context.Context) *models.Envelope {
	if !o.coord.TryAcquire() {
		slog.Debug("prefetch refused, serving cache", "cooldown", o.coord.Cooldown())
		env, _ := o.store.Read(ctx)
		return env
	}
	defer o.coord.Release()

	// Once started, a prefetch runs to completion. Only the accessor's own
	// timeout can cut a fetch short; a caller going away must not turn a
	// good cache into empty collections.
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	var (
		statuses, sources, employees, leads []json.RawMessage
		failed                              int
		mu                                  sync.Mutex
	)

	fetch := func(resource string, dst *[]json.RawMessage) func() error {
		return func() error {
			items, err := o.fetcher.Fetch(ctx, resource)
			if err != nil {
				slog.Warn("prefetch resource failed, using empty collection",
					"resource", resource,
					"error", err,
				)
				mu.Lock()
				failed++
				mu.Unlock()
				items = []json.RawMessage{}
			}
			*dst = items
			return nil
		}
	}

	// Failures are substituted inside each goroutine so one resource can
	// never cancel the others.
	var g errgroup.Group
	g.Go(fetch(remote.ResourceStatuses, &statuses))
	g.Go(fetch(remote.ResourceSources, &sources))
	g.Go(fetch(remote.ResourceEmployees, &employees))
	g.Go(fetch(remote.ResourceLeads, &leads))
	_ = g.Wait()

	env := &models.Envelope{
		Statuses:  remote.Decode[models.Option](remote.ResourceStatuses, statuses),
		Sources:   remote.Decode[models.Option](remote.ResourceSources, sources),
		Employees: remote.Decode[models.Employee](remote.ResourceEmployees, employees),
		Leads:     remote.Decode[models.Lead](remote.ResourceLeads, leads),
	}
	o.store.Write(ctx, env)

	slog.Info("prefetch complete",
		"statuses", len(env.Statuses),
		"sources", len(env.Sources),
		"employees", len(env.Employees),
		"leads", len(env.Leads),
		"failed_resources", failed,
		"elapsed", time.Since(start),
	)
	return env
}

// Load serves the cache with stale-while-revalidate semantics. An envelope
// younger than the freshness threshold is returned as is. An older one that
// is still within the TTL is returned immediately and a background prefetch
// is started. Without a cached envelope the prefetch runs synchronously.
func (o *Orchestrator) Load(ctx context.Context) *models.Envelope {
	env, ok := o.store.Read(ctx)
	if !ok {
		return o.Prefetch(ctx)
	}

	if age := env.Age(o.store.Now()); age > o.freshness {
		slog.Debug("cache stale, revalidating in background", "age", age)
		o.revalidate(context.WithoutCancel(ctx))
	}
	return env
}

func (o *Orchestrator) revalidate(ctx context.Context) {
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		o.Prefetch(ctx)
	}()
}

// Wait blocks until every background revalidation has finished.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}
