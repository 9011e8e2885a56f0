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

// Package cache persists the lead envelope (statuses, sources, employees,
// leads and a capture timestamp) under a single key with TTL-aware reads.
//
// The cache is advisory. Every storage or decode failure is logged and
// treated as a miss; nothing here returns an error to the caller.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/fieldcrm/leadsync/internal/models"
)

const (
	// DefaultTTL is how long an envelope is served after it was written.
	DefaultTTL = 5 * time.Minute

	// DefaultKey is the storage key of the serialized envelope.
	DefaultKey = "leadsync:cache"

	// retentionFactor keeps the raw entry around a little past its TTL so
	// the expiry path in Read is what removes it.
	retentionFactor = 2
)

// Store reads and writes the lead envelope.
type Store struct {
	backend Backend
	key     string
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithTTL overrides the envelope lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a cache store over the given backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		key:     DefaultKey,
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured envelope lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Now returns the store's notion of the current instant.
func (s *Store) Now() time.Time { return s.now() }

// Read returns the envelope if present and no older than the TTL. An expired
// envelope is removed and reported as absent.
func (s *Store) Read(ctx context.Context) (*models.Envelope, bool) {
	data, err := s.backend.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("cache read failed, treating as empty", "key", s.key, "error", err)
		}
		return nil, false
	}

	env, err := models.DecodeEnvelope(data)
	if err != nil {
		slog.Warn("cache entry unreadable, treating as empty", "key", s.key, "error", err)
		return nil, false
	}

	if age := env.Age(s.now()); age > s.ttl {
		slog.Debug("cache entry expired", "key", s.key, "age", age)
		if err := s.backend.Del(ctx, s.key); err != nil {
			slog.Warn("failed to remove expired cache entry", "key", s.key, "error", err)
		}
		return nil, false
	}

	return env, true
}

// Write stamps the envelope with the current instant and replaces whatever
// was stored before. The caller's envelope is updated in place.
func (s *Store) Write(ctx context.Context, env *models.Envelope) {
	env.Normalize()
	env.CapturedAt = s.now()
	s.persist(ctx, env)
}

// PatchLead merges patch into the cached lead with the given identifier and
// bumps the capture timestamp. It does nothing when there is no envelope or
// no matching lead.
func (s *Store) PatchLead(ctx context.Context, leadID string, patch models.LeadPatch) {
	env, ok := s.Read(ctx)
	if !ok {
		return
	}

	i := env.FindLead(leadID)
	if i < 0 {
		slog.Debug("cache patch skipped, lead not cached", "lead_id", leadID)
		return
	}

	env.Leads[i] = patch.Apply(env.Leads[i])
	env.CapturedAt = s.now()
	s.persist(ctx, env)
}

// AppendLead adds a newly created lead to the cached collection. It does
// nothing when there is no envelope.
func (s *Store) AppendLead(ctx context.Context, lead models.Lead) {
	env, ok := s.Read(ctx)
	if !ok {
		return
	}

	env.Leads = append(env.Leads, lead)
	env.CapturedAt = s.now()
	s.persist(ctx, env)
}

// Clear removes the envelope unconditionally.
func (s *Store) Clear(ctx context.Context) {
	if err := s.backend.Del(ctx, s.key); err != nil {
		slog.Warn("cache clear failed", "key", s.key, "error", err)
		return
	}
	slog.Info("cache cleared", "key", s.key)
}

func (s *Store) persist(ctx context.Context, env *models.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		slog.Warn("cache encode failed", "key", s.key, "error", err)
		return
	}
	if err := s.backend.Set(ctx, s.key, data, s.ttl*retentionFactor); err != nil {
		slog.Warn("cache write failed", "key", s.key, "error", err)
	}
}
