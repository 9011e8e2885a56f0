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

// Package journal keeps a Postgres audit trail of lead mutation attempts,
// successful or not. The trail is write-mostly and never consulted by the
// mutation path itself.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Actions recorded in the journal.
const (
	ActionMove   = "move"
	ActionDone   = "done"
	ActionCreate = "create"
)

// Entry is one mutation attempt.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	LeadID     string    `json:"leadId"`
	Action     string    `json:"action"`
	FromBucket string    `json:"from,omitempty"`
	ToBucket   string    `json:"to,omitempty"`
	Succeeded  bool      `json:"succeeded"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store persists journal entries in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a journal store backed by the given pool and ensures the
// lead_mutations table exists.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure journal schema: %w", err)
	}
	slog.Info("mutation journal initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS lead_mutations (
			id          UUID PRIMARY KEY,
			lead_id     TEXT NOT NULL,
			action      TEXT NOT NULL,
			from_bucket TEXT DEFAULT '',
			to_bucket   TEXT DEFAULT '',
			succeeded   BOOLEAN NOT NULL,
			error       TEXT DEFAULT '',
			created_at  TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_lead_mutations_lead ON lead_mutations(lead_id, created_at);
	`)
	return err
}

// Record inserts an entry. A zero ID or timestamp is filled in.
func (s *Store) Record(ctx context.Context, e Entry) error {
	e = prepare(e, time.Now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lead_mutations
			(id, lead_id, action, from_bucket, to_bucket, succeeded, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID.String(), e.LeadID, e.Action, e.FromBucket, e.ToBucket, e.Succeeded, e.Error, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// ListByLead returns the most recent entries for a lead, newest first.
func (s *Store) ListByLead(ctx context.Context, leadID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, lead_id, action, from_bucket, to_bucket,
		       succeeded, error, created_at
		FROM lead_mutations
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal for lead %s: %w", leadID, err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// Ping checks the Postgres connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

func prepare(e Entry, now time.Time) Entry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return e
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e  Entry
			id string
		)
		if err := rows.Scan(
			&id, &e.LeadID, &e.Action, &e.FromBucket, &e.ToBucket,
			&e.Succeeded, &e.Error, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("journal entry id %q: %w", id, err)
		}
		e.ID = parsed
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
