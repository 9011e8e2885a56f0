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

// Package mutation applies user edits to leads. Every operation follows the
// same three phases:
//
//  1. compute the new field values from the current record
//  2. send the full merged record to the backend
//  3. on success only, patch the live View and the cache
//
// Nothing local is touched before the backend accepts the change, so a
// failed call needs no rollback. The error is returned to the caller.
package mutation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fieldcrm/leadsync/internal/bucket"
	"github.com/fieldcrm/leadsync/internal/cache"
	"github.com/fieldcrm/leadsync/internal/events"
	"github.com/fieldcrm/leadsync/internal/journal"
	"github.com/fieldcrm/leadsync/internal/models"
	"github.com/fieldcrm/leadsync/internal/remote"
)

var (
	// ErrDoneLocked rejects a move whose source bucket is Done.
	ErrDoneLocked = errors.New("lead is done and cannot be moved")

	// ErrLeadNotFound means the lead is in neither the view nor the cache.
	ErrLeadNotFound = errors.New("lead not found")

	// ErrStaleBucket rejects a move whose declared source is not the bucket
	// the lead currently classifies into.
	ErrStaleBucket = errors.New("lead is no longer in the declared bucket")
)

// Remote performs backend writes. Implemented by remote.Client.
type Remote interface {
	Mutate(ctx context.Context, resource, id, method string, body interface{}) (json.RawMessage, error)
}

// Journal records mutation attempts. Implemented by journal.Store.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Notifier announces successful mutations. Implemented by events.Publisher.
type Notifier interface {
	PublishLeadChanged(ctx context.Context, ev events.LeadChanged) error
}

// Pipeline runs lead mutations against the backend, the View and the cache.
type Pipeline struct {
	remote   Remote
	store    *cache.Store
	view     *View
	journal  Journal
	notifier Notifier
	now      func() time.Time
}

// PipelineConfig holds the dependencies for a Pipeline. Journal and
// Notifier are optional.
type PipelineConfig struct {
	Remote   Remote
	Store    *cache.Store
	View     *View
	Journal  Journal
	Notifier Notifier
	Now      func() time.Time
}

// NewPipeline creates a mutation pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	now := cfg.Now
	if now == nil {
		now = cfg.Store.Now
	}
	view := cfg.View
	if view == nil {
		view = NewView()
	}
	return &Pipeline{
		remote:   cfg.Remote,
		store:    cfg.Store,
		view:     view,
		journal:  cfg.Journal,
		notifier: cfg.Notifier,
		now:      now,
	}
}

// View returns the live view the pipeline writes to.
func (p *Pipeline) View() *View { return p.view }

// Move drags a lead from one bucket to another. Moving into Done sets the
// completion flag; moving among the dated buckets re-anchors the follow-up
// to the start of the target day. Moves out of Done are rejected without a
// backend call, whether Done is the declared source or the lead's current
// bucket. A declared source that no longer matches the lead's bucket is
// rejected the same way. Moving to the same bucket is a no-op.
func (p *Pipeline) Move(ctx context.Context, leadID string, from, to bucket.Bucket) (models.Lead, error) {
	entry := journal.Entry{
		LeadID:     leadID,
		Action:     journal.ActionMove,
		FromBucket: string(from),
		ToBucket:   string(to),
	}

	current, err := p.Lookup(ctx, leadID)
	if err != nil {
		return models.Lead{}, err
	}

	now := p.now()
	actual := bucket.Classify(current, now)
	if from == bucket.Done || actual == bucket.Done {
		slog.Info("move rejected, lead is done",
			"lead_id", leadID,
			"from", from,
			"to", to,
		)
		p.record(ctx, entry, ErrDoneLocked)
		return current, ErrDoneLocked
	}

	if from != actual {
		slog.Debug("move rejected, stale source bucket",
			"lead_id", leadID,
			"from", from,
			"actual", actual,
		)
		p.record(ctx, entry, ErrStaleBucket)
		return current, fmt.Errorf("lead %s is in %s, not %s: %w", leadID, actual, from, ErrStaleBucket)
	}

	if from == to {
		return current, nil
	}

	patch, err := computeMove(to, now)
	if err != nil {
		return current, err
	}

	updated, err := p.commit(ctx, current, patch)
	p.record(ctx, entry, err)
	if err != nil {
		return current, fmt.Errorf("move lead %s to %s: %w", leadID, to, err)
	}

	p.notify(ctx, updated, journal.ActionMove, to)
	return updated, nil
}

// MarkDone sets the completion flag and leaves the follow-up untouched. A
// lead that is already done is returned unchanged.
func (p *Pipeline) MarkDone(ctx context.Context, leadID string) (models.Lead, error) {
	entry := journal.Entry{
		LeadID:   leadID,
		Action:   journal.ActionDone,
		ToBucket: string(bucket.Done),
	}

	current, err := p.Lookup(ctx, leadID)
	if err != nil {
		return models.Lead{}, err
	}
	if current.IsDone() {
		return current, nil
	}
	entry.FromBucket = string(bucket.Classify(current, p.now()))

	patch, _ := computeMove(bucket.Done, p.now())
	updated, err := p.commit(ctx, current, patch)
	p.record(ctx, entry, err)
	if err != nil {
		return current, fmt.Errorf("mark lead %s done: %w", leadID, err)
	}

	p.notify(ctx, updated, journal.ActionDone, bucket.Done)
	return updated, nil
}

// Create posts a new lead and, on success, appends the created record to the
// View and the cache. The server's copy is used when it decodes to a lead
// with an identifier.
func (p *Pipeline) Create(ctx context.Context, lead models.Lead) (models.Lead, error) {
	entry := journal.Entry{LeadID: lead.ID, Action: journal.ActionCreate}

	resp, err := p.remote.Mutate(ctx, remote.ResourceLeads, "", http.MethodPost, lead)
	if err != nil {
		p.record(ctx, entry, err)
		return models.Lead{}, fmt.Errorf("create lead: %w", err)
	}

	created := lead
	if resp != nil {
		var fromServer models.Lead
		if err := json.Unmarshal(resp, &fromServer); err == nil && fromServer.ID != "" {
			created = fromServer
		} else {
			slog.Debug("create response not a lead, keeping submitted record", "error", err)
		}
	}

	entry.LeadID = created.ID
	p.record(ctx, entry, nil)

	p.view.Append(created)
	p.store.AppendLead(ctx, created)

	p.notify(ctx, created, journal.ActionCreate, bucket.Classify(created, p.now()))
	return created, nil
}

// Lookup finds the complete current record, in the View first and then in
// the cache.
func (p *Pipeline) Lookup(ctx context.Context, leadID string) (models.Lead, error) {
	if l, ok := p.view.Get(leadID); ok {
		return l, nil
	}
	if env, ok := p.store.Read(ctx); ok {
		if i := env.FindLead(leadID); i >= 0 {
			return env.Leads[i], nil
		}
	}
	return models.Lead{}, fmt.Errorf("lead %s: %w", leadID, ErrLeadNotFound)
}

// commit sends the merged record and, on success, patches View and cache.
func (p *Pipeline) commit(ctx context.Context, current models.Lead, patch models.LeadPatch) (models.Lead, error) {
	updated := patch.Apply(current)

	if _, err := p.remote.Mutate(ctx, remote.ResourceLeads, current.ID, http.MethodPut, updated); err != nil {
		return current, err
	}

	p.view.Apply(current.ID, patch)
	p.store.PatchLead(ctx, current.ID, patch)

	slog.Info("lead updated", "lead_id", current.ID)
	return updated, nil
}

func (p *Pipeline) record(ctx context.Context, e journal.Entry, cause error) {
	if p.journal == nil {
		return
	}
	e.Succeeded = cause == nil
	if cause != nil {
		e.Error = cause.Error()
	}
	if err := p.journal.Record(ctx, e); err != nil {
		slog.Warn("failed to journal mutation", "lead_id", e.LeadID, "error", err)
	}
}

func (p *Pipeline) notify(ctx context.Context, l models.Lead, action string, b bucket.Bucket) {
	if p.notifier == nil {
		return
	}
	ev := events.LeadChanged{
		LeadID: l.ID,
		Action: action,
		Bucket: string(b),
		Lead:   l,
	}
	if err := p.notifier.PublishLeadChanged(ctx, ev); err != nil {
		slog.Warn("failed to publish lead change", "lead_id", l.ID, "error", err)
	}
}

// computeMove returns the field changes for moving a lead into target.
func computeMove(target bucket.Bucket, now time.Time) (models.LeadPatch, error) {
	if target == bucket.Done {
		return models.LeadPatch{FollowUpStatus: models.String(models.FollowUpDone)}, nil
	}

	anchor, ok := bucket.Anchor(target, now)
	if !ok {
		return models.LeadPatch{}, fmt.Errorf("unknown target bucket %q", target)
	}
	return models.LeadPatch{FollowUp: models.String(bucket.FormatFollowUp(anchor))}, nil
}
