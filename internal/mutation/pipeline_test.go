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

package mutation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fieldcrm/leadsync/internal/bucket"
	"github.com/fieldcrm/leadsync/internal/cache"
	"github.com/fieldcrm/leadsync/internal/events"
	"github.com/fieldcrm/leadsync/internal/journal"
	"github.com/fieldcrm/leadsync/internal/models"
	"github.com/fieldcrm/leadsync/internal/remote"
)

var now = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

type call struct {
	resource, id, method string
	body                 map[string]interface{}
}

// mockRemote records calls and returns a canned response or error.
type mockRemote struct {
	mu       sync.Mutex
	calls    []call
	err      error
	response json.RawMessage
}

func (m *mockRemote) Mutate(_ context.Context, resource, id, method string, body interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var decoded map[string]interface{}
	_ = json.Unmarshal(data, &decoded)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call{resource: resource, id: id, method: method, body: decoded})
	return m.response, m.err
}

type mockJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (m *mockJournal) Record(_ context.Context, e journal.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

type mockNotifier struct {
	mu     sync.Mutex
	events []events.LeadChanged
	err    error
}

func (m *mockNotifier) PublishLeadChanged(_ context.Context, ev events.LeadChanged) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

const seedLeads = `[
	{"id": "up", "title": "Upcoming lead", "followUp": "2026-03-14T10:45:00Z", "source": "Website",
	 "assignedTo": {"id": 42}, "company": "Acme", "crmScore": 88},
	{"id": "done", "title": "Closed", "followUp": "2026-03-01T09:00:00Z", "followUpStatus": "done"},
	{"id": "undated", "title": "No date"}
]`

type fixture struct {
	remote   *mockRemote
	journal  *mockJournal
	notifier *mockNotifier
	store    *cache.Store
	view     *View
	pipeline *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	var leads []models.Lead
	if err := json.Unmarshal([]byte(seedLeads), &leads); err != nil {
		t.Fatalf("decode seed: %v", err)
	}

	clock := func() time.Time { return now }
	store := cache.NewStore(cache.NewMemoryBackend(), cache.WithClock(clock))
	store.Write(context.Background(), &models.Envelope{Leads: leads})

	view := NewView()
	view.Replace(leads)

	f := &fixture{
		remote:   &mockRemote{},
		journal:  &mockJournal{},
		notifier: &mockNotifier{},
		store:    store,
		view:     view,
	}
	f.pipeline = NewPipeline(PipelineConfig{
		Remote:   f.remote,
		Store:    store,
		View:     view,
		Journal:  f.journal,
		Notifier: f.notifier,
		Now:      clock,
	})
	return f
}

func (f *fixture) cached(t *testing.T, id string) models.Lead {
	t.Helper()
	env, ok := f.store.Read(context.Background())
	if !ok {
		t.Fatal("cache empty")
	}
	i := env.FindLead(id)
	if i < 0 {
		t.Fatalf("lead %s not cached", id)
	}
	return env.Leads[i]
}

func (f *fixture) live(t *testing.T, id string) models.Lead {
	t.Helper()
	l, ok := f.view.Get(id)
	if !ok {
		t.Fatalf("lead %s not in view", id)
	}
	return l
}

func followUp(l models.Lead) string {
	if l.FollowUp == nil {
		return ""
	}
	return *l.FollowUp
}

// TestMove_DoneLocked verifies a done lead cannot be dragged anywhere.
func TestMove_DoneLocked(t *testing.T) {
	for _, target := range []bucket.Bucket{bucket.Overdue, bucket.DueToday, bucket.Upcoming} {
		t.Run(string(target), func(t *testing.T) {
			f := newFixture(t)
			before := f.live(t, "done")

			_, err := f.pipeline.Move(context.Background(), "done", bucket.Done, target)
			if !errors.Is(err, ErrDoneLocked) {
				t.Fatalf("err = %v, want ErrDoneLocked", err)
			}
			if len(f.remote.calls) != 0 {
				t.Errorf("expected no remote call, got %d", len(f.remote.calls))
			}

			after := f.live(t, "done")
			if followUp(after) != followUp(before) || after.FollowUpStatus != before.FollowUpStatus {
				t.Errorf("view changed: %+v", after)
			}
			if len(f.journal.entries) != 1 || f.journal.entries[0].Succeeded {
				t.Errorf("rejection should be journaled as failed: %+v", f.journal.entries)
			}
		})
	}
}

// TestMove_DoneLockedByClassification verifies the lock holds even when the
// caller declares a different source bucket.
func TestMove_DoneLockedByClassification(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Move(context.Background(), "done", bucket.Upcoming, bucket.DueToday)
	if !errors.Is(err, ErrDoneLocked) {
		t.Fatalf("err = %v, want ErrDoneLocked", err)
	}
	if len(f.remote.calls) != 0 {
		t.Errorf("expected no remote call, got %d", len(f.remote.calls))
	}
}

// TestMove_Recompute verifies a move to Due Today re-anchors the follow-up
// and sends exactly one full-record update.
func TestMove_Recompute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	updated, err := f.pipeline.Move(ctx, "up", bucket.Upcoming, bucket.DueToday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const wantFollowUp = "2026-03-10T00:00:00Z"
	if followUp(updated) != wantFollowUp {
		t.Errorf("followUp = %q, want %q", followUp(updated), wantFollowUp)
	}

	if len(f.remote.calls) != 1 {
		t.Fatalf("expected 1 remote call, got %d", len(f.remote.calls))
	}
	got := f.remote.calls[0]
	if got.method != http.MethodPut || got.resource != remote.ResourceLeads || got.id != "up" {
		t.Errorf("unexpected call: %s %s/%s", got.method, got.resource, got.id)
	}

	wantBody := map[string]interface{}{
		"id":         "up",
		"title":      "Upcoming lead",
		"followUp":   wantFollowUp,
		"source":     "Website",
		"assignedTo": map[string]interface{}{"id": float64(42)},
		"company":    "Acme",
		"crmScore":   float64(88),
	}
	if diff := cmp.Diff(wantBody, got.body); diff != "" {
		t.Errorf("PUT body mismatch (-want +got):\n%s", diff)
	}

	if followUp(f.live(t, "up")) != wantFollowUp {
		t.Error("view not updated")
	}
	cached := f.cached(t, "up")
	if followUp(cached) != wantFollowUp || cached.Title != "Upcoming lead" || cached.Company != "Acme" {
		t.Errorf("cache not updated correctly: %+v", cached)
	}
	if bucket.Classify(cached, now) != bucket.DueToday {
		t.Errorf("moved lead classifies as %s", bucket.Classify(cached, now))
	}

	if len(f.notifier.events) != 1 || f.notifier.events[0].Bucket != string(bucket.DueToday) {
		t.Errorf("unexpected events: %+v", f.notifier.events)
	}
	if len(f.journal.entries) != 1 || !f.journal.entries[0].Succeeded {
		t.Errorf("unexpected journal: %+v", f.journal.entries)
	}
}

// TestMove_Anchors covers each dated target. The undated lead starts in
// Upcoming, so the Upcoming anchor is reached through Overdue.
func TestMove_Anchors(t *testing.T) {
	tests := []struct {
		name string
		path []bucket.Bucket
		want string
	}{
		{"overdue", []bucket.Bucket{bucket.Upcoming, bucket.Overdue}, "2026-03-09T00:00:00Z"},
		{"due_today", []bucket.Bucket{bucket.Upcoming, bucket.DueToday}, "2026-03-10T00:00:00Z"},
		{"upcoming", []bucket.Bucket{bucket.Upcoming, bucket.Overdue, bucket.Upcoming}, "2026-03-11T00:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			var updated models.Lead
			for i := 1; i < len(tt.path); i++ {
				var err error
				updated, err = f.pipeline.Move(context.Background(), "undated", tt.path[i-1], tt.path[i])
				if err != nil {
					t.Fatalf("move %s -> %s: %v", tt.path[i-1], tt.path[i], err)
				}
			}
			if followUp(updated) != tt.want {
				t.Errorf("followUp = %q, want %q", followUp(updated), tt.want)
			}
		})
	}
}

// TestMove_StaleSource verifies a move declared from the wrong bucket is
// rejected without a backend call.
func TestMove_StaleSource(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Move(context.Background(), "up", bucket.Overdue, bucket.DueToday)
	if !errors.Is(err, ErrStaleBucket) {
		t.Fatalf("expected ErrStaleBucket, got %v", err)
	}
	if len(f.remote.calls) != 0 {
		t.Errorf("remote called %d times, want 0", len(f.remote.calls))
	}
	if got := followUp(f.live(t, "up")); got != "2026-03-14T10:45:00Z" {
		t.Errorf("view changed: followUp = %q", got)
	}
	if got := followUp(f.cached(t, "up")); got != "2026-03-14T10:45:00Z" {
		t.Errorf("cache changed: followUp = %q", got)
	}
	if len(f.journal.entries) != 1 || f.journal.entries[0].Succeeded {
		t.Errorf("journal entries = %+v", f.journal.entries)
	}
}

// TestMove_IntoDone verifies the follow-up is left alone.
func TestMove_IntoDone(t *testing.T) {
	f := newFixture(t)

	updated, err := f.pipeline.Move(context.Background(), "up", bucket.Upcoming, bucket.Done)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.FollowUpStatus != models.FollowUpDone || followUp(updated) != "2026-03-14T10:45:00Z" {
		t.Errorf("unexpected lead: %+v", updated)
	}
	if !f.cached(t, "up").IsDone() {
		t.Error("cache not marked done")
	}
}

// TestMove_SameBucket verifies a no-op move makes no call.
func TestMove_SameBucket(t *testing.T) {
	f := newFixture(t)

	if _, err := f.pipeline.Move(context.Background(), "up", bucket.Upcoming, bucket.Upcoming); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.remote.calls) != 0 {
		t.Errorf("expected no remote call, got %d", len(f.remote.calls))
	}
}

// TestMove_FailureLeavesStateUntouched verifies a rejected update changes
// neither the view nor the cache.
func TestMove_FailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.remote.err = &remote.RequestFailedError{Resource: remote.ResourceLeads, Status: 500, Message: "boom"}

	_, err := f.pipeline.Move(context.Background(), "up", bucket.Upcoming, bucket.DueToday)
	if _, ok := remote.AsRequestFailed(err); !ok {
		t.Fatalf("expected RequestFailedError, got %v", err)
	}

	if got := followUp(f.live(t, "up")); got != "2026-03-14T10:45:00Z" {
		t.Errorf("view changed: followUp = %q", got)
	}
	if got := followUp(f.cached(t, "up")); got != "2026-03-14T10:45:00Z" {
		t.Errorf("cache changed: followUp = %q", got)
	}
	if len(f.notifier.events) != 0 {
		t.Errorf("failure should not publish: %+v", f.notifier.events)
	}
	if len(f.journal.entries) != 1 || f.journal.entries[0].Succeeded || f.journal.entries[0].Error == "" {
		t.Errorf("failure should be journaled: %+v", f.journal.entries)
	}
}

// TestMove_NotFound verifies an unknown lead is reported.
func TestMove_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Move(context.Background(), "ghost", bucket.Upcoming, bucket.DueToday)
	if !errors.Is(err, ErrLeadNotFound) {
		t.Fatalf("err = %v, want ErrLeadNotFound", err)
	}
}

// TestMove_FallsBackToCache verifies a lead missing from the view is taken
// from the cache.
func TestMove_FallsBackToCache(t *testing.T) {
	f := newFixture(t)
	f.view.Replace(nil)

	if _, err := f.pipeline.Move(context.Background(), "up", bucket.Upcoming, bucket.Overdue); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := followUp(f.cached(t, "up")); got != "2026-03-09T00:00:00Z" {
		t.Errorf("cache followUp = %q", got)
	}
}

// TestMarkDone verifies the flag is set and the date untouched.
func TestMarkDone(t *testing.T) {
	f := newFixture(t)

	updated, err := f.pipeline.MarkDone(context.Background(), "undated")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.IsDone() || updated.FollowUp != nil {
		t.Errorf("unexpected lead: %+v", updated)
	}
	if len(f.remote.calls) != 1 || f.remote.calls[0].body["followUpStatus"] != "done" {
		t.Errorf("unexpected calls: %+v", f.remote.calls)
	}
	if !f.live(t, "undated").IsDone() || !f.cached(t, "undated").IsDone() {
		t.Error("view or cache not updated")
	}
	if f.journal.entries[0].FromBucket != string(bucket.Upcoming) {
		t.Errorf("FromBucket = %q, want upcoming", f.journal.entries[0].FromBucket)
	}
}

// TestMarkDone_AlreadyDone verifies no call is made for a done lead.
func TestMarkDone_AlreadyDone(t *testing.T) {
	f := newFixture(t)

	if _, err := f.pipeline.MarkDone(context.Background(), "done"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.remote.calls) != 0 {
		t.Errorf("expected no remote call, got %d", len(f.remote.calls))
	}
}

// TestCreate verifies the server's record is appended to view and cache.
func TestCreate(t *testing.T) {
	f := newFixture(t)
	f.remote.response = json.RawMessage(`{"id":"srv-9","title":"New lead","assignedTo":"42"}`)

	created, err := f.pipeline.Create(context.Background(), models.Lead{Title: "New lead", AssignedTo: models.NewRef("42")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID != "srv-9" {
		t.Errorf("ID = %q, want srv-9", created.ID)
	}
	if call := f.remote.calls[0]; call.method != http.MethodPost || call.id != "" {
		t.Errorf("unexpected call: %+v", call)
	}
	if _, ok := f.view.Get("srv-9"); !ok {
		t.Error("view missing created lead")
	}
	f.cached(t, "srv-9")
}

// TestCreate_EmptyResponse verifies the submitted record is kept.
func TestCreate_EmptyResponse(t *testing.T) {
	f := newFixture(t)

	created, err := f.pipeline.Create(context.Background(), models.Lead{ID: "local-1", Title: "Draft"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID != "local-1" || len(f.view.Leads()) != 4 {
		t.Errorf("unexpected result: %+v, view size %d", created, len(f.view.Leads()))
	}
}

// TestCreate_Failure verifies nothing is appended on failure.
func TestCreate_Failure(t *testing.T) {
	f := newFixture(t)
	f.remote.err = &remote.TimeoutError{Resource: remote.ResourceLeads, After: time.Second}

	_, err := f.pipeline.Create(context.Background(), models.Lead{Title: "Lost"})
	if !remote.IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if len(f.view.Leads()) != 3 {
		t.Errorf("view size = %d, want 3", len(f.view.Leads()))
	}
}

// TestPipeline_NotifierFailureIsAbsorbed verifies event publishing cannot
// fail a mutation.
func TestPipeline_NotifierFailureIsAbsorbed(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("redis down")

	if _, err := f.pipeline.MarkDone(context.Background(), "up"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestComputeMove verifies the pure field computation.
func TestComputeMove(t *testing.T) {
	p, err := computeMove(bucket.Done, now)
	if err != nil || p.FollowUp != nil || p.FollowUpStatus == nil || *p.FollowUpStatus != "done" {
		t.Errorf("Done patch = %+v, %v", p, err)
	}

	p, err = computeMove(bucket.Upcoming, now)
	if err != nil || p.FollowUpStatus != nil || p.FollowUp == nil || *p.FollowUp != "2026-03-11T00:00:00Z" {
		t.Errorf("Upcoming patch = %+v, %v", p, err)
	}

	if _, err := computeMove("archived", now); err == nil {
		t.Error("expected error for unknown bucket")
	}
}
