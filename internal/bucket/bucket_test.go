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

package bucket

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fieldcrm/leadsync/internal/models"
)

var ref = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

func lead(id, followUp, status string) models.Lead {
	l := models.Lead{ID: id, FollowUpStatus: status}
	if followUp != "" {
		l.FollowUp = models.String(followUp)
	}
	return l
}

// columnIDs reduces a board to identifiers per column for comparison.
func columnIDs(b Board) map[Bucket][]string {
	out := make(map[Bucket][]string, len(All))
	for _, k := range All {
		ids := []string{}
		for _, l := range b.Column(k) {
			ids = append(ids, l.ID)
		}
		out[k] = ids
	}
	return out
}

// TestClassify covers each classification rule.
func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		lead models.Lead
		want Bucket
	}{
		{"done flag", lead("1", "2026-03-01T10:00:00Z", "done"), Done},
		{"done flag mixed case", lead("2", "", " DONE "), Done},
		{"undated", lead("3", "", ""), Upcoming},
		{"blank follow-up", lead("4", "   ", ""), Upcoming},
		{"yesterday", lead("5", "2026-03-09T23:59:00Z", ""), Overdue},
		{"earlier today", lead("6", "2026-03-10T00:00:00Z", ""), DueToday},
		{"later today", lead("7", "2026-03-10T23:00", ""), DueToday},
		{"date only today", lead("8", "2026-03-10", ""), DueToday},
		{"tomorrow", lead("9", "2026-03-11 08:00", ""), Upcoming},
		{"garbage", lead("10", "next tuesday", ""), Upcoming},
		{"other flag", lead("11", "2026-03-01", "pending"), Overdue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.lead, ref); got != tt.want {
				t.Errorf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

// TestClassify_LocalCalendarDay verifies dates are judged in ref's location.
func TestClassify_LocalCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	localRef := time.Date(2026, 3, 10, 20, 0, 0, 0, loc) // 01:00 UTC on the 11th

	// 02:00 UTC on the 11th is 21:00 on the 10th locally.
	l := lead("1", "2026-03-11T02:00:00Z", "")
	if got := Classify(l, localRef); got != DueToday {
		t.Errorf("Classify = %s, want due_today", got)
	}

	// Zone-less values are read in the reference location.
	l = lead("2", "2026-03-11T00:30", "")
	if got := Classify(l, localRef); got != Upcoming {
		t.Errorf("Classify = %s, want upcoming", got)
	}
}

// TestPartition_PreservesOrder verifies columns keep input order.
func TestPartition_PreservesOrder(t *testing.T) {
	leads := []models.Lead{
		lead("a", "2026-03-11", ""),
		lead("b", "2026-03-01", ""),
		lead("c", "", "done"),
		lead("d", "2026-03-10T09:00", ""),
		lead("e", "", ""),
		lead("f", "2026-02-01", ""),
	}

	got := columnIDs(Partition(leads, ref))
	want := map[Bucket][]string{
		Overdue:  {"b", "f"},
		DueToday: {"d"},
		Upcoming: {"a", "e"},
		Done:     {"c"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("partition mismatch (-want +got):\n%s", diff)
	}
}

// TestPartition_Empty verifies empty input gives empty, non-nil columns.
func TestPartition_Empty(t *testing.T) {
	b := Partition(nil, ref)
	for _, k := range All {
		if b.Column(k) == nil {
			t.Errorf("column %s is nil", k)
		}
	}
	if b.Len() != 0 {
		t.Errorf("Len = %d, want 0", b.Len())
	}
}

func randomLeads(r *rand.Rand, n int) []models.Lead {
	flags := []string{"", "", "done", "Done", "pending"}
	leads := make([]models.Lead, n)
	for i := range leads {
		var followUp string
		switch r.Intn(5) {
		case 0:
			followUp = ""
		case 1:
			followUp = "not a date"
		default:
			at := ref.Add(time.Duration(r.Intn(10*24)-5*24) * time.Hour)
			followUp = at.Format("2006-01-02T15:04")
		}
		leads[i] = lead(fmt.Sprintf("lead-%d", i), followUp, flags[r.Intn(len(flags))])
	}
	return leads
}

// TestPartition_TotalAndDisjoint verifies every lead lands in exactly one column.
func TestPartition_TotalAndDisjoint(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		leads := randomLeads(r, r.Intn(40))
		at := ref.Add(time.Duration(r.Intn(72)-36) * time.Hour)
		board := Partition(leads, at)

		if board.Len() != len(leads) {
			t.Fatalf("round %d: board has %d leads, input %d", round, board.Len(), len(leads))
		}

		seen := make(map[string]Bucket, len(leads))
		for _, k := range All {
			for _, l := range board.Column(k) {
				if prev, dup := seen[l.ID]; dup {
					t.Fatalf("round %d: lead %s in both %s and %s", round, l.ID, prev, k)
				}
				seen[l.ID] = k
			}
		}
		for _, l := range leads {
			if _, ok := seen[l.ID]; !ok {
				t.Fatalf("round %d: lead %s dropped", round, l.ID)
			}
		}
	}
}

// TestPartition_Idempotent verifies re-bucketing a board's own leads yields
// the same partition.
func TestPartition_Idempotent(t *testing.T) {
	r := rand.New(rand.NewSource(11))

	for round := 0; round < 200; round++ {
		leads := randomLeads(r, r.Intn(40))
		first := Partition(leads, ref)
		second := Partition(first.Leads(), ref)
		again := Partition(leads, ref)

		if diff := cmp.Diff(columnIDs(first), columnIDs(second)); diff != "" {
			t.Fatalf("round %d: re-bucketing changed the board:\n%s", round, diff)
		}
		if diff := cmp.Diff(columnIDs(first), columnIDs(again)); diff != "" {
			t.Fatalf("round %d: repeated call changed the board:\n%s", round, diff)
		}
	}
}

// TestAnchor verifies canonical start-of-day instants.
func TestAnchor(t *testing.T) {
	tests := []struct {
		bucket Bucket
		want   time.Time
		ok     bool
	}{
		{Overdue, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), true},
		{DueToday, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), true},
		{Upcoming, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), true},
		{Done, time.Time{}, false},
	}

	for _, tt := range tests {
		got, ok := Anchor(tt.bucket, ref)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("Anchor(%s) = %v, %v; want %v, %v", tt.bucket, got, ok, tt.want, tt.ok)
		}
		if ok && Classify(lead("x", FormatFollowUp(got), ""), ref) != tt.bucket {
			t.Errorf("anchor for %s does not classify back into it", tt.bucket)
		}
	}
}

// TestParseBucket verifies wire names.
func TestParseBucket(t *testing.T) {
	for _, k := range All {
		got, err := ParseBucket(string(k))
		if err != nil || got != k {
			t.Errorf("ParseBucket(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseBucket("archived"); err == nil {
		t.Error("expected error for unknown bucket")
	}
}
