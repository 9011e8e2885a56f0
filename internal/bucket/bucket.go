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

// Package bucket sorts leads into the follow-up board columns: Overdue,
// Due Today, Upcoming and Done.
//
// Classification, first matching rule wins:
//  1. completion flag equals "done" (any case) -> Done
//  2. no follow-up instant                      -> Upcoming
//  3. follow-up date before today               -> Overdue
//     follow-up date equal to today             -> Due Today
//     follow-up date after today                -> Upcoming
//  4. follow-up instant unparseable             -> Upcoming
//
// Dates are compared as calendar days in the reference instant's location.
package bucket

import (
	"fmt"
	"strings"
	"time"

	"github.com/fieldcrm/leadsync/internal/models"
)

// Bucket is one board column.
type Bucket string

const (
	Overdue  Bucket = "overdue"
	DueToday Bucket = "due_today"
	Upcoming Bucket = "upcoming"
	Done     Bucket = "done"
)

// All lists the buckets in board order.
var All = []Bucket{Overdue, DueToday, Upcoming, Done}

// ParseBucket maps a wire name to a Bucket.
func ParseBucket(s string) (Bucket, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "overdue":
		return Overdue, nil
	case "due_today", "duetoday", "today":
		return DueToday, nil
	case "upcoming":
		return Upcoming, nil
	case "done":
		return Done, nil
	}
	return "", fmt.Errorf("unknown bucket %q", s)
}

// Board is a partition of a lead collection. Each lead of the input appears
// in exactly one column, in input order.
type Board struct {
	Overdue  []models.Lead `json:"overdue"`
	DueToday []models.Lead `json:"dueToday"`
	Upcoming []models.Lead `json:"upcoming"`
	Done     []models.Lead `json:"done"`
}

// Column returns the leads of one bucket.
func (b Board) Column(k Bucket) []models.Lead {
	switch k {
	case Overdue:
		return b.Overdue
	case DueToday:
		return b.DueToday
	case Upcoming:
		return b.Upcoming
	case Done:
		return b.Done
	}
	return nil
}

// Len is the total number of leads on the board.
func (b Board) Len() int {
	return len(b.Overdue) + len(b.DueToday) + len(b.Upcoming) + len(b.Done)
}

// Leads flattens the board back into a collection, column by column.
func (b Board) Leads() []models.Lead {
	out := make([]models.Lead, 0, b.Len())
	for _, k := range All {
		out = append(out, b.Column(k)...)
	}
	return out
}

// Partition buckets leads relative to ref.
func Partition(leads []models.Lead, ref time.Time) Board {
	board := Board{
		Overdue:  []models.Lead{},
		DueToday: []models.Lead{},
		Upcoming: []models.Lead{},
		Done:     []models.Lead{},
	}
	for _, l := range leads {
		switch Classify(l, ref) {
		case Overdue:
			board.Overdue = append(board.Overdue, l)
		case DueToday:
			board.DueToday = append(board.DueToday, l)
		case Done:
			board.Done = append(board.Done, l)
		default:
			board.Upcoming = append(board.Upcoming, l)
		}
	}
	return board
}

// Classify returns the bucket of a single lead relative to ref.
func Classify(l models.Lead, ref time.Time) Bucket {
	if l.IsDone() {
		return Done
	}
	if !l.HasFollowUp() {
		return Upcoming
	}

	due, ok := ParseFollowUp(*l.FollowUp, ref.Location())
	if !ok {
		return Upcoming
	}

	today := StartOfDay(ref)
	day := StartOfDay(due.In(ref.Location()))
	switch {
	case day.Before(today):
		return Overdue
	case day.Equal(today):
		return DueToday
	default:
		return Upcoming
	}
}

// zonedLayouts carry their own offset; localLayouts are read in the
// reference location.
var (
	zonedLayouts = []string{time.RFC3339Nano, time.RFC3339}
	localLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}
)

// ParseFollowUp parses a follow-up instant in any accepted layout.
func ParseFollowUp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Anchor is the canonical follow-up instant for a dated bucket: start of
// yesterday for Overdue, of today for Due Today, of tomorrow for Upcoming.
// Done has no anchor.
func Anchor(k Bucket, ref time.Time) (time.Time, bool) {
	today := StartOfDay(ref)
	switch k {
	case Overdue:
		return today.AddDate(0, 0, -1), true
	case DueToday:
		return today, true
	case Upcoming:
		return today.AddDate(0, 0, 1), true
	}
	return time.Time{}, false
}

// FormatFollowUp renders an instant the way anchored follow-ups are stored.
func FormatFollowUp(t time.Time) string {
	return t.Format(time.RFC3339)
}
