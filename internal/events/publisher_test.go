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

package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fieldcrm/leadsync/internal/models"
)

// TestEncodeDecode verifies events survive the wire and carry their origin.
func TestEncodeDecode(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	p := NewPublisher(nil, "")
	other := NewPublisher(nil, "")

	var lead models.Lead
	if err := json.Unmarshal([]byte(`{"id":7,"title":"Acme","crmScore":88}`), &lead); err != nil {
		t.Fatalf("decode lead: %v", err)
	}

	payload, err := p.encode(LeadChanged{LeadID: "7", Action: "move", Bucket: "due_today", Lead: lead}, now)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	ev, own, err := p.decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !own {
		t.Error("publisher should recognise its own event")
	}
	if ev.ID == "" || !ev.OccurredAt.Equal(now) {
		t.Errorf("defaults not filled: %+v", ev)
	}
	if ev.Lead.Title != "Acme" || ev.Bucket != "due_today" {
		t.Errorf("unexpected event: %+v", ev)
	}

	if _, own, _ := other.decode(payload); own {
		t.Error("another publisher should not claim the event")
	}
}

// TestDecode_Rejects verifies garbage and anonymous events are refused.
func TestDecode_Rejects(t *testing.T) {
	p := NewPublisher(nil, "")
	for _, payload := range []string{`not json`, `{"action":"move"}`} {
		if _, _, err := p.decode([]byte(payload)); err == nil {
			t.Errorf("decode(%s) should fail", payload)
		}
	}
}

// TestNewPublisher_DefaultChannel verifies the fallback channel name.
func TestNewPublisher_DefaultChannel(t *testing.T) {
	if p := NewPublisher(nil, ""); p.channel != DefaultChannel {
		t.Errorf("channel = %q, want %q", p.channel, DefaultChannel)
	}
	if p := NewPublisher(nil, "custom"); p.channel != "custom" {
		t.Errorf("channel = %q, want custom", p.channel)
	}
}
