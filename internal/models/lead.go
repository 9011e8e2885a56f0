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

package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FollowUpDone is the completion flag value that moves a lead to the Done
// column regardless of its follow-up date. Compared case-insensitively.
const FollowUpDone = "done"

// Lead is a single CRM lead.
//
// Contact fields are opaque to the sync layer. Every field received from the
// backend is retained and written back on a full-record update, including
// fields this struct does not name.
type Lead struct {
	ID             string
	Title          string
	Status         Ref
	Source         string
	AssignedTo     Ref
	FollowUp       *string // combined date+time, nil when unscheduled
	FollowUpStatus string

	Name       string
	Email      string
	Phone      string
	Company    string
	ProfileURL string

	raw map[string]json.RawMessage
}

// Wire names of the fields Lead decodes.
const (
	leadKeyTitle          = "title"
	leadKeyStatus         = "status"
	leadKeySource         = "source"
	leadKeyAssignedTo     = "assignedTo"
	leadKeyFollowUp       = "followUp"
	leadKeyFollowUpStatus = "followUpStatus"
	leadKeyName           = "name"
	leadKeyEmail          = "email"
	leadKeyPhone          = "phone"
	leadKeyCompany        = "company"
	leadKeyProfileURL     = "linkedin"
)

var leadKnownKeys = map[string]bool{
	leadKeyTitle: true, leadKeyStatus: true, leadKeySource: true,
	leadKeyAssignedTo: true, leadKeyFollowUp: true, leadKeyFollowUpStatus: true,
	leadKeyName: true, leadKeyEmail: true, leadKeyPhone: true,
	leadKeyCompany: true, leadKeyProfileURL: true,
}

// IsDone reports whether the completion flag carries the "done" sentinel.
func (l Lead) IsDone() bool {
	return strings.EqualFold(strings.TrimSpace(l.FollowUpStatus), FollowUpDone)
}

// HasFollowUp reports whether a non-blank follow-up instant is set.
func (l Lead) HasFollowUp() bool {
	return l.FollowUp != nil && strings.TrimSpace(*l.FollowUp) != ""
}

// UnmarshalJSON decodes a lead object, keeping every field for round-tripping.
func (l *Lead) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode lead: %w", err)
	}
	if obj == nil {
		return fmt.Errorf("decode lead: not an object")
	}

	*l = Lead{raw: obj}

	if v, ok := obj["id"]; ok {
		l.ID, _ = scalarID(v)
	}
	if l.ID == "" {
		if v, ok := obj["_id"]; ok {
			l.ID, _ = scalarID(v)
		}
	}

	l.Title = textField(obj, leadKeyTitle)
	l.Source = textField(obj, leadKeySource)
	l.FollowUpStatus = textField(obj, leadKeyFollowUpStatus)
	l.Name = textField(obj, leadKeyName)
	l.Email = textField(obj, leadKeyEmail)
	l.Phone = textField(obj, leadKeyPhone)
	l.Company = textField(obj, leadKeyCompany)
	l.ProfileURL = textField(obj, leadKeyProfileURL)

	if v, ok := obj[leadKeyStatus]; ok {
		if err := l.Status.UnmarshalJSON(v); err != nil {
			return err
		}
	}
	if v, ok := obj[leadKeyAssignedTo]; ok {
		if err := l.AssignedTo.UnmarshalJSON(v); err != nil {
			return err
		}
	}

	if s := textField(obj, leadKeyFollowUp); strings.TrimSpace(s) != "" {
		l.FollowUp = &s
	}

	return nil
}

// MarshalJSON emits the full record. Fields whose value is unchanged since
// decoding are written back byte-for-byte.
func (l Lead) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(l.raw)+len(leadKnownKeys)+1)
	for k, v := range l.raw {
		if !leadKnownKeys[k] {
			out[k] = v
		}
	}

	_, hasID := out["id"]
	_, hasUnderscoreID := out["_id"]
	if !hasID && !hasUnderscoreID && l.ID != "" {
		b, err := json.Marshal(l.ID)
		if err != nil {
			return nil, err
		}
		out["id"] = b
	}

	l.putText(out, leadKeyTitle, l.Title)
	l.putText(out, leadKeySource, l.Source)
	l.putText(out, leadKeyFollowUpStatus, l.FollowUpStatus)
	l.putText(out, leadKeyName, l.Name)
	l.putText(out, leadKeyEmail, l.Email)
	l.putText(out, leadKeyPhone, l.Phone)
	l.putText(out, leadKeyCompany, l.Company)
	l.putText(out, leadKeyProfileURL, l.ProfileURL)

	if err := l.putRef(out, leadKeyStatus, l.Status); err != nil {
		return nil, err
	}
	if err := l.putRef(out, leadKeyAssignedTo, l.AssignedTo); err != nil {
		return nil, err
	}

	switch {
	case l.FollowUp != nil:
		l.putText(out, leadKeyFollowUp, *l.FollowUp)
	default:
		if raw, ok := l.raw[leadKeyFollowUp]; ok {
			if text, ok := rawText(raw); !ok || strings.TrimSpace(text) == "" {
				out[leadKeyFollowUp] = raw
			} else {
				out[leadKeyFollowUp] = json.RawMessage("null")
			}
		}
	}

	return json.Marshal(out)
}

func (l Lead) putText(out map[string]json.RawMessage, key, val string) {
	if raw, ok := l.raw[key]; ok {
		text, scalar := rawText(raw)
		if (scalar && text == val) || (!scalar && val == "") {
			out[key] = raw
			return
		}
	} else if val == "" {
		return
	}
	b, _ := json.Marshal(val)
	out[key] = b
}

func (l Lead) putRef(out map[string]json.RawMessage, key string, ref Ref) error {
	if _, ok := l.raw[key]; !ok && ref.IsZero() && len(ref.raw) == 0 {
		return nil
	}
	b, err := ref.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	out[key] = b
	return nil
}

// LeadPatch is a shallow set of field changes. Nil fields are left alone.
type LeadPatch struct {
	Title          *string
	Source         *string
	FollowUp       *string
	FollowUpStatus *string
}

// Apply returns a copy of l carrying the patched fields.
func (p LeadPatch) Apply(l Lead) Lead {
	if p.Title != nil {
		l.Title = *p.Title
	}
	if p.Source != nil {
		l.Source = *p.Source
	}
	if p.FollowUp != nil {
		v := *p.FollowUp
		l.FollowUp = &v
	}
	if p.FollowUpStatus != nil {
		l.FollowUpStatus = *p.FollowUpStatus
	}
	return l
}

// String returns a pointer to s, for building patches.
func String(s string) *string { return &s }

func textField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	text, _ := rawText(raw)
	return text
}

// rawText renders a scalar JSON value as text. null is the empty string.
func rawText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", true
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return "", false
		}
		if b {
			return "true", true
		}
		return "false", true
	case '{', '[':
		return "", false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n.String(), true
}
