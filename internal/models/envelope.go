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
	"encoding/json"
	"errors"
	"time"
)

// Envelope is the unit of persistence for the lead cache: all four
// collections plus the instant they were written. Collections are replaced
// wholesale; there is no per-record merge.
type Envelope struct {
	Statuses   []Option   `json:"statuses"`
	Sources    []Option   `json:"sources"`
	Employees  []Employee `json:"employees"`
	Leads      []Lead     `json:"leads"`
	CapturedAt time.Time  `json:"capturedAt"`
}

// ErrIncompleteEnvelope is returned when a stored envelope lacks a collection.
var ErrIncompleteEnvelope = errors.New("envelope is missing a collection")

// Normalize replaces nil collections with empty ones so the envelope is
// structurally complete before it is persisted.
func (e *Envelope) Normalize() {
	if e.Statuses == nil {
		e.Statuses = []Option{}
	}
	if e.Sources == nil {
		e.Sources = []Option{}
	}
	if e.Employees == nil {
		e.Employees = []Employee{}
	}
	if e.Leads == nil {
		e.Leads = []Lead{}
	}
}

// Age is the time elapsed since the envelope was captured.
func (e *Envelope) Age(now time.Time) time.Duration {
	return now.Sub(e.CapturedAt)
}

// FindLead returns the index of the lead with the given identifier, or -1.
func (e *Envelope) FindLead(id string) int {
	for i := range e.Leads {
		if e.Leads[i].ID == id {
			return i
		}
	}
	return -1
}

// DecodeEnvelope parses a stored envelope, rejecting partial ones.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var probe struct {
		Statuses   *json.RawMessage `json:"statuses"`
		Sources    *json.RawMessage `json:"sources"`
		Employees  *json.RawMessage `json:"employees"`
		Leads      *json.RawMessage `json:"leads"`
		CapturedAt *time.Time       `json:"capturedAt"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	for _, raw := range []*json.RawMessage{probe.Statuses, probe.Sources, probe.Employees, probe.Leads} {
		if raw == nil || string(*raw) == "null" {
			return nil, ErrIncompleteEnvelope
		}
	}
	if probe.CapturedAt == nil {
		return nil, ErrIncompleteEnvelope
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	env.Normalize()
	return &env, nil
}
