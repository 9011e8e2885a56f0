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

// Package models defines the lead, employee and reference-list shapes shared
// across the sync layer. The backend is loose about encodings (numeric vs
// string identifiers, embedded objects vs bare references), so decoding here
// is tolerant and re-encoding preserves whatever the backend sent.
package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Ref is a reference to another entity that may arrive as null, a bare
// identifier (string or number), or an embedded object. The original JSON is
// kept so a full-record write sends back exactly what was received.
type Ref struct {
	ID  string
	raw json.RawMessage
}

// NewRef builds a reference from a bare identifier.
func NewRef(id string) Ref {
	return Ref{ID: strings.TrimSpace(id)}
}

// IsZero reports whether the reference resolves to nothing.
func (r Ref) IsZero() bool { return r.ID == "" }

// UnmarshalJSON resolves the identifier. Objects are tried in order: a direct
// identifier field, then a nested account identifier.
func (r *Ref) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	r.raw = append(json.RawMessage(nil), trimmed...)
	r.ID = resolveRef(trimmed)
	return nil
}

// MarshalJSON re-emits the original encoding when there is one.
func (r Ref) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	if r.ID == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}

func resolveRef(data []byte) string {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ""
	}

	if id, ok := scalarID(data); ok {
		return id
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return ""
	}

	if id := objectID(obj); id != "" {
		return id
	}

	if account, ok := obj["account"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(account, &nested); err == nil {
			return objectID(nested)
		}
		// Some payloads carry the account as a bare identifier.
		if id, ok := scalarID(account); ok {
			return id
		}
	}

	return ""
}

// objectID returns the first non-empty identifier among the common keys.
func objectID(obj map[string]json.RawMessage) string {
	for _, key := range []string{"id", "_id"} {
		if v, ok := obj[key]; ok {
			if id, ok := scalarID(v); ok && id != "" {
				return id
			}
		}
	}
	return ""
}

// scalarID decodes a JSON string or number into its trimmed text form.
func scalarID(data []byte) (string, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", false
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", false
		}
		return strings.TrimSpace(s), true
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return "", false
		}
		return n.String(), true
	}
	return "", false
}
