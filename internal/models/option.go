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
	"fmt"
)

// Option is an entry of a reference list (lead statuses, lead sources).
// The backend sends either a bare label or an {id, label} object.
type Option struct {
	ID    string
	Label string
}

// UnmarshalJSON accepts a bare label or an object with id and label/name/title.
func (o *Option) UnmarshalJSON(data []byte) error {
	if text, ok := rawText(data); ok {
		*o = Option{Label: text}
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode option: %w", err)
	}

	*o = Option{ID: objectID(obj)}
	if o.ID == "" {
		o.ID = textField(obj, "value")
	}
	for _, key := range []string{"label", "name", "title"} {
		if s := textField(obj, key); s != "" {
			o.Label = s
			break
		}
	}
	return nil
}

// MarshalJSON writes bare labels back as strings.
func (o Option) MarshalJSON() ([]byte, error) {
	if o.ID == "" {
		return json.Marshal(o.Label)
	}
	return json.Marshal(struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}{o.ID, o.Label})
}

// Key is the value leads reference the option by.
func (o Option) Key() string {
	if o.ID != "" {
		return o.ID
	}
	return o.Label
}

// LabelIndex maps option keys to display labels.
func LabelIndex(options []Option) map[string]string {
	idx := make(map[string]string, len(options))
	for _, o := range options {
		idx[o.Key()] = o.Label
	}
	return idx
}
