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

package remote

import (
	"bytes"
	"encoding/json"
	"strings"
)

// shapeMatcher extracts a collection from one known response envelope.
// ok is false when the body does not have that shape.
type shapeMatcher struct {
	name  string
	match func(body []byte, resource string) (items []json.RawMessage, ok bool)
}

// collectionShapes are tried in order; the first match wins.
var collectionShapes = []shapeMatcher{
	{name: "bare array", match: matchBareArray},
	{name: "resource key", match: matchResourceKey},
	{name: "data array", match: matchDataArray},
	{name: "nested data", match: matchNestedData},
}

// unwrapCollection flattens any known collection envelope.
func unwrapCollection(body []byte, resource string) ([]json.RawMessage, string, error) {
	for _, shape := range collectionShapes {
		if items, ok := shape.match(body, resource); ok {
			return items, shape.name, nil
		}
	}
	return nil, "", ErrMalformedResponse
}

func matchBareArray(body []byte, _ string) ([]json.RawMessage, bool) {
	return asArray(body)
}

func matchResourceKey(body []byte, resource string) ([]json.RawMessage, bool) {
	obj, ok := asObject(body)
	if !ok {
		return nil, false
	}
	return asArray(obj[resourceKey(resource)])
}

func matchDataArray(body []byte, _ string) ([]json.RawMessage, bool) {
	obj, ok := asObject(body)
	if !ok {
		return nil, false
	}
	return asArray(obj["data"])
}

func matchNestedData(body []byte, resource string) ([]json.RawMessage, bool) {
	obj, ok := asObject(body)
	if !ok {
		return nil, false
	}
	return matchResourceKey(obj["data"], resource)
}

// unwrapEntity strips a {data: {...}} or {<singular>: {...}} wrapper from a
// single-entity response. Anything else is returned as is.
func unwrapEntity(body []byte, resource string) json.RawMessage {
	body = bytes.TrimSpace(body)
	obj, ok := asObject(body)
	if !ok {
		return body
	}
	for _, key := range []string{"data", singular(resourceKey(resource))} {
		if inner, ok := asObject(obj[key]); ok && inner != nil {
			return bytes.TrimSpace(obj[key])
		}
	}
	return body
}

func asArray(data []byte) ([]json.RawMessage, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, true
}

func asObject(data []byte) (map[string]json.RawMessage, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// resourceKey is the last path segment of a resource name ("api/leads" -> "leads").
func resourceKey(resource string) string {
	resource = strings.Trim(resource, "/")
	if i := strings.LastIndex(resource, "/"); i >= 0 {
		return resource[i+1:]
	}
	return resource
}

func singular(name string) string {
	switch {
	case strings.HasSuffix(name, "ses"):
		return strings.TrimSuffix(name, "es")
	case strings.HasSuffix(name, "s"):
		return strings.TrimSuffix(name, "s")
	}
	return name
}
