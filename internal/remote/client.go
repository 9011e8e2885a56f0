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

// Package remote talks to the CRM REST backend. It applies a fixed per-call
// timeout, flattens the backend's several collection envelopes, and turns
// non-success responses into typed errors. It knows nothing about caching.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Resource names of the four cached collections.
const (
	ResourceStatuses  = "statuses"
	ResourceSources   = "sources"
	ResourceEmployees = "employees"
	ResourceLeads     = "leads"
)

// DefaultTimeout is the deadline applied to every call.
const DefaultTimeout = 10 * time.Second

// Client performs calls against named backend resources.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	paths      map[string]string

	// fetches collapses identical in-flight collection reads.
	fetches singleflight.Group
}

// ClientConfig holds the dependencies for a Client.
type ClientConfig struct {
	// HTTPClient must already attach session credentials (see NewHTTPClient).
	HTTPClient *http.Client
	BaseURL    string
	Timeout    time.Duration
	// Paths maps resource names to backend paths; default is "/<resource>".
	Paths map[string]string
}

// NewClient creates a backend client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    timeout,
		paths:      cfg.Paths,
	}
}

// Fetch reads a whole collection. A body matching no known envelope yields an
// empty sequence, not an error.
func (c *Client) Fetch(ctx context.Context, resource string) ([]json.RawMessage, error) {
	v, err, shared := c.fetches.Do(resource, func() (interface{}, error) {
		return c.fetchCollection(ctx, resource)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("collection fetch shared with concurrent caller", "resource", resource)
	}
	return v.([]json.RawMessage), nil
}

func (c *Client) fetchCollection(ctx context.Context, resource string) ([]json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, c.resourceURL(resource, ""), resource, nil)
	if err != nil {
		return nil, err
	}

	items, shape, err := unwrapCollection(body, resource)
	if err != nil {
		slog.Warn("unrecognised collection response, using empty collection",
			"resource", resource,
			"body_len", len(body),
			"error", err,
		)
		return []json.RawMessage{}, nil
	}

	slog.Debug("collection fetched",
		"resource", resource,
		"shape", shape,
		"count", len(items),
	)
	return items, nil
}

// FetchOne reads a single entity.
func (c *Client) FetchOne(ctx context.Context, resource, id string) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, c.resourceURL(resource, id), resource, nil)
	if err != nil {
		return nil, err
	}
	return unwrapEntity(body, resource), nil
}

// Mutate sends body with the given method to the resource (or to one entity
// of it when id is set). An empty response body yields a nil entity.
func (c *Client) Mutate(ctx context.Context, resource, id, method string, body interface{}) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", resource, err)
		}
	}

	resp, err := c.do(ctx, method, c.resourceURL(resource, id), resource, payload)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(resp)) == 0 {
		return nil, nil
	}
	return unwrapEntity(resp, resource), nil
}

func (c *Client) resourceURL(resource, id string) string {
	path, ok := c.paths[resource]
	if !ok || path == "" {
		path = "/" + strings.Trim(resource, "/")
	}
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

// do runs one request under the client's deadline and returns the body of a
// 2xx response.
func (c *Client) do(ctx context.Context, method, target, resource string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", resource, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Resource: resource, After: c.timeout}
		}
		return nil, fmt.Errorf("%s %s: %w", method, resource, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Resource: resource, After: c.timeout}
		}
		return nil, fmt.Errorf("read %s response: %w", resource, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("backend request failed",
			"method", method,
			"resource", resource,
			"status", resp.StatusCode,
		)
		return nil, &RequestFailedError{
			Resource: resource,
			Status:   resp.StatusCode,
			Message:  serverMessage(body),
		}
	}

	return body, nil
}

// serverMessage pulls a human-readable message out of an error body.
func serverMessage(body []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		var s string
		if json.Unmarshal(payload.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}

// Decode converts raw collection items into T, skipping items that fail to
// decode so one bad record cannot blank a whole collection.
func Decode[T any](resource string, items []json.RawMessage) []T {
	out := make([]T, 0, len(items))
	for i, raw := range items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			slog.Warn("skipping undecodable item",
				"resource", resource,
				"index", i,
				"error", err,
			)
			continue
		}
		out = append(out, v)
	}
	return out
}
