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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Cooldown bounds for the prefetch guard.
const (
	MinPrefetchCooldown = 10 * time.Second
	MaxPrefetchCooldown = 15 * time.Second
)

// OAuthConfig holds client-credentials settings for the backend.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// Config holds all configuration for the sync service.
type Config struct {
	// Backend
	APIBaseURL string
	APITimeout time.Duration
	APIToken   string
	OAuth      OAuthConfig
	Resources  map[string]string

	// Cache
	RedisURL   string // empty = in-process cache
	CacheKey   string
	ProfileKey string
	CacheTTL   time.Duration
	Freshness  time.Duration

	// Prefetch
	PrefetchCooldown time.Duration
	RefreshInterval  time.Duration

	// Journal and events
	JournalDatabaseURL string // empty = journal disabled
	EventsChannel      string

	// Server
	Port     int
	LogLevel slog.Level
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	API struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
		Token   string `yaml:"token"`
		OAuth   struct {
			ClientID     string   `yaml:"client_id"`
			ClientSecret string   `yaml:"client_secret"`
			TokenURL     string   `yaml:"token_url"`
			Scopes       []string `yaml:"scopes"`
		} `yaml:"oauth"`
		Resources map[string]string `yaml:"resources"`
	} `yaml:"api"`
	Cache struct {
		RedisURL   string `yaml:"redis_url"`
		Key        string `yaml:"key"`
		ProfileKey string `yaml:"profile_key"`
		TTL        string `yaml:"ttl"`
		Freshness  string `yaml:"freshness"`
	} `yaml:"cache"`
	Prefetch struct {
		Cooldown        string `yaml:"cooldown"`
		RefreshInterval string `yaml:"refresh_interval"`
	} `yaml:"prefetch"`
	Journal struct {
		DatabaseURL string `yaml:"database_url"`
	} `yaml:"journal"`
	Events struct {
		Channel string `yaml:"channel"`
	} `yaml:"events"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. A missing file is not an error; everything can
// come from the environment.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse builds a validated Config from YAML bytes and the environment.
func Parse(data []byte) (*Config, error) {
	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		APIBaseURL: firstNonEmpty(raw.API.BaseURL, os.Getenv("API_BASE_URL")),
		APIToken:   firstNonEmpty(raw.API.Token, os.Getenv("API_TOKEN")),
		OAuth: OAuthConfig{
			ClientID:     firstNonEmpty(raw.API.OAuth.ClientID, os.Getenv("API_CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.API.OAuth.ClientSecret, os.Getenv("API_CLIENT_SECRET")),
			TokenURL:     firstNonEmpty(raw.API.OAuth.TokenURL, os.Getenv("API_TOKEN_URL")),
			Scopes:       raw.API.OAuth.Scopes,
		},
		Resources:          raw.API.Resources,
		RedisURL:           firstNonEmpty(raw.Cache.RedisURL, os.Getenv("REDIS_URL")),
		CacheKey:           firstNonEmpty(raw.Cache.Key, "leadsync:cache"),
		ProfileKey:         firstNonEmpty(raw.Cache.ProfileKey, "leadsync:profile"),
		JournalDatabaseURL: firstNonEmpty(raw.Journal.DatabaseURL, os.Getenv("DATABASE_URL")),
		EventsChannel:      firstNonEmpty(raw.Events.Channel, "leadsync:lead-changed"),
		Port:               envOrDefaultInt("PORT", 8080),
		LogLevel:           envOrDefaultLevel("LOG_LEVEL", slog.LevelInfo),
	}

	durations := []struct {
		name     string
		raw      string
		env      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"api.timeout", raw.API.Timeout, "API_TIMEOUT", 10 * time.Second, &cfg.APITimeout},
		{"cache.ttl", raw.Cache.TTL, "CACHE_TTL", 5 * time.Minute, &cfg.CacheTTL},
		{"cache.freshness", raw.Cache.Freshness, "CACHE_FRESHNESS", 60 * time.Second, &cfg.Freshness},
		{"prefetch.cooldown", raw.Prefetch.Cooldown, "PREFETCH_COOLDOWN", 12 * time.Second, &cfg.PrefetchCooldown},
		{"prefetch.refresh_interval", raw.Prefetch.RefreshInterval, "REFRESH_INTERVAL", 0, &cfg.RefreshInterval},
	}
	for _, d := range durations {
		v, err := parseDuration(d.name, firstNonEmpty(d.raw, os.Getenv(d.env)), d.fallback)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and ranges.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api.base_url is required (or set API_BASE_URL)")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not an http(s) URL", c.APIBaseURL)
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", c.APITimeout)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.CacheTTL)
	}
	if c.Freshness <= 0 || c.Freshness > c.CacheTTL {
		return fmt.Errorf("cache.freshness must be in (0, %s], got %s", c.CacheTTL, c.Freshness)
	}
	if c.PrefetchCooldown < MinPrefetchCooldown || c.PrefetchCooldown > MaxPrefetchCooldown {
		return fmt.Errorf("prefetch.cooldown must be between %s and %s, got %s",
			MinPrefetchCooldown, MaxPrefetchCooldown, c.PrefetchCooldown)
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("prefetch.refresh_interval must not be negative, got %s", c.RefreshInterval)
	}
	if (c.OAuth.ClientID != "") != (c.OAuth.ClientSecret != "") {
		return fmt.Errorf("api.oauth needs both client_id and client_secret")
	}
	if c.OAuth.ClientID != "" && c.OAuth.TokenURL == "" {
		return fmt.Errorf("api.oauth.token_url is required with client credentials")
	}
	return nil
}

func parseDuration(name, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", name, raw, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultLevel(key string, fallback slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(v)); err == nil {
			return level
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
