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

// Package events broadcasts lead changes over Redis pub/sub so that other
// sessions sharing the cache can re-derive their boards without waiting for
// the next refresh.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fieldcrm/leadsync/internal/models"
)

// DefaultChannel is the pub/sub channel for lead changes.
const DefaultChannel = "leadsync:lead-changed"

// LeadChanged announces a successful mutation of one lead.
type LeadChanged struct {
	ID         string      `json:"id"`
	Origin     string      `json:"origin"`
	LeadID     string      `json:"leadId"`
	Action     string      `json:"action"`
	Bucket     string      `json:"bucket,omitempty"`
	Lead       models.Lead `json:"lead"`
	OccurredAt time.Time   `json:"occurredAt"`
}

// Publisher sends lead-changed events to Redis.
type Publisher struct {
	rdb     *redis.Client
	channel string
	origin  string
}

// NewPublisher creates a publisher on the given channel. Each publisher gets
// its own origin tag so Listen can skip its own events.
func NewPublisher(rdb *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
	}
}

// PublishLeadChanged serialises ev and publishes it on the channel.
func (p *Publisher) PublishLeadChanged(ctx context.Context, ev LeadChanged) error {
	payload, err := p.encode(ev, time.Now())
	if err != nil {
		return err
	}

	receivers, err := p.rdb.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("redis PUBLISH: %w", err)
	}

	slog.Debug("published lead change",
		"lead_id", ev.LeadID,
		"action", ev.Action,
		"channel", p.channel,
		"receivers", receivers,
	)
	return nil
}

func (p *Publisher) encode(ev LeadChanged, now time.Time) ([]byte, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = now
	}
	ev.Origin = p.origin

	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal lead change: %w", err)
	}
	return payload, nil
}

// Listen delivers events published by other processes to fn until ctx is
// cancelled. Undecodable messages are logged and skipped.
func (p *Publisher) Listen(ctx context.Context, fn func(LeadChanged)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", p.channel, err)
	}
	slog.Info("listening for lead changes", "channel", p.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, own, err := p.decode([]byte(msg.Payload))
			if err != nil {
				slog.Warn("skipping undecodable lead change", "error", err)
				continue
			}
			if own {
				continue
			}
			fn(ev)
		}
	}
}

// decode parses a payload and reports whether it came from this publisher.
func (p *Publisher) decode(payload []byte) (LeadChanged, bool, error) {
	var ev LeadChanged
	if err := json.Unmarshal(payload, &ev); err != nil {
		return LeadChanged{}, false, fmt.Errorf("decode lead change: %w", err)
	}
	if ev.LeadID == "" {
		return LeadChanged{}, false, fmt.Errorf("decode lead change: missing leadId")
	}
	return ev, ev.Origin == p.origin, nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
