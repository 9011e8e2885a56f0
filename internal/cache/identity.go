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

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/fieldcrm/leadsync/internal/models"
)

// DefaultProfileKey holds the signed-in user's profile, written by the
// authentication layer.
const DefaultProfileKey = "leadsync:profile"

// LoadIdentity reads the signed-in user's profile. The key is owned by the
// session layer; this package never writes it.
func LoadIdentity(ctx context.Context, backend Backend, key string) (models.Identity, bool) {
	if key == "" {
		key = DefaultProfileKey
	}

	data, err := backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("profile read failed", "key", key, "error", err)
		}
		return models.Identity{}, false
	}

	var id models.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		slog.Warn("profile unreadable", "key", key, "error", err)
		return models.Identity{}, false
	}
	if id.ID == "" {
		return models.Identity{}, false
	}
	return id, true
}
