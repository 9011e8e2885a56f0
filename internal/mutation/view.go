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

package mutation

import (
	"sync"

	"github.com/fieldcrm/leadsync/internal/models"
)

// View is the live lead list the board is derived from.
type View struct {
	mu    sync.RWMutex
	leads []models.Lead
}

// NewView creates an empty view.
func NewView() *View {
	return &View{}
}

// Replace swaps in a freshly loaded collection.
func (v *View) Replace(leads []models.Lead) {
	cp := make([]models.Lead, len(leads))
	copy(cp, leads)

	v.mu.Lock()
	v.leads = cp
	v.mu.Unlock()
}

// Leads returns a snapshot of the current collection.
func (v *View) Leads() []models.Lead {
	v.mu.RLock()
	defer v.mu.RUnlock()

	cp := make([]models.Lead, len(v.leads))
	copy(cp, v.leads)
	return cp
}

// Get returns the lead with the given identifier.
func (v *View) Get(id string) (models.Lead, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if i := v.index(id); i >= 0 {
		return v.leads[i], true
	}
	return models.Lead{}, false
}

// Apply merges patch into the matching lead and reports whether one matched.
func (v *View) Apply(id string, patch models.LeadPatch) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	i := v.index(id)
	if i < 0 {
		return false
	}
	v.leads[i] = patch.Apply(v.leads[i])
	return true
}

// Append adds a lead at the end.
func (v *View) Append(l models.Lead) {
	v.mu.Lock()
	v.leads = append(v.leads, l)
	v.mu.Unlock()
}

// Upsert replaces the lead with the same identifier, or appends it.
func (v *View) Upsert(l models.Lead) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if i := v.index(l.ID); i >= 0 {
		v.leads[i] = l
		return
	}
	v.leads = append(v.leads, l)
}

func (v *View) index(id string) int {
	for i := range v.leads {
		if v.leads[i].ID == id {
			return i
		}
	}
	return -1
}
