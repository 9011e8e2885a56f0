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

package prefetch

import (
	"sync"
	"time"
)

// DefaultCooldown is the minimum spacing between two prefetch starts.
const DefaultCooldown = 12 * time.Second

// Coordinator is the advisory lock every prefetch path goes through. It
// admits at most one prefetch at a time and refuses new starts within the
// cooldown of the previous start. Callers that bypass it are not guarded.
type Coordinator struct {
	mu        sync.Mutex
	inFlight  bool
	lastStart time.Time
	cooldown  time.Duration
	now       func() time.Time
}

// NewCoordinator creates a coordinator. A nil clock means time.Now.
func NewCoordinator(cooldown time.Duration, now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{cooldown: cooldown, now: now}
}

// TryAcquire reports whether the caller may start a prefetch. On success the
// caller owns the slot until Release.
func (c *Coordinator) TryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		return false
	}
	now := c.now()
	if !c.lastStart.IsZero() && now.Sub(c.lastStart) < c.cooldown {
		return false
	}

	c.inFlight = true
	c.lastStart = now
	return true
}

// Release clears the in-flight flag. The cooldown keeps running from the
// start instant recorded by TryAcquire.
func (c *Coordinator) Release() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

// Cooldown returns the configured window.
func (c *Coordinator) Cooldown() time.Duration { return c.cooldown }
