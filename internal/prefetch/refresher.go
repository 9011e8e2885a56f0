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
	"context"
	"log/slog"
	"sync"
	"time"
)

// Refresher periodically revalidates the cache as a safety net for sessions
// that stay open without navigating.
type Refresher struct {
	orch     *Orchestrator
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefresher creates a refresher. It does nothing until Start.
func NewRefresher(orch *Orchestrator, interval time.Duration) *Refresher {
	return &Refresher{orch: orch, interval: interval}
}

// Start launches the refresh loop. A non-positive interval disables it.
func (r *Refresher) Start(ctx context.Context) {
	if r.interval <= 0 {
		slog.Info("periodic refresh disabled")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				// Goes through the coordinator like any other trigger.
				r.orch.Prefetch(loopCtx)
			}
		}
	}()

	slog.Info("periodic refresh started", "interval", r.interval)
}

// Stop shuts down the refresh loop and waits for it to exit.
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}
