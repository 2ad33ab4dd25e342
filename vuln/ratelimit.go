// Copyright 2023 Google LLC
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

package vuln

import (
	"context"
	"sync"
	"time"
)

// Per spec.md §4.3: one request per 600ms with auth, per 6s without. No
// rate-limiting library appears in any go.mod under _examples/, so this is
// a small mutex-guarded sleep gate rather than an unattested dependency
// (see DESIGN.md).
const (
	IntervalAuthenticated   = 600 * time.Millisecond
	IntervalUnauthenticated = 6 * time.Second
)

// rateLimiter enforces a minimum spacing between successive requests made
// through one Adapter. Each Adapter owns its own rateLimiter; separate
// Adapters do not share one, so their requests are not spaced against each
// other.
type rateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{interval: interval}
}

// wait blocks until the next request is permitted, or ctx is done.
func (r *rateLimiter) wait(ctx context.Context) error {
	r.mu.Lock()
	now := time.Now()
	wait := r.interval - now.Sub(r.last)
	if wait < 0 {
		wait = 0
	}
	r.last = now.Add(wait)
	r.mu.Unlock()

	if wait == 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
