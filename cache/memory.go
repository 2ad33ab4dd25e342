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

package cache

import (
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

const (
	// slidingExpiration resets on every access; absoluteExpiration does not.
	// Both apply only to the memory tier (spec.md §4.2); the durable tier is
	// authoritative and never auto-evicted.
	slidingExpiration  = time.Hour
	absoluteExpiration = 24 * time.Hour
)

// memoryTier wraps groupcache's lru.Cache with the sliding/absolute
// expiration spec.md's memory tier requires; groupcache's Cache has no
// notion of expiry on its own.
//
// lru.Cache's Get mutates the recency list, so a true multi-reader lock
// would race on its internal structure; like groupcache's own local cache
// wrapper, a single mutex guards every access here. Under contention the
// same entry may be deserialized twice by concurrent callers layered above
// this tier; spec.md §4.2 explicitly accepts that.
type memoryTier[V any] struct {
	mu sync.Mutex
	c  *lru.Cache
}

type memEntry[V any] struct {
	value      V
	createdAt  time.Time
	lastAccess time.Time
}

func newMemoryTier[V any](capacity int) *memoryTier[V] {
	return &memoryTier[V]{c: lru.New(capacity)}
}

func (m *memoryTier[V]) get(key Key) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero V
	raw, ok := m.c.Get(key)
	if !ok {
		return zero, false
	}
	e := raw.(*memEntry[V])
	now := time.Now()
	if now.Sub(e.createdAt) > absoluteExpiration || now.Sub(e.lastAccess) > slidingExpiration {
		m.c.Remove(key)
		return zero, false
	}
	e.lastAccess = now
	return e.value, true
}

func (m *memoryTier[V]) put(key Key, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.c.Add(key, &memEntry[V]{value: v, createdAt: now, lastAccess: now})
}
