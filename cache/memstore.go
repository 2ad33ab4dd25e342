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
	"context"
	"sync"
)

// mapDurableStore is a process-local, non-persistent DurableStore backed by
// a plain map. It exists so callers that don't need real durability (tests,
// short-lived embeddings) can still go through the full Cache contract
// without standing up a BoltStore.
type mapDurableStore[V any] struct {
	mu   sync.Mutex
	data map[Key]V
}

// NewMapDurableStore returns a DurableStore with no persistence beyond the
// process lifetime.
func NewMapDurableStore[V any]() DurableStore[V] {
	return &mapDurableStore[V]{data: make(map[Key]V)}
}

func (m *mapDurableStore[V]) Get(ctx context.Context, key Key) (V, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapDurableStore[V]) Put(ctx context.Context, key Key, v V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = v
	return nil
}

func (m *mapDurableStore[V]) All(ctx context.Context) ([]Entry[V], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]Entry[V], 0, len(m.data))
	for k, v := range m.data {
		entries = append(entries, Entry[V]{Key: k, Value: v})
	}
	return entries, nil
}
