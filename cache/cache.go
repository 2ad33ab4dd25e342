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

/*
Package cache implements the dual-tier cache shared by the registry and
vulnerability adapters: an optional, process-local hot memory tier sitting
in front of a durable key-value tier. It is parameterized over a value
type V so it can be instantiated once for registry metadata and once for
vulnerability lists, per spec.
*/
package cache

import (
	"context"

	"github.com/mctsresolve/resolver/internal/rlog"
)

// Key identifies one cache entry: a package name plus a "version key",
// which for the metadata cache is a requested range string (spec.md §4.3
// Open Question i) and for the vulnerability cache is a concrete version.
type Key struct {
	Name       string
	VersionKey string
}

// Entry is one (Key, Value) pair as returned by LoadAll/All.
type Entry[V any] struct {
	Key   Key
	Value V
}

// DurableStore is the "durable store collaborator" of spec.md §6: a
// key-value interface with transactional upsert by (name, version) and
// iteration for load_all. It is authoritative and never auto-evicted.
type DurableStore[V any] interface {
	Get(ctx context.Context, key Key) (V, bool, error)
	Put(ctx context.Context, key Key, v V) error
	All(ctx context.Context) ([]Entry[V], error)
}

// Cache is the dual-tier cache of spec.md §4.2. The memory tier is
// optional; when disabled every operation passes directly to durable.
type Cache[V any] struct {
	durable DurableStore[V]
	mem     *memoryTier[V] // nil when the memory tier is disabled
	logger  *rlog.Logger
}

// Option configures a Cache at construction.
type Option[V any] func(*Cache[V])

// WithMemoryTier enables the in-memory tier with the given capacity (number
// of entries) and the sliding/absolute expirations of spec.md §4.2.
func WithMemoryTier[V any](capacity int) Option[V] {
	return func(c *Cache[V]) {
		c.mem = newMemoryTier[V](capacity)
	}
}

// WithLogger attaches a logger used to report durable-tier failures and
// deserialization errors (both surfaced as a miss, never poisoning the
// cache, per spec.md §4.2).
func WithLogger[V any](l *rlog.Logger) Option[V] {
	return func(c *Cache[V]) { c.logger = l }
}

// New creates a Cache backed by durable, with the given options applied.
func New[V any](durable DurableStore[V], opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{durable: durable, logger: rlog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get looks up key, checking memory first, then durable; a durable hit
// back-fills memory. Durable errors are logged and surfaced as a miss.
func (c *Cache[V]) Get(ctx context.Context, key Key) (V, bool) {
	if c.mem != nil {
		if v, ok := c.mem.get(key); ok {
			return v, true
		}
	}
	v, ok, err := c.durable.Get(ctx, key)
	if err != nil {
		c.logger.Logf("cache: durable get %v: %v", key, err)
		var zero V
		return zero, false
	}
	if !ok {
		var zero V
		return zero, false
	}
	if c.mem != nil {
		c.mem.put(key, v)
	}
	return v, true
}

// Put writes value to memory (if enabled) and durable; durable is upserted
// by primary key, stamping updated_at (handled by the DurableStore
// implementation).
func (c *Cache[V]) Put(ctx context.Context, key Key, value V) error {
	if c.mem != nil {
		c.mem.put(key, value)
	}
	if err := c.durable.Put(ctx, key, value); err != nil {
		c.logger.Logf("cache: durable put %v: %v", key, err)
		return err
	}
	return nil
}

// LoadAll rehydrates the memory tier from durable storage. It is a no-op
// when the memory tier is disabled.
func (c *Cache[V]) LoadAll(ctx context.Context) error {
	if c.mem == nil {
		return nil
	}
	entries, err := c.durable.All(ctx)
	if err != nil {
		c.logger.Logf("cache: load all: %v", err)
		return err
	}
	for _, e := range entries {
		c.mem.put(e.Key, e.Value)
	}
	return nil
}
