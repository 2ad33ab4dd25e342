// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Codec encodes and decodes V to and from the bytes stored in BoltStore.
type Codec[V any] struct {
	Encode func(V) ([]byte, error)
	Decode func([]byte) (V, error)
}

// BoltStore is a DurableStore backed by a BoltDB-family file, one bucket per
// instance, following the bucket-per-concern layout of golang-dep's
// internal/gps/source_cache_bolt.go. It serializes all access through
// BoltDB's own single-writer/multi-reader transaction model, additionally
// guarded here by a mutex for fair acquisition across Get/Put/All, matching
// spec.md §4.2/§5's "durable access is serialized by a mutex with fair
// acquisition".
type BoltStore[V any] struct {
	mu     sync.Mutex
	db     *bolt.DB
	bucket []byte
	codec  Codec[V]
}

type record struct {
	Value     []byte    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OpenBoltStore opens (creating if necessary) a BoltDB file at path and
// returns a store using the given bucket name and codec.
func OpenBoltStore[V any](path, bucket string, codec Codec[V]) (*BoltStore[V], error) {
	dir := filepath.Dir(path)
	if fi, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create cache directory: %s", dir)
		}
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to stat cache directory: %s", dir)
	} else if !fi.IsDir() {
		return nil, errors.Errorf("cache path is not a directory: %s", dir)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open cache file %q", path)
	}
	return &BoltStore[V]{db: db, bucket: []byte(bucket), codec: codec}, nil
}

// Close releases the underlying BoltDB file.
func (s *BoltStore[V]) Close() error {
	return errors.Wrap(s.db.Close(), "closing cache database")
}

func cacheKey(k Key) []byte {
	return []byte(k.Name + "\x00" + k.VersionKey)
}

// Get implements DurableStore.
func (s *BoltStore[V]) Get(ctx context.Context, key Key) (V, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero V
	var rec *record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		raw := b.Get(cacheKey(key))
		if raw == nil {
			return nil
		}
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			return errors.Wrap(err, "decoding cache record envelope")
		}
		rec = &r
		return nil
	})
	if err != nil {
		return zero, false, err
	}
	if rec == nil {
		return zero, false, nil
	}
	v, err := s.codec.Decode(rec.Value)
	if err != nil {
		return zero, false, errors.Wrap(err, "decoding cache value")
	}
	return v, true, nil
}

// Put implements DurableStore, upserting by (name, version) and stamping
// updated_at.
func (s *BoltStore[V]) Put(ctx context.Context, key Key, v V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.codec.Encode(v)
	if err != nil {
		return errors.Wrap(err, "encoding cache value")
	}
	rec := record{Value: raw, UpdatedAt: time.Now()}
	buf, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encoding cache record envelope")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return errors.Wrap(err, "creating cache bucket")
		}
		return b.Put(cacheKey(key), buf)
	})
}

// All implements DurableStore, iterating the whole bucket for load_all.
func (s *BoltStore[V]) All(ctx context.Context) ([]Entry[V], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []Entry[V]
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, raw []byte) error {
			var r record
			if err := json.Unmarshal(raw, &r); err != nil {
				return errors.Wrap(err, "decoding cache record envelope")
			}
			v, err := s.codec.Decode(r.Value)
			if err != nil {
				return errors.Wrap(err, "decoding cache value")
			}
			name, versionKey := splitCacheKey(k)
			entries = append(entries, Entry[V]{Key: Key{Name: name, VersionKey: versionKey}, Value: v})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func splitCacheKey(k []byte) (name, versionKey string) {
	s := string(k)
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}
