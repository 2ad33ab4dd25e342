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
Package registry resolves a (name, range) request to a concrete
PackageInfo by consulting the dual-tier cache and, on a miss, a registry
collaborator. It mirrors the shape of deps.dev/util/resolve's Client,
collapsed onto the three operations spec.md §4.3 names.
*/
package registry

import (
	"context"
	"encoding/json"

	"github.com/mctsresolve/resolver/cache"
	"github.com/mctsresolve/resolver/version"
)

// PackageInfo is the resolved record for one concrete version of a
// package: its three dependency maps, each keyed by dependent package
// name with a range string value.
type PackageInfo struct {
	Name            string
	ResolvedVersion version.Version
	RuntimeDeps     map[string]string
	DevDeps         map[string]string
	PeerDeps        map[string]string
}

// RawFetcher is the registry collaborator of spec.md §6: it returns the
// registry's native document for a package as bytes. Authentication,
// transport and retries are entirely its concern.
type RawFetcher interface {
	FetchRaw(ctx context.Context, name string) ([]byte, error)
}

// Adapter is the Registry Adapter of spec.md §4.3.
type Adapter struct {
	fetcher RawFetcher
	cache   *cache.Cache[rawDoc]
}

// NewAdapter constructs an Adapter over fetcher, caching metadata in c.
func NewAdapter(fetcher RawFetcher, c *cache.Cache[rawDoc]) *Adapter {
	return &Adapter{fetcher: fetcher, cache: c}
}

// NewInMemoryAdapter constructs an Adapter backed by a process-local cache
// with no durable tier, for callers that have no BoltStore to offer and
// cannot otherwise name the unexported rawDoc type parameter themselves.
func NewInMemoryAdapter(fetcher RawFetcher) *Adapter {
	return NewAdapter(fetcher, cache.New(cache.NewMapDurableStore[rawDoc](), cache.WithMemoryTier[rawDoc](1024)))
}

// DefaultDocCodec is a JSON Codec for rawDoc, suitable for wiring a
// cache.BoltStore[rawDoc] durable tier.
func DefaultDocCodec() cache.Codec[rawDoc] {
	return cache.Codec[rawDoc]{
		Encode: func(d rawDoc) ([]byte, error) { return json.Marshal(d) },
		Decode: func(b []byte) (rawDoc, error) {
			var d rawDoc
			err := json.Unmarshal(b, &d)
			return d, err
		},
	}
}

// getDoc looks up the metadata document for (name, rangeString) in the
// cache, falling through to the remote collaborator on a miss. On a
// remote hit the complete metadata is stored under the requested tag, per
// spec.md §4.3/§9 Open Question i.
func (a *Adapter) getDoc(ctx context.Context, name, rangeString string) (rawDoc, error) {
	key := cache.Key{Name: name, VersionKey: rangeString}
	if doc, ok := a.cache.Get(ctx, key); ok {
		return doc, nil
	}
	raw, err := a.fetcher.FetchRaw(ctx, name)
	if err != nil {
		return nil, &TransportError{Name: name, Err: err}
	}
	doc, err := decodeDoc(name, raw)
	if err != nil {
		return nil, err
	}
	a.cache.Put(ctx, key, doc)
	return doc, nil
}

// nonPrerelease returns doc with every version key containing "-" removed
// (spec.md §4.3 step 2 / §9 Open Question iii).
func nonPrerelease(doc rawDoc) rawDoc {
	filtered := make(rawDoc, len(doc))
	for k, rec := range doc {
		if version.IsPrerelease(k) {
			continue
		}
		filtered[k] = rec
	}
	return filtered
}

func toPackageInfo(name, versionKey string, rec versionRecord) (*PackageInfo, error) {
	v, err := version.Parse(versionKey)
	if err != nil {
		return nil, &DecodeError{Name: name, Err: err}
	}
	info := &PackageInfo{
		Name:            name,
		ResolvedVersion: v,
		RuntimeDeps:     rec.Runtime,
		DevDeps:         rec.Dev,
		PeerDeps:        rec.Peer,
	}
	if info.RuntimeDeps == nil {
		info.RuntimeDeps = map[string]string{}
	}
	if info.DevDeps == nil {
		info.DevDeps = map[string]string{}
	}
	if info.PeerDeps == nil {
		info.PeerDeps = map[string]string{}
	}
	return info, nil
}

// Fetch resolves (name, rangeString) to a concrete PackageInfo: exact
// concrete versions are matched literally, otherwise the newest version
// satisfying the range is selected (spec.md §4.3 steps 3-4).
func (a *Adapter) Fetch(ctx context.Context, name, rangeString string) (*PackageInfo, error) {
	doc, err := a.getDoc(ctx, name, rangeString)
	if err != nil {
		return nil, err
	}
	filtered := nonPrerelease(doc)
	if len(filtered) == 0 {
		return nil, &ErrNotFound{Name: name, Range: rangeString}
	}

	if concrete, err := version.Parse(rangeString); err == nil {
		for k, rec := range filtered {
			pv, err := version.Parse(k)
			if err == nil && pv == concrete {
				return toPackageInfo(name, k, rec)
			}
		}
	}

	r, err := version.ParseRange(rangeString)
	if err != nil {
		return nil, &ErrNotFound{Name: name, Range: rangeString}
	}
	candidates := make([]version.Version, 0, len(filtered))
	byVersion := make(map[version.Version]string, len(filtered))
	for k := range filtered {
		v, err := version.Parse(k)
		if err != nil {
			continue
		}
		candidates = append(candidates, v)
		byVersion[v] = k
	}
	best, ok := version.BestMatch(r, candidates)
	if !ok {
		return nil, &ErrNotFound{Name: name, Range: rangeString}
	}
	k := byVersion[best]
	return toPackageInfo(name, k, filtered[k])
}

// AvailableVersions returns all non-prerelease versions of name,
// newest-first, triggering a fetch of (name, "*") on a cache miss.
func (a *Adapter) AvailableVersions(ctx context.Context, name string) ([]version.Version, error) {
	doc, err := a.getDoc(ctx, name, "*")
	if err != nil {
		return nil, err
	}
	filtered := nonPrerelease(doc)
	vs := make([]version.Version, 0, len(filtered))
	for k := range filtered {
		v, err := version.Parse(k)
		if err != nil {
			continue
		}
		vs = append(vs, v)
	}
	version.SortDescending(vs)
	return vs, nil
}

// PackageAt returns the record for an exact version.
func (a *Adapter) PackageAt(ctx context.Context, name, exactVersion string) (*PackageInfo, error) {
	return a.Fetch(ctx, name, exactVersion)
}
