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
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/mctsresolve/resolver/cache"
	"github.com/mctsresolve/resolver/version"
)

// RawFetcher is the vulnerability collaborator of spec.md §6: a keyword
// search against the upstream vulnerability database, returning its
// native JSON payload as bytes.
type RawFetcher interface {
	FetchCVEs(ctx context.Context, keyword string) ([]byte, error)
}

// Adapter is the Vulnerability Adapter of spec.md §4.3: cache-first CVE
// lookup by (package name, resolved version), rate-limited on remote
// fallback.
type Adapter struct {
	fetcher      RawFetcher
	cache        *cache.Cache[VulnerabilityList]
	ecosystemTag string
	limiter      *rateLimiter
}

// NewAdapter constructs an Adapter. ecosystemTag is prefixed onto every
// keyword search (e.g. "npm", "PyPI"); authenticated selects the rate
// limit interval of spec.md §4.3.
func NewAdapter(fetcher RawFetcher, c *cache.Cache[VulnerabilityList], ecosystemTag string, authenticated bool) *Adapter {
	interval := IntervalUnauthenticated
	if authenticated {
		interval = IntervalAuthenticated
	}
	return &Adapter{
		fetcher:      fetcher,
		cache:        c,
		ecosystemTag: ecosystemTag,
		limiter:      newRateLimiter(interval),
	}
}

// NewInMemoryAdapter constructs an Adapter backed by a process-local cache
// with no durable tier, mirroring registry.NewInMemoryAdapter for callers
// (tests, short-lived embeddings) with no BoltStore to offer.
func NewInMemoryAdapter(fetcher RawFetcher, ecosystemTag string, authenticated bool) *Adapter {
	c := cache.New(cache.NewMapDurableStore[VulnerabilityList](), cache.WithMemoryTier[VulnerabilityList](1024))
	return NewAdapter(fetcher, c, ecosystemTag, authenticated)
}

// DefaultListCodec is a JSON Codec for VulnerabilityList, suitable for
// wiring a cache.BoltStore[VulnerabilityList] durable tier.
func DefaultListCodec() cache.Codec[VulnerabilityList] {
	return cache.Codec[VulnerabilityList]{
		Encode: func(l VulnerabilityList) ([]byte, error) { return json.Marshal(l) },
		Decode: func(b []byte) (VulnerabilityList, error) {
			var l VulnerabilityList
			err := json.Unmarshal(b, &l)
			return l, err
		},
	}
}

// cveWire is the upstream JSON shape for a single CVE record. Severity
// is an optional explicit label; when absent, it is derived from CVSS.
type cveWire struct {
	ID            string     `json:"id"`
	Description   string     `json:"description"`
	Severity      string     `json:"severity,omitempty"`
	CVSS          *float64   `json:"cvss,omitempty"`
	Published     *time.Time `json:"published,omitempty"`
	Modified      *time.Time `json:"modified,omitempty"`
	References    []string   `json:"references,omitempty"`
	AffectedRange string     `json:"affected_range,omitempty"`
}

func severityOf(w cveWire) Severity {
	switch w.Severity {
	case "CRITICAL":
		return Critical
	case "HIGH":
		return High
	case "MEDIUM":
		return Medium
	case "LOW":
		return Low
	case "NONE":
		return None
	}
	if w.CVSS != nil {
		return SeverityFromCVSS(*w.CVSS)
	}
	return Unknown
}

func decodeList(keyword string, raw []byte) (VulnerabilityList, error) {
	var wire []cveWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return VulnerabilityList{}, &DecodeError{Keyword: keyword, Err: errors.Wrapf(err, "decoding CVE payload for %q", keyword)}
	}
	items := make([]CveItem, len(wire))
	for i, w := range wire {
		items[i] = CveItem{
			ID:            w.ID,
			Description:   w.Description,
			Severity:      severityOf(w),
			CVSS:          w.CVSS,
			Published:     w.Published,
			Modified:      w.Modified,
			References:    w.References,
			AffectedRange: w.AffectedRange,
		}
	}
	return VulnerabilityList{Items: items}, nil
}

// filterByVersion narrows a package-wide CVE list down to the records that
// affect resolvedVersion; an item with no AffectedRange affects every
// version. A resolvedVersion that fails to parse disables narrowing (every
// record is kept, erring toward the safer over-count).
func filterByVersion(list VulnerabilityList, resolvedVersion string) VulnerabilityList {
	cv, err := version.Parse(resolvedVersion)
	if err != nil {
		return list
	}
	filtered := make([]CveItem, 0, len(list.Items))
	for _, it := range list.Items {
		if it.AffectedRange == "" || version.Satisfies(it.AffectedRange, cv) {
			filtered = append(filtered, it)
		}
	}
	return VulnerabilityList{Items: filtered}
}

// Vulnerabilities returns the known CVEs for (name, resolvedVersion).
// Cache-first; on a miss it rate-limits, searches the upstream database
// with keyword "<ecosystemTag> <name>", decodes and normalizes the
// result, and caches it under the resolved version.
//
// Transport and decode failures are returned to the caller rather than
// swallowed here: the resolver's fail-open policy (spec.md §7) is a
// property of the threshold check that consumes this list, not of the
// adapter.
func (a *Adapter) Vulnerabilities(ctx context.Context, name, resolvedVersion string) (VulnerabilityList, error) {
	key := cache.Key{Name: name, VersionKey: resolvedVersion}
	if list, ok := a.cache.Get(ctx, key); ok {
		return list, nil
	}

	keyword := a.ecosystemTag + " " + name
	if err := a.limiter.wait(ctx); err != nil {
		return VulnerabilityList{}, err
	}
	raw, err := a.fetcher.FetchCVEs(ctx, keyword)
	if err != nil {
		return VulnerabilityList{}, &TransportError{Keyword: keyword, Err: err}
	}
	list, err := decodeList(keyword, raw)
	if err != nil {
		return VulnerabilityList{}, err
	}
	list = filterByVersion(list, resolvedVersion)
	a.cache.Put(ctx, key, list)
	return list, nil
}
