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
Package resolvetest provides a small in-memory package/vulnerability
universe for exercising the resolver end to end, playing the role the
teacher's LocalClient plays for deps.dev/util/resolve: a fixture that
implements the registry and vulnerability collaborators directly, with no
network or DSL text format involved.
*/
package resolvetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// PackageVersion is one published version of a package in a Universe.
type PackageVersion struct {
	Version string
	Runtime map[string]string
	Dev     map[string]string
	Peer    map[string]string
}

// CVE is one vulnerability record to serve from a Universe, matching the
// wire shape vuln.Adapter decodes.
type CVE struct {
	ID            string
	Description   string
	Severity      string
	CVSS          *float64
	AffectedRange string
}

// Universe is an in-memory registry + vulnerability database: it implements
// registry.RawFetcher and vuln.RawFetcher directly, so resolver tests need
// no real transport.
type Universe struct {
	mu       sync.Mutex
	packages map[string][]PackageVersion
	cves     map[string][]CVE
	calls    map[string]int
}

// NewUniverse returns an empty Universe.
func NewUniverse() *Universe {
	return &Universe{
		packages: make(map[string][]PackageVersion),
		cves:     make(map[string][]CVE),
		calls:    make(map[string]int),
	}
}

// AddPackage registers every published version of name. Order does not
// matter; the registry adapter sorts by parsed version.
func (u *Universe) AddPackage(name string, versions ...PackageVersion) *Universe {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.packages[name] = append(u.packages[name], versions...)
	return u
}

// AddCVEs registers vulnerability records served for name's keyword search.
func (u *Universe) AddCVEs(name string, cves ...CVE) *Universe {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cves[name] = append(u.cves[name], cves...)
	return u
}

// FetchCalls returns how many times FetchRaw was invoked for name, for
// assertions that the cache suppressed a redundant remote lookup.
func (u *Universe) FetchCalls(name string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls["registry:"+name]
}

// CVECalls returns how many times FetchCVEs was invoked for name.
func (u *Universe) CVECalls(name string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls["vuln:"+name]
}

type versionRecordWire struct {
	Runtime map[string]string `json:"runtime_deps"`
	Dev     map[string]string `json:"dev_deps"`
	Peer    map[string]string `json:"peer_deps"`
}

// FetchRaw implements registry.RawFetcher: it serializes every known version
// of name into the JSON envelope registry.Adapter expects.
func (u *Universe) FetchRaw(ctx context.Context, name string) ([]byte, error) {
	u.mu.Lock()
	u.calls["registry:"+name]++
	versions := u.packages[name]
	u.mu.Unlock()

	doc := make(map[string]versionRecordWire, len(versions))
	for _, v := range versions {
		doc[v.Version] = versionRecordWire{Runtime: v.Runtime, Dev: v.Dev, Peer: v.Peer}
	}
	return json.Marshal(doc)
}

type cveWire struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	Severity      string   `json:"severity,omitempty"`
	CVSS          *float64 `json:"cvss,omitempty"`
	AffectedRange string   `json:"affected_range,omitempty"`
}

// FetchCVEs implements vuln.RawFetcher. keyword is "<ecosystem-tag> <name>";
// the package name is the last space-separated token.
func (u *Universe) FetchCVEs(ctx context.Context, keyword string) ([]byte, error) {
	name := lastField(keyword)

	u.mu.Lock()
	u.calls["vuln:"+name]++
	items := u.cves[name]
	u.mu.Unlock()

	wire := make([]cveWire, len(items))
	for i, c := range items {
		wire[i] = cveWire{
			ID:            c.ID,
			Description:   c.Description,
			Severity:      c.Severity,
			CVSS:          c.CVSS,
			AffectedRange: c.AffectedRange,
		}
	}
	return json.Marshal(wire)
}

func lastField(s string) string {
	start := 0
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ' ' {
			start = i + 1
			break
		}
	}
	return s[start:]
}

// AssertHasPackage is a small helper for tests wanting a clear failure
// message when a fixture is missing a package they expected to have set up.
func (u *Universe) AssertHasPackage(name string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.packages[name]) == 0 {
		return fmt.Errorf("resolvetest: universe has no package %q", name)
	}
	return nil
}
