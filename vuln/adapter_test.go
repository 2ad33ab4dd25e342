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
	"errors"
	"testing"

	rescache "github.com/mctsresolve/resolver/cache"
)

type fakeCVEFetcher struct {
	payload map[string][]byte
	calls   int
	err     error
}

func (f *fakeCVEFetcher) FetchCVEs(ctx context.Context, keyword string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.payload[keyword]; ok {
		return p, nil
	}
	return []byte(`[]`), nil
}

type memStore struct {
	data map[rescache.Key]VulnerabilityList
}

func newMemStore() *memStore { return &memStore{data: map[rescache.Key]VulnerabilityList{}} }

func (m *memStore) Get(ctx context.Context, key rescache.Key) (VulnerabilityList, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Put(ctx context.Context, key rescache.Key, v VulnerabilityList) error {
	m.data[key] = v
	return nil
}

func (m *memStore) All(ctx context.Context) ([]rescache.Entry[VulnerabilityList], error) {
	var entries []rescache.Entry[VulnerabilityList]
	for k, v := range m.data {
		entries = append(entries, rescache.Entry[VulnerabilityList]{Key: k, Value: v})
	}
	return entries, nil
}

func newTestAdapter(f RawFetcher) *Adapter {
	return NewAdapter(f, rescache.New[VulnerabilityList](newMemStore()), "npm", true)
}

func TestVulnerabilitiesDecodesAndDerivesSeverity(t *testing.T) {
	f := &fakeCVEFetcher{payload: map[string][]byte{
		"npm lodash": []byte(`[
			{"id":"CVE-2021-1","description":"proto pollution","severity":"HIGH"},
			{"id":"CVE-2021-2","description":"no label","cvss":9.5},
			{"id":"CVE-2021-3","description":"low sev","cvss":0.5}
		]`),
	}}
	a := newTestAdapter(f)
	list, err := a.Vulnerabilities(context.Background(), "lodash", "4.17.15")
	if err != nil {
		t.Fatalf("Vulnerabilities: %v", err)
	}
	if len(list.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(list.Items))
	}
	if list.Items[0].Severity != High {
		t.Fatalf("Items[0].Severity = %v, want HIGH", list.Items[0].Severity)
	}
	if list.Items[1].Severity != Critical {
		t.Fatalf("Items[1].Severity = %v, want CRITICAL (derived from CVSS 9.5)", list.Items[1].Severity)
	}
	if list.Items[2].Severity != Low {
		t.Fatalf("Items[2].Severity = %v, want LOW (derived from CVSS 0.5)", list.Items[2].Severity)
	}
	counts := list.Counts()
	if counts.Critical != 1 || counts.High != 1 || counts.Low != 1 {
		t.Fatalf("Counts() = %+v, want {Critical:1 High:1 Low:1}", counts)
	}
}

func TestVulnerabilitiesCachesUnderResolvedVersion(t *testing.T) {
	f := &fakeCVEFetcher{payload: map[string][]byte{"npm lodash": []byte(`[]`)}}
	a := newTestAdapter(f)
	ctx := context.Background()
	if _, err := a.Vulnerabilities(ctx, "lodash", "4.17.15"); err != nil {
		t.Fatalf("Vulnerabilities: %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("expected one remote fetch, got %d", f.calls)
	}
	if _, err := a.Vulnerabilities(ctx, "lodash", "4.17.15"); err != nil {
		t.Fatalf("Vulnerabilities: %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("expected second lookup to hit cache, got %d remote calls", f.calls)
	}
}

func TestVulnerabilitiesKeywordIncludesEcosystemTag(t *testing.T) {
	f := &fakeCVEFetcher{payload: map[string][]byte{"npm left-pad": []byte(`[]`)}}
	a := newTestAdapter(f)
	if _, err := a.Vulnerabilities(context.Background(), "left-pad", "1.0.0"); err != nil {
		t.Fatalf("Vulnerabilities: %v", err)
	}
}

func TestVulnerabilitiesTransportError(t *testing.T) {
	f := &fakeCVEFetcher{err: errors.New("connection reset")}
	a := newTestAdapter(f)
	_, err := a.Vulnerabilities(context.Background(), "lodash", "4.17.15")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestVulnerabilitiesDecodeError(t *testing.T) {
	f := &fakeCVEFetcher{payload: map[string][]byte{"npm lodash": []byte(`not json`)}}
	a := newTestAdapter(f)
	_, err := a.Vulnerabilities(context.Background(), "lodash", "4.17.15")
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}
