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

package mcts

import (
	"context"
	"testing"

	"github.com/mctsresolve/resolver/dep"
	"github.com/mctsresolve/resolver/internal/resolvetest"
	"github.com/mctsresolve/resolver/registry"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"1.2.3":  "^1.2.3",
		"1.2":    "^1.2",
		"1":      "^1",
		"^1.2.3": "^1.2.3",
		"~1.2.3": "~1.2.3",
		">=1.0.0": ">=1.0.0",
		"*":      "*",
	}
	for in, want := range cases {
		if got := normalize(in); got != want {
			t.Errorf("normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, s := range []string{"1.2.3", "^1.2.3", "~1.0", ">=2.0.0"} {
		once := normalize(s)
		twice := normalize(once)
		if once != twice {
			t.Errorf("normalize not idempotent on %q: %q vs %q", s, once, twice)
		}
	}
}

func TestStepQueuesRuntimeDeps(t *testing.T) {
	u := resolvetest.NewUniverse().AddPackage("a",
		resolvetest.PackageVersion{Version: "1.0.0", Runtime: map[string]string{"b": "^1.0.0"}},
	).AddPackage("b",
		resolvetest.PackageVersion{Version: "1.0.0"},
	)
	reg := registry.NewInMemoryAdapter(u)

	state := newResolverState()
	state.Pending = []PendingDependency{{Name: "a", RangeString: "^1.0.0"}}

	next, err := step(context.Background(), state, "a", "1.0.0", dep.Runtime, reg)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if next.Resolved["a"] != "1.0.0" {
		t.Errorf("a not resolved to 1.0.0: %v", next.Resolved)
	}
	if len(next.Pending) != 1 || next.Pending[0].Name != "b" {
		t.Fatalf("expected b pending, got %+v", next.Pending)
	}
	if next.Pending[0].RangeString != "^1.0.0" {
		t.Errorf("b range = %q, want ^1.0.0", next.Pending[0].RangeString)
	}
}

func TestStepPeerConflictMarksInvalid(t *testing.T) {
	u := resolvetest.NewUniverse().
		AddPackage("a", resolvetest.PackageVersion{Version: "1.0.0", Peer: map[string]string{"shared": "^2.0.0"}}).
		AddPackage("shared", resolvetest.PackageVersion{Version: "1.0.0"}, resolvetest.PackageVersion{Version: "2.0.0"})
	reg := registry.NewInMemoryAdapter(u)

	state := newResolverState()
	state.Resolved["shared"] = "1.0.0"
	state.Pending = []PendingDependency{{Name: "a", RangeString: "^1.0.0"}}

	next, err := step(context.Background(), state, "a", "1.0.0", dep.Peer, reg)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !next.ViolatesConstraints() {
		t.Fatalf("expected peer conflict to violate constraints: %+v", next.Constraints)
	}
}

func TestResolverStateTerminal(t *testing.T) {
	s := newResolverState()
	if !s.Terminal() {
		t.Error("empty pending state should be terminal")
	}
	s.Pending = []PendingDependency{{Name: "x"}}
	if s.Terminal() {
		t.Error("non-empty pending, no violation, should not be terminal")
	}
	s.Constraints["x"] = []Constraint{{Range: INVALID}}
	if !s.Terminal() {
		t.Error("a violating constraint should make the state terminal")
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := newResolverState()
	s.Resolved["a"] = "1.0.0"
	s.Pending = []PendingDependency{{Name: "b"}}
	s.Constraints["c"] = []Constraint{{Range: "^1.0.0"}}

	c := s.clone()
	c.Resolved["a"] = "2.0.0"
	c.Pending[0].Name = "z"
	c.Constraints["c"][0].Range = "INVALID"

	if s.Resolved["a"] != "1.0.0" {
		t.Error("clone mutation leaked into original Resolved")
	}
	if s.Pending[0].Name != "b" {
		t.Error("clone mutation leaked into original Pending")
	}
	if s.Constraints["c"][0].Range != "^1.0.0" {
		t.Error("clone mutation leaked into original Constraints")
	}
}
