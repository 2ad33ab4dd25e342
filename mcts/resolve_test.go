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
	"math/rand"
	"strings"
	"testing"

	"github.com/mctsresolve/resolver/dep"
	"github.com/mctsresolve/resolver/internal/resolvetest"
	"github.com/mctsresolve/resolver/registry"
	"github.com/mctsresolve/resolver/vuln"
)

func testConfig(seed int64) Config {
	cfg := DefaultConfig()
	cfg.MaxIterations = 64
	cfg.MaxSimulationDepth = 20
	cfg.Rand = rand.New(rand.NewSource(seed))
	return cfg
}

// Scenario A: trivial success.
func TestResolveTrivialSuccess(t *testing.T) {
	u := resolvetest.NewUniverse().AddPackage("lodash",
		resolvetest.PackageVersion{Version: "4.17.21"},
		resolvetest.PackageVersion{Version: "4.17.20"},
		resolvetest.PackageVersion{Version: "4.17.19"},
	)
	reg := registry.NewInMemoryAdapter(u)

	outcome, err := Resolve(context.Background(), map[string]string{"lodash": "^4.17.0"}, testConfig(1), reg, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if outcome.Kind != Success {
		t.Fatalf("Kind = %v, want Success (diagnostics: %v)", outcome.Kind, outcome.Diagnostics)
	}
	if outcome.Assignment["lodash"] != "4.17.21" {
		t.Errorf("lodash assigned %q, want 4.17.21", outcome.Assignment["lodash"])
	}
}

// Scenario B: threshold filter picks the oldest CVE-free version.
func TestResolveThresholdFiltersVulnerableVersions(t *testing.T) {
	u := resolvetest.NewUniverse().
		AddPackage("lodash",
			resolvetest.PackageVersion{Version: "4.17.21"},
			resolvetest.PackageVersion{Version: "4.17.20"},
			resolvetest.PackageVersion{Version: "4.17.19"},
		).
		AddCVEs("lodash", resolvetest.CVE{
			ID: "CVE-TEST-1", Severity: "HIGH", AffectedRange: ">=4.17.20",
		})
	reg := registry.NewInMemoryAdapter(u)
	vulnAdapter := vuln.NewInMemoryAdapter(u, "npm", false)

	cfg := testConfig(2)
	th, ok := vuln.ParseThreshold("HIGH")
	if !ok {
		t.Fatal("ParseThreshold(HIGH) should be enabled")
	}
	cfg.Threshold = &th

	outcome, err := Resolve(context.Background(), map[string]string{"lodash": "^4.17.0"}, cfg, reg, vulnAdapter)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if outcome.Kind != Success {
		t.Fatalf("Kind = %v, want Success (diagnostics: %v)", outcome.Kind, outcome.Diagnostics)
	}
	if outcome.Assignment["lodash"] != "4.17.19" {
		t.Errorf("lodash assigned %q, want 4.17.19 (only CVE-free version)", outcome.Assignment["lodash"])
	}
}

// Scenario C: a peer conflict between two independent roots is reported,
// not silently dropped, and neither constraint is lost from the diagnostic.
func TestResolvePeerConflictReportsBothConstraints(t *testing.T) {
	u := resolvetest.NewUniverse().
		AddPackage("X", resolvetest.PackageVersion{Version: "1.0.0", Peer: map[string]string{"react": "^17.0.0"}}).
		AddPackage("Y", resolvetest.PackageVersion{Version: "1.0.0", Peer: map[string]string{"react": "^18.0.0"}}).
		AddPackage("react", resolvetest.PackageVersion{Version: "17.0.2"}, resolvetest.PackageVersion{Version: "18.2.0"})
	reg := registry.NewInMemoryAdapter(u)

	cfg := testConfig(3)
	cfg.DependencyType = dep.Peer

	outcome, err := Resolve(context.Background(), map[string]string{"X": "^1.0.0", "Y": "^1.0.0"}, cfg, reg, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if outcome.Kind == Success {
		t.Fatalf("expected the react peer conflict to prevent Success, got %+v", outcome)
	}
	joined := strings.Join(outcome.Diagnostics, "\n")
	if !strings.Contains(joined, "react") {
		t.Fatalf("diagnostics should name react: %v", outcome.Diagnostics)
	}
	if !strings.Contains(joined, "^17.0.0") || !strings.Contains(joined, "^18.0.0") {
		t.Errorf("diagnostics should list both constraints: %v", outcome.Diagnostics)
	}
}

// Scenario D: a bare concrete root version is normalized to a caret range,
// so a newer compatible version is still a valid pick.
func TestResolveNormalizesRootConstraint(t *testing.T) {
	u := resolvetest.NewUniverse().AddPackage("pkg",
		resolvetest.PackageVersion{Version: "1.2.3"},
		resolvetest.PackageVersion{Version: "1.3.5"},
	)
	reg := registry.NewInMemoryAdapter(u)

	cfg := testConfig(4)
	cfg.InitVersions = true

	outcome, err := Resolve(context.Background(), map[string]string{"pkg": "1.2.3"}, cfg, reg, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if outcome.Kind != Success {
		t.Fatalf("Kind = %v, want Success (diagnostics: %v)", outcome.Kind, outcome.Diagnostics)
	}
	if outcome.Assignment["pkg"] != "1.3.5" {
		t.Errorf("pkg assigned %q, want 1.3.5 — the root constraint should normalize to ^1.2.3, not stay pinned to 1.2.3 exact", outcome.Assignment["pkg"])
	}
}

// Scenario F: every published version is rejected by the threshold, and the
// CVE-filter diagnostic survives in the last-10 window.
func TestResolveAllVersionsRejectedByThreshold(t *testing.T) {
	u := resolvetest.NewUniverse().
		AddPackage("pkg",
			resolvetest.PackageVersion{Version: "1.0.0"},
			resolvetest.PackageVersion{Version: "2.0.0"},
			resolvetest.PackageVersion{Version: "3.0.0"},
		).
		AddCVEs("pkg", resolvetest.CVE{ID: "CVE-TEST-2", Severity: "CRITICAL"})
	reg := registry.NewInMemoryAdapter(u)
	vulnAdapter := vuln.NewInMemoryAdapter(u, "npm", false)

	cfg := testConfig(5)
	th, _ := vuln.ParseThreshold("CRITICAL")
	cfg.Threshold = &th

	outcome, err := Resolve(context.Background(), map[string]string{"pkg": "*"}, cfg, reg, vulnAdapter)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if outcome.Kind == Success {
		t.Fatalf("expected every version to be rejected, got Success: %+v", outcome)
	}
	if len(outcome.Diagnostics) == 0 {
		t.Fatal("expected at least one CVE-filter diagnostic")
	}
	for _, d := range outcome.Diagnostics {
		if !strings.Contains(d, "vulnerability threshold") {
			t.Errorf("diagnostic %q does not describe the threshold rejection", d)
		}
	}
}

// Scenario E: when the tree's best terminal node violates a constraint but
// an earlier rollout produced a valid complete assignment, extractSolution
// must return that rollout's assignment rather than report failure.
func TestExtractSolutionBestSimulationFallback(t *testing.T) {
	root := newSearchNode(newResolverState(), nil)
	violating := newResolverState()
	violating.Resolved["pkg"] = "1.0.0"
	violating.Constraints["pkg"] = []Constraint{{Range: INVALID}}
	terminalChild := newSearchNode(violating, root)
	terminalChild.Visits = 5
	terminalChild.RewardSum = 0
	root.Children = []*SearchNode{terminalChild}

	bestSim := newResolverState()
	bestSim.Resolved["pkg"] = "2.0.0"

	outcome := extractSolution(root, bestSim, true, nil)
	if outcome.Kind != Success {
		t.Fatalf("Kind = %v, want Success", outcome.Kind)
	}
	if outcome.Assignment["pkg"] != "2.0.0" {
		t.Errorf("assignment = %v, want the rollout's {pkg: 2.0.0}", outcome.Assignment)
	}
}
