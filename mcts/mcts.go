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
	"fmt"
	"math/rand"
	"strings"

	"github.com/mctsresolve/resolver/dep"
	"github.com/mctsresolve/resolver/internal/rlog"
	"github.com/mctsresolve/resolver/registry"
	"github.com/mctsresolve/resolver/version"
	"github.com/mctsresolve/resolver/vuln"
)

// Config carries the search parameters of spec's §4.4, plus the injectable
// randomness and logging the ambient stack needs.
type Config struct {
	MaxIterations      int
	MaxSimulationDepth int
	MaxCompareVersions int
	// MaxDepth bounds the depth build_dependency_graph's projection
	// considers (it supplies an already-computed max_depth_overflow_set);
	// the search loop itself does not consume it directly, but a caller
	// wiring both Resolve and the graph projection can share one Config.
	MaxDepth       int
	Lambda         float64
	InitVersions   bool
	DependencyType dep.Type
	Threshold      *vuln.Threshold

	Rand   *rand.Rand
	Logger *rlog.Logger
}

// DefaultConfig returns the defaults named in spec's §4.4.
func DefaultConfig() Config {
	return Config{
		MaxIterations:      1000,
		MaxSimulationDepth: 100,
		MaxCompareVersions: 20,
		MaxDepth:           5,
		Lambda:             2.0,
		DependencyType:     dep.Runtime,
	}
}

// computeCandidates is the expansion/simulation candidate rule shared by
// spec's §4.4.3 and §4.4.4: newest-first available versions, filtered to
// those satisfying the pending dependency's own range, further narrowed by
// every accumulated peer constraint, capped at MaxCompareVersions, and
// finally filtered by the vulnerability threshold (fail-open on error).
func computeCandidates(ctx context.Context, state ResolverState, pd PendingDependency, cfg Config, reg *registry.Adapter, vulnAdapter *vuln.Adapter, roots map[string]string) ([]version.Version, error) {
	all, err := reg.AvailableVersions(ctx, pd.Name)
	if err != nil {
		return nil, nil
	}

	candidates := make([]version.Version, 0, len(all))
	for _, v := range all {
		if version.Satisfies(pd.RangeString, v) {
			candidates = append(candidates, v)
		}
	}

	if cfg.DependencyType == dep.Peer {
		constraints := state.Constraints[pd.Name]
		if cfg.InitVersions {
			if rootRange, isRoot := roots[pd.Name]; isRoot {
				constraints = append(append([]Constraint{}, constraints...), Constraint{
					Range: normalize(rootRange),
				})
			}
		}
		filtered := make([]version.Version, 0, len(candidates))
		for _, v := range candidates {
			ok := true
			for _, c := range constraints {
				if !version.Satisfies(c.Range, v) {
					ok = false
					break
				}
			}
			if ok {
				filtered = append(filtered, v)
			}
		}
		candidates = filtered
	}

	if len(candidates) > cfg.MaxCompareVersions {
		candidates = candidates[:cfg.MaxCompareVersions]
	}

	if cfg.Threshold != nil && vulnAdapter != nil {
		filtered := make([]version.Version, 0, len(candidates))
		for _, v := range candidates {
			list, err := vulnAdapter.Vulnerabilities(ctx, pd.Name, v.String())
			if err != nil {
				// Fail-open: a threshold check that errors accepts the
				// version (spec §4.4.3 step 4 / §7).
				filtered = append(filtered, v)
				continue
			}
			if cfg.Threshold.Passes(list) {
				filtered = append(filtered, v)
			}
		}
		candidates = filtered
	}

	return candidates, nil
}

// expand attaches one new child to node for the first not-yet-expanded
// candidate of its pending head, returning the new child. If node is
// terminal it is returned unchanged; if no candidate survives filtering, node
// is marked DeadEnd and returned unchanged (spec §4.4.3).
func expand(ctx context.Context, node *SearchNode, cfg Config, reg *registry.Adapter, vulnAdapter *vuln.Adapter, roots map[string]string) (*SearchNode, error) {
	if node.Terminal() {
		return node, nil
	}
	pd := node.State.Pending[0]
	candidates, err := computeCandidates(ctx, node.State, pd, cfg, reg, vulnAdapter, roots)
	if err != nil {
		return nil, err
	}
	for _, v := range candidates {
		key := expandKey{Name: pd.Name, Version: v.String()}
		if node.expanded[key] {
			continue
		}
		next, err := step(ctx, node.State, pd.Name, v.String(), cfg.DependencyType, reg)
		if err != nil {
			node.expanded[key] = true
			continue
		}
		child := newSearchNode(next, node)
		node.Children = append(node.Children, child)
		node.expanded[key] = true
		return child, nil
	}
	node.DeadEnd = true
	return node, nil
}

// diagnosticMessage renders a short, human-readable summary of a
// constraint violation for the last-10 diagnostics list (spec §7).
func diagnosticMessage(state ResolverState) string {
	for name, cs := range state.Constraints {
		for _, c := range cs {
			if c.Range != INVALID {
				continue
			}
			return fmt.Sprintf("%s: required by %s@%s conflicts with an earlier constraint", name, c.RequiredBy, c.RequiredByVersion)
		}
	}
	return "constraint violation (no detail recorded)"
}

// deadEndDiagnosticMessage renders a summary of why pd's name has no
// surviving candidate. It distinguishes a pure range/peer-constraint
// exhaustion (every accumulated peer constraint on the name, so a conflict
// between two unrelated requirers is legible without either ever becoming
// INVALID) from a vulnerability-threshold rejection, by recomputing the
// candidate set once with the threshold disabled.
func deadEndDiagnosticMessage(ctx context.Context, state ResolverState, pd PendingDependency, cfg Config, reg *registry.Adapter, roots map[string]string) string {
	if cfg.Threshold != nil {
		unfiltered := cfg
		unfiltered.Threshold = nil
		if withoutThreshold, err := computeCandidates(ctx, state, pd, unfiltered, reg, nil, roots); err == nil && len(withoutThreshold) > 0 {
			return fmt.Sprintf("%s: all %d candidate version(s) were excluded by the vulnerability threshold", pd.Name, len(withoutThreshold))
		}
	}
	cs := state.Constraints[pd.Name]
	if len(cs) == 0 {
		return fmt.Sprintf("%s: no published version satisfies the requested range", pd.Name)
	}
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = fmt.Sprintf("%s@%s requires %s", c.RequiredBy, c.RequiredByVersion, c.Range)
	}
	return fmt.Sprintf("%s: no version satisfies every constraint: %s", pd.Name, strings.Join(parts, "; "))
}

const maxDiagnostics = 10

func appendDiagnostic(diagnostics []string, msg string) []string {
	diagnostics = append(diagnostics, msg)
	if len(diagnostics) > maxDiagnostics {
		diagnostics = diagnostics[len(diagnostics)-maxDiagnostics:]
	}
	return diagnostics
}
