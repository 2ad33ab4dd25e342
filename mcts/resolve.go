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
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/mctsresolve/resolver/registry"
	"github.com/mctsresolve/resolver/vuln"
)

// OutcomeKind tags the three closed cases of an Outcome.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	PartialFailure
	Failure
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "Success"
	case PartialFailure:
		return "PartialFailure"
	default:
		return "Failure"
	}
}

// Outcome is the resolver's result, plain data rather than an error: a
// concrete version per package on success, or the best partial assignment
// plus diagnostics on failure.
type Outcome struct {
	Kind            OutcomeKind
	Assignment      map[string]string
	Diagnostics     []string
	TerminalSummary string
}

// Resolve is the entry point of spec's §6: it seeds an initial search state
// from roots, runs Select/Expand/Simulate/Backpropagate up to
// cfg.MaxIterations times, and extracts a solution.
func Resolve(ctx context.Context, roots map[string]string, cfg Config, reg *registry.Adapter, vulnAdapter *vuln.Adapter) (Outcome, error) {
	state := newResolverState()

	names := make([]string, 0, len(roots))
	for n := range roots {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		state.Pending = append(state.Pending, PendingDependency{
			Name:        n,
			RangeString: normalize(roots[n]),
		})
	}

	root := newSearchNode(state, nil)

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	var diagnostics []string
	var bestSim ResolverState
	var bestSimReward float64
	var haveBestSim bool

	for i := 0; i < cfg.MaxIterations; i++ {
		select {
		case <-ctx.Done():
			return cancelledOutcome(bestSim, haveBestSim, diagnostics), ctx.Err()
		default:
		}

		node := root
		for !node.Terminal() && node.FullyExpanded() {
			child := node.selectChild()
			if child == nil {
				break
			}
			node = child
		}

		var simNode *SearchNode
		if node.Terminal() {
			simNode = node
		} else {
			child, err := expand(ctx, node, cfg, reg, vulnAdapter, roots)
			if err != nil {
				return Outcome{}, err
			}
			simNode = child
		}

		// A dead end is re-diagnosed on every attempt that lands on it, not
		// only the attempt that discovered it, so a search that exhausts its
		// whole iteration budget against one unsatisfiable dependency still
		// surfaces the diagnostic in the last-10 window (spec's all-rejected
		// scenario).
		if simNode.DeadEnd && len(simNode.State.Pending) > 0 {
			msg := deadEndDiagnosticMessage(ctx, simNode.State, simNode.State.Pending[0], cfg, reg, roots)
			diagnostics = appendDiagnostic(diagnostics, msg)
			if cfg.Logger != nil {
				cfg.Logger.Logf("mcts: dead end: %s", msg)
			}
		}

		finalState, reward, err := simulate(ctx, simNode.State, cfg, reg, vulnAdapter, roots, rng)
		if err != nil {
			return Outcome{}, err
		}

		if finalState.ViolatesConstraints() {
			msg := diagnosticMessage(finalState)
			diagnostics = appendDiagnostic(diagnostics, msg)
			if cfg.Logger != nil {
				cfg.Logger.Logf("mcts: constraint violation: %s", msg)
			}
		}

		if reward > 0 && (!haveBestSim || reward > bestSimReward) {
			bestSim = finalState
			bestSimReward = reward
			haveBestSim = true
		}

		backpropagate(simNode, reward)
	}

	return extractSolution(root, bestSim, haveBestSim, diagnostics), nil
}

func cancelledOutcome(bestSim ResolverState, haveBestSim bool, diagnostics []string) Outcome {
	if haveBestSim && !bestSim.ViolatesConstraints() && len(bestSim.Pending) == 0 {
		return Outcome{Kind: Success, Assignment: bestSim.Resolved}
	}
	return Outcome{
		Kind:            Failure,
		Diagnostics:     diagnostics,
		TerminalSummary: "search cancelled before an iteration budget was exhausted",
	}
}

// extractSolution implements spec's §4.4.7: pick the highest-reward terminal
// node; if it is valid, return it; else fall back to the best-simulation
// assignment if valid; else report a structured Failure.
func extractSolution(root *SearchNode, bestSim ResolverState, haveBestSim bool, diagnostics []string) Outcome {
	terminals := collectTerminalNodes(root)
	best := bestTerminalNode(terminals)

	if best != nil && !best.State.ViolatesConstraints() && len(best.State.Pending) == 0 {
		return Outcome{Kind: Success, Assignment: best.State.Resolved}
	}

	if haveBestSim && !bestSim.ViolatesConstraints() && len(bestSim.Pending) == 0 {
		return Outcome{Kind: Success, Assignment: bestSim.Resolved}
	}

	var partial map[string]string
	if best != nil && len(best.State.Resolved) > 0 {
		partial = best.State.Resolved
	} else if haveBestSim && len(bestSim.Resolved) > 0 {
		partial = bestSim.Resolved
	}

	summary := terminalSummary(terminals)
	if partial != nil {
		return Outcome{
			Kind:            PartialFailure,
			Assignment:      partial,
			Diagnostics:     diagnostics,
			TerminalSummary: summary,
		}
	}
	return Outcome{
		Kind:            Failure,
		Diagnostics:     diagnostics,
		TerminalSummary: summary,
	}
}

func collectTerminalNodes(root *SearchNode) []*SearchNode {
	var out []*SearchNode
	var walk func(n *SearchNode)
	walk = func(n *SearchNode) {
		if n.Terminal() {
			out = append(out, n)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return out
}

// bestTerminalNode returns the terminal node with the highest reward/visits
// ratio, ties broken by first encountered.
func bestTerminalNode(nodes []*SearchNode) *SearchNode {
	var best *SearchNode
	bestScore := math.Inf(-1)
	for _, n := range nodes {
		if n.Visits == 0 {
			continue
		}
		score := n.RewardSum / float64(n.Visits)
		if score > bestScore {
			bestScore = score
			best = n
		}
	}
	return best
}

func terminalSummary(nodes []*SearchNode) string {
	if len(nodes) == 0 {
		return "no terminal node was reached"
	}
	var valid, invalid, incomplete int
	for _, n := range nodes {
		switch {
		case n.State.ViolatesConstraints():
			invalid++
		case len(n.State.Pending) != 0:
			incomplete++
		default:
			valid++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d terminal node(s) considered: %d valid, %d constraint-violating, %d dead-end", len(nodes), valid, invalid, incomplete)
	return b.String()
}
