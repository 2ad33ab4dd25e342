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
Package mcts implements the constraint-and-vulnerability-aware Monte Carlo
Tree Search resolver: the state model, tree, UCB1 selection, simulation,
backpropagation and solution extraction.
*/
package mcts

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/mctsresolve/resolver/dep"
	"github.com/mctsresolve/resolver/registry"
	"github.com/mctsresolve/resolver/version"
)

// INVALID is the sentinel range marking a known-unsatisfiable constraint; its
// presence in a package's constraint list makes the owning state terminal and
// invalid.
const INVALID = "INVALID"

// Constraint is a range imposed on a package name by some requiring package,
// optionally pinned to the requirer's resolved version.
type Constraint struct {
	Range             string
	RequiredBy        string
	RequiredByVersion string
}

// PendingDependency is a (name, range, required_by) triple queued for future
// resolution. Order within ResolverState.Pending is the search's decision
// order.
type PendingDependency struct {
	Name        string
	RangeString string
	RequiredBy  string
}

// ResolverState is one node's assignment: resolved packages, the pending
// queue and accumulated peer constraints.
type ResolverState struct {
	Resolved    map[string]string
	Pending     []PendingDependency
	Constraints map[string][]Constraint
}

func newResolverState() ResolverState {
	return ResolverState{
		Resolved:    map[string]string{},
		Constraints: map[string][]Constraint{},
	}
}

// clone deep-copies a state; SearchNode states are never mutated in place.
func (s ResolverState) clone() ResolverState {
	resolved := make(map[string]string, len(s.Resolved))
	for k, v := range s.Resolved {
		resolved[k] = v
	}
	pending := make([]PendingDependency, len(s.Pending))
	copy(pending, s.Pending)
	constraints := make(map[string][]Constraint, len(s.Constraints))
	for k, cs := range s.Constraints {
		dup := make([]Constraint, len(cs))
		copy(dup, cs)
		constraints[k] = dup
	}
	return ResolverState{Resolved: resolved, Pending: pending, Constraints: constraints}
}

// ViolatesConstraints reports whether any accumulated constraint is the
// INVALID sentinel.
func (s ResolverState) ViolatesConstraints() bool {
	for _, cs := range s.Constraints {
		for _, c := range cs {
			if c.Range == INVALID {
				return true
			}
		}
	}
	return false
}

// Terminal reports whether pending is empty or the state violates a
// constraint.
func (s ResolverState) Terminal() bool {
	return len(s.Pending) == 0 || s.ViolatesConstraints()
}

var bareVersionRE = regexp.MustCompile(`^\d+(\.\d+){0,2}$`)

// normalize rewrites a bare concrete version ("1.2.3") into its caret range
// ("^1.2.3"); anything already carrying an operator or wildcard passes
// through unchanged. It is idempotent: normalize(normalize(s)) == normalize(s).
func normalize(rangeRaw string) string {
	if bareVersionRE.MatchString(rangeRaw) {
		return "^" + rangeRaw
	}
	return rangeRaw
}

// step applies the resolution of name@versionStr to state, per spec's
// state-transition rules: the dependency type selects one match site for
// peer constraint accounting, everything else is shared.
func step(ctx context.Context, state ResolverState, name, versionStr string, depType dep.Type, reg *registry.Adapter) (ResolverState, error) {
	if len(state.Pending) == 0 || state.Pending[0].Name != name {
		return ResolverState{}, fmt.Errorf("mcts: step: pending head is not %s", name)
	}

	next := state.clone()
	next.Resolved[name] = versionStr
	next.Pending = next.Pending[1:]

	info, err := reg.PackageAt(ctx, name, versionStr)
	if err != nil {
		return ResolverState{}, err
	}

	var depMap map[string]string
	switch depType {
	case dep.Dev:
		depMap = info.DevDeps
	case dep.Peer:
		depMap = info.PeerDeps
	default:
		depMap = info.RuntimeDeps
	}

	depNames := make([]string, 0, len(depMap))
	for n := range depMap {
		depNames = append(depNames, n)
	}
	sort.Strings(depNames)

	for _, depName := range depNames {
		depRange := normalize(depMap[depName])

		_, resolved := next.Resolved[depName]
		alreadyPending := false
		for _, p := range next.Pending {
			if p.Name == depName {
				alreadyPending = true
				break
			}
		}
		if !resolved && !alreadyPending {
			next.Pending = append(next.Pending, PendingDependency{
				Name:        depName,
				RangeString: depRange,
				RequiredBy:  name,
			})
		}

		if depType != dep.Peer {
			continue
		}

		if resolvedVersion, ok := next.Resolved[depName]; ok {
			cv, err := version.Parse(resolvedVersion)
			if err != nil || !version.Satisfies(depRange, cv) {
				next.Constraints[depName] = []Constraint{{
					Range:             INVALID,
					RequiredBy:        name,
					RequiredByVersion: versionStr,
				}}
			}
			continue
		}
		next.Constraints[depName] = append(next.Constraints[depName], Constraint{
			Range:             depRange,
			RequiredBy:        name,
			RequiredByVersion: versionStr,
		})
	}

	return next, nil
}
