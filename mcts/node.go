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

import "math"

// expandKey identifies one (name, version) pair already expanded as a child
// of a SearchNode.
type expandKey struct {
	Name    string
	Version string
}

// SearchNode is one node of the search tree: it owns its state, its children,
// and the set of (name, version) pairs already expanded from it. Parent is a
// non-owning back-reference used only during backpropagation.
type SearchNode struct {
	State     ResolverState
	Parent    *SearchNode
	Children  []*SearchNode
	Visits    int
	RewardSum float64
	expanded  map[expandKey]bool

	// DeadEnd marks a node whose pending head had no surviving candidates
	// during expansion: spec's "node has no progress — it counts as a
	// terminal failure at this pending step". The state itself is not
	// terminal (pending is non-empty), so this flag is tracked alongside it.
	DeadEnd bool
}

func newSearchNode(state ResolverState, parent *SearchNode) *SearchNode {
	return &SearchNode{
		State:    state,
		Parent:   parent,
		expanded: map[expandKey]bool{},
	}
}

// Terminal reports whether n is terminal for search purposes: either its
// state is terminal, or it hit a dead end during expansion.
func (n *SearchNode) Terminal() bool {
	return n.State.Terminal() || n.DeadEnd
}

// FullyExpanded reports whether n is terminal, or has at least one child and
// every child has been visited at least once.
func (n *SearchNode) FullyExpanded() bool {
	if n.Terminal() {
		return true
	}
	if len(n.Children) == 0 {
		return false
	}
	for _, c := range n.Children {
		if c.Visits == 0 {
			return false
		}
	}
	return true
}

// ucbC is the UCB1 exploration constant, C = sqrt(2).
var ucbC = math.Sqrt2

// selectChild returns the child maximizing UCB1, assigning +Inf to any
// unvisited child.
func (n *SearchNode) selectChild() *SearchNode {
	var best *SearchNode
	bestScore := math.Inf(-1)
	lnParent := math.Log(float64(n.Visits))
	for _, c := range n.Children {
		var score float64
		if c.Visits == 0 {
			score = math.Inf(1)
		} else {
			score = c.RewardSum/float64(c.Visits) + ucbC*math.Sqrt(lnParent/float64(c.Visits))
		}
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	return best
}

// backpropagate walks from n to the root, incrementing visits and adding
// reward at each node exactly once.
func backpropagate(n *SearchNode, reward float64) {
	for cur := n; cur != nil; cur = cur.Parent {
		cur.Visits++
		cur.RewardSum += reward
	}
}
