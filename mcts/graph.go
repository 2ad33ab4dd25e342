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
	"sort"

	"github.com/mctsresolve/resolver/dep"
	"github.com/mctsresolve/resolver/registry"
)

// NodeID indexes DependencyGraph.Nodes; it is scoped to one graph.
type NodeID int

// GraphNode is one node of the external visualization projection of spec's
// §6: a resolved package (Version/IsFound true) or an unresolved name
// (Version holds the first raw range seen for it, IsFound false).
type GraphNode struct {
	ID              NodeID
	Label           string
	Version         string
	IsRoot          bool
	DepCount        int
	IsFound         bool
	ReachedMaxDepth bool
}

// GraphEdge is a directed parent->child edge, carrying the raw dependency
// requirement that produced it.
type GraphEdge struct {
	From        NodeID
	To          NodeID
	Requirement string
	Type        dep.Type
}

// DependencyGraph is the pure projection returned by BuildDependencyGraph;
// it is built once from a completed (or partial) resolution and never
// mutated afterward.
type DependencyGraph struct {
	Nodes []GraphNode
	Edges []GraphEdge
}

func (g *DependencyGraph) addNode(n GraphNode) NodeID {
	n.ID = NodeID(len(g.Nodes))
	g.Nodes = append(g.Nodes, n)
	return n.ID
}

func (g *DependencyGraph) addEdge(from, to NodeID, requirement string, t dep.Type) {
	g.Edges = append(g.Edges, GraphEdge{From: from, To: to, Requirement: requirement, Type: t})
}

func dependencyMapFor(info *registry.PackageInfo, depType dep.Type) map[string]string {
	switch depType {
	case dep.Dev:
		return info.DevDeps
	case dep.Peer:
		return info.PeerDeps
	default:
		return info.RuntimeDeps
	}
}

// BuildDependencyGraph is the pure projection of spec's §6
// build_dependency_graph: it never consults or mutates resolver state, so a
// max-depth placeholder (ReachedMaxDepth=true) can never be mistaken for a
// resolved package by the search itself (spec §9 Open Question ii).
//
// packageInfos holds the resolved record for every package the resolver
// actually fetched, keyed by name. maxDepthOverflowSet names packages whose
// dependencies were never fetched because max_depth was reached; they still
// appear as nodes, marked ReachedMaxDepth and IsFound=false.
func BuildDependencyGraph(packageInfos map[string]*registry.PackageInfo, roots map[string]string, maxDepthOverflowSet map[string]bool, depType dep.Type) *DependencyGraph {
	g := &DependencyGraph{}
	nodeIDs := make(map[string]NodeID)

	ensureNode := func(name string) NodeID {
		if id, ok := nodeIDs[name]; ok {
			return id
		}
		_, isRoot := roots[name]
		info, found := packageInfos[name]
		versionLabel := ""
		depCount := 0
		if found {
			versionLabel = info.ResolvedVersion.String()
			depCount = len(dependencyMapFor(info, depType))
		} else if isRoot {
			versionLabel = roots[name]
		}
		id := g.addNode(GraphNode{
			Label:           name,
			Version:         versionLabel,
			IsRoot:          isRoot,
			DepCount:        depCount,
			IsFound:         found,
			ReachedMaxDepth: maxDepthOverflowSet[name],
		})
		nodeIDs[name] = id
		return id
	}

	seen := make(map[string]bool)
	var names []string
	for n := range roots {
		names = append(names, n)
		seen[n] = true
	}
	for n := range packageInfos {
		if !seen[n] {
			names = append(names, n)
			seen[n] = true
		}
	}
	sort.Strings(names)
	for _, n := range names {
		ensureNode(n)
	}

	for _, name := range names {
		info, ok := packageInfos[name]
		if !ok {
			continue
		}
		from := nodeIDs[name]
		depMap := dependencyMapFor(info, depType)
		depNames := make([]string, 0, len(depMap))
		for d := range depMap {
			depNames = append(depNames, d)
		}
		sort.Strings(depNames)
		for _, depName := range depNames {
			to := ensureNode(depName)
			if !g.Nodes[to].IsFound && g.Nodes[to].Version == "" {
				g.Nodes[to].Version = depMap[depName]
			}
			g.addEdge(from, to, depMap[depName], depType)
		}
	}

	return g
}
