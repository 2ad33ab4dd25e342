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
	"testing"

	"github.com/mctsresolve/resolver/dep"
	"github.com/mctsresolve/resolver/registry"
	"github.com/mctsresolve/resolver/version"
)

func mustVersion(t *testing.T, s string) version.Version {
	t.Helper()
	v, err := version.Parse(s)
	if err != nil {
		t.Fatalf("version.Parse(%q): %v", s, err)
	}
	return v
}

func TestBuildDependencyGraphRootsAndEdges(t *testing.T) {
	infos := map[string]*registry.PackageInfo{
		"a": {
			Name:            "a",
			ResolvedVersion: mustVersion(t, "1.0.0"),
			RuntimeDeps:     map[string]string{"b": "^1.0.0"},
		},
		"b": {
			Name:            "b",
			ResolvedVersion: mustVersion(t, "1.5.0"),
			RuntimeDeps:     map[string]string{},
		},
	}
	roots := map[string]string{"a": "^1.0.0"}

	g := BuildDependencyGraph(infos, roots, nil, dep.Runtime)

	if len(g.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d: %+v", len(g.Nodes), g.Nodes)
	}
	if len(g.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %d: %+v", len(g.Edges), g.Edges)
	}

	var aNode, bNode *GraphNode
	for i := range g.Nodes {
		switch g.Nodes[i].Label {
		case "a":
			aNode = &g.Nodes[i]
		case "b":
			bNode = &g.Nodes[i]
		}
	}
	if aNode == nil || !aNode.IsRoot {
		t.Error("a should be marked IsRoot")
	}
	if bNode == nil || bNode.IsRoot {
		t.Error("b should not be marked IsRoot")
	}
	if !aNode.IsFound || aNode.Version != "1.0.0" {
		t.Errorf("a node = %+v, want IsFound with version 1.0.0", aNode)
	}
	if g.Edges[0].Requirement != "^1.0.0" {
		t.Errorf("edge requirement = %q, want ^1.0.0", g.Edges[0].Requirement)
	}
}

func TestBuildDependencyGraphUnresolvedNode(t *testing.T) {
	infos := map[string]*registry.PackageInfo{
		"a": {
			Name:            "a",
			ResolvedVersion: mustVersion(t, "1.0.0"),
			RuntimeDeps:     map[string]string{"missing": "^2.0.0"},
		},
	}
	roots := map[string]string{"a": "^1.0.0"}

	g := BuildDependencyGraph(infos, roots, nil, dep.Runtime)

	var missing *GraphNode
	for i := range g.Nodes {
		if g.Nodes[i].Label == "missing" {
			missing = &g.Nodes[i]
		}
	}
	if missing == nil {
		t.Fatal("expected a node for the unresolved dependency")
	}
	if missing.IsFound {
		t.Error("unresolved dependency should have IsFound = false")
	}
	if missing.Version != "^2.0.0" {
		t.Errorf("unresolved node version = %q, want the raw requirement ^2.0.0", missing.Version)
	}
}

func TestBuildDependencyGraphMarksMaxDepthOverflow(t *testing.T) {
	infos := map[string]*registry.PackageInfo{
		"a": {Name: "a", ResolvedVersion: mustVersion(t, "1.0.0"), RuntimeDeps: map[string]string{}},
	}
	roots := map[string]string{"a": "^1.0.0"}
	overflow := map[string]bool{"a": true}

	g := BuildDependencyGraph(infos, roots, overflow, dep.Runtime)

	if len(g.Nodes) != 1 || !g.Nodes[0].ReachedMaxDepth {
		t.Errorf("expected a to be marked ReachedMaxDepth, got %+v", g.Nodes)
	}
}
