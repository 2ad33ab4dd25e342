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
Package dep provides the dependency-type tagged variant consulted by the
MCTS resolver when deciding which of a PackageInfo's dependency maps to
walk.
*/
package dep

// Type distinguishes the three dependency maps spec.md's PackageInfo
// carries. It is a closed, three-valued tag: the constraint-accumulation
// rules in the resolver differ only for Peer (spec.md §4.4.1), and that is
// meant to be the single match site on Type in the whole module.
type Type int

const (
	Runtime Type = iota
	Dev
	Peer
)

func (t Type) String() string {
	switch t {
	case Runtime:
		return "runtime"
	case Dev:
		return "dev"
	case Peer:
		return "peer"
	default:
		return "unknown"
	}
}
