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
	"testing"

	"github.com/mctsresolve/resolver/internal/resolvetest"
	"github.com/mctsresolve/resolver/registry"
)

func TestSampleSoftmaxRankSingleCandidate(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if idx := sampleSoftmaxRank(1, 2.0, rng); idx != 0 {
		t.Errorf("sampleSoftmaxRank(1, ...) = %d, want 0", idx)
	}
}

func TestSampleSoftmaxRankHighLambdaFavorsNewest(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	counts := make([]int, 5)
	for i := 0; i < 2000; i++ {
		counts[sampleSoftmaxRank(5, 8.0, rng)]++
	}
	for i := 1; i < len(counts); i++ {
		if counts[0] < counts[i] {
			t.Errorf("with high lambda, index 0 (newest) should dominate: counts=%v", counts)
		}
	}
}

func TestSampleSoftmaxRankZeroLambdaIsUniform(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	counts := make([]int, 4)
	const trials = 4000
	for i := 0; i < trials; i++ {
		counts[sampleSoftmaxRank(4, 0.0, rng)]++
	}
	for _, c := range counts {
		frac := float64(c) / trials
		if frac < 0.15 || frac > 0.35 {
			t.Errorf("lambda=0 should sample near-uniformly over 4 candidates, got fractions %v", counts)
			break
		}
	}
}

func TestComputeRewardZeroOnViolation(t *testing.T) {
	u := resolvetest.NewUniverse().AddPackage("a", resolvetest.PackageVersion{Version: "1.0.0"})
	reg := registry.NewInMemoryAdapter(u)
	s := newResolverState()
	s.Resolved["a"] = "1.0.0"
	s.Constraints["a"] = []Constraint{{Range: INVALID}}
	if got := computeReward(context.Background(), s, reg); got != 0 {
		t.Errorf("computeReward on violating state = %v, want 0", got)
	}
}

func TestComputeRewardZeroWhenIncomplete(t *testing.T) {
	u := resolvetest.NewUniverse().AddPackage("a", resolvetest.PackageVersion{Version: "1.0.0"})
	reg := registry.NewInMemoryAdapter(u)
	s := newResolverState()
	s.Pending = []PendingDependency{{Name: "b"}}
	if got := computeReward(context.Background(), s, reg); got != 0 {
		t.Errorf("computeReward on incomplete state = %v, want 0", got)
	}
}

func TestComputeRewardFavorsNewestVersion(t *testing.T) {
	u := resolvetest.NewUniverse().AddPackage("a",
		resolvetest.PackageVersion{Version: "1.0.0"},
		resolvetest.PackageVersion{Version: "2.0.0"},
	)
	reg := registry.NewInMemoryAdapter(u)

	newest := newResolverState()
	newest.Resolved["a"] = "2.0.0"
	rNewest := computeReward(context.Background(), newest, reg)

	oldest := newResolverState()
	oldest.Resolved["a"] = "1.0.0"
	rOldest := computeReward(context.Background(), oldest, reg)

	if rNewest <= rOldest {
		t.Errorf("reward for newest (%v) should exceed reward for oldest (%v)", rNewest, rOldest)
	}
}
