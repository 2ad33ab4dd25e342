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
	"math"
	"math/rand"

	"github.com/mctsresolve/resolver/registry"
	"github.com/mctsresolve/resolver/version"
	"github.com/mctsresolve/resolver/vuln"
)

// sampleSoftmaxRank picks an index in [0,n) by the softmax-over-rank rule:
// rank_i = n-i (newest has rank n), p_i ∝ exp(lambda*rank_i), computed with
// the log-sum-exp trick so large lambda never overflows.
func sampleSoftmaxRank(n int, lambda float64, rng *rand.Rand) int {
	if n <= 0 {
		panic("mcts: sampleSoftmaxRank: no candidates")
	}
	if n == 1 {
		return 0
	}
	logits := make([]float64, n)
	maxLogit := math.Inf(-1)
	for i := 0; i < n; i++ {
		rank := float64(n - i)
		logits[i] = lambda * rank
		if logits[i] > maxLogit {
			maxLogit = logits[i]
		}
	}
	weights := make([]float64, n)
	var sumExp float64
	for i, l := range logits {
		w := math.Exp(l - maxLogit)
		weights[i] = w
		sumExp += w
	}
	draw := rng.Float64()
	var cum float64
	for i, w := range weights {
		cum += w / sumExp
		if draw < cum {
			return i
		}
	}
	return n - 1
}

// simulate performs one rollout from state: repeatedly pick a candidate by
// softmax-over-rank and step, up to max_simulation_depth, then score the
// result.
func simulate(ctx context.Context, state ResolverState, cfg Config, reg *registry.Adapter, vulnAdapter *vuln.Adapter, roots map[string]string, rng *rand.Rand) (ResolverState, float64, error) {
	cur := state.clone()
	for i := 0; i < cfg.MaxSimulationDepth && !cur.Terminal(); i++ {
		pd := cur.Pending[0]
		candidates, err := computeCandidates(ctx, cur, pd, cfg, reg, vulnAdapter, roots)
		if err != nil {
			return cur, 0, err
		}
		if len(candidates) == 0 {
			return cur, 0, nil
		}
		idx := sampleSoftmaxRank(len(candidates), cfg.Lambda, rng)
		next, err := step(ctx, cur, pd.Name, candidates[idx].String(), cfg.DependencyType, reg)
		if err != nil {
			return cur, 0, err
		}
		cur = next
	}
	reward := computeReward(ctx, cur, reg)
	return cur, reward, nil
}

// computeReward scores a rollout result: 0 if it violates constraints or is
// incomplete; otherwise the mean of per-package (1 - rank/|versions|) scores,
// skipping any package missing from its own version list.
func computeReward(ctx context.Context, state ResolverState, reg *registry.Adapter) float64 {
	if state.ViolatesConstraints() || len(state.Pending) != 0 {
		return 0
	}
	var sum float64
	var n int
	for name, v := range state.Resolved {
		versions, err := reg.AvailableVersions(ctx, name)
		if err != nil {
			continue
		}
		cv, err := version.Parse(v)
		if err != nil {
			continue
		}
		rank := -1
		for i, vv := range versions {
			if vv == cv {
				rank = i
				break
			}
		}
		if rank == -1 {
			continue
		}
		sum += 1 - float64(rank)/float64(len(versions))
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
