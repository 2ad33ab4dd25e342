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

package vuln

import (
	"fmt"
	"strconv"
	"strings"
)

// Threshold is four non-negative upper bounds, one per severity bucket. A
// VulnerabilityList passes iff every severity count is within its bound.
type Threshold struct {
	Critical, High, Medium, Low int
}

// Passes reports whether every severity count of l is within t.
func (t Threshold) Passes(l VulnerabilityList) bool {
	c := l.Counts()
	return c.Critical <= t.Critical && c.High <= t.High && c.Medium <= t.Medium && c.Low <= t.Low
}

const maxBound = int(^uint(0) >> 1)

// unbounded is a Threshold with no effective cap on any bucket.
var unbounded = Threshold{Critical: maxBound, High: maxBound, Medium: maxBound, Low: maxBound}

// ParseThreshold decodes the external configuration encoding of spec.md
// §6: "CRITICAL" (max 0 critical), "HIGH" (extends to 0 critical and
// high), "MEDIUM" (extends to medium), "LOW" (extends to low), or
// "CUSTOM:<c>,<h>,<m>,<l>" for explicit caps. Any other value disables
// threshold filtering (enabled is false).
func ParseThreshold(s string) (t Threshold, enabled bool) {
	switch s {
	case "CRITICAL":
		return Threshold{Critical: 0, High: maxBound, Medium: maxBound, Low: maxBound}, true
	case "HIGH":
		return Threshold{Critical: 0, High: 0, Medium: maxBound, Low: maxBound}, true
	case "MEDIUM":
		return Threshold{Critical: 0, High: 0, Medium: 0, Low: maxBound}, true
	case "LOW":
		return Threshold{Critical: 0, High: 0, Medium: 0, Low: 0}, true
	}
	if rest, ok := strings.CutPrefix(s, "CUSTOM:"); ok {
		bounds, err := parseCustomBounds(rest)
		if err != nil {
			return Threshold{}, false
		}
		return bounds, true
	}
	return Threshold{}, false
}

// parseCustomBounds validates all four CUSTOM components atomically: if
// any component is malformed, none is applied.
func parseCustomBounds(s string) (Threshold, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Threshold{}, fmt.Errorf("vuln: CUSTOM threshold needs 4 components, got %d", len(parts))
	}
	nums := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return Threshold{}, fmt.Errorf("vuln: bad CUSTOM bound %q", p)
		}
		nums[i] = n
	}
	return Threshold{Critical: nums[0], High: nums[1], Medium: nums[2], Low: nums[3]}, nil
}
