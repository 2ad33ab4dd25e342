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

package version

import "testing"

// literalCase mirrors one of the literal range-matcher scenarios in
// spec.md §8.
type literalCase struct {
	rangeExpr string
	v         string
	want      bool
}

func TestSatisfiesLiteralScenarios(t *testing.T) {
	cases := []literalCase{
		{"^1.2.3", "1.2.3", true},
		{"^1.2.3", "2.0.0", false},
		{"^0.2.3", "0.3.0", false},
		{"^0.0.3", "0.0.4", false},

		{"~1.2.3", "1.2.99", true},
		{"~1.2.3", "1.3.0", false},

		{">=1.0.0 <2.0.0", "1.5.0", true},
		{">=1.0.0 <2.0.0", "2.0.0", false},
		{">=1.0.0 <2.0.0", "0.9.9", false},

		{"1.x || 2.x", "2.5.0", true},
		{"1.x || 2.x", "3.0.0", false},

		{">=16.x", "16.0.0", true},
		{">=16.x", "100.0.0", true},
		{">=16.x", "15.9.9", false},
	}
	for _, tc := range cases {
		got := Satisfies(tc.rangeExpr, MustParse(tc.v))
		if got != tc.want {
			t.Errorf("Satisfies(%q, %q) = %v, want %v", tc.rangeExpr, tc.v, got, tc.want)
		}
	}
}

func TestBestMatch(t *testing.T) {
	r := MustParseRange("^4.17.0")
	candidates := []Version{MustParse("4.17.21"), MustParse("4.17.20"), MustParse("4.17.19")}
	got, ok := BestMatch(r, candidates)
	if !ok || got != MustParse("4.17.21") {
		t.Fatalf("BestMatch = %v, %v, want 4.17.21, true", got, ok)
	}
}

func TestBestMatchNoCandidates(t *testing.T) {
	r := MustParseRange("^5.0.0")
	_, ok := BestMatch(r, []Version{MustParse("4.17.21")})
	if ok {
		t.Fatalf("expected no match")
	}
}

func TestBestMatchSingletonIffSatisfies(t *testing.T) {
	// best_match(r, [v]) = v iff satisfies(r, v).
	for _, tc := range []struct {
		r string
		v string
	}{
		{"^1.0.0", "1.0.0"},
		{"^1.0.0", "2.0.0"},
		{"*", "9.9.9"},
	} {
		r := MustParseRange(tc.r)
		v := MustParse(tc.v)
		got, ok := BestMatch(r, []Version{v})
		want := r.Satisfies(v)
		if ok != want {
			t.Errorf("BestMatch(%q, [%q]) ok = %v, want %v", tc.r, tc.v, ok, want)
		}
		if ok && got != v {
			t.Errorf("BestMatch(%q, [%q]) = %v, want %v", tc.r, tc.v, got, v)
		}
	}
}

func TestWildcardAtom(t *testing.T) {
	for _, expr := range []string{"*", "x", "X"} {
		r := MustParseRange(expr)
		if !r.Satisfies(MustParse("0.0.0")) || !r.Satisfies(MustParse("99.99.99")) {
			t.Errorf("%q expected to match every version", expr)
		}
	}
}

func TestExactWithMissingComponents(t *testing.T) {
	r := MustParseRange("1.2")
	if !r.Satisfies(MustParse("1.2.0")) || !r.Satisfies(MustParse("1.2.99")) {
		t.Errorf("1.2 should match any patch of 1.2")
	}
	if r.Satisfies(MustParse("1.3.0")) {
		t.Errorf("1.2 should not match 1.3.0")
	}
}

func TestAndBoundaryNotConfusedWithOperatorSpace(t *testing.T) {
	// ">= 1.2.3" (space between operator and version) is one atom, not two.
	r := MustParseRange(">= 1.2.3")
	if !r.Satisfies(MustParse("1.2.3")) {
		t.Errorf("expected >= 1.2.3 to match 1.2.3")
	}
	if r.Satisfies(MustParse("1.2.2")) {
		t.Errorf("did not expect >= 1.2.3 to match 1.2.2")
	}
}

func TestExplicitAndOperator(t *testing.T) {
	r := MustParseRange(">=1.0.0 && <2.0.0")
	if !r.Satisfies(MustParse("1.5.0")) {
		t.Errorf("expected match")
	}
	if r.Satisfies(MustParse("2.0.0")) {
		t.Errorf("did not expect match")
	}
}

func TestRangeSyntaxErrorNeverPanics(t *testing.T) {
	for _, bad := range []string{"", "^^1.2.3", ">=", "not a version", "1.2.3.4.5"} {
		_, err := ParseRange(bad)
		_ = err // parse errors are fine; the point is no panic
		if Satisfies(bad, MustParse("1.0.0")) {
			t.Errorf("expected malformed range %q to never satisfy", bad)
		}
	}
}

func TestIsPrerelease(t *testing.T) {
	if !IsPrerelease("1.2.3-beta.1") {
		t.Errorf("expected prerelease")
	}
	if IsPrerelease("1.2.3") {
		t.Errorf("did not expect prerelease")
	}
}
