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

import (
	"fmt"
	"strconv"
	"strings"
)

// RangeSyntaxError reports that a range expression could not be parsed.
// Matching treats a bad range as matching nothing rather than propagating
// this error (see Range.Satisfies); it is surfaced only to callers that
// parse configuration directly, such as ParseRange.
type RangeSyntaxError struct {
	Expr string
	Msg  string
}

func (e *RangeSyntaxError) Error() string {
	return fmt.Sprintf("version: invalid range %q: %s", e.Expr, e.Msg)
}

// Range is an immutable predicate over Version produced by ParseRange. The
// zero Range matches nothing; use ParseRange to build one.
type Range struct {
	src string
	or  []andClause // disjunction of conjunctions
	bad bool        // parse failed; Satisfies always returns false
}

type andClause []atomMatcher

type atomMatcher func(Version) bool

// String returns the original range text.
func (r *Range) String() string { return r.src }

// Satisfies reports whether v satisfies r. It is total: it never panics and
// never returns an error, per spec (an unparseable range simply matches
// nothing).
func (r *Range) Satisfies(v Version) bool {
	if r == nil || r.bad {
		return false
	}
	for _, clause := range r.or {
		ok := true
		for _, m := range clause {
			if !m(v) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// Satisfies parses s and reports whether v satisfies it, treating a syntax
// error as "does not satisfy" per spec §7/§8.
func Satisfies(s string, v Version) bool {
	r, err := ParseRange(s)
	if err != nil {
		return false
	}
	return r.Satisfies(v)
}

// ParseRange parses a range expression using the grammar:
//
//	Expr := Or
//	Or   := And ("||" And)*
//	And  := Atom ( ("&&" | WS) Atom )*
//	Atom := "*" | "x" | "X"
//	      | "^" Ver | "~" Ver
//	      | (">=" | "<=" | ">" | "<") Ver
//	      | Ver
func ParseRange(s string) (*Range, error) {
	r := &Range{src: s}
	ors := strings.Split(s, "||")
	if len(ors) == 0 {
		return nil, &RangeSyntaxError{Expr: s, Msg: "empty expression"}
	}
	for _, orPart := range ors {
		atoms, err := splitAtoms(orPart)
		if err != nil {
			return nil, err
		}
		if len(atoms) == 0 {
			return nil, &RangeSyntaxError{Expr: s, Msg: "empty clause"}
		}
		var clause andClause
		for _, a := range atoms {
			m, err := parseAtom(a)
			if err != nil {
				return nil, err
			}
			clause = append(clause, m)
		}
		r.or = append(r.or, clause)
	}
	return r, nil
}

// MustParseRange is ParseRange but panics on error; for tests and literals.
func MustParseRange(s string) *Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// splitAtoms tokenizes one And-level clause into its atom substrings. An AND
// boundary is whitespace or an explicit "&&"; a space between an operator
// (">=", "<=", ">", "<", "^", "~") and its version is NOT a boundary.
func splitAtoms(s string) ([]string, error) {
	s = strings.ReplaceAll(s, "&&", " ")
	var atoms []string
	i, n := 0, len(s)
	for i < n {
		for i < n && isSpace(s[i]) {
			i++
		}
		if i >= n {
			break
		}
		start := i
		if op, oplen := matchOp(s[i:]); op != "" {
			i += oplen
			for i < n && isSpace(s[i]) {
				i++
			}
			end := consumeToken(s, i)
			if end == i {
				return nil, &RangeSyntaxError{Expr: s, Msg: fmt.Sprintf("operator %q with no version", op)}
			}
			i = end
		} else if s[i] == '*' {
			i++
		} else {
			end := consumeToken(s, i)
			if end == i {
				return nil, &RangeSyntaxError{Expr: s, Msg: "unexpected character"}
			}
			i = end
		}
		atoms = append(atoms, strings.TrimSpace(s[start:i]))
	}
	return atoms, nil
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' }

// matchOp returns the comparison/range operator prefix of s, longest match
// first, or ("", 0) if s does not start with one.
func matchOp(s string) (string, int) {
	for _, op := range []string{">=", "<=", ">", "<", "^", "~"} {
		if strings.HasPrefix(s, op) {
			return op, len(op)
		}
	}
	return "", 0
}

// consumeToken consumes a bare version-ish token: digits, dots, letters
// (for x/X wildcards and prerelease/build identifiers), '-' and '+', up to
// the next whitespace or end of string.
func consumeToken(s string, i int) int {
	n := len(s)
	for i < n && !isSpace(s[i]) {
		i++
	}
	return i
}

// component represents one written piece of a Ver token: either a concrete
// digit, a wildcard ("x"/"X"), or simply absent.
type component struct {
	n        int
	wildcard bool
	present  bool
}

// verToken is a parsed Ver (major always present and concrete per grammar;
// minor/patch may be concrete, wildcard, or absent).
type verToken struct {
	major        int
	minor, patch component
}

// parseVer parses the Ver production: digits ("." (digits|x|X) ("." (digits|
// x|X))? )? , plus a trailing "-…"/"+…" which is discarded.
func parseVer(s string) (verToken, error) {
	body := stripMeta(stripLeadingV(strings.TrimSpace(s)))
	if body == "" {
		return verToken{}, &RangeSyntaxError{Expr: s, Msg: "empty version"}
	}
	parts := strings.SplitN(body, ".", 3)
	var vt verToken
	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return verToken{}, &RangeSyntaxError{Expr: s, Msg: fmt.Sprintf("bad major %q", parts[0])}
	}
	vt.major = major
	if len(parts) > 1 {
		c, err := parseComponent(parts[1])
		if err != nil {
			return verToken{}, &RangeSyntaxError{Expr: s, Msg: err.Error()}
		}
		vt.minor = c
	}
	if len(parts) > 2 {
		c, err := parseComponent(parts[2])
		if err != nil {
			return verToken{}, &RangeSyntaxError{Expr: s, Msg: err.Error()}
		}
		vt.patch = c
	}
	return vt, nil
}

func parseComponent(s string) (component, error) {
	if s == "x" || s == "X" {
		return component{wildcard: true, present: true}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return component{}, fmt.Errorf("bad component %q", s)
	}
	return component{n: n, present: true}, nil
}

// zeroFill turns a verToken into a concrete Version, treating any wildcard or
// absent component as 0. Used by comparison and range (^/~) operators, which
// always resolve to a concrete comparison boundary.
func (vt verToken) zeroFill() Version {
	v := Version{Major: vt.major}
	if vt.minor.present && !vt.minor.wildcard {
		v.Minor = vt.minor.n
	}
	if vt.patch.present && !vt.patch.wildcard {
		v.Patch = vt.patch.n
	}
	return v
}

// exactMatch builds the bare-Ver matcher: every written, non-wildcard
// component must match exactly; missing or wildcard components are free.
func (vt verToken) exactMatch() atomMatcher {
	return func(v Version) bool {
		if v.Major != vt.major {
			return false
		}
		if vt.minor.present && !vt.minor.wildcard && v.Minor != vt.minor.n {
			return false
		}
		if vt.patch.present && !vt.patch.wildcard && v.Patch != vt.patch.n {
			return false
		}
		return true
	}
}

// parseAtom parses a single Atom production into a matcher predicate.
func parseAtom(a string) (atomMatcher, error) {
	a = strings.TrimSpace(a)
	if a == "" {
		return nil, &RangeSyntaxError{Expr: a, Msg: "empty atom"}
	}
	if a == "*" || strings.EqualFold(a, "x") {
		return func(Version) bool { return true }, nil
	}
	switch {
	case strings.HasPrefix(a, "^"):
		vt, err := parseVer(a[1:])
		if err != nil {
			return nil, err
		}
		return caretMatch(vt), nil
	case strings.HasPrefix(a, "~"):
		vt, err := parseVer(a[1:])
		if err != nil {
			return nil, err
		}
		return tildeMatch(vt), nil
	case strings.HasPrefix(a, ">="):
		vt, err := parseVer(a[2:])
		if err != nil {
			return nil, err
		}
		min := vt.zeroFill()
		return func(v Version) bool { return !v.Less(min) }, nil
	case strings.HasPrefix(a, "<="):
		vt, err := parseVer(a[2:])
		if err != nil {
			return nil, err
		}
		max := vt.zeroFill()
		return func(v Version) bool { return !max.Less(v) }, nil
	case strings.HasPrefix(a, ">"):
		vt, err := parseVer(a[1:])
		if err != nil {
			return nil, err
		}
		min := vt.zeroFill()
		return func(v Version) bool { return min.Less(v) }, nil
	case strings.HasPrefix(a, "<"):
		vt, err := parseVer(a[1:])
		if err != nil {
			return nil, err
		}
		max := vt.zeroFill()
		return func(v Version) bool { return v.Less(max) }, nil
	default:
		vt, err := parseVer(a)
		if err != nil {
			return nil, err
		}
		return vt.exactMatch(), nil
	}
}

// caretMatch implements ^X.Y.Z: >=X.Y.Z and < the next value of the
// left-most non-zero component. ^0.Y.Z -> >=0.Y.Z <0.(Y+1).0; ^0.0.Z -> the
// exact version 0.0.Z.
func caretMatch(vt verToken) atomMatcher {
	min := vt.zeroFill()
	var max Version
	switch {
	case min.Major > 0:
		max = Version{Major: min.Major + 1}
	case min.Minor > 0:
		max = Version{Major: 0, Minor: min.Minor + 1}
	default:
		max = Version{Major: 0, Minor: 0, Patch: min.Patch + 1}
	}
	return func(v Version) bool {
		return !v.Less(min) && v.Less(max)
	}
}

// tildeMatch implements ~X.Y.Z: >=X.Y.Z <X.(Y+1).0; ~X.Y == ~X.Y.0; ~X
// allows any minor within major X.
func tildeMatch(vt verToken) atomMatcher {
	min := vt.zeroFill()
	var max Version
	if vt.minor.present {
		max = Version{Major: min.Major, Minor: min.Minor + 1}
	} else {
		max = Version{Major: min.Major + 1}
	}
	return func(v Version) bool {
		return !v.Less(min) && v.Less(max)
	}
}

// BestMatch returns the newest Version in candidates that satisfies r, or
// false if none do.
func BestMatch(r *Range, candidates []Version) (Version, bool) {
	best := -1
	for i, c := range candidates {
		if !r.Satisfies(c) {
			continue
		}
		if best == -1 || candidates[best].Less(c) {
			best = i
		}
	}
	if best == -1 {
		return Version{}, false
	}
	return candidates[best], true
}
