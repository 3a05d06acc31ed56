// Copyright 2017 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package index

import (
	"regexp"
	"sort"
)

// Predicate is satisfied by a series whose label value matches. Exact and
// Regexp are the two built-in kinds; Func wraps an arbitrary user
// predicate (spec §4.8).
type Predicate struct {
	exact string
	re    *regexp.Regexp
	fn    func(string) bool
	kind  predicateKind
}

type predicateKind int

const (
	kindExact predicateKind = iota
	kindRegexp
	kindFunc
)

// Exact matches a single label value verbatim.
func Exact(value string) Predicate { return Predicate{kind: kindExact, exact: value} }

// Regexp matches a label value against a fully-anchored pattern.
func Regexp(pattern string) (Predicate, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return Predicate{}, err
	}
	return Predicate{kind: kindRegexp, re: re}, nil
}

// Func wraps an arbitrary predicate.
func Func(fn func(string) bool) Predicate { return Predicate{kind: kindFunc, fn: fn} }

// Matches reports whether v satisfies p.
func (p Predicate) Matches(v string) bool {
	return p.matches(v)
}

func (p Predicate) matches(v string) bool {
	switch p.kind {
	case kindExact:
		return v == p.exact
	case kindRegexp:
		return p.re.MatchString(v)
	case kindFunc:
		return p.fn(v)
	default:
		return false
	}
}

// Filter is a label name to Predicate mapping (spec §4.8 "SeriesFilter").
type Filter map[string]Predicate

// GetFilteredSeriesRefs evaluates filter against the reader's postings
// offset table and returns the matching series refs as an ascending
// sorted set (spec §4.8).
//
// An empty filter returns every series ref in the block. Otherwise, each
// filtered label name contributes the union of refs across every value
// satisfying its predicate; the per-name sets are then intersected. A
// label name present in filter but matching no value still seeds an
// empty set for that name, so the overall intersection correctly comes
// out empty rather than silently ignoring the unmatched label.
func (r *Reader) GetFilteredSeriesRefs(filter Filter) ([]SeriesRef, error) {
	if len(filter) == 0 {
		return r.allSeriesRefs(), nil
	}

	var sets [][]SeriesRef
	for name, pred := range filter {
		set, err := r.matchingRefs(name, pred)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return intersectAll(sets), nil
}

func (r *Reader) allSeriesRefs() []SeriesRef {
	out := make([]SeriesRef, 0, len(r.series))
	for ref := range r.series {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// matchingRefs unions the posting lists of every value of name that
// satisfies pred. Seeded as an empty (non-nil) slice so a name with no
// matching value yields an empty set, not "no constraint" (spec §4.8).
func (r *Reader) matchingRefs(name string, pred Predicate) ([]SeriesRef, error) {
	set := []SeriesRef{}
	vals, ok := r.postingsOffsets[name]
	if !ok {
		return set, nil
	}
	for value, off := range vals {
		if !pred.matches(value) {
			continue
		}
		refs, err := r.seriesRefsAt(off)
		if err != nil {
			return nil, err
		}
		set = union(set, refs)
	}
	return set, nil
}

func union(a, b []SeriesRef) []SeriesRef {
	out := make([]SeriesRef, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

func intersect(a, b []SeriesRef) []SeriesRef {
	out := make([]SeriesRef, 0, minInt(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func intersectAll(sets [][]SeriesRef) []SeriesRef {
	if len(sets) == 0 {
		return nil
	}
	out := sets[0]
	for _, s := range sets[1:] {
		out = intersect(out, s)
		if len(out) == 0 {
			return out
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
