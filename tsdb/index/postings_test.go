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
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tsdbreader/model/labels"
)

// buildPostingsFixture lays out posting lists for three label values in a
// single byte buffer and returns a Reader whose postingsOffsets point at
// them, alongside every SeriesRef the fixture knows about.
//
//	job="a"    -> {1, 2, 3}
//	job="b"    -> {4}
//	region="x" -> {1, 4}
//	region="y" -> {2, 3}
func buildPostingsFixture(t *testing.T) *Reader {
	t.Helper()

	var b []byte
	putList := func(refs []uint32) uint64 {
		off := uint64(len(b))
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], 0) // list length, unused by seriesRefsAt
		b = append(b, buf[:]...)
		binary.BigEndian.PutUint32(buf[:], uint32(len(refs)))
		b = append(b, buf[:]...)
		for _, ref := range refs {
			binary.BigEndian.PutUint32(buf[:], ref)
			b = append(b, buf[:]...)
		}
		return off
	}

	jobAOff := putList([]uint32{1, 2, 3})
	jobBOff := putList([]uint32{4})
	regionXOff := putList([]uint32{1, 4})
	regionYOff := putList([]uint32{2, 3})

	r := &Reader{
		b: b,
		series: map[SeriesRef]Series{
			1: {Labels: labels.Labels{{Name: "job", Value: "a"}, {Name: "region", Value: "x"}}},
			2: {Labels: labels.Labels{{Name: "job", Value: "a"}, {Name: "region", Value: "y"}}},
			3: {Labels: labels.Labels{{Name: "job", Value: "a"}, {Name: "region", Value: "y"}}},
			4: {Labels: labels.Labels{{Name: "job", Value: "b"}, {Name: "region", Value: "x"}}},
		},
		postingsOffsets: map[string]map[string]uint64{
			"job":    {"a": jobAOff, "b": jobBOff},
			"region": {"x": regionXOff, "y": regionYOff},
		},
	}
	return r
}

func TestGetFilteredSeriesRefsEmptyFilter(t *testing.T) {
	r := buildPostingsFixture(t)
	got, err := r.GetFilteredSeriesRefs(nil)
	if err != nil {
		t.Fatalf("GetFilteredSeriesRefs: %v", err)
	}
	want := []SeriesRef{1, 2, 3, 4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected refs (-want +got):\n%s", diff)
	}
}

func TestGetFilteredSeriesRefsSingleName(t *testing.T) {
	r := buildPostingsFixture(t)
	got, err := r.GetFilteredSeriesRefs(Filter{"job": Exact("a")})
	if err != nil {
		t.Fatalf("GetFilteredSeriesRefs: %v", err)
	}
	want := []SeriesRef{1, 2, 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected refs (-want +got):\n%s", diff)
	}
}

// TestFilterIntersectionLaw checks that a multi-name filter returns
// exactly the intersection of each name's per-value union, per spec
// §4.8.
func TestFilterIntersectionLaw(t *testing.T) {
	r := buildPostingsFixture(t)
	got, err := r.GetFilteredSeriesRefs(Filter{
		"job":    Exact("a"),
		"region": Exact("y"),
	})
	if err != nil {
		t.Fatalf("GetFilteredSeriesRefs: %v", err)
	}
	// job=a -> {1,2,3}; region=y -> {2,3}; intersection -> {2,3}.
	want := []SeriesRef{2, 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected refs (-want +got):\n%s", diff)
	}
}

// TestFilterUnmatchedNameSeedsEmptySet checks that a filtered label name
// with no matching value makes the whole intersection empty, rather
// than being treated as no constraint.
func TestFilterUnmatchedNameSeedsEmptySet(t *testing.T) {
	r := buildPostingsFixture(t)
	got, err := r.GetFilteredSeriesRefs(Filter{
		"job":      Exact("a"),
		"nonexist": Exact("whatever"),
	})
	if err != nil {
		t.Fatalf("GetFilteredSeriesRefs: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestFilterRegexp(t *testing.T) {
	r := buildPostingsFixture(t)
	pred, err := Regexp("a|b")
	if err != nil {
		t.Fatalf("Regexp: %v", err)
	}
	got, err := r.GetFilteredSeriesRefs(Filter{"job": pred})
	if err != nil {
		t.Fatalf("GetFilteredSeriesRefs: %v", err)
	}
	want := []SeriesRef{1, 2, 3, 4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected refs (-want +got):\n%s", diff)
	}
}

func TestRegexpIsFullyAnchored(t *testing.T) {
	pred, err := Regexp("a")
	if err != nil {
		t.Fatalf("Regexp: %v", err)
	}
	if pred.Matches("ab") {
		t.Fatalf("pattern %q should not match %q unanchored", "a", "ab")
	}
	if !pred.Matches("a") {
		t.Fatalf("pattern %q should match %q", "a", "a")
	}
}

func TestUnionAndIntersect(t *testing.T) {
	a := []SeriesRef{1, 2, 4}
	b := []SeriesRef{2, 3, 4, 5}

	if diff := cmp.Diff([]SeriesRef{1, 2, 3, 4, 5}, union(a, b)); diff != "" {
		t.Fatalf("union (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]SeriesRef{2, 4}, intersect(a, b)); diff != "" {
		t.Fatalf("intersect (-want +got):\n%s", diff)
	}
}
