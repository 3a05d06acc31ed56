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

package record

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tsdbreader/model/labels"
	"tsdbreader/tsdb/encoding"
)

func encodeSeries(ref uint64, lbls labels.Labels) []byte {
	var e encoding.Encbuf
	e.PutByte(byte(Series))
	e.PutBE64(ref)
	e.PutUvarint(uint64(len(lbls)))
	for _, l := range lbls {
		e.PutUvarintStr(l.Name)
		e.PutUvarintStr(l.Value)
	}
	return e.Bytes()
}

func encodeSamples(baseRef uint64, baseTs int64, deltas []struct {
	dRef int64
	dTs  int64
	v    float64
}) []byte {
	var e encoding.Encbuf
	e.PutByte(byte(Samples))
	e.PutBE64(baseRef)
	e.PutBE64(uint64(baseTs))
	for _, d := range deltas {
		e.PutVarint(d.dRef)
		e.PutVarint(d.dTs)
		e.PutBE64(math.Float64bits(d.v))
	}
	return e.Bytes()
}

func TestDecodeTypeDispatch(t *testing.T) {
	cases := []struct {
		b    []byte
		want Type
	}{
		{[]byte{1, 0}, Series},
		{[]byte{2, 0}, Samples},
		{[]byte{3, 0}, Tombstone},
	}
	for _, c := range cases {
		typ, rest, err := DecodeType(c.b)
		if err != nil {
			t.Fatalf("DecodeType(%v): %v", c.b, err)
		}
		if typ != c.want {
			t.Fatalf("DecodeType(%v): got %v, want %v", c.b, typ, c.want)
		}
		if len(rest) != len(c.b)-1 {
			t.Fatalf("DecodeType(%v): rest has wrong length", c.b)
		}
	}
}

func TestDecodeTypeUnknown(t *testing.T) {
	if _, _, err := DecodeType([]byte{99}); err == nil {
		t.Fatalf("expected an error for an unknown record type")
	}
	if _, _, err := DecodeType(nil); err == nil {
		t.Fatalf("expected an error for an empty record")
	}
}

func TestDecodeSeriesRoundTrip(t *testing.T) {
	lbls := labels.Labels{
		{Name: "__name__", Value: "up"},
		{Name: "job", Value: "node"},
	}
	_, body, err := DecodeType(encodeSeries(7, lbls))
	if err != nil {
		t.Fatalf("DecodeType: %v", err)
	}
	got, err := DecodeSeries(body)
	if err != nil {
		t.Fatalf("DecodeSeries: %v", err)
	}
	want := RefSeries{Ref: 7, Labels: lbls}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected series (-want +got):\n%s", diff)
	}
}

func TestDecodeSamplesBaseRelativeDeltas(t *testing.T) {
	body := encodeSamples(100, 1000, []struct {
		dRef int64
		dTs  int64
		v    float64
	}{
		{0, 0, 1.5},    // ref=100, ts=1000
		{0, 10, 2.5},   // ref=100, ts=1010
		{1, 10, -3.5},  // ref=101, ts=1010
		{-1, 5, 0},     // ref=99,  ts=1005
	})
	_, rest, err := DecodeType(body)
	if err != nil {
		t.Fatalf("DecodeType: %v", err)
	}
	got, err := DecodeSamples(rest)
	if err != nil {
		t.Fatalf("DecodeSamples: %v", err)
	}
	want := []RefSample{
		{Ref: 100, T: 1000, V: 1.5},
		{Ref: 100, T: 1010, V: 2.5},
		{Ref: 101, T: 1010, V: -3.5},
		{Ref: 99, T: 1005, V: 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected samples (-want +got):\n%s", diff)
	}
}

func TestDecodeSamplesEmpty(t *testing.T) {
	body := encodeSamples(5, 50, nil)
	_, rest, err := DecodeType(body)
	if err != nil {
		t.Fatalf("DecodeType: %v", err)
	}
	got, err := DecodeSamples(rest)
	if err != nil {
		t.Fatalf("DecodeSamples: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no samples, got %v", got)
	}
}
