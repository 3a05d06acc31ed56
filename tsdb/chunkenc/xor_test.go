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

package chunkenc

import (
	"math/rand"
	"testing"
)

type tv struct {
	t int64
	v float64
}

func appendAll(t *testing.T, samples []tv) *XORChunk {
	c := NewXORChunk()
	app, err := c.Appender()
	if err != nil {
		t.Fatalf("Appender: %v", err)
	}
	for _, s := range samples {
		app.Append(s.t, s.v)
	}
	return c
}

func collect(t *testing.T, c Chunk) []tv {
	it := c.Iterator(nil)
	var got []tv
	for it.Next() {
		ct, cv := it.At()
		got = append(got, tv{ct, cv})
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Iterator: %v", err)
	}
	return got
}

func TestXORChunkRoundTrip(t *testing.T) {
	samples := []tv{
		{1000, 1.5},
		{2000, 1.5},
		{3000, 2.25},
		{4000, -3.75},
		{100000, 0},
		{100001, 1e10},
		{200000, -1e-10},
	}
	c := appendAll(t, samples)
	if c.NumSamples() != len(samples) {
		t.Fatalf("NumSamples: got %d, want %d", c.NumSamples(), len(samples))
	}
	got := collect(t, c)
	if len(got) != len(samples) {
		t.Fatalf("got %d samples, want %d", len(got), len(samples))
	}
	for i, want := range samples {
		if got[i] != want {
			t.Fatalf("sample %d: got %+v, want %+v", i, got[i], want)
		}
	}
}

func TestXORChunkRoundTripRandom(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	var samples []tv
	ts := int64(1700000000000)
	v := 0.0
	for i := 0; i < 500; i++ {
		ts += int64(rnd.Intn(5000))
		v += rnd.Float64()*2 - 1
		samples = append(samples, tv{ts, v})
	}

	c := appendAll(t, samples)
	got := collect(t, c)
	if len(got) != len(samples) {
		t.Fatalf("got %d samples, want %d", len(got), len(samples))
	}
	for i, want := range samples {
		if got[i] != want {
			t.Fatalf("sample %d: got %+v, want %+v", i, got[i], want)
		}
	}
}

func TestXORChunkFromDataRoundTrip(t *testing.T) {
	samples := []tv{{10, 1}, {20, 2}, {30, 3}}
	c := appendAll(t, samples)

	decoded, err := FromData(EncXOR, c.Bytes())
	if err != nil {
		t.Fatalf("FromData: %v", err)
	}
	got := collect(t, decoded)
	for i, want := range samples {
		if got[i] != want {
			t.Fatalf("sample %d: got %+v, want %+v", i, got[i], want)
		}
	}
}

// TestBitWidthInvariant checks that every per-sample minimum timestamp
// bit width reported by SampleInfo falls in the fixed candidate ladder
// named by spec §8, and that samples #0 and #1 report 0 (no
// delta-of-delta exists for them).
func TestBitWidthInvariant(t *testing.T) {
	allowed := map[uint8]bool{0: true, 1: true, 2: true, 14: true, 17: true, 20: true, 64: true}

	rnd := rand.New(rand.NewSource(7))
	var samples []tv
	ts := int64(0)
	for i := 0; i < 200; i++ {
		// Mix of small, medium, and large jumps to exercise every rung of
		// the ladder.
		switch i % 4 {
		case 0:
			ts += int64(rnd.Intn(2))
		case 1:
			ts += int64(rnd.Intn(1 << 13))
		case 2:
			ts += int64(rnd.Intn(1 << 19))
		default:
			ts += int64(rnd.Intn(1<<19)) + (1 << 21)
		}
		samples = append(samples, tv{ts, rnd.Float64()})
	}

	c := appendAll(t, samples)
	it, ok := NewSampleInfoIterator(c)
	if !ok {
		t.Fatalf("expected an XORChunk to support SampleInfoIterator")
	}

	n := 0
	for it.Next() {
		_, _, _, minTsWidth, _ := it.SampleInfo()
		if !allowed[minTsWidth] {
			t.Fatalf("sample %d: minTsWidth %d not in the fixed ladder", n, minTsWidth)
		}
		if n < 2 && minTsWidth != 0 {
			t.Fatalf("sample %d: expected minTsWidth 0 (no delta-of-delta), got %d", n, minTsWidth)
		}
		n++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("SampleInfoIterator: %v", err)
	}
	if n != len(samples) {
		t.Fatalf("got %d samples, want %d", n, len(samples))
	}
}

func TestMinTimestampBitWidthLadder(t *testing.T) {
	cases := []struct {
		dod  int64
		want uint8
	}{
		{0, 1},
		{1, 2},
		{-1, 2},
		{2, 2},
		{1 << 12, 14},
		{1 << 15, 17},
		{1 << 18, 20},
		{1 << 25, 64},
		{-(1 << 25), 64},
	}
	for _, c := range cases {
		if got := minTimestampBitWidth(c.dod); got != c.want {
			t.Errorf("minTimestampBitWidth(%d): got %d, want %d", c.dod, got, c.want)
		}
	}
}

func TestRawChunkRoundTrip(t *testing.T) {
	c := NewRawChunk(nil)
	app, err := c.Appender()
	if err != nil {
		t.Fatalf("Appender: %v", err)
	}
	samples := []tv{{1, 1.1}, {2, 2.2}, {3, 3.3}}
	for _, s := range samples {
		app.Append(s.t, s.v)
	}
	if c.NumSamples() != len(samples) {
		t.Fatalf("NumSamples: got %d, want %d", c.NumSamples(), len(samples))
	}
	got := collect(t, c)
	for i, want := range samples {
		if got[i] != want {
			t.Fatalf("sample %d: got %+v, want %+v", i, got[i], want)
		}
	}
}
