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

package tsdb

import (
	"os"
	"path/filepath"
	"testing"

	"tsdbreader/tsdb/chunkenc"
	"tsdbreader/tsdb/chunks"
	"tsdbreader/tsdb/encoding"
)

func buildXORChunk(t *testing.T, samples [][2]float64) *chunkenc.XORChunk {
	t.Helper()
	c := chunkenc.NewXORChunk()
	app, err := c.Appender()
	if err != nil {
		t.Fatalf("Appender: %v", err)
	}
	for _, s := range samples {
		app.Append(int64(s[0]), s[1])
	}
	return c
}

func TestBitWidthHistogramAddChunk(t *testing.T) {
	// Tiny deltas-of-deltas throughout: every sample after the first two
	// should land in the narrowest (1-bit) rung.
	samples := [][2]float64{
		{1000, 1}, {2000, 2}, {3000, 3}, {4000, 4}, {5000, 5},
	}
	c := buildXORChunk(t, samples)

	h := NewBitWidthHistogram()
	if err := h.AddChunk(c); err != nil {
		t.Fatalf("AddChunk: %v", err)
	}
	// Samples #0 and #1 carry no delta-of-delta and are excluded; the
	// remaining 3 samples have identical 1000ms deltas, dod=0, width=1.
	if got := h.Total(); got != 3 {
		t.Fatalf("Total: got %d, want 3", got)
	}
	counts := h.Counts()
	if counts[1] != 3 {
		t.Fatalf("expected 3 samples at width 1, got %v", counts)
	}
}

func TestBitWidthHistogramAddChunkMixedWidths(t *testing.T) {
	samples := [][2]float64{
		{0, 0},
		{1000, 1},
		{2000, 2},     // dod=0 -> width 1
		{2001, 3},     // dod=-999 -> width 14 (or similar wide rung)
		{2002, 4},     // dod back to small
	}
	c := buildXORChunk(t, samples)

	h := NewBitWidthHistogram()
	if err := h.AddChunk(c); err != nil {
		t.Fatalf("AddChunk: %v", err)
	}
	if got := h.Total(); got != 3 {
		t.Fatalf("Total: got %d, want 3", got)
	}
	for width := range h.Counts() {
		allowed := map[uint16]bool{1: true, 2: true, 14: true, 17: true, 20: true, 64: true}
		if !allowed[width] {
			t.Fatalf("unexpected bit width %d in histogram", width)
		}
	}
}

func TestBitWidthHistogramAddChunkRawIsNoop(t *testing.T) {
	raw := chunkenc.NewRawChunk(nil)
	app, err := raw.Appender()
	if err != nil {
		t.Fatalf("Appender: %v", err)
	}
	app.Append(1, 1.5)
	app.Append(2, 2.5)

	h := NewBitWidthHistogram()
	if err := h.AddChunk(raw); err != nil {
		t.Fatalf("AddChunk on a Raw chunk should be a no-op, got error: %v", err)
	}
	if got := h.Total(); got != 0 {
		t.Fatalf("expected no samples tallied for a Raw chunk, got %d", got)
	}
}

// writeBlockChunkSegment writes one chunks/NNNNNN-style segment file
// containing the given chunk bodies back to back, each framed as
// {varuint dataLen, u8 encoding=1, body}, and returns the byte offset of
// each chunk's frame within the file.
func writeBlockChunkSegment(t *testing.T, dir string, segmentID uint32, bodies [][]byte) []uint32 {
	t.Helper()
	var e encoding.Encbuf
	offsets := make([]uint32, len(bodies))
	for i, body := range bodies {
		offsets[i] = uint32(len(e.Bytes()))
		e.PutUvarint(uint64(len(body)))
		e.PutByte(1) // chunkEncodingByte
		e.PutBytes(body)
	}
	path := filepath.Join(dir, chunks.SegmentFileName(segmentID))
	if err := os.WriteFile(path, e.Bytes(), 0o644); err != nil {
		t.Fatalf("writing segment: %v", err)
	}
	return offsets
}

func TestBitWidthHistogramAddSeries(t *testing.T) {
	dir := t.TempDir()

	c1 := buildXORChunk(t, [][2]float64{{0, 0}, {1000, 1}, {2000, 2}, {3000, 3}})
	c2 := buildXORChunk(t, [][2]float64{{4000, 4}, {5000, 5}, {6000, 6}})

	offsets := writeBlockChunkSegment(t, dir, 1, [][]byte{c1.Bytes(), c2.Bytes()})

	cache := chunks.NewChunkFileCache(dir)
	defer cache.Close()

	refs := []chunks.ChunkReference{
		{MinTime: 0, MaxTime: 3000, FileRef: chunks.NewBlockReference(1, offsets[0]), Type: chunks.Block},
		{MinTime: 4000, MaxTime: 6000, FileRef: chunks.NewBlockReference(1, offsets[1]), Type: chunks.Block},
	}

	h := NewBitWidthHistogram()
	if err := h.AddSeries(cache, refs); err != nil {
		t.Fatalf("AddSeries: %v", err)
	}
	// c1 contributes 2 counted samples (4 total, minus 2 uncounted), c2
	// contributes 1 (3 total, minus 2 uncounted).
	if got := h.Total(); got != 3 {
		t.Fatalf("Total: got %d, want 3", got)
	}
}

func TestBitWidthHistogramAddSeriesMissingSegment(t *testing.T) {
	dir := t.TempDir()
	cache := chunks.NewChunkFileCache(dir)
	defer cache.Close()

	refs := []chunks.ChunkReference{
		{MinTime: 0, MaxTime: 1, FileRef: chunks.NewBlockReference(1, 0), Type: chunks.Block},
	}
	h := NewBitWidthHistogram()
	if err := h.AddSeries(cache, refs); err == nil {
		t.Fatalf("expected an error resolving a reference into a nonexistent segment")
	}
}
