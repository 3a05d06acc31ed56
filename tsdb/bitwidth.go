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
	"tsdbreader/tsdb/chunkenc"
	"tsdbreader/tsdb/chunks"
)

// BitWidthHistogram tallies how many decoded samples used each
// timestamp delta-of-delta bit width (spec §8 "Bit-width invariant").
// Samples #0 and #1 of every chunk have no delta-of-delta and are
// excluded, matching minTsWidth==0 for those samples.
type BitWidthHistogram struct {
	counts map[uint16]uint64
}

// NewBitWidthHistogram returns an empty histogram.
func NewBitWidthHistogram() *BitWidthHistogram {
	return &BitWidthHistogram{counts: make(map[uint16]uint64)}
}

// Add records one sample's minimum timestamp bit width. A width of 0
// (samples #0/#1) is ignored.
func (h *BitWidthHistogram) Add(minTsWidth uint8) {
	if minTsWidth == 0 {
		return
	}
	h.counts[uint16(minTsWidth)]++
}

// Counts returns a copy of the accumulated tallies, keyed by bit width.
func (h *BitWidthHistogram) Counts() map[uint16]uint64 {
	out := make(map[uint16]uint64, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	return out
}

// Total returns the number of samples tallied.
func (h *BitWidthHistogram) Total() uint64 {
	var total uint64
	for _, v := range h.counts {
		total += v
	}
	return total
}

// AddChunk decodes chk and folds every sample's minimum timestamp bit
// width into h. Only XOR-encoded chunks are tallied; any other chunk is
// skipped without error.
func (h *BitWidthHistogram) AddChunk(chk chunkenc.Chunk) error {
	it, ok := chunkenc.NewSampleInfoIterator(chk)
	if !ok {
		return nil // non-XOR chunks (e.g. Raw) carry no bit-width metadata
	}
	for it.Next() {
		_, _, _, minTsWidth, _ := it.SampleInfo()
		h.Add(minTsWidth)
	}
	return it.Err()
}

// AddSeries decodes every chunk of refs (drawn from one source) through
// cache and folds their samples into h.
func (h *BitWidthHistogram) AddSeries(cache *chunks.ChunkFileCache, refs []chunks.ChunkReference) error {
	for _, ref := range refs {
		view, err := chunks.Resolve(ref, cache)
		if err != nil {
			return err
		}
		chk, err := view.Chunk()
		if err != nil {
			return err
		}
		if err := h.AddChunk(chk); err != nil {
			return err
		}
	}
	return nil
}
