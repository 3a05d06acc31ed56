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

// Package tsdb composes the index, chunk, and WAL readers into a
// uniform series source, and merges multiple blocks and the head into
// one time-ordered stream (spec §2, §4.8).
package tsdb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"tsdbreader/model/labels"
	"tsdbreader/tsdb/chunks"
	"tsdbreader/tsdb/fileutil"
	"tsdbreader/tsdb/index"
)

// BlockStats mirrors meta.json's stats object.
type BlockStats struct {
	NumSamples uint64 `json:"numSamples"`
	NumSeries  uint64 `json:"numSeries"`
	NumChunks  uint64 `json:"numChunks"`
}

// BlockSource identifies a parent block a compaction merged, by ULID.
type BlockSource struct {
	ULID string `json:"ulid"`
}

// Compaction mirrors meta.json's compaction object.
type Compaction struct {
	Level   int           `json:"level"`
	Sources []BlockSource `json:"sources,omitempty"`
	Parents []BlockSource `json:"parents,omitempty"`
}

// Meta is a block's parsed meta.json (spec §3 "Index (block)").
type Meta struct {
	ULID       string     `json:"ulid"`
	MinTime    int64      `json:"minTime"`
	MaxTime    int64      `json:"maxTime"`
	Stats      BlockStats `json:"stats"`
	Compaction Compaction `json:"compaction"`
}

func readMeta(dir string) (Meta, error) {
	b, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return Meta{}, fmt.Errorf("tsdb: reading meta.json: %w", err)
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, fmt.Errorf("tsdb: parsing meta.json: %w", err)
	}
	if m.ULID == "" {
		return Meta{}, fmt.Errorf("tsdb: meta.json missing required field ulid")
	}
	return m, nil
}

// Block is one immutable, on-disk compacted block: its index, meta.json,
// and chunk-file cache (spec §3 "Index (block)").
type Block struct {
	dir   string
	meta  Meta
	idxRes *fileutil.MmapFile
	idx   *index.Reader
	cache *chunks.ChunkFileCache
}

// OpenBlock mmaps dir/index, parses dir/meta.json, and prepares a
// ChunkFileCache rooted at dir/chunks.
func OpenBlock(dir string) (*Block, error) {
	meta, err := readMeta(dir)
	if err != nil {
		return nil, err
	}

	idxFile, err := fileutil.OpenMmapFile(filepath.Join(dir, "index"))
	if err != nil {
		return nil, fmt.Errorf("tsdb: mmapping index: %w", err)
	}
	idx, err := index.NewReader(idxFile.Bytes())
	if err != nil {
		idxFile.Close()
		return nil, err
	}

	return &Block{
		dir:    dir,
		meta:   meta,
		idxRes: idxFile,
		idx:    idx,
		cache:  chunks.NewChunkFileCache(filepath.Join(dir, "chunks")),
	}, nil
}

// Close unmaps the index and every chunk segment this block has opened.
func (b *Block) Close() error {
	errs := []error{b.cache.Close(), b.idxRes.Close()}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *Block) Meta() Meta { return b.meta }
func (b *Block) Dir() string { return b.dir }

// GetFilteredSeriesRefs implements SeriesSource.
func (b *Block) GetFilteredSeriesRefs(filter index.Filter) ([]SeriesRef, error) {
	refs, err := b.idx.GetFilteredSeriesRefs(filter)
	if err != nil {
		return nil, err
	}
	out := make([]SeriesRef, len(refs))
	for i, r := range refs {
		out[i] = SeriesRef(r)
	}
	return out, nil
}

// GetSeries implements SeriesSource.
func (b *Block) GetSeries(ref SeriesRef) (labels.Labels, []chunks.ChunkReference, bool) {
	s, ok := b.idx.Series(index.SeriesRef(ref))
	if !ok {
		return nil, nil, false
	}
	return s.Labels, s.Chunks, true
}

// GetCache implements SeriesSource.
func (b *Block) GetCache() *chunks.ChunkFileCache { return b.cache }

func (b *Block) String() string {
	return fmt.Sprintf("block %s [%d,%d]", b.meta.ULID, b.meta.MinTime, b.meta.MaxTime)
}
