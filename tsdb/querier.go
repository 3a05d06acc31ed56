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
	"fmt"

	"tsdbreader/model/labels"
	"tsdbreader/tsdb/chunks"
	"tsdbreader/tsdb/index"
)

// sourceCursor walks one source's filtered, sorted series refs.
type sourceCursor struct {
	source SeriesSource
	refs   []SeriesRef
	pos    int

	curLabels labels.Labels
	curChunks []chunks.ChunkReference
	ok        bool
}

func newSourceCursor(src SeriesSource, filter index.Filter) (*sourceCursor, error) {
	refs, err := src.GetFilteredSeriesRefs(filter)
	if err != nil {
		return nil, err
	}
	c := &sourceCursor{source: src, refs: refs}
	c.advance()
	return c, nil
}

func (c *sourceCursor) advance() {
	if c.pos >= len(c.refs) {
		c.ok = false
		return
	}
	ref := c.refs[c.pos]
	c.pos++
	lbls, chks, found := c.source.GetSeries(ref)
	if !found {
		c.advance()
		return
	}
	c.curLabels = lbls
	c.curChunks = chks
	c.ok = true
}

// CrossIndexSeries bundles one series as seen across every source whose
// label set compares equal (spec §3 "CrossIndexSeries"). Chunks are
// exposed in source order, which — because sources are sorted by block
// minTime when the SeriesIterator is built — is time order.
type CrossIndexSeries struct {
	Labels labels.Labels
	parts  []seriesPart
}

type seriesPart struct {
	source SeriesSource
	chunks []chunks.ChunkReference
}

// SeriesIterator merges the filtered, label-sorted series of every
// source into one strictly-increasing-by-label sequence (spec §4.8). The
// same series observed in more than one source is merged into a single
// CrossIndexSeries.
type SeriesIterator struct {
	cursors []*sourceCursor
	cur     CrossIndexSeries
	err     error
}

// NewSeriesIterator builds a merged iterator over sources, which must
// already be ordered the way CrossIndexSeries should expose their
// chunks (ascending by block minTime; the head, if present, should
// generally be last).
func NewSeriesIterator(sources []SeriesSource, filter index.Filter) (*SeriesIterator, error) {
	it := &SeriesIterator{}
	for _, src := range sources {
		c, err := newSourceCursor(src, filter)
		if err != nil {
			return nil, fmt.Errorf("tsdb: opening %s: %w", src.String(), err)
		}
		it.cursors = append(it.cursors, c)
	}
	return it, nil
}

// Next advances to the next merged series, returning false when every
// source is exhausted. Series refs that a source cannot resolve are
// skipped rather than reported as errors.
func (it *SeriesIterator) Next() bool {
	if it.err != nil {
		return false
	}

	// Find the lexicographically smallest current label set among all
	// sources still producing series.
	var minLabels labels.Labels
	found := false
	for _, c := range it.cursors {
		if !c.ok {
			continue
		}
		if !found || labels.Compare(c.curLabels, minLabels) < 0 {
			minLabels = c.curLabels
			found = true
		}
	}
	if !found {
		return false
	}

	var parts []seriesPart
	for _, c := range it.cursors {
		if !c.ok || labels.Compare(c.curLabels, minLabels) != 0 {
			continue
		}
		parts = append(parts, seriesPart{source: c.source, chunks: c.curChunks})
		c.advance()
	}

	it.cur = CrossIndexSeries{Labels: minLabels, parts: parts}
	return true
}

// At returns the series most recently advanced to.
func (it *SeriesIterator) At() CrossIndexSeries { return it.cur }

// Err returns the first fatal error encountered.
func (it *SeriesIterator) Err() error { return it.err }

// SeriesSampleIterator chains the chunks of one series, from one source,
// through that source's chunk-file cache (spec §4.8).
type SeriesSampleIterator struct {
	cache   *chunks.ChunkFileCache
	refs    []chunks.ChunkReference
	idx     int
	cur     *chunks.SampleIterator
	err     error
}

// NewSeriesSampleIterator returns a sample iterator over one
// (source, series) pair's chunks in order.
func NewSeriesSampleIterator(cache *chunks.ChunkFileCache, refs []chunks.ChunkReference) *SeriesSampleIterator {
	return &SeriesSampleIterator{cache: cache, refs: refs}
}

func (s *SeriesSampleIterator) Next() bool {
	if s.err != nil {
		return false
	}
	for {
		if s.cur != nil && s.cur.Next() {
			return true
		}
		if s.cur != nil && s.cur.Err() != nil {
			s.err = s.cur.Err()
			return false
		}
		if s.idx >= len(s.refs) {
			return false
		}
		ref := s.refs[s.idx]
		s.idx++
		view, err := chunks.Resolve(ref, s.cache)
		if err != nil {
			s.err = err
			return false
		}
		it, err := view.Samples()
		if err != nil {
			s.err = err
			return false
		}
		s.cur = it
	}
}

func (s *SeriesSampleIterator) At() (int64, float64) { return s.cur.At() }

func (s *SeriesSampleIterator) Err() error { return s.err }

// CrossIndexSampleIterator chains the SeriesSampleIterators of every part
// of a CrossIndexSeries back to back. Because parts are in source order
// and sources are sorted by block minTime, and the WAL loader already
// strips the head/WAL overlap, this yields monotonically increasing
// timestamps when the blocks' time ranges do not overlap (spec §4.8).
// Samples of overlapping blocks are not deduplicated: each part's samples
// are emitted in full, so timestamps can repeat or step backwards at the
// boundary between two such parts.
type CrossIndexSampleIterator struct {
	parts []seriesPart
	idx   int
	cur   *SeriesSampleIterator
	err   error
}

func NewCrossIndexSampleIterator(series CrossIndexSeries) *CrossIndexSampleIterator {
	return &CrossIndexSampleIterator{parts: series.parts}
}

func (c *CrossIndexSampleIterator) Next() bool {
	if c.err != nil {
		return false
	}
	for {
		if c.cur != nil && c.cur.Next() {
			return true
		}
		if c.cur != nil && c.cur.Err() != nil {
			c.err = c.cur.Err()
			return false
		}
		if c.idx >= len(c.parts) {
			return false
		}
		p := c.parts[c.idx]
		c.idx++
		c.cur = NewSeriesSampleIterator(p.source.GetCache(), p.chunks)
	}
}

func (c *CrossIndexSampleIterator) At() (int64, float64) { return c.cur.At() }

func (c *CrossIndexSampleIterator) Err() error { return c.err }
