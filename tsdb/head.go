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
	"path/filepath"
	"sort"

	"tsdbreader/model/labels"
	"tsdbreader/tsdb/chunkenc"
	"tsdbreader/tsdb/chunks"
	"tsdbreader/tsdb/index"
	"tsdbreader/tsdb/record"
	"tsdbreader/tsdb/wlog"
)

// headSeries is one series as known to the head: its labels and its
// chunk references, the last of which may still be an open in-memory WAL
// chunk being appended to.
type headSeries struct {
	labels labels.Labels
	chunks []chunks.ChunkReference

	walAppender  chunkenc.Appender
	pendingChunk *chunkenc.RawChunk
	walMinTime   int64
	walMaxTime   int64
	walOpen      bool
}

// HeadChunks is the in-memory SeriesSource built from chunks_head/* and
// the WAL (spec §4.6, §3 "HeadChunks"). It owns its own symbol arena:
// every label string decoded off the WAL is copied, since the WAL file
// is read once and then dropped.
type HeadChunks struct {
	dir    string
	cache  *chunks.ChunkFileCache
	series map[uint64]*headSeries

	nextRawID uint32
}

// OpenHeadChunks loads dir/chunks_head and dir/wal (if present) into an
// in-memory series source.
func OpenHeadChunks(dir string) (*HeadChunks, error) {
	h := &HeadChunks{
		dir:    dir,
		cache:  chunks.NewChunkFileCache(filepath.Join(dir, "chunks_head")),
		series: make(map[uint64]*headSeries),
	}

	byRef, err := chunks.LoadHeadChunks(filepath.Join(dir, "chunks_head"), h.cache)
	if err != nil {
		return nil, fmt.Errorf("tsdb: loading head chunks: %w", err)
	}
	// Labels for head-chunk-only series are not known until the WAL's
	// Series records are replayed; seed an entry per ref so WAL samples
	// referencing an already-sealed series can find its prior chunks.
	for ref, refChunks := range byRef {
		h.series[ref] = &headSeries{chunks: refChunks}
	}

	if err := h.replayWAL(); err != nil {
		return nil, fmt.Errorf("tsdb: replaying WAL: %w", err)
	}
	h.closeOpenWALChunks()

	return h, nil
}

func (h *HeadChunks) replayWAL() error {
	segs, err := wlog.ReplaySegments(filepath.Join(h.dir, "wal"))
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return nil
	}

	r, err := wlog.NewReader(segs)
	if err != nil {
		return err
	}
	defer r.Close()

	for r.Next() {
		rec := r.Record()
		typ, body, err := record.DecodeType(rec)
		if err != nil {
			return err
		}
		switch typ {
		case record.Series:
			rs, err := record.DecodeSeries(body)
			if err != nil {
				return err
			}
			h.loadSeries(rs)
		case record.Samples:
			samples, err := record.DecodeSamples(body)
			if err != nil {
				return err
			}
			h.loadSamples(samples)
		case record.Tombstone:
			// Ignored (spec §1 Non-goals: tombstone replay).
		}
	}
	return r.Err()
}

func (h *HeadChunks) loadSeries(rs record.RefSeries) {
	s, ok := h.series[rs.Ref]
	if !ok {
		s = &headSeries{}
		h.series[rs.Ref] = s
	}
	s.labels = rs.Labels
}

func (h *HeadChunks) loadSamples(samples []record.RefSample) {
	for _, sm := range samples {
		s, ok := h.series[sm.Ref]
		if !ok {
			continue // unknown series: dropped per spec §4.6
		}
		if !s.walOpen {
			h.openWALChunk(s, sm.T)
		}
		if sm.T < s.walMinTime {
			continue
		}
		s.walAppender.Append(sm.T, sm.V)
		s.walMaxTime = sm.T
	}
}

func (h *HeadChunks) openWALChunk(s *headSeries, firstT int64) {
	c := chunkenc.NewRawChunk(nil)
	app, _ := c.Appender()
	s.walAppender = app
	s.walOpen = true
	s.walMinTime = firstT
	if n := len(s.chunks); n > 0 {
		s.walMinTime = s.chunks[n-1].MaxTime + 1
	}
	s.walMaxTime = firstT
	s.pendingChunk = c
}

// closeOpenWALChunks materialises every series' in-progress WAL chunk as
// a Raw-type ChunkReference, publishing its buffer into the cache under
// a freshly allocated synthetic segment id (spec §4.6, last paragraph).
func (h *HeadChunks) closeOpenWALChunks() {
	// Stable order only for determinism in tests; production code does
	// not depend on it.
	var refs []uint64
	for ref := range h.series {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })

	for _, ref := range refs {
		s := h.series[ref]
		if !s.walOpen || s.pendingChunk == nil {
			continue
		}
		h.nextRawID++
		fileRef := chunks.NewRawReference(h.nextRawID)
		cref := chunks.ChunkReference{
			MinTime: s.walMinTime,
			MaxTime: s.walMaxTime,
			FileRef: fileRef,
			Type:    chunks.Raw,
		}
		h.cache.PutForReference(cref, chunks.NewMemResource(s.pendingChunk.Bytes(), "wal"))
		s.chunks = append(s.chunks, cref)
		s.walOpen = false
		s.pendingChunk = nil
	}
}

// GetFilteredSeriesRefs implements SeriesSource by scanning the
// in-memory series map (spec §4.8: "Evaluation against HeadChunks scans
// the in-memory series map").
func (h *HeadChunks) GetFilteredSeriesRefs(filter index.Filter) ([]SeriesRef, error) {
	var out []SeriesRef
	for ref, s := range h.series {
		if len(s.chunks) == 0 {
			continue
		}
		if matchesFilter(s.labels, filter) {
			out = append(out, SeriesRef(ref))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func matchesFilter(lbls labels.Labels, filter index.Filter) bool {
	for name, pred := range filter {
		v, ok := findLabel(lbls, name)
		if !ok || !pred.Matches(v) {
			return false
		}
	}
	return true
}

func findLabel(lbls labels.Labels, name string) (string, bool) {
	for _, l := range lbls {
		if l.Name == name {
			return l.Value, true
		}
	}
	return "", false
}

// GetSeries implements SeriesSource.
func (h *HeadChunks) GetSeries(ref SeriesRef) (labels.Labels, []chunks.ChunkReference, bool) {
	s, ok := h.series[uint64(ref)]
	if !ok {
		return nil, nil, false
	}
	return s.labels, s.chunks, true
}

// GetCache implements SeriesSource.
func (h *HeadChunks) GetCache() *chunks.ChunkFileCache { return h.cache }

func (h *HeadChunks) String() string { return "head" }
