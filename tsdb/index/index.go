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

// Package index implements the on-disk TSDB index file reader: the table
// of contents, the symbol table, the series table, and the postings
// offset table (spec §4.5).
package index

import (
	"fmt"
	"sort"

	"tsdbreader/model/labels"
	"tsdbreader/tsdb/chunks"
	"tsdbreader/tsdb/encoding"
)

// SeriesRef identifies a series within a block: the byte offset of its
// series record in the index file, divided by 16.
type SeriesRef uint64

// postingsEntryByte is the reserved tag every postings-offset-table entry
// begins with.
const postingsEntryByte = 2

// tocLen is the fixed trailer length: six big-endian u64 offsets plus a
// trailing u32 CRC, read from (but not verified against) the end of the
// file.
const tocLen = 6*8 + 4

// TOC holds the six fixed offsets every index file ends with (spec §3
// "TOC").
type TOC struct {
	SymbolOffset             uint64
	SeriesOffset             uint64
	LabelIndicesOffset       uint64
	LabelIndicesTableOffset  uint64
	PostingsOffset           uint64
	PostingsOffsetTableOffset uint64
}

func readTOC(b []byte) (TOC, error) {
	if len(b) < tocLen {
		return TOC{}, encoding.ErrEOF
	}
	db := encoding.Decbuf{B: b[len(b)-tocLen:]}
	t := TOC{
		SymbolOffset:              db.Be64(),
		SeriesOffset:              db.Be64(),
		LabelIndicesOffset:        db.Be64(),
		LabelIndicesTableOffset:   db.Be64(),
		PostingsOffset:            db.Be64(),
		PostingsOffsetTableOffset: db.Be64(),
	}
	if db.Err() != nil {
		return TOC{}, db.Err()
	}
	return t, nil
}

// Series is one series record: its label set and the chunk references it
// owns, in ascending time order.
type Series struct {
	Labels labels.Labels
	Chunks []chunks.ChunkReference
}

// Reader parses and holds an entire index file. It is read-only and safe
// for concurrent lookups once constructed.
type Reader struct {
	b []byte

	symbols []string
	series  map[SeriesRef]Series

	// postingsOffsets[name][value] is the byte offset of that label's
	// posting list, relative to the start of b.
	postingsOffsets map[string]map[string]uint64

	toc TOC
}

// NewReader parses an index file's bytes in full: symbol table, series
// table, and postings offset table (spec §4.5 steps 2-6).
func NewReader(b []byte) (*Reader, error) {
	toc, err := readTOC(b)
	if err != nil {
		return nil, fmt.Errorf("index: reading TOC: %w", err)
	}
	r := &Reader{b: b, toc: toc, series: make(map[SeriesRef]Series)}

	if r.symbols, err = readSymbols(b, toc.SymbolOffset); err != nil {
		return nil, fmt.Errorf("index: reading symbols: %w", err)
	}
	if err := r.readSeries(); err != nil {
		return nil, fmt.Errorf("index: reading series: %w", err)
	}
	if r.postingsOffsets, err = readPostingsOffsetTable(b, toc.PostingsOffsetTableOffset); err != nil {
		return nil, fmt.Errorf("index: reading postings offset table: %w", err)
	}
	return r, nil
}

// readSymbols parses the length-prefixed symbol table at off: a u32
// length, a u32 count, then count varuint-length-prefixed strings. A
// zero-length entry is kept (as "") to preserve index alignment with the
// writer's numbering (spec §4.5 step 3).
func readSymbols(b []byte, off uint64) ([]string, error) {
	db := encoding.Decbuf{B: b}
	db.Seek(int(off), encoding.Begin)
	_ = db.Be32() // table length, unused: the count below bounds the loop
	count := db.Be32()
	if db.Err() != nil {
		return nil, db.Err()
	}

	out := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		l := db.Uvarint()
		if db.Err() != nil {
			return nil, db.Err()
		}
		if l == 0 {
			out = append(out, "")
			continue
		}
		sb := db.View(int(l))
		if db.Err() != nil {
			return nil, db.Err()
		}
		out = append(out, string(sb))
	}
	return out, nil
}

// symbol looks a symbol id up, failing loudly on an out-of-range id
// rather than silently returning "". Symbol ids are 0-based: id 0 is the
// first entry of the symbol table.
func (r *Reader) symbol(id uint32) (string, error) {
	if int(id) >= len(r.symbols) {
		return "", fmt.Errorf("index: symbol id %d out of range (table has %d entries)", id, len(r.symbols))
	}
	return r.symbols[id], nil
}

// readSeries walks the series table from toc.SeriesOffset up to (but not
// including) toc.LabelIndicesOffset, indexing each record under
// ref = pos/16 (spec §4.5 step 4).
func (r *Reader) readSeries() error {
	db := encoding.Decbuf{B: r.b}
	db.Seek(int(r.toc.SeriesOffset), encoding.Begin)

	for {
		db.ConsumeToAlignment(16)
		pos := db.Tell()
		if uint64(pos) >= r.toc.LabelIndicesOffset {
			break
		}
		if db.Err() != nil {
			return db.Err()
		}

		s, err := r.readOneSeries(&db)
		if err != nil {
			return err
		}
		r.series[SeriesRef(pos/16)] = s
	}
	return nil
}

func (r *Reader) readOneSeries(db *encoding.Decbuf) (Series, error) {
	frameLen := db.Uvarint()
	frame := encoding.Decbuf{B: db.View(int(frameLen))}
	if db.Err() != nil {
		return Series{}, db.Err()
	}

	labelCount := frame.Uvarint()
	lbls := make(labels.Labels, 0, labelCount)
	for i := uint64(0); i < labelCount; i++ {
		nameID := frame.Uvarint32()
		valueID := frame.Uvarint32()
		name, err := r.symbol(nameID)
		if err != nil {
			return Series{}, err
		}
		value, err := r.symbol(valueID)
		if err != nil {
			return Series{}, err
		}
		lbls = append(lbls, labels.Label{Name: name, Value: value})
	}

	chunkCount := frame.Uvarint()
	if chunkCount == 0 {
		return Series{}, fmt.Errorf("index: series with zero chunks")
	}
	chks := make([]chunks.ChunkReference, 0, chunkCount)

	minTime := frame.Varint()
	maxTime := minTime + int64(frame.Uvarint())
	fileRef := frame.Uvarint()
	chks = append(chks, chunks.ChunkReference{
		MinTime: minTime,
		MaxTime: maxTime,
		FileRef: chunks.Reference(fileRef),
		Type:    chunks.Block,
	})

	for i := uint64(1); i < chunkCount; i++ {
		prev := chks[len(chks)-1]
		minTime = prev.MaxTime + int64(frame.Uvarint())
		maxTime = minTime + int64(frame.Uvarint())
		fileRef = uint64(prev.FileRef) + uint64(frame.Varint())
		chks = append(chks, chunks.ChunkReference{
			MinTime: minTime,
			MaxTime: maxTime,
			FileRef: chunks.Reference(fileRef),
			Type:    chunks.Block,
		})
	}
	if frame.Err() != nil {
		return Series{}, frame.Err()
	}

	db.Be32() // trailing CRC, read but never verified (spec §1 Non-goals)
	if db.Err() != nil {
		return Series{}, db.Err()
	}

	return Series{Labels: lbls.Copy(), Chunks: chks}, nil
}

// readPostingsOffsetTable parses the {u8==2, name, value, offset} entries
// starting at off into a name->value->offset map (spec §4.5 step 5). The
// spec frames this as lazy iteration over a positioned decoder; building
// the map eagerly here is equivalent for a read-only reader and avoids
// re-parsing on every later lookup.
func readPostingsOffsetTable(b []byte, off uint64) (map[string]map[string]uint64, error) {
	db := encoding.Decbuf{B: b}
	db.Seek(int(off), encoding.Begin)
	_ = db.Be32() // table length
	entries := db.Be32()
	if db.Err() != nil {
		return nil, db.Err()
	}

	out := make(map[string]map[string]uint64, entries)
	for i := uint32(0); i < entries; i++ {
		tag := db.Byte()
		if tag != postingsEntryByte {
			return nil, fmt.Errorf("index: bad postings-offset-table entry tag %d", tag)
		}
		name := db.UvarintStr()
		value := db.UvarintStr()
		offset := db.Uvarint()
		if db.Err() != nil {
			return nil, db.Err()
		}
		if out[name] == nil {
			out[name] = make(map[string]uint64)
		}
		out[name][value] = offset
	}
	return out, nil
}

// Series returns the Series indexed under ref.
func (r *Reader) Series(ref SeriesRef) (Series, bool) {
	s, ok := r.series[ref]
	return s, ok
}

// SeriesCount returns the number of series in the block.
func (r *Reader) SeriesCount() int { return len(r.series) }

// LabelNames returns every distinct label name with at least one
// posting.
func (r *Reader) LabelNames() []string {
	names := make([]string, 0, len(r.postingsOffsets))
	for n := range r.postingsOffsets {
		names = append(names, n)
	}
	return names
}

// postingsOffset returns the offset of the posting list for (name,
// value), and whether it exists.
func (r *Reader) postingsOffset(name, value string) (uint64, bool) {
	vals, ok := r.postingsOffsets[name]
	if !ok {
		return 0, false
	}
	off, ok := vals[value]
	return off, ok
}

// seriesRefsAt parses a posting list at the given byte offset: {u32 len,
// u32 count, count x u32 ref} (spec §4.5 step 6), returning it as an
// ascending sorted set.
func (r *Reader) seriesRefsAt(off uint64) ([]SeriesRef, error) {
	db := encoding.Decbuf{B: r.b}
	db.Seek(int(off), encoding.Begin)
	_ = db.Be32() // list length
	count := db.Be32()
	if db.Err() != nil {
		return nil, db.Err()
	}
	out := make([]SeriesRef, count)
	for i := uint32(0); i < count; i++ {
		out[i] = SeriesRef(db.Be32())
	}
	if db.Err() != nil {
		return nil, db.Err()
	}
	// Canonical posting lists are already ascending; sort explicitly
	// rather than trust that, since union/intersect assume it.
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
