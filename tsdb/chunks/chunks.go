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

// Package chunks implements the on-disk chunk-segment layout (spec §4.4),
// the chunk reference encoding (spec §3 "ChunkReference"), and the
// head-chunks directory loader (spec §4.6).
package chunks

import (
	"fmt"

	"tsdbreader/tsdb/chunkenc"
)

// ChunkType distinguishes where a chunk's bytes live.
type ChunkType uint8

const (
	// Block chunks live in a block's chunks/NNNNNN segment files.
	Block ChunkType = iota
	// Head chunks live in chunks_head/NNNNNN, in the ChunkDiskMapper
	// on-disk format.
	Head
	// Raw chunks are WAL-derived samples materialized in memory only;
	// they are never written to disk.
	Raw
)

func (t ChunkType) String() string {
	switch t {
	case Block:
		return "block"
	case Head:
		return "head"
	case Raw:
		return "raw"
	default:
		return "unknown"
	}
}

// rawSegmentBase starts the reserved synthetic segment-id range of Raw
// chunk references: NewRawReference(n), n >= 1, gets segment id
// rawSegmentBase+n. It is chosen far above any realistic on-disk segment
// count so Raw references never collide with real segments (spec §3).
const rawSegmentBase = 0xFF000000

// Reference packs (segmentFileId, offset) as Prometheus does: the low 32
// bits are the byte offset within the segment file, the high 32 bits are
// segmentFileId-1.
type Reference uint64

// NewBlockReference builds a Reference from a 1-based segment id and a
// byte offset within that segment.
func NewBlockReference(segmentID uint32, offset uint32) Reference {
	return Reference(uint64(segmentID-1)<<32 | uint64(offset))
}

// NewRawReference builds a Reference for a synthetic Raw segment. offset
// is always 0: a Raw chunk's entire buffer, published under this
// reference's segment id in the ChunkFileCache, is the chunk.
func NewRawReference(syntheticIndex uint32) Reference {
	return Reference(uint64(rawSegmentBase+syntheticIndex-1) << 32)
}

// SegmentFileID returns the 1-based segment file id this reference points
// into.
func (r Reference) SegmentFileID() uint32 {
	return uint32(r>>32) + 1
}

// Offset returns the byte offset within the segment file.
func (r Reference) Offset() uint32 {
	return uint32(r)
}

// IsRawSegment reports whether this reference's segment id falls in the
// reserved synthetic range used by WAL-derived chunks.
func (r Reference) IsRawSegment() bool {
	return uint32(r>>32) >= rawSegmentBase-1
}

// SegmentFileName formats a segment id as the zero-padded six-digit
// filename used under a block's chunks/ directory (spec §4.4).
func SegmentFileName(id uint32) string {
	return fmt.Sprintf("%06d", id)
}

// ChunkReference is one entry in a series' chunk list (spec §3).
type ChunkReference struct {
	MinTime, MaxTime int64
	FileRef          Reference
	Type             ChunkType
}

// Meta pairs a ChunkReference with its decoded Chunk once its bytes have
// been read through a ChunkView; it is the unit iterated by
// SeriesSampleIterator (spec §4.7).
type Meta struct {
	Ref   ChunkReference
	Chunk chunkenc.Chunk
}

// chunkEncodingByte is the single reserved encoding tag prometheus writes
// ahead of every on-disk chunk body (spec §3 "Chunk"): only the value 1
// (XOR) is valid.
const chunkEncodingByte = 1

// Resolve looks up ref's backing Resource in cache and parses its header,
// regardless of whether ref is a Block, Head, or Raw reference. This is
// the single entry point the query layer uses to go from a
// ChunkReference to a readable chunk (spec §4.7).
func Resolve(ref ChunkReference, cache *ChunkFileCache) (*ChunkView, error) {
	res, err := cache.GetForReference(ref)
	if err != nil {
		return nil, err
	}
	return NewChunkView(ref, res)
}
