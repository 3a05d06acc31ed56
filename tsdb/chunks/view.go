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

package chunks

import (
	"encoding/binary"

	"tsdbreader/tsdb/chunkenc"
	"tsdbreader/tsdb/encoding"
)

// ChunkView parses one chunk's header out of a Resource and exposes its
// data region plus a lazily-constructed sample iterator (spec §4.7). Its
// Resource is held for as long as the view exists, keeping the backing
// mapping alive.
type ChunkView struct {
	resource Resource

	dataOffset  int
	dataLen     int
	sampleCount int
	enc         chunkenc.Encoding
}

// NewChunkView parses ref's header out of resource according to ref.Type.
func NewChunkView(ref ChunkReference, resource Resource) (*ChunkView, error) {
	b := resource.Bytes()
	off := int(ref.FileRef.Offset())

	switch ref.Type {
	case Block:
		db := encoding.Decbuf{B: b}
		db.Seek(off, encoding.Begin)
		dataLen := db.Uvarint()
		encByte := db.Byte()
		if db.Err() != nil {
			return nil, db.Err()
		}
		if encByte != chunkEncodingByte {
			return nil, chunkenc.ErrUnknownEncoding
		}
		bodyOff := db.Tell()
		if bodyOff+2 > len(b) {
			return nil, encoding.ErrEOF
		}
		count := int(binary.BigEndian.Uint16(b[bodyOff : bodyOff+2]))
		return &ChunkView{
			resource:    resource,
			dataOffset:  bodyOff,
			dataLen:     int(dataLen),
			sampleCount: count,
			enc:         chunkenc.EncXOR,
		}, nil

	case Head:
		// ref.FileRef.Offset() points at the start of the per-entry meta
		// within the mmapped chunks_head file (spec §4.6): {u64 seriesRef,
		// i64 minTime, i64 maxTime, u8 encoding, varuint dataLen}, then
		// dataLen bytes of chunk body.
		db := encoding.Decbuf{B: b}
		db.Seek(off, encoding.Begin)
		db.Be64() // seriesRef, already known to the caller
		db.Be64() // minTime
		db.Be64() // maxTime
		encByte := db.Byte()
		dataLen := db.Uvarint()
		if db.Err() != nil {
			return nil, db.Err()
		}
		if encByte != chunkEncodingByte {
			return nil, chunkenc.ErrUnknownEncoding
		}
		bodyOff := db.Tell()
		if bodyOff+2 > len(b) {
			return nil, encoding.ErrEOF
		}
		count := int(binary.BigEndian.Uint16(b[bodyOff : bodyOff+2]))
		return &ChunkView{
			resource:    resource,
			dataOffset:  bodyOff,
			dataLen:     int(dataLen),
			sampleCount: count,
			enc:         chunkenc.EncXOR,
		}, nil

	case Raw:
		return &ChunkView{
			resource:    resource,
			dataOffset:  0,
			dataLen:     len(b),
			sampleCount: len(b) / rawSampleSize,
			enc:         chunkenc.EncNone,
		}, nil

	default:
		return nil, chunkenc.ErrUnknownEncoding
	}
}

// NumSamples returns the chunk's declared sample count.
func (v *ChunkView) NumSamples() int { return v.sampleCount }

// Chunk decodes the view's data region into a chunkenc.Chunk.
func (v *ChunkView) Chunk() (chunkenc.Chunk, error) {
	body := v.resource.Bytes()[v.dataOffset : v.dataOffset+v.dataLen]
	return chunkenc.FromData(v.enc, body)
}

// Samples returns a forward-only SampleIterator over the view's chunk.
func (v *ChunkView) Samples() (*SampleIterator, error) {
	chk, err := v.Chunk()
	if err != nil {
		return nil, err
	}
	return &SampleIterator{it: chk.Iterator(nil)}, nil
}

// SampleIterator is a single-pass, forward-only sequence of samples drawn
// from one chunk (spec §4.7). It wraps the underlying chunkenc.Iterator so
// callers outside the chunkenc package never need to reference the
// concrete codec.
type SampleIterator struct {
	it chunkenc.Iterator
}

func (s *SampleIterator) Next() bool           { return s.it.Next() }
func (s *SampleIterator) At() (int64, float64) { return s.it.At() }
func (s *SampleIterator) Err() error            { return s.it.Err() }
