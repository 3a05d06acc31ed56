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
	"encoding/binary"
	"math"
)

// rawSampleSize is the size in bytes of one packed (timestamp, value) pair.
const rawSampleSize = 8 + 8

// RawChunk holds samples reassembled from the write-ahead log as packed
// (int64, float64) pairs, with no delta or XOR compression (spec §3
// "Chunk", §4.6). It is never written to disk; it exists only so that
// in-memory WAL samples can be iterated through the same Chunk interface
// as on-disk XOR chunks.
type RawChunk struct {
	data []byte
}

// NewRawChunk wraps a buffer of packed (t,v) pairs previously built by
// RawChunkAppender.
func NewRawChunk(data []byte) *RawChunk {
	return &RawChunk{data: data}
}

func (c *RawChunk) Encoding() Encoding { return EncNone }

func (c *RawChunk) Bytes() []byte { return c.data }

func (c *RawChunk) NumSamples() int { return len(c.data) / rawSampleSize }

func (c *RawChunk) Appender() (Appender, error) {
	return &RawChunkAppender{c: c}, nil
}

func (c *RawChunk) Iterator(it Iterator) Iterator {
	if r, ok := it.(*rawIterator); ok {
		r.Reset(c.data)
		return r
	}
	return &rawIterator{data: c.data}
}

// RawChunkAppender appends packed samples in strictly increasing timestamp
// order, used by the WAL loader while a series' in-memory chunk is still
// being accumulated (spec §4.6).
type RawChunkAppender struct {
	c *RawChunk
}

func (a *RawChunkAppender) Append(t int64, v float64) {
	var buf [rawSampleSize]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(t))
	binary.BigEndian.PutUint64(buf[8:16], math.Float64bits(v))
	a.c.data = append(a.c.data, buf[:]...)
}

type rawIterator struct {
	data []byte
	pos  int
	t    int64
	v    float64
	err  error
}

func (it *rawIterator) Reset(data []byte) {
	it.data = data
	it.pos = 0
	it.t = 0
	it.v = 0
	it.err = nil
}

func (it *rawIterator) Next() bool {
	if it.err != nil || it.pos+rawSampleSize > len(it.data) {
		return false
	}
	it.t = int64(binary.BigEndian.Uint64(it.data[it.pos : it.pos+8]))
	it.v = math.Float64frombits(binary.BigEndian.Uint64(it.data[it.pos+8 : it.pos+16]))
	it.pos += rawSampleSize
	return true
}

func (it *rawIterator) At() (int64, float64) { return it.t, it.v }

func (it *rawIterator) Err() error { return it.err }
