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

// Package chunkenc implements the Gorilla-style XOR chunk codec used by
// Prometheus TSDB, plus a "raw" chunk type used only for samples reasembled
// from the write-ahead log before they are ever written to a segment file.
package chunkenc

import (
	"errors"
	"fmt"
)

// Encoding is the one-byte tag prepended to a chunk's data that identifies
// how to decode it. Only EncXOR is a valid on-disk encoding; EncNone is
// what RawChunk reports, and raw chunks only ever exist in memory, never
// serialized with this byte.
type Encoding uint8

const (
	EncNone Encoding = iota
	EncXOR
)

func (e Encoding) String() string {
	switch e {
	case EncNone:
		return "none"
	case EncXOR:
		return "XOR"
	default:
		return "<unknown>"
	}
}

// ErrUnknownEncoding is returned when a chunk's encoding is not one this
// package can decode: the on-disk byte must be 1 (EncXOR), and FromData
// additionally accepts EncNone for in-memory raw chunks.
var ErrUnknownEncoding = errors.New("chunkenc: unknown chunk encoding")

// ErrInvalidSize is returned for a chunk whose header claims an impossible
// sample count or bit-stream layout (e.g. a zero significant-bit count
// during decode, or a reserved timestamp prefix).
type ErrInvalidSize struct {
	Reason string
}

func (e *ErrInvalidSize) Error() string {
	return fmt.Sprintf("chunkenc: invalid chunk: %s", e.Reason)
}

// MaxSamplesPerChunk is the largest sample count a single chunk's u16
// header can represent.
const MaxSamplesPerChunk = 65535

// Chunk holds a sequence of timestamped values, compressed according to its
// Encoding. This is a read-mostly interface: Appender exists only to
// support round-trip tests and the portable-snapshot writer (spec §1
// Non-goals).
type Chunk interface {
	Bytes() []byte
	Encoding() Encoding
	Appender() (Appender, error)
	Iterator(Iterator) Iterator
	NumSamples() int
}

// Appender adds sample pairs to a chunk in strictly increasing timestamp
// order. It is the write side, exercised only by tests and the exporter.
type Appender interface {
	Append(t int64, v float64)
}

// Iterator advances through a chunk's samples one at a time. It is
// single-pass and forward-only.
type Iterator interface {
	// Next advances to the next sample, returning false when the chunk is
	// exhausted or a decode error occurred; check Err() to distinguish.
	Next() bool
	// At returns the current sample.
	At() (int64, float64)
	// Err returns the first error encountered, if any.
	Err() error
}

// SampleInfoIterator is satisfied by chunk iterators that expose
// per-sample bit-width decode metadata (spec §3 "Sample / SampleInfo"),
// used by BitWidthHistogram. Only XORChunk's iterator implements it.
type SampleInfoIterator interface {
	Next() bool
	SampleInfo() (t int64, v float64, tsBitWidth uint16, minTsWidth uint8, valBitWidth uint16)
	Err() error
}

// NewSampleInfoIterator returns c's SampleInfoIterator, if it has one.
func NewSampleInfoIterator(c Chunk) (SampleInfoIterator, bool) {
	x, ok := c.(*XORChunk)
	if !ok {
		return nil, false
	}
	return x.SampleInfoIterator(nil), true
}

// FromData wraps a chunk body whose encoding enc has already been read
// from its header (spec §3 "Chunk"); data starts at the body itself (for
// EncXOR, at the u16 sample count). It returns the appropriate Chunk
// implementation.
func FromData(enc Encoding, data []byte) (Chunk, error) {
	switch enc {
	case EncXOR:
		return &XORChunk{b: bstream{stream: data, count: 0}}, nil
	case EncNone:
		return NewRawChunk(data), nil
	default:
		return nil, ErrUnknownEncoding
	}
}
