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

// The code in this file was largely written by Damian Gryski as part of
// https://github.com/dgryski/go-tsz, and has been modified to accommodate
// reading from byte slices without modifying the underlying bytes, which
// would panic when reading from mmap'd read-only byte slices.

package chunkenc

import "io"

// bit is a single bit value, kept as a named type so writeBit's call sites
// read naturally (writeBit(zero), writeBit(one)).
type bit bool

const (
	zero bit = false
	one  bit = true
)

// bstream is a stream of bits, written and read most-significant-bit first.
// The write side grows b.stream; the read side tracks a byte cursor plus
// the number of unread bits left in the byte at that cursor.
type bstream struct {
	stream []byte
	count  uint8 // number of unused/unread bits left in the last byte
}

func (b *bstream) bytes() []byte {
	return b.stream
}

func (b *bstream) Reset(stream []byte) {
	b.stream = stream
	b.count = 0
}

func (b *bstream) writeBit(bt bit) {
	if b.count == 0 {
		b.stream = append(b.stream, 0)
		b.count = 8
	}

	i := len(b.stream) - 1

	if bt {
		b.stream[i] |= 1 << (b.count - 1)
	}

	b.count--
}

func (b *bstream) writeByte(byt byte) {
	if b.count == 0 {
		b.stream = append(b.stream, 0)
		b.count = 8
	}

	i := len(b.stream) - 1

	// Complete the last byte with the leftmost b.count bits from byt,
	// and carry the rest into a new byte.
	b.stream[i] |= byt >> (8 - b.count)

	b.stream = append(b.stream, 0)
	i++
	b.stream[i] = byt << b.count
}

// writeBits writes the nbits least significant bits of u, most-significant
// bit of the field first.
func (b *bstream) writeBits(u uint64, nbits int) {
	u <<= 64 - uint(nbits)
	for nbits >= 8 {
		byt := byte(u >> 56)
		b.writeByte(byt)
		u <<= 8
		nbits -= 8
	}

	for nbits > 0 {
		b.writeBit((u >> 63) == 1)
		u <<= 1
		nbits--
	}
}

// finish pads the last partial byte with zero bits, so the stream can be
// read back byte-aligned. It is a no-op if the last byte is already full.
func (b *bstream) finish() {
	if b.count != 0 {
		b.count = 0
	}
}

// bstreamReader reads a bstream bit by bit, maintaining an 8-bit buffer and
// a count of unread bits remaining in it (spec §4.2). The buffer is
// refilled from the underlying byte stream one byte at a time, exactly
// when it empties.
type bstreamReader struct {
	stream       []byte
	streamOffset int

	buffer        byte
	remainingBits uint8 // invariant: 0 <= remainingBits <= 8
}

func newBReader(b []byte) bstreamReader {
	return bstreamReader{stream: b}
}

func (b *bstreamReader) readBit() (bit, error) {
	if b.remainingBits == 0 {
		if !b.refill() {
			return zero, io.EOF
		}
	}
	b.remainingBits--
	bt := (b.buffer>>b.remainingBits)&1 == 1
	return bit(bt), nil
}

// readBits reads nbits (<=64) bits, most-significant bit of the field
// first, and returns them right-aligned in the returned uint64.
func (b *bstreamReader) readBits(nbits int) (uint64, error) {
	var v uint64
	for nbits > 0 {
		bt, err := b.readBit()
		if err != nil {
			return 0, err
		}
		v <<= 1
		if bt {
			v |= 1
		}
		nbits--
	}
	return v, nil
}

// refill loads the next byte from the stream into the buffer. It returns
// false if the stream is exhausted.
func (b *bstreamReader) refill() bool {
	if b.streamOffset >= len(b.stream) {
		return false
	}
	b.buffer = b.stream[b.streamOffset]
	b.streamOffset++
	b.remainingBits = 8
	return true
}

// tell returns the current read position in bits from the start of the
// stream: byte_offset*8 - remainingBits, per spec §4.2.
func (b *bstreamReader) tell() int {
	return b.streamOffset*8 - int(b.remainingBits)
}

// ReadByte implements io.ByteReader so the varint-encoded sample-0
// timestamp can be decoded with encoding/binary.ReadVarint.
func (b *bstreamReader) ReadByte() (byte, error) {
	v, err := b.readBits(8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

// bitCounter records the number of bits consumed by a reader between two
// points in time, clamped to fit a uint16 (spec §4.2's per-sample
// bit-width metadata tag). It is used by xorIterator to populate the
// tsBitWidth and valBitWidth values returned by SampleInfo.
type bitCounter struct {
	start int
}

func newBitCounter(r *bstreamReader) bitCounter {
	return bitCounter{start: r.tell()}
}

func (c bitCounter) since(r *bstreamReader) uint16 {
	d := r.tell() - c.start
	if d < 0 {
		return 0
	}
	if d > 0xFFFF {
		return 0xFFFF
	}
	return uint16(d)
}
