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
// https://github.com/dgryski/go-tsz and published under the license below.
// It was modified to accommodate reading from byte slices without
// modifying the underlying bytes, which would panic when reading from
// mmap'd read-only byte slices, and to report per-sample bit-width
// metadata for BitWidthHistogram.

// Copyright (c) 2015,2016 Damian Gryski <damian@gryski.com>
// All rights reserved.

package chunkenc

import (
	"encoding/binary"
	"math"
	"math/bits"
)

// XORChunk holds Gorilla-style XOR encoded sample data: delta-of-delta
// timestamps and XOR-compressed float64 values (spec §4.3).
type XORChunk struct {
	b bstream
}

// NewXORChunk returns a new empty chunk with XOR encoding.
func NewXORChunk() *XORChunk {
	b := make([]byte, 2, 128)
	return &XORChunk{b: bstream{stream: b, count: 0}}
}

func (c *XORChunk) Encoding() Encoding { return EncXOR }

func (c *XORChunk) Bytes() []byte { return c.b.bytes() }

// NumSamples reads the u16 sample count from the chunk header.
func (c *XORChunk) NumSamples() int {
	return int(binary.BigEndian.Uint16(c.Bytes()))
}

// Appender returns an Appender that continues writing after the chunk's
// existing samples (used only by round-trip tests and the snapshot
// exporter; see spec §1 Non-goals).
func (c *XORChunk) Appender() (Appender, error) {
	it := c.iterator(nil)
	for it.Next() {
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	a := &xorAppender{
		b:        &c.b,
		t:        it.t,
		v:        it.val,
		tDelta:   it.tDelta,
		leading:  it.leading,
		trailing: it.trailing,
	}
	if binary.BigEndian.Uint16(a.b.bytes()) == 0 {
		a.leading = 0xff
	}
	return a, nil
}

func (c *XORChunk) iterator(it Iterator) *xorIterator {
	if xorIter, ok := it.(*xorIterator); ok && xorIter != nil {
		xorIter.Reset(c.b.bytes())
		return xorIter
	}
	return &xorIterator{
		br:       newBReader(c.b.bytes()[2:]),
		numTotal: binary.BigEndian.Uint16(c.b.bytes()),
	}
}

func (c *XORChunk) Iterator(it Iterator) Iterator {
	return c.iterator(it)
}

// SampleInfoIterator returns an iterator exposing per-sample bit-width
// metadata (spec §3 "Sample / SampleInfo") in addition to the (t, v) pair
// returned by the plain Iterator interface.
func (c *XORChunk) SampleInfoIterator(it *xorIterator) *xorIterator {
	return c.iterator(it)
}

type xorAppender struct {
	b *bstream

	t      int64
	v      float64
	tDelta uint64

	leading  uint8
	trailing uint8
}

func (a *xorAppender) Append(t int64, v float64) {
	var tDelta uint64
	num := binary.BigEndian.Uint16(a.b.bytes())

	switch num {
	case 0:
		buf := make([]byte, binary.MaxVarintLen64)
		for _, b := range buf[:binary.PutVarint(buf, t)] {
			a.b.writeByte(b)
		}
		a.b.writeBits(math.Float64bits(v), 64)

	case 1:
		tDelta = uint64(t - a.t)

		buf := make([]byte, binary.MaxVarintLen64)
		for _, b := range buf[:binary.PutUvarint(buf, tDelta)] {
			a.b.writeByte(b)
		}

		a.writeVDelta(v)

	default:
		tDelta = uint64(t - a.t)
		dod := int64(tDelta - a.tDelta)

		// Gorilla has a max resolution of seconds; Prometheus uses
		// milliseconds, hence the wider value-range steps below.
		switch {
		case dod == 0:
			a.b.writeBit(zero)
		case bitRangeFits(dod, 14):
			a.b.writeBits(0x02, 2) // '10'
			a.b.writeBits(uint64(dod), 14)
		case bitRangeFits(dod, 17):
			a.b.writeBits(0x06, 3) // '110'
			a.b.writeBits(uint64(dod), 17)
		case bitRangeFits(dod, 20):
			a.b.writeBits(0x0e, 4) // '1110'
			a.b.writeBits(uint64(dod), 20)
		default:
			a.b.writeBits(0x0f, 4) // '1111'
			a.b.writeBits(uint64(dod), 64)
		}

		a.writeVDelta(v)
	}

	a.t = t
	a.v = v
	binary.BigEndian.PutUint16(a.b.bytes(), num+1)
	a.tDelta = tDelta
}

// bitRangeFits reports whether x fits the encoder's asymmetric n-bit
// range: [-(2^(n-1)-1), 2^(n-1)], i.e. one extra positive value versus
// plain two's complement, because the top-bit-set pattern is reserved for
// +2^(n-1) rather than treated as negative (spec §4.3).
func bitRangeFits(x int64, nbits uint8) bool {
	return -((1<<(nbits-1))-1) <= x && x <= 1<<(nbits-1)
}

// writeVDelta XORs v against the previous value and writes the Gorilla
// value-compression control bits plus the significant bits of the delta.
func (a *xorAppender) writeVDelta(v float64) {
	vDelta := math.Float64bits(v) ^ math.Float64bits(a.v)

	if vDelta == 0 {
		a.b.writeBit(zero)
		return
	}
	a.b.writeBit(one)

	leading := uint8(bits.LeadingZeros64(vDelta))
	trailing := uint8(bits.TrailingZeros64(vDelta))

	// Clamp to avoid overflow of the 5-bit leading-zero-count field.
	if leading >= 32 {
		leading = 31
	}

	if a.leading != 0xff && leading >= a.leading && trailing >= a.trailing {
		a.b.writeBit(zero)
		a.b.writeBits(vDelta>>a.trailing, 64-int(a.leading)-int(a.trailing))
	} else {
		a.leading, a.trailing = leading, trailing

		a.b.writeBit(one)
		a.b.writeBits(uint64(leading), 5)

		// 0 significant bits here means leading==trailing==0, i.e. 64
		// significant bits; that can't be confused with the vDelta==0
		// case above, which takes the early return.
		sigbits := 64 - leading - trailing
		a.b.writeBits(uint64(sigbits), 6)
		a.b.writeBits(vDelta>>trailing, int(sigbits))
	}
}

// xorIterator is a single-pass, forward-only decoder over an XORChunk's
// byte stream.
type xorIterator struct {
	br       bstreamReader
	numTotal uint16
	numRead  uint16

	t   int64
	val float64

	leading  uint8
	trailing uint8

	tDelta uint64
	err    error

	// Per-sample bit-width metadata (spec §3 SampleInfo), valid after a
	// call to Next that returns true for numRead>=2 (samples 0 and 1 are
	// excluded from min-width statistics per spec).
	tsBitWidth  uint16
	minTsWidth  uint8
	valBitWidth uint16
}

func (it *xorIterator) At() (int64, float64) {
	return it.t, it.val
}

// SampleInfo returns the decoded timestamp/value pair for the sample just
// read by Next, plus its bit-width metadata. minTsWidth is 0 for samples
// #0 and #1, which have no delta-of-delta.
func (it *xorIterator) SampleInfo() (t int64, v float64, tsBitWidth uint16, minTsWidth uint8, valBitWidth uint16) {
	return it.t, it.val, it.tsBitWidth, it.minTsWidth, it.valBitWidth
}

func (it *xorIterator) Err() error {
	return it.err
}

func (it *xorIterator) Reset(b []byte) {
	it.br = newBReader(b[2:])
	it.numTotal = binary.BigEndian.Uint16(b)

	it.numRead = 0
	it.t = 0
	it.val = 0
	it.leading = 0
	it.trailing = 0
	it.tDelta = 0
	it.err = nil
	it.tsBitWidth = 0
	it.minTsWidth = 0
	it.valBitWidth = 0
}

func (it *xorIterator) Next() bool {
	if it.err != nil || it.numRead == it.numTotal {
		return false
	}

	if it.numRead == 0 {
		t, err := binary.ReadVarint(&it.br)
		if err != nil {
			it.err = err
			return false
		}
		v, err := it.br.readBits(64)
		if err != nil {
			it.err = err
			return false
		}
		it.t = t
		it.val = math.Float64frombits(v)
		it.valBitWidth = 64

		it.numRead++
		return true
	}
	if it.numRead == 1 {
		tDelta, err := binary.ReadUvarint(&it.br)
		if err != nil {
			it.err = err
			return false
		}
		it.tDelta = tDelta
		it.t += int64(it.tDelta)

		return it.readValue()
	}

	counter := newBitCounter(&it.br)

	var d byte
	for i := 0; i < 4; i++ {
		d <<= 1
		bt, err := it.br.readBit()
		if err != nil {
			it.err = err
			return false
		}
		if bt == zero {
			break
		}
		d |= 1
	}

	var sz uint8
	var dod int64
	switch d {
	case 0x00:
		// dod == 0
	case 0x02:
		sz = 14
	case 0x06:
		sz = 17
	case 0x0e:
		sz = 20
	case 0x0f:
		v, err := it.br.readBits(64)
		if err != nil {
			it.err = err
			return false
		}
		dod = int64(v)
	default:
		it.err = &ErrInvalidSize{Reason: "reserved timestamp delta-of-delta prefix"}
		return false
	}

	if sz != 0 {
		v, err := it.br.readBits(int(sz))
		if err != nil {
			it.err = err
			return false
		}
		dod = signedFromAsymmetricRange(v, sz)
	}

	it.tDelta = uint64(int64(it.tDelta) + dod)
	it.t += int64(it.tDelta)
	it.tsBitWidth = counter.since(&it.br)
	it.minTsWidth = minTimestampBitWidth(dod)

	return it.readValue()
}

// signedFromAsymmetricRange decodes an nbits-wide field under the
// encoder's asymmetric range rule (spec §4.3): for n<64, a value with the
// top bit set decodes to v-2^n, UNLESS v==2^(n-1), which decodes to the
// positive +2^(n-1) rather than the negative -2^(n-1) a naive two's
// complement reading would produce. n==64 is already a signed value.
func signedFromAsymmetricRange(v uint64, nbits uint8) int64 {
	if nbits >= 64 {
		return int64(v)
	}
	half := uint64(1) << (nbits - 1)
	if v == half {
		return int64(half)
	}
	if v > half {
		return int64(v) - int64(uint64(1)<<nbits)
	}
	return int64(v)
}

// minTimestampBitWidth returns the smallest width in
// {1, 2, 14, 17, 20, 64} capable of encoding dod under the asymmetric
// range rule above (spec §8 "Bit-width invariant"). This is a fixed
// candidate ladder, not a general "bits needed" computation: only these
// six widths are considered, matching the encoder's own repertoire plus
// the always-available 2-bit floor for small nonzero deltas.
func minTimestampBitWidth(dod int64) uint8 {
	switch {
	case dod == 0:
		return 1
	case bitRangeFits(dod, 2):
		return 2
	case bitRangeFits(dod, 14):
		return 14
	case bitRangeFits(dod, 17):
		return 17
	case bitRangeFits(dod, 20):
		return 20
	default:
		return 64
	}
}

func (it *xorIterator) readValue() bool {
	counter := newBitCounter(&it.br)

	bt, err := it.br.readBit()
	if err != nil {
		it.err = err
		return false
	}

	if bt == zero {
		// it.val unchanged
	} else {
		bt, err := it.br.readBit()
		if err != nil {
			it.err = err
			return false
		}
		if bt == zero {
			// reuse leading/trailing counts
		} else {
			bitsv, err := it.br.readBits(5)
			if err != nil {
				it.err = err
				return false
			}
			it.leading = uint8(bitsv)

			bitsv, err = it.br.readBits(6)
			if err != nil {
				it.err = err
				return false
			}
			mbits := uint8(bitsv)
			if mbits == 0 {
				mbits = 64
			}
			if int(it.leading)+int(mbits) > 64 {
				it.err = &ErrInvalidSize{Reason: "significant bit count overflows 64 bits"}
				return false
			}
			it.trailing = 64 - it.leading - mbits
		}

		mbits := int(64 - it.leading - it.trailing)
		if mbits <= 0 {
			it.err = &ErrInvalidSize{Reason: "zero significant bits during XOR value decode"}
			return false
		}
		bitsv, err := it.br.readBits(mbits)
		if err != nil {
			it.err = err
			return false
		}
		vbits := math.Float64bits(it.val)
		vbits ^= bitsv << it.trailing
		it.val = math.Float64frombits(vbits)
	}

	it.valBitWidth = counter.since(&it.br)
	it.numRead++
	return true
}
