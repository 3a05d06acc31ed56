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

// Package encoding provides the byte-level decoder used by the index and
// chunk-segment readers: big-endian fixed-width integers, LEB128 varuints,
// zig-zag varints, and borrowed (zero-copy) byte views.
package encoding

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/dennwc/varint"
)

// ErrEOF is returned when a read would exceed the available bytes of a
// bounded decoder.
var ErrEOF = fmt.Errorf("encoding: unexpected end of buffer")

// Whence mirrors io.Seeker's whence values for Decbuf.Seek.
type Whence int

const (
	Begin Whence = iota
	Current
	End
)

// Decbuf wraps a byte slice with a cursor and decodes values from it,
// front to back. It never copies the underlying array except when asked to
// via Get (and UvarintStr, which returns a string); slices returned by View
// alias the original memory, so callers must not outlive the buffer's owner.
//
// A running CRC32 error is not tracked here — CRCs are read but never
// verified (see spec Non-goals).
type Decbuf struct {
	B   []byte
	pos int
	E   error
}

// NewDecbufAt creates a Decbuf over b[off : off+l], mirroring the historical
// tsdb/encoding.Decbuf constructor that reads a length-prefixed table: at
// offset `off` there is a 4-byte big-endian length, followed by that many
// bytes of payload plus a 4-byte CRC32 which is skipped, never checked.
func NewDecbufAt(b []byte, off int) Decbuf {
	if off+4 > len(b) {
		return Decbuf{E: ErrEOF}
	}
	l := int(binary.BigEndian.Uint32(b[off : off+4]))
	if off+4+l+4 > len(b) {
		return Decbuf{E: ErrEOF}
	}
	return Decbuf{B: b[off+4 : off+4+l]}
}

// NewDecbufRaw creates a Decbuf directly over b[off : off+l] with no length
// prefix or trailing CRC, used for the postings-offset-table and other
// self-delimiting regions that are read incrementally.
func NewDecbufRaw(b []byte, off, l int) Decbuf {
	if off+l > len(b) {
		return Decbuf{E: ErrEOF}
	}
	return Decbuf{B: b[off : off+l]}
}

func (d *Decbuf) Err() error { return d.E }

func (d *Decbuf) Len() int { return len(d.B) - d.pos }

// Remaining is an alias of Len matching the source's decoder vocabulary.
func (d *Decbuf) Remaining() int { return d.Len() }

func (d *Decbuf) Tell() int { return d.pos }

func (d *Decbuf) fail(err error) {
	if d.E == nil {
		d.E = err
	}
}

func (d *Decbuf) require(n int) bool {
	if d.E != nil {
		return false
	}
	if d.pos+n > len(d.B) {
		d.fail(ErrEOF)
		return false
	}
	return true
}

// Seek repositions the cursor. It never fails on an out-of-range absolute
// offset until the next read is attempted, matching io.Seeker semantics.
func (d *Decbuf) Seek(offset int, whence Whence) {
	switch whence {
	case Begin:
		d.pos = offset
	case Current:
		d.pos += offset
	case End:
		d.pos = len(d.B) + offset
	}
}

// Be32 reads a big-endian uint32.
func (d *Decbuf) Be32() uint32 {
	if !d.require(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(d.B[d.pos:])
	d.pos += 4
	return v
}

// Be64 reads a big-endian uint64.
func (d *Decbuf) Be64() uint64 {
	if !d.require(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(d.B[d.pos:])
	d.pos += 8
	return v
}

// Byte reads a single byte.
func (d *Decbuf) Byte() byte {
	if !d.require(1) {
		return 0
	}
	v := d.B[d.pos]
	d.pos++
	return v
}

// Crc32 reads and discards a trailing CRC32 field. It is read, never
// verified, per spec §1 Non-goals.
func (d *Decbuf) Crc32() uint32 {
	return d.Be32()
}

// NewCRC32 returns the CRC32 (Castagnoli table) of empty input. It takes
// no data and is not used to check any field read by Decbuf.
func NewCRC32() uint32 {
	return crc32.Checksum(nil, crc32.MakeTable(crc32.Castagnoli))
}

// Uvarint reads a LEB128-encoded unsigned varint. Values under 128 take the
// single-byte fast path documented in spec §4.1 and §9: exactly one byte
// is consumed, with no shift/mask performed.
func (d *Decbuf) Uvarint() uint64 {
	if d.E != nil {
		return 0
	}
	if d.pos >= len(d.B) {
		d.fail(ErrEOF)
		return 0
	}
	if d.B[d.pos] < 0x80 {
		v := uint64(d.B[d.pos])
		d.pos++
		return v
	}
	v, n := varint.Uvarint(d.B[d.pos:])
	if n <= 0 {
		d.fail(ErrEOF)
		return 0
	}
	d.pos += n
	return v
}

// Uvarint32 is Uvarint truncated to 32 bits, for callers that know the
// value fits (label/name lengths, series counts).
func (d *Decbuf) Uvarint32() uint32 {
	return uint32(d.Uvarint())
}

// Varint reads a zig-zag encoded signed varint: raw>>1, sign-flipped when
// raw&1 is set.
func (d *Decbuf) Varint() int64 {
	raw := d.Uvarint()
	return int64(raw>>1) ^ -int64(raw&1)
}

// UvarintStr reads a varuint length followed by that many bytes, returned
// as a string copied out of the underlying buffer.
func (d *Decbuf) UvarintStr() string {
	l := d.Uvarint()
	if d.E != nil {
		return ""
	}
	return d.viewString(int(l))
}

// View returns a zero-copy slice of n bytes.
func (d *Decbuf) View(n int) []byte {
	if !d.require(n) {
		return nil
	}
	v := d.B[d.pos : d.pos+n]
	d.pos += n
	return v
}

func (d *Decbuf) viewString(n int) string {
	b := d.View(n)
	if b == nil {
		return ""
	}
	return string(b)
}

// Get returns an owned copy of n bytes.
func (d *Decbuf) Get(n int) []byte {
	v := d.View(n)
	if v == nil {
		return nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp
}

// Peek returns the next byte without advancing.
func (d *Decbuf) Peek() (byte, bool) {
	if d.pos >= len(d.B) {
		return 0, false
	}
	return d.B[d.pos], true
}

// ConsumeNull advances past zero bytes.
func (d *Decbuf) ConsumeNull() {
	for d.pos < len(d.B) && d.B[d.pos] == 0 {
		d.pos++
	}
}

// ConsumeToAlignment advances the cursor to the next multiple of align,
// unless already aligned. This corrects the source's bug (spec §4.1) which
// hard-codes the step to 16 regardless of the requested alignment; here the
// step is always align-(pos mod align).
func (d *Decbuf) ConsumeToAlignment(align int) {
	if r := d.pos % align; r != 0 {
		d.pos += align - r
	}
}

// PutVarint appends v zig-zag encoded.
func PutVarint(dst []byte, v int64) []byte {
	uv := uint64(v<<1) ^ uint64(v>>63)
	return PutUvarint(dst, uv)
}

// PutUvarint appends v LEB128 encoded.
func PutUvarint(dst []byte, v uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return append(dst, buf[:n]...)
}

// Encbuf is the write-side counterpart to Decbuf, used only by the
// round-trip chunk writer and the portable-snapshot exporter (spec §1
// Non-goals: on-disk TSDB writing is out of scope, but a writer sufficient
// for round-trip tests and export is kept).
type Encbuf struct {
	B []byte
}

func (e *Encbuf) Reset() { e.B = e.B[:0] }

func (e *Encbuf) Len() int { return len(e.B) }

func (e *Encbuf) Bytes() []byte { return e.B }

func (e *Encbuf) PutByte(b byte) { e.B = append(e.B, b) }

func (e *Encbuf) PutBytes(b []byte) { e.B = append(e.B, b...) }

func (e *Encbuf) PutBE32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	e.B = append(e.B, buf[:]...)
}

func (e *Encbuf) PutBE64(v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	e.B = append(e.B, buf[:]...)
}

func (e *Encbuf) PutUvarint(v uint64) { e.B = PutUvarint(e.B, v) }

func (e *Encbuf) PutVarint(v int64) { e.B = PutVarint(e.B, v) }

func (e *Encbuf) PutUvarintStr(s string) {
	e.PutUvarint(uint64(len(s)))
	e.B = append(e.B, s...)
}
