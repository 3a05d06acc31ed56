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

package encoding

import "testing"

func TestUvarintRoundTrip(t *testing.T) {
	vals := []uint64{0, 1, 127, 128, 129, 255, 256, 1 << 20, 1 << 40, ^uint64(0)}
	var e Encbuf
	for _, v := range vals {
		e.PutUvarint(v)
	}

	d := Decbuf{B: e.Bytes()}
	for _, want := range vals {
		if got := d.Uvarint(); got != want {
			t.Fatalf("Uvarint: got %d, want %d", got, want)
		}
	}
	if d.Err() != nil {
		t.Fatalf("unexpected error: %v", d.Err())
	}
}

func TestVarintRoundTrip(t *testing.T) {
	vals := []int64{0, 1, -1, 127, -127, 128, -128, 1 << 40, -(1 << 40)}
	var e Encbuf
	for _, v := range vals {
		e.PutVarint(v)
	}

	d := Decbuf{B: e.Bytes()}
	for _, want := range vals {
		if got := d.Varint(); got != want {
			t.Fatalf("Varint: got %d, want %d", got, want)
		}
	}
	if d.Err() != nil {
		t.Fatalf("unexpected error: %v", d.Err())
	}
}

func TestUvarintSingleByteFastPath(t *testing.T) {
	// Values under 128 take exactly one byte with no shift/mask, per spec
	// §4.1/§9.
	var e Encbuf
	e.PutUvarint(42)
	if len(e.Bytes()) != 1 || e.Bytes()[0] != 42 {
		t.Fatalf("expected single raw byte 42, got %v", e.Bytes())
	}
	d := Decbuf{B: e.Bytes()}
	if got := d.Uvarint(); got != 42 || d.Tell() != 1 {
		t.Fatalf("Uvarint: got %d after %d bytes, want 42 after 1 byte", got, d.Tell())
	}
}

func TestUvarintStrRoundTrip(t *testing.T) {
	var e Encbuf
	e.PutUvarintStr("")
	e.PutUvarintStr("hello")
	e.PutUvarintStr("world!!")

	d := Decbuf{B: e.Bytes()}
	for _, want := range []string{"", "hello", "world!!"} {
		if got := d.UvarintStr(); got != want {
			t.Fatalf("UvarintStr: got %q, want %q", got, want)
		}
	}
	if d.Err() != nil {
		t.Fatalf("unexpected error: %v", d.Err())
	}
}

func TestDecbufEOF(t *testing.T) {
	d := Decbuf{B: []byte{0x01}}
	d.Be64()
	if d.Err() != ErrEOF {
		t.Fatalf("expected ErrEOF reading past end, got %v", d.Err())
	}
	// Once failed, further reads stay failed and don't panic.
	if v := d.Uvarint(); v != 0 {
		t.Fatalf("expected 0 from a decoder in error state, got %d", v)
	}
}

func TestConsumeToAlignment(t *testing.T) {
	d := Decbuf{B: make([]byte, 64)}
	d.Seek(5, Begin)
	d.ConsumeToAlignment(16)
	if d.Tell() != 16 {
		t.Fatalf("expected alignment to 16 from 5, got %d", d.Tell())
	}
	// Already aligned: no movement.
	d.ConsumeToAlignment(16)
	if d.Tell() != 16 {
		t.Fatalf("expected no movement when already aligned, got %d", d.Tell())
	}
	// A non-16 alignment is honored exactly, not hard-coded to 16.
	d.Seek(17, Begin)
	d.ConsumeToAlignment(4)
	if d.Tell() != 20 {
		t.Fatalf("expected alignment to 4 from 17, got %d", d.Tell())
	}
}

func TestViewIsZeroCopy(t *testing.T) {
	b := []byte("abcdef")
	d := Decbuf{B: b}
	v := d.View(3)
	v[0] = 'X'
	if b[0] != 'X' {
		t.Fatalf("View should alias the original buffer")
	}
}
