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
	"io"

	"github.com/klauspost/compress/zstd"

	"tsdbreader/model/labels"
	"tsdbreader/tsdb/chunkenc"
	"tsdbreader/tsdb/chunks"
	"tsdbreader/tsdb/encoding"
)

// Portable snapshot magic bytes (spec §6): 0x5A tags a single series, 0x5B
// tags a series group prefixed with a varuint count.
const (
	magicSingle = 0x5A
	magicGroup  = 0x5B
)

// PortableChunk is one exported chunk: its time bounds, its on-disk
// encoding tag, and its raw body bytes, copied out of whatever Resource
// backed it so the snapshot outlives the source dataset.
type PortableChunk struct {
	MinTime, MaxTime int64
	Encoding         chunkenc.Encoding
	Data             []byte
}

// PortableSeries is one series' labels plus its exported chunks, in time
// order (spec §6).
type PortableSeries struct {
	Labels labels.Labels
	Chunks []PortableChunk
}

// ExportSeries reads every chunk of series (as merged by a
// CrossIndexSeries) into a PortableSeries whose bytes are independent of
// any open cache or mmapping.
func ExportSeries(series CrossIndexSeries) (PortableSeries, error) {
	out := PortableSeries{Labels: series.Labels.Copy()}
	for _, part := range series.parts {
		for _, ref := range part.chunks {
			view, err := chunks.Resolve(ref, part.source.GetCache())
			if err != nil {
				return PortableSeries{}, err
			}
			chk, err := view.Chunk()
			if err != nil {
				return PortableSeries{}, err
			}
			body := chk.Bytes()
			data := make([]byte, len(body))
			copy(data, body)
			out.Chunks = append(out.Chunks, PortableChunk{
				MinTime:  ref.MinTime,
				MaxTime:  ref.MaxTime,
				Encoding: chk.Encoding(),
				Data:     data,
			})
		}
	}
	return out, nil
}

// ExportSnapshot writes series to w in the portable wire format (spec
// §6): a magic byte, a varuint count unless there is exactly one
// series, then each series encoded as
// {varuint labelCount, labelCount×(varuint k, k, varuint v, v),
//  varuint chunkCount, chunkCount×{varuint minTime, varuint maxTime,
//  u8 type, varuint chunkLen, chunkLen bytes}}.
// If compress is true everything after the magic byte and the count is
// wrapped in a zstd frame.
func ExportSnapshot(w io.Writer, series []PortableSeries, compress bool) error {
	var enc encoding.Encbuf

	if len(series) == 1 {
		enc.PutByte(magicSingle)
	} else {
		enc.PutByte(magicGroup)
		enc.PutUvarint(uint64(len(series)))
	}

	for _, s := range series {
		encodePortableSeries(&enc, s)
	}

	if !compress {
		_, err := w.Write(enc.Bytes())
		return err
	}

	// The magic (and count) byte(s) stay uncompressed so a reader can
	// distinguish plain from zstd-wrapped snapshots without speculative
	// decompression; re-derive that prefix length here.
	prefixLen := 1
	if len(series) != 1 {
		var tmp encoding.Encbuf
		tmp.PutUvarint(uint64(len(series)))
		prefixLen += tmp.Len()
	}
	if _, err := w.Write(enc.Bytes()[:prefixLen]); err != nil {
		return err
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("tsdb: opening zstd writer: %w", err)
	}
	if _, err := zw.Write(enc.Bytes()[prefixLen:]); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func encodePortableSeries(enc *encoding.Encbuf, s PortableSeries) {
	enc.PutUvarint(uint64(len(s.Labels)))
	for _, l := range s.Labels {
		enc.PutUvarintStr(l.Name)
		enc.PutUvarintStr(l.Value)
	}
	enc.PutUvarint(uint64(len(s.Chunks)))
	for _, c := range s.Chunks {
		enc.PutUvarint(uint64(c.MinTime))
		enc.PutUvarint(uint64(c.MaxTime))
		enc.PutByte(byte(c.Encoding))
		enc.PutUvarint(uint64(len(c.Data)))
		enc.PutBytes(c.Data)
	}
}

// ImportSnapshot decodes a snapshot previously written by ExportSnapshot.
// It auto-detects zstd-wrapped payloads by checking for the zstd frame
// magic right after the magic byte and count; a plain (uncompressed)
// payload is handled directly.
func ImportSnapshot(r io.Reader) ([]PortableSeries, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("tsdb: reading snapshot: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("tsdb: empty snapshot")
	}

	magic := raw[0]
	if magic != magicSingle && magic != magicGroup {
		return nil, fmt.Errorf("tsdb: unrecognized snapshot magic 0x%02x", magic)
	}

	body := raw[1:]
	db := encoding.Decbuf{B: body}
	count := 1
	if magic == magicGroup {
		count = int(db.Uvarint())
		if db.Err() != nil {
			return nil, db.Err()
		}
	}
	rest := db.B[db.Tell():]

	if looksLikeZstd(rest) {
		zr, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("tsdb: opening zstd reader: %w", err)
		}
		defer zr.Close()
		decoded, err := zr.DecodeAll(rest, nil)
		if err != nil {
			return nil, fmt.Errorf("tsdb: decompressing snapshot: %w", err)
		}
		rest = decoded
	}

	pd := encoding.Decbuf{B: rest}
	out := make([]PortableSeries, 0, count)
	for i := 0; i < count; i++ {
		s, err := decodePortableSeries(&pd)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if pd.Err() != nil {
		return nil, pd.Err()
	}
	return out, nil
}

// zstdMagic is the 4-byte frame magic every zstd frame begins with.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

func looksLikeZstd(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	for i, m := range zstdMagic {
		if b[i] != m {
			return false
		}
	}
	return true
}

func decodePortableSeries(db *encoding.Decbuf) (PortableSeries, error) {
	labelCount := db.Uvarint()
	lbls := make(labels.Labels, 0, labelCount)
	for i := uint64(0); i < labelCount; i++ {
		name := db.UvarintStr()
		value := db.UvarintStr()
		lbls = append(lbls, labels.Label{Name: name, Value: value})
	}

	chunkCount := db.Uvarint()
	chks := make([]PortableChunk, 0, chunkCount)
	for i := uint64(0); i < chunkCount; i++ {
		minTime := int64(db.Uvarint())
		maxTime := int64(db.Uvarint())
		encByte := db.Byte()
		dataLen := db.Uvarint()
		data := db.Get(int(dataLen))
		if db.Err() != nil {
			return PortableSeries{}, db.Err()
		}
		chks = append(chks, PortableChunk{
			MinTime:  minTime,
			MaxTime:  maxTime,
			Encoding: chunkenc.Encoding(encByte),
			Data:     data,
		})
	}

	if db.Err() != nil {
		return PortableSeries{}, db.Err()
	}
	return PortableSeries{Labels: lbls.Copy(), Chunks: chks}, nil
}
