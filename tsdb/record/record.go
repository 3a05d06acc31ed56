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

// Package record decodes the three WAL record payloads (series, samples,
// tombstones) assembled by tsdb/wlog (spec §4.6).
package record

import (
	"fmt"
	"math"

	"tsdbreader/model/labels"
	"tsdbreader/tsdb/encoding"
)

// Type is the first byte of an assembled WAL record.
type Type uint8

const (
	Series    Type = 1
	Samples   Type = 2
	Tombstone Type = 3
)

// RefSeries is a decoded series record: a WAL-local series id and its
// label set.
type RefSeries struct {
	Ref    uint64
	Labels labels.Labels
}

// RefSample is a decoded sample: the series id it belongs to, its
// timestamp, and its value.
type RefSample struct {
	Ref uint64
	T   int64
	V   float64
}

// DecodeType returns the record type of the first byte of b, and the
// remaining bytes to decode.
//
// The reference implementation switches on this byte with `case 1:`
// falling through into `case 2:`, so that a Series record is always
// also decoded as a Samples record. That is a bug, not an intended
// dual-purpose record: this decoder dispatches each type exclusively
// (spec §4.6).
func DecodeType(b []byte) (Type, []byte, error) {
	if len(b) == 0 {
		return 0, nil, fmt.Errorf("record: empty record")
	}
	switch Type(b[0]) {
	case Series, Samples, Tombstone:
		return Type(b[0]), b[1:], nil
	default:
		return 0, nil, fmt.Errorf("record: unknown record type %d", b[0])
	}
}

// DecodeSeries parses a Series record body: {u64 seriesId, varuint
// labelCount, labelCount x (varuint k, k bytes, varuint v, v bytes)}.
// Every label string is copied (never a view into the WAL buffer), since
// the WAL file is read once and then dropped.
func DecodeSeries(b []byte) (RefSeries, error) {
	db := encoding.Decbuf{B: b}
	ref := db.Be64()
	labelCount := db.Uvarint()
	lbls := make(labels.Labels, 0, labelCount)
	for i := uint64(0); i < labelCount; i++ {
		name := db.UvarintStr()
		value := db.UvarintStr()
		if db.Err() != nil {
			break
		}
		lbls = append(lbls, labels.Label{Name: stringCopy(name), Value: stringCopy(value)})
	}
	if db.Err() != nil {
		return RefSeries{}, db.Err()
	}
	return RefSeries{Ref: ref, Labels: lbls}, nil
}

func stringCopy(s string) string {
	b := make([]byte, len(s))
	copy(b, s)
	return string(b)
}

// DecodeSamples parses a Samples record body: {u64 baseRef, i64 baseTs,
// repeated (varint dRef, varint dTs, u64 valueBits)}. Each sample's ref
// and timestamp are computed relative to the fixed baseRef/baseTs, not
// to one another: ref = baseRef+dRef, ts = baseTs+dTs.
func DecodeSamples(b []byte) ([]RefSample, error) {
	db := encoding.Decbuf{B: b}
	baseRef := int64(db.Be64())
	baseTs := int64(db.Be64())
	if db.Err() != nil {
		return nil, db.Err()
	}

	var out []RefSample
	for db.Len() > 0 {
		dRef := db.Varint()
		dTs := db.Varint()
		valueBits := db.Be64()
		if db.Err() != nil {
			return nil, db.Err()
		}
		out = append(out, RefSample{
			Ref: uint64(baseRef + dRef),
			T:   baseTs + dTs,
			V:   math.Float64frombits(valueBits),
		})
	}
	return out, nil
}
