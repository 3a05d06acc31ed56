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

// Package wlog reads the write-ahead log: 32KiB pages holding
// snappy-optionally-compressed record fragments (spec §4.6).
package wlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	pageSize         = 32 * 1024
	recordHeaderSize = 7 // {u8 type, u16 len, u32 crc}
)

// First byte of a fragment header:
//
//	[3 bits unallocated] [1 bit zstd, unused here] [1 bit snappy] [3 bit record type]
const (
	snappyMask  = 1 << 3
	recTypeMask = snappyMask - 1
)

type recType uint8

const (
	recPageTerm recType = 0 // rest of page is padding.
	recFull     recType = 1
	recFirst    recType = 2
	recMiddle   recType = 3
	recLast     recType = 4
)

func recTypeFromHeader(header byte) recType {
	return recType(header & recTypeMask)
}

func isSnappyCompressed(header byte) bool {
	return header&snappyMask != 0
}

func (t recType) String() string {
	switch t {
	case recPageTerm:
		return "zero"
	case recFull:
		return "full"
	case recFirst:
		return "first"
	case recMiddle:
		return "middle"
	case recLast:
		return "last"
	default:
		return "<invalid>"
	}
}

// CheckpointDirName returns dir/checkpoint.NNNNNNNN for segment index n,
// matching the teacher's zero-padded naming.
func CheckpointDirName(dir string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("checkpoint.%08d", n))
}

// LastCheckpoint returns the highest-numbered checkpoint.NNNNNNNN
// directory under dir, and its index, if any exist.
func LastCheckpoint(dir string) (string, int, bool, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}

	best := -1
	var bestName string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "checkpoint.") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "checkpoint."))
		if err != nil {
			continue
		}
		if n > best {
			best = n
			bestName = e.Name()
		}
	}
	if best < 0 {
		return "", 0, false, nil
	}
	return filepath.Join(dir, bestName), best, true, nil
}

// Segments lists the numerically-named segment files directly under dir
// (a WAL directory or a checkpoint directory), sorted ascending.
func Segments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	type seg struct {
		idx  int
		name string
	}
	var segs []seg
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		segs = append(segs, seg{idx: n, name: e.Name()})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].idx < segs[j].idx })

	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = filepath.Join(dir, s.name)
	}
	return out, nil
}

// segmentIndex parses the numeric filename of a WAL segment path.
func segmentIndex(path string) (int, error) {
	return strconv.Atoi(filepath.Base(path))
}

// ReplaySegments returns, in read order, the checkpoint's segments (if a
// checkpoint exists) followed by WAL segments whose index is >= the
// checkpoint's index, or simply all WAL segments otherwise (spec §4.6).
func ReplaySegments(walDir string) ([]string, error) {
	var out []string

	ckptDir, ckptIdx, ok, err := LastCheckpoint(walDir)
	if err != nil {
		return nil, err
	}
	if ok {
		ckptSegs, err := Segments(ckptDir)
		if err != nil {
			return nil, err
		}
		out = append(out, ckptSegs...)
	}

	segs, err := Segments(walDir)
	if err != nil {
		return nil, err
	}
	for _, s := range segs {
		idx, err := segmentIndex(s)
		if err != nil {
			continue
		}
		if ok && idx < ckptIdx {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
