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

package wlog

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"

	"tsdbreader/tsdb/fileutil"
)

// CorruptionError reports a non-tolerated WAL framing failure: anything
// other than truncation at the very end of the last segment (spec §4.9).
type CorruptionError struct {
	Path string
	Pos  int
	Err  error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("wlog: corruption in %s at offset %d: %v", e.Path, e.Pos, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// Reader reassembles WAL records from a sequence of segment files,
// handling page padding, fragment reassembly, and snappy decompression
// (spec §4.6).
type Reader struct {
	paths    []string
	maps     []*fileutil.MmapFile
	segIdx   int
	pos      int
	rec      []byte
	partial  []byte
	// partialCompressed is the snappy flag captured from the recFirst
	// fragment of a record in progress: the whole reassembled record is
	// either compressed or not, never a mix of its fragments.
	partialCompressed bool
	err               error
	finished          bool
}

// NewReader opens paths (in the order they should be replayed) and
// prepares to iterate their records.
func NewReader(paths []string) (*Reader, error) {
	r := &Reader{paths: paths}
	r.maps = make([]*fileutil.MmapFile, len(paths))
	for i, p := range paths {
		f, err := fileutil.OpenMmapFile(p)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.maps[i] = f
	}
	return r, nil
}

// Close unmaps every segment still open.
func (r *Reader) Close() error {
	var firstErr error
	for _, f := range r.maps {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Err returns the first fatal error encountered, if any.
func (r *Reader) Err() error { return r.err }

// Record returns the most recently assembled record's bytes. Valid only
// after a call to Next returns true. The slice is an owned copy (or a
// snappy-decoded buffer) and never aliases mmapped segment memory.
func (r *Reader) Record() []byte { return r.rec }

// Next advances to the next full record, returning false at EOF or on a
// fatal error (distinguish via Err).
func (r *Reader) Next() bool {
	if r.err != nil || r.finished {
		return false
	}
	for {
		ok, err := r.nextFragment()
		if err != nil {
			r.err = err
			return false
		}
		if !ok {
			r.finished = true
			return false
		}
		if r.rec != nil {
			return true
		}
	}
}

// nextFragment reads exactly one fragment, appending to r.partial or
// completing r.rec. It returns (false, nil) at clean end of input.
func (r *Reader) nextFragment() (bool, error) {
	for {
		if r.segIdx >= len(r.maps) {
			return false, nil
		}
		data := r.maps[r.segIdx].Bytes()
		isLastSegment := r.segIdx == len(r.maps)-1

		if r.pos >= len(data) {
			r.segIdx++
			r.pos = 0
			continue
		}

		pageStart := (r.pos / pageSize) * pageSize
		pageEnd := pageStart + pageSize
		if pageEnd > len(data) {
			pageEnd = len(data)
		}

		if pageEnd-r.pos < recordHeaderSize {
			// Padding (or a page the writer hadn't fully written yet):
			// advance to the next page.
			if pageStart+pageSize <= len(data) {
				r.pos = pageStart + pageSize
				continue
			}
			if isLastSegment {
				return false, nil
			}
			return false, &CorruptionError{
				Path: r.paths[r.segIdx], Pos: r.pos,
				Err: fmt.Errorf("short page, not in the final segment"),
			}
		}

		header := data[r.pos]
		typ := recTypeFromHeader(header)
		if typ == recPageTerm {
			r.pos = pageStart + pageSize
			continue
		}

		length := int(binary.BigEndian.Uint16(data[r.pos+1 : r.pos+3]))
		// 4-byte CRC at data[r.pos+3:r.pos+7] is read but never verified
		// (spec §1 Non-goals).
		fragEnd := r.pos + recordHeaderSize + length
		if fragEnd > pageEnd {
			if isLastSegment {
				return false, nil
			}
			return false, &CorruptionError{
				Path: r.paths[r.segIdx], Pos: r.pos,
				Err: fmt.Errorf("fragment length %d overruns page", length),
			}
		}

		// A compressed record is snappy-encoded once, in full, before
		// being split into fragments: an isolated middle or end fragment
		// is not itself a valid snappy stream. Raw payloads are
		// accumulated across fragments and decompressed only once the
		// whole record is reassembled (recFull, or recLast).
		payload := data[r.pos+recordHeaderSize : fragEnd]
		compressed := isSnappyCompressed(header)

		r.pos = fragEnd
		r.rec = nil

		switch typ {
		case recFull:
			if r.partial != nil {
				return false, &CorruptionError{
					Path: r.paths[r.segIdx], Pos: r.pos,
					Err: fmt.Errorf("full fragment while a partial record is in progress"),
				}
			}
			rec, err := maybeDecompress(payload, compressed)
			if err != nil {
				return false, &CorruptionError{Path: r.paths[r.segIdx], Pos: r.pos, Err: err}
			}
			r.rec = rec
			return true, nil

		case recFirst:
			if r.partial != nil {
				return false, &CorruptionError{
					Path: r.paths[r.segIdx], Pos: r.pos,
					Err: fmt.Errorf("start fragment while a partial record is in progress"),
				}
			}
			r.partial = append([]byte(nil), payload...)
			r.partialCompressed = compressed
			return true, nil

		case recMiddle:
			if r.partial == nil {
				return false, &CorruptionError{
					Path: r.paths[r.segIdx], Pos: r.pos,
					Err: fmt.Errorf("middle fragment without a prior start"),
				}
			}
			r.partial = append(r.partial, payload...)
			return true, nil

		case recLast:
			if r.partial == nil {
				return false, &CorruptionError{
					Path: r.paths[r.segIdx], Pos: r.pos,
					Err: fmt.Errorf("end fragment without a prior start"),
				}
			}
			r.partial = append(r.partial, payload...)
			rec, err := maybeDecompress(r.partial, r.partialCompressed)
			if err != nil {
				return false, &CorruptionError{Path: r.paths[r.segIdx], Pos: r.pos, Err: err}
			}
			r.rec = rec
			r.partial = nil
			r.partialCompressed = false
			return true, nil

		default:
			return false, &CorruptionError{
				Path: r.paths[r.segIdx], Pos: r.pos,
				Err: fmt.Errorf("invalid fragment type %d", header&recTypeMask),
			}
		}
	}
}

// maybeDecompress returns a copy of rec, snappy-decoded if compressed is
// set. rec may alias mmapped segment memory; the returned slice never
// does.
func maybeDecompress(rec []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return append([]byte(nil), rec...), nil
	}
	return snappy.Decode(nil, rec)
}
