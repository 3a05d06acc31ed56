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

package chunks

import (
	"fmt"
	"sort"
	"strconv"

	"tsdbreader/tsdb/encoding"
	"tsdbreader/tsdb/fileutil"
)

// headChunksMagic and headChunksVersion are the fixed header every
// chunks_head/* file begins with (spec §4.6).
const (
	headChunksMagic   uint32 = 0x0130BC91
	headChunksVersion byte   = 1
	// minMetaLen bounds the scan for {seriesRef,minTime,maxTime,encoding,
	// dataLen} entries: another entry is read only while more than
	// minMetaLen bytes remain; once no more than that remain, the rest of
	// the file is treated as an unfilled, zeroed tail.
	minMetaLen = 30
)

// ErrTruncatedHeadChunksFile is swallowed only for the single newest
// chunks_head file, whose tail may legitimately be mid-write.
type ErrTruncatedHeadChunksFile struct {
	Path string
}

func (e *ErrTruncatedHeadChunksFile) Error() string {
	return fmt.Sprintf("chunks: truncated head-chunks file: %s", e.Path)
}

// LoadHeadChunks scans every file under dir (chunks_head/), publishing
// each into cache under its decimal filename as the segment id, and
// returns the ChunkReference list discovered for each series, in file
// order (spec §4.6).
func LoadHeadChunks(dir string, cache *ChunkFileCache) (map[uint64][]ChunkReference, error) {
	names, err := fileutil.ReadDirNames(dir)
	if err != nil {
		return nil, err
	}

	type fileID struct {
		id   uint64
		name string
	}
	var files []fileID
	for _, n := range names {
		id, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, fileID{id: id, name: n})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].id < files[j].id })

	out := make(map[uint64][]ChunkReference)
	for i, f := range files {
		path := dir + "/" + f.name
		res, err := OpenMmapResource(path, dir)
		if err != nil {
			return nil, err
		}
		// Stored under f.id+1 so that NewBlockReference(f.id+1, ...).
		// SegmentFileID() (used as the cache key everywhere a
		// ChunkReference is resolved) finds this Resource.
		cache.Put(uint32(f.id)+1, res)

		isLast := i == len(files)-1
		if err := scanHeadChunksFile(path, uint32(f.id), res.Bytes(), isLast, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanHeadChunksFile(path string, fileID uint32, b []byte, isLast bool, out map[uint64][]ChunkReference) error {
	db := encoding.Decbuf{B: b}
	magic := db.Be32()
	version := db.Byte()
	db.View(3) // pad
	if db.Err() != nil {
		return db.Err()
	}
	if magic != headChunksMagic {
		return fmt.Errorf("chunks: bad head-chunks magic in %s: %x", path, magic)
	}
	if version != headChunksVersion {
		return fmt.Errorf("chunks: unsupported head-chunks version in %s: %d", path, version)
	}

	for db.Remaining() > minMetaLen {
		entryOff := db.Tell()
		seriesRef := db.Be64()
		minTime := int64(db.Be64())
		maxTime := int64(db.Be64())
		enc := db.Byte()
		dataLen := db.Uvarint()
		if db.Err() != nil {
			if isLast {
				return nil
			}
			return &ErrTruncatedHeadChunksFile{Path: path}
		}

		if enc == 0 && minTime == 0 && maxTime == 0 {
			// Unfilled tail of the file currently being appended to.
			return nil
		}
		if enc != chunkEncodingByte {
			return fmt.Errorf("chunks: unexpected head-chunks encoding byte %d in %s", enc, path)
		}

		db.Seek(int(dataLen)+4, encoding.Current) // chunk body + trailing crc
		if db.Err() != nil {
			if isLast {
				return nil
			}
			return &ErrTruncatedHeadChunksFile{Path: path}
		}

		out[seriesRef] = append(out[seriesRef], ChunkReference{
			MinTime: minTime,
			MaxTime: maxTime,
			FileRef: NewBlockReference(fileID+1, uint32(entryOff)),
			Type:    Head,
		})
	}
	return nil
}
