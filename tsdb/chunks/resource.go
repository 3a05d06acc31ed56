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
	"sync"

	"tsdbreader/tsdb/fileutil"
)

// Resource is a byte buffer backing one segment file, either memory-mapped
// from disk or owned in memory (spec §4.4). The two kinds are
// interchangeable everywhere a ChunkView reads from one.
type Resource interface {
	Bytes() []byte
	Directory() string
	Close() error
}

// mmapResource backs a segment file opened read-only from disk.
type mmapResource struct {
	f   *fileutil.MmapFile
	dir string
}

// OpenMmapResource mmaps path, recording dir (typically the owning
// block's directory) for diagnostics.
func OpenMmapResource(path, dir string) (Resource, error) {
	f, err := fileutil.OpenMmapFile(path)
	if err != nil {
		return nil, err
	}
	return &mmapResource{f: f, dir: dir}, nil
}

func (r *mmapResource) Bytes() []byte    { return r.f.Bytes() }
func (r *mmapResource) Directory() string { return r.dir }
func (r *mmapResource) Close() error      { return r.f.Close() }

// memResource backs a chunk buffer synthesised in memory. In this module
// only the head's WAL loader creates one, for its Raw chunks (spec §4.4);
// the portable-snapshot importer returns chunk bytes and does not create
// Resources.
type memResource struct {
	b   []byte
	dir string
}

// NewMemResource wraps an owned buffer as a Resource. dir is typically
// empty or a synthetic label such as "wal".
func NewMemResource(b []byte, dir string) Resource {
	return &memResource{b: b, dir: dir}
}

func (r *memResource) Bytes() []byte     { return r.b }
func (r *memResource) Directory() string { return r.dir }
func (r *memResource) Close() error      { return nil }

// MissingChunkFileError is returned by ChunkFileCache.Get when a
// ChunkReference names a segment that does not exist on disk.
type MissingChunkFileError struct {
	Path string
}

func (e *MissingChunkFileError) Error() string {
	return fmt.Sprintf("chunks: chunk file referenced but absent: %s", e.Path)
}

// ChunkFileCache is a per-block map from segment id to the Resource backing
// it (spec §4.4). Block segments are opened and mmapped lazily on first
// reference; Raw (WAL-derived) segments are inserted directly by their
// producer under a synthetic id.
type ChunkFileCache struct {
	dir string

	mu    sync.Mutex
	cache map[uint32]Resource
}

// NewChunkFileCache creates a cache rooted at a block's chunks/ directory.
func NewChunkFileCache(dir string) *ChunkFileCache {
	return &ChunkFileCache{dir: dir, cache: make(map[uint32]Resource)}
}

// Get returns the Resource for segmentID, opening and mmapping
// chunks/{id:06d} on first access.
func (c *ChunkFileCache) Get(segmentID uint32) (Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.cache[segmentID]; ok {
		return r, nil
	}

	path := c.dir + "/" + SegmentFileName(segmentID)
	if !fileutil.Exists(path) {
		return nil, &MissingChunkFileError{Path: path}
	}
	r, err := OpenMmapResource(path, c.dir)
	if err != nil {
		return nil, err
	}
	c.cache[segmentID] = r
	return r, nil
}

// GetForReference resolves the Resource backing ref, whichever of
// Block/Head/Raw it names. The segment id is always ref.FileRef's
// SegmentFileID, so Put-by-reference and Get-by-reference stay consistent.
func (c *ChunkFileCache) GetForReference(ref ChunkReference) (Resource, error) {
	return c.Get(ref.FileRef.SegmentFileID())
}

// PutForReference publishes r under ref's segment id, as used by the
// head's WAL loader.
func (c *ChunkFileCache) PutForReference(ref ChunkReference, r Resource) {
	c.Put(ref.FileRef.SegmentFileID(), r)
}

// Put inserts a Resource directly under segmentID, bypassing disk I/O. The
// head-chunks loader uses this to publish each mmapped chunks_head file,
// and the head's WAL loader (through PutForReference) to publish one
// in-memory Resource per Raw chunk it materialises.
func (c *ChunkFileCache) Put(segmentID uint32, r Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[segmentID] = r
}

// Close releases every mapped resource. Safe to call once after the owning
// block or head is no longer needed.
func (c *ChunkFileCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for id, r := range c.cache {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.cache, id)
	}
	return firstErr
}
