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

package fileutil

import (
	"os"

	"github.com/edsrzf/mmap-go"
)

// MmapFile memory-maps a read-only file for its entire lifetime. It is the
// on-disk half of the Resource abstraction (spec §4.4): bytes are exposed
// directly from the OS page cache, with no read-side copy.
type MmapFile struct {
	f *os.File
	b mmap.MMap
}

// OpenMmapFile opens path read-only and maps it in its entirety. An empty
// file cannot be mapped by the OS; it is treated as a zero-length
// resource rather than an error (spec §7).
func OpenMmapFile(path string) (*MmapFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		f.Close()
		return &MmapFile{}, nil
	}

	b, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &MmapFile{f: f, b: b}, nil
}

// Bytes returns the mapped region. It is valid until Close is called.
func (f *MmapFile) Bytes() []byte {
	return f.b
}

func (f *MmapFile) Close() error {
	if f.f == nil {
		return nil
	}
	err := f.b.Unmap()
	if cerr := f.f.Close(); err == nil {
		err = cerr
	}
	return err
}
