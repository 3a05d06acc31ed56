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
	"sort"
	"strings"
)

// tmpSuffixes are directory/file name substrings that mark compaction
// staging entries to be skipped when enumerating a data directory
// (spec §6).
var tmpSuffixes = []string{".tmp", ".tmp-for-creation", ".tmp-for-deletion"}

// IsTemporary reports whether name should be skipped as compaction
// staging.
func IsTemporary(name string) bool {
	for _, s := range tmpSuffixes {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

// ReadDirNames returns the sorted, non-temporary entry names of dir.
func ReadDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if IsTemporary(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether path exists (file or directory).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
