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
	"tsdbreader/model/labels"
	"tsdbreader/tsdb/chunks"
	"tsdbreader/tsdb/index"
)

// SeriesRef identifies a series within whichever SeriesSource produced
// it. Refs from different sources are never compared; only used to look
// a series back up within the source that returned it.
type SeriesRef uint64

// SeriesSource is the capability set a block or the head both implement
// (spec §4.8): filtered series lookup, series lookup by ref, and access
// to the chunk-file cache backing its chunk references.
type SeriesSource interface {
	GetFilteredSeriesRefs(filter index.Filter) ([]SeriesRef, error)
	GetSeries(ref SeriesRef) (labels.Labels, []chunks.ChunkReference, bool)
	GetCache() *chunks.ChunkFileCache
	String() string
}
