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
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/promslog"

	"tsdbreader/tsdb/errors"
	"tsdbreader/tsdb/fileutil"
	"tsdbreader/tsdb/index"
)

// Dataset is an opened data directory: every non-obsolete block, sorted
// by minTime, plus the head (spec §2 "Data flow", §6).
type Dataset struct {
	dir     string
	logger  *slog.Logger
	metrics *Metrics

	blocks []*Block
	head   *HeadChunks
}

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
}

// WithLogger overrides the default discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *openConfig) { c.logger = l }
}

// WithRegisterer enables instrumentation, registering Dataset's metrics
// with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(c *openConfig) { c.registerer = r }
}

// Open enumerates dir's block subdirectories, opens each, drops
// obsolete blocks (those named as a parent by some other block's
// meta.json), sorts the rest by minTime, and loads the head (spec §2,
// §6, §9 scenario 6).
func Open(dir string, opts ...Option) (*Dataset, error) {
	cfg := openConfig{logger: promslog.New(&promslog.Config{})}
	for _, o := range opts {
		o(&cfg)
	}

	names, err := fileutil.ReadDirNames(dir)
	if err != nil {
		return nil, fmt.Errorf("tsdb: reading data dir: %w", err)
	}

	metrics := newMetrics(cfg.registerer)

	var blocks []*Block
	for _, name := range names {
		if _, err := ulid.Parse(name); err != nil {
			continue // not a block directory
		}
		blockDir := filepath.Join(dir, name)
		b, err := OpenBlock(blockDir)
		if err != nil {
			cfg.logger.Warn("skipping unreadable block", "dir", blockDir, "err", err)
			continue
		}
		blocks = append(blocks, b)
	}

	blocks = dropObsolete(blocks, cfg.logger, metrics)
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].meta.MinTime < blocks[j].meta.MinTime })
	metrics.setBlocksOpen(len(blocks))

	ds := &Dataset{dir: dir, logger: cfg.logger, metrics: metrics, blocks: blocks}

	head, err := OpenHeadChunks(dir)
	if err != nil {
		cfg.logger.Warn("no usable head", "err", err)
	} else {
		ds.head = head
	}

	metrics.setSeriesLoaded(ds.seriesCount())

	return ds, nil
}

// seriesCount sums each block's meta.json series stat plus the head's
// current series count, for the seriesLoaded gauge.
func (d *Dataset) seriesCount() int {
	total := 0
	for _, b := range d.blocks {
		total += int(b.meta.Stats.NumSeries)
	}
	if d.head != nil {
		total += len(d.head.series)
	}
	return total
}

// dropObsolete removes any block whose ULID is named as a parent by
// another block's meta.json compaction.parents (spec §6, §9 scenario 6).
func dropObsolete(blocks []*Block, logger *slog.Logger, metrics *Metrics) []*Block {
	obsolete := make(map[string]bool)
	for _, b := range blocks {
		for _, p := range b.meta.Compaction.Parents {
			if p.ULID != "" {
				obsolete[p.ULID] = true
			}
		}
	}
	if len(obsolete) == 0 {
		return blocks
	}

	out := blocks[:0]
	for _, b := range blocks {
		if obsolete[b.meta.ULID] {
			logger.Debug("dropping obsolete block", "ulid", b.meta.ULID)
			metrics.incBlocksDropped()
			continue
		}
		out = append(out, b)
	}
	return out
}

// Sources returns every SeriesSource in the order a SeriesIterator
// should merge them: blocks ascending by minTime, then the head, if
// present.
func (d *Dataset) Sources() []SeriesSource {
	out := make([]SeriesSource, 0, len(d.blocks)+1)
	for _, b := range d.blocks {
		out = append(out, b)
	}
	if d.head != nil {
		out = append(out, d.head)
	}
	return out
}

// Iterator builds a SeriesIterator merging every source in this dataset
// under filter.
func (d *Dataset) Iterator(filter index.Filter) (*SeriesIterator, error) {
	return NewSeriesIterator(d.Sources(), filter)
}

// Blocks returns the retained, sorted blocks.
func (d *Dataset) Blocks() []*Block { return d.blocks }

// Head returns the loaded head source, or nil if none was found.
func (d *Dataset) Head() *HeadChunks { return d.head }

// Close releases every mmapped resource held by the dataset's blocks and
// head, collecting every error encountered rather than stopping at the
// first (spec §1 ambient error handling).
func (d *Dataset) Close() error {
	merr := errors.NewMulti()
	for _, b := range d.blocks {
		merr.Add(b.Close())
	}
	if d.head != nil {
		merr.Add(d.head.GetCache().Close())
	}
	return merr.Err()
}
