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

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments a Dataset's open path. Open always creates one and
// updates it; its gauges/counters are registered, and so exported, only
// when WithRegisterer is passed to Open. Every method below is also a
// no-op on a nil *Metrics.
//
// Metrics deliberately only observes the top-level tsdb package: the
// lower-level chunks and wlog packages tolerate truncation internally
// (spec §4.6, §4.9) without reporting it outward, so threading a
// Metrics pointer down into them would mean those packages importing
// back up into tsdb, an import cycle this layout avoids.
type Metrics struct {
	seriesLoaded  prometheus.Gauge
	blocksOpen    prometheus.Gauge
	blocksDropped prometheus.Counter
}

func newMetrics(r prometheus.Registerer) *Metrics {
	m := &Metrics{
		seriesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tsdbreader_series_loaded",
			Help: "Number of series currently known across all open blocks and the head.",
		}),
		blocksOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tsdbreader_blocks_open",
			Help: "Number of blocks currently open in the dataset.",
		}),
		blocksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsdbreader_blocks_dropped_total",
			Help: "Number of blocks dropped at open time for being obsolete compaction parents.",
		}),
	}
	if r != nil {
		r.MustRegister(
			m.seriesLoaded,
			m.blocksOpen,
			m.blocksDropped,
		)
	}
	return m
}

func (m *Metrics) setSeriesLoaded(n int) {
	if m != nil {
		m.seriesLoaded.Set(float64(n))
	}
}

func (m *Metrics) setBlocksOpen(n int) {
	if m != nil {
		m.blocksOpen.Set(float64(n))
	}
}

func (m *Metrics) incBlocksDropped() {
	if m != nil {
		m.blocksDropped.Inc()
	}
}
