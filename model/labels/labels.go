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

// Package labels holds the label set representation shared by the index
// reader, the WAL loader, and the query layer.
package labels

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// MetricName is the reserved label holding a series' metric name.
const MetricName = "__name__"

// Label is a single name-value pair. The index and WAL readers copy Name
// and Value out of the mapped files, so labels they return do not alias
// any file buffer.
type Label struct {
	Name, Value string
}

// Labels is a sorted-by-name set of labels identifying one series (spec
// §3). Every series has at least one label; by Prometheus convention one
// of them is __name__.
type Labels []Label

// Len, Swap, Less implement sort.Interface, ordering by Name then Value.
func (ls Labels) Len() int      { return len(ls) }
func (ls Labels) Swap(i, j int) { ls[i], ls[j] = ls[j], ls[i] }
func (ls Labels) Less(i, j int) bool {
	if ls[i].Name != ls[j].Name {
		return ls[i].Name < ls[j].Name
	}
	return ls[i].Value < ls[j].Value
}

// Get returns the value for name, or "" if it isn't present.
func (ls Labels) Get(name string) string {
	for _, l := range ls {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

// Has reports whether ls has a label with the given name.
func (ls Labels) Has(name string) bool {
	for _, l := range ls {
		if l.Name == name {
			return true
		}
	}
	return false
}

// Hash returns a hash over all label name/value pairs. The series merge
// in package tsdb does not use it; it matches series with Compare.
func (ls Labels) Hash() uint64 {
	var b strings.Builder
	for i, l := range ls {
		if i > 0 {
			b.WriteByte(0xff)
		}
		b.WriteString(l.Name)
		b.WriteByte(0xff)
		b.WriteString(l.Value)
	}
	return xxhash.Sum64String(b.String())
}

// Compare returns <0, 0, or >0 depending on whether a orders before, the
// same as, or after b under the lexicographic order defined in spec §3:
// compare label sets by walking their (already-sorted) name/value pairs
// pairwise, then by length.
func Compare(a, b Labels) int {
	l := len(a)
	if len(b) < l {
		l = len(b)
	}
	for i := 0; i < l; i++ {
		if d := strings.Compare(a[i].Name, b[i].Name); d != 0 {
			return d
		}
		if d := strings.Compare(a[i].Value, b[i].Value); d != 0 {
			return d
		}
	}
	return len(a) - len(b)
}

// Equal reports whether a and b hold exactly the same label set (both
// assumed sorted).
func Equal(a, b Labels) bool {
	return Compare(a, b) == 0
}

// Copy returns a deep copy of ls whose strings do not alias any borrowed
// buffer, used when a series is retained past its owning block's lifetime
// (e.g. by the portable snapshot exporter).
func (ls Labels) Copy() Labels {
	out := make(Labels, len(ls))
	for i, l := range ls {
		out[i] = Label{Name: strings.Clone(l.Name), Value: strings.Clone(l.Value)}
	}
	return out
}

// String renders ls as {name="value", ...}, matching Prometheus' textual
// metric representation.
func (ls Labels) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, l := range ls {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(l.Name)
		b.WriteString(`="`)
		b.WriteString(l.Value)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

// Builder accumulates labels for a series being parsed and produces a
// sorted Labels value.
type Builder struct {
	lbls Labels
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Reset() {
	b.lbls = b.lbls[:0]
}

func (b *Builder) Add(name, value string) {
	b.lbls = append(b.lbls, Label{Name: name, Value: value})
}

// Labels returns the accumulated labels sorted by name.
func (b *Builder) Labels() Labels {
	out := make(Labels, len(b.lbls))
	copy(out, b.lbls)
	sortLabels(out)
	return out
}

func sortLabels(ls Labels) {
	// Insertion sort: series typically carry a handful of labels, and
	// avoiding sort.Sort's interface dispatch keeps series parsing (the
	// hottest loop in the index and WAL readers) allocation-free.
	for i := 1; i < len(ls); i++ {
		for j := i; j > 0 && ls.Less(j, j-1); j-- {
			ls.Swap(j, j-1)
		}
	}
}
