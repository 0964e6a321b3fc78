// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rdiff

import (
	"bytes"
)

// ChecksumMap is the lookup table the matcher searches when deciding whether
// to send a block of data or a reference to it. Pairs live in one slice and
// the table maps each weak checksum to the indices of the pairs sharing it,
// in insertion order.
//
// A ChecksumMap is built once and then only read, so it may be shared by
// concurrent matchers.
type ChecksumMap struct {
	pairs []ChecksumPair
	table map[uint32][]int
}

// NewChecksumMap builds a lookup table from pairs.
func NewChecksumMap(pairs []ChecksumPair) *ChecksumMap {
	m := &ChecksumMap{
		pairs: make([]ChecksumPair, 0, len(pairs)),
		table: make(map[uint32][]int, len(pairs)),
	}
	for _, p := range pairs {
		m.Add(p)
	}
	return m
}

// Add appends p to the bucket of its weak checksum.
func (m *ChecksumMap) Add(p ChecksumPair) {
	if m.table == nil {
		m.table = make(map[uint32][]int)
	}
	m.table[p.Weak] = append(m.table[p.Weak], len(m.pairs))
	m.pairs = append(m.pairs, p)
}

// Contains reports whether any pair has the weak checksum.
func (m *ChecksumMap) Contains(weak uint32) bool {
	_, ok := m.table[weak]
	return ok
}

// Lookup returns the first pair inserted with the given weak and strong
// checksums.
func (m *ChecksumMap) Lookup(weak uint32, strong []byte) (ChecksumPair, bool) {
	for _, i := range m.table[weak] {
		if bytes.Equal(m.pairs[i].Strong, strong) {
			return m.pairs[i], true
		}
	}
	return ChecksumPair{}, false
}

// LookupAt is like Lookup but prefers the pair whose basis offset equals
// offset, so that unchanged data keeps pointing at its own position when the
// basis repeats itself.
func (m *ChecksumMap) LookupAt(weak uint32, strong []byte, offset int64) (ChecksumPair, bool) {
	first := -1
	for _, i := range m.table[weak] {
		if !bytes.Equal(m.pairs[i].Strong, strong) {
			continue
		}
		if m.pairs[i].Offset == offset {
			return m.pairs[i], true
		}
		if first < 0 {
			first = i
		}
	}
	if first < 0 {
		return ChecksumPair{}, false
	}
	return m.pairs[first], true
}

// Len returns the number of pairs in the table.
func (m *ChecksumMap) Len() int {
	return len(m.pairs)
}
