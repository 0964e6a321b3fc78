// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rdiff

// CharOffset is added to every byte before it is summed, so runs of zero
// bytes still move the checksum.
const CharOffset = 31

// RollingChecksum is the rsync weak checksum as defined in
// https://www.samba.org/~tridge/phd_thesis.pdf, based on Adler-32. Both
// halves are kept modulo 2^16 so the uint16 arithmetic wraps for free.
//
// A RollingChecksum is not safe for concurrent use.
type RollingChecksum struct {
	s1, s2 uint16
	// window holds the bytes currently summed, head points at the oldest.
	window []byte
	head   int
	n      int
}

// NewRollingChecksum returns an empty rolling checksum.
func NewRollingChecksum() *RollingChecksum {
	return new(RollingChecksum)
}

// Check discards the current state and sums length bytes of buf starting at
// offset.
func (r *RollingChecksum) Check(buf []byte, offset, length int) {
	block := buf[offset : offset+length]
	if cap(r.window) < length {
		r.window = make([]byte, length)
	}
	r.window = r.window[:length]
	copy(r.window, block)
	r.head = 0
	r.n = length

	var a, b uint16
	for i, k := range block {
		v := uint16(k) + CharOffset
		a += v
		b += uint16(length-i) * v
	}
	r.s1, r.s2 = a, b
}

// Roll drops the oldest byte of the window and appends c, keeping the
// window length unchanged.
func (r *RollingChecksum) Roll(c byte) {
	if r.n == 0 {
		return
	}
	size := len(r.window)
	old := uint16(r.window[r.head]) + CharOffset
	r.window[(r.head+r.n)%size] = c
	r.head = (r.head + 1) % size

	r.s1 = r.s1 - old + uint16(c) + CharOffset
	r.s2 = r.s2 - uint16(r.n)*old + r.s1
}

// Trim drops the oldest byte of the window without adding a new one.
func (r *RollingChecksum) Trim() {
	if r.n == 0 {
		return
	}
	old := uint16(r.window[r.head]) + CharOffset
	r.s1 -= old
	r.s2 -= uint16(r.n) * old
	r.head = (r.head + 1) % len(r.window)
	r.n--
}

// Value returns the current 32-bit checksum.
func (r *RollingChecksum) Value() uint32 {
	return uint32(r.s2)<<16 | uint32(r.s1)
}

// Len returns the number of bytes in the window.
func (r *RollingChecksum) Len() int {
	return r.n
}

// Reset clears all state.
func (r *RollingChecksum) Reset() {
	r.s1, r.s2 = 0, 0
	r.window = r.window[:0]
	r.head, r.n = 0, 0
}

// Clone returns an independent copy carrying the same window.
func (r *RollingChecksum) Clone() *RollingChecksum {
	c := *r
	c.window = append([]byte(nil), r.window...)
	return &c
}

// weakSum computes the checksum of a whole block in one pass.
func weakSum(block []byte) uint32 {
	var r RollingChecksum
	r.Check(block, 0, len(block))
	return r.Value()
}
