// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package rdiff implements the rsync algorithm in the style of rdiff: a
// signature of a basis file is computed on one end, the other end matches
// its new data against that signature and emits deltas, and the first end
// rebuilds the new data from its basis and the deltas.
package rdiff

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// ChecksumPair contains the checksums of one basis block as specified in
// the rsync thesis.
type ChecksumPair struct {
	// Weak is the fast rsync rolling checksum.
	Weak uint32
	// Strong is the truncated strong checksum, it need not be cryptographic.
	Strong []byte
	// Offset is the position of the block in the basis.
	Offset int64
	// Length is the number of bytes the sums were computed over.
	Length uint32
	// Seq is the block index.
	Seq uint32
}

// Equal reports whether p and o identify the same block content. Offset,
// length and sequence are not part of the identity.
func (p ChecksumPair) Equal(o ChecksumPair) bool {
	return p.Weak == o.Weak && bytes.Equal(p.Strong, o.Strong)
}

func (p ChecksumPair) String() string {
	return fmt.Sprintf("len=%d offset=%d weak=%d strong=%s", p.Length, p.Offset, p.Weak, hex.EncodeToString(p.Strong))
}

// Delta is one re-construction instruction. It is either a Literal or a
// Copy; no other implementations exist.
type Delta interface {
	// WriteOffset is where the delta's bytes go in the rebuilt data.
	WriteOffset() int64
	// BlockLength is the number of bytes the delta produces.
	BlockLength() int64

	delta()
}

// Literal is new data to be written verbatim.
type Literal struct {
	Offset int64
	Data   []byte
}

// WriteOffset implements Delta.
func (l Literal) WriteOffset() int64 { return l.Offset }

// BlockLength implements Delta.
func (l Literal) BlockLength() int64 { return int64(len(l.Data)) }

func (Literal) delta() {}

func (l Literal) String() string {
	n := len(l.Data)
	if n > 256 {
		return fmt.Sprintf("[ off=%d len=%d data=%x... ]", l.Offset, n, l.Data[:256])
	}
	return fmt.Sprintf("[ off=%d len=%d data=%x ]", l.Offset, n, l.Data)
}

// Copy instructs the remote end to copy Length bytes of its basis, starting
// at OldOffset, to NewOffset in the rebuilt data.
type Copy struct {
	OldOffset int64
	NewOffset int64
	Length    uint32
}

// WriteOffset implements Delta.
func (c Copy) WriteOffset() int64 { return c.NewOffset }

// BlockLength implements Delta.
func (c Copy) BlockLength() int64 { return int64(c.Length) }

func (Copy) delta() {}

func (c Copy) String() string {
	return fmt.Sprintf("[ old=%d new=%d len=%d ]", c.OldOffset, c.NewOffset, c.Length)
}

// Signature is a decoded signature stream.
type Signature struct {
	BlockLength     uint32
	StrongSumLength uint32
	Pairs           []ChecksumPair
}
