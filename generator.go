// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rdiff

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// Generator computes the signature of basis data.
type Generator struct {
	config *Configuration
}

// NewGenerator returns a generator using config's block length and checksums.
func NewGenerator(config *Configuration) *Generator {
	return &Generator{config: config}
}

// GenerateSums computes checksums over all of buf. baseOffset is added to
// every pair's offset.
func (g *Generator) GenerateSums(buf []byte, baseOffset int64) []ChecksumPair {
	return g.GenerateSumsRange(buf, 0, len(buf), baseOffset)
}

// GenerateSumsRange computes checksums over length bytes of buf starting at
// off. Pair offsets are positions in buf plus baseOffset.
func (g *Generator) GenerateSumsRange(buf []byte, off, length int, baseOffset int64) []ChecksumPair {
	bl := int(g.config.blockLength)
	sums := make([]ChecksumPair, 0, (length+bl-1)/bl)

	for seq := 0; length > 0; seq++ {
		n := min(length, bl)
		sums = append(sums, g.generateSum(buf[off:off+n], baseOffset+int64(off), uint32(seq)))
		length -= n
		off += n
	}

	g.config.log.Debug().Int("blocks", len(sums)).Msg("generated signature from buffer")
	return sums
}

// GenerateSumsReaderAt computes checksums over the first size bytes of r.
func (g *Generator) GenerateSumsReaderAt(ctx context.Context, r io.ReaderAt, size int64) ([]ChecksumPair, error) {
	if r == nil {
		return nil, errors.New("rdiff: reader required")
	}

	bl := int64(g.config.blockLength)
	sums := make([]ChecksumPair, 0, (size+bl-1)/bl)
	buffer := make([]byte, bl)

	var offset int64
	for seq := uint32(0); offset < size; seq++ {
		// Allow for cancellation.
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "failed generating signature")
		default:
		}

		block := buffer[:min(bl, size-offset)]
		n, err := r.ReadAt(block, offset)
		if n < len(block) {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, errors.Wrapf(err, "failed reading data block at offset %d", offset)
		}

		sums = append(sums, g.generateSum(block, offset, seq))
		offset += int64(n)
	}

	g.config.log.Debug().Int("blocks", len(sums)).Int64("size", size).Msg("generated signature from file")
	return sums, nil
}

// GenerateSumsStream computes checksums over everything read from r until
// EOF. Blocks are filled completely before being summed, so the result does
// not depend on how r splits its reads.
func (g *Generator) GenerateSumsStream(ctx context.Context, r io.Reader) ([]ChecksumPair, error) {
	if r == nil {
		return nil, errors.New("rdiff: reader required")
	}

	var (
		sums   []ChecksumPair
		offset int64
	)
	buffer := make([]byte, g.config.blockLength)

	for seq := uint32(0); ; seq++ {
		// Allow for cancellation.
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "failed generating signature")
		default:
		}

		n, err := io.ReadFull(r, buffer)
		if n > 0 {
			sums = append(sums, g.generateSum(buffer[:n], offset, seq))
			offset += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed reading data block at offset %d", offset)
		}
	}

	g.config.log.Debug().Int("blocks", len(sums)).Int64("size", offset).Msg("generated signature from stream")
	return sums, nil
}

// generateSum computes the checksum pair of one block.
func (g *Generator) generateSum(block []byte, offset int64, seq uint32) ChecksumPair {
	g.config.weak.Check(block, 0, len(block))
	return ChecksumPair{
		Weak:   g.config.weak.Value(),
		Strong: g.config.strongSum(make([]byte, 0, g.config.strongSumLength), block),
		Offset: offset,
		Length: uint32(len(block)),
		Seq:    seq,
	}
}
