// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rdiff

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// Stats summarizes a search.
type Stats struct {
	Chunks         int
	Literals       int
	LiteralBytes   int64
	Copies         int
	CopiedBytes    int64
	WeakHits       int
	FalsePositives int
}

// Matcher searches new data for blocks of a basis signature and produces the
// deltas that rebuild the new data from the basis.
type Matcher struct {
	config *Configuration
	stats  Stats
}

// NewMatcher returns a matcher using config's block length, chunk size and
// checksums.
func NewMatcher(config *Configuration) *Matcher {
	return &Matcher{config: config}
}

// Stats returns the counters of the last search.
func (m *Matcher) Stats() Stats {
	return m.stats
}

// HashSearchPairs builds a lookup table from pairs and searches r.
func (m *Matcher) HashSearchPairs(ctx context.Context, pairs []ChecksumPair, r io.Reader) ([]Delta, error) {
	return m.HashSearch(ctx, NewChecksumMap(pairs), r)
}

// HashSearch reads r in chunks and returns the deltas that rebuild it from
// the basis described by sigs.
//
// Every chunk is searched on its own: a basis block straddling two chunks
// is not found and its bytes are sent as literals instead. Reads fill whole
// chunks, so the output depends on the chunk size but not on how r splits
// its reads.
func (m *Matcher) HashSearch(ctx context.Context, sigs *ChecksumMap, r io.Reader) ([]Delta, error) {
	if r == nil {
		return nil, errors.New("rdiff: reader required")
	}
	if sigs == nil {
		sigs = NewChecksumMap(nil)
	}

	m.stats = Stats{}
	var (
		deltas []Delta
		idx    int64
	)
	buffer := make([]byte, m.config.chunkSize)

	for {
		// Allow for cancellation.
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "failed searching new data")
		default:
		}

		n, err := io.ReadFull(r, buffer)
		if n > 0 {
			m.stats.Chunks++
			deltas, idx = m.hashSearch(sigs, buffer[:n], idx, deltas)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed reading data chunk at offset %d", idx)
		}
	}

	m.config.log.Debug().
		Int("chunks", m.stats.Chunks).
		Int("literals", m.stats.Literals).
		Int64("literal_bytes", m.stats.LiteralBytes).
		Int("copies", m.stats.Copies).
		Int64("copied_bytes", m.stats.CopiedBytes).
		Int("weak_hits", m.stats.WeakHits).
		Int("false_positives", m.stats.FalsePositives).
		Msg("hash search done")

	return deltas, nil
}

// hashSearch scans one chunk. idx is the write offset of the chunk's first
// byte; the write offset past the chunk is returned.
func (m *Matcher) hashSearch(sigs *ChecksumMap, buf []byte, idx int64, deltas []Delta) ([]Delta, int64) {
	weak := m.config.weak
	strong := make([]byte, 0, m.config.strongSumLength)

	i := 0
	rest := len(buf)
	for rest > 0 {
		blockSize := min(int(m.config.blockLength), rest)
		rest -= blockSize
		weak.Check(buf, i, blockSize)

		matchFound := false
		j := 0
		for ; j <= rest; j++ {
			if j > 0 {
				weak.Roll(buf[i+blockSize+j-1])
			}

			sum := weak.Value()
			if !sigs.Contains(sum) {
				continue
			}
			m.stats.WeakHits++

			strong = m.config.strongSum(strong[:0], buf[i+j:i+j+blockSize])
			pair, ok := sigs.LookupAt(sum, strong, idx+int64(j))
			if !ok {
				m.stats.FalsePositives++
				continue
			}

			matchFound = true
			// When a match is found, send the data between the end of the
			// previous match and the matched block.
			if j > 0 {
				deltas = append(deltas, m.literal(idx, buf[i:i+j]))
				idx += int64(j)
			}

			// Instruct the remote end to copy the block from its basis.
			deltas = append(deltas, Copy{OldOffset: pair.Offset, NewOffset: idx, Length: uint32(blockSize)})
			m.stats.Copies++
			m.stats.CopiedBytes += int64(blockSize)
			idx += int64(blockSize)

			// The search is restarted at the end of the matched block.
			i += blockSize + j
			break
		}

		if !matchFound {
			deltas = append(deltas, m.literal(idx, buf[i:i+blockSize+rest]))
			idx += int64(blockSize + rest)
			break
		}
		rest -= j
	}

	return deltas, idx
}

func (m *Matcher) literal(offset int64, data []byte) Literal {
	m.stats.Literals++
	m.stats.LiteralBytes += int64(len(data))
	return Literal{Offset: offset, Data: append([]byte(nil), data...)}
}
