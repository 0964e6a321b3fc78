// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rdiff

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Rdiff runs the three rdiff steps, signature, delta and patch, with one
// configuration.
type Rdiff struct {
	config *Configuration
}

// New returns an Rdiff using config.
func New(config *Configuration) *Rdiff {
	return &Rdiff{config: config}
}

// Config returns the configuration in use.
func (rd *Rdiff) Config() *Configuration {
	return rd.config
}

// MakeSignatures computes the signature of the data read from r.
func (rd *Rdiff) MakeSignatures(ctx context.Context, r io.Reader) ([]ChecksumPair, error) {
	return NewGenerator(rd.config).GenerateSumsStream(ctx, r)
}

// WriteSignatures writes pairs as a signature stream using the configured
// block and strong sum lengths.
func (rd *Rdiff) WriteSignatures(w io.Writer, pairs []ChecksumPair) error {
	return WriteSignatures(w, rd.config.blockLength, rd.config.strongSumLength, pairs)
}

// ReadSignatures reads a signature stream. Because the stream carries its
// own block and strong sum lengths, an Rdiff configured with them is
// returned alongside the pairs; it should be used for the delta step.
func (rd *Rdiff) ReadSignatures(r io.Reader) ([]ChecksumPair, *Rdiff, error) {
	sig, err := ReadSignatures(r)
	if err != nil {
		return nil, nil, err
	}
	config, err := rd.config.derive(sig.BlockLength, sig.StrongSumLength)
	if err != nil {
		return nil, nil, err
	}
	rd.config.log.Debug().
		Int("blocks", len(sig.Pairs)).
		Uint32("block_length", sig.BlockLength).
		Uint32("strong_sum_length", sig.StrongSumLength).
		Msg("read signatures")
	return sig.Pairs, New(config), nil
}

// MakeDeltas matches the data read from r against pairs.
func (rd *Rdiff) MakeDeltas(ctx context.Context, pairs []ChecksumPair, r io.Reader) ([]Delta, error) {
	return NewMatcher(rd.config).HashSearchPairs(ctx, pairs, r)
}

// WriteDeltas writes deltas as a delta stream.
func (rd *Rdiff) WriteDeltas(w io.Writer, deltas []Delta) error {
	return WriteDeltas(w, deltas)
}

// ReadDeltas reads a delta stream.
func (rd *Rdiff) ReadDeltas(r io.Reader) ([]Delta, error) {
	deltas, err := ReadDeltas(r)
	if err != nil {
		return nil, err
	}
	rd.config.log.Debug().Int("deltas", len(deltas)).Msg("read deltas")
	return deltas, nil
}

// Rebuild applies deltas to basis and writes the result to out.
func (rd *Rdiff) Rebuild(ctx context.Context, basis io.ReadSeeker, deltas []Delta, out io.Writer) error {
	n, err := Rebuild(ctx, basis, deltas, out)
	if err != nil {
		return err
	}
	rd.config.log.Debug().Int("deltas", len(deltas)).Int64("bytes", n).Msg("rebuilt data")
	return nil
}

// RebuildFile applies deltas to the basis file at path.
func (rd *Rdiff) RebuildFile(ctx context.Context, path string, deltas []Delta, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed opening basis file")
	}
	defer f.Close()

	return rd.Rebuild(ctx, f, deltas, out)
}

// Signature reads basis and writes its signature stream to out.
func (rd *Rdiff) Signature(ctx context.Context, basis io.Reader, out io.Writer) error {
	pairs, err := rd.MakeSignatures(ctx, basis)
	if err != nil {
		return err
	}
	return rd.WriteSignatures(out, pairs)
}

// Delta reads a signature stream from sig, matches target against it and
// writes the delta stream to out.
func (rd *Rdiff) Delta(ctx context.Context, sig, target io.Reader, out io.Writer) error {
	pairs, derived, err := rd.ReadSignatures(bufio.NewReader(sig))
	if err != nil {
		return err
	}
	deltas, err := derived.MakeDeltas(ctx, pairs, target)
	if err != nil {
		return err
	}
	return rd.WriteDeltas(out, deltas)
}

// Patch reads a delta stream from delta, applies it to basis and writes the
// rebuilt data to out.
func (rd *Rdiff) Patch(ctx context.Context, basis io.ReadSeeker, delta io.Reader, out io.Writer) error {
	deltas, err := rd.ReadDeltas(bufio.NewReader(delta))
	if err != nil {
		return err
	}
	return rd.Rebuild(ctx, basis, deltas, out)
}
