// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"bufio"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/c4milo/rdiff"
)

// rdiff signature [-b BYTES] [-S BYTES] [-H HASH] [--seed HEX] BASIS [SIGNATURE]
func (s *session) signature(c *cli.Context) error {
	if err := checkArgs(c, 1, 2); err != nil {
		return err
	}
	basisName := c.Args().Get(0)
	outName := outputName(c, 1, basisName, ".sig")

	config, err := s.config(c,
		rdiff.WithBlockLength(uint32(c.Uint("block-size"))),
		rdiff.WithStrongSumLength(uint32(c.Uint("sum-size"))),
	)
	if err != nil {
		return err
	}
	rd := rdiff.New(config)

	basis, err := openInput(basisName)
	if err != nil {
		return err
	}
	defer basis.Close()

	pairs, err := rd.MakeSignatures(s.ctx, bufio.NewReader(basis))
	if err != nil {
		return errors.Wrapf(err, "failed computing signature of %s", basisName)
	}

	err = writeOutput(c, outName, func(w io.Writer) error {
		return rd.WriteSignatures(w, pairs)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("basis", basisName).
		Str("signature", outName).
		Int("blocks", len(pairs)).
		Uint32("block_length", config.BlockLength()).
		Uint32("strong_sum_length", config.StrongSumLength()).
		Str("hash", config.StrongHashName()).
		Dur("elapsed", time.Since(s.started)).
		Msg("signature written")
	return nil
}

// rdiff delta [--chunk-size BYTES] [-H HASH] [--seed HEX] SIGNATURE NEWFILE [DELTA]
func (s *session) delta(c *cli.Context) error {
	if err := checkArgs(c, 2, 3); err != nil {
		return err
	}
	sigName, newName := c.Args().Get(0), c.Args().Get(1)
	if sigName == "-" && newName == "-" {
		return errors.New("signature and new file cannot both be read from stdin")
	}
	outName := outputName(c, 2, newName, ".delta")

	config, err := s.config(c, rdiff.WithChunkSize(uint32(c.Uint("chunk-size"))))
	if err != nil {
		return err
	}

	sigFile, err := openInput(sigName)
	if err != nil {
		return err
	}
	defer sigFile.Close()

	// The signature stream decides the block and strong sum lengths.
	pairs, rd, err := rdiff.New(config).ReadSignatures(bufio.NewReader(sigFile))
	if err != nil {
		return errors.Wrapf(err, "failed reading signature %s", sigName)
	}

	newFile, err := openInput(newName)
	if err != nil {
		return err
	}
	defer newFile.Close()

	m := rdiff.NewMatcher(rd.Config())
	deltas, err := m.HashSearchPairs(s.ctx, pairs, bufio.NewReader(newFile))
	if err != nil {
		return errors.Wrapf(err, "failed computing delta of %s", newName)
	}

	err = writeOutput(c, outName, func(w io.Writer) error {
		return rd.WriteDeltas(w, deltas)
	})
	if err != nil {
		return err
	}

	stats := m.Stats()
	s.log.Info().
		Str("signature", sigName).
		Str("new_file", newName).
		Str("delta", outName).
		Int("copies", stats.Copies).
		Int64("copied_bytes", stats.CopiedBytes).
		Int("literals", stats.Literals).
		Int64("literal_bytes", stats.LiteralBytes).
		Dur("elapsed", time.Since(s.started)).
		Msg("delta written")
	return nil
}

// rdiff patch BASIS DELTA [NEWFILE]
func (s *session) patch(c *cli.Context) error {
	if err := checkArgs(c, 2, 3); err != nil {
		return err
	}
	basisName, deltaName := c.Args().Get(0), c.Args().Get(1)
	if basisName == "-" {
		return errors.New("basis must be a seekable file, not stdin")
	}
	outName := outputName(c, 2, basisName, ".patched")

	config, err := s.config(c)
	if err != nil {
		return err
	}
	rd := rdiff.New(config)

	deltaFile, err := openInput(deltaName)
	if err != nil {
		return err
	}
	defer deltaFile.Close()

	deltas, err := rd.ReadDeltas(bufio.NewReader(deltaFile))
	if err != nil {
		return errors.Wrapf(err, "failed reading delta %s", deltaName)
	}

	var written int64
	err = writeOutput(c, outName, func(w io.Writer) error {
		cw := &countingWriter{w: w}
		err := rd.RebuildFile(s.ctx, basisName, deltas, cw)
		written = cw.n
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "failed patching %s", basisName)
	}

	s.log.Info().
		Str("basis", basisName).
		Str("delta", deltaName).
		Str("new_file", outName).
		Int("deltas", len(deltas)).
		Int64("bytes", written).
		Dur("elapsed", time.Since(s.started)).
		Msg("patch applied")
	return nil
}

// config builds a configuration from the hash flags and opts.
func (s *session) config(c *cli.Context, opts ...rdiff.Option) (*rdiff.Configuration, error) {
	opts = append(opts, rdiff.WithLogger(s.log))
	if name := c.String("hash"); name != "" {
		opts = append(opts, rdiff.WithStrongHashName(name))
	}
	if v := c.String("seed"); v != "" {
		seed, err := hex.DecodeString(v)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid seed %q", v)
		}
		opts = append(opts, rdiff.WithChecksumSeed(seed))
	}
	return rdiff.NewConfiguration(opts...)
}

func checkArgs(c *cli.Context, least, most int) error {
	if n := c.NArg(); n < least || n > most {
		return errors.Errorf("%s takes %s, got %d arguments", c.Command.Name, c.Command.ArgsUsage, n)
	}
	return nil
}

// outputName returns argument i, or input with suffix when it is missing.
// Reading from stdin defaults to writing to stdout.
func outputName(c *cli.Context, i int, input, suffix string) string {
	if c.NArg() > i {
		return c.Args().Get(i)
	}
	if input == "-" {
		return "-"
	}
	return input + suffix
}

func openInput(name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed opening %s", name)
	}
	return f, nil
}

// writeOutput runs write against the named output. Files are replaced
// atomically once write succeeds, so a failed run leaves no partial file.
func writeOutput(c *cli.Context, name string, write func(io.Writer) error) error {
	if name == "-" {
		return write(c.App.Writer)
	}

	t, err := renameio.TempFile("", name)
	if err != nil {
		return errors.Wrapf(err, "failed creating %s", name)
	}
	defer t.Cleanup()

	if err := write(t); err != nil {
		return err
	}
	return errors.Wrapf(t.CloseAtomicallyReplace(), "failed writing %s", name)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
