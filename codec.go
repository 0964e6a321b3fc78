// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rdiff

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Stream magic numbers, compatible with rdiff/rproxy.
const (
	SigMagic   uint32 = 0x72730136
	DeltaMagic uint32 = 0x72730236
)

// Delta stream opcodes.
const (
	opEnd       byte = 0x00
	opLiteralN1 byte = 0x41
	opLiteralN2 byte = 0x42
	opLiteralN4 byte = 0x43
	opCopyN4N4  byte = 0x4f
)

// maxStrongSumLength bounds the strong sum length accepted from a signature
// header. No supported digest is longer.
const maxStrongSumLength = 64

// WriteSignatures writes a signature stream: magic, block length, strong sum
// length, then the weak sum and truncated strong sum of every pair. Offsets
// are implied by position and not written.
func WriteSignatures(w io.Writer, blockLength, strongSumLength uint32, pairs []ChecksumPair) error {
	bw := bufio.NewWriter(w)

	var hdr [12]byte
	binary.BigEndian.PutUint32(hdr[0:], SigMagic)
	binary.BigEndian.PutUint32(hdr[4:], blockLength)
	binary.BigEndian.PutUint32(hdr[8:], strongSumLength)
	if _, err := bw.Write(hdr[:]); err != nil {
		return errors.Wrapf(err, "failed writing signature header")
	}

	var weak [4]byte
	for i, p := range pairs {
		if len(p.Strong) < int(strongSumLength) {
			return errors.Wrapf(ErrFormat, "pair %d has a %d byte strong sum, want %d", i, len(p.Strong), strongSumLength)
		}
		binary.BigEndian.PutUint32(weak[:], p.Weak)
		bw.Write(weak[:])
		if _, err := bw.Write(p.Strong[:strongSumLength]); err != nil {
			return errors.Wrapf(err, "failed writing signature %d", i)
		}
	}

	return errors.Wrapf(bw.Flush(), "failed writing signatures")
}

// ReadSignatures reads a signature stream. A final record shorter than a
// weak sum plus a strong sum is taken as the end of the stream.
func ReadSignatures(r io.Reader) (*Signature, error) {
	var hdr [12]byte
	n, err := io.ReadFull(r, hdr[:])
	if n >= 4 {
		if magic := binary.BigEndian.Uint32(hdr[0:]); magic != SigMagic {
			return nil, errors.Wrapf(ErrFormat, "bad signature header: 0x%08x", magic)
		}
	}
	if err != nil {
		return nil, readError(err, "failed reading signature header")
	}

	sig := &Signature{
		BlockLength:     binary.BigEndian.Uint32(hdr[4:]),
		StrongSumLength: binary.BigEndian.Uint32(hdr[8:]),
	}
	if sig.BlockLength == 0 {
		return nil, errors.Wrap(ErrFormat, "signature block length is zero")
	}
	if sig.StrongSumLength == 0 || sig.StrongSumLength > maxStrongSumLength {
		return nil, errors.Wrapf(ErrFormat, "bad signature strong sum length: %d", sig.StrongSumLength)
	}

	record := make([]byte, 4+sig.StrongSumLength)
	for i := uint32(0); ; i++ {
		if _, err := io.ReadFull(r, record); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, errors.Wrapf(err, "failed reading signature %d", i)
		}
		sig.Pairs = append(sig.Pairs, ChecksumPair{
			Weak:   binary.BigEndian.Uint32(record),
			Strong: append([]byte(nil), record[4:]...),
			Offset: int64(i) * int64(sig.BlockLength),
			Length: sig.BlockLength,
			Seq:    i,
		})
	}

	return sig, nil
}

// WriteDeltas writes a delta stream. Deltas are written in the given order,
// which must be ascending write offset: readers recompute write offsets as
// the running total of delta lengths.
func WriteDeltas(w io.Writer, deltas []Delta) error {
	bw := bufio.NewWriter(w)

	var buf [9]byte
	binary.BigEndian.PutUint32(buf[:], DeltaMagic)
	if _, err := bw.Write(buf[:4]); err != nil {
		return errors.Wrapf(err, "failed writing delta header")
	}

	for i, d := range deltas {
		var hdr []byte
		switch d := d.(type) {
		case Literal:
			n := uint64(len(d.Data))
			switch integerLength(n) {
			case 1:
				hdr = append(buf[:0], opLiteralN1, byte(n))
			case 2:
				hdr = append(buf[:0], opLiteralN2)
				hdr = binary.BigEndian.AppendUint16(hdr, uint16(n))
			case 4:
				hdr = append(buf[:0], opLiteralN4)
				hdr = binary.BigEndian.AppendUint32(hdr, uint32(n))
			default:
				return errors.Wrapf(ErrFormat, "literal %d is too long: %d bytes", i, n)
			}
			bw.Write(hdr)
			if _, err := bw.Write(d.Data); err != nil {
				return errors.Wrapf(err, "failed writing literal %d", i)
			}
		case Copy:
			if d.OldOffset < 0 || d.OldOffset > math.MaxUint32 {
				return errors.Wrapf(ErrFormat, "copy %d offset %d does not fit in 32 bits", i, d.OldOffset)
			}
			hdr = append(buf[:0], opCopyN4N4)
			hdr = binary.BigEndian.AppendUint32(hdr, uint32(d.OldOffset))
			hdr = binary.BigEndian.AppendUint32(hdr, d.Length)
			if _, err := bw.Write(hdr); err != nil {
				return errors.Wrapf(err, "failed writing copy %d", i)
			}
		default:
			return errors.Wrapf(ErrFormat, "delta %d has unknown type %T", i, d)
		}
	}

	if err := bw.WriteByte(opEnd); err != nil {
		return errors.Wrapf(err, "failed writing end of deltas")
	}
	return errors.Wrapf(bw.Flush(), "failed writing deltas")
}

// ReadDeltas reads a delta stream up to and including its end opcode.
func ReadDeltas(r io.Reader) ([]Delta, error) {
	var buf [8]byte
	n, err := io.ReadFull(r, buf[:4])
	if n == 4 {
		if magic := binary.BigEndian.Uint32(buf[:]); magic != DeltaMagic {
			return nil, errors.Wrapf(ErrFormat, "bad delta header: 0x%08x", magic)
		}
	}
	if err != nil {
		return nil, readError(err, "failed reading delta header")
	}

	var (
		deltas []Delta
		offset int64
	)
	for {
		if _, err := io.ReadFull(r, buf[:1]); err != nil {
			return nil, readError(err, "missing end of deltas after %d deltas", len(deltas))
		}

		switch op := buf[0]; op {
		case opEnd:
			return deltas, nil
		case opLiteralN1, opLiteralN2, opLiteralN4:
			width := 1 << (op - opLiteralN1)
			length, err := readInt(r, buf[:width])
			if err != nil {
				return nil, readError(err, "failed reading literal length at offset %d", offset)
			}
			var data bytes.Buffer
			if _, err := io.CopyN(&data, r, int64(length)); err != nil {
				return nil, readError(err, "failed reading %d literal bytes at offset %d", length, offset)
			}
			deltas = append(deltas, Literal{Offset: offset, Data: data.Bytes()})
			offset += int64(length)
		case opCopyN4N4:
			if _, err := io.ReadFull(r, buf[:8]); err != nil {
				return nil, readError(err, "failed reading copy at offset %d", offset)
			}
			c := Copy{
				OldOffset: int64(binary.BigEndian.Uint32(buf[0:])),
				NewOffset: offset,
				Length:    binary.BigEndian.Uint32(buf[4:]),
			}
			deltas = append(deltas, c)
			offset += int64(c.Length)
		default:
			return nil, errors.Wrapf(ErrFormat, "bad delta command: 0x%02x", op)
		}
	}
}

// integerLength returns whether n needs 1, 2, 4 or 8 bytes.
func integerLength(n uint64) int {
	switch {
	case n&^0xff == 0:
		return 1
	case n&^0xffff == 0:
		return 2
	case n&^0xffffffff == 0:
		return 4
	}
	return 8
}

// readInt reads a big-endian integer of len(buf) bytes.
func readInt(r io.Reader, buf []byte) (uint64, error) {
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	var v uint64
	for _, b := range buf {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

// readError classifies a failed read: running out of input is a truncation,
// anything else is passed on as an I/O error.
func readError(err error, format string, args ...interface{}) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrapf(ErrTruncated, format, args...)
	}
	return errors.Wrapf(err, format, args...)
}
