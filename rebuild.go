// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rdiff

import (
	"context"
	"io"
	"sort"

	"github.com/pkg/errors"
)

// copyBufferSize bounds each read from the basis.
const copyBufferSize = 32 * 1024

// Rebuild reconstructs new data from basis and deltas, writing it to out.
// Deltas are applied in write offset order regardless of the order they are
// given in; the slice itself is not modified. The number of bytes written
// is returned.
func Rebuild(ctx context.Context, basis io.ReadSeeker, deltas []Delta, out io.Writer) (int64, error) {
	sorted := make([]Delta, len(deltas))
	copy(sorted, deltas)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].WriteOffset() < sorted[j].WriteOffset()
	})

	buffer := make([]byte, copyBufferSize)
	var written int64

	for i, d := range sorted {
		// Allows for cancellation.
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		switch d := d.(type) {
		case Literal:
			n, err := out.Write(d.Data)
			written += int64(n)
			if err != nil {
				return written, errors.Wrapf(err, "failed writing literal %d", i)
			}
		case Copy:
			if basis == nil {
				return written, errors.New("rdiff: basis required")
			}
			if _, err := basis.Seek(d.OldOffset, io.SeekStart); err != nil {
				return written, errors.Wrapf(err, "failed seeking basis to %d", d.OldOffset)
			}
			n, err := copyBlock(out, basis, int64(d.Length), buffer)
			written += n
			if err != nil {
				return written, errors.Wrapf(err, "failed copying %d bytes from basis offset %d", d.Length, d.OldOffset)
			}
		default:
			return written, errors.Wrapf(ErrFormat, "delta %d has unknown type %T", i, d)
		}
	}

	return written, nil
}

// RebuildAt writes every delta at its own write offset in dst, so deltas may
// come in any order.
func RebuildAt(ctx context.Context, basis io.ReaderAt, deltas []Delta, dst io.WriterAt) error {
	buffer := make([]byte, copyBufferSize)

	for i, d := range deltas {
		// Allows for cancellation.
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		switch d := d.(type) {
		case Literal:
			if _, err := dst.WriteAt(d.Data, d.Offset); err != nil {
				return errors.Wrapf(err, "failed writing literal %d", i)
			}
		case Copy:
			if basis == nil {
				return errors.New("rdiff: basis required")
			}
			w := io.NewOffsetWriter(dst, d.NewOffset)
			r := io.NewSectionReader(basis, d.OldOffset, int64(d.Length))
			if _, err := copyBlock(w, r, int64(d.Length), buffer); err != nil {
				return errors.Wrapf(err, "failed copying %d bytes from basis offset %d", d.Length, d.OldOffset)
			}
		default:
			return errors.Wrapf(ErrFormat, "delta %d has unknown type %T", i, d)
		}
	}

	return nil
}

// copyBlock copies exactly n bytes from r to w through buffer, looping over
// short reads. A basis ending early is reported as ErrTruncated.
func copyBlock(w io.Writer, r io.Reader, n int64, buffer []byte) (int64, error) {
	var total int64
	for total < n {
		chunk := buffer[:min(int64(len(buffer)), n-total)]
		m, err := r.Read(chunk)
		if m > 0 {
			if _, werr := w.Write(chunk[:m]); werr != nil {
				return total, werr
			}
			total += int64(m)
		}
		if err == io.EOF {
			if total < n {
				return total, errors.Wrapf(ErrTruncated, "basis ended after %d of %d bytes", total, n)
			}
			break
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
