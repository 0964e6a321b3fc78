// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rdiff

import (
	"github.com/pkg/errors"
)

// Error classes returned by this package. Every returned error wraps one of
// these, or an underlying I/O error, so callers can test with errors.Cause.
var (
	// ErrFormat reports a wrong magic number, an unknown opcode or a value
	// that cannot be represented on the wire.
	ErrFormat = errors.New("rdiff: malformed stream")
	// ErrTruncated reports a delta stream or basis that ended before the data
	// it declared was read.
	ErrTruncated = errors.New("rdiff: truncated stream")
	// ErrConfiguration reports an invalid option or an unavailable strong hash.
	ErrConfiguration = errors.New("rdiff: invalid configuration")
)

// IsFormat reports whether err was caused by a malformed stream.
func IsFormat(err error) bool {
	return errors.Cause(err) == ErrFormat
}

// IsTruncated reports whether err was caused by a truncated stream.
func IsTruncated(err error) bool {
	return errors.Cause(err) == ErrTruncated
}
