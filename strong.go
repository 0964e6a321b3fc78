// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rdiff

import (
	"crypto/md5"
	"hash"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/minio/sha256-simd"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/md4"
)

// DefaultStrongHash is the strong hash used when none is configured. MD4
// yields 128 bits, truncated to DefaultStrongSumLength on the wire.
const DefaultStrongHash = "md4"

// strongHashes lists the strong hash constructors selectable by name. Any
// other hash.Hash can be injected with WithStrongHash.
var strongHashes = map[string]func() hash.Hash{
	"md4":     md4.New,
	"md5":     md5.New,
	"sha256":  sha256.New,
	"blake2b": newBlake2b,
	"blake3":  func() hash.Hash { return blake3.New() },
	"xxhash":  func() hash.Hash { return xxhash.New() },
}

func newBlake2b() hash.Hash {
	// New256 only fails for keys longer than 64 bytes.
	h, _ := blake2b.New256(nil)
	return h
}

// StrongHashNames returns the names accepted by WithStrongHashName, sorted.
func StrongHashNames() []string {
	names := make([]string, 0, len(strongHashes))
	for name := range strongHashes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupStrongHash(name string) (func() hash.Hash, error) {
	fn, ok := strongHashes[name]
	if !ok {
		return nil, errors.Wrapf(ErrConfiguration, "strong hash %q is not available", name)
	}
	return fn, nil
}
