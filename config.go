// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rdiff

import (
	"encoding"
	"hash"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// DefaultBlockLength is the default signature block length.
	DefaultBlockLength = 1024
	// DefaultStrongSumLength is the default number of strong digest bytes kept per block.
	DefaultStrongSumLength = 8
	// DefaultChunkSize is the default read size used while matching.
	DefaultChunkSize = 32 * 1024
)

// Configuration bundles the parameters and checksum state shared by the
// generator, the matcher and the codec. It is immutable once built, but the
// strong hash and the rolling checksum it carries are stateful, so a
// Configuration must not be used by two operations at once. Use Clone to
// get an independent copy.
type Configuration struct {
	blockLength     uint32
	strongSumLength uint32
	chunkSize       uint32
	checksumSeed    []byte
	doRunLength     bool

	hashName  string
	newStrong func() hash.Hash
	strong    hash.Hash
	weak      *RollingChecksum
	digest    []byte

	log zerolog.Logger
}

// Option configures a Configuration.
type Option func(*Configuration) error

// WithBlockLength sets the signature block length.
func WithBlockLength(n uint32) Option {
	return func(c *Configuration) error {
		c.blockLength = n
		return nil
	}
}

// WithStrongSumLength sets how many strong digest bytes are kept per block.
func WithStrongSumLength(n uint32) Option {
	return func(c *Configuration) error {
		c.strongSumLength = n
		return nil
	}
}

// WithChunkSize sets the read size used while matching.
func WithChunkSize(n uint32) Option {
	return func(c *Configuration) error {
		c.chunkSize = n
		return nil
	}
}

// WithChecksumSeed appends seed to every strong hash input.
func WithChecksumSeed(seed []byte) Option {
	return func(c *Configuration) error {
		if len(seed) == 0 {
			c.checksumSeed = nil
			return nil
		}
		c.checksumSeed = append([]byte(nil), seed...)
		return nil
	}
}

// WithRunLength records the run-length flag. It is carried for
// compatibility only; deltas are never run-length encoded.
func WithRunLength(on bool) Option {
	return func(c *Configuration) error {
		c.doRunLength = on
		return nil
	}
}

// WithStrongHash injects a strong hash constructor under the given name.
func WithStrongHash(name string, fn func() hash.Hash) Option {
	return func(c *Configuration) error {
		if fn == nil {
			return errors.Wrapf(ErrConfiguration, "nil constructor for strong hash %q", name)
		}
		c.hashName = name
		c.newStrong = fn
		return nil
	}
}

// WithStrongHashName selects one of the strong hashes listed by StrongHashNames.
func WithStrongHashName(name string) Option {
	return func(c *Configuration) error {
		fn, err := lookupStrongHash(name)
		if err != nil {
			return err
		}
		c.hashName = name
		c.newStrong = fn
		return nil
	}
}

// WithLogger sets the logger used for debug events. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Configuration) error {
		c.log = l
		return nil
	}
}

// NewConfiguration builds a Configuration from the defaults and opts.
func NewConfiguration(opts ...Option) (*Configuration, error) {
	c := &Configuration{
		blockLength:     DefaultBlockLength,
		strongSumLength: DefaultStrongSumLength,
		chunkSize:       DefaultChunkSize,
		hashName:        DefaultStrongHash,
		newStrong:       strongHashes[DefaultStrongHash],
		log:             zerolog.Nop(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.blockLength == 0 {
		return nil, errors.Wrap(ErrConfiguration, "block length must be positive")
	}
	if c.chunkSize == 0 {
		return nil, errors.Wrap(ErrConfiguration, "chunk size must be positive")
	}
	if c.strongSumLength == 0 {
		return nil, errors.Wrap(ErrConfiguration, "strong sum length must be positive")
	}

	c.strong = c.newStrong()
	if c.strong == nil {
		return nil, errors.Wrapf(ErrConfiguration, "strong hash %q is not available", c.hashName)
	}
	if int(c.strongSumLength) > c.strong.Size() {
		return nil, errors.Wrapf(ErrConfiguration, "strong sum length %d exceeds %s digest size %d",
			c.strongSumLength, c.hashName, c.strong.Size())
	}
	c.weak = NewRollingChecksum()
	c.digest = make([]byte, 0, c.strong.Size())

	return c, nil
}

// BlockLength returns the signature block length.
func (c *Configuration) BlockLength() uint32 { return c.blockLength }

// StrongSumLength returns the number of strong digest bytes kept per block.
func (c *Configuration) StrongSumLength() uint32 { return c.strongSumLength }

// ChunkSize returns the read size used while matching.
func (c *Configuration) ChunkSize() uint32 { return c.chunkSize }

// ChecksumSeed returns a copy of the checksum seed, or nil.
func (c *Configuration) ChecksumSeed() []byte {
	if c.checksumSeed == nil {
		return nil
	}
	return append([]byte(nil), c.checksumSeed...)
}

// DoRunLength returns the run-length flag.
func (c *Configuration) DoRunLength() bool { return c.doRunLength }

// StrongHashName returns the name of the configured strong hash.
func (c *Configuration) StrongHashName() string { return c.hashName }

// Logger returns the configured logger.
func (c *Configuration) Logger() zerolog.Logger { return c.log }

// Clone returns a Configuration that shares scalar settings with c but owns
// its own strong hash and rolling checksum state.
func (c *Configuration) Clone() *Configuration {
	d := *c
	d.checksumSeed = c.ChecksumSeed()
	d.weak = c.weak.Clone()
	d.digest = make([]byte, 0, cap(c.digest))
	d.strong = c.newStrong()

	// Carry over any bytes already written to the hash when its state can
	// be exported; otherwise the clone starts from a reset hash.
	m, ok := c.strong.(encoding.BinaryMarshaler)
	u, ok2 := d.strong.(encoding.BinaryUnmarshaler)
	if ok && ok2 {
		if state, err := m.MarshalBinary(); err == nil {
			if err := u.UnmarshalBinary(state); err != nil {
				d.strong.Reset()
			}
		}
	}
	return &d
}

// derive returns a clone with the wire parameters of a signature stream.
func (c *Configuration) derive(blockLength, strongSumLength uint32) (*Configuration, error) {
	if int(strongSumLength) > c.strong.Size() {
		return nil, errors.Wrapf(ErrConfiguration, "signature strong sum length %d exceeds %s digest size %d",
			strongSumLength, c.hashName, c.strong.Size())
	}
	d := c.Clone()
	d.blockLength = blockLength
	d.strongSumLength = strongSumLength
	return d, nil
}

// strongSum hashes block followed by the seed and appends the truncated
// digest to dst.
func (c *Configuration) strongSum(dst, block []byte) []byte {
	c.strong.Reset()
	c.strong.Write(block)
	if c.checksumSeed != nil {
		c.strong.Write(c.checksumSeed)
	}
	c.digest = c.strong.Sum(c.digest[:0])
	return append(dst, c.digest[:c.strongSumLength]...)
}
