// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rdiff

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/hooklift/assert"
)

func signatureStream(t *testing.T, data []byte, opts ...Option) ([]ChecksumPair, []byte) {
	t.Helper()
	c := newConfig(t, opts...)
	pairs := NewGenerator(c).GenerateSums(data, 0)

	buf := new(bytes.Buffer)
	assert.Ok(t, WriteSignatures(buf, c.BlockLength(), c.StrongSumLength(), pairs))
	return pairs, buf.Bytes()
}

func TestSignatureRoundTrip(t *testing.T) {
	pairs, stream := signatureStream(t, srand(1, 10000), WithBlockLength(512), WithStrongSumLength(12))
	assert.Equals(t, 12+len(pairs)*(4+12), len(stream))
	assert.Equals(t, SigMagic, binary.BigEndian.Uint32(stream))

	sig, err := ReadSignatures(bytes.NewReader(stream))
	assert.Ok(t, err)
	assert.Equals(t, uint32(512), sig.BlockLength)
	assert.Equals(t, uint32(12), sig.StrongSumLength)
	assert.Equals(t, len(pairs), len(sig.Pairs))
	for i, p := range sig.Pairs {
		assert.Cond(t, p.Equal(pairs[i]), "pair %d differs: %v != %v", i, p, pairs[i])
		assert.Equals(t, pairs[i].Offset, p.Offset)
		assert.Equals(t, pairs[i].Seq, p.Seq)
	}
}

func TestSignatureHeaderOnly(t *testing.T) {
	_, stream := signatureStream(t, nil)
	assert.Equals(t, 12, len(stream))

	sig, err := ReadSignatures(bytes.NewReader(stream))
	assert.Ok(t, err)
	assert.Equals(t, uint32(DefaultBlockLength), sig.BlockLength)
	assert.Equals(t, 0, len(sig.Pairs))
}

func TestSignatureCorruptMagic(t *testing.T) {
	_, stream := signatureStream(t, srand(2, 4096))
	stream[0] ^= 0xff

	sig, err := ReadSignatures(bytes.NewReader(stream))
	assert.Cond(t, IsFormat(err), "expected a format error, got %v", err)
	assert.Cond(t, sig == nil, "no signature expected")
}

func TestSignatureSoftEOF(t *testing.T) {
	pairs, stream := signatureStream(t, srand(3, 3*1024))
	assert.Equals(t, 3, len(pairs))

	sig, err := ReadSignatures(bytes.NewReader(stream[:len(stream)-2]))
	assert.Ok(t, err)
	assert.Equals(t, 2, len(sig.Pairs))
	assert.Cond(t, sig.Pairs[1].Equal(pairs[1]), "second pair should survive")
}

func TestSignatureBadHeader(t *testing.T) {
	header := func(magic, blockLength, strongSumLength uint32) []byte {
		b := make([]byte, 12)
		binary.BigEndian.PutUint32(b[0:], magic)
		binary.BigEndian.PutUint32(b[4:], blockLength)
		binary.BigEndian.PutUint32(b[8:], strongSumLength)
		return b
	}

	tests := []struct {
		desc      string
		stream    []byte
		truncated bool
	}{
		{"empty stream", nil, true},
		{"magic only", header(SigMagic, 1024, 8)[:4], true},
		{"short header", header(SigMagic, 1024, 8)[:9], true},
		{"short bad magic", []byte{1, 2, 3, 4, 5}, false},
		{"zero block length", header(SigMagic, 0, 8), false},
		{"zero strong sum length", header(SigMagic, 1024, 0), false},
		{"strong sum too long", header(SigMagic, 1024, 65), false},
		{"delta magic", header(DeltaMagic, 1024, 8), false},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := ReadSignatures(bytes.NewReader(tt.stream))
			if tt.truncated {
				assert.Cond(t, IsTruncated(err), "expected a truncation error, got %v", err)
			} else {
				assert.Cond(t, IsFormat(err), "expected a format error, got %v", err)
			}
		})
	}
}

func TestWriteSignaturesShortStrongSum(t *testing.T) {
	pairs := []ChecksumPair{{Weak: 1, Strong: []byte{1, 2, 3}}}
	err := WriteSignatures(new(bytes.Buffer), 1024, 8, pairs)
	assert.Cond(t, IsFormat(err), "expected a format error, got %v", err)
}

func TestDeltaRoundTrip(t *testing.T) {
	deltas := []Delta{
		Copy{OldOffset: 4096, NewOffset: 0, Length: 1024},
		Literal{Offset: 1024, Data: []byte("x")},
		Literal{Offset: 1025, Data: srand(4, 300)},
		Copy{OldOffset: 0, NewOffset: 1325, Length: 700},
		Literal{Offset: 2025, Data: srand(5, 70000)},
		Copy{OldOffset: 1<<32 - 1, NewOffset: 72025, Length: 1},
	}

	buf := new(bytes.Buffer)
	assert.Ok(t, WriteDeltas(buf, deltas))

	got, err := ReadDeltas(buf)
	assert.Ok(t, err)
	assert.Equals(t, deltas, got)
}

func TestDeltaWireBytes(t *testing.T) {
	deltas := []Delta{
		Literal{Offset: 0, Data: []byte("hi")},
		Copy{OldOffset: 0x0102, NewOffset: 2, Length: 5},
	}

	buf := new(bytes.Buffer)
	assert.Ok(t, WriteDeltas(buf, deltas))
	assert.Equals(t, []byte{
		0x72, 0x73, 0x02, 0x36,
		0x41, 0x02, 'h', 'i',
		0x4f, 0x00, 0x00, 0x01, 0x02, 0x00, 0x00, 0x00, 0x05,
		0x00,
	}, buf.Bytes())

	buf.Reset()
	assert.Ok(t, WriteDeltas(buf, nil))
	assert.Equals(t, []byte{0x72, 0x73, 0x02, 0x36, 0x00}, buf.Bytes())
}

func TestLiteralLengthWidth(t *testing.T) {
	tests := []struct {
		size   int
		header []byte
	}{
		{1, []byte{0x41, 0x01}},
		{255, []byte{0x41, 0xff}},
		{256, []byte{0x42, 0x01, 0x00}},
		{65535, []byte{0x42, 0xff, 0xff}},
		{65536, []byte{0x43, 0x00, 0x01, 0x00, 0x00}},
	}

	for _, tt := range tests {
		buf := new(bytes.Buffer)
		lit := Literal{Data: srand(int64(tt.size), tt.size)}
		assert.Ok(t, WriteDeltas(buf, []Delta{lit}))

		b := buf.Bytes()
		assert.Equals(t, 4+len(tt.header)+tt.size+1, len(b))
		assert.Equals(t, tt.header, b[4:4+len(tt.header)])

		got, err := ReadDeltas(bytes.NewReader(b))
		assert.Ok(t, err)
		assert.Equals(t, []Delta{lit}, got)
	}
}

func TestReadDeltasErrors(t *testing.T) {
	valid := new(bytes.Buffer)
	err := WriteDeltas(valid, []Delta{
		Literal{Offset: 0, Data: []byte("hello")},
		Copy{OldOffset: 10, NewOffset: 5, Length: 20},
	})
	assert.Ok(t, err)
	stream := valid.Bytes()

	withOp := func(op ...byte) []byte {
		return append(append([]byte{}, stream[:4]...), op...)
	}

	tests := []struct {
		desc      string
		stream    []byte
		truncated bool
	}{
		{"empty stream", nil, true},
		{"short header", stream[:3], true},
		{"missing end", stream[:len(stream)-1], true},
		{"short literal", stream[:8], true},
		{"short literal length", withOp(0x42, 0x01), true},
		{"short copy", stream[:len(stream)-4], true},
		{"bad magic", append([]byte{0, 0, 0, 0}, stream[4:]...), false},
		{"signature magic", append([]byte{0x72, 0x73, 0x01, 0x36}, stream[4:]...), false},
		{"eight byte literal", withOp(0x44, 0, 0, 0, 0, 0, 0, 0, 1, 'x', 0), false},
		{"unknown command", withOp(0x01, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			deltas, err := ReadDeltas(bytes.NewReader(tt.stream))
			assert.Cond(t, deltas == nil, "no deltas expected on error")
			if tt.truncated {
				assert.Cond(t, IsTruncated(err), "expected a truncation error, got %v", err)
			} else {
				assert.Cond(t, IsFormat(err), "expected a format error, got %v", err)
			}
		})
	}
}

// bogus satisfies Delta without being one of its two kinds.
type bogus struct{ Literal }

func TestWriteDeltasErrors(t *testing.T) {
	tests := []struct {
		desc  string
		delta Delta
	}{
		{"negative copy offset", Copy{OldOffset: -1, Length: 1}},
		{"copy offset over 32 bits", Copy{OldOffset: 1 << 32, Length: 1}},
		{"unknown delta", bogus{}},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			err := WriteDeltas(new(bytes.Buffer), []Delta{tt.delta})
			assert.Cond(t, IsFormat(err), "expected a format error, got %v", err)
		})
	}
}

// TestStreamsThroughFacade checks that a delta stream made from a signature
// stream rebuilds the target, with the delta side configured only by what
// the signature carries.
func TestStreamsThroughFacade(t *testing.T) {
	ctx := context.Background()
	basis := srand(6, 20000)
	target := append(append(srand(7, 500), basis[:9000]...), basis[12000:]...)

	sig := new(bytes.Buffer)
	sender := New(newConfig(t, WithBlockLength(300), WithStrongSumLength(16)))
	assert.Ok(t, sender.Signature(ctx, bytes.NewReader(basis), sig))

	pairs, derived, err := New(newConfig(t)).ReadSignatures(bytes.NewReader(sig.Bytes()))
	assert.Ok(t, err)
	assert.Equals(t, uint32(300), derived.Config().BlockLength())
	assert.Equals(t, uint32(16), derived.Config().StrongSumLength())
	assert.Equals(t, (len(basis)+299)/300, len(pairs))

	delta := new(bytes.Buffer)
	assert.Ok(t, New(newConfig(t)).Delta(ctx, sig, bytes.NewReader(target), delta))

	out := new(bytes.Buffer)
	assert.Ok(t, New(newConfig(t)).Patch(ctx, bytes.NewReader(basis), delta, out))
	assert.Equals(t, target, out.Bytes())
}
