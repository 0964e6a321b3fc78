// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rdiff

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/hooklift/assert"
	"github.com/pkg/profile"
)

var alpha = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789\n"

// srand generates a random string of fixed size.
func srand(seed int64, size int) []byte {
	buf := make([]byte, size)
	rnd := rand.New(rand.NewSource(seed))
	for i := 0; i < size; i++ {
		buf[i] = alpha[rnd.Intn(len(alpha))]
	}
	return buf
}

// newConfig builds a configuration or fails the test.
func newConfig(tb testing.TB, opts ...Option) *Configuration {
	tb.Helper()
	c, err := NewConfiguration(opts...)
	assert.Ok(tb, err)
	return c
}

// roundTrip runs basis and target through every step, including both wire
// formats, and returns the rebuilt target.
func roundTrip(tb testing.TB, rd *Rdiff, basis, target []byte) []byte {
	tb.Helper()
	ctx := context.Background()

	sig := new(bytes.Buffer)
	err := rd.Signature(ctx, bytes.NewReader(basis), sig)
	assert.Ok(tb, err)

	delta := new(bytes.Buffer)
	err = rd.Delta(ctx, sig, bytes.NewReader(target), delta)
	assert.Ok(tb, err)

	out := new(bytes.Buffer)
	err = rd.Patch(ctx, bytes.NewReader(basis), delta, out)
	assert.Ok(tb, err)

	return out.Bytes()
}

func TestSync(t *testing.T) {
	defer profile.Start(profile.ProfilePath(t.TempDir()), profile.Quiet).Stop()

	edited := srand(30, 512*1024)
	copy(edited[1000:], "inserted in place")
	edited = append(edited[:200000], append([]byte("a brand new run of bytes"), edited[200000:]...)...)
	edited = append(edited[:400000], edited[401000:]...)

	tests := []struct {
		desc   string
		source []byte
		cache  []byte
		hash   string
	}{
		{
			"full sync, no cache, 2mb file",
			srand(10, (2*1024)*1024),
			nil,
			"md4",
		},
		{
			"partial sync, 2mb cache, 5mb file",
			srand(20, (5*1024)*1024),
			srand(20, (2*1024)*1024),
			"md5",
		},
		{
			"edited file, 512kb cache",
			edited,
			srand(30, 512*1024),
			"blake3",
		},
		{
			"identical file",
			srand(40, 300*1024+17),
			srand(40, 300*1024+17),
			"sha256",
		},
		{
			"empty file",
			nil,
			srand(50, 4096),
			"xxhash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			rd := New(newConfig(t, WithStrongHashName(tt.hash)))

			target := roundTrip(t, rd, tt.cache, tt.source)
			assert.Cond(t, bytes.Equal(tt.source, target), "source and target files are different")
		})
	}
}

func TestIdentity(t *testing.T) {
	ctx := context.Background()
	for _, size := range []int{1, 100, 1023, 1024, 1025, 4096, 100000} {
		for _, bl := range []uint32{1, 16, 700, 1024} {
			t.Run(fmt.Sprintf("size %d block %d", size, bl), func(t *testing.T) {
				c := newConfig(t, WithBlockLength(bl), WithChunkSize(8192))
				basis := srand(int64(size), size)

				pairs := NewGenerator(c).GenerateSums(basis, 0)
				deltas, err := NewMatcher(c).HashSearchPairs(ctx, pairs, bytes.NewReader(basis))
				assert.Ok(t, err)

				out := new(bytes.Buffer)
				_, err = Rebuild(ctx, bytes.NewReader(basis), deltas, out)
				assert.Ok(t, err)
				assert.Cond(t, bytes.Equal(basis, out.Bytes()), "rebuilt data differs from basis")
			})
		}
	}
}

func TestSeededSync(t *testing.T) {
	basis := srand(60, 64*1024)
	target := append(srand(61, 3000), basis...)

	rd := New(newConfig(t, WithChecksumSeed([]byte{1, 2, 3, 4}), WithBlockLength(512)))
	assert.Equals(t, target, roundTrip(t, rd, basis, target))

	// A different seed on the delta side never confirms a block.
	pairs, err := rd.MakeSignatures(context.Background(), bytes.NewReader(basis))
	assert.Ok(t, err)
	other := New(newConfig(t, WithChecksumSeed([]byte{4, 3, 2, 1}), WithBlockLength(512)))
	deltas, err := other.MakeDeltas(context.Background(), pairs, bytes.NewReader(basis))
	assert.Ok(t, err)
	for _, d := range deltas {
		_, ok := d.(Literal)
		assert.Cond(t, ok, "unexpected delta %v", d)
	}
}

// TestConcurrentClones runs independent searches on clones of one
// configuration at the same time.
func TestConcurrentClones(t *testing.T) {
	c := newConfig(t, WithBlockLength(256))
	basis := srand(70, 128*1024)
	sigs := NewChecksumMap(NewGenerator(c).GenerateSums(basis, 0))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			target := append(srand(int64(100+i), 100), basis...)
			deltas, err := NewMatcher(c.Clone()).HashSearch(ctx, sigs, bytes.NewReader(target))
			if err != nil {
				errs[i] = err
				return
			}
			out := new(bytes.Buffer)
			if _, err := Rebuild(ctx, bytes.NewReader(basis), deltas, out); err != nil {
				errs[i] = err
				return
			}
			if !bytes.Equal(target, out.Bytes()) {
				errs[i] = fmt.Errorf("clone %d rebuilt different data", i)
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.Ok(t, err)
	}
}

func benchmarkBlockSize(b *testing.B, blockLength uint32) {
	c := newConfig(b, WithBlockLength(blockLength), WithChunkSize(4*blockLength))
	basis := srand(80, 4*1024*1024)
	target := append(srand(81, 4096), basis...)
	sigs := NewChecksumMap(NewGenerator(c).GenerateSums(basis, 0))
	m := NewMatcher(c)

	b.SetBytes(int64(len(target)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.HashSearch(context.Background(), sigs, bytes.NewReader(target)); err != nil {
			b.Fatal(err)
		}
	}
}

func Benchmark6kbBlockSize(b *testing.B)    { benchmarkBlockSize(b, 6*1024) }
func Benchmark128kbBlockSize(b *testing.B)  { benchmarkBlockSize(b, 128*1024) }
func Benchmark512kbBlockSize(b *testing.B)  { benchmarkBlockSize(b, 512*1024) }
func Benchmark1024kbBlockSize(b *testing.B) { benchmarkBlockSize(b, 1024*1024) }

func benchmarkStrongHash(b *testing.B, name string) {
	c := newConfig(b, WithStrongHashName(name))
	basis := srand(90, 4*1024*1024)
	g := NewGenerator(c)

	b.SetBytes(int64(len(basis)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.GenerateSums(basis, 0)
	}
}

func BenchmarkMD4(b *testing.B)     { benchmarkStrongHash(b, "md4") }
func BenchmarkMD5(b *testing.B)     { benchmarkStrongHash(b, "md5") }
func BenchmarkSHA256(b *testing.B)  { benchmarkStrongHash(b, "sha256") }
func BenchmarkBlake2b(b *testing.B) { benchmarkStrongHash(b, "blake2b") }
func BenchmarkBlake3(b *testing.B)  { benchmarkStrongHash(b, "blake3") }
func BenchmarkXXHash(b *testing.B)  { benchmarkStrongHash(b, "xxhash") }
