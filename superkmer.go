// Copyright © 2018-2020 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package kmerbin

import "fmt"

// MaxSuperKmerExtra is the largest (length-k) a single super-k-mer may
// carry; the header byte that stores it is one byte wide (spec.md §4.5).
const MaxSuperKmerExtra = 254

// ErrSuperKmerTooLong means length-k would not fit in the header byte.
var ErrSuperKmerTooLong = fmt.Errorf("kmerbin: super-k-mer longer than k+%d", MaxSuperKmerExtra)

// SuperKmer is a maximal run of consecutive k-mers sharing one minimizer
// signature (spec.md §3). Packed holds the full run: K + Header bases,
// 2-bit packed MSB-first.
type SuperKmer struct {
	K      int
	Header uint8 // length - K
	Packed []byte
}

// NewSuperKmer packs bases (length K..K+254) into a SuperKmer.
func NewSuperKmer(bases []byte, k int) (SuperKmer, error) {
	extra := len(bases) - k
	if extra < 0 || extra > MaxSuperKmerExtra {
		return SuperKmer{}, ErrSuperKmerTooLong
	}
	packed, err := PackBases(bases)
	if err != nil {
		return SuperKmer{}, err
	}
	return SuperKmer{K: k, Header: uint8(extra), Packed: packed}, nil
}

// Length returns the number of bases the super-k-mer spans.
func (s SuperKmer) Length() int { return s.K + int(s.Header) }

// NumKmers returns length - k + 1, the number of consecutive k-mers this
// super-k-mer encodes.
func (s SuperKmer) NumKmers() int { return int(s.Header) + 1 }

// Bases unpacks the super-k-mer back into its raw base sequence.
func (s SuperKmer) Bases() []byte {
	return UnpackBases(s.Packed, s.Length())
}

// KmerAt returns the KmerCode of the i-th (0-based) k-mer within the
// super-k-mer run.
func (s SuperKmer) KmerAt(i int) (KmerCode, error) {
	if i < 0 || i > int(s.Header) {
		return KmerCode{}, fmt.Errorf("kmerbin: k-mer index %d out of range [0,%d]", i, s.Header)
	}
	code := ExtractCode(s.Packed, i, s.K)
	return KmerCode{Code: code, K: s.K}, nil
}

// PackBases 2-bit packs a base sequence, MSB-first, zero-padding the final
// byte's low bits when len(bases) isn't a multiple of four.
func PackBases(bases []byte) ([]byte, error) {
	n := len(bases)
	out := make([]byte, (n+3)/4)
	for i, b := range bases {
		code, ok := baseCode(b)
		if !ok {
			return nil, ErrIllegalBase
		}
		byteIdx := i / 4
		shift := uint(6 - (i%4)*2)
		out[byteIdx] |= code << shift
	}
	return out, nil
}

// UnpackBases inverts PackBases, returning exactly n bases.
func UnpackBases(packed []byte, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		byteIdx := i / 4
		shift := uint(6 - (i%4)*2)
		code := (packed[byteIdx] >> shift) & 3
		out[i] = bit2base[code]
	}
	return out
}

// ExtractCode reads the k bases starting at base offset start (0-based)
// from a PackBases-packed buffer and returns them as a KmerCode-compatible
// packed uint64 (requires k <= 32).
func ExtractCode(packed []byte, start, k int) uint64 {
	var code uint64
	for i := 0; i < k; i++ {
		pos := start + i
		byteIdx := pos / 4
		shift := uint(6 - (pos%4)*2)
		b := (packed[byteIdx] >> shift) & 3
		code = code<<2 | uint64(b)
	}
	return code
}
