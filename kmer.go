// Copyright © 2018 Wei Shen <shenwei356@gmail.com>
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

// Package kmerbin holds the k-mer representation shared by every stage of
// the counting pipeline: 2-bit encoding, canonicalization, and the packed
// super-k-mer / k+x-mer record layouts. Stage packages under internal/
// build on these types without depending on each other.
package kmerbin

import "errors"

// ErrIllegalBase means a byte outside {A,C,G,T} (and IUPAC degenerate
// symbols, which collapse to their first listed base) was seen.
var ErrIllegalBase = errors.New("kmerbin: illegal base")

// ErrKOverflow means K is outside [1, 32].
var ErrKOverflow = errors.New("kmerbin: K (1-32) overflow")

// ErrKMismatch means two KmerCodes have different K.
var ErrKMismatch = errors.New("kmerbin: K mismatch")

// MaxK is the largest k-mer size a single uint64 code can hold.
const MaxK = 32

// Encode packs a k-mer (k in [1,32]) into the low 2*k bits of a uint64,
// big-end-first so that lexicographic order of the bases equals unsigned
// order of the packed code.
//
// Codes:
//
//	  A    00
//	  C    01
//	  G    10
//	  T    11
//
// For degenerate IUPAC bases, only the first listed base is kept:
//
//	M AC->A  V ACG->A  H ACT->A  R AG->A  D AGT->A  W AT->A
//	S CG->C  B CGT->C  Y CT->C   K GT->G  N ACGT->A
func Encode(kmer []byte) (code uint64, err error) {
	k := len(kmer)
	if k == 0 || k > MaxK {
		return 0, ErrKOverflow
	}
	for i := range kmer {
		b, ok := baseCode(kmer[k-1-i])
		if !ok {
			return code, ErrIllegalBase
		}
		code |= uint64(b) << uint(i*2)
	}
	return code, nil
}

func baseCode(b byte) (uint8, bool) {
	switch b {
	case 'A', 'a', 'N', 'n', 'M', 'm', 'V', 'v', 'H', 'h', 'R', 'r', 'D', 'd', 'W', 'w':
		return 0, true
	case 'C', 'c', 'S', 's', 'B', 'b', 'Y', 'y':
		return 1, true
	case 'G', 'g', 'K', 'k':
		return 2, true
	case 'T', 't', 'U', 'u':
		return 3, true
	default:
		return 0, false
	}
}

// Reverse returns the code of the reversed (not complemented) k-mer.
func Reverse(code uint64, k int) (c uint64) {
	if k <= 0 || k > MaxK {
		panic(ErrKOverflow)
	}
	for i := 0; i < k; i++ {
		c <<= 2
		c |= code & 3
		code >>= 2
	}
	return
}

// Complement returns the code of the complemented k-mer.
func Complement(code uint64, k int) (c uint64) {
	if k <= 0 || k > MaxK {
		panic(ErrKOverflow)
	}
	for i := 0; i < k; i++ {
		c |= (code&3 ^ 3) << uint(i<<1)
		code >>= 2
	}
	return
}

// RevComp returns the code of the reverse-complemented k-mer.
func RevComp(code uint64, k int) (c uint64) {
	if k <= 0 || k > MaxK {
		panic(ErrKOverflow)
	}
	for i := 0; i < k; i++ {
		c <<= 2
		c |= code&3 ^ 3
		code >>= 2
	}
	return
}

// Canonical returns min(code, RevComp(code, k)).
func Canonical(code uint64, k int) uint64 {
	rc := RevComp(code, k)
	if rc < code {
		return rc
	}
	return code
}

// bit2base maps a 2-bit code back to its base letter.
var bit2base = [4]byte{'A', 'C', 'G', 'T'}

// Decode converts a packed code back into its k-letter sequence.
func Decode(code uint64, k int) []byte {
	if k <= 0 || k > MaxK {
		panic(ErrKOverflow)
	}
	kmer := make([]byte, k)
	for i := 0; i < k; i++ {
		kmer[k-1-i] = bit2base[code&3]
		code >>= 2
	}
	return kmer
}

// KmerCode pairs a packed k-mer with its length.
type KmerCode struct {
	Code uint64
	K    int
}

// NewKmerCode encodes kmer into a KmerCode.
func NewKmerCode(kmer []byte) (KmerCode, error) {
	code, err := Encode(kmer)
	if err != nil {
		return KmerCode{}, err
	}
	return KmerCode{code, len(kmer)}, nil
}

// Equal reports whether two KmerCodes represent the same k-mer.
func (kc KmerCode) Equal(other KmerCode) bool {
	return kc.K == other.K && kc.Code == other.Code
}

// Rev returns the KmerCode of the reversed k-mer.
func (kc KmerCode) Rev() KmerCode { return KmerCode{Reverse(kc.Code, kc.K), kc.K} }

// Comp returns the KmerCode of the complemented k-mer.
func (kc KmerCode) Comp() KmerCode { return KmerCode{Complement(kc.Code, kc.K), kc.K} }

// RevComp returns the KmerCode of the reverse-complemented k-mer.
func (kc KmerCode) RevComp() KmerCode { return KmerCode{RevComp(kc.Code, kc.K), kc.K} }

// Canonical returns the lexicographically smaller of kc and its
// reverse-complement.
func (kc KmerCode) Canonical() KmerCode {
	rc := kc.RevComp()
	if rc.Code < kc.Code {
		return rc
	}
	return kc
}

// Bytes decodes the k-mer back into its []byte sequence.
func (kc KmerCode) Bytes() []byte { return Decode(kc.Code, kc.K) }

// String implements fmt.Stringer.
func (kc KmerCode) String() string { return string(Decode(kc.Code, kc.K)) }
