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

import (
	"bytes"
	"fmt"
)

// MaxExtension bounds how many trailing extension bases a k+x-mer record
// may carry (spec.md §3's "k+x-mer": a k-mer extended by up to max_x
// trailing bases, so that a run of the radix sort's k+x-mers can later be
// re-collapsed into one k-mer plus its distinct suffixes).
const MaxExtension = 255

// ErrExtensionTooLong means the number of trailing bases exceeds MaxExtension.
var ErrExtensionTooLong = fmt.Errorf("kmerbin: k+x-mer extension longer than %d", MaxExtension)

// KXmerRecord is the sortable unit the radix sort and merge stages work
// on: a k-mer prefix plus up to max_x real trailing bases. Key is the
// 2-bit packed prefix+extension, MSB-first, so that bytes.Compare on two
// Keys reproduces lexicographic order over the base sequence; X records
// how many of the trailing bases are real extension (as opposed to past
// the end of the originating super-k-mer).
type KXmerRecord struct {
	K   int
	X   uint8 // number of real extension bases, 0..MaxExtension
	Key []byte
}

// NewKXmerRecord packs a k-mer prefix plus its extension bases into a
// KXmerRecord. prefix must have length k; ext holds 0..MaxExtension bases.
func NewKXmerRecord(prefix, ext []byte, k int) (KXmerRecord, error) {
	if len(prefix) != k {
		return KXmerRecord{}, fmt.Errorf("kmerbin: prefix length %d != k %d", len(prefix), k)
	}
	if len(ext) > MaxExtension {
		return KXmerRecord{}, ErrExtensionTooLong
	}
	full := make([]byte, 0, len(prefix)+len(ext))
	full = append(full, prefix...)
	full = append(full, ext...)
	key, err := PackBases(full)
	if err != nil {
		return KXmerRecord{}, err
	}
	return KXmerRecord{K: k, X: uint8(len(ext)), Key: key}, nil
}

// Prefix returns the KmerCode of the record's k-mer prefix (requires k <= 32).
func (r KXmerRecord) Prefix() KmerCode {
	return KmerCode{Code: ExtractCode(r.Key, 0, r.K), K: r.K}
}

// Less reports whether r sorts before other: primarily by packed base
// content (Key), and for records whose Key is a strict prefix of the
// other's, the shorter one sorts first (bytes.Compare's length tie-break
// already gives this, since unused low bits of the last packed byte are
// zero).
func (r KXmerRecord) Less(other KXmerRecord) bool {
	return bytes.Compare(r.Key, other.Key) < 0
}

// KXmerRecordSlice adapts []KXmerRecord to sort.Interface, ordering
// records by Less.
type KXmerRecordSlice []KXmerRecord

func (s KXmerRecordSlice) Len() int           { return len(s) }
func (s KXmerRecordSlice) Less(i, j int) bool { return s[i].Less(s[j]) }
func (s KXmerRecordSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
