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

// CountedCode pairs a canonical k-mer code with its occurrence count, the
// record shape the small-k in-memory fast path and the bin completer both
// accumulate into before writing out the database.
type CountedCode struct {
	Code  uint64
	Count uint64
}

// CountedCodeSlice is a list of CountedCode, sortable by Code so that runs
// of the same k-mer are merged in one left-to-right pass.
type CountedCodeSlice []CountedCode

func (pairs CountedCodeSlice) Len() int      { return len(pairs) }
func (pairs CountedCodeSlice) Swap(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] }
func (pairs CountedCodeSlice) Less(i, j int) bool {
	return pairs[i].Code < pairs[j].Code
}
