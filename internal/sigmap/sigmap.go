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

// Package sigmap builds the dense signature->bin map from a signature
// frequency histogram, per spec.md §4.4's greedy bin-packing algorithm.
package sigmap

import (
	"github.com/twotwotwo/sorts"

	"github.com/kmerbin/kmerbin"
	"github.com/kmerbin/kmerbin/internal/sigstats"
)

// biasCount prevents empty or near-empty signatures from all clustering
// into one bin (spec.md §4.4: "Bias each count by +1000").
const biasCount = 1000

// DisallowedBin is the bin id every disallowed signature (and the
// histogram's sentinel bucket) maps to; it is always reserved, even if no
// disallowed signature is ever actually observed.
func DisallowedBin(nBins int) int { return nBins - 1 }

// Map is the dense signature->bin_id lookup the splitter and completer
// both use.
type Map struct {
	SigLen int
	NBins  int
	table  []int32
}

// BinOf returns the bin a signature routes to.
func (m *Map) BinOf(sig uint64) int { return int(m.table[sig]) }

// Table returns the raw signature->bin array (index = signature code,
// value = bin id, plus one trailing sentinel slot holding DisallowedBin),
// for serializing into the prefix file.
func (m *Map) Table() []int32 { return m.table }

// sigCount pairs a signature with its biased histogram count; sigCountSlice
// sorts descending by count so the greedy packer below sees the heaviest
// signatures first.
type sigCount struct {
	sig   uint64
	count uint64
}

type sigCountSlice []sigCount

func (s sigCountSlice) Len() int           { return len(s) }
func (s sigCountSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s sigCountSlice) Less(i, j int) bool { return s[i].count > s[j].count }

// Build runs the greedy packer from spec.md §4.4 over h and returns a Map
// with nBins buckets (one of which, DisallowedBin(nBins), is reserved for
// signatures AllowedSignature rejects).
func Build(h *sigstats.Histogram, nBins int) *Map {
	if nBins < 2 {
		nBins = 2
	}
	n := kmerbin.NumSignatures(h.SigLen)
	m := &Map{SigLen: h.SigLen, NBins: nBins, table: make([]int32, n+1)}
	m.table[n] = int32(DisallowedBin(nBins)) // sentinel slot

	allowed := make(sigCountSlice, 0, n)
	for sig := uint64(0); sig < n; sig++ {
		if !kmerbin.AllowedSignature(sig, h.SigLen) {
			m.table[sig] = int32(DisallowedBin(nBins))
			continue
		}
		c := uint64(0)
		if sig < uint64(len(h.Counts)) {
			c = h.Counts[sig]
		}
		allowed = append(allowed, sigCount{sig, c + biasCount})
	}
	// sorts.Sort parallel-sorts the histogram by descending count, the
	// same goroutine-sharded sort.Interface sort the teacher's cmd
	// package uses ahead of its own large-slice sorts.
	sorts.Sort(allowed)

	usableBins := nBins - 1 // last bin reserved for the disallowed sentinel
	if usableBins < 1 {
		usableBins = 1
	}

	bin := 0
	remaining := allowed
	for len(remaining) > 0 && bin < usableBins {
		binsLeft := usableBins - bin
		var sum uint64
		for _, sc := range remaining {
			sum += sc.count
		}
		mean := sum / uint64(binsLeft)
		target := mean + mean/10 // 1.1 * mean

		head := remaining[0]
		if head.count > mean {
			m.table[head.sig] = int32(bin)
			remaining = remaining[1:]
			bin++
			continue
		}

		var acc uint64
		j := 0
		for j < len(remaining) {
			if acc+remaining[j].count > target && j > 0 {
				break
			}
			acc += remaining[j].count
			m.table[remaining[j].sig] = int32(bin)
			j++
		}
		if j == 0 {
			// target smaller than even one signature's bias; avoid an
			// infinite loop by always placing at least the head.
			m.table[remaining[0].sig] = int32(bin)
			j = 1
		}
		remaining = remaining[j:]
		bin++
	}
	// any leftover signatures (shouldn't normally happen) go to the last
	// usable bin rather than being dropped.
	for _, sc := range remaining {
		m.table[sc.sig] = int32(usableBins - 1)
	}
	return m
}
