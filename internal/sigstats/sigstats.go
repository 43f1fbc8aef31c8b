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

// Package sigstats builds the minimizer-signature frequency histogram
// (spec.md §4.3) used to size the signature map before the main
// splitting pass starts.
package sigstats

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/kmerbin/kmerbin"
)

// DefaultByteBudget is the minimum prefix of (decompressed) input sampled
// before the statistics pass ends, per spec.md §4.3.
const DefaultByteBudget = 1 << 28

// Histogram counts, per signature code, how many super-k-mers in the
// sampled prefix would have routed to it. Index NumSignatures(sigLen)
// (one past the dense range) is the "disallowed signature" sentinel
// bucket. seen is a fixed-size Bloom filter used only to cheaply tell
// whether a signature is new to this histogram or already counted at
// least once, without a second pass over Counts.
type Histogram struct {
	SigLen  int
	Counts  []uint64
	seen    *bloom.BloomFilter
	distinc uint64
}

// NewHistogram allocates a zeroed histogram sized for sigLen. The Bloom
// filter is sized off the dense signature space so its false-positive
// rate stays near the configured 1% even when every allowed signature
// in that space actually appears in the sample.
func NewHistogram(sigLen int) *Histogram {
	n := kmerbin.NumSignatures(sigLen)
	return &Histogram{
		SigLen: sigLen,
		Counts: make([]uint64, n+1),
		seen:   bloom.NewWithEstimates(uint(n)+1, 0.01),
	}
}

// DistinctSignatures returns how many distinct signatures this histogram
// has observed at least once, per the Bloom filter's membership test —
// an approximate count (subject to the filter's false-positive rate) that
// the pipeline reports in its sampling log line.
func (h *Histogram) DistinctSignatures() uint64 { return h.distinc }

func (h *Histogram) markSeen(sig uint64) {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], sig)
	if !h.seen.Test(key[:]) {
		h.seen.Add(key[:])
		h.distinc++
	}
}

// sentinel is the bucket index for k-mer windows with no allowed
// signature (e.g. shorter than sigLen after an N split).
func (h *Histogram) sentinel() int { return len(h.Counts) - 1 }

// Sample walks one N-free sequence run, incrementing the histogram once
// per super-k-mer the main splitter would later emit: each time the
// minimizer for the current k-window changes, that's one super-k-mer
// boundary.
func (h *Histogram) Sample(bases []byte, k int) {
	if len(bases) < k {
		return
	}
	win := kmerbin.NewMinimizerWindow(h.SigLen, k-h.SigLen+1)
	var lastSig uint64
	var lastValid bool

	for i := 0; i+h.SigLen <= len(bases); i++ {
		code, err := kmerbin.Encode(bases[i : i+h.SigLen])
		if err != nil {
			win.Reset()
			lastValid = false
			continue
		}
		win.Push(code, i)

		windowStart := i - (k - h.SigLen) // start of the current k-window's signature range
		if windowStart < 0 {
			continue // not yet a full k-window
		}
		if win.Expired(windowStart) {
			win.Rescan(windowStart)
		}
		sig, _, ok := win.Min()
		if !ok {
			h.Counts[h.sentinel()]++
			lastValid = false
			continue
		}
		if !lastValid || sig != lastSig {
			h.Counts[sig]++
			h.markSeen(sig)
			lastSig = sig
			lastValid = true
		}
	}
}

// Merge adds other's counts into h element-wise (spec.md §4.3: "Histograms
// merge by element-wise addition").
func (h *Histogram) Merge(other *Histogram) {
	for i, c := range other.Counts {
		h.Counts[i] += c
	}
	if err := h.seen.Merge(other.seen); err == nil {
		h.distinc = uint64(h.seen.ApproximatedSize())
	}
}

// Total returns the sum of all sampled counts.
func (h *Histogram) Total() uint64 {
	var sum uint64
	for _, c := range h.Counts {
		sum += c
	}
	return sum
}
