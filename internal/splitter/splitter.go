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

// Package splitter walks an N-free sequence run and groups its k-mers
// into super-k-mers by shared minimizer signature (spec.md §4.5), routing
// each to the bin its signature maps to.
package splitter

import (
	"github.com/kmerbin/kmerbin"
	"github.com/kmerbin/kmerbin/internal/sigmap"
)

// Emitted is one super-k-mer ready for the bin collector (C6).
type Emitted struct {
	Bin       int
	SuperKmer kmerbin.SuperKmer
}

// Splitter groups consecutive k-mers of one N-free sequence into
// super-k-mers sharing a minimizer signature.
type Splitter struct {
	K      int
	SigLen int
	SigMap *sigmap.Map
}

// New returns a Splitter for the given k-mer size, signature length, and
// signature->bin map.
func New(k, sigLen int, sm *sigmap.Map) *Splitter {
	return &Splitter{K: k, SigLen: sigLen, SigMap: sm}
}

// runKey identifies which super-k-mer run a k-window belongs to: either a
// specific allowed signature, or "no allowed signature in this window".
type runKey struct {
	ok  bool
	sig uint64
}

// Split walks bases (already N-free — see ioread.SplitOnN) and returns
// every super-k-mer it contains, in left-to-right order.
func (s *Splitter) Split(bases []byte) []Emitted {
	k := s.K
	if len(bases) < k {
		return nil
	}

	win := kmerbin.NewMinimizerWindow(s.SigLen, k-s.SigLen+1)
	var out []Emitted

	maxLen := k + kmerbin.MaxSuperKmerExtra
	runStart := 0
	var run runKey
	haveRun := false

	binFor := func(rk runKey) int {
		if !rk.ok {
			return sigmap.DisallowedBin(s.SigMap.NBins)
		}
		return s.SigMap.BinOf(rk.sig)
	}

	flush := func(end int) {
		if !haveRun {
			return
		}
		bin := binFor(run)
		start := runStart
		for end-start > maxLen {
			sk, err := kmerbin.NewSuperKmer(bases[start:start+maxLen], k)
			if err == nil {
				out = append(out, Emitted{Bin: bin, SuperKmer: sk})
			}
			start += maxLen - (k - 1)
		}
		if end > start {
			sk, err := kmerbin.NewSuperKmer(bases[start:end], k)
			if err == nil {
				out = append(out, Emitted{Bin: bin, SuperKmer: sk})
			}
		}
	}

	// the first k-window's sig_len-mers before its last one; the loop
	// below pushes one more per window.
	for p := 0; p < k-s.SigLen; p++ {
		if code, err := kmerbin.Encode(bases[p : p+s.SigLen]); err == nil {
			win.Push(code, p)
		}
	}
	for i := 0; i+k <= len(bases); i++ {
		sigPos := i + k - s.SigLen
		code, err := kmerbin.Encode(bases[sigPos : sigPos+s.SigLen])
		if err != nil {
			continue
		}
		win.Push(code, sigPos)
		if win.Expired(i) {
			win.Rescan(i)
		}

		var cur runKey
		if sig, _, ok := win.Min(); ok {
			cur = runKey{ok: true, sig: sig}
		}

		switch {
		case !haveRun:
			runStart = i
			run = cur
			haveRun = true
		case cur != run:
			flush(i + k - 1)
			runStart = i
			run = cur
		}
	}
	flush(len(bases))
	return out
}
