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

// ErrInvalidSigLen means sig_len is outside [5, 11].
var ErrInvalidSigLen = fmt.Errorf("kmerbin: signature length must be in [5, 11]")

// MinSigLen and MaxSigLen bound the minimizer signature length (spec.md §3).
const (
	MinSigLen = 5
	MaxSigLen = 11
)

// disallowed 3-prefixes and 3-suffixes for a minimizer signature, per
// spec.md §3: "Allowed minimizers exclude: those starting with AAA, ACA, or
// *AA, those containing AA internally, and those whose 3-suffix is TTT,
// TGT, or TG*."
//
// Encoded as 2-bit prefix/suffix codes of the *first two* and *last two*
// bases, since "*AA"/"TG*" only constrain two of the three positions.
const (
	baseA = 0
	baseC = 1
	baseG = 2
	baseT = 3
)

// AllowedSignature reports whether code (a packed sigLen-mer) is an
// allowed minimizer signature.
func AllowedSignature(code uint64, sigLen int) bool {
	if sigLen < 3 {
		// degenerate case, never excluded (no room for AAA/TTT windows).
		return true
	}

	// first base (most significant 2 bits), second base, second-to-last,
	// last base.
	shiftFirst := uint((sigLen - 1) * 2)
	shiftSecond := uint((sigLen - 2) * 2)
	first := (code >> shiftFirst) & 3
	second := (code >> shiftSecond) & 3
	last := code & 3
	secondLast := (code >> 2) & 3

	// starts with AAA
	if sigLen >= 3 {
		third := (code >> uint((sigLen-3)*2)) & 3
		if first == baseA && second == baseA && third == baseA {
			return false
		}
		// starts with ACA
		if first == baseA && second == baseC && third == baseA {
			return false
		}
	}
	// starts with *AA (positions 2,3 both A)
	if second == baseA && (code>>uint((sigLen-3)*2))&3 == baseA {
		return false
	}
	// contains AA internally (not counting the leading window already
	// checked above): scan every adjacent pair.
	for i := 0; i < sigLen-1; i++ {
		b1 := (code >> uint(i*2)) & 3
		b2 := (code >> uint((i+1)*2)) & 3
		if b1 == baseA && b2 == baseA {
			// leading "*AA"/"AAA" is handled above and allowed to
			// recur here too; any AA pair disqualifies the signature.
			return false
		}
	}
	// 3-suffix is TTT, TGT, or TG*
	thirdLast := (code >> 4) & 3
	if secondLast == baseT && last == baseT && thirdLast == baseT {
		return false
	}
	if secondLast == baseG && last == baseT && thirdLast == baseT {
		return false
	}
	if secondLast == baseG && thirdLast == baseT {
		return false
	}
	return true
}

// NumSignatures returns 4^sigLen, the size of the dense signature space.
// It does not count the sentinel slot for disallowed signatures; callers
// that size a signature map add that one slot themselves.
func NumSignatures(sigLen int) uint64 {
	return uint64(1) << uint(sigLen*2)
}

// MinimizerWindow incrementally tracks the minimizer signature of a
// sliding k-window, per spec.md §4.5: it recomputes the minimum
// sig_len-mer within the current window by rescanning whenever the
// previous minimizer's window is about to fall out, and otherwise just
// compares the newest sig_len-mer against the running minimum.
type MinimizerWindow struct {
	SigLen int

	// window holds the packed codes of the sig_len-mers seen so far in
	// the current k-window, in position order; it's a ring sized to the
	// largest possible window (k - sigLen + 1).
	codes []uint64
	pos   int // next write position (ring index)
	count int // number of valid entries currently in the ring (<= cap)

	lastPos int // absolute position passed to the most recent Push

	curMinCode uint64
	curMinPos  int // absolute sequence position (0-based) of curMinCode
	hasMin     bool
}

// NewMinimizerWindow returns a tracker for a window holding up to
// capacity sig_len-mers (i.e. k - sigLen + 1 positions).
func NewMinimizerWindow(sigLen, capacity int) *MinimizerWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &MinimizerWindow{SigLen: sigLen, codes: make([]uint64, capacity)}
}

// Reset clears the window, e.g. after an N or a run boundary.
func (w *MinimizerWindow) Reset() {
	w.pos = 0
	w.count = 0
	w.hasMin = false
}

// Push adds the sig_len-mer starting at absolute sequence position pos
// (0-based, position of its first base) and updates the running minimum;
// Min reports the result. Positions passed to consecutive Push calls are
// expected to increase by one. Disallowed signatures are tracked for
// window bookkeeping but never reported as the minimum signature.
func (w *MinimizerWindow) Push(code uint64, pos int) {
	cap := len(w.codes)
	w.codes[w.pos%cap] = code
	w.pos++
	w.lastPos = pos
	if w.count < cap {
		w.count++
	}

	allowed := AllowedSignature(code, w.SigLen)
	// ties prefer the later position: spec.md §4.5 flushes a run when
	// "end_mmer == current_signature but at a later position", which only
	// makes sense if an equal signature's position keeps advancing so the
	// run doesn't expire prematurely.
	if allowed && (!w.hasMin || code <= w.curMinCode) {
		w.curMinCode = code
		w.curMinPos = pos
		w.hasMin = true
	}
}

// Expired reports whether the current minimum's position has fallen out
// of a window that now starts at windowStart (spec.md §4.5's "current
// signature's window is about to fall out" check), meaning a full rescan
// is needed.
func (w *MinimizerWindow) Expired(windowStart int) bool {
	return w.hasMin && w.curMinPos < windowStart
}

// Min returns the current tracked minimum signature and its position.
func (w *MinimizerWindow) Min() (code uint64, pos int, ok bool) {
	return w.curMinCode, w.curMinPos, w.hasMin
}

// Rescan recomputes the window minimum from scratch over every ring entry
// whose absolute position is >= windowStart, per spec.md §4.5's handling
// for when "the current signature's window is about to fall out": rather
// than tracking a running minimum that silently goes stale, the splitter
// calls Rescan once Expired(windowStart) reports true.
func (w *MinimizerWindow) Rescan(windowStart int) {
	cap := len(w.codes)
	w.hasMin = false
	newest := w.pos - 1 // ring counter of the newest entry
	for i := 0; i < w.count; i++ {
		pos := w.lastPos - i
		if pos < windowStart {
			break
		}
		code := w.codes[(newest-i)%cap]
		if !AllowedSignature(code, w.SigLen) {
			continue
		}
		if !w.hasMin || code < w.curMinCode || (code == w.curMinCode && pos > w.curMinPos) {
			w.curMinCode = code
			w.curMinPos = pos
			w.hasMin = true
		}
	}
}
