// Package smallk implements the small-k in-memory fast path (spec.md
// §4.13): for k small enough that a flat 4^k counter array fits the
// memory budget, the whole partition/sort/merge pipeline is bypassed in
// favor of direct array increments.
package smallk

import (
	"github.com/kmerbin/kmerbin"
	"github.com/kmerbin/kmerbin/internal/merger"
)

// Counters is one flat per-thread counter array, indexed by k-mer code —
// canonical code when BothStrands is set, forward code otherwise.
type Counters struct {
	K           int
	BothStrands bool
	arr         []uint64
}

// NewCounters allocates a counter array sized 4^k.
func NewCounters(k int, bothStrands bool) *Counters {
	return &Counters{K: k, BothStrands: bothStrands, arr: make([]uint64, uint64(1)<<uint(2*k))}
}

// Add increments the bucket for code, canonicalizing first unless the
// counters are running in single-strand mode.
func (c *Counters) Add(code uint64) {
	if c.BothStrands {
		code = kmerbin.Canonical(code, c.K)
	}
	c.arr[code]++
}

// SampleRun walks an N-free sequence run (see ioread.SplitOnN) and
// increments every k-window it contains. Unlike the general path, there's
// no minimizer/signature framing here — every k-mer is counted directly.
func (c *Counters) SampleRun(bases []byte) {
	k := c.K
	for i := 0; i+k <= len(bases); i++ {
		code, err := kmerbin.Encode(bases[i : i+k])
		if err != nil {
			continue
		}
		c.Add(code)
	}
}

// Merge element-wise adds other's counts into c, per spec.md §4.13's
// "arrays are summed element-wise into array 0".
func (c *Counters) Merge(other *Counters) {
	for i, v := range other.arr {
		c.arr[i] += v
	}
}

// CounterSize returns the output counter width the small-k completer
// should use: 4 bytes unless cutoffMax needs 8 (spec.md §4.13).
func CounterSize(cutoffMax uint64) int {
	if cutoffMax < 1<<32 {
		return 4
	}
	return 8
}

// Complete iterates the flat array in k-mer order and applies
// cutoff_min/cutoff_max/counter_max, reusing merger.Options/Result so the
// small-k completer and the general-path merger share one output contract
// that dbfile.Writer consumes identically either way.
func Complete(c *Counters, opt merger.Options) merger.Result {
	var res merger.Result
	for code, count := range c.arr {
		if count == 0 {
			continue
		}
		switch {
		case count < opt.CutoffMin:
			res.NCutoffMin++
		case count > opt.CutoffMax:
			res.NCutoffMax++
		default:
			if count > opt.CounterMax {
				count = opt.CounterMax
			}
			res.Records = append(res.Records, kmerbin.CountedCode{Code: uint64(code), Count: count})
		}
	}
	return res
}
