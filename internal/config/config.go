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

// Package config holds the pipeline's run configuration and validates it
// up front, the way the CLI's Options/getOptions pair does, so that every
// stage can assert its invariants instead of re-checking user input.
package config

import (
	"fmt"
	"runtime"

	"github.com/kmerbin/kmerbin"
)

// InputFormat selects how input files are tokenized (spec.md §6's -f flag).
type InputFormat int

const (
	FormatAuto InputFormat = iota
	FormatFASTA
	FormatFASTQ
	FormatMultiline
)

// Config is the full set of knobs the pipeline accepts, corresponding to
// spec.md §6's CLI surface.
type Config struct {
	Inputs     []string
	OutBase    string
	TmpDir     string

	K            int
	MaxX         int // k+x-mer extension bound (spec.md §3); 0 resolves to a default in Validate
	MemoryGB     float64
	StrictMemory bool
	SigLen       int
	Format       InputFormat
	CutoffMin    uint64
	CutoffMax    uint64
	CounterMax   uint64
	Canonical    bool // true unless -b given
	RAMOnly      bool
	NumBins      int
	Threads      int

	// per-stage thread counts (spec.md §6's -sf/-sp/-sr/-so); 0 means
	// "derive from Threads".
	ReaderThreads    int
	SplitterThreads  int
	SorterThreads    int
	OutputThreads    int
	StrictSortThreads   int
	StrictUnpackThreads int
	StrictMergeThreads  int

	Verbose  bool
	KFF      bool
	KeepTemp bool // retain per-bin temp files after a run, for inspection
}

// DefaultMaxX is the k+x-mer extension bound KMC itself defaults to; it
// trades a larger per-record key for fewer, denser sort/merge records.
const DefaultMaxX = 4

// Default returns a Config with spec.md's stated defaults: k=25, p (sig_len)
// unset (auto), threads = NumCPU.
func Default() Config {
	return Config{
		K:          25,
		MaxX:       DefaultMaxX,
		SigLen:     0, // 0 means "choose automatically", resolved in Validate
		MemoryGB:   12,
		NumBins:    0, // 0 means "choose automatically"
		Threads:    runtime.NumCPU(),
		CutoffMin:  2,
		CutoffMax:  1<<32 - 1,
		CounterMax: 255,
		Canonical:  true,
	}
}

// Validate checks every numeric field against spec.md §6/§7's legal
// ranges and fills in derived defaults (max_x, tmp dir, sig_len, bin
// count, per-stage thread counts). It returns the first violation found.
func (c *Config) Validate() error {
	if c.K < 1 || c.K > kmerbin.MaxK {
		return fmt.Errorf("config: k must be in [1,%d], got %d", kmerbin.MaxK, c.K)
	}
	if c.MaxX <= 0 {
		c.MaxX = DefaultMaxX
	}
	if len(c.Inputs) == 0 {
		return fmt.Errorf("config: at least one input file (or @listfile) is required")
	}
	if c.OutBase == "" {
		return fmt.Errorf("config: output basename is required")
	}
	if c.TmpDir == "" {
		c.TmpDir = "."
	}
	if c.MemoryGB <= 0 {
		return fmt.Errorf("config: memory budget must be positive, got %g", c.MemoryGB)
	}
	if c.SigLen == 0 {
		c.SigLen = chooseSigLen(c.K)
	}
	if c.SigLen < kmerbin.MinSigLen || c.SigLen > kmerbin.MaxSigLen {
		return fmt.Errorf("config: signature length must be in [%d,%d], got %d", kmerbin.MinSigLen, kmerbin.MaxSigLen, c.SigLen)
	}
	if c.CutoffMin > c.CutoffMax {
		return fmt.Errorf("config: cutoff-min (%d) must be <= cutoff-max (%d)", c.CutoffMin, c.CutoffMax)
	}
	if c.CounterMax == 0 {
		return fmt.Errorf("config: counter-max must be positive")
	}
	if c.Threads < 1 {
		c.Threads = 1
	}
	if c.NumBins == 0 {
		c.NumBins = chooseNumBins(c.Threads)
	}
	if c.NumBins < 1 {
		return fmt.Errorf("config: number of bins must be positive, got %d", c.NumBins)
	}

	if c.ReaderThreads == 0 {
		c.ReaderThreads = max(1, c.Threads/4)
	}
	if c.SplitterThreads == 0 {
		c.SplitterThreads = max(1, c.Threads/2)
	}
	if c.SorterThreads == 0 {
		c.SorterThreads = max(1, c.Threads/2)
	}
	if c.OutputThreads == 0 {
		c.OutputThreads = 1
	}
	if c.StrictUnpackThreads == 0 {
		c.StrictUnpackThreads = max(1, c.Threads/4)
	}
	if c.StrictSortThreads == 0 {
		c.StrictSortThreads = max(1, c.Threads/2)
	}
	if c.StrictMergeThreads == 0 {
		c.StrictMergeThreads = max(1, c.Threads/4)
	}
	return nil
}

// CounterSize returns 4 or 8, per spec.md §4.13: 8 only if cutoff_max
// would not fit a uint32.
func (c Config) CounterSize() int {
	if c.CutoffMax >= 1<<32 {
		return 8
	}
	return 4
}

// SmallK reports whether k is small enough for the in-memory fast path
// (spec.md §4.13's "k <= 13" bound). The choice depends on k alone; no
// memory-budget check is made.
func (c Config) SmallK() bool { return c.K <= 13 }

func chooseSigLen(k int) int {
	switch {
	case k <= 10:
		return kmerbin.MinSigLen
	case k >= 50:
		return kmerbin.MaxSigLen
	default:
		v := 5 + (k-10)/6
		if v > kmerbin.MaxSigLen {
			v = kmerbin.MaxSigLen
		}
		if v < kmerbin.MinSigLen {
			v = kmerbin.MinSigLen
		}
		return v
	}
}

func chooseNumBins(threads int) int {
	n := threads * 32
	if n < 64 {
		n = 64
	}
	if n > 2048 {
		n = 2048
	}
	return n
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
