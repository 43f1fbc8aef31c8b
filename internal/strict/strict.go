// Package strict implements the strict-memory sub-pipeline (spec.md
// §4.12): a bin whose estimated requirement exceeds the shared arena is
// re-processed by partitioning its k+x-mer records into independent
// sub-bins, sorting and merging each sub-bin on its own (so no sub-bin
// ever needs the full bin's memory at once), then restoring ascending
// prefix order across the concatenated partial results.
package strict

import (
	"sync"

	"github.com/cespare/xxhash"
	"github.com/twotwotwo/sorts"

	"github.com/kmerbin/kmerbin"
	"github.com/kmerbin/kmerbin/internal/expander"
	"github.com/kmerbin/kmerbin/internal/merger"
	"github.com/kmerbin/kmerbin/internal/radix"
)

// Threads bounds how many goroutines each stage of ProcessBin may use. A
// diverted bin can carry many more sub-bins than the outer pipeline has
// admitted-bin workers to spare, so each stage gets its own knob rather
// than sharing the general-path SorterThreads budget.
type Threads struct {
	Unpack int
	Sort   int
	Merge  int
}

// normalize clamps every field to at least 1, so a zero-value Threads
// (config.Config's default for its --smso/--smun/--smme flags) degrades
// to the fully sequential behavior ProcessBin always had.
func (t Threads) normalize() Threads {
	if t.Unpack < 1 {
		t.Unpack = 1
	}
	if t.Sort < 1 {
		t.Sort = 1
	}
	if t.Merge < 1 {
		t.Merge = 1
	}
	return t
}

// MinSubBins and MaxSubBins bound NumSubBins' result (spec.md §9's Open
// Question decision, recorded in DESIGN.md: a dynamic sub-bin count
// rather than the original's fixed constant of 3).
const (
	MinSubBins = 2
	MaxSubBins = 64
)

// NumSubBins picks how many sub-bins to split an oversized bin into,
// scaling with how far over the per-sub-bin budget it is.
func NumSubBins(binBytes, perSubBinBudget int64) int {
	if perSubBinBudget <= 0 {
		return MinSubBins
	}
	n := int(binBytes / perSubBinBudget)
	if n < MinSubBins {
		n = MinSubBins
	}
	if n > MaxSubBins {
		n = MaxSubBins
	}
	return n
}

// subBinOf maps a k-prefix code to a sub-bin index. Assignment is by
// xxhash of the prefix's byte encoding (the same hash the teacher uses
// for its minhash sketches in sketch.go) rather than a straight range
// split, so prefixes spread evenly across sub-bins regardless of any
// skew in the input's composition; a given prefix always lands in the
// same sub-bin, so per-sub-bin merging still yields correct totals.
// Because the hash scrambles order, ProcessBin re-sorts the
// concatenated output before returning it.
func subBinOf(prefix uint64, k, numSubBins int) int {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(prefix >> uint(8*(7-i)))
	}
	return int(xxhash.Sum64(buf[:]) % uint64(numSubBins))
}

// ProcessBin runs the sub-bin reader/expander/sorter/merger chain over
// one oversized bin's raw file bytes and returns the same (k-prefix,
// count) result shape the general-path merger produces, ready for
// Completer Phase 1. threads bounds the concurrency of each of its three
// stages independently; a zero-value Threads runs every stage serially.
func ProcessBin(buf []byte, k, maxX int, bothStrands bool, opt merger.Options, numSubBins int, threads Threads) (merger.Result, error) {
	threads = threads.normalize()

	exp := expander.New(k, maxX, bothStrands)
	recs, err := exp.ExpandBufferParallel(buf, threads.Unpack)
	if err != nil {
		return merger.Result{}, err
	}

	buckets := make([][]kmerbin.KXmerRecord, numSubBins)
	for _, r := range recs {
		b := subBinOf(r.Prefix().Code, k, numSubBins)
		buckets[b] = append(buckets[b], r)
	}

	// Sorting is independent per sub-bin, so it runs under its own
	// semaphore ahead of the merge pass rather than interleaved with it:
	// a sub-bin's sort can start as soon as its bucket is filled, without
	// waiting on a slower sibling's merge.
	sortSem := make(chan struct{}, threads.Sort)
	var sortWg sync.WaitGroup
	for _, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		bucket := bucket
		sortWg.Add(1)
		sortSem <- struct{}{}
		go func() {
			defer sortWg.Done()
			defer func() { <-sortSem }()
			radix.Sort(bucket)
		}()
	}
	sortWg.Wait()

	type mergeResult struct {
		res merger.Result
	}
	mergeSem := make(chan struct{}, threads.Merge)
	var mergeWg sync.WaitGroup
	results := make(chan mergeResult, numSubBins)
	for _, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		bucket := bucket
		mergeWg.Add(1)
		mergeSem <- struct{}{}
		go func() {
			defer mergeWg.Done()
			defer func() { <-mergeSem }()
			results <- mergeResult{res: merger.Merge(bucket, opt)}
		}()
	}
	go func() {
		mergeWg.Wait()
		close(results)
	}()

	var final merger.Result
	for r := range results {
		final.Records = append(final.Records, r.res.Records...)
		final.NCutoffMin += r.res.NCutoffMin
		final.NCutoffMax += r.res.NCutoffMax
	}

	// Hash-assigned sub-bins don't preserve prefix order across buckets,
	// and the concurrent merge pass above doesn't either; restore it with
	// a parallel sort (sorts.Sort is a drop-in, goroutine-sharded
	// replacement for sort.Sort over the same sort.Interface, as used
	// throughout the teacher's cmd package).
	sorts.Sort(kmerbin.CountedCodeSlice(final.Records))
	return final, nil
}
