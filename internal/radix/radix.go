// Package radix implements the MSD byte-at-a-time radix sort used to
// bring a bin's k+x-mer records into key order (spec.md §4.9).
//
// This is a straightforward single-threaded MSD radix sort, not the
// original's SIMD-dispatched, write-combining-buffer, priority-queue-
// scheduled variant: Go has no portable access to the SSE2/AVX/NEON
// "Satish" scatter-buffer trick the original uses, and a goroutine-per-
// bucket scheduler buys nothing over the stdlib sort once the byte-radix
// partitioning itself is in place. The small-sort fallback and the
// non-decreasing-order invariant are preserved; the microarchitecture
// dispatch table is not.
package radix

import (
	"sort"

	"golang.org/x/sys/cpu"

	"github.com/kmerbin/kmerbin"
)

// SmallSortThreshold is the record count below which Sort bails out to
// sort.Sort instead of recursing further (spec.md §4.9's small-sub-array
// threshold).
const SmallSortThreshold = 384

// smallSortCutoff is SmallSortThreshold, widened on CPUs with a vector unit
// wide enough that sort.Sort's comparisons pipeline well past the baseline
// threshold. This is the one place x/sys/cpu feeds into the sort: it never
// changes the algorithm or its output, only how deep the byte-radix
// recursion goes before falling back — the closest this port gets to the
// original's microarchitecture dispatch table without reproducing any
// actual SIMD scatter-buffer code.
var smallSortCutoff = func() int {
	if cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD {
		return SmallSortThreshold * 2
	}
	return SmallSortThreshold
}()

// Sort sorts recs in place into non-decreasing key order (spec.md §4.9's
// invariant: forward iteration yields non-decreasing records, with
// records differing only in trailing extension bytes sorting together by
// k-prefix first — bytes.Compare on the packed Key already guarantees
// this, since a strict-prefix Key is lexicographically smaller).
func Sort(recs []kmerbin.KXmerRecord) {
	if len(recs) <= smallSortCutoff {
		sort.Sort(kmerbin.KXmerRecordSlice(recs))
		return
	}
	msd(recs, 0)
}

// msd recursively partitions recs into 256 buckets on the byte at
// position byteIdx of each record's packed Key, then recurses into each
// non-empty bucket on the next byte.
func msd(recs []kmerbin.KXmerRecord, byteIdx int) {
	if len(recs) <= smallSortCutoff {
		sort.Sort(kmerbin.KXmerRecordSlice(recs))
		return
	}

	maxLen := 0
	for _, r := range recs {
		if len(r.Key) > maxLen {
			maxLen = len(r.Key)
		}
	}
	if byteIdx >= maxLen {
		// every record's key is exhausted at this depth; ties broken by
		// length only, which sort.Sort resolves directly.
		sort.Sort(kmerbin.KXmerRecordSlice(recs))
		return
	}

	// bucket 0 holds records whose key is exhausted at this depth (they
	// sort first, as a shorter prefix of an equal-length key does);
	// buckets 1..256 hold byte values 0..255.
	var counts [257]int
	keyByte := func(r kmerbin.KXmerRecord) int {
		if byteIdx >= len(r.Key) {
			return 0
		}
		return int(r.Key[byteIdx]) + 1
	}
	for _, r := range recs {
		counts[keyByte(r)]++
	}
	offsets := make([]int, 258)
	sum := 0
	for b := 0; b < 257; b++ {
		offsets[b] = sum
		sum += counts[b]
	}
	offsets[257] = sum
	starts := make([]int, 257)
	copy(starts, offsets[:257])

	sorted := make([]kmerbin.KXmerRecord, len(recs))
	for _, r := range recs {
		b := keyByte(r)
		sorted[starts[b]] = r
		starts[b]++
	}
	copy(recs, sorted)

	for b := 0; b < 256; b++ {
		lo, hi := offsets[b+1], offsets[b+2]
		if hi-lo > 1 {
			msd(recs[lo:hi], byteIdx+1)
		}
	}
}
