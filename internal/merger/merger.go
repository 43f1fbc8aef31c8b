// Package merger performs the final compaction of sorted k+x-mer records
// into (k-prefix, count) pairs (spec.md §4.10): it collapses every record
// sharing a k-prefix into one counter, applies the cutoff and
// counter-saturation rules, and reports the dropped-record totals.
package merger

import (
	"github.com/kmerbin/kmerbin"
)

// Options configures one merge pass.
type Options struct {
	CutoffMin  uint64
	CutoffMax  uint64
	CounterMax uint64
}

// Result is one merge pass's output.
type Result struct {
	Records    []kmerbin.CountedCode
	NCutoffMin uint64
	NCutoffMax uint64
}

// Merge collapses a key-sorted run of k+x-mer records into (k-prefix,
// count) pairs. recs must already be in non-decreasing Key order (e.g.
// the radix sorter's output); within that order every record sharing a
// k-prefix is contiguous, so a single left-to-right pass suffices —
// spec.md's four-way tournament tree over sub-ranges keyed on the first
// post-prefix base is an internal parallelism detail for merging multiple
// *independently* sorted runs, not a distinct externally visible step
// once the whole bin has already been radix-sorted into one run.
func Merge(recs []kmerbin.KXmerRecord, opt Options) Result {
	var res Result
	if len(recs) == 0 {
		return res
	}

	flush := func(prefix kmerbin.KmerCode, count uint64) {
		switch {
		case count < opt.CutoffMin:
			res.NCutoffMin++
		case count > opt.CutoffMax:
			res.NCutoffMax++
		default:
			if count > opt.CounterMax {
				count = opt.CounterMax
			}
			res.Records = append(res.Records, kmerbin.CountedCode{Code: prefix.Code, Count: count})
		}
	}

	cur := recs[0].Prefix()
	var count uint64
	seen := map[uint64]bool{cur.Code: true}
	for _, r := range recs {
		p := r.Prefix()
		if p.Code != cur.Code {
			flush(cur, count)
			cur = p
			count = 0
			if seen[p.Code] {
				// pre-compact step guarantees each prefix's k+x-mers are
				// contiguous in a single sorted run; a repeat means the
				// caller didn't sort first.
				panic("merger: k-prefix reappeared out of order, input not sorted")
			}
			seen[p.Code] = true
		}
		count++
	}
	flush(cur, count)
	return res
}

// MergeParallel splits recs into n contiguous, already-sorted chunks at
// prefix boundaries and merges each independently, then concatenates the
// results in order — spec.md §4.10's "partition the k-prefix space across
// worker threads by scanning cumulative counts and choosing balanced
// cut-points", simplified to equal-sized chunks snapped to the nearest
// prefix boundary.
func MergeParallel(recs []kmerbin.KXmerRecord, opt Options, n int) Result {
	if n <= 1 || len(recs) == 0 {
		return Merge(recs, opt)
	}

	bounds := cutPoints(recs, n)
	type chunkResult struct {
		idx int
		res Result
	}
	out := make(chan chunkResult, len(bounds)-1)
	for i := 0; i < len(bounds)-1; i++ {
		lo, hi := bounds[i], bounds[i+1]
		go func(idx, lo, hi int) {
			out <- chunkResult{idx: idx, res: Merge(recs[lo:hi], opt)}
		}(i, lo, hi)
	}
	results := make([]Result, len(bounds)-1)
	for range results {
		cr := <-out
		results[cr.idx] = cr.res
	}

	var final Result
	for _, r := range results {
		final.Records = append(final.Records, r.Records...)
		final.NCutoffMin += r.NCutoffMin
		final.NCutoffMax += r.NCutoffMax
	}
	return final
}

// cutPoints returns at most n+1 indices into recs (0 and len(recs) included;
// fewer when snapping to prefix boundaries merges neighboring cut-points)
// such that each [bounds[i], bounds[i+1]) range never splits a run of
// records sharing a k-prefix.
func cutPoints(recs []kmerbin.KXmerRecord, n int) []int {
	bounds := []int{0}
	chunkSize := (len(recs) + n - 1) / n
	for target := chunkSize; target < len(recs); target += chunkSize {
		i := target
		prefix := recs[i].Prefix().Code
		for i < len(recs) && recs[i].Prefix().Code == prefix {
			i++
		}
		if i > bounds[len(bounds)-1] {
			bounds = append(bounds, i)
		}
	}
	if bounds[len(bounds)-1] != len(recs) {
		bounds = append(bounds, len(recs))
	}
	return bounds
}
