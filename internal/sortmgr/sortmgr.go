// Package sortmgr enumerates bins in decreasing estimated memory size,
// estimates each bin's RAM requirement, assigns a sorting thread
// multiplier, and diverts oversized bins to the strict-memory
// sub-pipeline (spec.md §4.7). It reserves no arena space itself; see
// Plan.
package sortmgr

import "sort"

// BinStats is what the manager knows about one bin before sorting it.
type BinStats struct {
	BinID      int
	FileSize   int64  // bin temp file size in bytes
	NRec       uint64 // number of super-k-mer-derived k-mers (no extension)
	NPlusXRecs uint64 // k+x-mer record count, from binstore's collector
}

// Params configures the RAM estimator; it mirrors the fields the
// completer's lut_prefix_len/counter_size choices already fixed for the
// whole run.
type Params struct {
	K            int
	LutPrefixLen int
	MaxX         int
	BothStrands  bool
	CutoffMin    uint64
	CounterSize  int // 4 or 8, from config.Config.CounterSize()
}

// EstimateBytes computes a bin's required arena bytes, following the
// part1/part2-by-parity-of-sort-passes shape of the original estimator,
// sizing each output record as its full packed suffix bytes plus a
// CounterSize-byte counter. dbfile.Writer stores records in variable
// width (a control byte plus the minimal bytes of suffix and count), so
// this term is an upper bound on the records' written size. The original's
// separate BYTE_LOG counter-size derivation is not used.
func EstimateBytes(p Params, b BinStats) int64 {
	kxmerSymbols := p.K
	var inputKmerSize int64
	if p.BothStrands {
		kxmerSymbols = p.K + p.MaxX + 1
		inputKmerSize = int64(b.NPlusXRecs) * recordWidth(kxmerSymbols)
	} else {
		inputKmerSize = int64(b.NRec) * recordWidth(p.K)
	}

	cutoffMin := p.CutoffMin
	if cutoffMin < 1 {
		cutoffMin = 1
	}
	maxOutRecs := (b.NRec + 1) / cutoffMin

	suffixSymbols := p.K - p.LutPrefixLen
	suffixBytes := int64((suffixSymbols*2 + 7) / 8)
	outBufferSize := int64(maxOutRecs) * (suffixBytes + int64(p.CounterSize))

	lutRecs := int64(1) << uint(p.LutPrefixLen*2)
	lutSize := lutRecs * 8

	recLen := (kxmerSymbols + 3) / 4 // bytes per packed k+x-mer record
	size := roundUp(b.FileSize)
	inputKmerSize = roundUp(inputKmerSize)
	outBufferSize = roundUp(outBufferSize)
	lutSize = roundUp(lutSize)

	var part1, part2 int64
	if recLen%2 == 0 {
		part1 = inputKmerSize
		part2 = max3(size, inputKmerSize, outBufferSize+lutSize)
	} else {
		part1 = max2(inputKmerSize, size)
		part2 = max2(inputKmerSize, outBufferSize+lutSize)
	}
	return part1 + part2
}

const alignment = 64

func roundUp(x int64) int64 {
	if x <= 0 {
		return 0
	}
	return (x + alignment - 1) / alignment * alignment
}

// recordWidth is the in-memory byte width of one packed k-mer (or k+x-mer)
// record: the packed bases rounded up to an 8-byte word, since the radix
// sorter scatters fixed-width aligned records.
func recordWidth(symbols int) int64 {
	bytes := (symbols*2 + 7) / 8
	return int64((bytes + 7) / 8 * 8)
}

func max2(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func max3(a, b, c int64) int64 {
	return max2(max2(a, b), c)
}

// ThreadMultiplier assigns a sorting thread count to a bin based on its
// share of the total estimated bytes across all admitted bins: larger
// bins get more threads so the number of concurrently sorted bins shrinks
// as bin size grows, while small bins sort with a single thread.
func ThreadMultiplier(binBytes, totalBytes int64, totalThreads int) int {
	if totalBytes <= 0 || totalThreads <= 1 {
		return 1
	}
	share := float64(binBytes) / float64(totalBytes)
	t := int(share * float64(totalThreads))
	if t < 1 {
		t = 1
	}
	if t > totalThreads {
		t = totalThreads
	}
	return t
}

// Plan is the manager's decision for one run: which bins are admitted to
// the shared arena (in decreasing size order, each with its thread
// count), and which are diverted to the strict-memory sub-pipeline
// because no arena allocation, however timed, could ever hold them.
//
// PlanRun only decides admission and thread counts; it does not reserve
// arena space itself. Reservation (memarena.Arena.Init/Free) happens one
// bin at a time as the pipeline's sorter workers pull admitted bins off
// this plan, since the arena's total budget is shared across bins
// processed concurrently, not pre-allocated to all of them at once.
type Plan struct {
	Admitted []Assignment
	Diverted []BinStats
}

// Assignment pairs a bin with its estimated byte requirement and thread
// count.
type Assignment struct {
	Bin     BinStats
	Bytes   int64
	Threads int
}

// PlanRun enumerates bins by decreasing estimated size and splits them
// into those that can ever fit the arena (admitted, each assigned a
// thread count) and those that categorically can't (diverted to the
// too-large-bin queue for strict-memory reprocessing, §4.12).
func PlanRun(p Params, bins []BinStats, arenaCapacity int64, totalThreads int) Plan {
	sorted := make([]BinStats, len(bins))
	copy(sorted, bins)
	estimates := make(map[int]int64, len(sorted))
	for _, b := range sorted {
		estimates[b.BinID] = EstimateBytes(p, b)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return estimates[sorted[i].BinID] > estimates[sorted[j].BinID]
	})

	var totalBytes int64
	for _, b := range sorted {
		totalBytes += estimates[b.BinID]
	}

	var plan Plan
	for _, b := range sorted {
		need := estimates[b.BinID]
		if need > arenaCapacity {
			plan.Diverted = append(plan.Diverted, b)
			continue
		}
		plan.Admitted = append(plan.Admitted, Assignment{
			Bin:     b,
			Bytes:   need,
			Threads: ThreadMultiplier(need, totalBytes, totalThreads),
		})
	}
	return plan
}
