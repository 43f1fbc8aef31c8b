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

// Package pipeline wires every stage package into the one end-to-end run
// spec.md describes: sample, split into bins, sort and merge each bin
// (diverting oversized ones to the strict-memory sub-pipeline), and
// complete into the two-file output database. cmd/kmerbin's count command
// is the only caller.
package pipeline

import (
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/twotwotwo/sorts"

	"github.com/kmerbin/kmerbin"
	"github.com/kmerbin/kmerbin/internal/binstore"
	"github.com/kmerbin/kmerbin/internal/config"
	"github.com/kmerbin/kmerbin/internal/dbfile"
	"github.com/kmerbin/kmerbin/internal/expander"
	"github.com/kmerbin/kmerbin/internal/ioread"
	"github.com/kmerbin/kmerbin/internal/logx"
	"github.com/kmerbin/kmerbin/internal/memarena"
	"github.com/kmerbin/kmerbin/internal/merger"
	"github.com/kmerbin/kmerbin/internal/radix"
	"github.com/kmerbin/kmerbin/internal/sigmap"
	"github.com/kmerbin/kmerbin/internal/sigstats"
	"github.com/kmerbin/kmerbin/internal/smallk"
	"github.com/kmerbin/kmerbin/internal/sortmgr"
	"github.com/kmerbin/kmerbin/internal/splitter"
	"github.com/kmerbin/kmerbin/internal/strict"
)

// binPartSize is the fixed buffer size each bin's collector flushes at
// (spec.md §4.6's bin_part_size). 4 MiB balances queue granularity against
// per-flush overhead at the scale this module targets.
const binPartSize = 4 << 20

// Stats summarizes one completed run, the numbers cmd/kmerbin's info/count
// output reports back to the user.
type Stats struct {
	CountedUnique uint64
	NCutoffMin    uint64
	NCutoffMax    uint64
	BinsDiverted  int
	BytesSampled  int64
}

// Run executes the full counting pipeline for cfg and writes the resulting
// database to cfg.OutBase+".kmcs"/".kmcp", or to cfg.OutBase+".kff" when
// cfg.KFF is set.
func Run(cfg config.Config) (Stats, error) {
	if err := cfg.Validate(); err != nil {
		return Stats{}, err
	}
	logx.Init(cfg.Verbose)

	if cfg.SmallK() {
		return runSmallK(cfg)
	}
	return runGeneral(cfg)
}

func runSmallK(cfg config.Config) (Stats, error) {
	logx.Log.Infof("k=%d is within the small-k bound, using the in-memory fast path", cfg.K)
	counters := smallk.NewCounters(cfg.K, cfg.Canonical)

	var bytesSampled int64
	for _, path := range cfg.Inputs {
		n, err := walkInput(path, func(run []byte) {
			counters.SampleRun(run)
		})
		bytesSampled += n
		if err != nil {
			return Stats{}, err
		}
	}

	opt := merger.Options{CutoffMin: cfg.CutoffMin, CutoffMax: cfg.CutoffMax, CounterMax: cfg.CounterMax}
	res := smallk.Complete(counters, opt)
	sigToBin := make([]uint32, kmerbin.NumSignatures(cfg.SigLen)+1) // every signature routes to bin 0 here; small-k skips binning entirely
	return writeOutput(cfg, res, sigToBin, bytesSampled)
}

func runGeneral(cfg config.Config) (Stats, error) {
	hist, bytesSampled, err := sampleHistogram(cfg)
	if err != nil {
		return Stats{}, err
	}
	logx.Log.Infof("sampled %s across %d distinct signatures", humanize.Bytes(uint64(bytesSampled)), hist.DistinctSignatures())

	sm := sigmap.Build(hist, cfg.NumBins)

	storer, err := splitIntoBins(cfg, sm)
	if err != nil {
		return Stats{}, err
	}
	defer storer.Close()

	result, binsDiverted, err := sortAndMerge(cfg, storer)
	if err != nil {
		return Stats{}, err
	}

	stats, err := writeOutput(cfg, result, sigToBinTable(sm), bytesSampled)
	if err != nil {
		return Stats{}, err
	}
	stats.BinsDiverted = binsDiverted
	return stats, nil
}

// sigToBinTable widens sigmap.Map's internal int32 table to the uint32
// slice the prefix file format stores (bin ids are never negative).
func sigToBinTable(sm *sigmap.Map) []uint32 {
	t := sm.Table()
	out := make([]uint32, len(t))
	for i, v := range t {
		out[i] = uint32(v)
	}
	return out
}

// walkInput opens path, splits every record on N runs, and calls fn once
// per N-free run, returning the number of (post-split) bases visited.
func walkInput(path string, fn func(run []byte)) (int64, error) {
	r, err := ioread.Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	var n int64
	for {
		chunk, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, fmt.Errorf("pipeline: reading %s: %w", path, err)
		}
		for _, run := range ioread.SplitOnN(chunk.Bases, 1) {
			fn(run)
			n += int64(len(run))
		}
	}
	return n, nil
}

// sampleHistogram runs the signature-frequency sampling pass (spec.md
// §4.3) over cfg.Inputs, stopping once sigstats.DefaultByteBudget bytes
// have been visited.
func sampleHistogram(cfg config.Config) (*sigstats.Histogram, int64, error) {
	hist := sigstats.NewHistogram(cfg.SigLen)
	var sampled int64
	for _, path := range cfg.Inputs {
		if sampled >= sigstats.DefaultByteBudget {
			break
		}
		r, err := ioread.Open(path)
		if err != nil {
			return nil, sampled, err
		}
		for sampled < sigstats.DefaultByteBudget {
			chunk, err := r.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				r.Close()
				return nil, sampled, fmt.Errorf("pipeline: sampling %s: %w", path, err)
			}
			for _, run := range ioread.SplitOnN(chunk.Bases, cfg.K) {
				hist.Sample(run, cfg.K)
				sampled += int64(len(run))
			}
		}
		r.Close()
	}
	return hist, sampled, nil
}

// splitIntoBins runs the splitting pass (spec.md §4.5), routing every
// super-k-mer to its bin's collector and draining the shared bin-part
// queue into temp files via a Storer. Inputs are walked concurrently, up
// to cfg.ReaderThreads at a time: each worker gets its own Collector set
// and Splitter (neither type is safe for concurrent use), and all of them
// feed the same parts channel, which Storer.Run drains from a single
// goroutine — a many-producers/one-consumer fan-in, same shape as the
// diverted-bin workers in sortAndMerge below.
func splitIntoBins(cfg config.Config, sm *sigmap.Map) (*binstore.Storer, error) {
	parts := make(chan binstore.BinPart, cfg.SplitterThreads*2)
	storer := binstore.NewStorer(cfg.TmpDir, cfg.RAMOnly)

	storeErr := make(chan error, 1)
	go func() { storeErr <- storer.Run(parts) }()

	var wg sync.WaitGroup
	sem := make(chan struct{}, cfg.ReaderThreads)
	var errMu sync.Mutex
	var splitErr error
	setErr := func(err error) {
		errMu.Lock()
		if splitErr == nil {
			splitErr = err
		}
		errMu.Unlock()
	}

	for _, path := range cfg.Inputs {
		path := path
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			collectors := make([]*binstore.Collector, sm.NBins)
			for i := range collectors {
				collectors[i] = binstore.NewCollector(i, binPartSize, cfg.MaxX, cfg.Canonical, parts)
			}
			spl := splitter.New(cfg.K, cfg.SigLen, sm)

			if _, err := walkInput(path, func(run []byte) {
				for _, e := range spl.Split(run) {
					if err := collectors[e.Bin].Add(e.SuperKmer); err != nil {
						setErr(err)
					}
				}
			}); err != nil {
				setErr(err)
			}
			for _, c := range collectors {
				c.Flush()
			}
		}()
	}
	wg.Wait()
	close(parts)

	if err := <-storeErr; err != nil {
		return storer, err
	}
	return storer, splitErr
}

// binResult is one bin's merged (k-prefix, count) output, tagged with
// where it came from for logging.
type binResult struct {
	result   merger.Result
	diverted bool
}

// sortAndMerge estimates every bin's memory requirement, admits what fits
// the shared arena (sorting and merging each admitted bin in its own
// worker), and diverts the rest to the strict-memory sub-pipeline.
// Admitted bins reserve their arena span one at a time inside the worker
// loop below, not up front in sortmgr.PlanRun — see internal/sortmgr's
// doc comment for why eager reservation there would deadlock.
func sortAndMerge(cfg config.Config, storer *binstore.Storer) (merger.Result, int, error) {
	params := sortmgr.Params{
		K:            cfg.K,
		LutPrefixLen: dbfile.LutPrefixLen(cfg.K, 1<<20, uint64(cfg.NumBins)),
		MaxX:         cfg.MaxX,
		BothStrands:  cfg.Canonical,
		CutoffMin:    cfg.CutoffMin,
		CounterSize:  cfg.CounterSize(),
	}

	var bins []sortmgr.BinStats
	for id := 0; id < cfg.NumBins; id++ {
		size := storer.Size(id)
		if size == 0 {
			continue
		}
		recs := storer.Records(id)
		bins = append(bins, sortmgr.BinStats{
			BinID: id,
			FileSize: size,
			// NRec approximates the raw k-mer count from the k+x-mer record
			// count: every k+x-mer record stands in for up to MaxX+1 raw
			// k-mers, and the estimator only needs an upper bound to plan
			// arena usage, not an exact count.
			NRec:       recs * uint64(cfg.MaxX+1),
			NPlusXRecs: recs,
		})
	}

	arenaCapacity := int64(cfg.MemoryGB * (1 << 30))
	plan := sortmgr.PlanRun(params, bins, arenaCapacity, cfg.SorterThreads)
	logx.Log.Infof("sort plan: %d bins admitted, %d diverted to strict-memory mode", len(plan.Admitted), len(plan.Diverted))

	arena := memarena.NewArena(int(arenaCapacity), cfg.StrictMemory)
	opt := merger.Options{CutoffMin: cfg.CutoffMin, CutoffMax: cfg.CutoffMax, CounterMax: cfg.CounterMax}

	results := make(chan binResult, len(plan.Admitted)+len(plan.Diverted))
	var wg sync.WaitGroup
	sem := make(chan struct{}, cfg.SorterThreads)
	var errMu sync.Mutex
	var binErr error
	setErr := func(err error) {
		errMu.Lock()
		if binErr == nil {
			binErr = err
		}
		errMu.Unlock()
	}

	for _, a := range plan.Admitted {
		a := a
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := sortBin(cfg, storer, arena, a)
			if err != nil {
				logx.Log.Errorf("bin %d: %v", a.Bin.BinID, err)
				setErr(fmt.Errorf("pipeline: bin %d: %w", a.Bin.BinID, err))
				return
			}
			results <- binResult{result: res}
		}()
	}
	for _, b := range plan.Diverted {
		b := b
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			buf, err := readBinFile(storer, b.BinID)
			if err != nil {
				logx.Log.Errorf("bin %d (strict): %v", b.BinID, err)
				setErr(fmt.Errorf("pipeline: bin %d (strict): %w", b.BinID, err))
				return
			}
			if !cfg.KeepTemp {
				if err := storer.RemoveBin(b.BinID); err != nil {
					logx.Log.Warningf("bin %d (strict): %v", b.BinID, err)
				}
			}
			numSub := strict.NumSubBins(b.FileSize, arenaCapacity/int64(len(plan.Diverted)+1))
			st := strict.Threads{Unpack: cfg.StrictUnpackThreads, Sort: cfg.StrictSortThreads, Merge: cfg.StrictMergeThreads}
			res, err := strict.ProcessBin(buf, cfg.K, cfg.MaxX, cfg.Canonical, opt, numSub, st)
			if err != nil {
				logx.Log.Errorf("bin %d (strict): %v", b.BinID, err)
				setErr(fmt.Errorf("pipeline: bin %d (strict): %w", b.BinID, err))
				return
			}
			results <- binResult{result: res, diverted: true}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var perBin []binResult
	var recoveredDiverted int
	for r := range results {
		perBin = append(perBin, r)
		if r.diverted {
			recoveredDiverted++
		}
	}
	if want := len(plan.Admitted) + len(plan.Diverted); len(perBin) != want {
		logx.Log.Warningf("only %d/%d bins produced a result (see per-bin errors above)", len(perBin), want)
	}
	if recoveredDiverted != len(plan.Diverted) {
		logx.Log.Warningf("only %d/%d diverted bins completed via the strict-memory sub-pipeline", recoveredDiverted, len(plan.Diverted))
	}
	if binErr != nil {
		return merger.Result{}, len(plan.Diverted), binErr
	}

	// Bins are grouped by minimizer signature, not by k-prefix range, so
	// one bin's codes can interleave with another's; the per-bin results
	// above are each internally sorted but not globally ordered.
	// sorts.Sort parallel-sorts the full concatenation by code once, the
	// same large-slice workload twotwotwo/sorts is built for.
	var final merger.Result
	for _, r := range perBin {
		final.Records = append(final.Records, r.result.Records...)
		final.NCutoffMin += r.result.NCutoffMin
		final.NCutoffMax += r.result.NCutoffMax
	}
	sorts.Sort(kmerbin.CountedCodeSlice(final.Records))
	return final, len(plan.Diverted), nil
}

// sortBin reserves binBytes from the shared arena, reads the bin's temp
// file into the reserved span, expands/sorts/merges it, and frees the
// span before returning.
func sortBin(cfg config.Config, storer *binstore.Storer, arena *memarena.Arena, a sortmgr.Assignment) (merger.Result, error) {
	span, err := arena.Init(a.Bin.BinID, int(a.Bytes))
	if err != nil {
		return merger.Result{}, err
	}
	defer arena.Free(a.Bin.BinID)

	raw, err := readBinFile(storer, a.Bin.BinID)
	if err != nil {
		return merger.Result{}, err
	}
	if !cfg.KeepTemp {
		if err := storer.RemoveBin(a.Bin.BinID); err != nil {
			logx.Log.Warningf("bin %d: %v", a.Bin.BinID, err)
		}
	}
	span.SetSlot(memarena.SlotInputFile, raw)

	exp := expander.New(cfg.K, cfg.MaxX, cfg.Canonical)
	recs, err := exp.ExpandBuffer(span.Slot(memarena.SlotInputFile))
	if err != nil {
		return merger.Result{}, err
	}

	radix.Sort(recs)
	opt := merger.Options{CutoffMin: cfg.CutoffMin, CutoffMax: cfg.CutoffMax, CounterMax: cfg.CounterMax}
	if a.Threads > 1 {
		return merger.MergeParallel(recs, opt, a.Threads), nil
	}
	return merger.Merge(recs, opt), nil
}

// readBinFile reads and decompresses one bin's temp data in full (from
// disk, or from memory in ramOnly mode), the granularity sortBin and the
// strict-memory diversion both need it at.
func readBinFile(storer *binstore.Storer, binID int) ([]byte, error) {
	rc, err := storer.OpenBin(binID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// writeOutput streams result's records into the output database, in the
// order Merge/sorts.Sort already established. cfg.KFF selects the
// self-contained single-file KFF-style container over the default
// two-file KMCS/KMCP pair.
func writeOutput(cfg config.Config, result merger.Result, sigToBin []uint32, bytesSampled int64) (Stats, error) {
	if cfg.KFF {
		return writeKFFOutput(cfg, result, bytesSampled)
	}

	lutPrefixLen := dbfile.LutPrefixLen(cfg.K, uint64(len(result.Records)), uint64(cfg.NumBins))
	w, err := dbfile.NewWriter(cfg.OutBase+".kmcs", cfg.K, lutPrefixLen, cfg.SigLen, cfg.CounterSize(),
		cfg.CutoffMin, cfg.CutoffMax, cfg.CounterMax, cfg.Canonical)
	if err != nil {
		return Stats{}, err
	}
	for _, rec := range result.Records {
		if err := w.WriteRecord(rec.Code, rec.Count); err != nil {
			return Stats{}, err
		}
	}
	h, err := w.Close()
	if err != nil {
		return Stats{}, err
	}
	if err := dbfile.WritePrefixFile(cfg.OutBase+".kmcp", w.LUT(), sigToBin, h); err != nil {
		return Stats{}, err
	}

	logx.Log.Infof("wrote %s unique k-mers (%s below cutoff-min, %s above cutoff-max)",
		humanize.Comma(int64(h.CountedUnique)), humanize.Comma(int64(result.NCutoffMin)), humanize.Comma(int64(result.NCutoffMax)))

	return Stats{
		CountedUnique: h.CountedUnique,
		NCutoffMin:    result.NCutoffMin,
		NCutoffMax:    result.NCutoffMax,
		BytesSampled:  bytesSampled,
	}, nil
}

// writeKFFOutput streams result's records into a single self-contained
// KFF-style container instead of the KMCS/KMCP pair. There is no prefix
// LUT to write: KFFWriter's footer is the whole index a reader gets.
func writeKFFOutput(cfg config.Config, result merger.Result, bytesSampled int64) (Stats, error) {
	w, err := dbfile.NewKFFWriter(cfg.OutBase+".kff", cfg.K, cfg.CounterSize(),
		cfg.CutoffMin, cfg.CutoffMax, cfg.CounterMax)
	if err != nil {
		return Stats{}, err
	}
	for _, rec := range result.Records {
		if err := w.WriteRecord(rec.Code, rec.Count); err != nil {
			return Stats{}, err
		}
	}
	h, err := w.Close()
	if err != nil {
		return Stats{}, err
	}

	logx.Log.Infof("wrote %s unique k-mers to KFF container (%s below cutoff-min, %s above cutoff-max)",
		humanize.Comma(int64(h.CountedUnique)), humanize.Comma(int64(result.NCutoffMin)), humanize.Comma(int64(result.NCutoffMax)))

	return Stats{
		CountedUnique: h.CountedUnique,
		NCutoffMin:    result.NCutoffMin,
		NCutoffMax:    result.NCutoffMax,
		BytesSampled:  bytesSampled,
	}, nil
}
