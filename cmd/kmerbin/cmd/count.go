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

package cmd

import (
	"fmt"
	"runtime"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kmerbin/kmerbin/internal/config"
	"github.com/kmerbin/kmerbin/internal/logx"
	"github.com/kmerbin/kmerbin/internal/pipeline"
)

var countCmd = &cobra.Command{
	Use:   "count <inputs-or-@listfile> <output-basename> <tmp-dir>",
	Short: "count k-mers from FASTA/FASTQ files, spilling to disk",
	Long: `count k-mers from FASTA/FASTQ files, spilling to disk

Takes one or more FASTA/FASTQ files (or a single @listfile naming one
path per line), a basename for the output database, and a directory for
the per-bin temp files, and writes <output-basename>.kmcs/.kmcp (or, with
--kff, a single <output-basename>.kff). BAM input is not read by this
command.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		runtime.GOMAXPROCS(opt.NumCPUs)

		if len(args) != 3 {
			checkError(fmt.Errorf("count takes exactly 3 positional arguments: <inputs-or-@listfile> <output-basename> <tmp-dir>, got %d", len(args)))
		}
		files := getFileList(args[:1])
		outBase := args[1]
		tmpDir := args[2]
		if tmpDir == "" {
			tmpDir = defaultTmpDir()
		}

		cfg := config.Default()
		cfg.Inputs = files
		cfg.OutBase = outBase
		cfg.TmpDir = tmpDir
		cfg.Verbose = opt.Verbose
		cfg.Threads = opt.NumCPUs

		cfg.K = getFlagPositiveInt(cmd, "kmer-len")
		cfg.MemoryGB = getFlagFloat64(cmd, "memory")
		cfg.StrictMemory = getFlagBool(cmd, "strict-memory")
		if p := getFlagInt(cmd, "sig-len"); p > 0 {
			cfg.SigLen = p
		}
		cfg.CutoffMin = getFlagUint64(cmd, "cutoff-min")
		cfg.CutoffMax = getFlagUint64(cmd, "cutoff-max")
		cfg.CounterMax = getFlagUint64(cmd, "counter-max")
		cfg.Canonical = !getFlagBool(cmd, "no-canonical")
		cfg.RAMOnly = getFlagBool(cmd, "ram-only")
		if n := getFlagNonNegativeInt(cmd, "num-bins"); n > 0 {
			cfg.NumBins = n
		}
		cfg.KFF = getFlagBool(cmd, "kff")
		cfg.KeepTemp = getFlagBool(cmd, "keep-temp")

		switch getFlagString(cmd, "format") {
		case "a":
			cfg.Format = config.FormatFASTA
		case "q":
			cfg.Format = config.FormatFASTQ
		case "m":
			cfg.Format = config.FormatMultiline
		default:
			cfg.Format = config.FormatAuto
		}

		cfg.ReaderThreads = getFlagNonNegativeInt(cmd, "sf-threads")
		cfg.SplitterThreads = getFlagNonNegativeInt(cmd, "sp-threads")
		cfg.SorterThreads = getFlagNonNegativeInt(cmd, "sr-threads")
		cfg.OutputThreads = getFlagNonNegativeInt(cmd, "so-threads")
		cfg.StrictSortThreads = getFlagNonNegativeInt(cmd, "smso-threads")
		cfg.StrictUnpackThreads = getFlagNonNegativeInt(cmd, "smun-threads")
		cfg.StrictMergeThreads = getFlagNonNegativeInt(cmd, "smme-threads")

		stats, err := pipeline.Run(cfg)
		checkError(err)

		logx.Log.Infof("done: %s unique k-mers counted (%s below cutoff-min, %s above cutoff-max)",
			humanize.Comma(int64(stats.CountedUnique)),
			humanize.Comma(int64(stats.NCutoffMin)),
			humanize.Comma(int64(stats.NCutoffMax)))
		if stats.BinsDiverted > 0 {
			logx.Log.Infof("%d bin(s) processed via the strict-memory sub-pipeline", stats.BinsDiverted)
		}
	},
}

func init() {
	RootCmd.AddCommand(countCmd)

	countCmd.Flags().IntP("kmer-len", "k", 25, "k-mer length, 1 <= k <= 32")
	countCmd.Flags().Float64P("memory", "m", 12, "memory budget in GiB")
	countCmd.Flags().BoolP("strict-memory", "", false, "never exceed the memory budget, at the cost of an extra sub-binning pass")
	countCmd.Flags().IntP("sig-len", "p", 0, "minimizer signature length, 5 <= p <= 11 (0: choose automatically)")
	countCmd.Flags().StringP("format", "f", "", "input format: a (FASTA), q (FASTQ), m (multi-line FASTA); recorded in the config only, the reader always auto-detects the format")
	countCmd.Flags().Uint64P("cutoff-min", "", 2, "exclude k-mers counted fewer than this many times")
	countCmd.Flags().Uint64P("cutoff-max", "", 1<<32-1, "exclude k-mers counted more than this many times")
	countCmd.Flags().Uint64P("counter-max", "", 255, "saturate counts above this value instead of excluding them")
	countCmd.Flags().BoolP("no-canonical", "b", false, "count each strand separately instead of canonicalizing")
	countCmd.Flags().BoolP("ram-only", "r", false, "keep all bins resident in RAM instead of spilling to disk")
	countCmd.Flags().IntP("num-bins", "n", 0, "number of bins (0: choose automatically)")
	countCmd.Flags().IntP("sf-threads", "", 0, "reader-stage thread count (0: derive from -j)")
	countCmd.Flags().IntP("sp-threads", "", 0, "splitter-stage thread count (0: derive from -j)")
	countCmd.Flags().IntP("sr-threads", "", 0, "sorter-stage thread count (0: derive from -j)")
	countCmd.Flags().IntP("so-threads", "", 0, "output-stage thread count (0: derive from -j)")
	countCmd.Flags().IntP("smso-threads", "", 0, "strict-mode sort thread count (0: derive from -j)")
	countCmd.Flags().IntP("smun-threads", "", 0, "strict-mode unpack thread count (0: derive from -j)")
	countCmd.Flags().IntP("smme-threads", "", 0, "strict-mode merge thread count (0: derive from -j)")
	countCmd.Flags().BoolP("kff", "", false, "write a single self-contained KFF-style container instead of the .kmcs/.kmcp pair")
	countCmd.Flags().BoolP("keep-temp", "", false, "keep per-bin temp files after the run, for inspection")
}
