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

	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"

	"github.com/kmerbin/kmerbin"
	"github.com/kmerbin/kmerbin/internal/dbfile"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <db-basename>",
	Short: "dump a counted database as plain k-mer<TAB>count text",
	Long: `dump a counted database as plain k-mer<TAB>count text

Reads <db-basename>.kmcs/.kmcp (or, with --kff, <db-basename>.kff isn't
supported here since it carries no prefix LUT to iterate by bucket) and
writes one "<kmer>\t<count>" line per record, in on-disk order.

`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			checkError(fmt.Errorf("dump takes exactly one positional argument: <db-basename>"))
		}
		base := args[0]
		outFile := getFlagString(cmd, "out-file")

		r, err := dbfile.Open(base+".kmcs", base+".kmcp")
		checkError(err)
		defer r.Close()

		outfh, err := xopen.Wopen(outFile)
		checkError(err)
		defer outfh.Close()

		lut := r.LUT()
		k := int(r.K)
		var prev uint64
		for prefix, cum := range lut {
			n := cum - prev
			prev = cum
			for i := uint64(0); i < n; i++ {
				code, count, err := r.Next(uint64(prefix))
				checkError(err)
				fmt.Fprintf(outfh, "%s\t%d\n", kmerbin.Decode(code, k), count)
			}
		}
	},
}

func init() {
	RootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringP("out-file", "o", "-", `out file ("-" for stdout)`)
}
