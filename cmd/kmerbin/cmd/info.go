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

	humanize "github.com/dustin/go-humanize"
	"github.com/shenwei356/stable"
	"github.com/spf13/cobra"

	"github.com/kmerbin/kmerbin/internal/dbfile"
)

var infoCmd = &cobra.Command{
	Use:     "info <db-basename>...",
	Aliases: []string{"stats"},
	Short:   "print header information for one or more counted databases",
	Long: `print header information for one or more counted databases

`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			checkError(fmt.Errorf("info needs at least one <db-basename>"))
		}

		tabular := getFlagBool(cmd, "tabular")
		columns := []stable.Column{
			{Header: "file"},
			{Header: "k", Align: stable.AlignRight},
			{Header: "canonical", Align: stable.AlignLeft},
			{Header: "counter-size", Align: stable.AlignRight},
			{Header: "cutoff-min", Align: stable.AlignRight},
			{Header: "cutoff-max", Align: stable.AlignRight},
			{Header: "unique", Align: stable.AlignRight},
		}

		if tabular {
			names := make([]string, len(columns))
			for i, c := range columns {
				names[i] = c.Header
			}
			for i, n := range names {
				if i > 0 {
					fmt.Print("\t")
				}
				fmt.Print(n)
			}
			fmt.Println()
		}

		tbl := stable.New()
		tbl.HeaderWithFormat(columns)

		for _, base := range args {
			r, err := dbfile.Open(base+".kmcs", base+".kmcp")
			checkError(err)

			canonical := "✓"
			if r.NoCanonicalize {
				canonical = "✕"
			}

			if tabular {
				fmt.Printf("%s\t%d\t%s\t%d\t%d\t%d\t%d\n",
					base, r.K, canonical, r.CounterSize, r.CutoffMin, r.CutoffMax, r.CountedUnique)
			} else {
				tbl.AddRow([]interface{}{
					base, r.K, canonical, r.CounterSize, r.CutoffMin, r.CutoffMax,
					humanize.Comma(int64(r.CountedUnique)),
				})
			}
			r.Close()
		}

		if !tabular {
			style := &stable.TableStyle{
				Name:      "plain",
				HeaderRow: stable.RowStyle{Begin: "", Sep: "  ", End: ""},
				DataRow:   stable.RowStyle{Begin: "", Sep: "  ", End: ""},
				Padding:   "",
			}
			fmt.Print(string(tbl.Render(style)))
		}
	},
}

func init() {
	RootCmd.AddCommand(infoCmd)

	infoCmd.Flags().BoolP("tabular", "T", false, "output in machine-friendly tabular format")
}
