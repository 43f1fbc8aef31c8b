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
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/kmerbin/kmerbin/internal/logx"
)

// Options holds the persistent flags every subcommand reads.
type Options struct {
	NumCPUs int
	Verbose bool
}

func getOptions(cmd *cobra.Command) *Options {
	return &Options{
		NumCPUs: getFlagPositiveInt(cmd, "threads"),
		Verbose: getFlagBool(cmd, "verbose"),
	}
}

// checkError logs a fatal error and exits, the way every unikmer-derived
// command terminates on the first unrecoverable condition.
func checkError(err error) {
	if err != nil {
		logx.Log.Error(err)
		os.Exit(1)
	}
}

func getFlagString(cmd *cobra.Command, flag string) string {
	v, err := cmd.Flags().GetString(flag)
	checkError(err)
	return v
}

func getFlagBool(cmd *cobra.Command, flag string) bool {
	v, err := cmd.Flags().GetBool(flag)
	checkError(err)
	return v
}

func getFlagInt(cmd *cobra.Command, flag string) int {
	v, err := cmd.Flags().GetInt(flag)
	checkError(err)
	return v
}

func getFlagPositiveInt(cmd *cobra.Command, flag string) int {
	v := getFlagInt(cmd, flag)
	if v <= 0 {
		checkError(fmt.Errorf("value of flag --%s should be positive: %d", flag, v))
	}
	return v
}

func getFlagNonNegativeInt(cmd *cobra.Command, flag string) int {
	v := getFlagInt(cmd, flag)
	if v < 0 {
		checkError(fmt.Errorf("value of flag --%s should be >= 0: %d", flag, v))
	}
	return v
}

func getFlagFloat64(cmd *cobra.Command, flag string) float64 {
	v, err := cmd.Flags().GetFloat64(flag)
	checkError(err)
	return v
}

func getFlagUint64(cmd *cobra.Command, flag string) uint64 {
	v, err := cmd.Flags().GetUint64(flag)
	checkError(err)
	return v
}

func isStdin(file string) bool  { return file == "-" }
func isStdout(file string) bool { return file == "-" }

// getFileList resolves the positional input arguments, expanding a lone
// "@listfile" argument into one file path per line, the way spec.md's
// <inputs-or-@listfile> positional is documented to behave. Blank lines
// and lines starting with "#" are skipped.
func getFileList(args []string) []string {
	if len(args) == 0 {
		return []string{"-"}
	}
	if len(args) == 1 && strings.HasPrefix(args[0], "@") {
		return readListFile(args[0][1:])
	}
	files := make([]string, 0, len(args))
	for _, a := range args {
		if strings.HasPrefix(a, "@") {
			files = append(files, readListFile(a[1:])...)
			continue
		}
		files = append(files, a)
	}
	return files
}

func readListFile(path string) []string {
	f, err := os.Open(path)
	checkError(err)
	defer f.Close()

	var files []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		files = append(files, line)
	}
	checkError(scanner.Err())
	return files
}

// defaultTmpDir resolves a scratch directory under the user's home when
// count's <tmp-dir> positional argument is empty, mirroring the other shenwei356 CLIs' use of
// go-homedir for a per-user default instead of the process's cwd.
func defaultTmpDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return "."
	}
	return home + "/.kmerbin-tmp"
}

// defaultThreads mirrors unikmer's root.go cap: most machines benefit from
// more than 2 OS threads here, but NumCPU alone over-subscribes small VMs
// during casual single-file runs, so the default stays modest and -t
// overrides it.
func defaultThreads() int {
	n := runtime.NumCPU()
	if n > 2 {
		return 2
	}
	if n < 1 {
		return 1
	}
	return n
}
