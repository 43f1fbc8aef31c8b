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

package dbfile

import (
	"bufio"
	"os"

	"github.com/pkg/errors"

	"github.com/kmerbin/kmerbin"
)

// kffMagic opens and closes a KFF file (spec.md §6: "re-packaged as
// big-endian variable-length sections with named metadata ... and a
// trailing footer"). This is a self-describing single-file alternative to
// the KMCS/KMCP pair, not a byte-compatible reimplementation of any
// specific third-party KFF tool's container.
var kffMagic = [4]byte{'K', 'F', 'F', 1}

// KFFMagic is an exported copy of kffMagic, for callers outside this
// package that need to recognize a KFF file.
var KFFMagic = kffMagic

// RecordWriter is the interface both on-disk formats share: append one
// (canonical k-mer code, count) record in non-decreasing code order, then
// finalize and report the run's stats.
type RecordWriter interface {
	WriteRecord(code, count uint64) error
	Close() (Header, error)
}

// KFFWriter writes the optional KFF-style container: a short metadata
// section of named (key, big-endian varint value) entries, a flat run of
// variable-length (code, count) records (no prefix LUT — records are
// found by a linear scan, not a binary-search index), and a magic+count
// footer.
type KFFWriter struct {
	k           int
	counterSize int
	cutoffMin   uint64
	cutoffMax   uint64
	counterMax  uint64

	f   *os.File
	w   *bufio.Writer
	buf [8]byte

	total   uint64
	nCutMin uint64
	nCutMax uint64
}

// NewKFFWriter opens path and writes the metadata section. ordered is
// always true here: the completer only ever hands KFFWriter a
// code-sorted stream.
func NewKFFWriter(path string, k, counterSize int, cutoffMin, cutoffMax, counterMax uint64) (*KFFWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "dbfile: create kff file")
	}
	w := &KFFWriter{
		k: k, counterSize: counterSize,
		cutoffMin: cutoffMin, cutoffMax: cutoffMax, counterMax: counterMax,
		f: f, w: bufio.NewWriter(f),
	}
	if _, err := w.w.Write(kffMagic[:]); err != nil {
		return nil, err
	}
	meta := []struct {
		key string
		val uint64
	}{
		{"k", uint64(k)},
		{"max", counterMax},
		{"data_size", uint64(counterSize)},
		{"ordered", 1},
	}
	if err := kffPutUvarint(w.w, uint64(len(meta))); err != nil {
		return nil, err
	}
	for _, m := range meta {
		if err := kffPutString(w.w, m.key); err != nil {
			return nil, err
		}
		if err := kffPutUvarint(w.w, m.val); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func kffPutString(w *bufio.Writer, s string) error {
	if err := w.WriteByte(byte(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func kffPutUvarint(w *bufio.Writer, x uint64) error {
	var buf [8]byte
	n := kmerbin.PutUvarint(buf[:], x)
	if err := w.WriteByte(byte(n)); err != nil {
		return err
	}
	_, err := w.Write(buf[:n])
	return err
}

// WriteRecord appends one record, applying the same cutoff/saturation
// rules as Writer.WriteRecord.
func (w *KFFWriter) WriteRecord(code uint64, count uint64) error {
	if count < w.cutoffMin {
		w.nCutMin++
		return nil
	}
	if count > w.cutoffMax {
		w.nCutMax++
		return nil
	}
	if count > w.counterMax {
		count = w.counterMax
	}
	if err := kffPutUvarint(w.w, code); err != nil {
		return err
	}
	if err := kffPutUvarint(w.w, count); err != nil {
		return err
	}
	w.total++
	return nil
}

// Close flushes the footer (magic plus total record count) and the file.
func (w *KFFWriter) Close() (Header, error) {
	if err := kffPutUvarint(w.w, w.total); err != nil {
		return Header{}, err
	}
	if _, err := w.w.Write(kffMagic[:]); err != nil {
		return Header{}, err
	}
	if err := w.w.Flush(); err != nil {
		return Header{}, err
	}
	if err := w.f.Close(); err != nil {
		return Header{}, err
	}
	return Header{
		K:             uint32(w.k),
		CounterSize:   uint32(w.counterSize),
		CutoffMin:     uint32(w.cutoffMin),
		CutoffMax:     uint32(w.cutoffMax),
		CountedUnique: w.total,
	}, nil
}
