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

// Package dbfile reads and writes the two-file k-mer count database: a
// "KMCS" suffix file holding (suffix, counter) records in k-prefix order,
// and a "KMCP" prefix file holding the prefix lookup table, the
// signature-to-bin table and the fixed-layout header. Both files are
// little-endian, matching the completer's output contract.
package dbfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/kmerbin/kmerbin"
)

var le = binary.LittleEndian

// SuffixMagic and PrefixMagic bound each file; they're written both at the
// start and the end so a truncated file is detectable without a length
// check against the filesystem.
var (
	SuffixMagic = [4]byte{'K', 'M', 'C', 'S'}
	PrefixMagic = [4]byte{'K', 'M', 'C', 'P'}
)

// ErrInvalidFormat means a magic number didn't match.
var ErrInvalidFormat = errors.New("dbfile: invalid database file format")

// FormatVersion is the on-disk layout version this package reads/writes.
const FormatVersion uint32 = 1

// HeaderSize is the fixed byte size of the Header block (spec layout:
// k, mode, counter_size, lut_prefix_len, sig_len, cutoff_min, cutoff_max
// as 4 bytes each; counted_unique as 8 bytes; no_canonicalize as 1 byte;
// 27 bytes of zero padding; format_version and header_offset as 4 bytes
// each).
const HeaderSize = 7*4 + 8 + 1 + 27 + 4 + 4

// Header is the fixed-layout metadata block at the end of the prefix file.
type Header struct {
	K               uint32
	Mode            uint32
	CounterSize     uint32
	LutPrefixLen    uint32
	SigLen          uint32
	CutoffMin       uint32
	CutoffMax       uint32
	CountedUnique   uint64
	NoCanonicalize  bool
	FormatVersion   uint32
	HeaderOffset    uint32
}

func (h Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	off := 0
	put32 := func(v uint32) {
		le.PutUint32(buf[off:], v)
		off += 4
	}
	put32(h.K)
	put32(h.Mode)
	put32(h.CounterSize)
	put32(h.LutPrefixLen)
	put32(h.SigLen)
	put32(h.CutoffMin)
	put32(h.CutoffMax)
	le.PutUint64(buf[off:], h.CountedUnique)
	off += 8
	if h.NoCanonicalize {
		buf[off] = 1
	}
	off++
	off += 27 // reserved
	put32(h.FormatVersion)
	put32(h.HeaderOffset)
	return buf
}

func unmarshalHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, fmt.Errorf("dbfile: header is %d bytes, want %d", len(buf), HeaderSize)
	}
	var h Header
	off := 0
	get32 := func() uint32 {
		v := le.Uint32(buf[off:])
		off += 4
		return v
	}
	h.K = get32()
	h.Mode = get32()
	h.CounterSize = get32()
	h.LutPrefixLen = get32()
	h.SigLen = get32()
	h.CutoffMin = get32()
	h.CutoffMax = get32()
	h.CountedUnique = le.Uint64(buf[off:])
	off += 8
	h.NoCanonicalize = buf[off] != 0
	off++
	off += 27
	h.FormatVersion = get32()
	h.HeaderOffset = get32()
	return h, nil
}

// LutPrefixLen chooses the prefix LUT key length (an even number of
// bases) that minimizes n_reads*suffix_len + n_bins*4^lpl*8, per the
// completer's sizing rule.
func LutPrefixLen(k int, nReads, nBins uint64) int {
	best, bestCost := 2, ^uint64(0)
	for lpl := 2; lpl <= k && lpl <= 16; lpl += 2 {
		suffixLen := uint64(k - lpl)
		cost := nReads*suffixLen + nBins*(uint64(1)<<uint(lpl*2))*8
		if cost < bestCost {
			bestCost = cost
			best = lpl
		}
	}
	return best
}

// Writer accumulates (code, count) records in ascending k-prefix order and
// streams them to a suffix file plus an in-memory prefix LUT, exactly the
// split Phase 1 (concurrent with sorting) / Phase 2 (final header) the
// completer performs.
type Writer struct {
	k            int
	lutPrefixLen int
	sigLen       int
	counterSize  int // 4 or 8
	cutoffMin    uint64
	cutoffMax    uint64
	counterMax   uint64
	canonical    bool

	sf        io.WriteCloser
	sfw       *bufio.Writer
	lut       []uint64 // cumulative record count per lut-prefix bucket
	curPrefix uint64
	total     uint64
	nCutMin   uint64
	nCutMax   uint64

	sigToBin []uint32 // signature -> bin id, filled by the caller as bins finish

	buf [16]byte
}

// NewWriter opens sfPath for the suffix file and prepares the in-memory
// prefix LUT. counterSize must be 4 or 8 (spec.md §4.13: 4 bytes unless
// cutoffMax needs 8).
func NewWriter(sfPath string, k, lutPrefixLen, sigLen, counterSize int, cutoffMin, cutoffMax, counterMax uint64, canonical bool) (*Writer, error) {
	f, err := os.Create(sfPath)
	if err != nil {
		return nil, errors.Wrap(err, "dbfile: create suffix file")
	}
	w := &Writer{
		k: k, lutPrefixLen: lutPrefixLen, sigLen: sigLen, counterSize: counterSize,
		cutoffMin: cutoffMin, cutoffMax: cutoffMax, counterMax: counterMax, canonical: canonical,
		sf:  f,
		sfw: bufio.NewWriter(f),
		lut: make([]uint64, 1<<uint(lutPrefixLen*2)),
	}
	if _, err := w.sfw.Write(SuffixMagic[:]); err != nil {
		return nil, err
	}
	return w, nil
}

// WriteRecord appends one (canonical k-mer code, count) record. Records
// must arrive in non-decreasing code order (the merger/completer's
// contract); counts are saturated at counterMax and those outside
// [cutoffMin, cutoffMax] are dropped and tallied. The (suffix, count) pair
// is packed by kmerbin.PutUint64s into a control byte plus 2-16 data
// bytes, so a mostly-zero suffix or a small count never pays for the
// full counterSize width on disk.
func (w *Writer) WriteRecord(code uint64, count uint64) error {
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

	suffixLen := w.k - w.lutPrefixLen
	suffixCode := code & (uint64(1)<<uint(suffixLen*2) - 1)

	ctrl, n := kmerbin.PutUint64s(w.buf[:], suffixCode, count)
	if err := w.sfw.WriteByte(ctrl); err != nil {
		return err
	}
	if _, err := w.sfw.Write(w.buf[:n]); err != nil {
		return err
	}

	prefix := code >> uint(suffixLen*2)
	w.lut[prefix]++
	w.total++
	return nil
}

// Close flushes the suffix file, converting the per-bucket LUT into
// cumulative indices as it does, and returns the accumulated stats needed
// to write the prefix file's header.
func (w *Writer) Close() (Header, error) {
	if _, err := w.sfw.Write(SuffixMagic[:]); err != nil {
		return Header{}, err
	}
	if err := w.sfw.Flush(); err != nil {
		return Header{}, err
	}
	if err := w.sf.Close(); err != nil {
		return Header{}, err
	}

	var running uint64
	for i := range w.lut {
		running += w.lut[i]
		w.lut[i] = running
	}

	h := Header{
		K:              uint32(w.k),
		CounterSize:    uint32(w.counterSize),
		LutPrefixLen:   uint32(w.lutPrefixLen),
		SigLen:         uint32(w.sigLen),
		CutoffMin:      uint32(w.cutoffMin),
		CutoffMax:      uint32(w.cutoffMax),
		CountedUnique:  w.total,
		NoCanonicalize: !w.canonical,
		FormatVersion:  FormatVersion,
	}
	return h, nil
}

// LUT returns the cumulative-index prefix LUT; valid only after Close.
func (w *Writer) LUT() []uint64 { return w.lut }

// WritePrefixFile writes the "KMCP"-framed prefix file: the cumulative LUT,
// the running total, the signature→bin table, the header, and the closing
// magic.
func WritePrefixFile(pfPath string, lut []uint64, sigToBin []uint32, h Header) error {
	f, err := os.Create(pfPath)
	if err != nil {
		return errors.Wrap(err, "dbfile: create prefix file")
	}
	defer f.Close()
	bw := bufio.NewWriter(f)

	if _, err := bw.Write(PrefixMagic[:]); err != nil {
		return err
	}
	for _, v := range lut {
		if err := binary.Write(bw, le, v); err != nil {
			return err
		}
	}
	total := uint64(0)
	if len(lut) > 0 {
		total = lut[len(lut)-1]
	}
	if err := binary.Write(bw, le, total); err != nil {
		return err
	}
	for _, v := range sigToBin {
		if err := binary.Write(bw, le, v); err != nil {
			return err
		}
	}

	headerOffset, err := offsetOf(bw, f)
	if err != nil {
		return err
	}
	h.HeaderOffset = headerOffset
	if _, err := bw.Write(h.marshal()); err != nil {
		return err
	}
	if _, err := bw.Write(PrefixMagic[:]); err != nil {
		return err
	}
	return bw.Flush()
}

// offsetOf flushes bw into f and returns f's current position, which is
// the true file offset of the next byte written, as long as nothing else
// writes to f concurrently.
func offsetOf(bw *bufio.Writer, f *os.File) (uint32, error) {
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	off, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	return uint32(off), nil
}

// Reader opens an existing database for lookup and dump operations.
type Reader struct {
	Header
	sf  *os.File
	pf  *os.File
	lut []uint64
	sig []uint32
}

// Open reads the prefix file's header and tables and prepares sequential
// access to the suffix file.
func Open(sfPath, pfPath string) (*Reader, error) {
	pf, err := os.Open(pfPath)
	if err != nil {
		return nil, err
	}
	var magic [4]byte
	if _, err := io.ReadFull(pf, magic[:]); err != nil {
		return nil, err
	}
	if magic != PrefixMagic {
		return nil, ErrInvalidFormat
	}

	data, err := io.ReadAll(pf)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 || string(data[len(data)-4:]) != string(PrefixMagic[:]) {
		return nil, ErrInvalidFormat
	}
	body := data[:len(data)-4]
	if len(body) < HeaderSize {
		return nil, ErrInvalidFormat
	}
	hdr, err := unmarshalHeader(body[len(body)-HeaderSize:])
	if err != nil {
		return nil, err
	}
	rest := body[:len(body)-HeaderSize]

	lutLen := 1 << uint(hdr.LutPrefixLen*2)
	if len(rest) < lutLen*8+8 {
		return nil, ErrInvalidFormat
	}
	lut := make([]uint64, lutLen)
	for i := range lut {
		lut[i] = le.Uint64(rest[i*8:])
	}
	rest = rest[lutLen*8+8:] // skip LUT and the running total

	sigLen := 1<<uint(hdr.SigLen*2) + 1
	if len(rest) < sigLen*4 {
		return nil, ErrInvalidFormat
	}
	sig := make([]uint32, sigLen)
	for i := range sig {
		sig[i] = le.Uint32(rest[i*4:])
	}

	sf, err := os.Open(sfPath)
	if err != nil {
		pf.Close()
		return nil, err
	}
	var sm [4]byte
	if _, err := io.ReadFull(sf, sm[:]); err != nil {
		return nil, err
	}
	if sm != SuffixMagic {
		return nil, ErrInvalidFormat
	}

	return &Reader{Header: hdr, sf: sf, pf: pf, lut: lut, sig: sig}, nil
}

// LUT returns the cumulative prefix LUT.
func (r *Reader) LUT() []uint64 { return r.lut }

// SignatureToBin returns the signature->bin table.
func (r *Reader) SignatureToBin() []uint32 { return r.sig }

// Close releases both underlying files.
func (r *Reader) Close() error {
	err1 := r.sf.Close()
	err2 := r.pf.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Next reads the next (k-mer code, count) record from the suffix file.
// prefix is supplied by the caller, which iterates the LUT to know which
// k-prefix bucket it is currently reading within. The record's control
// byte (kmerbin.PutUint64s's output) self-describes how many data bytes
// follow, so Next never needs a fixed per-record stride.
func (r *Reader) Next(prefix uint64) (code uint64, count uint64, err error) {
	var ctrlBuf [1]byte
	if _, err := io.ReadFull(r.sf, ctrlBuf[:]); err != nil {
		return 0, 0, err
	}
	ctrl := ctrlBuf[0]
	v1Len, v2Len := kmerbin.ByteLengths(ctrl)
	buf := make([]byte, int(v1Len)+int(v2Len))
	if _, err := io.ReadFull(r.sf, buf); err != nil {
		return 0, 0, err
	}
	values, _ := kmerbin.Uint64s(ctrl, buf)
	suffixCode := values[0]
	count = values[1]

	suffixLen := int(r.K) - int(r.LutPrefixLen)
	code = prefix<<uint(suffixLen*2) | suffixCode
	return code, count, nil
}
