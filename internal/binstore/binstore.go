// Package binstore implements the per-bin collector and storer (spec.md
// §4.6): super-k-mers are packed into bin-part buffers, pushed to a shared
// bin-part queue, and appended to each bin's temporary file by a storer
// goroutine. It also counts the k+x-mer records each super-k-mer will later
// expand to, so the expander (C8) and sorter manager (C7) can size their
// work without re-walking every super-k-mer.
//
// Temporary bin files are written gzip-compressed (via klauspost/pgzip,
// the same parallel gzip the CLI's own outStream helper wraps its output
// streams in) since a typical bin file is mostly repetitive 2-bit-packed
// sequence and compresses well, shrinking the working set's footprint on
// disk between the splitting and sorting passes.
package binstore

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"

	"github.com/kmerbin/kmerbin"
)

// ExpanderPart describes one super-k-mer's byte range within a bin-part
// buffer and how many k+x-mer records it will expand to, so a later
// expander thread can divide the buffer into independent sub-ranges.
type ExpanderPart struct {
	RangeBytes int
	KXmerCount uint64
}

// BinPart is one flushed collector buffer, ready for the storer.
type BinPart struct {
	BinID     int
	Buffer    []byte
	UsedBytes int
	Capacity  int
	Expander  []ExpanderPart
	TotalRecs uint64
}

// Collector accumulates super-k-mers for a single bin into a fixed-size
// buffer, flushing full buffers onto a shared bin-part queue.
type Collector struct {
	BinID       int
	MaxX        int
	BothStrands bool

	out   chan<- BinPart
	buf   []byte
	used  int
	parts []ExpanderPart
}

// NewCollector returns a collector for one bin, writing completed parts to
// out (the shared bin-part queue).
func NewCollector(binID, capacity, maxX int, bothStrands bool, out chan<- BinPart) *Collector {
	return &Collector{
		BinID:       binID,
		MaxX:        maxX,
		BothStrands: bothStrands,
		out:         out,
		buf:         make([]byte, capacity),
	}
}

// recordBytes returns the on-disk encoding of a super-k-mer: one header
// byte (length - k) followed by its 2-bit packed bases.
func recordBytes(sk kmerbin.SuperKmer) []byte {
	rec := make([]byte, 1+len(sk.Packed))
	rec[0] = sk.Header
	copy(rec[1:], sk.Packed)
	return rec
}

// Add appends one super-k-mer to the collector, flushing the current
// buffer first if it doesn't fit. It returns an error only if a single
// record is larger than the collector's whole capacity.
func (c *Collector) Add(sk kmerbin.SuperKmer) error {
	rec := recordBytes(sk)
	if len(rec) > len(c.buf) {
		return errors.Errorf("binstore: record of %d bytes exceeds bin_part_size %d", len(rec), len(c.buf))
	}
	if c.used+len(rec) > len(c.buf) {
		c.Flush()
	}
	copy(c.buf[c.used:], rec)
	c.used += len(rec)

	n := NPlusXRecs(sk, c.MaxX, c.BothStrands)
	c.parts = append(c.parts, ExpanderPart{RangeBytes: len(rec), KXmerCount: n})
	return nil
}

// Flush pushes the current buffer onto the bin-part queue (if non-empty)
// and resets the collector to accept a fresh buffer.
func (c *Collector) Flush() {
	if c.used == 0 {
		return
	}
	var total uint64
	for _, p := range c.parts {
		total += p.KXmerCount
	}
	buf := make([]byte, c.used)
	copy(buf, c.buf[:c.used])
	c.out <- BinPart{
		BinID:     c.BinID,
		Buffer:    buf,
		UsedBytes: c.used,
		Capacity:  len(c.buf),
		Expander:  c.parts,
		TotalRecs: total,
	}
	c.used = 0
	c.parts = nil
}

// NPlusXRecs computes the number of k+x-mer records a super-k-mer will
// expand to (spec.md §4.6 / §4.8).
func NPlusXRecs(sk kmerbin.SuperKmer, maxX int, bothStrands bool) uint64 {
	l := sk.Length()
	k := sk.K
	extra := l - k
	if !bothStrands {
		return uint64(1 + extra/(maxX+1))
	}

	var count uint64 = 1
	x := 0
	prevCanon := strandOf(sk, 0)
	for i := 1; i <= extra; i++ {
		canon := strandOf(sk, i)
		x++
		if canon != prevCanon || x == maxX {
			count++
			x = 0
		}
		prevCanon = canon
	}
	return count
}

// strandOf reports which strand the k-mer starting at offset i (within
// the super-k-mer) is canonical on: true if the forward encoding is the
// canonical (smaller) one.
func strandOf(sk kmerbin.SuperKmer, i int) bool {
	kc, err := sk.KmerAt(i)
	if err != nil {
		return true
	}
	return kc.Code <= kc.RevComp().Code
}

// Storer drains the shared bin-part queue and appends each buffer to the
// matching bin's temporary file, tracking per-bin totals. File layout is a
// flat concatenation of records with no intra-file index (spec.md §4.6).
type Storer struct {
	dir     string
	ramOnly bool

	mu    sync.Mutex
	files map[int]*os.File
	gzw   map[int]*pgzip.Writer
	mem   map[int]*bytes.Buffer // bin data when ramOnly, in place of files
	sizes map[int]int64
	recs  map[int]uint64
	err   error
}

// NewStorer returns a Storer that writes each bin's temporary file under
// dir, named bin-<id>.tmp. When ramOnly is true, bin data is kept
// gzip-compressed in memory instead: spec.md's -r flag trades the
// between-stage disk footprint for RAM, for runs small enough that every
// bin's compressed bytes comfortably fit alongside the sort/merge arena.
func NewStorer(dir string, ramOnly bool) *Storer {
	return &Storer{
		dir:     dir,
		ramOnly: ramOnly,
		files:   make(map[int]*os.File),
		gzw:     make(map[int]*pgzip.Writer),
		mem:     make(map[int]*bytes.Buffer),
		sizes:   make(map[int]int64),
		recs:    make(map[int]uint64),
	}
}

// Run drains parts until the channel is closed, returning the first write
// error encountered (if any). It is meant to run in its own goroutine.
func (s *Storer) Run(parts <-chan BinPart) error {
	for p := range parts {
		if err := s.store(p); err != nil {
			s.mu.Lock()
			if s.err == nil {
				s.err = err
			}
			s.mu.Unlock()
		}
	}
	return s.err
}

func (s *Storer) store(p BinPart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gw, ok := s.gzw[p.BinID]
	if !ok {
		if s.ramOnly {
			buf := new(bytes.Buffer)
			s.mem[p.BinID] = buf
			gw = pgzip.NewWriter(buf)
		} else {
			path := binPath(s.dir, p.BinID)
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return errors.Wrapf(err, "binstore: open bin %d file", p.BinID)
			}
			s.files[p.BinID] = f
			gw = pgzip.NewWriter(f)
		}
		s.gzw[p.BinID] = gw
	}
	n, err := gw.Write(p.Buffer)
	if err != nil {
		return errors.Wrapf(err, "binstore: write bin %d", p.BinID)
	}
	s.sizes[p.BinID] += int64(n)
	s.recs[p.BinID] += p.TotalRecs
	return nil
}

// Size returns the total bytes written so far for a bin.
func (s *Storer) Size(binID int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sizes[binID]
}

// Records returns the total k+x-mer record count collected so far for a
// bin.
func (s *Storer) Records(binID int) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs[binID]
}

// Close flushes every bin's gzip trailer and closes the underlying file
// (a no-op per bin in ramOnly mode, since there is no file).
func (s *Storer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for id, gw := range s.gzw {
		if err := gw.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "binstore: close bin %d gzip stream", id)
		}
	}
	for id, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "binstore: close bin %d file", id)
		}
	}
	return firstErr
}

// OpenBin opens a bin's completed data for reading, transparently
// decompressing the pgzip stream Storer wrote it as — from the in-memory
// buffer in ramOnly mode, from disk otherwise. The caller must Close the
// returned ReadCloser.
func (s *Storer) OpenBin(binID int) (io.ReadCloser, error) {
	if !s.ramOnly {
		return OpenBinFile(s.dir, binID)
	}
	s.mu.Lock()
	buf, ok := s.mem[binID]
	s.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("binstore: bin %d has no in-memory data", binID)
	}
	gr, err := pgzip.NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, errors.Wrapf(err, "binstore: decompress bin %d", binID)
	}
	return gr, nil
}

// RemoveBin releases a bin's temporary data once it has been fully read
// and folded into a sort result — deleting the disk file, or dropping
// the in-memory buffer's reference in ramOnly mode so the garbage
// collector can reclaim it.
func (s *Storer) RemoveBin(binID int) error {
	if !s.ramOnly {
		return RemoveBinFile(s.dir, binID)
	}
	s.mu.Lock()
	delete(s.mem, binID)
	s.mu.Unlock()
	return nil
}

// OpenBinFile opens a bin's completed temporary file for reading, transparently
// decompressing the pgzip stream Storer wrote it as. The caller must Close the
// returned ReadCloser, which releases both the gzip reader and the file handle.
func OpenBinFile(dir string, binID int) (io.ReadCloser, error) {
	f, err := os.Open(binPath(dir, binID))
	if err != nil {
		return nil, errors.Wrapf(err, "binstore: open bin %d file", binID)
	}
	gr, err := pgzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "binstore: decompress bin %d file", binID)
	}
	return &binFileReader{gr: gr, f: f}, nil
}

// binFileReader closes its gzip reader before the underlying file, the
// order pgzip.Reader.Close expects.
type binFileReader struct {
	gr *pgzip.Reader
	f  *os.File
}

func (r *binFileReader) Read(p []byte) (int, error) { return r.gr.Read(p) }

func (r *binFileReader) Close() error {
	err1 := r.gr.Close()
	err2 := r.f.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func binPath(dir string, binID int) string {
	return fmt.Sprintf("%s/bin-%04d.tmp", dir, binID)
}

// RemoveBinFile deletes a bin's temporary file once its contents have been
// fully read and folded into a sort result. Callers normally do this
// unconditionally after a successful read; the developer-mode -keep-temp
// flag is the only thing that should suppress the call.
func RemoveBinFile(dir string, binID int) error {
	if err := os.Remove(binPath(dir, binID)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "binstore: remove bin %d file", binID)
	}
	return nil
}
