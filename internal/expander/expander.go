// Package expander turns bin-file bytes (a concatenation of super-k-mer
// records) into k+x-mer records ready for the radix sorter (spec.md §4.8).
package expander

import (
	"errors"
	"sync"

	"github.com/kmerbin/kmerbin"
)

// ErrTruncated means a bin-file buffer ends mid-record.
var ErrTruncated = errors.New("expander: truncated super-k-mer record")

// Expander splits super-k-mers into k+x-mer records.
type Expander struct {
	K           int
	MaxX        int
	BothStrands bool
}

// New returns an Expander for the given k-mer size, maximum extension
// length, and canonicalization mode.
func New(k, maxX int, bothStrands bool) *Expander {
	return &Expander{K: k, MaxX: maxX, BothStrands: bothStrands}
}

// Expand decodes one super-k-mer record (header byte + packed bases) and
// returns the k+x-mer records it expands to. The record count always
// matches binstore.NPlusXRecs for the same super-k-mer and parameters.
func (e *Expander) Expand(sk kmerbin.SuperKmer) []kmerbin.KXmerRecord {
	if e.BothStrands {
		return e.expandBothStrands(sk)
	}
	return e.expandSingleStrand(sk)
}

// ExpandBuffer walks a whole bin-file buffer (a flat concatenation of
// records) and expands every super-k-mer it contains.
func (e *Expander) ExpandBuffer(buf []byte) ([]kmerbin.KXmerRecord, error) {
	var out []kmerbin.KXmerRecord
	off := 0
	for off < len(buf) {
		header := buf[off]
		length := e.K + int(header)
		packedLen := (length*2 + 7) / 8
		if off+1+packedLen > len(buf) {
			return nil, ErrTruncated
		}
		sk := kmerbin.SuperKmer{K: e.K, Header: header, Packed: buf[off+1 : off+1+packedLen]}
		out = append(out, e.Expand(sk)...)
		off += 1 + packedLen
	}
	return out, nil
}

// recordSpan locates one super-k-mer record's bytes within a bin-file
// buffer: [start, start+1+packedLen).
type recordSpan struct {
	start, end int
}

// scanSpans makes one cheap sequential pass over buf, reading only each
// record's header byte, and returns every record's byte span. Splitting
// this from the actual decode/expand work is what lets ExpandBufferParallel
// hand disjoint, contiguous chunks of spans to worker goroutines without
// any of them needing to walk bytes another worker owns.
func (e *Expander) scanSpans(buf []byte) ([]recordSpan, error) {
	var spans []recordSpan
	off := 0
	for off < len(buf) {
		header := buf[off]
		length := e.K + int(header)
		packedLen := (length*2 + 7) / 8
		end := off + 1 + packedLen
		if end > len(buf) {
			return nil, ErrTruncated
		}
		spans = append(spans, recordSpan{start: off, end: end})
		off = end
	}
	return spans, nil
}

// ExpandBufferParallel is ExpandBuffer spread across up to threads worker
// goroutines: a sequential scan finds record boundaries, then each worker
// expands its own contiguous slice of records independently. Record order
// is preserved in the concatenated result, so callers that depend on
// ExpandBuffer's ordering (none do today, but radix.Sort doesn't care
// either way) see identical output to the sequential path for threads==1.
func (e *Expander) ExpandBufferParallel(buf []byte, threads int) ([]kmerbin.KXmerRecord, error) {
	if threads < 2 {
		return e.ExpandBuffer(buf)
	}
	spans, err := e.scanSpans(buf)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, nil
	}
	if threads > len(spans) {
		threads = len(spans)
	}

	chunks := make([][]kmerbin.KXmerRecord, threads)
	chunkSize := (len(spans) + threads - 1) / threads
	var wg sync.WaitGroup
	for w := 0; w < threads; w++ {
		lo := w * chunkSize
		if lo >= len(spans) {
			break
		}
		hi := lo + chunkSize
		if hi > len(spans) {
			hi = len(spans)
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			var out []kmerbin.KXmerRecord
			for _, sp := range spans[lo:hi] {
				header := buf[sp.start]
				sk := kmerbin.SuperKmer{K: e.K, Header: header, Packed: buf[sp.start+1 : sp.end]}
				out = append(out, e.Expand(sk)...)
			}
			chunks[w] = out
		}(w, lo, hi)
	}
	wg.Wait()

	var out []kmerbin.KXmerRecord
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out, nil
}

// expandSingleStrand implements spec.md §4.8's non-canonical rule: every
// max_x+1 bases form a k+x-mer with full extension, one shorter trailing
// record if leftovers remain.
func (e *Expander) expandSingleStrand(sk kmerbin.SuperKmer) []kmerbin.KXmerRecord {
	bases := sk.Bases()
	k := e.K
	extra := len(bases) - k
	var out []kmerbin.KXmerRecord
	for pos := 0; pos <= extra; pos += e.MaxX + 1 {
		x := e.MaxX
		if extra-pos < x {
			x = extra - pos
		}
		rec, err := kmerbin.NewKXmerRecord(bases[pos:pos+k], bases[pos+k:pos+k+x], k)
		if err == nil {
			out = append(out, rec)
		}
	}
	return out
}

// expandBothStrands implements spec.md §4.8's canonical walk: a group
// closes (and a new one opens at the current k-window) whenever the
// canonical strand changes or the group's extension count reaches max_x.
// This mirrors binstore.NPlusXRecs's grouping exactly, so the two always
// agree on record count for the same super-k-mer.
//
// Every k-mer window in a closed group shares one canonical orientation
// (that's the whole point of closing on a transition), so the group's
// k-prefix must be stored in that orientation too: emit packs the group's
// span forward when the group is canonical-forward, and reverse-complements
// the span (so its leading k bases become the canonical prefix of the
// group's last window) when the group is canonical-reverse. Without this,
// a k-mer and its reverse complement pack to different Keys and the
// merger, which collapses purely on Prefix().Code, never merges them.
func (e *Expander) expandBothStrands(sk kmerbin.SuperKmer) []kmerbin.KXmerRecord {
	bases := sk.Bases()
	k := e.K
	extra := len(bases) - k
	var out []kmerbin.KXmerRecord

	start := 0
	x := 0
	prevCanon := canonicalForward(sk, 0)
	emit := func(from, to int, canon bool) {
		span := bases[from : to+k]
		if !canon {
			span = revCompBases(span)
		}
		rec, err := kmerbin.NewKXmerRecord(span[:k], span[k:], k)
		if err == nil {
			out = append(out, rec)
		}
	}
	for i := 1; i <= extra; i++ {
		canon := canonicalForward(sk, i)
		x++
		if canon != prevCanon || x == e.MaxX {
			emit(start, i-1, prevCanon)
			start = i
			x = 0
		}
		prevCanon = canon
	}
	emit(start, extra, prevCanon)
	return out
}

// canonicalForward reports whether the k-mer at offset i within sk is
// canonical in its forward orientation (true) or its reverse complement
// (false).
func canonicalForward(sk kmerbin.SuperKmer, i int) bool {
	kc, err := sk.KmerAt(i)
	if err != nil {
		return true
	}
	return kc.Code <= kc.RevComp().Code
}

// complementBase returns the Watson-Crick complement of a single base
// letter, matching kmerbin's 2-bit A/C/G/T encoding.
func complementBase(b byte) byte {
	switch b {
	case 'A':
		return 'T'
	case 'C':
		return 'G'
	case 'G':
		return 'C'
	case 'T':
		return 'A'
	default:
		return b
	}
}

// revCompBases reverse-complements a raw base sequence. Operates on decoded
// bytes rather than a packed KmerCode since a group's span (k+x bases) can
// exceed kmerbin.MaxK.
func revCompBases(bases []byte) []byte {
	out := make([]byte, len(bases))
	n := len(bases)
	for i, b := range bases {
		out[n-1-i] = complementBase(b)
	}
	return out
}
