package expander

import (
	"testing"

	"github.com/kmerbin/kmerbin"
	"github.com/kmerbin/kmerbin/internal/binstore"
)

func mustSuperKmer(t *testing.T, bases string, k int) kmerbin.SuperKmer {
	t.Helper()
	sk, err := kmerbin.NewSuperKmer([]byte(bases), k)
	if err != nil {
		t.Fatalf("NewSuperKmer(%s, %d): %v", bases, k, err)
	}
	return sk
}

func TestExpandSingleStrandCountMatchesFormula(t *testing.T) {
	k, maxX := 8, 2
	sk := mustSuperKmer(t, "ACGTACGTACGTA", k) // L=13, extra=5
	e := New(k, maxX, false)
	recs := e.Expand(sk)
	want := binstore.NPlusXRecs(sk, maxX, false)
	if uint64(len(recs)) != want {
		t.Errorf("got %d records, want %d", len(recs), want)
	}
	for _, r := range recs {
		if r.Prefix().K != k {
			t.Errorf("record prefix k = %d, want %d", r.Prefix().K, k)
		}
	}
}

func TestExpandBothStrandsCountMatchesNPlusXRecs(t *testing.T) {
	k, maxX := 6, 3
	sk := mustSuperKmer(t, "ACGTACGTACGTACGTACGT", k)
	e := New(k, maxX, true)
	recs := e.Expand(sk)
	want := binstore.NPlusXRecs(sk, maxX, true)
	if uint64(len(recs)) != want {
		t.Errorf("got %d records, want %d", len(recs), want)
	}
}

// TestExpandBothStrandsCanonicalizesReverseComplement is the reviewer's
// worked example: super-k-mer ACGT at k=3 holds two overlapping 3-mers,
// ACG (canonical-forward) and CGT (whose canonical form is its reverse
// complement, ACG). Both records must pack the canonical prefix ACG, or
// the merger -- which collapses purely on Prefix().Code -- counts them as
// two distinct k-mers instead of one occurring twice.
func TestExpandBothStrandsCanonicalizesReverseComplement(t *testing.T) {
	k := 3
	sk := mustSuperKmer(t, "ACGT", k)
	e := New(k, 4, true)
	recs := e.Expand(sk)
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}

	want, err := kmerbin.Encode([]byte("ACG"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i, r := range recs {
		if r.Prefix().Code != want {
			t.Errorf("record %d prefix = %s, want ACG (canonical)", i, kmerbin.Decode(r.Prefix().Code, k))
		}
	}
}

func TestExpandBufferRoundTrip(t *testing.T) {
	k := 8
	sk1 := mustSuperKmer(t, "ACGTACGTAC", k)
	sk2 := mustSuperKmer(t, "TTGGCATCGATCGA", k)

	var buf []byte
	for _, sk := range []kmerbin.SuperKmer{sk1, sk2} {
		buf = append(buf, sk.Header)
		buf = append(buf, sk.Packed...)
	}

	e := New(k, 4, false)
	recs, err := e.ExpandBuffer(buf)
	if err != nil {
		t.Fatalf("ExpandBuffer: %v", err)
	}
	want := len(e.Expand(sk1)) + len(e.Expand(sk2))
	if len(recs) != want {
		t.Errorf("ExpandBuffer produced %d records, want %d", len(recs), want)
	}
}

func TestExpandBufferTruncated(t *testing.T) {
	e := New(8, 4, false)
	if _, err := e.ExpandBuffer([]byte{5, 1, 2}); err != ErrTruncated {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestExpandBufferParallelMatchesSerial(t *testing.T) {
	k := 8
	var bases []string
	for i := 0; i < 12; i++ {
		bases = append(bases, "ACGTACGTACGTA", "TTGGCATCGATCGA", "GGGGCCCCAAAATTTT")
	}

	var buf []byte
	for _, b := range bases {
		sk := mustSuperKmer(t, b, k)
		buf = append(buf, sk.Header)
		buf = append(buf, sk.Packed...)
	}

	e := New(k, 4, false)
	serial, err := e.ExpandBuffer(buf)
	if err != nil {
		t.Fatalf("ExpandBuffer: %v", err)
	}
	for _, threads := range []int{1, 2, 5} {
		parallel, err := e.ExpandBufferParallel(buf, threads)
		if err != nil {
			t.Fatalf("ExpandBufferParallel(threads=%d): %v", threads, err)
		}
		if len(parallel) != len(serial) {
			t.Errorf("threads=%d: got %d records, want %d", threads, len(parallel), len(serial))
			continue
		}
		for i := range serial {
			if serial[i].Prefix().Code != parallel[i].Prefix().Code {
				t.Errorf("threads=%d: record %d prefix mismatch", threads, i)
			}
		}
	}
}

func TestExpandBufferParallelTruncated(t *testing.T) {
	e := New(8, 4, false)
	if _, err := e.ExpandBufferParallel([]byte{5, 1, 2}, 4); err != ErrTruncated {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}
