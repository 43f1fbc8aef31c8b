package smallk

import (
	"testing"

	"github.com/kmerbin/kmerbin"
	"github.com/kmerbin/kmerbin/internal/merger"
)

// recordCounts runs Complete and returns a k-mer-string -> count map for
// easy comparison against the spec's expected-output scenarios.
func recordCounts(t *testing.T, res merger.Result, k int) map[string]uint64 {
	t.Helper()
	out := make(map[string]uint64, len(res.Records))
	for _, r := range res.Records {
		out[string(kmerbin.Decode(r.Code, k))] = r.Count
	}
	return out
}

// TestSampleRunE1NonCanonical is spec.md's E1: ACGTACGTAC, k=3,
// both_strands=false -> {ACG:2, CGT:2, GTA:2, TAC:2}, each 3-mer kept in
// its own forward orientation (no canonicalization).
func TestSampleRunE1NonCanonical(t *testing.T) {
	k := 3
	c := NewCounters(k, false)
	c.SampleRun([]byte("ACGTACGTAC"))
	res := Complete(c, merger.Options{CutoffMin: 1, CutoffMax: 1e9, CounterMax: 255})

	got := recordCounts(t, res, k)
	want := map[string]uint64{"ACG": 2, "CGT": 2, "GTA": 2, "TAC": 2}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for kmer, n := range want {
		if got[kmer] != n {
			t.Errorf("%s count = %d, want %d", kmer, got[kmer], n)
		}
	}
}

// TestSampleRunE2Canonical is spec.md's E2: same input, both_strands=true
// -> ACG/CGT collapse to ACG:4, GTA/TAC collapse to GTA:4 (whichever of
// each canonical pair sorts first holds the combined count).
func TestSampleRunE2Canonical(t *testing.T) {
	k := 3
	c := NewCounters(k, true)
	c.SampleRun([]byte("ACGTACGTAC"))
	res := Complete(c, merger.Options{CutoffMin: 1, CutoffMax: 1e9, CounterMax: 255})

	got := recordCounts(t, res, k)
	total := uint64(0)
	for _, n := range got {
		total += n
	}
	if total != 8 {
		t.Fatalf("total counted k-mers = %d, want 8", total)
	}

	acg, _ := kmerbin.Encode([]byte("ACG"))
	gta, _ := kmerbin.Encode([]byte("GTA"))
	wantACG := string(kmerbin.Decode(kmerbin.Canonical(acg, k), k))
	wantGTA := string(kmerbin.Decode(kmerbin.Canonical(gta, k), k))
	if len(got) != 2 {
		t.Fatalf("got %v, want exactly 2 canonical buckets", got)
	}
	if got[wantACG] != 4 {
		t.Errorf("%s count = %d, want 4", wantACG, got[wantACG])
	}
	if got[wantGTA] != 4 {
		t.Errorf("%s count = %d, want 4", wantGTA, got[wantGTA])
	}
}

func TestMergeSumsElementWise(t *testing.T) {
	k := 2
	a := NewCounters(k, true)
	b := NewCounters(k, true)
	a.SampleRun([]byte("ACGT"))
	b.SampleRun([]byte("ACGT"))
	a.Merge(b)

	want := NewCounters(k, true)
	want.SampleRun([]byte("ACGT"))
	for i := range want.arr {
		want.arr[i] *= 2
	}
	for i := range a.arr {
		if a.arr[i] != want.arr[i] {
			t.Errorf("bucket %d = %d, want %d", i, a.arr[i], want.arr[i])
		}
	}
}

func TestCompleteAppliesCutoffsAndSaturation(t *testing.T) {
	k := 2
	c := NewCounters(k, true)
	for i := 0; i < 5; i++ {
		c.SampleRun([]byte("AAA")) // two overlapping AA's per call -> 10 total, all canonical AA
	}
	res := Complete(c, merger.Options{CutoffMin: 1, CutoffMax: 100, CounterMax: 3})
	var aaCount uint64
	aa, _ := kmerbin.Encode([]byte("AA"))
	for _, r := range res.Records {
		if r.Code == aa {
			aaCount = r.Count
		}
	}
	if aaCount != 3 {
		t.Errorf("AA count = %d, want saturated 3", aaCount)
	}
}

func TestCounterSize(t *testing.T) {
	if CounterSize(1000) != 4 {
		t.Error("expected 4-byte counters for small cutoff_max")
	}
	if CounterSize(uint64(1)<<33) != 8 {
		t.Error("expected 8-byte counters for large cutoff_max")
	}
}
