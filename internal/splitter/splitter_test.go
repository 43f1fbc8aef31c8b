package splitter

import (
	"testing"

	"github.com/kmerbin/kmerbin/internal/sigmap"
	"github.com/kmerbin/kmerbin/internal/sigstats"
)

func TestSplitCoversEveryKmerExactlyOnce(t *testing.T) {
	k, sigLen, nBins := 12, 5, 16
	m := sigmap.Build(sigstats.NewHistogram(sigLen), nBins)
	sp := New(k, sigLen, m)

	bases := []byte("ACGTACGTACGTTTGGCATCGATCGATCGATGCATGCATGCATGCATCGATG")
	emitted := sp.Split(bases)
	if len(emitted) == 0 {
		t.Fatal("expected at least one super-k-mer")
	}

	total := 0
	for _, e := range emitted {
		total += e.SuperKmer.NumKmers()
		if e.Bin < 0 || e.Bin >= nBins {
			t.Fatalf("super-k-mer routed to out-of-range bin %d", e.Bin)
		}
	}
	want := len(bases) - k + 1
	if total != want {
		t.Errorf("total k-mers covered = %d, want %d", total, want)
	}
}

func TestSplitShorterThanKReturnsNothing(t *testing.T) {
	m := sigmap.Build(sigstats.NewHistogram(5), 8)
	sp := New(12, 5, m)
	if got := sp.Split([]byte("ACGT")); got != nil {
		t.Errorf("expected nil for a sequence shorter than k, got %v", got)
	}
}

func TestSplitRespectsSuperKmerLengthCap(t *testing.T) {
	k, sigLen, nBins := 8, 5, 8
	m := sigmap.Build(sigstats.NewHistogram(sigLen), nBins)
	sp := New(k, sigLen, m)

	bases := make([]byte, 1000)
	pattern := []byte("ACGTACGTAC")
	for i := range bases {
		bases[i] = pattern[i%len(pattern)]
	}
	for _, e := range sp.Split(bases) {
		if e.SuperKmer.Length() > k+254 {
			t.Errorf("super-k-mer length %d exceeds k+254", e.SuperKmer.Length())
		}
	}
}
