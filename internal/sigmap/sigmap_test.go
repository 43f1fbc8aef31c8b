package sigmap

import (
	"testing"

	"github.com/kmerbin/kmerbin"
	"github.com/kmerbin/kmerbin/internal/sigstats"
)

func TestBuildAssignsEveryAllowedSignature(t *testing.T) {
	sigLen := 5
	h := sigstats.NewHistogram(sigLen)
	n := kmerbin.NumSignatures(sigLen)
	for sig := uint64(0); sig < n; sig++ {
		if kmerbin.AllowedSignature(sig, sigLen) {
			h.Counts[sig] = sig % 7
		}
	}

	m := Build(h, 16)
	seen := make(map[int]bool)
	for sig := uint64(0); sig < n; sig++ {
		bin := m.BinOf(sig)
		if bin < 0 || bin >= m.NBins {
			t.Fatalf("signature %d mapped to out-of-range bin %d", sig, bin)
		}
		if !kmerbin.AllowedSignature(sig, sigLen) && bin != DisallowedBin(m.NBins) {
			t.Errorf("disallowed signature %d mapped to bin %d, want %d", sig, bin, DisallowedBin(m.NBins))
		}
		seen[bin] = true
	}
	if len(seen) == 0 {
		t.Fatal("expected at least one bin used")
	}
}

func TestBuildClampsMinimumBins(t *testing.T) {
	h := sigstats.NewHistogram(5)
	m := Build(h, 0)
	if m.NBins < 2 {
		t.Errorf("NBins = %d, want >= 2", m.NBins)
	}
}
