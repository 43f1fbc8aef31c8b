package radix

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/kmerbin/kmerbin"
)

func mustRecord(t *testing.T, prefix, ext string, k int) kmerbin.KXmerRecord {
	t.Helper()
	rec, err := kmerbin.NewKXmerRecord([]byte(prefix), []byte(ext), k)
	if err != nil {
		t.Fatalf("NewKXmerRecord: %v", err)
	}
	return rec
}

func TestSortSmallSlice(t *testing.T) {
	k := 4
	recs := []kmerbin.KXmerRecord{
		mustRecord(t, "TTTT", "", k),
		mustRecord(t, "AAAA", "", k),
		mustRecord(t, "CCCC", "GG", k),
		mustRecord(t, "AAAA", "GG", k),
	}
	Sort(recs)
	if !sort.IsSorted(kmerbin.KXmerRecordSlice(recs)) {
		t.Fatalf("not sorted: %+v", recs)
	}
	// AAAA alone sorts before AAAA+GG (shorter key, shared prefix).
	if string(recs[0].Key) != string(recs[1].Key) && recs[0].Prefix().Code != recs[1].Prefix().Code {
		t.Errorf("expected first two records to share the AAAA prefix")
	}
}

func TestSortLargeSliceUsesRecursion(t *testing.T) {
	k := 6
	bases := "ACGT"
	var recs []kmerbin.KXmerRecord
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < smallSortCutoff+50; i++ {
		buf := make([]byte, k)
		for j := range buf {
			buf[j] = bases[rng.Intn(4)]
		}
		recs = append(recs, mustRecord(t, string(buf), "", k))
	}
	Sort(recs)
	if !sort.IsSorted(kmerbin.KXmerRecordSlice(recs)) {
		t.Fatal("large slice not sorted after radix pass")
	}
}

func TestSortStablePrefixOrdering(t *testing.T) {
	k := 4
	recs := []kmerbin.KXmerRecord{
		mustRecord(t, "GGGG", "AC", k),
		mustRecord(t, "GGGG", "AA", k),
		mustRecord(t, "GGGG", "", k),
	}
	Sort(recs)
	for i := 1; i < len(recs); i++ {
		if !recs[i-1].Less(recs[i]) && string(recs[i-1].Key) != string(recs[i].Key) {
			t.Errorf("records out of order at %d: %v vs %v", i, recs[i-1].Key, recs[i].Key)
		}
	}
	if len(recs[0].Key) >= len(recs[len(recs)-1].Key) {
		t.Errorf("expected shortest key (bare prefix) to sort first")
	}
}
