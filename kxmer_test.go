package kmerbin

import (
	"sort"
	"testing"
)

func TestKXmerRecordPrefix(t *testing.T) {
	prefix := []byte("ACGT")
	ext := []byte("GG")
	r, err := NewKXmerRecord(prefix, ext, 4)
	if err != nil {
		t.Fatalf("NewKXmerRecord: %v", err)
	}
	want, _ := NewKmerCode(prefix)
	if !r.Prefix().Equal(want) {
		t.Errorf("Prefix() = %s, want %s", r.Prefix(), want)
	}
	if r.X != 2 {
		t.Errorf("X = %d, want 2", r.X)
	}
}

func TestKXmerRecordOrdering(t *testing.T) {
	a, _ := NewKXmerRecord([]byte("ACGT"), []byte("A"), 4)
	b, _ := NewKXmerRecord([]byte("ACGT"), []byte("C"), 4)
	c, _ := NewKXmerRecord([]byte("ACGG"), nil, 4)

	if !c.Less(a) {
		t.Errorf("expected ACGG-prefixed record to sort before ACGT-prefixed ones")
	}
	if !a.Less(b) {
		t.Errorf("expected ACGTA to sort before ACGTC")
	}

	recs := KXmerRecordSlice{b, a, c}
	sort.Sort(recs)
	if !(recs[0].Less(recs[1]) || !recs[1].Less(recs[0])) {
		t.Fatalf("sort did not produce a non-decreasing order")
	}
	if recs[0].Prefix().Code != c.Prefix().Code {
		t.Errorf("expected ACGG-prefixed record first, got prefix %s", recs[0].Prefix())
	}
}

func TestKXmerRecordExtensionTooLong(t *testing.T) {
	ext := make([]byte, MaxExtension+1)
	for i := range ext {
		ext[i] = 'A'
	}
	if _, err := NewKXmerRecord([]byte("ACGT"), ext, 4); err != ErrExtensionTooLong {
		t.Errorf("expected ErrExtensionTooLong, got %v", err)
	}
}

func TestKXmerRecordPrefixLengthMismatch(t *testing.T) {
	if _, err := NewKXmerRecord([]byte("ACG"), nil, 4); err == nil {
		t.Error("expected error for prefix length mismatch")
	}
}
